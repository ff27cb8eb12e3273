package eventbus

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"forgeloop/pkg/models"
)

const defaultDeliveryTimeout = 10 * time.Second

// Deliverer pushes a single event to a single subscription endpoint.
type Deliverer interface {
	Deliver(sub models.WebhookSubscription, evt models.LifecycleEvent) error
}

// DeliveryError reports a webhook endpoint that responded outside the
// 2xx range.
type DeliveryError struct {
	SubscriptionID string
	Destination    string
	StatusCode     int
	Body           string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook %s returned status %d", e.Destination, e.StatusCode)
	}
	return fmt.Sprintf("webhook %s returned status %d: %s", e.Destination, e.StatusCode, e.Body)
}

// httpDeliverer posts events as JSON over HTTP.
type httpDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer returns a Deliverer that POSTs the serialized event
// to the subscription's destination URL. A non-positive timeout falls
// back to the default.
func NewHTTPDeliverer(timeout time.Duration) Deliverer {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &httpDeliverer{
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver serializes the event, signs it when the subscription carries a
// secret, and posts it to the destination. Any response outside 2xx is
// an error; a bounded slice of the response body is included for
// diagnosis.
func (d *httpDeliverer) Deliver(sub models.WebhookSubscription, evt models.LifecycleEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event %s: %w", evt.ID, err)
	}

	req, err := http.NewRequest(http.MethodPost, sub.Destination, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", sub.Destination, err)
	}

	// Subscription headers first so they can never shadow the
	// protocol headers set below.
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forgeloop-Event", string(evt.Type))
	req.Header.Set("X-Forgeloop-Delivery", evt.ID)
	req.Header.Set("X-Forgeloop-Timestamp", evt.Timestamp.UTC().Format(time.RFC3339))
	if sub.Secret != "" {
		req.Header.Set("X-Forgeloop-Signature", Sign(payload, sub.Secret))
	}

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event to %s: %w", sub.Destination, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &DeliveryError{
			SubscriptionID: sub.ID,
			Destination:    sub.Destination,
			StatusCode:     res.StatusCode,
			Body:           strings.TrimSpace(string(body)),
		}
	}
	return nil
}

// Sign computes the webhook signature for a payload: the hex-encoded
// HMAC-SHA-256 of the body keyed by the subscription secret, prefixed
// with the scheme identifier.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature reports whether signature matches the payload under
// the given secret. Comparison is constant-time.
func ValidateSignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
