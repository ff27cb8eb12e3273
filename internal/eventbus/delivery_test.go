package eventbus

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"forgeloop/pkg/models"
)

type capturedRequest struct {
	method string
	header http.Header
	body   []byte
}

// captureServer records every request and replies with the given status.
func captureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{method: r.Method, header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedRequest, len(reqs))
		copy(out, reqs)
		return out
	}
}

func sampleEvent() models.LifecycleEvent {
	return models.LifecycleEvent{
		ID:        "evt-123",
		Type:      models.EventBuildCompleted,
		Timestamp: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		Source:    "pipeline",
		Payload:   map[string]any{"project_id": "P-00001"},
	}
}

func TestDeliverSendsProtocolHeadersAndBody(t *testing.T) {
	srv, requests := captureServer(t, http.StatusOK)
	d := NewHTTPDeliverer(time.Second)

	sub := models.WebhookSubscription{ID: "w1", Destination: srv.URL, Active: true}
	if err := d.Deliver(sub, sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.method)
	}
	if got := req.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected application/json, got %q", got)
	}
	if got := req.header.Get("X-Forgeloop-Event"); got != "build.completed" {
		t.Errorf("expected event type header, got %q", got)
	}
	if got := req.header.Get("X-Forgeloop-Delivery"); got != "evt-123" {
		t.Errorf("expected event id header, got %q", got)
	}
	ts := req.header.Get("X-Forgeloop-Timestamp")
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t.Fatalf("timestamp header %q should be RFC3339: %v", ts, err)
	}
	if !parsed.Equal(sampleEvent().Timestamp) {
		t.Errorf("timestamp header should match the event, got %s", parsed)
	}
	if got := req.header.Get("X-Forgeloop-Signature"); got != "" {
		t.Errorf("no signature expected without a secret, got %q", got)
	}

	var evt models.LifecycleEvent
	if err := json.Unmarshal(req.body, &evt); err != nil {
		t.Fatalf("body should be the JSON event: %v", err)
	}
	if evt.ID != "evt-123" || evt.Type != models.EventBuildCompleted || evt.Source != "pipeline" {
		t.Errorf("unexpected event in body: %+v", evt)
	}
	if evt.Payload["project_id"] != "P-00001" {
		t.Errorf("payload should survive the round trip, got %v", evt.Payload)
	}
}

func TestDeliverSignsBodyWithSecret(t *testing.T) {
	srv, requests := captureServer(t, http.StatusNoContent)
	d := NewHTTPDeliverer(time.Second)

	sub := models.WebhookSubscription{ID: "w1", Destination: srv.URL, Active: true, Secret: "s3cret"}
	if err := d.Deliver(sub, sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := requests()[0]
	sig := req.header.Get("X-Forgeloop-Signature")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature should carry the scheme prefix, got %q", sig)
	}
	if !ValidateSignature(req.body, "s3cret", sig) {
		t.Error("signature should validate against the received body")
	}
	if ValidateSignature(req.body, "wrong", sig) {
		t.Error("signature must not validate under a different secret")
	}
}

func TestDeliverSubscriptionHeadersCannotShadowProtocol(t *testing.T) {
	srv, requests := captureServer(t, http.StatusOK)
	d := NewHTTPDeliverer(time.Second)

	sub := models.WebhookSubscription{
		ID:          "w1",
		Destination: srv.URL,
		Active:      true,
		Headers: map[string]string{
			"Authorization":     "Bearer abc",
			"X-Forgeloop-Event": "spoofed",
		},
	}
	if err := d.Deliver(sub, sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := requests()[0]
	if got := req.header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("custom header should pass through, got %q", got)
	}
	if got := req.header.Get("X-Forgeloop-Event"); got != "build.completed" {
		t.Errorf("protocol header must win over the subscription's, got %q", got)
	}
}

func TestDeliverNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream sad"))
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDeliverer(time.Second)
	err := d.Deliver(models.WebhookSubscription{ID: "w1", Destination: srv.URL}, sampleEvent())

	var delivErr *DeliveryError
	if !errors.As(err, &delivErr) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if delivErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", delivErr.StatusCode)
	}
	if delivErr.Body != "upstream sad" {
		t.Errorf("expected response body captured, got %q", delivErr.Body)
	}
}

func TestDeliverUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dest := srv.URL
	srv.Close()

	d := NewHTTPDeliverer(time.Second)
	if err := d.Deliver(models.WebhookSubscription{ID: "w1", Destination: dest}, sampleEvent()); err == nil {
		t.Fatal("expected an error for an unreachable endpoint")
	}
}

func TestValidateSignatureRejectsTampering(t *testing.T) {
	payload := []byte(`{"id":"evt-1","type":"test.passed"}`)
	sig := Sign(payload, "key")

	if !ValidateSignature(payload, "key", sig) {
		t.Fatal("signature should validate for the original payload")
	}

	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0x01
	if ValidateSignature(tampered, "key", sig) {
		t.Error("signature must not validate for a modified payload")
	}
	if ValidateSignature(payload, "key", "sha256=deadbeef") {
		t.Error("a forged signature must not validate")
	}
}
