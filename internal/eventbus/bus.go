// Package eventbus queues lifecycle events and fans them out to webhook
// subscribers. Emission is decoupled from delivery through a FIFO queue
// with a single-flight drain: one goroutine at a time works the queue,
// each event's deliveries are joined before the next event starts, and
// cross-event ordering per subscriber is preserved.
package eventbus

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"forgeloop/pkg/models"
)

// Logger records bus status information. It matches log.Printf's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// SubscriptionStore persists webhook subscriptions across restarts.
type SubscriptionStore interface {
	SaveSubscription(sub models.WebhookSubscription) error
	DeleteSubscription(id string) error
	ListSubscriptions() ([]models.WebhookSubscription, error)
}

// Archiver records every processed event for later querying. Archive
// failures are diagnostic only and never block delivery.
type Archiver interface {
	ArchiveEvent(evt models.LifecycleEvent) error
}

// EventBus accepts lifecycle events, delivers them to matching active
// subscriptions, and retains a bounded in-memory history.
type EventBus interface {
	// Emit validates the type against the closed event set, queues the
	// event, and drains the queue. An emit with zero matching active
	// subscriptions still succeeds and is still recorded in history.
	Emit(eventType models.EventType, payload map[string]any, source string) error
	// Subscribe registers a destination URL. An empty eventTypes set
	// subscribes to every type. New subscriptions start active.
	Subscribe(destination string, eventTypes []models.EventType, secret string, headers map[string]string) (*models.WebhookSubscription, error)
	// Unsubscribe removes a subscription and reports whether one was
	// registered under id. Removing an unknown id is not an error.
	Unsubscribe(id string) (bool, error)
	// SetActive toggles delivery for a subscription without discarding
	// its registration.
	SetActive(id string, active bool) error
	Subscriptions() []models.WebhookSubscription
	// Recent returns up to n most recent events in chronological order.
	Recent(n int) []models.LifecycleEvent
	// Close stops accepting emissions and waits for queued events to
	// finish delivery, bounded by ctx.
	Close(ctx context.Context) error
}

type bus struct {
	store     SubscriptionStore
	deliverer Deliverer
	archiver  Archiver
	logger    Logger
	clock     func() time.Time

	historySize int
	draining    atomic.Bool
	closed      atomic.Bool

	mu      sync.Mutex
	queue   []models.LifecycleEvent
	history []models.LifecycleEvent
	subs    []models.WebhookSubscription
}

// Option customizes bus construction.
type Option func(*bus)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(b *bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithArchiver records every processed event with a.
func WithArchiver(a Archiver) Option {
	return func(b *bus) {
		if a != nil {
			b.archiver = a
		}
	}
}

// WithDeliverer overrides the default HTTP deliverer.
func WithDeliverer(d Deliverer) Option {
	return func(b *bus) {
		if d != nil {
			b.deliverer = d
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(b *bus) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// NewBus creates an EventBus backed by store, retaining historySize
// events. Previously stored subscriptions are loaded at construction.
func NewBus(store SubscriptionStore, historySize int, deliveryTimeout time.Duration, opts ...Option) (EventBus, error) {
	if historySize < 1 {
		historySize = 1
	}
	b := &bus{
		store:       store,
		deliverer:   NewHTTPDeliverer(deliveryTimeout),
		logger:      nopLogger{},
		clock:       func() time.Time { return time.Now().UTC() },
		historySize: historySize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	subs, err := store.ListSubscriptions()
	if err != nil {
		return nil, fmt.Errorf("loading webhook subscriptions: %w", err)
	}
	b.subs = subs
	return b, nil
}

func (b *bus) Emit(eventType models.EventType, payload map[string]any, source string) error {
	if b.closed.Load() {
		return fmt.Errorf("emitting %s: event bus closed", eventType)
	}
	if !eventType.Valid() {
		return fmt.Errorf("emitting event: unknown type %q", eventType)
	}

	evt := models.LifecycleEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: b.clock(),
		Source:    source,
		Payload:   payload,
	}

	b.mu.Lock()
	b.queue = append(b.queue, evt)
	b.mu.Unlock()

	b.drain()
	return nil
}

// drain works the queue until empty. The single-flight guard keeps one
// drainer active; emitters that lose the race return immediately and
// their events are picked up by the active drainer. The re-check after
// releasing the guard closes the window where an event lands just as
// the drainer exits.
func (b *bus) drain() {
	for {
		if !b.draining.CompareAndSwap(false, true) {
			return
		}
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			evt := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()

			b.deliver(evt)
			b.record(evt)
		}
		b.draining.Store(false)

		b.mu.Lock()
		empty := len(b.queue) == 0
		b.mu.Unlock()
		if empty {
			return
		}
	}
}

// deliver fans the event out to every matching active subscription and
// joins all deliveries before returning. Failures are logged, never
// propagated: one unreachable subscriber must not affect the others or
// the emitting operation.
func (b *bus) deliver(evt models.LifecycleEvent) {
	b.mu.Lock()
	targets := make([]models.WebhookSubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.Active && sub.Matches(evt.Type) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub models.WebhookSubscription) {
			defer wg.Done()
			if err := b.deliverer.Deliver(sub, evt); err != nil {
				b.logger.Printf("eventbus: deliver %s to %s failed: %v", evt.Type, sub.Destination, err)
			}
		}(sub)
	}
	wg.Wait()
}

// record appends the event to the bounded history and the archive.
func (b *bus) record(evt models.LifecycleEvent) {
	b.mu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	b.mu.Unlock()

	if b.archiver != nil {
		if err := b.archiver.ArchiveEvent(evt); err != nil {
			b.logger.Printf("eventbus: archive %s failed: %v", evt.Type, err)
		}
	}
}

func (b *bus) Subscribe(destination string, eventTypes []models.EventType, secret string, headers map[string]string) (*models.WebhookSubscription, error) {
	parsed, err := url.Parse(destination)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("subscribing: destination %q is not an http(s) URL", destination)
	}
	for _, et := range eventTypes {
		if !et.Valid() {
			return nil, fmt.Errorf("subscribing: unknown event type %q", et)
		}
	}

	sub := models.WebhookSubscription{
		ID:          uuid.New().String(),
		Destination: destination,
		EventTypes:  eventTypes,
		Active:      true,
		Secret:      secret,
		Headers:     headers,
		Created:     b.clock(),
	}
	if err := b.store.SaveSubscription(sub); err != nil {
		return nil, fmt.Errorf("subscribing: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return &sub, nil
}

func (b *bus) Unsubscribe(id string) (bool, error) {
	if err := b.store.DeleteSubscription(id); err != nil {
		return false, fmt.Errorf("unsubscribing %s: %w", id, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.ID == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (b *bus) SetActive(id string, active bool) error {
	b.mu.Lock()
	var target *models.WebhookSubscription
	for i := range b.subs {
		if b.subs[i].ID == id {
			b.subs[i].Active = active
			target = &b.subs[i]
			break
		}
	}
	if target == nil {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	updated := *target
	b.mu.Unlock()

	if err := b.store.SaveSubscription(updated); err != nil {
		return fmt.Errorf("updating subscription %s: %w", id, err)
	}
	return nil
}

func (b *bus) Subscriptions() []models.WebhookSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.WebhookSubscription, len(b.subs))
	copy(out, b.subs)
	return out
}

func (b *bus) Recent(n int) []models.LifecycleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]models.LifecycleEvent, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

func (b *bus) Close(ctx context.Context) error {
	b.closed.Store(true)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		b.mu.Lock()
		idle := len(b.queue) == 0
		b.mu.Unlock()
		if idle && !b.draining.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("closing event bus: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
