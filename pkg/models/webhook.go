package models

import "time"

// WebhookSubscription registers an HTTP destination for lifecycle event
// delivery. An empty EventTypes set subscribes to every type. The secret,
// when present, is used to sign delivery bodies and is never serialized
// to JSON responses.
type WebhookSubscription struct {
	ID          string            `yaml:"id" json:"id"`
	Destination string            `yaml:"destination" json:"destination"`
	EventTypes  []EventType       `yaml:"event_types,omitempty" json:"event_types,omitempty"`
	Active      bool              `yaml:"active" json:"active"`
	Secret      string            `yaml:"secret,omitempty" json:"-"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Created     time.Time         `yaml:"created" json:"created"`
}

// Matches reports whether the subscription's type set includes t.
func (s WebhookSubscription) Matches(t EventType) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, et := range s.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// SubscriptionIndex is the persisted collection of webhook subscriptions.
type SubscriptionIndex struct {
	Version       string                `yaml:"version"`
	Subscriptions []WebhookSubscription `yaml:"subscriptions"`
}
