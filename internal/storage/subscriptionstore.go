package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"forgeloop/pkg/models"
)

// SubscriptionStoreManager defines the interface for the persisted
// webhook subscription registry under webhooks/.
type SubscriptionStoreManager interface {
	SaveSubscription(sub models.WebhookSubscription) error
	DeleteSubscription(id string) error
	ListSubscriptions() ([]models.WebhookSubscription, error)
	Load() error
}

type fileSubscriptionStore struct {
	basePath string
	data     models.SubscriptionIndex
}

// NewSubscriptionStoreManager creates a SubscriptionStoreManager backed
// by a subscriptions.yaml file under webhooks/ in the given base
// directory. Mutations write through to disk so registrations survive
// restarts.
func NewSubscriptionStoreManager(basePath string) SubscriptionStoreManager {
	return &fileSubscriptionStore{
		basePath: basePath,
		data: models.SubscriptionIndex{
			Version: "1.0",
		},
	}
}

func (m *fileSubscriptionStore) filePath() string {
	return filepath.Join(m.basePath, "webhooks", "subscriptions.yaml")
}

// SaveSubscription inserts or replaces a subscription by ID and persists
// the registry.
func (m *fileSubscriptionStore) SaveSubscription(sub models.WebhookSubscription) error {
	if sub.ID == "" {
		return fmt.Errorf("saving subscription: ID must not be empty")
	}

	replaced := false
	for i := range m.data.Subscriptions {
		if m.data.Subscriptions[i].ID == sub.ID {
			m.data.Subscriptions[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		m.data.Subscriptions = append(m.data.Subscriptions, sub)
	}
	return m.save()
}

// DeleteSubscription removes a subscription by ID and persists the
// registry. Removing an unknown ID is not an error.
func (m *fileSubscriptionStore) DeleteSubscription(id string) error {
	for i := range m.data.Subscriptions {
		if m.data.Subscriptions[i].ID == id {
			m.data.Subscriptions = append(m.data.Subscriptions[:i], m.data.Subscriptions[i+1:]...)
			return m.save()
		}
	}
	return nil
}

// ListSubscriptions returns all registered subscriptions ordered by
// creation time, oldest first.
func (m *fileSubscriptionStore) ListSubscriptions() ([]models.WebhookSubscription, error) {
	out := make([]models.WebhookSubscription, len(m.data.Subscriptions))
	copy(out, m.data.Subscriptions)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Load reads the subscription registry from disk. A missing file is
// treated as an empty registry.
func (m *fileSubscriptionStore) Load() error {
	data, err := os.ReadFile(m.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			m.data = models.SubscriptionIndex{Version: "1.0"}
			return nil
		}
		return fmt.Errorf("loading subscriptions: %w", err)
	}

	var idx models.SubscriptionIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("loading subscriptions: parsing YAML: %w", err)
	}
	if idx.Version == "" {
		idx.Version = "1.0"
	}
	m.data = idx
	return nil
}

func (m *fileSubscriptionStore) save() error {
	dir := filepath.Dir(m.filePath())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("saving subscriptions: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&m.data)
	if err != nil {
		return fmt.Errorf("saving subscriptions: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(m.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving subscriptions: writing file: %w", err)
	}
	return nil
}
