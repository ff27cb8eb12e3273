package observability

import (
	"fmt"
	"time"

	"forgeloop/pkg/models"
)

// EventQuery narrows a read against the archived lifecycle events.
// Zero values match everything. Limit bounds the result; zero means
// the source's default and negative means unbounded.
type EventQuery struct {
	Type  string
	Since *time.Time
	Limit int
}

// EventSource supplies archived lifecycle events, newest first.
type EventSource interface {
	Events(query EventQuery) ([]models.LifecycleEvent, error)
}

// Metrics holds calculated metrics derived from the event archive.
type Metrics struct {
	EventCount       int            `json:"event_count"`
	EventsByType     map[string]int `json:"events_by_type"`
	ProjectsCreated  int            `json:"projects_created"`
	BuildsStarted    int            `json:"builds_started"`
	BuildsCompleted  int            `json:"builds_completed"`
	BuildsFailed     int            `json:"builds_failed"`
	BuildSuccessRate float64        `json:"build_success_rate"`
	FilesGenerated   int            `json:"files_generated"`
	TestsPassed      int            `json:"tests_passed"`
	TestsFailed      int            `json:"tests_failed"`
	AvgHealAttempts  float64        `json:"avg_heal_attempts"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event archive.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventSource.
type metricsCalculator struct {
	source EventSource
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventSource.
func NewMetricsCalculator(source EventSource) MetricsCalculator {
	return &metricsCalculator{source: source}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.source.Events(EventQuery{Since: &since, Limit: -1})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		EventsByType: make(map[string]int),
	}
	m.EventCount = len(events)

	healedFiles := 0
	healAttempts := 0

	// Events arrive newest first.
	for i, event := range events {
		if i == 0 {
			t := event.Timestamp
			m.NewestEvent = &t
		}
		t := event.Timestamp
		m.OldestEvent = &t

		m.EventsByType[string(event.Type)]++

		switch event.Type {
		case models.EventProjectCreated:
			m.ProjectsCreated++
		case models.EventBuildStarted:
			m.BuildsStarted++
		case models.EventBuildCompleted:
			m.BuildsCompleted++
		case models.EventBuildFailed:
			m.BuildsFailed++
		case models.EventCodeGenerated, models.EventCodeUpdated:
			m.FilesGenerated++
		case models.EventTestPassed:
			m.TestsPassed++
			if attempts, ok := payloadInt(event.Payload, "attempts"); ok {
				healedFiles++
				healAttempts += attempts
			}
		case models.EventTestFailed:
			m.TestsFailed++
		}
	}

	if finished := m.BuildsCompleted + m.BuildsFailed; finished > 0 {
		m.BuildSuccessRate = float64(m.BuildsCompleted) / float64(finished)
	}
	if healedFiles > 0 {
		m.AvgHealAttempts = float64(healAttempts) / float64(healedFiles)
	}

	return m, nil
}

// payloadInt reads an integer payload field. Numbers decode as float64
// once a payload has been through the archive's JSON round trip.
func payloadInt(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
