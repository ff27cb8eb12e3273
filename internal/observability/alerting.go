package observability

import (
	"fmt"
	"time"

	"forgeloop/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire. A non-positive
// threshold disables its rule.
type AlertThresholds struct {
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`
	FailureStreak  int `yaml:"failure_streak" json:"failure_streak"`
	WindowHours    int `yaml:"window_hours" json:"window_hours"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		ErrorThreshold: 5,
		FailureStreak:  3,
		WindowHours:    24,
	}
}

// AlertEngine evaluates alert conditions against the event archive.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	source     EventSource
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given EventSource and thresholds.
func NewAlertEngine(source EventSource, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		source:     source,
		thresholds: thresholds,
	}
}

// Evaluate checks all alert conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := time.Now().UTC()
	var alerts []Alert

	errorAlerts, err := ae.checkErrorRate(now)
	if err != nil {
		return nil, fmt.Errorf("checking error rate: %w", err)
	}
	alerts = append(alerts, errorAlerts...)

	streakAlerts, err := ae.checkBuildFailureStreak(now)
	if err != nil {
		return nil, fmt.Errorf("checking build failures: %w", err)
	}
	alerts = append(alerts, streakAlerts...)

	return alerts, nil
}

// checkErrorRate counts error.occurred events inside the window and
// alerts once they reach the threshold.
func (ae *alertEngine) checkErrorRate(now time.Time) ([]Alert, error) {
	if ae.thresholds.ErrorThreshold <= 0 {
		return nil, nil
	}

	since := now.Add(-time.Duration(ae.thresholds.WindowHours) * time.Hour)
	events, err := ae.source.Events(EventQuery{
		Type:  string(models.EventErrorOccurred),
		Since: &since,
		Limit: -1,
	})
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	if len(events) >= ae.thresholds.ErrorThreshold {
		alerts = append(alerts, Alert{
			ID:          "error-rate",
			Condition:   "error_rate_exceeded",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%d errors in the last %d hours, threshold is %d", len(events), ae.thresholds.WindowHours, ae.thresholds.ErrorThreshold),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

// checkBuildFailureStreak alerts when every build since the last
// successful one has failed and the run is long enough.
func (ae *alertEngine) checkBuildFailureStreak(now time.Time) ([]Alert, error) {
	if ae.thresholds.FailureStreak <= 0 {
		return nil, nil
	}

	failed, err := ae.source.Events(EventQuery{Type: string(models.EventBuildFailed), Limit: -1})
	if err != nil {
		return nil, err
	}
	completed, err := ae.source.Events(EventQuery{Type: string(models.EventBuildCompleted), Limit: 1})
	if err != nil {
		return nil, err
	}

	// The streak is every failure after the most recent successful build.
	streak := 0
	if len(completed) == 0 {
		streak = len(failed)
	} else {
		lastSuccess := completed[0].Timestamp
		for _, event := range failed {
			if event.Timestamp.After(lastSuccess) {
				streak++
			}
		}
	}

	var alerts []Alert
	if streak >= ae.thresholds.FailureStreak {
		alerts = append(alerts, Alert{
			ID:          "build-failure-streak",
			Condition:   "build_failure_streak",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("the last %d builds failed in a row", streak),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}
