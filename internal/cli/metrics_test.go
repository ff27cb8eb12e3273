package cli

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"forgeloop/internal/observability"
)

// --- parseSinceDuration unit tests ---

func TestParseSinceDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"empty defaults to 7d", "", false, ""},
		{"whitespace defaults to 7d", "  ", false, ""},
		{"valid 7d", "7d", false, ""},
		{"valid 30d", "30d", false, ""},
		{"valid 24h", "24h", false, ""},
		{"valid 1h", "1h", false, ""},
		{"invalid suffix", "abc", true, "unsupported duration format"},
		{"invalid day number", "xd", true, "invalid day duration"},
		{"invalid hour number", "yh", true, "invalid hour duration"},
		{"negative day is still valid", "-5d", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSinceDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestParseSinceDuration_Window(t *testing.T) {
	got, err := parseSinceDuration("24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Now().UTC().Add(-24 * time.Hour)
	if diff := got.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("24h window off by %v", diff)
	}
}

// --- metrics command tests ---

type metricsMock struct {
	calculateFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calculateFn(since)
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	orig := MetricsCalc
	defer func() { MetricsCalc = orig }()
	MetricsCalc = nil

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil {
		t.Fatal("expected error when MetricsCalc is nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_Table(t *testing.T) {
	orig := MetricsCalc
	defer func() { MetricsCalc = orig }()

	oldest := time.Now().UTC().Add(-48 * time.Hour)
	newest := time.Now().UTC()
	MetricsCalc = &metricsMock{
		calculateFn: func(since time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{
				EventCount:       12,
				EventsByType:     map[string]int{"build.started": 2, "build.completed": 1, "build.failed": 1},
				ProjectsCreated:  1,
				BuildsStarted:    2,
				BuildsCompleted:  1,
				BuildsFailed:     1,
				BuildSuccessRate: 0.5,
				FilesGenerated:   6,
				TestsPassed:      5,
				TestsFailed:      2,
				AvgHealAttempts:  1.5,
				OldestEvent:      &oldest,
				NewestEvent:      &newest,
			}, nil
		},
	}

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_JSON(t *testing.T) {
	orig := MetricsCalc
	defer func() { MetricsCalc = orig }()
	origJSON := metricsJSON
	defer func() { metricsJSON = origJSON }()

	MetricsCalc = &metricsMock{
		calculateFn: func(time.Time) (*observability.Metrics, error) {
			return &observability.Metrics{EventCount: 3, EventsByType: map[string]int{}}, nil
		},
	}
	metricsJSON = true

	if err := metricsCmd.RunE(metricsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_CalculateError(t *testing.T) {
	orig := MetricsCalc
	defer func() { MetricsCalc = orig }()

	MetricsCalc = &metricsMock{
		calculateFn: func(time.Time) (*observability.Metrics, error) {
			return nil, fmt.Errorf("archive unavailable")
		},
	}

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil {
		t.Fatal("expected error from Calculate")
	}
	if !strings.Contains(err.Error(), "archive unavailable") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricsCmd_BadSince(t *testing.T) {
	orig := MetricsCalc
	defer func() { MetricsCalc = orig }()
	origSince := metricsSince
	defer func() { metricsSince = origSince }()

	MetricsCalc = &metricsMock{
		calculateFn: func(time.Time) (*observability.Metrics, error) {
			t.Fatal("Calculate should not be called with invalid --since")
			return nil, nil
		},
	}
	metricsSince = "5 fortnights"

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil {
		t.Fatal("expected error for invalid --since")
	}
	if !strings.Contains(err.Error(), "parsing --since") {
		t.Errorf("unexpected error: %v", err)
	}
}
