package cli

import "forgeloop/internal/observability"

// BasePath is the resolved workspace directory (the .forgeloop root).
// Set during app initialization.
var BasePath string

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
