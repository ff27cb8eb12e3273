package core

import "forgeloop/pkg/models"

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// EventEmitter is the subset of the lifecycle event bus that core
// services need. Defining it here avoids importing the eventbus package;
// the concrete bus is constructed by the application and injected.
type EventEmitter interface {
	Emit(eventType models.EventType, payload map[string]any, source string) error
}
