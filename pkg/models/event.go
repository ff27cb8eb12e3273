package models

import "time"

// EventType is one of the closed set of lifecycle milestone types. The
// set is closed: emitting an unknown type is rejected at the bus.
type EventType string

const (
	EventProjectCreated      EventType = "project.created"
	EventProjectUpdated      EventType = "project.updated"
	EventIdeationCompleted   EventType = "ideation.completed"
	EventPlanGenerated       EventType = "plan.generated"
	EventCodeGenerated       EventType = "code.generated"
	EventCodeUpdated         EventType = "code.updated"
	EventTestPassed          EventType = "test.passed"
	EventTestFailed          EventType = "test.failed"
	EventBuildStarted        EventType = "build.started"
	EventBuildCompleted      EventType = "build.completed"
	EventBuildFailed         EventType = "build.failed"
	EventDeploymentStarted   EventType = "deployment.started"
	EventDeploymentCompleted EventType = "deployment.completed"
	EventDeploymentFailed    EventType = "deployment.failed"
	EventErrorOccurred       EventType = "error.occurred"
)

// AllEventTypes lists every lifecycle event type in declaration order.
var AllEventTypes = []EventType{
	EventProjectCreated,
	EventProjectUpdated,
	EventIdeationCompleted,
	EventPlanGenerated,
	EventCodeGenerated,
	EventCodeUpdated,
	EventTestPassed,
	EventTestFailed,
	EventBuildStarted,
	EventBuildCompleted,
	EventBuildFailed,
	EventDeploymentStarted,
	EventDeploymentCompleted,
	EventDeploymentFailed,
	EventErrorOccurred,
}

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// LifecycleEvent is a typed notification describing an orchestration
// milestone. Events are immutable once built; they are queued,
// dispatched to subscribers, then retained in a bounded history.
type LifecycleEvent struct {
	ID        string         `json:"id" yaml:"id"`
	Type      EventType      `json:"type" yaml:"type"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Source    string         `json:"source" yaml:"source"`
	Payload   map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}
