package core

import (
	"errors"
	"fmt"

	"forgeloop/pkg/models"
)

// ErrBuildInProgress is returned when BuildAll is invoked while another
// build is active. The second call is rejected, never interleaved.
var ErrBuildInProgress = errors.New("build already in progress")

// DuplicatePathError reports an insert at a path that already exists in
// the artifact tree.
type DuplicatePathError struct {
	Path string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("artifact path %q already exists", e.Path)
}

// InvalidParentError reports an insert whose parent segment does not
// resolve to an existing directory node.
type InvalidParentError struct {
	Path   string
	Parent string
}

func (e *InvalidParentError) Error() string {
	return fmt.Sprintf("inserting %q: parent %q is not an existing directory", e.Path, e.Parent)
}

// NotFoundError reports a point operation on a path absent from the tree.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %q not found", e.Path)
}

// GenerationError reports a failed generation step for one artifact.
// It halts the build that raised it.
type GenerationError struct {
	Path string
	Role models.AgentRole
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating %q as %s: %v", e.Path, e.Role, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TestInvocationError reports that the test runner itself failed, as
// opposed to running and observing a failing test. It halts the build.
type TestInvocationError struct {
	Path string
	Err  error
}

func (e *TestInvocationError) Error() string {
	return fmt.Sprintf("invoking tests for %q: %v", e.Path, e.Err)
}

func (e *TestInvocationError) Unwrap() error { return e.Err }

// HealFailureReason distinguishes why a self-heal run ended in terminal
// failure. The distinction is diagnostic only; both reasons surface to
// callers as the same file-level failure.
type HealFailureReason string

const (
	HealReasonExhausted HealFailureReason = "exhausted"
	HealReasonNoFix     HealFailureReason = "no_fix"
)

// SelfHealExhaustedError reports that the debug-and-retest cycle for a
// file ended without the file passing, either because the configured
// attempt bound was hit or because the debugger produced no fix.
type SelfHealExhaustedError struct {
	Path     string
	Attempts int
	Reason   HealFailureReason
}

func (e *SelfHealExhaustedError) Error() string {
	if e.Reason == HealReasonNoFix {
		return fmt.Sprintf("self-heal for %q: no fix produced after %d attempts", e.Path, e.Attempts)
	}
	return fmt.Sprintf("self-heal for %q exhausted after %d attempts", e.Path, e.Attempts)
}
