package core

import (
	"context"
	"strings"

	"forgeloop/pkg/models"
)

// Capability names declared by collaborator implementations. The
// pipeline checks the capability it needs before invoking a
// collaborator instead of probing behavior at runtime.
const (
	CapGenerateCode      = "generate_code"
	CapIdeate            = "ideate"
	CapDraftPlan         = "draft_plan"
	CapRunTests          = "run_tests"
	CapFixCode           = "fix_code"
	CapRetrieveKnowledge = "retrieve_knowledge"
	CapLearnFromSuccess  = "learn_from_success"
)

// HasCapability reports whether name appears in a declared capability set.
func HasCapability(caps []models.AgentCapability, name string) bool {
	for _, c := range caps {
		if c.Name == name {
			return true
		}
	}
	return false
}

// PlanChangeRequest is a generation collaborator's request to add a file
// the plan missed. Action is always "createFile".
type PlanChangeRequest struct {
	Action string
	Path   string
	Reason string
}

// GenerationRequest carries everything a generation collaborator needs
// for one artifact: the node descriptor, the full plan, prior-knowledge
// snippets, and the full flattened file list for cross-file awareness.
type GenerationRequest struct {
	Node      models.ArtifactDescriptor
	Plan      string
	Knowledge []string
	FileList  []string
}

// GenerationResult is the outcome of one generation call.
type GenerationResult struct {
	Code       string
	PlanChange *PlanChangeRequest
}

// GenerationAgent produces artifact content and natural-language
// responses. Implementations live outside the core; the core only
// depends on this boundary.
type GenerationAgent interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	// Ideate refines a raw project idea into a concrete concept.
	Ideate(ctx context.Context, idea string) (string, error)
	// DraftPlan produces a build plan from the project conversation.
	DraftPlan(ctx context.Context, transcript []models.ChatMessage) (string, error)
	Capabilities() []models.AgentCapability
}

// TestResult reports one test run. Passed false with Output set is a
// failing observation; an error from Run is an invocation failure.
type TestResult struct {
	Passed bool
	Output string
}

// TestAgent verifies generated code.
type TestAgent interface {
	Run(ctx context.Context, code string) (*TestResult, error)
	Capabilities() []models.AgentCapability
}

// DebugAgent attempts to repair failing code. An empty returned string
// or an error both mean no fix was produced.
type DebugAgent interface {
	Fix(ctx context.Context, code, errMsg string) (string, error)
	Capabilities() []models.AgentCapability
}

// KnowledgeAgent accumulates code that passed its tests and retrieves
// prior snippets relevant to a path. Retrieval is read-only and
// best-effort; learning happens only after a file reaches passing.
type KnowledgeAgent interface {
	GetRelevantKnowledge(path string) []string
	LearnFromSuccess(path, code string) error
	Capabilities() []models.AgentCapability
}

// RoleClassifier selects the generation role for an artifact path. The
// predicate is configuration, not embedded policy.
type RoleClassifier func(path string) models.AgentRole

// NewPrefixRoleClassifier returns a classifier that routes paths under
// any of the given prefixes to the designer role and everything else to
// the engineer role. Prefixes match whole leading segments, so "ui"
// matches "ui/button.ext" but not "uikit/button.ext".
func NewPrefixRoleClassifier(designerPrefixes []string) RoleClassifier {
	return func(path string) models.AgentRole {
		for _, prefix := range designerPrefixes {
			if prefix == "" {
				continue
			}
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return models.RoleDesigner
			}
		}
		return models.RoleEngineer
	}
}
