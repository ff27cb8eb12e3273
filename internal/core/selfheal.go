package core

import (
	"context"
	"fmt"

	"forgeloop/pkg/models"
)

// HealState is one step of the per-file healing state machine:
// untested → testing → passing (terminal) | failing → debugging →
// testing again, until passing, no fix, or the attempt bound.
type HealState string

const (
	HealUntested  HealState = "untested"
	HealTesting   HealState = "testing"
	HealPassing   HealState = "passing"
	HealFailing   HealState = "failing"
	HealDebugging HealState = "debugging"
	HealFailed    HealState = "failed"
)

// HealOutcome summarises one self-healing run for a file. State is
// always passing or failed on return; Reason is set only for failed.
type HealOutcome struct {
	State     HealState
	Attempts  int
	Reason    HealFailureReason
	LastError string
}

// SelfHealingLoop drives the bounded test → debug → retest cycle for a
// single file. The cycle always terminates: either the file passes, the
// debugger produces no fix, or the configured attempt bound is hit.
type SelfHealingLoop interface {
	// Heal tests the file at path and repairs it until it passes or the
	// run terminally fails. A non-nil error is an invocation-level
	// failure (the runner itself broke) and halts the caller; a failed
	// outcome with a nil error is a file-level failure.
	Heal(ctx context.Context, tree ArtifactTree, projectID, path string) (*HealOutcome, error)
}

type selfHealingLoop struct {
	tester      TestAgent
	debugger    DebugAgent
	knowledge   KnowledgeAgent
	registry    AgentStatusRegistry
	emitter     EventEmitter
	logger      EventLogger
	maxAttempts int
}

// NewSelfHealingLoop creates a SelfHealingLoop bounded by maxAttempts
// debug cycles per file. knowledge, emitter, and logger may be nil.
func NewSelfHealingLoop(tester TestAgent, debugger DebugAgent, knowledge KnowledgeAgent, registry AgentStatusRegistry, emitter EventEmitter, logger EventLogger, maxAttempts int) SelfHealingLoop {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &selfHealingLoop{
		tester:      tester,
		debugger:    debugger,
		knowledge:   knowledge,
		registry:    registry,
		emitter:     emitter,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

func (l *selfHealingLoop) Heal(ctx context.Context, tree ArtifactTree, projectID, path string) (*HealOutcome, error) {
	if !HasCapability(l.tester.Capabilities(), CapRunTests) {
		return nil, &TestInvocationError{Path: path, Err: fmt.Errorf("test agent does not declare %s", CapRunTests)}
	}

	node, err := tree.FindByPath(path)
	if err != nil {
		return nil, fmt.Errorf("healing %q: %w", path, err)
	}
	code := node.Code

	outcome := &HealOutcome{State: HealUntested}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &TestInvocationError{Path: path, Err: err}
		}

		outcome.State = HealTesting
		l.registry.SetStatus(models.RoleTester, models.AgentTesting)
		result, err := l.tester.Run(ctx, code)
		l.registry.SetStatus(models.RoleTester, models.AgentIdle)
		if err != nil {
			return nil, &TestInvocationError{Path: path, Err: err}
		}

		if result.Passed {
			outcome.State = HealPassing
			outcome.LastError = ""
			if err := tree.SetTestStatus(path, models.TestPassing, ""); err != nil {
				return nil, fmt.Errorf("healing %q: %w", path, err)
			}
			l.learn(path, code)
			l.emit(models.EventTestPassed, map[string]any{
				"project":  projectID,
				"path":     path,
				"attempts": outcome.Attempts,
			})
			return outcome, nil
		}

		outcome.State = HealFailing
		outcome.LastError = result.Output
		if err := tree.SetTestStatus(path, models.TestFailing, result.Output); err != nil {
			return nil, fmt.Errorf("healing %q: %w", path, err)
		}
		l.emit(models.EventTestFailed, map[string]any{
			"project": projectID,
			"path":    path,
			"error":   result.Output,
			"attempt": outcome.Attempts,
		})

		if outcome.Attempts >= l.maxAttempts {
			outcome.State = HealFailed
			outcome.Reason = HealReasonExhausted
			l.log("selfheal.exhausted", map[string]any{"path": path, "attempts": outcome.Attempts})
			return outcome, nil
		}

		if l.debugger == nil || !HasCapability(l.debugger.Capabilities(), CapFixCode) {
			outcome.State = HealFailed
			outcome.Reason = HealReasonNoFix
			l.log("selfheal.no_debugger", map[string]any{"path": path})
			return outcome, nil
		}

		outcome.State = HealDebugging
		l.registry.SetStatus(models.RoleDebugger, models.AgentDebugging)
		fixed, err := l.debugger.Fix(ctx, code, result.Output)
		l.registry.SetStatus(models.RoleDebugger, models.AgentIdle)
		outcome.Attempts++

		if err != nil || fixed == "" {
			outcome.State = HealFailed
			outcome.Reason = HealReasonNoFix
			if err != nil {
				l.log("selfheal.debug_failed", map[string]any{"path": path, "error": err.Error()})
			} else {
				l.log("selfheal.no_fix", map[string]any{"path": path, "attempts": outcome.Attempts})
			}
			return outcome, nil
		}

		if err := tree.SetCode(path, fixed); err != nil {
			return nil, fmt.Errorf("healing %q: applying fix: %w", path, err)
		}
		code = fixed
	}
}

// learn records the passing code with the knowledge collaborator.
// Learning failures are diagnostic only.
func (l *selfHealingLoop) learn(path, code string) {
	if l.knowledge == nil {
		return
	}
	if err := l.knowledge.LearnFromSuccess(path, code); err != nil {
		l.log("selfheal.learn_failed", map[string]any{"path": path, "error": err.Error()})
	}
}

func (l *selfHealingLoop) emit(eventType models.EventType, payload map[string]any) {
	if l.emitter != nil {
		_ = l.emitter.Emit(eventType, payload, "selfheal")
	}
}

func (l *selfHealingLoop) log(eventType string, data map[string]any) {
	if l.logger != nil {
		_ = l.logger.LogEvent(eventType, data)
	}
}
