package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"forgeloop/pkg/models"
)

// BuildSession is the ephemeral context for one pipeline run. It is
// created when the single-flight guard is acquired and discarded when
// the run ends. BulkBuild suppresses per-step terminal narration; the
// single-step path narrates every file.
type BuildSession struct {
	ProjectID     string
	BulkBuild     bool
	StartedAt     time.Time
	FilesBuilt    int
	FilesHealed   int
	FilesInserted int
}

// BuildPipeline walks the artifact tree, generates each pending file,
// and runs the self-healing loop per file, halting the whole run at the
// first unrecoverable failure. Runs are single-flight and strictly
// sequential: one file's generation and full healing cycle complete
// before the next file starts.
type BuildPipeline interface {
	// BuildAll generates every pending file in the tree. A concurrent
	// call while a run is active returns ErrBuildInProgress. The work
	// list is re-derived from a fresh Flatten after every adaptive
	// insertion, so files inserted mid-run are always generated within
	// the same call regardless of their pre-order position.
	BuildAll(ctx context.Context, project *models.ProjectState, tree ArtifactTree) error
	// BuildOne generates a single file, including regeneration of a
	// file that already has code. It shares the single-flight guard
	// with BuildAll.
	BuildOne(ctx context.Context, project *models.ProjectState, tree ArtifactTree, path string) error
}

type buildPipeline struct {
	generator  GenerationAgent
	healer     SelfHealingLoop
	planner    AdaptivePlanner
	knowledge  KnowledgeAgent
	registry   AgentStatusRegistry
	classifier RoleClassifier
	emitter    EventEmitter
	logger     EventLogger

	active atomic.Bool
}

// NewBuildPipeline creates a BuildPipeline. knowledge, emitter, and
// logger may be nil; classifier defaults to engineer-for-everything.
func NewBuildPipeline(generator GenerationAgent, healer SelfHealingLoop, planner AdaptivePlanner, knowledge KnowledgeAgent, registry AgentStatusRegistry, classifier RoleClassifier, emitter EventEmitter, logger EventLogger) BuildPipeline {
	if classifier == nil {
		classifier = NewPrefixRoleClassifier(nil)
	}
	return &buildPipeline{
		generator:  generator,
		healer:     healer,
		planner:    planner,
		knowledge:  knowledge,
		registry:   registry,
		classifier: classifier,
		emitter:    emitter,
		logger:     logger,
	}
}

func (p *buildPipeline) BuildAll(ctx context.Context, project *models.ProjectState, tree ArtifactTree) error {
	if !p.active.CompareAndSwap(false, true) {
		return ErrBuildInProgress
	}
	defer p.active.Store(false)

	session := &BuildSession{
		ProjectID: project.ID,
		BulkBuild: true,
		StartedAt: time.Now().UTC(),
	}
	project.BuildInProgress = true
	project.LastError = ""
	defer func() { project.BuildInProgress = false }()

	pending := p.countPending(tree)
	p.emit(models.EventBuildStarted, map[string]any{"project": project.ID, "pending": pending})
	p.terminal(project, fmt.Sprintf("build started: %d files pending", pending))

	for {
		if err := ctx.Err(); err != nil {
			return p.halt(project, tree, session, "", fmt.Errorf("build cancelled: %w", err))
		}

		desc, ok := p.nextEligible(tree)
		if !ok {
			break
		}
		if err := p.buildFile(ctx, project, tree, session, desc); err != nil {
			return p.halt(project, tree, session, desc.Path, err)
		}
	}

	p.emit(models.EventBuildCompleted, map[string]any{
		"project":  project.ID,
		"built":    session.FilesBuilt,
		"healed":   session.FilesHealed,
		"inserted": session.FilesInserted,
	})
	p.terminal(project, fmt.Sprintf("build completed: %d files generated", session.FilesBuilt))
	p.log("pipeline.completed", map[string]any{
		"project":  project.ID,
		"built":    session.FilesBuilt,
		"healed":   session.FilesHealed,
		"inserted": session.FilesInserted,
		"duration": time.Since(session.StartedAt).String(),
	})
	return nil
}

func (p *buildPipeline) BuildOne(ctx context.Context, project *models.ProjectState, tree ArtifactTree, path string) error {
	if !p.active.CompareAndSwap(false, true) {
		return ErrBuildInProgress
	}
	defer p.active.Store(false)

	node, err := tree.FindByPath(path)
	if err != nil {
		return err
	}
	if node.Kind != models.ArtifactFile {
		return fmt.Errorf("building %q: only file artifacts can be generated", path)
	}

	session := &BuildSession{
		ProjectID: project.ID,
		StartedAt: time.Now().UTC(),
	}
	project.BuildInProgress = true
	project.LastError = ""
	defer func() { project.BuildInProgress = false }()

	if err := p.buildFile(ctx, project, tree, session, node.Descriptor()); err != nil {
		return p.halt(project, tree, session, path, err)
	}
	return nil
}

// buildFile runs one file through generation, adaptive plan changes,
// and the self-healing loop. Any returned error halts the run.
func (p *buildPipeline) buildFile(ctx context.Context, project *models.ProjectState, tree ArtifactTree, session *BuildSession, desc models.ArtifactDescriptor) error {
	role := p.classifier(desc.Path)
	if !HasCapability(p.generator.Capabilities(), CapGenerateCode) {
		return &GenerationError{Path: desc.Path, Role: role, Err: fmt.Errorf("generation agent does not declare %s", CapGenerateCode)}
	}

	node, err := tree.FindByPath(desc.Path)
	if err != nil {
		return err
	}
	regenerating := node.Code != ""

	if err := tree.SetStatus(desc.Path, models.ArtifactGenerating); err != nil {
		return err
	}
	p.registry.SetStatus(role, models.AgentGenerating)

	var knowledge []string
	if p.knowledge != nil {
		knowledge = p.knowledge.GetRelevantKnowledge(desc.Path)
	}

	result, err := p.generator.Generate(ctx, GenerationRequest{
		Node:      desc,
		Plan:      project.Plan,
		Knowledge: knowledge,
		FileList:  filePaths(tree),
	})
	if err != nil {
		p.registry.SetStatus(role, models.AgentErrored)
		return &GenerationError{Path: desc.Path, Role: role, Err: err}
	}

	// Plan changes must land before this file completes so the new node
	// is visible to later steps of the same run.
	if result.PlanChange != nil && result.PlanChange.Path != "" {
		if err := p.planner.InsertRequestedFile(tree, result.PlanChange.Path, result.PlanChange.Reason); err != nil {
			p.log("pipeline.plan_change_rejected", map[string]any{
				"path":  result.PlanChange.Path,
				"error": err.Error(),
			})
		} else {
			session.FilesInserted++
		}
	}

	if err := tree.SetCode(desc.Path, result.Code); err != nil {
		p.registry.SetStatus(role, models.AgentErrored)
		return fmt.Errorf("applying code for %q: %w", desc.Path, err)
	}
	p.registry.SetStatus(role, models.AgentIdle)
	session.FilesBuilt++

	eventType := models.EventCodeGenerated
	if regenerating {
		eventType = models.EventCodeUpdated
	}
	p.emit(eventType, map[string]any{"project": project.ID, "path": desc.Path, "role": string(role)})
	p.narrate(project, session, fmt.Sprintf("generated %s (%s)", desc.Path, role))

	outcome, err := p.healer.Heal(ctx, tree, project.ID, desc.Path)
	if err != nil {
		return err
	}
	if outcome.State == HealFailed {
		return &SelfHealExhaustedError{Path: desc.Path, Attempts: outcome.Attempts, Reason: outcome.Reason}
	}
	if outcome.Attempts > 0 {
		session.FilesHealed++
	}
	p.narrate(project, session, fmt.Sprintf("tests passing for %s", desc.Path))
	return nil
}

// halt marks the failing node, records the error on the project, emits
// the terminal failure event, and propagates err. The pipeline never
// stops silently or partially.
func (p *buildPipeline) halt(project *models.ProjectState, tree ArtifactTree, session *BuildSession, path string, err error) error {
	if path != "" {
		if serr := tree.SetStatus(path, models.ArtifactError); serr != nil {
			p.log("pipeline.halt_mark_failed", map[string]any{"path": path, "error": serr.Error()})
		}
	}
	project.LastError = err.Error()

	payload := map[string]any{"project": project.ID, "error": err.Error()}
	if path != "" {
		payload["path"] = path
	}
	var exhausted *SelfHealExhaustedError
	if errors.As(err, &exhausted) {
		payload["reason"] = string(exhausted.Reason)
		payload["attempts"] = exhausted.Attempts
	}
	p.emit(models.EventBuildFailed, payload)
	p.terminal(project, fmt.Sprintf("build failed: %v", err))
	p.log("pipeline.halted", map[string]any{
		"project": project.ID,
		"path":    path,
		"error":   err.Error(),
		"built":   session.FilesBuilt,
	})
	return err
}

// nextEligible returns the first pending file in a fresh pre-order
// flatten, or false when no work remains.
func (p *buildPipeline) nextEligible(tree ArtifactTree) (models.ArtifactDescriptor, bool) {
	for _, d := range tree.Flatten() {
		if d.Kind != models.ArtifactFile {
			continue
		}
		if d.Status == models.ArtifactPlanned || d.Status == models.ArtifactGenerating {
			return d, true
		}
	}
	return models.ArtifactDescriptor{}, false
}

func (p *buildPipeline) countPending(tree ArtifactTree) int {
	n := 0
	for _, d := range tree.Flatten() {
		if d.Kind == models.ArtifactFile && (d.Status == models.ArtifactPlanned || d.Status == models.ArtifactGenerating) {
			n++
		}
	}
	return n
}

// filePaths returns the full flattened file list for cross-file
// awareness in generation requests.
func filePaths(tree ArtifactTree) []string {
	var out []string
	for _, d := range tree.Flatten() {
		if d.Kind == models.ArtifactFile {
			out = append(out, d.Path)
		}
	}
	return out
}

// terminal appends a line to the project's terminal log regardless of
// session mode.
func (p *buildPipeline) terminal(project *models.ProjectState, line string) {
	project.TerminalLog = append(project.TerminalLog, line)
}

// narrate appends a per-step line unless the session is a bulk build.
func (p *buildPipeline) narrate(project *models.ProjectState, session *BuildSession, line string) {
	if session.BulkBuild {
		return
	}
	project.TerminalLog = append(project.TerminalLog, line)
}

func (p *buildPipeline) emit(eventType models.EventType, payload map[string]any) {
	if p.emitter != nil {
		_ = p.emitter.Emit(eventType, payload, "pipeline")
	}
}

func (p *buildPipeline) log(eventType string, data map[string]any) {
	if p.logger != nil {
		_ = p.logger.LogEvent(eventType, data)
	}
}
