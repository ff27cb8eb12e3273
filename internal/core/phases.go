package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"forgeloop/pkg/models"
)

// phaseOrder fixes the forward-only ordering of project phases.
var phaseOrder = map[models.ProjectPhase]int{
	models.PhaseIdeaIntake: 0,
	models.PhaseIdeation:   1,
	models.PhasePlanning:   2,
	models.PhaseCoding:     3,
}

// planFilePattern matches plan bullet lines naming an artifact path,
// optionally backquoted, optionally followed by a dash-separated note.
var planFilePattern = regexp.MustCompile(`^\s*[-*]\s+` + "`?" + `([A-Za-z0-9_][A-Za-z0-9._/-]*)` + "`?" + `\s*(?:[-:].*)?$`)

// ProjectPhaseController owns the overall project phase and the
// aggregate project state. All ProjectState mutation flows through its
// operations and the pipeline it delegates to.
type ProjectPhaseController interface {
	// CreateProject starts a new project in the idea intake phase with
	// the raw idea as the first chat entry.
	CreateProject(name, idea string) (*models.ProjectState, error)
	// RunIdeation refines the project idea with the generation
	// collaborator. A non-empty prompt is appended to the chat log as a
	// user message first.
	RunIdeation(ctx context.Context, id, prompt string) (*models.ProjectState, error)
	// GeneratePlan drafts the build plan from the conversation and
	// replaces the whole artifact tree with the plan's file list.
	GeneratePlan(ctx context.Context, id string) (*models.ProjectState, error)
	// StartBuild moves the project to coding and runs the full build.
	StartBuild(ctx context.Context, id string) (*models.ProjectState, error)
	// BuildFile generates a single artifact, including regeneration.
	BuildFile(ctx context.Context, id, path string) (*models.ProjectState, error)
	Project(id string) (*models.ProjectState, error)
	ListProjects() ([]models.ProjectSummary, error)
}

type projectPhaseController struct {
	store     ProjectStore
	idGen     ProjectIDGenerator
	generator GenerationAgent
	pipeline  BuildPipeline
	planner   AdaptivePlanner
	registry  AgentStatusRegistry
	emitter   EventEmitter
	logger    EventLogger
}

// NewProjectPhaseController creates a ProjectPhaseController.
// emitter and logger may be nil.
func NewProjectPhaseController(store ProjectStore, idGen ProjectIDGenerator, generator GenerationAgent, pipeline BuildPipeline, planner AdaptivePlanner, registry AgentStatusRegistry, emitter EventEmitter, logger EventLogger) ProjectPhaseController {
	return &projectPhaseController{
		store:     store,
		idGen:     idGen,
		generator: generator,
		pipeline:  pipeline,
		planner:   planner,
		registry:  registry,
		emitter:   emitter,
		logger:    logger,
	}
}

func (c *projectPhaseController) CreateProject(name, idea string) (*models.ProjectState, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("creating project: name must not be empty")
	}

	id, err := c.idGen.GenerateProjectID()
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	now := time.Now().UTC()
	project := &models.ProjectState{
		ID:      id,
		Name:    name,
		Phase:   models.PhaseIdeaIntake,
		Created: now,
		Updated: now,
	}
	if strings.TrimSpace(idea) != "" {
		project.ChatLog = []models.ChatMessage{{Role: "user", Content: idea, At: now}}
	}

	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	c.emit(models.EventProjectCreated, map[string]any{"project": id, "name": name})
	return project, nil
}

func (c *projectPhaseController) RunIdeation(ctx context.Context, id, prompt string) (*models.ProjectState, error) {
	project, err := c.store.GetProject(id)
	if err != nil {
		return nil, fmt.Errorf("running ideation: %w", err)
	}

	now := time.Now().UTC()
	if strings.TrimSpace(prompt) != "" {
		project.ChatLog = append(project.ChatLog, models.ChatMessage{Role: "user", Content: prompt, At: now})
	}

	idea := lastUserMessage(project.ChatLog)
	if idea == "" {
		return nil, fmt.Errorf("running ideation: project %s has no idea to refine", id)
	}

	if !HasCapability(c.generator.Capabilities(), CapIdeate) {
		return nil, fmt.Errorf("running ideation: generation agent does not declare %s", CapIdeate)
	}

	c.registry.SetStatus(models.RoleIdeator, models.AgentThinking)
	response, err := c.generator.Ideate(ctx, idea)
	if err != nil {
		c.registry.SetStatus(models.RoleIdeator, models.AgentErrored)
		return nil, fmt.Errorf("running ideation for %s: %w", id, err)
	}
	c.registry.SetStatus(models.RoleIdeator, models.AgentIdle)

	project.ChatLog = append(project.ChatLog, models.ChatMessage{Role: "assistant", Content: response, At: time.Now().UTC()})
	advancePhase(project, models.PhaseIdeation)
	project.Updated = time.Now().UTC()

	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("running ideation: %w", err)
	}

	c.emit(models.EventIdeationCompleted, map[string]any{"project": id})
	c.emit(models.EventProjectUpdated, map[string]any{"project": id, "phase": string(project.Phase)})
	return project, nil
}

func (c *projectPhaseController) GeneratePlan(ctx context.Context, id string) (*models.ProjectState, error) {
	project, err := c.store.GetProject(id)
	if err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}
	if len(project.ChatLog) == 0 {
		return nil, fmt.Errorf("generating plan: project %s has no conversation to plan from", id)
	}

	if !HasCapability(c.generator.Capabilities(), CapDraftPlan) {
		return nil, fmt.Errorf("generating plan: generation agent does not declare %s", CapDraftPlan)
	}

	c.registry.SetStatus(models.RolePlanner, models.AgentThinking)
	plan, err := c.generator.DraftPlan(ctx, project.ChatLog)
	if err != nil {
		c.registry.SetStatus(models.RolePlanner, models.AgentErrored)
		return nil, fmt.Errorf("generating plan for %s: %w", id, err)
	}
	c.registry.SetStatus(models.RolePlanner, models.AgentIdle)

	files := ParsePlanFiles(plan)
	if len(files) == 0 {
		c.log("phases.empty_plan", map[string]any{"project": id})
	}

	// A new plan replaces the whole tree; prior nodes are destroyed.
	tree := NewArtifactTree()
	for _, path := range files {
		if err := c.planner.InsertRequestedFile(tree, path, "plan"); err != nil {
			return nil, fmt.Errorf("generating plan for %s: %w", id, err)
		}
	}

	project.Plan = plan
	project.Artifacts = tree.Export()
	project.SelectedPath = ""
	advancePhase(project, models.PhasePlanning)
	project.TerminalLog = append(project.TerminalLog, fmt.Sprintf("plan generated: %d files", len(files)))
	project.Updated = time.Now().UTC()

	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}

	c.emit(models.EventPlanGenerated, map[string]any{"project": id, "files": len(files)})
	c.emit(models.EventProjectUpdated, map[string]any{"project": id, "phase": string(project.Phase)})
	return project, nil
}

func (c *projectPhaseController) StartBuild(ctx context.Context, id string) (*models.ProjectState, error) {
	project, err := c.store.GetProject(id)
	if err != nil {
		return nil, fmt.Errorf("starting build: %w", err)
	}
	if project.Plan == "" {
		return nil, fmt.Errorf("starting build: project %s has no plan", id)
	}

	advancePhase(project, models.PhaseCoding)
	project.Updated = time.Now().UTC()
	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("starting build: %w", err)
	}
	c.emit(models.EventProjectUpdated, map[string]any{"project": id, "phase": string(project.Phase)})

	tree, err := NewArtifactTreeFrom(project.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("starting build for %s: %w", id, err)
	}

	buildErr := c.pipeline.BuildAll(ctx, project, tree)

	project.Artifacts = tree.Export()
	project.Updated = time.Now().UTC()
	if err := c.store.SaveProject(project); err != nil {
		if buildErr != nil {
			c.log("phases.save_after_halt_failed", map[string]any{"project": id, "error": err.Error()})
			return project, buildErr
		}
		return project, fmt.Errorf("saving build outcome for %s: %w", id, err)
	}
	return project, buildErr
}

func (c *projectPhaseController) BuildFile(ctx context.Context, id, path string) (*models.ProjectState, error) {
	project, err := c.store.GetProject(id)
	if err != nil {
		return nil, fmt.Errorf("building file: %w", err)
	}

	tree, err := NewArtifactTreeFrom(project.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("building file for %s: %w", id, err)
	}

	project.SelectedPath = path
	buildErr := c.pipeline.BuildOne(ctx, project, tree, path)

	project.Artifacts = tree.Export()
	project.Updated = time.Now().UTC()
	if err := c.store.SaveProject(project); err != nil {
		if buildErr != nil {
			c.log("phases.save_after_halt_failed", map[string]any{"project": id, "error": err.Error()})
			return project, buildErr
		}
		return project, fmt.Errorf("saving build outcome for %s: %w", id, err)
	}
	return project, buildErr
}

func (c *projectPhaseController) Project(id string) (*models.ProjectState, error) {
	return c.store.GetProject(id)
}

func (c *projectPhaseController) ListProjects() ([]models.ProjectSummary, error) {
	return c.store.ListProjects()
}

func (c *projectPhaseController) emit(eventType models.EventType, payload map[string]any) {
	if c.emitter != nil {
		_ = c.emitter.Emit(eventType, payload, "phases")
	}
}

func (c *projectPhaseController) log(eventType string, data map[string]any) {
	if c.logger != nil {
		_ = c.logger.LogEvent(eventType, data)
	}
}

// advancePhase moves the project forward to the target phase. Phases
// never move backward; re-running an earlier phase regenerates in place.
func advancePhase(p *models.ProjectState, to models.ProjectPhase) {
	if phaseOrder[to] > phaseOrder[p.Phase] {
		p.Phase = to
	}
}

// lastUserMessage returns the most recent user-authored chat entry.
func lastUserMessage(log []models.ChatMessage) string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == "user" {
			return log[i].Content
		}
	}
	return ""
}

// ParsePlanFiles extracts artifact file paths from a plan's bullet
// lines. A bullet names a file when its final segment contains a dot;
// bare directory bullets are skipped because ancestors are created
// implicitly at insertion. Duplicates keep their first position.
func ParsePlanFiles(plan string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(plan, "\n") {
		m := planFilePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		candidate := strings.TrimSuffix(m[1], "/")
		if candidate == "" || seen[candidate] {
			continue
		}
		segments := strings.Split(candidate, "/")
		if !strings.Contains(segments[len(segments)-1], ".") {
			continue
		}
		if validatePath(candidate) != nil {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
	}
	return out
}
