// Package mcp provides an MCP (Model Context Protocol) server that
// exposes forgeloop orchestration as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"forgeloop/internal/core"
	"forgeloop/internal/eventbus"
	"forgeloop/pkg/models"
)

// Server wraps forgeloop services and exposes them as MCP tools.
type Server struct {
	server     *gomcp.Server
	controller core.ProjectPhaseController
	registry   core.AgentStatusRegistry
	bus        eventbus.EventBus
}

// NewServer creates a new MCP server over the given services.
func NewServer(controller core.ProjectPhaseController, registry core.AgentStatusRegistry, bus eventbus.EventBus, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		controller: controller,
		registry:   registry,
		bus:        bus,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "forgeloop", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type projectStatusInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,the project identifier (e.g. P-00042)"`
}

type artifactOutput struct {
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	TestStatus string `json:"test_status"`
}

type projectOutput struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Phase           string           `json:"phase"`
	BuildInProgress bool             `json:"build_in_progress"`
	LastError       string           `json:"last_error,omitempty"`
	Artifacts       []artifactOutput `json:"artifacts,omitempty"`
	Created         string           `json:"created"`
	Updated         string           `json:"updated"`
}

type createProjectInput struct {
	Name string `json:"name" jsonschema:"required,short project name"`
	Idea string `json:"idea,omitempty" jsonschema:"the raw product idea that seeds the project conversation"`
}

type triggerBuildInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,the project identifier (e.g. P-00042)"`
}

type listEventsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of events to return. Defaults to 20."`
}

type eventOutput struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type listEventsOutput struct {
	Events []eventOutput `json:"events"`
	Count  int           `json:"count"`
}

type listAgentsInput struct{}

type agentOutput struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

type listAgentsOutput struct {
	Agents []agentOutput `json:"agents"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "project_status",
		Description: "Get project state by ID: phase, build flag, last error, and the flattened artifact listing with per-file generation and test status.",
	}, s.handleProjectStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_project",
		Description: "Create a new project in the idea intake phase. The optional idea becomes the first entry of the project conversation.",
	}, s.handleCreateProject)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "trigger_build",
		Description: "Run the full build for a project: every pending artifact is generated, tested, and self-healed in order. Requires a generated plan. Blocks until the run ends.",
	}, s.handleTriggerBuild)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_events",
		Description: "List recent lifecycle events in chronological order: project, build, generation, test, and deployment milestones.",
	}, s.handleListEvents)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_agents",
		Description: "List every worker role with its current status (idle, thinking, generating, testing, debugging, error).",
	}, s.handleListAgents)
}

// --- Tool handlers ---

func (s *Server) handleProjectStatus(_ context.Context, _ *gomcp.CallToolRequest, input projectStatusInput) (*gomcp.CallToolResult, projectOutput, error) {
	if input.ProjectID == "" {
		return errorResult("project_id is required"), projectOutput{}, nil
	}

	project, err := s.controller.Project(input.ProjectID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting project %s: %s", input.ProjectID, err)), projectOutput{}, nil
	}

	out, err := projectToOutput(project)
	if err != nil {
		return errorResult(fmt.Sprintf("reading artifacts for %s: %s", input.ProjectID, err)), projectOutput{}, nil
	}
	return nil, out, nil
}

func (s *Server) handleCreateProject(_ context.Context, _ *gomcp.CallToolRequest, input createProjectInput) (*gomcp.CallToolResult, projectOutput, error) {
	if input.Name == "" {
		return errorResult("name is required"), projectOutput{}, nil
	}

	project, err := s.controller.CreateProject(input.Name, input.Idea)
	if err != nil {
		return errorResult(fmt.Sprintf("creating project: %s", err)), projectOutput{}, nil
	}

	out, err := projectToOutput(project)
	if err != nil {
		return errorResult(fmt.Sprintf("reading artifacts: %s", err)), projectOutput{}, nil
	}
	return nil, out, nil
}

func (s *Server) handleTriggerBuild(ctx context.Context, _ *gomcp.CallToolRequest, input triggerBuildInput) (*gomcp.CallToolResult, projectOutput, error) {
	if input.ProjectID == "" {
		return errorResult("project_id is required"), projectOutput{}, nil
	}

	project, err := s.controller.StartBuild(ctx, input.ProjectID)
	if err != nil {
		// A halted build still persists its partial state; the caller can
		// re-query project_status for the failing artifact.
		return errorResult(fmt.Sprintf("building project %s: %s", input.ProjectID, err)), projectOutput{}, nil
	}

	out, err := projectToOutput(project)
	if err != nil {
		return errorResult(fmt.Sprintf("reading artifacts for %s: %s", input.ProjectID, err)), projectOutput{}, nil
	}
	return nil, out, nil
}

func (s *Server) handleListEvents(_ context.Context, _ *gomcp.CallToolRequest, input listEventsInput) (*gomcp.CallToolResult, listEventsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	events := s.bus.Recent(limit)
	out := listEventsOutput{
		Events: make([]eventOutput, len(events)),
		Count:  len(events),
	}
	for i, evt := range events {
		out.Events[i] = eventOutput{
			ID:        evt.ID,
			Type:      string(evt.Type),
			Source:    evt.Source,
			Timestamp: evt.Timestamp.Format(time.RFC3339),
			Payload:   evt.Payload,
		}
	}

	return nil, out, nil
}

func (s *Server) handleListAgents(_ context.Context, _ *gomcp.CallToolRequest, _ listAgentsInput) (*gomcp.CallToolResult, listAgentsOutput, error) {
	agents := s.registry.Snapshot()
	out := listAgentsOutput{Agents: make([]agentOutput, len(agents))}
	for i, a := range agents {
		out.Agents[i] = agentOutput{Role: string(a.Role), Status: string(a.Status)}
	}

	return nil, out, nil
}

// --- Helpers ---

func projectToOutput(p *models.ProjectState) (projectOutput, error) {
	out := projectOutput{
		ID:              p.ID,
		Name:            p.Name,
		Phase:           string(p.Phase),
		BuildInProgress: p.BuildInProgress,
		LastError:       p.LastError,
		Created:         p.Created.Format(time.RFC3339),
		Updated:         p.Updated.Format(time.RFC3339),
	}

	if len(p.Artifacts) == 0 {
		return out, nil
	}
	tree, err := core.NewArtifactTreeFrom(p.Artifacts)
	if err != nil {
		return projectOutput{}, err
	}
	for _, d := range tree.Flatten() {
		out.Artifacts = append(out.Artifacts, artifactOutput{
			Path:       d.Path,
			Kind:       string(d.Kind),
			Status:     string(d.Status),
			TestStatus: string(d.TestStatus),
		})
	}
	return out, nil
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
