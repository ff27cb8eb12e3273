package integration

import (
	"context"
	"fmt"
	"strings"

	"forgeloop/internal/core"
	"forgeloop/pkg/models"
)

// planChangePrefix marks the optional trailer line a model appends when
// it needs a file the plan missed: CREATE_FILE <path> -- <reason>.
const planChangePrefix = "CREATE_FILE "

// generationAgent implements core.GenerationAgent over per-role model
// clients. The same path classifier the pipeline uses decides which
// provider generates a given artifact.
type generationAgent struct {
	clients  *RoleClients
	classify core.RoleClassifier
}

// NewGenerationAgent creates a GenerationAgent routing requests through
// the given role clients. classifier may be nil, in which case every
// artifact generates under the engineer role.
func NewGenerationAgent(clients *RoleClients, classifier core.RoleClassifier) core.GenerationAgent {
	if classifier == nil {
		classifier = core.NewPrefixRoleClassifier(nil)
	}
	return &generationAgent{clients: clients, classify: classifier}
}

// Generate prompts the role's provider with the plan, prior knowledge,
// and the current file list, and parses an optional plan-change trailer
// out of the reply.
func (g *generationAgent) Generate(ctx context.Context, req core.GenerationRequest) (*core.GenerationResult, error) {
	role := g.classify(req.Node.Path)
	prompt := buildGenerationPrompt(req, role)

	content, err := g.clients.For(role).Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating %s: %w", req.Node.Path, err)
	}

	code, change := extractPlanChange(content)
	if code == "" {
		return nil, fmt.Errorf("generating %s: model returned no code", req.Node.Path)
	}
	return &core.GenerationResult{Code: code, PlanChange: change}, nil
}

// Ideate refines a raw project idea into a concrete concept.
func (g *generationAgent) Ideate(ctx context.Context, idea string) (string, error) {
	var b strings.Builder
	b.WriteString("Refine the following project idea into a concrete product concept.\n")
	b.WriteString("Describe the core functionality, the intended users, and the main screens or surfaces.\n\n")
	b.WriteString("Idea:\n")
	b.WriteString(idea)

	content, err := g.clients.For(models.RoleIdeator).Complete(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("ideating: %w", err)
	}
	return content, nil
}

// DraftPlan produces a build plan from the project conversation. The
// prompt pins the reply format to bullet lines naming file paths so the
// plan parses into an artifact tree.
func (g *generationAgent) DraftPlan(ctx context.Context, transcript []models.ChatMessage) (string, error) {
	var b strings.Builder
	b.WriteString("Draft a build plan for the project discussed below.\n")
	b.WriteString("Reply with a short goal statement followed by a bulleted file list,\n")
	b.WriteString("one file per line in the form `- path/to/file.ext - purpose`.\n")
	b.WriteString("List files in the order they should be built.\n\n")
	b.WriteString("Conversation:\n")
	for _, msg := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	content, err := g.clients.For(models.RolePlanner).Complete(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("drafting plan: %w", err)
	}
	return content, nil
}

func (g *generationAgent) Capabilities() []models.AgentCapability {
	return []models.AgentCapability{
		{
			Name:        core.CapGenerateCode,
			Description: "Generate source code for a planned artifact",
			Inputs:      []string{"path", "plan", "knowledge", "file_list"},
			Outputs:     []string{"code", "plan_change"},
		},
		{
			Name:        core.CapIdeate,
			Description: "Refine a raw idea into a concrete product concept",
			Inputs:      []string{"idea"},
			Outputs:     []string{"concept"},
		},
		{
			Name:        core.CapDraftPlan,
			Description: "Draft an ordered file plan from the project conversation",
			Inputs:      []string{"transcript"},
			Outputs:     []string{"plan"},
		},
	}
}

// buildGenerationPrompt frames one artifact generation request: the
// plan for context, prior passing code as reference, the full file
// list for cross-file awareness, and the target path.
func buildGenerationPrompt(req core.GenerationRequest, role models.AgentRole) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. Generate the complete contents of one file.\n\n", role)

	if req.Plan != "" {
		b.WriteString("Build plan:\n")
		b.WriteString(req.Plan)
		b.WriteString("\n\n")
	}
	if len(req.Knowledge) > 0 {
		b.WriteString("Reference implementations that passed their tests:\n")
		for _, snippet := range req.Knowledge {
			b.WriteString(snippet)
			b.WriteString("\n---\n")
		}
		b.WriteString("\n")
	}
	if len(req.FileList) > 0 {
		b.WriteString("Project files:\n")
		for _, path := range req.FileList {
			fmt.Fprintf(&b, "- %s\n", path)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Target file: %s\n", req.Node.Path)
	b.WriteString("Reply with only the file contents. If the plan is missing a file\n")
	b.WriteString("this one depends on, append a final line in the form\n")
	b.WriteString("CREATE_FILE <path> -- <reason>.\n")
	return b.String()
}

// extractPlanChange strips a CREATE_FILE trailer from generated content
// and returns the remaining code plus the parsed change, if any. Only
// the first matching line counts; malformed trailers stay in the code.
func extractPlanChange(content string) (string, *core.PlanChangeRequest) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, planChangePrefix) {
			continue
		}

		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, planChangePrefix))
		path := rest
		reason := ""
		if idx := strings.Index(rest, "--"); idx >= 0 {
			path = strings.TrimSpace(rest[:idx])
			reason = strings.TrimSpace(rest[idx+2:])
		}
		if path == "" {
			continue
		}

		remaining := append(append([]string{}, lines[:i]...), lines[i+1:]...)
		code := strings.TrimRight(strings.Join(remaining, "\n"), "\n")
		return code, &core.PlanChangeRequest{
			Action: "createFile",
			Path:   path,
			Reason: reason,
		}
	}
	return strings.TrimRight(content, "\n"), nil
}
