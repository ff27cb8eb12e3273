package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"forgeloop/internal/core"
	"forgeloop/pkg/models"
)

// stubModelClient records prompts and returns a canned reply.
type stubModelClient struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubModelClient) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubModelClient) Health(context.Context) error { return nil }

func roleClientsWith(byRole map[models.AgentRole]ModelClient, fallback ModelClient) *RoleClients {
	if byRole == nil {
		byRole = make(map[models.AgentRole]ModelClient)
	}
	return &RoleClients{byRole: byRole, fallback: fallback}
}

func sampleRequest() core.GenerationRequest {
	return core.GenerationRequest{
		Node:      models.ArtifactDescriptor{Path: "src/auth.ext", Kind: models.ArtifactFile},
		Plan:      "- src/auth.ext - login flow",
		Knowledge: []string{"prior auth snippet"},
		FileList:  []string{"src/auth.ext", "src/db.ext"},
	}
}

func TestGenerateAssemblesPrompt(t *testing.T) {
	stub := &stubModelClient{reply: "the code"}
	agent := NewGenerationAgent(roleClientsWith(nil, stub), nil)

	result, err := agent.Generate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Code != "the code" {
		t.Errorf("code = %q, want %q", result.Code, "the code")
	}
	if result.PlanChange != nil {
		t.Errorf("no plan change expected, got %+v", result.PlanChange)
	}

	if len(stub.prompts) != 1 {
		t.Fatalf("expected one completion call, got %d", len(stub.prompts))
	}
	prompt := stub.prompts[0]
	for _, want := range []string{
		"engineer",
		"- src/auth.ext - login flow",
		"prior auth snippet",
		"- src/db.ext",
		"Target file: src/auth.ext",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateRoutesByRole(t *testing.T) {
	engineer := &stubModelClient{reply: "engineer output"}
	designer := &stubModelClient{reply: "designer output"}
	clients := roleClientsWith(map[models.AgentRole]ModelClient{
		models.RoleEngineer: engineer,
		models.RoleDesigner: designer,
	}, engineer)
	agent := NewGenerationAgent(clients, core.NewPrefixRoleClassifier([]string{"ui"}))

	req := sampleRequest()
	req.Node.Path = "ui/button.ext"
	result, err := agent.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Code != "designer output" {
		t.Errorf("designer paths should use the designer client, got %q", result.Code)
	}
	if len(designer.prompts) != 1 || len(engineer.prompts) != 0 {
		t.Errorf("expected only the designer client called, got engineer=%d designer=%d",
			len(engineer.prompts), len(designer.prompts))
	}
	if !strings.Contains(designer.prompts[0], "designer") {
		t.Error("prompt should name the generating role")
	}
}

func TestGenerateParsesPlanChangeTrailer(t *testing.T) {
	stub := &stubModelClient{reply: "line one\nline two\nCREATE_FILE src/helper.ext -- shared validation logic\n"}
	agent := NewGenerationAgent(roleClientsWith(nil, stub), nil)

	result, err := agent.Generate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Code != "line one\nline two" {
		t.Errorf("trailer should be stripped from the code, got %q", result.Code)
	}
	if result.PlanChange == nil {
		t.Fatal("expected a plan change")
	}
	if result.PlanChange.Action != "createFile" {
		t.Errorf("action = %q, want createFile", result.PlanChange.Action)
	}
	if result.PlanChange.Path != "src/helper.ext" {
		t.Errorf("path = %q, want src/helper.ext", result.PlanChange.Path)
	}
	if result.PlanChange.Reason != "shared validation logic" {
		t.Errorf("reason = %q, want shared validation logic", result.PlanChange.Reason)
	}
}

func TestGenerateTrailerWithoutReason(t *testing.T) {
	stub := &stubModelClient{reply: "code\nCREATE_FILE src/extra.ext"}
	agent := NewGenerationAgent(roleClientsWith(nil, stub), nil)

	result, err := agent.Generate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PlanChange == nil || result.PlanChange.Path != "src/extra.ext" {
		t.Fatalf("expected a plan change for src/extra.ext, got %+v", result.PlanChange)
	}
	if result.PlanChange.Reason != "" {
		t.Errorf("reason should be empty, got %q", result.PlanChange.Reason)
	}
}

func TestGenerateErrorWraps(t *testing.T) {
	stub := &stubModelClient{err: fmt.Errorf("provider down")}
	agent := NewGenerationAgent(roleClientsWith(nil, stub), nil)

	_, err := agent.Generate(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "src/auth.ext") {
		t.Errorf("error should name the path, got %v", err)
	}
}

func TestGenerateEmptyReplyIsError(t *testing.T) {
	stub := &stubModelClient{reply: "CREATE_FILE src/only.ext -- nothing else"}
	agent := NewGenerationAgent(roleClientsWith(nil, stub), nil)

	if _, err := agent.Generate(context.Background(), sampleRequest()); err == nil {
		t.Fatal("a reply that is only a trailer has no code and should fail")
	}
}

func TestIdeateUsesIdeatorClient(t *testing.T) {
	ideator := &stubModelClient{reply: "a concrete concept"}
	fallback := &stubModelClient{reply: "fallback"}
	clients := roleClientsWith(map[models.AgentRole]ModelClient{
		models.RoleIdeator: ideator,
	}, fallback)
	agent := NewGenerationAgent(clients, nil)

	concept, err := agent.Ideate(context.Background(), "a todo app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if concept != "a concrete concept" {
		t.Errorf("concept = %q", concept)
	}
	if len(ideator.prompts) != 1 || !strings.Contains(ideator.prompts[0], "a todo app") {
		t.Errorf("idea should appear in the prompt, got %v", ideator.prompts)
	}
}

func TestDraftPlanIncludesTranscript(t *testing.T) {
	planner := &stubModelClient{reply: "- src/main.ext - entry point"}
	clients := roleClientsWith(map[models.AgentRole]ModelClient{
		models.RolePlanner: planner,
	}, planner)
	agent := NewGenerationAgent(clients, nil)

	transcript := []models.ChatMessage{
		{Role: "user", Content: "build a todo app", At: time.Now()},
		{Role: "assistant", Content: "a task list with due dates", At: time.Now()},
	}
	plan, err := agent.DraftPlan(context.Background(), transcript)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != "- src/main.ext - entry point" {
		t.Errorf("plan = %q", plan)
	}

	prompt := planner.prompts[0]
	if !strings.Contains(prompt, "user: build a todo app") {
		t.Errorf("transcript should appear in the prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "bulleted file list") {
		t.Error("prompt should pin the parseable plan format")
	}
}

func TestGeneratorCapabilities(t *testing.T) {
	agent := NewGenerationAgent(roleClientsWith(nil, &stubModelClient{}), nil)
	caps := agent.Capabilities()
	for _, want := range []string{core.CapGenerateCode, core.CapIdeate, core.CapDraftPlan} {
		if !core.HasCapability(caps, want) {
			t.Errorf("missing capability %s", want)
		}
	}
}

func TestExtractPlanChangeFirstMatchOnly(t *testing.T) {
	code, change := extractPlanChange("a\nCREATE_FILE one.ext -- first\nb\nCREATE_FILE two.ext -- second")
	if change == nil || change.Path != "one.ext" {
		t.Fatalf("expected the first trailer parsed, got %+v", change)
	}
	if !strings.Contains(code, "CREATE_FILE two.ext") {
		t.Error("later trailer lines should stay in the code")
	}
}

func TestExtractPlanChangeMalformed(t *testing.T) {
	code, change := extractPlanChange("code\nCREATE_FILE")
	if change != nil {
		t.Fatalf("a bare marker has no path and should not parse, got %+v", change)
	}
	if !strings.Contains(code, "CREATE_FILE") {
		t.Error("malformed trailers should stay in the code")
	}
}
