package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"forgeloop/internal/core"
	"forgeloop/internal/eventbus"
	"forgeloop/pkg/models"
)

// memServerStore implements core.ProjectStore in memory.
type memServerStore struct {
	projects map[string]*models.ProjectState
}

func newMemServerStore() *memServerStore {
	return &memServerStore{projects: make(map[string]*models.ProjectState)}
}

func (s *memServerStore) SaveProject(p *models.ProjectState) error {
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *memServerStore) GetProject(id string) (*models.ProjectState, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (s *memServerStore) ListProjects() ([]models.ProjectSummary, error) {
	out := make([]models.ProjectSummary, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, models.ProjectSummary{ID: p.ID, Name: p.Name, Phase: p.Phase})
	}
	return out, nil
}

// memSubscriptions implements eventbus.SubscriptionStore in memory.
type memSubscriptions struct {
	subs map[string]models.WebhookSubscription
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{subs: make(map[string]models.WebhookSubscription)}
}

func (s *memSubscriptions) SaveSubscription(sub models.WebhookSubscription) error {
	s.subs[sub.ID] = sub
	return nil
}

func (s *memSubscriptions) DeleteSubscription(id string) error {
	delete(s.subs, id)
	return nil
}

func (s *memSubscriptions) ListSubscriptions() ([]models.WebhookSubscription, error) {
	out := make([]models.WebhookSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out, nil
}

// serverGenerator implements core.GenerationAgent with a canned plan and
// an optional generate hook for gating builds mid-flight.
type serverGenerator struct {
	plan     string
	generate func(req core.GenerationRequest) (*core.GenerationResult, error)
}

func (g *serverGenerator) Generate(ctx context.Context, req core.GenerationRequest) (*core.GenerationResult, error) {
	if g.generate != nil {
		return g.generate(req)
	}
	return &core.GenerationResult{Code: "code for " + req.Node.Path}, nil
}

func (g *serverGenerator) Ideate(ctx context.Context, idea string) (string, error) {
	return "refined: " + idea, nil
}

func (g *serverGenerator) DraftPlan(ctx context.Context, transcript []models.ChatMessage) (string, error) {
	return g.plan, nil
}

func (g *serverGenerator) Capabilities() []models.AgentCapability {
	return []models.AgentCapability{
		{Name: core.CapGenerateCode},
		{Name: core.CapIdeate},
		{Name: core.CapDraftPlan},
	}
}

// passingTester implements core.TestAgent and always passes.
type passingTester struct{}

func (passingTester) Run(ctx context.Context, code string) (*core.TestResult, error) {
	return &core.TestResult{Passed: true}, nil
}

func (passingTester) Capabilities() []models.AgentCapability {
	return []models.AgentCapability{{Name: core.CapRunTests}}
}

type testServer struct {
	URL        string
	client     *http.Client
	store      *memServerStore
	generator  *serverGenerator
	registry   core.AgentStatusRegistry
	controller core.ProjectPhaseController
	bus        eventbus.EventBus
	close      func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()

	store := newMemServerStore()
	generator := &serverGenerator{plan: "- src/main.ext\n- readme.md\n"}
	registry := core.NewAgentStatusRegistry()
	idGen := core.NewProjectIDGenerator(t.TempDir())

	bus, err := eventbus.NewBus(newMemSubscriptions(), 50, time.Second)
	if err != nil {
		t.Fatalf("build bus: %v", err)
	}

	healer := core.NewSelfHealingLoop(passingTester{}, nil, nil, registry, bus, nil, 3)
	planner := core.NewAdaptivePlanner(nil)
	pipeline := core.NewBuildPipeline(generator, healer, planner, nil, registry, nil, bus, nil)
	controller := core.NewProjectPhaseController(store, idGen, generator, pipeline, planner, registry, bus, nil)

	handler, err := New(Config{
		Controller:   controller,
		Registry:     registry,
		Bus:          bus,
		Capabilities: generator.Capabilities(),
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)

	testSrv := &testServer{
		URL:        "http://" + ln.Addr().String(),
		client:     &http.Client{},
		store:      store,
		generator:  generator,
		registry:   registry,
		controller: controller,
		bus:        bus,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			bus.Close(context.Background())
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	var health HealthResponse
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("expected ok, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version test, got %s", health.Version)
	}
	if health.UptimeSeconds < 0 {
		t.Errorf("uptime must not be negative, got %d", health.UptimeSeconds)
	}
}

func TestAgentsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	srv.registry.SetStatus(models.RoleEngineer, models.AgentGenerating)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/agents", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("agents status %d: %s", res.StatusCode, string(data))
	}

	var agents AgentsResponse
	if err := json.Unmarshal(data, &agents); err != nil {
		t.Fatalf("unmarshal agents: %v", err)
	}
	if len(agents.Agents) != len(models.AllRoles) {
		t.Fatalf("expected %d roles, got %d", len(models.AllRoles), len(agents.Agents))
	}

	statuses := make(map[models.AgentRole]models.AgentStatus)
	for _, a := range agents.Agents {
		statuses[a.Role] = a.Status
	}
	if statuses[models.RoleEngineer] != models.AgentGenerating {
		t.Errorf("expected engineer generating, got %s", statuses[models.RoleEngineer])
	}
	if statuses[models.RoleTester] != models.AgentIdle {
		t.Errorf("expected tester idle, got %s", statuses[models.RoleTester])
	}

	capNames := make([]string, 0, len(agents.Capabilities))
	for _, c := range agents.Capabilities {
		capNames = append(capNames, c.Name)
	}
	if !strings.Contains(strings.Join(capNames, ","), core.CapGenerateCode) {
		t.Errorf("expected declared capabilities, got %v", capNames)
	}
}

func TestCreateAndGetProject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", CreateProjectRequest{
		Name: "todo app",
		Idea: "a todo list with reminders",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}

	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.ID != "P-00001" {
		t.Errorf("expected P-00001, got %s", created.ID)
	}
	if created.Phase != string(models.PhaseIdeaIntake) {
		t.Errorf("expected idea_intake, got %s", created.Phase)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects/"+created.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var fetched ProjectResponse
	if err := json.Unmarshal(data, &fetched); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if fetched.Name != "todo app" {
		t.Errorf("expected stored name, got %s", fetched.Name)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list []models.ProjectSummary
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("expected the created project listed, got %+v", list)
	}
}

func TestCreateProjectBlankName(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/projects", CreateProjectRequest{
		Name: "   ",
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestGetProjectNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/projects/P-99999", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestBuildEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created, err := srv.controller.CreateProject("todo app", "a todo list")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := srv.controller.GeneratePlan(context.Background(), created.ID); err != nil {
		t.Fatalf("generate plan: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/"+created.ID+"/build", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("build status %d: %s", res.StatusCode, string(data))
	}

	var built ProjectResponse
	if err := json.Unmarshal(data, &built); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if built.Phase != string(models.PhaseCoding) {
		t.Errorf("expected coding phase, got %s", built.Phase)
	}
	if built.BuildInProgress {
		t.Error("build flag must clear when the run ends")
	}

	byPath := make(map[string]models.ArtifactDescriptor)
	for _, a := range built.Artifacts {
		byPath[a.Path] = a
	}
	for _, path := range []string{"src/main.ext", "readme.md"} {
		node, ok := byPath[path]
		if !ok {
			t.Fatalf("expected %s in response artifacts", path)
		}
		if node.Status != models.ArtifactGenerated || node.TestStatus != models.TestPassing {
			t.Errorf("%s: expected generated and passing, got %s/%s", path, node.Status, node.TestStatus)
		}
	}

	// Generated code stays in the store; the listing is descriptor-only.
	if strings.Contains(string(data), `"code"`) {
		t.Error("artifact code must not leave through the project response")
	}
}

func TestBuildWithoutPlan(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created, err := srv.controller.CreateProject("todo app", "a todo list")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/projects/"+created.ID+"/build", nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestBuildConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	srv.generator.plan = "- src/main.ext\n"
	created, err := srv.controller.CreateProject("todo app", "a todo list")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := srv.controller.GeneratePlan(context.Background(), created.ID); err != nil {
		t.Fatalf("generate plan: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	srv.generator.generate = func(req core.GenerationRequest) (*core.GenerationResult, error) {
		close(entered)
		<-release
		return &core.GenerationResult{Code: "code"}, nil
	}

	firstDone := make(chan int, 1)
	go func() {
		// Plain client call: doJSON's fatals must stay on the test goroutine.
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/projects/"+created.ID+"/build", bytes.NewReader(nil))
		if err != nil {
			firstDone <- 0
			return
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := client.Do(req)
		if err != nil {
			firstDone <- 0
			return
		}
		res.Body.Close()
		firstDone <- res.StatusCode
	}()

	<-entered
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/"+created.ID+"/build", nil)
	if res.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 while a build is active, got %d: %s", res.StatusCode, string(data))
	}

	close(release)
	if got := <-firstDone; got != http.StatusOK {
		t.Errorf("first build should finish cleanly, got %d", got)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	if _, err := srv.controller.CreateProject("todo app", "a todo list"); err != nil {
		t.Fatalf("create project: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/events", EmitEventRequest{
		Type:    string(models.EventErrorOccurred),
		Source:  "deploy-hook",
		Payload: map[string]any{"stage": "release"},
	})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("emit status %d: %s", res.StatusCode, string(data))
	}
	var accepted EmitEventResponse
	if err := json.Unmarshal(data, &accepted); err != nil {
		t.Fatalf("unmarshal emit response: %v", err)
	}
	if !accepted.Accepted || accepted.Type != string(models.EventErrorOccurred) {
		t.Errorf("unexpected emit response: %+v", accepted)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?limit=10", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var events EventsResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events.Events) != 2 {
		t.Fatalf("expected project.created plus the ingested event, got %d", len(events.Events))
	}
	last := events.Events[len(events.Events)-1]
	if last.Type != models.EventErrorOccurred || last.Source != "deploy-hook" {
		t.Errorf("expected the ingested event last, got %+v", last)
	}
}

func TestEmitEventUnknownType(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/events", EmitEventRequest{
		Type: "deploy.finished",
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an unknown type, got %d: %s", res.StatusCode, string(data))
	}
}

func TestWebhookLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks", CreateWebhookRequest{
		Destination: "http://127.0.0.1:9/hook",
		EventTypes:  []string{string(models.EventBuildCompleted)},
		Secret:      "hunter2-signing-key",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	if strings.Contains(string(data), "hunter2-signing-key") {
		t.Error("the signing secret must never appear in a response")
	}

	var sub models.WebhookSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatalf("unmarshal subscription: %v", err)
	}
	if sub.ID == "" || !sub.Active {
		t.Errorf("expected an active subscription with an id, got %+v", sub)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/webhooks", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var subs []models.WebhookSubscription
	if err := json.Unmarshal(data, &subs); err != nil {
		t.Fatalf("unmarshal subscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != sub.ID {
		t.Errorf("expected the new subscription listed, got %+v", subs)
	}
	if strings.Contains(string(data), "hunter2-signing-key") {
		t.Error("the signing secret must never appear in a listing")
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/webhooks/"+sub.ID, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/webhooks", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	subs = nil
	if err := json.Unmarshal(data, &subs); err != nil {
		t.Fatalf("unmarshal subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions after delete, got %+v", subs)
	}
}

func TestWebhookValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks", CreateWebhookRequest{
		Destination: "ftp://files.example.com/hook",
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a non-http destination, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks", CreateWebhookRequest{
		Destination: "http://127.0.0.1:9/hook",
		EventTypes:  []string{"deploy.finished"},
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an unknown event type, got %d: %s", res.StatusCode, string(data))
	}
}

func TestHandleError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"artifact not found", &core.NotFoundError{Path: "src/x.ext"}, http.StatusNotFound},
		{"duplicate path", &core.DuplicatePathError{Path: "src/x.ext"}, http.StatusConflict},
		{"build in progress", core.ErrBuildInProgress, http.StatusConflict},
		{"wrapped build in progress", fmt.Errorf("starting build: %w", core.ErrBuildInProgress), http.StatusConflict},
		{"missing project", errors.New("project P-00042 not found"), http.StatusNotFound},
		{"blank name", errors.New("creating project: name must not be empty"), http.StatusUnprocessableEntity},
		{"missing plan", errors.New("starting build: project P-00001 has no plan"), http.StatusUnprocessableEntity},
		{"bad destination", errors.New(`subscribing: destination "ftp://x" is not an http(s) URL`), http.StatusUnprocessableEntity},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := handleError(tc.err)
			var status huma.StatusError
			if !errors.As(mapped, &status) {
				t.Fatalf("expected a status error, got %T", mapped)
			}
			if status.GetStatus() != tc.want {
				t.Errorf("expected %d, got %d", tc.want, status.GetStatus())
			}
		})
	}
}
