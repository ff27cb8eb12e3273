// Package server exposes the forgeloop orchestration API over HTTP.
// Routes are registered with huma on a chi router; request and
// response schemas live in dto.go.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"forgeloop/internal/core"
	"forgeloop/internal/eventbus"
	"forgeloop/pkg/models"
)

// Config carries the services the API surfaces.
type Config struct {
	Controller   core.ProjectPhaseController
	Registry     core.AgentStatusRegistry
	Bus          eventbus.EventBus
	Capabilities []models.AgentCapability
	Version      string
}

// New returns an HTTP handler exposing the forgeloop API under /api.
func New(cfg Config) (http.Handler, error) {
	if cfg.Controller == nil || cfg.Registry == nil || cfg.Bus == nil {
		return nil, errors.New("building server: controller, registry, and bus are required")
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("forgeloop API", version)
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, "/api")

	started := time.Now().UTC()
	registerHealth(group, version, started)
	registerAgents(group, cfg.Registry, cfg.Capabilities)
	registerProjects(group, cfg.Controller)
	registerEvents(group, cfg.Bus)
	registerWebhooks(group, cfg.Bus)

	return router, nil
}

// handleError maps domain errors onto HTTP statuses: missing resources
// to 404, duplicate or concurrent-build conflicts to 409, rejected
// input to 422, everything else to 500.
func handleError(err error) error {
	if err == nil {
		return nil
	}
	var notFound *core.NotFoundError
	if errors.As(err, &notFound) {
		return huma.Error404NotFound(err.Error())
	}
	var duplicate *core.DuplicatePathError
	if errors.As(err, &duplicate) {
		return huma.Error409Conflict(err.Error())
	}
	if errors.Is(err, core.ErrBuildInProgress) {
		return huma.Error409Conflict(err.Error())
	}

	lowered := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowered, "not found"):
		return huma.Error404NotFound(err.Error())
	case strings.Contains(lowered, "must not be empty"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "has no plan"),
		strings.Contains(lowered, "is not an http"):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

func registerHealth(api huma.API, version string, started time.Time) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:        "ok",
			Version:       version,
			UptimeSeconds: int64(time.Since(started).Seconds()),
		}}, nil
	})
}

func registerAgents(api huma.API, registry core.AgentStatusRegistry, capabilities []models.AgentCapability) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "Agent statuses and declared capabilities",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AgentsResponse `json:"body"`
	}, error) {
		return &struct {
			Body AgentsResponse `json:"body"`
		}{Body: AgentsResponse{
			Agents:       registry.Snapshot(),
			Capabilities: capabilities,
		}}, nil
	})
}

func registerProjects(api huma.API, controller core.ProjectPhaseController) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []models.ProjectSummary `json:"body"`
	}, error) {
		items, err := controller.ListProjects()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []models.ProjectSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		project, err := controller.CreateProject(input.Body.Name, input.Body.Idea)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := projectResponse(project)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		project, err := controller.Project(input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := projectResponse(project)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trigger-build",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/build",
		Summary:     "Run the full build for a project",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		project, err := controller.StartBuild(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := projectResponse(project)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, bus eventbus.EventBus) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent lifecycle events",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Events: bus.Recent(input.Limit)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "emit-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Ingest an external lifecycle event",
		Description:   "Accepts milestones raised outside the core, such as deployment progress, and forwards them through the event bus.",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body EmitEventRequest `json:"body"`
	}) (*struct {
		Body EmitEventResponse `json:"body"`
	}, error) {
		eventType := models.EventType(input.Body.Type)
		if !eventType.Valid() {
			return nil, huma.Error422UnprocessableEntity("unknown event type " + input.Body.Type)
		}
		source := input.Body.Source
		if source == "" {
			source = "external"
		}
		if err := bus.Emit(eventType, input.Body.Payload, source); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmitEventResponse `json:"body"`
		}{Body: EmitEventResponse{Accepted: true, Type: string(eventType)}}, nil
	})
}

func registerWebhooks(api huma.API, bus eventbus.EventBus) {
	huma.Register(api, huma.Operation{
		OperationID: "list-webhooks",
		Method:      http.MethodGet,
		Path:        "/webhooks",
		Summary:     "List webhook subscriptions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []models.WebhookSubscription `json:"body"`
	}, error) {
		return &struct {
			Body []models.WebhookSubscription `json:"body"`
		}{Body: bus.Subscriptions()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-webhook",
		Method:        http.MethodPost,
		Path:          "/webhooks",
		Summary:       "Register a webhook subscription",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateWebhookRequest `json:"body"`
	}) (*struct {
		Body models.WebhookSubscription `json:"body"`
	}, error) {
		eventTypes := make([]models.EventType, 0, len(input.Body.EventTypes))
		for _, et := range input.Body.EventTypes {
			eventTypes = append(eventTypes, models.EventType(et))
		}
		sub, err := bus.Subscribe(input.Body.Destination, eventTypes, input.Body.Secret, input.Body.Headers)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body models.WebhookSubscription `json:"body"`
		}{Body: *sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-webhook",
		Method:        http.MethodDelete,
		Path:          "/webhooks/{subscription_id}",
		Summary:       "Remove a webhook subscription",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		SubscriptionID string `path:"subscription_id"`
	}) (*struct{}, error) {
		// Idempotent: deleting an unknown id is still 204.
		if _, err := bus.Unsubscribe(input.SubscriptionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
