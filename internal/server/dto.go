package server

import (
	"time"

	"forgeloop/internal/core"
	"forgeloop/pkg/models"
)

// Request payloads

type CreateProjectRequest struct {
	Name string `json:"name" minLength:"1"`
	Idea string `json:"idea,omitempty"`
}

type EmitEventRequest struct {
	Type    string         `json:"type"`
	Source  string         `json:"source,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type CreateWebhookRequest struct {
	Destination string            `json:"destination" format:"uri"`
	EventTypes  []string          `json:"event_types,omitempty"`
	Secret      string            `json:"secret,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Response payloads

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type AgentsResponse struct {
	Agents       []models.Agent           `json:"agents"`
	Capabilities []models.AgentCapability `json:"capabilities,omitempty"`
}

type ProjectResponse struct {
	ID              string                      `json:"id"`
	Name            string                      `json:"name"`
	Phase           string                      `json:"phase"`
	Plan            string                      `json:"plan,omitempty"`
	BuildInProgress bool                        `json:"build_in_progress"`
	LastError       string                      `json:"last_error,omitempty"`
	Artifacts       []models.ArtifactDescriptor `json:"artifacts,omitempty"`
	Created         string                      `json:"created" format:"date-time"`
	Updated         string                      `json:"updated" format:"date-time"`
}

type EventsResponse struct {
	Events []models.LifecycleEvent `json:"events"`
}

type EmitEventResponse struct {
	Accepted bool   `json:"accepted"`
	Type     string `json:"type"`
}

// projectResponse flattens the persisted artifact tree into the
// descriptor listing the API exposes; artifact code never leaves the
// store through this surface.
func projectResponse(p *models.ProjectState) (ProjectResponse, error) {
	resp := ProjectResponse{
		ID:              p.ID,
		Name:            p.Name,
		Phase:           string(p.Phase),
		Plan:            p.Plan,
		BuildInProgress: p.BuildInProgress,
		LastError:       p.LastError,
		Created:         p.Created.UTC().Format(time.RFC3339),
		Updated:         p.Updated.UTC().Format(time.RFC3339),
	}
	if len(p.Artifacts) == 0 {
		return resp, nil
	}
	tree, err := core.NewArtifactTreeFrom(p.Artifacts)
	if err != nil {
		return ProjectResponse{}, err
	}
	resp.Artifacts = tree.Flatten()
	return resp, nil
}
