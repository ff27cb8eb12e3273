package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"forgeloop/pkg/models"
)

// ModelClient talks to one named model provider endpoint. The wire
// protocol is a minimal JSON completion API shared by every provider:
// POST /api/generate with {model, prompt}, replying {content}.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Health(ctx context.Context) error
}

type httpModelClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewModelClient creates a ModelClient for the given provider config.
func NewModelClient(cfg models.ProviderConfig) ModelClient {
	return &httpModelClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Content string `json:"content"`
}

// Complete sends the prompt to the provider and returns the generated
// content.
func (c *httpModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling model %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading generate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model %s: status %d: %s", c.model, resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	if result.Content == "" {
		return "", fmt.Errorf("model %s returned no content", c.model)
	}

	return result.Content, nil
}

// Health verifies the provider endpoint is reachable.
func (c *httpModelClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider health check: status %d", resp.StatusCode)
	}
	return nil
}

// RoleClients maps agent roles to provider clients. Roles without an
// explicit mapping fall back to the default client.
type RoleClients struct {
	byRole   map[models.AgentRole]ModelClient
	fallback ModelClient
}

// NewRoleClients builds per-role clients from the provider registry and
// the role→provider assignment. Unknown provider names are an error;
// fallback must not be nil.
func NewRoleClients(providers map[string]models.ProviderConfig, roleProviders map[string]string, fallback ModelClient) (*RoleClients, error) {
	if fallback == nil {
		return nil, fmt.Errorf("building role clients: fallback client is required")
	}
	rc := &RoleClients{
		byRole:   make(map[models.AgentRole]ModelClient),
		fallback: fallback,
	}
	for role, providerName := range roleProviders {
		cfg, ok := providers[providerName]
		if !ok {
			return nil, fmt.Errorf("building role clients: role %s references unknown provider %q", role, providerName)
		}
		rc.byRole[models.AgentRole(role)] = NewModelClient(cfg)
	}
	return rc, nil
}

// For returns the client assigned to a role, or the fallback.
func (rc *RoleClients) For(role models.AgentRole) ModelClient {
	if c, ok := rc.byRole[role]; ok {
		return c
	}
	return rc.fallback
}
