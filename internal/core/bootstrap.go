package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// BootstrapResult holds the outputs of a workspace bootstrap operation.
type BootstrapResult struct {
	BasePath   string
	ConfigPath string
	// Created lists the directories created by this run; existing
	// directories are left untouched.
	Created []string
}

// WorkspaceBootstrapper defines the interface for initializing the
// forgeloop workspace directory layout and default configuration.
// Bootstrapping is idempotent: re-running it never overwrites an
// existing config file or disturbs existing data.
type WorkspaceBootstrapper interface {
	Bootstrap() (*BootstrapResult, error)
}

// workspaceBootstrapper implements WorkspaceBootstrapper.
type workspaceBootstrapper struct {
	basePath string
}

// NewWorkspaceBootstrapper creates a WorkspaceBootstrapper rooted at
// basePath.
func NewWorkspaceBootstrapper(basePath string) WorkspaceBootstrapper {
	return &workspaceBootstrapper{basePath: basePath}
}

// defaultConfigYAML is written on first bootstrap so every tunable is
// discoverable in place.
const defaultConfigYAML = `# forgeloop workspace configuration
selfheal:
  max_attempts: 3

eventbus:
  history_size: 100
  delivery_timeout_seconds: 10

pipeline:
  # Path prefixes routed to the designer role; everything else goes to
  # the engineer role.
  designer_paths: []
  # role_providers:
  #   engineer: default
  #   designer: default

# providers:
#   default:
#     base_url: http://127.0.0.1:11434
#     model: qwen2.5-coder
#     timeout_seconds: 60

test:
  command: go
  args: [vet]

server:
  host: 127.0.0.1
  port: 8642

alerts:
  error_threshold: 5
  failure_streak: 3
  # slack_webhook_url: https://hooks.slack.com/services/...
`

// Bootstrap creates the workspace directory structure and, when absent,
// the default config.yaml.
func (b *workspaceBootstrapper) Bootstrap() (*BootstrapResult, error) {
	result := &BootstrapResult{BasePath: b.basePath}

	dirs := []string{
		b.basePath,
		filepath.Join(b.basePath, "projects"),
		filepath.Join(b.basePath, "knowledge"),
		filepath.Join(b.basePath, "webhooks"),
		filepath.Join(b.basePath, "events"),
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
		result.Created = append(result.Created, dir)
	}

	configPath := filepath.Join(b.basePath, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o600); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	result.ConfigPath = configPath

	return result, nil
}
