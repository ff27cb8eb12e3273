package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forgeloop/pkg/models"
)

// --- Helper ---

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// --- LoadConfig tests ---

func TestLoadConfig_Defaults_WhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cm := NewConfigurationManager(dir)

	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SelfHealMaxAttempts != 3 {
		t.Errorf("SelfHealMaxAttempts = %d, want 3", cfg.SelfHealMaxAttempts)
	}
	if cfg.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", cfg.HistorySize)
	}
	if cfg.DeliveryTimeoutSeconds != 10 {
		t.Errorf("DeliveryTimeoutSeconds = %d, want 10", cfg.DeliveryTimeoutSeconds)
	}
	if cfg.TestCommand != "go" {
		t.Errorf("TestCommand = %q, want %q", cfg.TestCommand, "go")
	}
	if len(cfg.TestArgs) != 1 || cfg.TestArgs[0] != "vet" {
		t.Errorf("TestArgs = %v, want [vet]", cfg.TestArgs)
	}
	if cfg.ServerHost != "127.0.0.1" {
		t.Errorf("ServerHost = %q, want %q", cfg.ServerHost, "127.0.0.1")
	}
	if cfg.ServerPort != 8642 {
		t.Errorf("ServerPort = %d, want 8642", cfg.ServerPort)
	}
	if cfg.AlertErrorThreshold != 5 {
		t.Errorf("AlertErrorThreshold = %d, want 5", cfg.AlertErrorThreshold)
	}
	if cfg.AlertFailureStreak != 3 {
		t.Errorf("AlertFailureStreak = %d, want 3", cfg.AlertFailureStreak)
	}
}

func TestLoadConfig_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
selfheal:
  max_attempts: 5
eventbus:
  history_size: 50
  delivery_timeout_seconds: 3
pipeline:
  designer_paths:
    - ui
    - styles
  role_providers:
    engineer: local
test:
  command: make
  args:
    - check
server:
  host: 0.0.0.0
  port: 9000
providers:
  local:
    base_url: http://127.0.0.1:11434
    model: codellama
    timeout_seconds: 120
alerts:
  error_threshold: 10
  failure_streak: 4
`)

	cm := NewConfigurationManager(dir)
	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SelfHealMaxAttempts != 5 {
		t.Errorf("SelfHealMaxAttempts = %d, want 5", cfg.SelfHealMaxAttempts)
	}
	if cfg.HistorySize != 50 {
		t.Errorf("HistorySize = %d, want 50", cfg.HistorySize)
	}
	if cfg.DeliveryTimeoutSeconds != 3 {
		t.Errorf("DeliveryTimeoutSeconds = %d, want 3", cfg.DeliveryTimeoutSeconds)
	}
	if len(cfg.DesignerPaths) != 2 || cfg.DesignerPaths[0] != "ui" {
		t.Errorf("DesignerPaths = %v, want [ui styles]", cfg.DesignerPaths)
	}
	if cfg.RoleProviders["engineer"] != "local" {
		t.Errorf("RoleProviders[engineer] = %q, want %q", cfg.RoleProviders["engineer"], "local")
	}
	if cfg.TestCommand != "make" {
		t.Errorf("TestCommand = %q, want %q", cfg.TestCommand, "make")
	}
	if cfg.ServerHost != "0.0.0.0" {
		t.Errorf("ServerHost = %q, want %q", cfg.ServerHost, "0.0.0.0")
	}
	if cfg.ServerPort != 9000 {
		t.Errorf("ServerPort = %d, want 9000", cfg.ServerPort)
	}

	provider, ok := cfg.Providers["local"]
	if !ok {
		t.Fatal("expected provider local")
	}
	if provider.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("BaseURL = %q, want the configured URL", provider.BaseURL)
	}
	if provider.Model != "codellama" {
		t.Errorf("Model = %q, want codellama", provider.Model)
	}
	if provider.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d, want 120", provider.TimeoutSeconds)
	}

	if cfg.AlertErrorThreshold != 10 {
		t.Errorf("AlertErrorThreshold = %d, want 10", cfg.AlertErrorThreshold)
	}
	if cfg.AlertFailureStreak != 4 {
		t.Errorf("AlertFailureStreak = %d, want 4", cfg.AlertFailureStreak)
	}
}

func TestLoadConfig_PartialConfig_FillsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
selfheal:
  max_attempts: 7
`)

	cm := NewConfigurationManager(dir)
	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SelfHealMaxAttempts != 7 {
		t.Errorf("SelfHealMaxAttempts = %d, want 7", cfg.SelfHealMaxAttempts)
	}
	// Remaining fields should have defaults.
	if cfg.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want default 100", cfg.HistorySize)
	}
	if cfg.TestCommand != "go" {
		t.Errorf("TestCommand = %q, want default %q", cfg.TestCommand, "go")
	}
	if cfg.ServerPort != 8642 {
		t.Errorf("ServerPort = %d, want default 8642", cfg.ServerPort)
	}
}

func TestLoadConfig_ExplicitZeroPort(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
server:
  port: 0
`)

	cm := NewConfigurationManager(dir)
	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zero means an ephemeral port, not "use the default".
	if cfg.ServerPort != 0 {
		t.Errorf("ServerPort = %d, want 0", cfg.ServerPort)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "selfheal: [unclosed")

	cm := NewConfigurationManager(dir)
	if _, err := cm.LoadConfig(); err == nil {
		t.Error("malformed YAML should fail loudly, not fall back to defaults")
	}
}

// --- ValidateConfig tests ---

func TestValidateConfig_AcceptsDefaults(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())
	if err := cm.ValidateConfig(defaultGlobalConfig()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidateConfig_RejectsBadValues(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg := defaultGlobalConfig()
	cfg.SelfHealMaxAttempts = 0
	cfg.HistorySize = -1
	cfg.ServerPort = 70000
	cfg.TestCommand = ""

	err := cm.ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, fragment := range []string{"max_attempts", "history_size", "server.port", "test.command"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("expected error to mention %s, got %v", fragment, err)
		}
	}
}

func TestValidateConfig_RejectsEmptyProviderURL(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg := defaultGlobalConfig()
	cfg.Providers = map[string]models.ProviderConfig{
		"local": {Model: "codellama"},
	}

	err := cm.ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "providers.local.base_url") {
		t.Errorf("expected base_url complaint, got %v", err)
	}
}

func TestValidateConfig_RejectsUnknownRoleProvider(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg := defaultGlobalConfig()
	cfg.Providers = map[string]models.ProviderConfig{
		"local": {BaseURL: "http://127.0.0.1:11434"},
	}
	cfg.RoleProviders = map[string]string{"engineer": "cloud"}

	err := cm.ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("expected unknown provider complaint, got %v", err)
	}
}

func TestValidateConfig_NilConfig(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())
	if err := cm.ValidateConfig(nil); err == nil {
		t.Error("nil config should be rejected")
	}
}
