// Package core contains the orchestration logic for forgeloop: the
// artifact tree, the agent status registry, the adaptive planner, the
// self-healing loop, the build pipeline, the project phase controller,
// and the configuration manager.
package core

import (
	"fmt"
	"strings"

	"forgeloop/pkg/models"
	"github.com/spf13/viper"
)

// ConfigurationManager defines the interface for loading and validating
// workspace configuration from config.yaml.
type ConfigurationManager interface {
	LoadConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML configuration file.
type viperConfigManager struct {
	// basePath is the workspace directory where config.yaml resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// config.yaml from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// defaultGlobalConfig returns a GlobalConfig populated with defaults.
func defaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		SelfHealMaxAttempts:    3,
		HistorySize:            100,
		DeliveryTimeoutSeconds: 10,
		TestCommand:            "go",
		TestArgs:               []string{"vet"},
		ServerHost:             "127.0.0.1",
		ServerPort:             8642,
		AlertErrorThreshold:    5,
		AlertFailureStreak:     3,
	}
}

// LoadConfig reads config.yaml from the base path using Viper. If the
// file does not exist, defaults are returned.
func (cm *viperConfigManager) LoadConfig() (*models.GlobalConfig, error) {
	cfg := defaultGlobalConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("selfheal.max_attempts", cfg.SelfHealMaxAttempts)
	v.SetDefault("eventbus.history_size", cfg.HistorySize)
	v.SetDefault("eventbus.delivery_timeout_seconds", cfg.DeliveryTimeoutSeconds)
	v.SetDefault("test.command", cfg.TestCommand)
	v.SetDefault("test.args", cfg.TestArgs)
	v.SetDefault("server.host", cfg.ServerHost)
	v.SetDefault("alerts.error_threshold", cfg.AlertErrorThreshold)
	v.SetDefault("alerts.failure_streak", cfg.AlertFailureStreak)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file found, return defaults.
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config.yaml: %w", err)
	}

	// Map nested YAML keys to flat GlobalConfig fields.
	cfg.SelfHealMaxAttempts = v.GetInt("selfheal.max_attempts")
	cfg.HistorySize = v.GetInt("eventbus.history_size")
	cfg.DeliveryTimeoutSeconds = v.GetInt("eventbus.delivery_timeout_seconds")
	cfg.DesignerPaths = v.GetStringSlice("pipeline.designer_paths")
	cfg.RoleProviders = v.GetStringMapString("pipeline.role_providers")
	cfg.TestCommand = v.GetString("test.command")
	cfg.TestArgs = v.GetStringSlice("test.args")
	cfg.ServerHost = v.GetString("server.host")
	cfg.AlertErrorThreshold = v.GetInt("alerts.error_threshold")
	cfg.AlertFailureStreak = v.GetInt("alerts.failure_streak")
	cfg.AlertSlackWebhookURL = v.GetString("alerts.slack_webhook_url")

	// Use IsSet to distinguish "not set" (use the default port) from
	// "explicitly set to 0" (bind an ephemeral port).
	if v.IsSet("server.port") {
		cfg.ServerPort = v.GetInt("server.port")
	}

	// Parse the providers section.
	rawProviders := v.GetStringMap("providers")
	if len(rawProviders) > 0 {
		cfg.Providers = make(map[string]models.ProviderConfig, len(rawProviders))
		for name, raw := range rawProviders {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			pc := models.ProviderConfig{}
			if s, ok := m["base_url"].(string); ok {
				pc.BaseURL = s
			}
			if s, ok := m["model"].(string); ok {
				pc.Model = s
			}
			if n, ok := m["timeout_seconds"].(int); ok {
				pc.TimeoutSeconds = n
			}
			cfg.Providers[name] = pc
		}
	}

	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and
// returns a clear error message identifying every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.SelfHealMaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("selfheal.max_attempts must be at least 1, got %d", cfg.SelfHealMaxAttempts))
	}

	if cfg.HistorySize < 1 {
		errs = append(errs, fmt.Sprintf("eventbus.history_size must be at least 1, got %d", cfg.HistorySize))
	}

	if cfg.DeliveryTimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("eventbus.delivery_timeout_seconds must be non-negative, got %d", cfg.DeliveryTimeoutSeconds))
	}

	if cfg.ServerPort < 0 || cfg.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is invalid, must be between 0 and 65535", cfg.ServerPort))
	}

	if cfg.TestCommand == "" {
		errs = append(errs, "test.command must not be empty")
	}

	for name, pc := range cfg.Providers {
		if pc.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.base_url must not be empty", name))
		}
	}

	for role, provider := range cfg.RoleProviders {
		if provider == "" {
			errs = append(errs, fmt.Sprintf("pipeline.role_providers.%s must name a provider", role))
			continue
		}
		if len(cfg.Providers) > 0 {
			if _, ok := cfg.Providers[provider]; !ok {
				errs = append(errs, fmt.Sprintf("pipeline.role_providers.%s references unknown provider %q", role, provider))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
