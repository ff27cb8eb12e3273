package models

import "time"

// ProviderConfig describes one named model provider endpoint.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Model          string `yaml:"model" mapstructure:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration, defaulting to 60s.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// GlobalConfig holds workspace-wide settings read from config.yaml via Viper.
type GlobalConfig struct {
	SelfHealMaxAttempts    int                       `yaml:"selfheal_max_attempts" mapstructure:"selfheal_max_attempts"`
	HistorySize            int                       `yaml:"history_size" mapstructure:"history_size"`
	DeliveryTimeoutSeconds int                       `yaml:"delivery_timeout_seconds" mapstructure:"delivery_timeout_seconds"`
	DesignerPaths          []string                  `yaml:"designer_paths,omitempty" mapstructure:"designer_paths"`
	Providers              map[string]ProviderConfig `yaml:"providers,omitempty" mapstructure:"providers"`
	RoleProviders          map[string]string         `yaml:"role_providers,omitempty" mapstructure:"role_providers"`
	TestCommand            string                    `yaml:"test_command" mapstructure:"test_command"`
	TestArgs               []string                  `yaml:"test_args,omitempty" mapstructure:"test_args"`
	ServerHost             string                    `yaml:"server_host" mapstructure:"server_host"`
	ServerPort             int                       `yaml:"server_port" mapstructure:"server_port"`
	AlertErrorThreshold    int                       `yaml:"alert_error_threshold" mapstructure:"alert_error_threshold"`
	AlertFailureStreak     int                       `yaml:"alert_failure_streak" mapstructure:"alert_failure_streak"`
	AlertSlackWebhookURL   string                    `yaml:"alert_slack_webhook_url,omitempty" mapstructure:"alert_slack_webhook_url"`
}

// DeliveryTimeout returns the webhook delivery timeout as a duration.
func (c GlobalConfig) DeliveryTimeout() time.Duration {
	if c.DeliveryTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}
