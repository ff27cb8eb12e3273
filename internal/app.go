// Package internal provides the App struct that wires all components of
// the forgeloop system together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"forgeloop/internal/cli"
	"forgeloop/internal/core"
	"forgeloop/internal/eventbus"
	"forgeloop/internal/integration"
	"forgeloop/internal/observability"
	"forgeloop/internal/storage"
	"forgeloop/pkg/models"
)

// App holds all service dependencies for the forgeloop system.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig

	// Storage layer
	ProjectStore   storage.ProjectStoreManager
	SubStore       storage.SubscriptionStoreManager
	KnowledgeStore storage.KnowledgeStoreManager
	EventArchive   storage.EventArchive

	// Model integration
	Clients   *integration.RoleClients
	Generator core.GenerationAgent
	Tester    core.TestAgent
	Debugger  core.DebugAgent

	// Event bus
	Bus eventbus.EventBus

	// Core services
	Registry   core.AgentStatusRegistry
	Knowledge  core.KnowledgeAgent
	Healer     core.SelfHealingLoop
	Planner    core.AdaptivePlanner
	Pipeline   core.BuildPipeline
	Controller core.ProjectPhaseController

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of the forgeloop system.
// basePath is the workspace data directory (the .forgeloop directory
// itself, typically resolved by ResolveBasePath).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Storage layer ---
	app.ProjectStore = storage.NewProjectStoreManager(basePath)
	_ = app.ProjectStore.Load() // Non-fatal: empty store on first use.
	app.SubStore = storage.NewSubscriptionStoreManager(basePath)
	_ = app.SubStore.Load() // Non-fatal: empty store on first use.
	app.KnowledgeStore = storage.NewKnowledgeStoreManager(basePath)
	_ = app.KnowledgeStore.Load() // Non-fatal: empty store on first use.

	// The archive creates its directory on open, so skip it until the
	// workspace exists; otherwise every fl invocation would scatter
	// .forgeloop directories around the filesystem.
	if _, statErr := os.Stat(basePath); statErr == nil {
		archive, archiveErr := storage.NewEventArchive(basePath)
		if archiveErr == nil {
			app.EventArchive = archive
		}
	}

	// --- Observability ---
	if app.EventArchive != nil {
		eventLogPath := filepath.Join(basePath, "events", "diagnostics.jsonl")
		eventLog, logErr := observability.NewJSONLEventLog(eventLogPath)
		if logErr == nil {
			app.EventLog = eventLog
		}

		src := &archiveEventSource{archive: app.EventArchive}
		thresholds := observability.DefaultAlertThresholds()
		if cfg.AlertErrorThreshold > 0 {
			thresholds.ErrorThreshold = cfg.AlertErrorThreshold
		}
		if cfg.AlertFailureStreak > 0 {
			thresholds.FailureStreak = cfg.AlertFailureStreak
		}
		app.AlertEngine = observability.NewAlertEngine(src, thresholds)
		app.MetricsCalc = observability.NewMetricsCalculator(src)
	}
	if cfg.AlertSlackWebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.AlertSlackWebhookURL)
	}

	// --- Event bus ---
	busOpts := []eventbus.Option{eventbus.WithLogger(log.Default())}
	if app.EventArchive != nil {
		busOpts = append(busOpts, eventbus.WithArchiver(app.EventArchive))
	}
	app.Bus, err = eventbus.NewBus(app.SubStore, cfg.HistorySize, cfg.DeliveryTimeout(), busOpts...)
	if err != nil {
		return nil, fmt.Errorf("starting event bus: %w", err)
	}

	// --- Model integration ---
	fallback := integration.NewModelClient(fallbackProvider(cfg))
	app.Clients, err = integration.NewRoleClients(cfg.Providers, cfg.RoleProviders, fallback)
	if err != nil {
		return nil, err
	}
	classifier := core.NewPrefixRoleClassifier(cfg.DesignerPaths)
	app.Generator = integration.NewGenerationAgent(app.Clients, classifier)
	app.Tester = integration.NewExecTestRunner(cfg.TestCommand, cfg.TestArgs)
	app.Debugger = integration.NewDebugAgent(app.Clients.For(models.RoleDebugger))

	// --- Core services ---
	var evtLogger core.EventLogger
	if app.EventLog != nil {
		evtLogger = &eventLogAdapter{log: app.EventLog}
	}
	app.Registry = core.NewAgentStatusRegistry()
	idGen := core.NewProjectIDGenerator(basePath)
	app.Knowledge = core.NewKnowledgeAgent(app.KnowledgeStore, evtLogger, 0)
	app.Healer = core.NewSelfHealingLoop(app.Tester, app.Debugger, app.Knowledge, app.Registry, app.Bus, evtLogger, cfg.SelfHealMaxAttempts)
	app.Planner = core.NewAdaptivePlanner(evtLogger)
	app.Pipeline = core.NewBuildPipeline(app.Generator, app.Healer, app.Planner, app.Knowledge, app.Registry, classifier, app.Bus, evtLogger)
	app.Controller = core.NewProjectPhaseController(app.ProjectStore, idGen, app.Generator, app.Pipeline, app.Planner, app.Registry, app.Bus, evtLogger)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Controller = app.Controller
	cli.Registry = app.Registry
	cli.Bus = app.Bus

	var caps []models.AgentCapability
	caps = append(caps, app.Generator.Capabilities()...)
	caps = append(caps, app.Tester.Capabilities()...)
	caps = append(caps, app.Debugger.Capabilities()...)
	caps = append(caps, app.Knowledge.Capabilities()...)
	cli.Capabilities = caps

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	cli.ServerHost = cfg.ServerHost
	cli.ServerPort = cfg.ServerPort

	return app, nil
}

// Close releases resources held by the App: the event bus drains
// in-flight webhook deliveries, then the archive and event log file
// handles are closed. Safe to call with partially initialized fields.
func (a *App) Close() error {
	var firstErr error
	if a.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Bus.Close(ctx); err != nil {
			firstErr = err
		}
		cancel()
	}
	if a.EventArchive != nil {
		if err := a.EventArchive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResolveBasePath determines the workspace data directory. It honors
// FORGELOOP_HOME, then walks up from the working directory looking for
// an existing .forgeloop, and otherwise picks .forgeloop under the
// working directory (created by fl init or on first write).
func ResolveBasePath() string {
	if home := os.Getenv("FORGELOOP_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ".forgeloop"
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, ".forgeloop")
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(cwd, ".forgeloop")
}

// fallbackProvider picks the model endpoint for roles without an
// explicit provider assignment: the provider named "default" if
// configured, the sole configured provider if there is exactly one,
// otherwise a local Ollama-style endpoint.
func fallbackProvider(cfg *models.GlobalConfig) models.ProviderConfig {
	if p, ok := cfg.Providers["default"]; ok {
		return p
	}
	if len(cfg.Providers) == 1 {
		for _, p := range cfg.Providers {
			return p
		}
	}
	return models.ProviderConfig{
		BaseURL: "http://127.0.0.1:11434",
		Model:   "qwen2.5-coder",
	}
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   "INFO",
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// archiveEventSource adapts storage.EventArchive to
// observability.EventSource. The archive returns rows newest first,
// which is the order the metrics and alert engines expect.
type archiveEventSource struct {
	archive storage.EventArchive
}

func (a *archiveEventSource) Events(q observability.EventQuery) ([]models.LifecycleEvent, error) {
	return a.archive.Query(storage.ArchiveFilter{
		Type:  q.Type,
		Since: q.Since,
		Limit: q.Limit,
	})
}
