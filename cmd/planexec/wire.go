package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/governance"
	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/oracle"
	"github.com/davidx33/multi-agent-plan-execute/internal/remote"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
	"github.com/davidx33/multi-agent-plan-execute/pkg/config"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultConfigPath = "planexec.yaml"

var errNoProvider = errors.New("no enabled provider found in config")

// modelFactory builds the chat model for the configured provider and returns it
// with the model name used in cost events.
type modelFactory func(cfg *config.Config) (llms.Model, string, error)

type wireOptions struct {
	ConfigPath string
	// ConfigSet is false when the path is the built-in default, in which case a
	// missing file falls back to config.Default.
	ConfigSet bool
	DBPath    string
	Memory    bool
}

type app struct {
	cfg     *config.Config
	store   store.Store
	tracker *observability.Tracker
	logger  *observability.Logger

	// orch is nil when no model could be built; orchErr says why. Commands that
	// only read checkpoints still work in that case.
	orch    *agent.Orchestrator
	orchErr error

	interactive bool
	newThreadID func() string
	closers     []io.Closer
}

func wireApp(opts wireOptions, models modelFactory) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.Memory.Type = "sqlite"
		cfg.Memory.Path = opts.DBPath
	}
	if opts.Memory {
		cfg.Memory.Type = "memory"
	}

	a := &app{
		cfg:         cfg,
		tracker:     observability.NewTracker(),
		interactive: observability.IsInteractive(),
		newThreadID: uuid.NewString,
	}

	events, closer, err := eventSink(cfg.Logging.Events)
	if err != nil {
		return nil, fmt.Errorf("wire event log: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.logger = observability.NewLoggerTo(events, cfg.Logging.LLMLog)

	a.store, err = openStore(cfg.Memory)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("wire checkpoint store: %w", err)
	}
	a.closers = append(a.closers, a.store)

	a.orch, a.orchErr = wireOrchestrator(cfg, a.store, a.logger, a.tracker, models)
	return a, nil
}

// Orchestrator returns the session driver, or the reason it could not be built.
func (a *app) Orchestrator() (*agent.Orchestrator, error) {
	if a.orch == nil {
		return nil, a.orchErr
	}
	return a.orch, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadConfig(opts wireOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !opts.ConfigSet {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(cfg config.MemoryConfig) (store.Store, error) {
	switch cfg.Type {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		return store.NewSQLiteStore(cfg.Path)
	}
}

func eventSink(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "", "off":
		return io.Discard, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return observability.NewTermWriter(), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func wireOrchestrator(cfg *config.Config, st store.CheckpointStore, logger *observability.Logger, tracker *observability.Tracker, models modelFactory) (*agent.Orchestrator, error) {
	model, modelName, err := models(cfg)
	if err != nil {
		return nil, err
	}

	oracleOpts := []oracle.Option{oracle.WithLogger(logger), oracle.WithModelName(modelName)}
	if _, p := cfg.GetDefaultProvider(); p.ForceTool != nil {
		oracleOpts = append(oracleOpts, oracle.WithForceTool(*p.ForceTool))
	}

	registry, err := wireAgents(cfg)
	if err != nil {
		return nil, err
	}

	policy, err := governance.NewPolicyEngine(cfg.DeniedCapabilities(), cfg.Policy.DeniedPatterns)
	if err != nil {
		return nil, fmt.Errorf("wire dispatch policy: %w", err)
	}

	return agent.NewOrchestrator(agent.Deps{
		Oracle:        oracle.New(model, oracleOpts...),
		Agents:        registry,
		Store:         st,
		Policy:        policy,
		Prompts:       agent.NewPromptManager(cfg.App.PromptsDir),
		Logger:        logger,
		Tracker:       tracker,
		MaxIterations: cfg.Orchestrator.MaxIterations,
		StaleAfter:    cfg.Orchestrator.StaleAfter.Duration,
	})
}

func wireAgents(cfg *config.Config) (*remote.Registry, error) {
	registry := remote.NewRegistry()
	for capability, ac := range cfg.AgentEndpoints() {
		var opts []remote.Option
		if ac.AssistantID != "" {
			opts = append(opts, remote.WithAssistantID(ac.AssistantID))
		}
		if ac.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(ac.APIKey))
		}
		if ac.Timeout.Duration > 0 {
			opts = append(opts, remote.WithTimeout(ac.Timeout.Duration))
		}
		if err := registry.Register(capability, remote.NewHTTPAgent(string(capability), ac.URL, opts...)); err != nil {
			return nil, err
		}
	}
	for _, c := range registry.Missing() {
		log.Printf("Warning: no remote agent configured for %s; plans using it will fail", c)
	}
	return registry, nil
}

// buildModel initializes the LLM for the first enabled provider.
func buildModel(cfg *config.Config) (llms.Model, string, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, "", errNoProvider
	}

	var (
		llm llms.Model
		err error
	)
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(pCfg.APIKey),
			anthropic.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(pCfg.Model)}
		if pCfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(pCfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, "", fmt.Errorf("provider %s is not supported", pName)
	}
	if err != nil {
		return nil, "", fmt.Errorf("init %s provider: %w", pName, err)
	}
	return llm, pCfg.Model, nil
}
