package main

import (
	"context"
	"fmt"
	"log/slog"

	"jarvis/internal/adapter/llm"
	"jarvis/internal/adapter/store"
	"jarvis/internal/adapter/tool"
	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
	"jarvis/internal/infra/logger"
	"jarvis/internal/infra/tracer"
	"jarvis/internal/usecase"
)

// app holds the components shared by the chat and serve commands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	tools    *tool.Registry
	engines  *usecase.EngineCache
	sessions domain.SessionStore
	metrics  *usecase.TurnMetrics
	locker   *usecase.SessionLocker

	closers []func() error
}

// newApp loads the config, applies overrides and builds the shared stack.
func newApp(ctx context.Context, configPath string, overrides config.CLIOverrides) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := config.ApplyCLIOverrides(cfg, overrides); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg, metrics: &usecase.TurnMetrics{}, locker: usecase.NewSessionLocker()}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, closeLog)

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return shutdownTracer(context.Background()) })

	a.tools = tool.NewRegistry(log)
	if err := tool.RegisterBuiltins(a.tools, cfg.Tools, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("tools: %w", err)
	}

	provider := llm.New(cfg.LLM, log)
	var classifier *usecase.ErrorClassifier
	if cfg.LLM.Retry {
		classifier = usecase.NewErrorClassifier()
	}
	a.engines = usecase.NewEngineCache(func(key usecase.EngineKey) (domain.Engine, error) {
		model := key.Model
		if model == "" {
			model = cfg.LLM.Model
		}
		log.Debug("building engine", "model", model)
		return usecase.NewToolLoopEngine(usecase.EngineDeps{
			LLM:             provider,
			Tools:           a.tools,
			Model:           model,
			Temperature:     cfg.LLM.Temperature,
			MaxTokens:       cfg.LLM.MaxTokens,
			Logger:          log,
			ErrorClassifier: classifier,
			Metrics:         a.metrics,
		}), nil
	}, cfg.Agent.EngineCacheSize)

	sessions, closeSessions, err := store.OpenSessions(cfg.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.sessions = sessions
	a.closers = append(a.closers, closeSessions)

	log.Info("jarvis initialized",
		"version", version,
		"model", cfg.LLM.Model,
		"store", cfg.Store.Backend,
		"tools", a.tools.Names(),
	)
	return a, nil
}

// defaults returns the chat settings taken from the agent config.
func (a *app) defaults() domain.ChatSettings {
	return domain.ChatSettings{
		SystemPrompt:  a.cfg.Agent.SystemPrompt,
		Model:         a.cfg.LLM.Model,
		HistoryWindow: a.cfg.Agent.HistoryWindow,
		MaxToolSteps:  a.cfg.Agent.MaxToolSteps,
	}
}

func (a *app) chatService() *usecase.ChatService {
	sentinels := domain.Sentinels{
		ToolLimit: a.cfg.Agent.Sentinels.ToolLimit,
		NoAnswer:  a.cfg.Agent.Sentinels.NoAnswer,
	}
	return usecase.NewChatService(usecase.ChatDeps{
		Sessions:  a.sessions,
		Engines:   a.engines,
		Locker:    a.locker,
		Logger:    a.log,
		Sentinels: sentinels,
		Metrics:   a.metrics,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("shutdown", "error", err)
		}
	}
	a.closers = nil
}
