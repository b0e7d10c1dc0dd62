package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"hearth/internal/agent"
	"hearth/internal/channels"
	"hearth/internal/config"
	memctx "hearth/internal/context"
	"hearth/internal/embedding"
	"hearth/internal/llm"
	"hearth/internal/logging"
	"hearth/internal/retrieval"
	"hearth/internal/scheduler"
	"hearth/internal/store"
	"hearth/internal/tools"
	"hearth/internal/tools/cron"
	"hearth/internal/tools/file"
	"hearth/internal/tools/memory"
	"hearth/internal/tools/shell"
	"hearth/internal/tools/system"
	"hearth/internal/tools/web"
)

// app holds the wired runtime for one process.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *store.Store
	retriever  *retrieval.Retriever
	registry   *tools.Registry
	client     llm.Client
	builder    *memctx.Builder
	summarizer *agent.Summarizer
	scheduler  *scheduler.Scheduler
	terminal   *channels.Terminal
}

// buildApp loads config and wires every component.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Observability.LogLevel, cfg.LogFile())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Info("hearth starting",
		zap.String("model", cfg.Agent.Model),
		zap.String("data_dir", cfg.Agent.DataDir),
		zap.String("embedding_provider", cfg.Embedding.Provider))

	st, err := store.Open(cfg.DBPath(), logger.Named("store"))
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding engine unavailable, using keyword recall", zap.Error(err))
		engine = nil
	}
	index, err := retrieval.OpenIndex(cfg.VectorPath(), engine, logger.Named("index"))
	if err != nil {
		st.Close()
		return nil, err
	}
	retriever := retrieval.NewRetriever(index, logger.Named("retrieval"))

	client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey, logger.Named("llm"))
	if err != nil {
		retriever.Close()
		st.Close()
		return nil, err
	}

	registry, err := buildRegistry(cfg, st, retriever, logger)
	if err != nil {
		retriever.Close()
		st.Close()
		return nil, err
	}

	builder := memctx.NewBuilder(st, st, retriever, cfg.Memory.ContextBudgetTokens, logger.Named("context"))
	summarizer := agent.NewSummarizer(client, cfg.Agent.HaikuModel, logger.Named("summarizer"))

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		retriever:  retriever,
		registry:   registry,
		client:     client,
		builder:    builder,
		summarizer: summarizer,
	}

	a.scheduler = scheduler.New(a.runHeadless, st, logger.Named("scheduler"))
	return a, nil
}

func buildRegistry(cfg *config.Config, st *store.Store, retriever *retrieval.Retriever, logger *zap.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger.Named("tools"))

	register := func(ts ...*tools.Tool) error {
		for _, t := range ts {
			if err := registry.Register(t); err != nil {
				return err
			}
		}
		return nil
	}

	sandbox, err := file.NewSandbox(filepath.Join(cfg.Agent.DataDir, "sandbox"))
	if err != nil {
		return nil, err
	}

	memTools := memory.NewToolset(st, retriever, retriever.Enqueue)
	cronTool := cron.NewToolset(st, nil)

	if err := register(shell.New(), web.New(), system.New(), cronTool.Tool()); err != nil {
		return nil, err
	}
	if err := register(sandbox.Tools()...); err != nil {
		return nil, err
	}
	if err := register(memTools.Tools()...); err != nil {
		return nil, err
	}
	return registry, nil
}

// StartScheduler binds the live scheduler to the cron tool and starts it.
func (a *app) StartScheduler() error {
	cronTool := cron.NewToolset(a.store, a.scheduler)
	if err := a.registry.Register(cronTool.Tool()); err != nil {
		return err
	}
	return a.scheduler.Start()
}

// RunTerminal starts the interactive REPL.
func (a *app) RunTerminal(ctx context.Context, userID string) error {
	// The terminal doubles as the confirmer so approvals happen inline.
	a.terminal = channels.NewTerminal(nil, a.store, a.summarizer, a.retriever.Enqueue,
		os.Stdin, os.Stdout, a.logger.Named("terminal"))
	runtime := agent.NewRuntime(a.client, a.registry, a.builder, a.store,
		a.terminal, a.cfg, a.logger.Named("agent"))
	a.terminal.SetRunner(runtime)

	return a.terminal.Run(ctx, userID)
}

// Ask runs one message through a user session and returns the reply.
func (a *app) Ask(ctx context.Context, userID, message string) (string, error) {
	sessionID, err := a.store.GetOrCreateSession("terminal", userID)
	if err != nil {
		return "", err
	}

	terminal := channels.NewTerminal(nil, a.store, a.summarizer, a.retriever.Enqueue,
		os.Stdin, os.Stdout, a.logger.Named("terminal"))
	runtime := agent.NewRuntime(a.client, a.registry, a.builder, a.store,
		terminal, a.cfg, a.logger.Named("agent"))

	res, err := runtime.Run(ctx, sessionID, message, tools.ContextUserSession)
	if err != nil {
		return "", err
	}
	if err := a.store.AppendTurn(sessionID, "user", message); err != nil {
		a.logger.Warn("failed to persist user turn", zap.Error(err))
	}
	if err := a.store.AppendTurn(sessionID, "assistant", res.Text); err != nil {
		a.logger.Warn("failed to persist assistant turn", zap.Error(err))
	}
	a.retriever.Enqueue(retrieval.Document{
		DocID: "turn:" + res.Trace.TraceID,
		Text:  fmt.Sprintf("user: %s\nassistant: %s", message, res.Text),
	})
	return res.Text, nil
}

// runHeadless executes a scheduled prompt with no one available to confirm.
func (a *app) runHeadless(ctx context.Context, jobID, prompt string) error {
	sessionID, err := a.store.GetOrCreateSession("cron", jobID)
	if err != nil {
		return err
	}

	runtime := agent.NewRuntime(a.client, a.registry, a.builder, a.store,
		nil, a.cfg, a.logger.Named("agent"))
	res, err := runtime.Run(ctx, sessionID, prompt, tools.ContextHeadless)
	if err != nil {
		return err
	}

	if err := a.store.AppendTurn(sessionID, "user", prompt); err != nil {
		return err
	}
	if err := a.store.AppendTurn(sessionID, "assistant", res.Text); err != nil {
		return err
	}
	a.logger.Info("scheduled prompt completed",
		zap.String("job_id", jobID),
		zap.String("trace_id", res.Trace.TraceID))
	return nil
}

// RunMaintenance runs retention cleanup and confidence decay immediately.
func (a *app) RunMaintenance() error {
	now := time.Now()
	convs, traces, err := a.store.CleanupOldData(now)
	if err != nil {
		return err
	}
	removed, err := a.store.DecayProfileConfidence(now)
	if err != nil {
		return err
	}
	fmt.Printf("cleanup: removed %d conversation turns, %d traces; decayed profile, %d facts pruned\n",
		convs, traces, removed)
	return nil
}

// Close releases resources in dependency order.
func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.retriever != nil {
		if err := a.retriever.Close(); err != nil {
			a.logger.Warn("failed to close retriever", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
