package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"hearth/internal/config"
	"hearth/internal/safety"
)

// Registry holds the registered tools and classifies every invocation.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering the same name again replaces the previous
// entry, so rebuilding a registry at startup is idempotent.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return errors.New("tool must have a name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	if t.DefaultTier == "" {
		t.DefaultTier = safety.TierConfirm
	}
	if t.Timeout <= 0 {
		t.Timeout = config.TimeoutPerTool
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		r.logger.Debug("replacing registered tool", zap.String("tool", t.Name))
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the schema export for all registered tools, sorted by
// name so the provider payload is stable across runs.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Classify decides the safety tier for one invocation before it runs.
//
// Shell commands are classified by content. Writes and schedule mutations
// always need a human. In a headless execution context nobody can confirm,
// so every confirm-tier decision degrades to blocked.
func (r *Registry) Classify(name string, input Input, execCtx ExecutionContext) Tier {
	tier := r.classify(name, input)
	if execCtx == ContextHeadless && tier == safety.TierConfirm {
		return safety.TierBlocked
	}
	return tier
}

// Tier aliases safety.Tier for callers that only import tools.
type Tier = safety.Tier

func (r *Registry) classify(name string, input Input) Tier {
	t, ok := r.Get(name)
	if !ok {
		return safety.TierBlocked
	}

	switch name {
	case "shell_execute":
		return safety.ClassifyCommand(input.String("command"))
	case "file_write", "file_move", "file_delete":
		return safety.TierConfirm
	case "cron_schedule":
		if input.String("action") == "list" {
			return safety.TierAuto
		}
		return safety.TierConfirm
	}
	return t.DefaultTier
}

// Execute runs the named tool. The caller has already classified the
// invocation and obtained any required confirmation; Execute refuses only
// unknown tools. Handler failures come back as tool-execution errors so the
// loop can surface them to the model instead of aborting the session.
func (r *Registry) Execute(ctx context.Context, name string, input Input) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", NewError(KindSafetyViolation, name, ErrUnknownTool)
	}

	start := time.Now()
	out, err := t.Handler(ctx, input)
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Warn("tool failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		var re *RuntimeError
		if errors.As(err, &re) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewError(KindTimeout, name, err)
		}
		return "", NewError(KindToolExecution, name, err)
	}

	r.logger.Debug("tool succeeded",
		zap.String("tool", name),
		zap.Duration("elapsed", elapsed),
		zap.Int("output_chars", len(out)))
	return out, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
