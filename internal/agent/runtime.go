// Package agent runs the tool-use loop: build context, call the model,
// execute requested tools under safety classification, feed results back,
// repeat until the model stops or a guard trips.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hearth/internal/config"
	memctx "hearth/internal/context"
	"hearth/internal/llm"
	"hearth/internal/safety"
	"hearth/internal/store"
	"hearth/internal/tools"
)

// TraceStore persists audit records for sessions.
type TraceStore interface {
	SaveTrace(t store.Trace) error
	RecordToolExecution(e store.ToolExecution) error
	RecordCost(sessionID, model string, inputTokens, outputTokens int, costUSD float64) error
}

// Result is the outcome of one agent turn.
type Result struct {
	Text    string
	Trace   store.Trace
	Context *memctx.Context

	// NeedsSummary signals that history has outgrown the summarization
	// threshold and the channel should fold it down after delivery.
	NeedsSummary bool
}

// Runtime drives agent turns.
type Runtime struct {
	client    llm.Client
	registry  *tools.Registry
	builder   *memctx.Builder
	traces    TraceStore
	confirmer Confirmer
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewRuntime wires a runtime. confirmer may be nil only for headless use.
func NewRuntime(client llm.Client, registry *tools.Registry, builder *memctx.Builder,
	traces TraceStore, confirmer Confirmer, cfg *config.Config, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		client:    client,
		registry:  registry,
		builder:   builder,
		traces:    traces,
		confirmer: confirmer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one turn for a user message. The returned error carries a
// tools.Kind for refusals and guard trips; the caller phrases it for the
// user. A best-effort trace is saved in every path.
func (r *Runtime) Run(ctx context.Context, sessionID, userMessage string, execCtx tools.ExecutionContext) (*Result, error) {
	start := r.now()
	trace := store.Trace{
		TraceID:   uuid.NewString(),
		SessionID: sessionID,
	}

	ctx, cancel := context.WithTimeout(ctx, config.TimeoutSession)
	defer cancel()

	c, err := r.builder.Build(ctx, sessionID, userMessage)
	if err != nil {
		return nil, tools.NewError(tools.KindPersistence, "", err)
	}
	if r.builder.Overflows(c, userMessage) {
		trace.ErrorMessage = "context exceeds budget after truncation"
		r.finishTrace(&trace, start)
		return nil, tools.NewError(tools.KindContextOverflow, "", tools.ErrContextOverflow)
	}

	messages := historyToMessages(c.History)
	messages = append(messages, llm.UserText(userMessage))
	system := BuildSystemPrompt(r.cfg.SystemPrompt, c, r.now())
	defs := r.llmToolDefs()

	for trace.Iterations < config.MaxIterations {
		trace.Iterations++

		resp, err := r.client.Complete(ctx, llm.Request{
			Model:     r.cfg.Agent.Model,
			System:    system,
			Messages:  messages,
			Tools:     defs,
			MaxTokens: r.cfg.Agent.MaxTokens,
		})
		if err != nil {
			trace.ErrorMessage = err.Error()
			r.finishTrace(&trace, start)
			kind := tools.KindToolExecution
			if errors.Is(err, llm.ErrTransient) {
				kind = tools.KindProviderTransient
			}
			if errors.Is(err, context.DeadlineExceeded) {
				kind = tools.KindTimeout
			}
			return nil, tools.NewError(kind, "", err)
		}

		trace.InputTokens += resp.Usage.InputTokens
		trace.OutputTokens += resp.Usage.OutputTokens
		cost := llm.Cost(r.cfg.Agent.Model, resp.Usage)
		trace.CostUSD += cost
		if err := r.traces.RecordCost(sessionID, r.cfg.Agent.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens, cost); err != nil {
			r.logger.Warn("failed to record cost", zap.Error(err))
		}

		if trace.InputTokens+trace.OutputTokens > config.MaxTokensSession {
			trace.ErrorMessage = "session token budget exhausted"
			r.finishTrace(&trace, start)
			return nil, tools.NewError(tools.KindContextOverflow, "", tools.ErrTokenBudget)
		}

		switch resp.StopReason {
		case llm.StopToolUse:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			uses := resp.ToolUses()
			for _, use := range uses {
				trace.ToolsCalled = append(trace.ToolsCalled, use.Name)
			}
			results := r.runTools(ctx, trace.TraceID, uses, execCtx)
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})

		case llm.StopMaxTokens:
			r.finishTrace(&trace, start)
			return r.result(resp.Text()+"\n\n(response truncated at the output limit)", trace, c), nil

		default:
			r.finishTrace(&trace, start)
			return r.result(resp.Text(), trace, c), nil
		}
	}

	trace.ErrorMessage = fmt.Sprintf("agent loop hit max_iterations=%d", config.MaxIterations)
	r.finishTrace(&trace, start)
	return nil, tools.NewError(tools.KindMaxIterations, "", tools.ErrMaxIterations)
}

func (r *Runtime) result(text string, trace store.Trace, c *memctx.Context) *Result {
	return &Result{
		Text:         text,
		Trace:        trace,
		Context:      c,
		NeedsSummary: r.builder.ShouldSummarize(c, r.cfg.Memory.SummarizeAtPct),
	}
}

// runTools executes one batch of tool_use blocks. Auto-tier calls run in
// parallel; confirm and blocked tiers run sequentially in request order so
// the user sees one confirmation at a time. Results come back in the
// original request order regardless of completion order.
func (r *Runtime) runTools(ctx context.Context, traceID string, uses []llm.ContentBlock, execCtx tools.ExecutionContext) []llm.ContentBlock {
	results := make([]llm.ContentBlock, len(uses))
	tiers := make([]safety.Tier, len(uses))
	inputs := make([]tools.Input, len(uses))

	for i, use := range uses {
		inputs[i] = decodeInput(use.Input)
		tiers[i] = r.registry.Classify(use.Name, inputs[i], execCtx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, use := range uses {
		if tiers[i] != safety.TierAuto {
			continue
		}
		i, use := i, use
		g.Go(func() error {
			results[i] = r.executeOne(gctx, traceID, use, inputs[i], tiers[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, use := range uses {
		switch tiers[i] {
		case safety.TierAuto:
			// already done
		case safety.TierBlocked:
			results[i] = llm.ToolResultBlock(use.ID,
				"BLOCKED: this operation was rejected by safety policy and was not executed.", true)
			r.record(traceID, use.Name, tiers[i], inputs[i], "", "blocked by safety policy", 0)
		case safety.TierConfirm:
			if err := confirm(ctx, r.confirmer, use.Name, inputs[i]); err != nil {
				msg := "The user declined this operation."
				if errors.Is(err, tools.ErrConfirmTimeout) {
					msg = "Confirmation timed out; the operation was cancelled."
				}
				results[i] = llm.ToolResultBlock(use.ID, msg, true)
				r.record(traceID, use.Name, tiers[i], inputs[i], "", err.Error(), 0)
				continue
			}
			results[i] = r.executeOne(ctx, traceID, use, inputs[i], tiers[i])
		}
	}
	return results
}

// executeOne runs a single approved tool call with its timeout and output
// cap, converting failures into error tool results the model can react to.
func (r *Runtime) executeOne(ctx context.Context, traceID string, use llm.ContentBlock, input tools.Input, tier safety.Tier) llm.ContentBlock {
	timeout := config.TimeoutPerTool
	if t, ok := r.registry.Get(use.Name); ok && t.Timeout > 0 {
		timeout = t.Timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	out, err := r.registry.Execute(tctx, use.Name, input)
	elapsed := r.now().Sub(start)

	if err != nil {
		msg := fmt.Sprintf("Tool failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("Tool timed out after %s.", timeout)
		}
		r.record(traceID, use.Name, tier, input, "", err.Error(), elapsed)
		return llm.ToolResultBlock(use.ID, msg, true)
	}

	if len(out) > config.MaxToolOutputChars {
		out = out[:config.MaxToolOutputChars] + "\n... [output truncated]"
	}
	r.record(traceID, use.Name, tier, input, out, "", elapsed)
	return llm.ToolResultBlock(use.ID, out, false)
}

// Audit rows carry previews, not full payloads; the conversation itself is
// already persisted elsewhere.
const (
	auditInputCap  = 100
	auditOutputCap = 500
)

func (r *Runtime) record(traceID, name string, tier safety.Tier, input tools.Input, output, errMsg string, elapsed time.Duration) {
	raw, _ := json.Marshal(input)
	if err := r.traces.RecordToolExecution(store.ToolExecution{
		TraceID:   traceID,
		ToolName:  name,
		Tier:      string(tier),
		InputJSON: clip(string(raw), auditInputCap),
		Output:    clip(output, auditOutputCap),
		Error:     errMsg,
		Duration:  elapsed,
	}); err != nil {
		r.logger.Warn("failed to record tool execution", zap.Error(err))
	}
}

func clip(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func (r *Runtime) finishTrace(trace *store.Trace, start time.Time) {
	trace.Duration = r.now().Sub(start)
	trace.Success = trace.ErrorMessage == ""
	if err := r.traces.SaveTrace(*trace); err != nil {
		r.logger.Warn("failed to save trace", zap.Error(err))
	}
	r.logger.Info("turn finished",
		zap.String("trace_id", trace.TraceID),
		zap.Bool("success", trace.Success),
		zap.Int("iterations", trace.Iterations),
		zap.Int("input_tokens", trace.InputTokens),
		zap.Int("output_tokens", trace.OutputTokens),
		zap.Float64("cost_usd", trace.CostUSD),
		zap.String("error", trace.ErrorMessage))
}

func (r *Runtime) llmToolDefs() []llm.ToolDefinition {
	defs := r.registry.Definitions()
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	return out
}

func historyToMessages(turns []store.Turn) []llm.Message {
	var msgs []llm.Message
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == "assistant" {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: []llm.ContentBlock{llm.TextBlock(t.Content)}})
	}
	return msgs
}

func decodeInput(raw json.RawMessage) tools.Input {
	in := tools.Input{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &in)
	}
	return in
}
