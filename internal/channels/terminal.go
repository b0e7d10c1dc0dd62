// Package channels connects user-facing surfaces to the agent runtime. The
// terminal gateway is a line-oriented REPL; confirmations are answered
// inline on the same terminal.
package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"hearth/internal/agent"
	"hearth/internal/retrieval"
	"hearth/internal/store"
	"hearth/internal/tools"
)

const keepTurnsAfterSummary = 5

// Runner executes agent turns.
type Runner interface {
	Run(ctx context.Context, sessionID, userMessage string, execCtx tools.ExecutionContext) (*agent.Result, error)
}

// ConversationStore is the persistence surface the gateway needs.
type ConversationStore interface {
	GetOrCreateSession(channel, externalID string) (string, error)
	AppendTurn(sessionID, role, content string) error
	GetRecentHistory(sessionID string, limit int) ([]store.Turn, error)
	LatestSummary(sessionID string) (string, error)
	SaveSummary(sessionID, summary string) error
	TrimHistory(sessionID string, keep int) error
}

// Summarizer folds history into a rolling summary.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary string, turns []store.Turn) (string, error)
}

// Terminal is the interactive REPL gateway.
type Terminal struct {
	runner     Runner
	store      ConversationStore
	summarizer Summarizer
	enqueue    func(retrieval.Document)
	logger     *zap.Logger

	in  *bufio.Reader
	out io.Writer

	// One goroutine owns the input reader and feeds lines here, so the REPL
	// loop and an abandoned confirmation never read concurrently.
	lines    chan readResult
	readOnce sync.Once
}

type readResult struct {
	text string
	err  error
}

// NewTerminal wires the gateway. enqueue may be nil when retrieval is off.
func NewTerminal(runner Runner, st ConversationStore, summarizer Summarizer,
	enqueue func(retrieval.Document), in io.Reader, out io.Writer, logger *zap.Logger) *Terminal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Terminal{
		runner:     runner,
		store:      st,
		summarizer: summarizer,
		enqueue:    enqueue,
		logger:     logger,
		in:         bufio.NewReader(in),
		out:        out,
		lines:      make(chan readResult, 1),
	}
}

// SetRunner installs the runtime after construction. The terminal is also
// the runtime's confirmer, so the two reference each other.
func (t *Terminal) SetRunner(r Runner) { t.runner = r }

// startReader launches the single goroutine that owns t.in. It exits when
// the reader returns an error, EOF included.
func (t *Terminal) startReader() {
	t.readOnce.Do(func() {
		go func() {
			for {
				line, err := t.in.ReadString('\n')
				t.lines <- readResult{text: line, err: err}
				if err != nil {
					return
				}
			}
		}()
	})
}

// readLine waits for the next input line or context cancellation. A line
// abandoned by a cancelled wait stays buffered and surfaces on the next call.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.startReader()
	select {
	case r := <-t.lines:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Confirm prompts on the terminal and reads a y/n answer. It satisfies
// agent.Confirmer.
func (t *Terminal) Confirm(ctx context.Context, req agent.ConfirmRequest) (bool, error) {
	fmt.Fprintf(t.out, "\nallow %s? %s [y/N] ", req.ToolName, req.Preview)

	line, err := t.readLine(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(t.out, "\n(confirmation timed out)")
		}
		return false, err
	}
	resp := strings.ToLower(strings.TrimSpace(line))
	return resp == "y" || resp == "yes", nil
}

// Run drives the REPL until EOF, "exit", or ctx cancellation.
func (t *Terminal) Run(ctx context.Context, userID string) error {
	sessionID, err := t.store.GetOrCreateSession("terminal", userID)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	t.logger.Info("terminal session started", zap.String("session_id", sessionID))
	fmt.Fprintln(t.out, "hearth ready. Type a message, or 'exit' to quit.")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(t.out, "> ")
		line, err := t.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				fmt.Fprintln(t.out)
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		message := strings.TrimSpace(line)
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			return nil
		}

		t.handleMessage(ctx, sessionID, message)
	}
}

// handleMessage runs one turn. Both turns persist before the reply is
// shown, so a crash between the two never loses the user's message.
func (t *Terminal) handleMessage(ctx context.Context, sessionID, message string) {
	res, err := t.runner.Run(ctx, sessionID, message, tools.ContextUserSession)
	if err != nil {
		fmt.Fprintln(t.out, phraseError(err))
		return
	}

	if err := t.store.AppendTurn(sessionID, "user", message); err != nil {
		t.logger.Warn("failed to persist user turn", zap.Error(err))
	}
	if err := t.store.AppendTurn(sessionID, "assistant", res.Text); err != nil {
		t.logger.Warn("failed to persist assistant turn", zap.Error(err))
	}

	fmt.Fprintln(t.out, res.Text)

	if t.enqueue != nil {
		t.enqueue(retrieval.Document{
			DocID: "turn:" + res.Trace.TraceID,
			Text:  fmt.Sprintf("user: %s\nassistant: %s", message, res.Text),
		})
	}

	if res.NeedsSummary && t.summarizer != nil {
		t.summarize(ctx, sessionID)
	}
}

// summarize folds the session history into the rolling summary and trims
// stored history down to the most recent turns. Failures leave the session
// as it was; summarization retries naturally on the next long turn.
func (t *Terminal) summarize(ctx context.Context, sessionID string) {
	turns, err := t.store.GetRecentHistory(sessionID, 100)
	if err != nil {
		t.logger.Warn("summary skipped, history unavailable", zap.Error(err))
		return
	}
	previous, err := t.store.LatestSummary(sessionID)
	if err != nil {
		t.logger.Warn("summary skipped, previous summary unavailable", zap.Error(err))
		return
	}

	summary, err := t.summarizer.Summarize(ctx, previous, turns)
	if err != nil {
		t.logger.Warn("summarization failed", zap.Error(err))
		return
	}
	if err := t.store.SaveSummary(sessionID, summary); err != nil {
		t.logger.Warn("failed to save summary", zap.Error(err))
		return
	}
	if err := t.store.TrimHistory(sessionID, keepTurnsAfterSummary); err != nil {
		t.logger.Warn("failed to trim history", zap.Error(err))
	}
	t.logger.Info("session summarized", zap.String("session_id", sessionID))
}

// phraseError turns runtime errors into something a person can act on.
func phraseError(err error) string {
	switch {
	case errors.Is(err, tools.ErrContextOverflow):
		return "That message is too large for me to take on in one turn, even after dropping older context. Try something smaller."
	case errors.Is(err, tools.ErrMaxIterations):
		return "I hit my step limit working on that without reaching an answer. Try breaking the request into smaller pieces."
	case errors.Is(err, tools.ErrTokenBudget):
		return "This session has used its token budget. Start a new session to continue."
	case tools.KindOf(err) == tools.KindProviderTransient:
		return "The model service is having trouble right now. Give it a moment and try again."
	case tools.KindOf(err) == tools.KindTimeout:
		return "That took too long and was cancelled."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
