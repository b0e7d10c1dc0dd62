// Package context assembles the prompt context for one agent turn: user
// profile facts, retrieved memories, the rolling session summary, and
// recent conversation history, all squeezed into a fixed token budget.
package context

import (
	stdctx "context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hearth/internal/store"
)

const (
	// systemReserve covers the base system prompt and section scaffolding.
	systemReserve = 800
	// responseReserve keeps room for the model's reply.
	responseReserve = 4096

	// minHistoryTurns is the floor the truncation cascade never cuts below.
	minHistoryTurns = 4

	historyFetchLimit = 50

	// profileMinConfidence gates which facts make the prompt digest.
	profileMinConfidence = 0.5
	// contextMemoryK is how many retrieved passages the prompt carries.
	contextMemoryK = 3
)

// HistorySource supplies recent conversation turns.
type HistorySource interface {
	GetRecentHistory(sessionID string, limit int) ([]store.Turn, error)
	LatestSummary(sessionID string) (string, error)
}

// ProfileSource supplies learned user facts at or above a confidence floor.
type ProfileSource interface {
	GetProfile(minConfidence float64) ([]store.ProfileFact, error)
}

// MemorySource supplies up to k semantically retrieved passages.
type MemorySource interface {
	SearchPassages(ctx stdctx.Context, query string, k int) []string
}

// Context is the assembled prompt context for one turn.
type Context struct {
	Profile  string
	Memories []string
	Summary  string
	History  []store.Turn

	// EstimatedTokens is the estimate for the assembled sections, not
	// counting the fixed reservations.
	EstimatedTokens int

	// HistoryTokens is the estimate for the history as fetched, before any
	// truncation. The summarization trigger measures against this so that
	// trimming for one prompt does not mask a history that needs folding.
	HistoryTokens int
}

// Builder assembles Contexts within a token budget.
type Builder struct {
	history  HistorySource
	profile  ProfileSource
	memories MemorySource
	budget   int
	logger   *zap.Logger
}

// NewBuilder creates a Builder. budget is the total context window budget in
// tokens; the fixed reservations come out of it before any section is
// admitted. memories may be nil when retrieval is disabled.
func NewBuilder(history HistorySource, profile ProfileSource, memories MemorySource, budget int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		history:  history,
		profile:  profile,
		memories: memories,
		budget:   budget,
		logger:   logger,
	}
}

// Available returns the token budget left after the fixed reservations.
func (b *Builder) Available() int {
	return b.budget - systemReserve - responseReserve
}

// Build assembles the context for one user message.
//
// The four sources load in parallel; any single failure degrades that
// section to empty rather than failing the turn. When the assembled
// sections exceed the available budget, sections shed in fixed order of
// increasing importance: profile first, then memories down to one passage,
// then the summary (only while history remains to carry the thread), then
// history itself down to the last four turns.
func (b *Builder) Build(ctx stdctx.Context, sessionID, userMessage string) (*Context, error) {
	var (
		profile  string
		memories []string
		summary  string
		history  []store.Turn
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		facts, err := b.profile.GetProfile(profileMinConfidence)
		if err != nil {
			b.logger.Warn("profile load failed, continuing without", zap.Error(err))
			return nil
		}
		profile = formatProfile(facts)
		return nil
	})
	g.Go(func() error {
		if b.memories != nil {
			memories = b.memories.SearchPassages(gctx, userMessage, contextMemoryK)
		}
		return nil
	})
	g.Go(func() error {
		s, err := b.history.LatestSummary(sessionID)
		if err != nil {
			b.logger.Warn("summary load failed, continuing without", zap.Error(err))
			return nil
		}
		summary = s
		return nil
	})
	g.Go(func() error {
		turns, err := b.history.GetRecentHistory(sessionID, historyFetchLimit)
		if err != nil {
			b.logger.Warn("history load failed, continuing without", zap.Error(err))
			return nil
		}
		history = turns
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Context{Profile: profile, Memories: memories, Summary: summary, History: history}
	for _, t := range history {
		c.HistoryTokens += EstimateTokens(t.Content)
	}
	b.truncate(c, userMessage)
	c.EstimatedTokens = c.estimate(userMessage)
	return c, nil
}

func (b *Builder) truncate(c *Context, userMessage string) {
	available := b.Available()
	if c.estimate(userMessage) <= available {
		return
	}

	c.Profile = ""
	if c.estimate(userMessage) <= available {
		b.logger.Debug("context truncation dropped profile")
		return
	}

	if len(c.Memories) > 1 {
		c.Memories = c.Memories[:1]
		if c.estimate(userMessage) <= available {
			b.logger.Debug("context truncation reduced memories to one")
			return
		}
	}

	if c.Summary != "" && len(c.History) > 0 {
		c.Summary = ""
		if c.estimate(userMessage) <= available {
			b.logger.Debug("context truncation dropped summary")
			return
		}
	}

	for len(c.History) > minHistoryTurns {
		c.History = c.History[1:]
		if c.estimate(userMessage) <= available {
			break
		}
	}
	b.logger.Debug("context truncation trimmed history", zap.Int("turns", len(c.History)))
}

// Overflows reports whether the context still exceeds the available budget
// after full truncation. The agent refuses the turn in that case.
func (b *Builder) Overflows(c *Context, userMessage string) bool {
	return c.estimate(userMessage) > b.Available()
}

// ShouldSummarize reports whether the history, as fetched for this turn, has
// grown past the summarization threshold of the available budget.
func (b *Builder) ShouldSummarize(c *Context, threshold float64) bool {
	return float64(c.HistoryTokens) > threshold*float64(b.Available())
}

func (c *Context) estimate(userMessage string) int {
	n := EstimateTokens(c.Profile) + EstimateTokens(c.Summary) + EstimateTokens(userMessage)
	for _, m := range c.Memories {
		n += EstimateTokens(m)
	}
	for _, t := range c.History {
		n += EstimateTokens(t.Content)
	}
	return n
}

func formatProfile(facts []store.ProfileFact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s/%s: %s (confidence %.2f)\n", f.Category, f.Key, f.Value, f.Confidence)
	}
	return strings.TrimRight(b.String(), "\n")
}
