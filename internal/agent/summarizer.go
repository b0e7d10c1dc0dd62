package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hearth/internal/llm"
	"hearth/internal/store"
)

const (
	summaryMinChars = 50
	summaryMaxChars = 800
	summaryRetries  = 2
	summaryInputCap = 4000
)

// Summarizer folds conversation history into a short rolling summary using
// the cheap model.
type Summarizer struct {
	client    llm.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewSummarizer creates a summarizer bound to the cheap model.
func NewSummarizer(client llm.Client, model string, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{client: client, model: model, maxTokens: 512, logger: logger}
}

const summarizerPrompt = `Summarize the conversation below in 50 to 800 characters.
Capture decisions, facts about the user, and open threads. Write plain prose,
no headings or bullet lists. Fold the previous summary in if one is given.`

// Summarize produces a summary of prior turns, folding in previousSummary
// when present. The transcript input is capped; a summary outside the length
// bounds is retried up to two times before the attempt is abandoned.
func (s *Summarizer) Summarize(ctx context.Context, previousSummary string, turns []store.Turn) (string, error) {
	input := formatTranscript(previousSummary, turns)
	if len(input) > summaryInputCap {
		input = input[:summaryInputCap]
	}

	var lastErr error
	for attempt := 0; attempt <= summaryRetries; attempt++ {
		resp, err := s.client.Complete(ctx, llm.Request{
			Model:     s.model,
			System:    summarizerPrompt,
			Messages:  []llm.Message{llm.UserText(input)},
			MaxTokens: s.maxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("summarization call failed: %w", err)
		}

		summary := strings.TrimSpace(resp.Text())
		if len(summary) >= summaryMinChars && len(summary) <= summaryMaxChars {
			return summary, nil
		}
		lastErr = fmt.Errorf("summary length %d outside [%d, %d]", len(summary), summaryMinChars, summaryMaxChars)
		s.logger.Warn("summary out of bounds, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("length", len(summary)))
	}
	return "", lastErr
}

func formatTranscript(previousSummary string, turns []store.Turn) string {
	var b strings.Builder
	if previousSummary != "" {
		b.WriteString("Previous summary: ")
		b.WriteString(previousSummary)
		b.WriteString("\n\n")
	}
	for _, t := range turns {
		content := t.Content
		if len(content) > 500 {
			content = content[:500]
		}
		fmt.Fprintf(&b, "%s: %s\n", t.Role, content)
	}
	return b.String()
}
