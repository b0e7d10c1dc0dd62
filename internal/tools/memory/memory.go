// Package memory provides the tools the model uses to manage long-term
// memory: saving facts about the user, searching past context, and
// forgetting facts on request. Values are screened for secret material
// before they can be persisted.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"hearth/internal/retrieval"
	"hearth/internal/safety"
	"hearth/internal/store"
	"hearth/internal/tools"
)

const (
	minQueryLen = 3
	maxQueryLen = 200
	maxValueLen = 2000
	maxPassages = 5
)

// secretPatterns match credential material that must never land in memory.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-api\d{2}-`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{40,}`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key)\s*[:=]\s*\S+`),
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// ContainsSecret reports whether text matches any credential pattern.
func ContainsSecret(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Store is the persistence surface memory tools need.
type Store interface {
	UpsertProfileFact(category, key, value string, confidence float64) (bool, error)
	SearchProfile(query string, limit int) ([]store.ProfileFact, error)
	DeleteProfileFact(category, key string) error
}

// Searcher is the semantic recall surface.
type Searcher interface {
	SearchPassages(ctx context.Context, query string, k int) []string
}

// Toolset binds the memory tools to their stores.
type Toolset struct {
	store    Store
	searcher Searcher
	enqueue  func(retrieval.Document)
}

// NewToolset creates the toolset. searcher and enqueue may be nil when
// retrieval is disabled.
func NewToolset(st Store, searcher Searcher, enqueue func(retrieval.Document)) *Toolset {
	return &Toolset{store: st, searcher: searcher, enqueue: enqueue}
}

// Tools returns the memory tools.
func (t *Toolset) Tools() []*tools.Tool {
	return []*tools.Tool{
		{
			Name: "memory_store",
			Description: "Save a fact about the user for future conversations. " +
				"Facts have a category (preference, context, project, person), a key, a value, and a confidence.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"category":   {Type: "string", Description: "Fact category", Enum: []any{"preference", "context", "project", "person"}},
				"key":        {Type: "string", Description: "Short fact identifier"},
				"value":      {Type: "string", Description: "The fact itself", MaxLength: maxValueLen},
				"confidence": {Type: "number", Description: "How certain the fact is, 0 to 1", Minimum: 0, Maximum: 1},
			}, "category", "key", "value"),
			Handler:     t.save,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "memory_search",
			Description: "Search saved facts and past conversations.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"query": {Type: "string", Description: "What to look for", MinLength: minQueryLen, MaxLength: maxQueryLen},
			}, "query"),
			Handler:     t.search,
			DefaultTier: safety.TierAuto,
		},
		{
			Name:        "memory_forget",
			Description: "Delete a saved fact about the user.",
			InputSchema: tools.ObjectSchema(map[string]tools.Property{
				"category": {Type: "string", Description: "Fact category"},
				"key":      {Type: "string", Description: "Fact identifier"},
			}, "category", "key"),
			Handler:     t.forget,
			DefaultTier: safety.TierConfirm,
		},
	}
}

func (t *Toolset) save(ctx context.Context, input tools.Input) (string, error) {
	category := strings.TrimSpace(input.String("category"))
	key := strings.TrimSpace(input.String("key"))
	value := strings.TrimSpace(input.String("value"))
	confidence := input.Float("confidence", 0.7)

	if category == "" || key == "" || value == "" {
		return "", fmt.Errorf("category, key, and value are required")
	}
	if len(value) > maxValueLen {
		return "", fmt.Errorf("value exceeds %d characters", maxValueLen)
	}
	if confidence < 0 || confidence > 1 {
		return "", fmt.Errorf("confidence must be between 0 and 1")
	}
	if ContainsSecret(value) || ContainsSecret(key) {
		return "", fmt.Errorf("refusing to store what looks like credential material")
	}

	changed, err := t.store.UpsertProfileFact(category, key, value, confidence)
	if err != nil {
		return "", err
	}
	if !changed {
		return fmt.Sprintf("kept the existing fact for %s/%s (stored confidence is at least as strong)", category, key), nil
	}

	if t.enqueue != nil {
		t.enqueue(retrieval.Document{
			DocID: "fact:" + category + "/" + key,
			Text:  fmt.Sprintf("%s %s: %s", category, key, value),
		})
	}
	return fmt.Sprintf("saved %s/%s", category, key), nil
}

func (t *Toolset) search(ctx context.Context, input tools.Input) (string, error) {
	query := strings.TrimSpace(input.String("query"))
	if len(query) < minQueryLen {
		return "", fmt.Errorf("query must be at least %d characters", minQueryLen)
	}
	if len(query) > maxQueryLen {
		return "", fmt.Errorf("query exceeds %d characters", maxQueryLen)
	}

	var b strings.Builder

	facts, err := t.store.SearchProfile(query, 10)
	if err != nil {
		return "", err
	}
	if len(facts) > 0 {
		b.WriteString("facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "  %s/%s: %s (%.2f)\n", f.Category, f.Key, f.Value, f.Confidence)
		}
	}

	if t.searcher != nil {
		if passages := t.searcher.SearchPassages(ctx, query, maxPassages); len(passages) > 0 {
			b.WriteString("related memories:\n")
			for _, p := range passages {
				fmt.Fprintf(&b, "  %s\n", p)
			}
		}
	}

	if b.Len() == 0 {
		return "nothing relevant found", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Toolset) forget(ctx context.Context, input tools.Input) (string, error) {
	category := strings.TrimSpace(input.String("category"))
	key := strings.TrimSpace(input.String("key"))
	if category == "" || key == "" {
		return "", fmt.Errorf("category and key are required")
	}
	if err := t.store.DeleteProfileFact(category, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("forgot %s/%s", category, key), nil
}
