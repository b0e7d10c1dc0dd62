// Package embedding generates vector embeddings for semantic memory
// retrieval. Two backends are supported: a local Ollama server and Google
// GenAI. Both produce 768-dimensional vectors with their default models.
package embedding

import (
	"context"
	"fmt"
	"math"
	"os"

	"hearth/internal/config"
)

// Engine turns text into vectors.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// NewEngine builds an engine from configuration. Provider "none" returns
// (nil, nil); the retriever treats a nil engine as keyword-only mode.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel), nil
	case "genai":
		return NewGenAIEngine(os.Getenv("GOOGLE_API_KEY"), cfg.GenAIModel)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use ollama, genai, or none)", cfg.Provider)
	}
}

// Cosine computes cosine similarity between two vectors of equal length.
// A zero-magnitude vector yields 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
