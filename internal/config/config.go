// Package config loads hearth configuration from config.yaml plus process
// environment. Secrets (API key, transport token, allowed users) only ever
// come from the environment; the YAML file carries runtime settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all hearth configuration.
type Config struct {
	Agent         AgentConfig         `yaml:"agent"`
	Memory        MemoryConfig        `yaml:"memory"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Observability ObservabilityConfig `yaml:"observability"`

	// SystemPrompt overrides the built-in base prompt when non-empty.
	SystemPrompt string `yaml:"system_prompt"`

	// Secrets, populated from the environment by Load. Never serialized.
	AnthropicAPIKey string  `yaml:"-"`
	AllowedUserIDs  []int64 `yaml:"-"`
}

// AgentConfig configures the model side of the runtime.
type AgentConfig struct {
	Model      string `yaml:"model"`
	HaikuModel string `yaml:"haiku_model"`
	MaxTokens  int    `yaml:"max_tokens"`
	DataDir    string `yaml:"data_dir"`
}

// MemoryConfig configures the context builder and persistence paths.
type MemoryConfig struct {
	ContextBudgetTokens int     `yaml:"context_budget_tokens"`
	SummarizeAtPct      float64 `yaml:"summarize_at_pct"`
	SQLiteDB            string  `yaml:"sqlite_db"`
	VectorDir           string  `yaml:"vector_dir"`
}

// EmbeddingConfig selects the embedding backend for the semantic retriever.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai, none
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIModel     string `yaml:"genai_model"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:      "claude-sonnet-4-20250514",
			HaikuModel: "claude-haiku-4-5-20251001",
			MaxTokens:  4096,
			DataDir:    "./data",
		},
		Memory: MemoryConfig{
			ContextBudgetTokens: 20000,
			SummarizeAtPct:      0.80,
			SQLiteDB:            "hearth.db",
			VectorDir:           "vectors",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Load reads the YAML file at path (missing file is fine, defaults apply)
// and overlays environment secrets and overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	if v := os.Getenv("HEARTH_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("HEARTH_HAIKU_MODEL"); v != "" {
		cfg.Agent.HaikuModel = v
	}
	if v := os.Getenv("HEARTH_DATA_DIR"); v != "" {
		cfg.Agent.DataDir = v
	}
	if v := os.Getenv("HEARTH_ALLOWED_USER_IDS"); v != "" {
		ids, err := parseUserIDs(v)
		if err != nil {
			return nil, err
		}
		cfg.AllowedUserIDs = ids
	}

	return cfg, nil
}

// DBPath returns the absolute SQLite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Agent.DataDir, c.Memory.SQLiteDB)
}

// VectorPath returns the vector index directory under the data directory.
func (c *Config) VectorPath() string {
	return filepath.Join(c.Agent.DataDir, c.Memory.VectorDir)
}

// LogFile returns the configured log file, defaulting to data_dir/logs/hearth.log.
func (c *Config) LogFile() string {
	if c.Observability.LogFile != "" {
		return c.Observability.LogFile
	}
	return filepath.Join(c.Agent.DataDir, "logs", "hearth.log")
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
