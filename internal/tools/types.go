// Package tools provides the tool registry for the agent runtime.
//
// Each tool carries a JSON-Schema input description (forwarded to the model),
// an asynchronous handler, a default safety tier, and a timeout. The registry
// classifies every invocation before execution; shell commands get dynamic
// classification via the safety package.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"hearth/internal/safety"
)

// ExecutionContext tells the registry whether a human is available to confirm.
type ExecutionContext string

const (
	// ContextUserSession means an interactive user can answer confirmations.
	ContextUserSession ExecutionContext = "user_session"

	// ContextHeadless means nobody can confirm; confirm-tier work is blocked.
	ContextHeadless ExecutionContext = "cron_headless"
)

// Input is the provider-defined JSON input envelope for a tool call.
// Handlers decode it into their own typed argument structs.
type Input map[string]any

// String returns the string value for key, or "" when absent or non-string.
func (in Input) String(key string) string {
	s, _ := in[key].(string)
	return s
}

// Int returns the integer value for key, or def when absent.
// JSON numbers arrive as float64.
func (in Input) Int(key string, def int) int {
	switch v := in[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// Float returns the float value for key, or def when absent.
func (in Input) Float(key string, def float64) float64 {
	switch v := in[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool returns the boolean value for key, or def when absent.
func (in Input) Bool(key string, def bool) bool {
	if b, ok := in[key].(bool); ok {
		return b
	}
	return def
}

// Handler executes a tool with its decoded input and returns human-readable
// text for the model.
type Handler func(ctx context.Context, input Input) (string, error)

// Property describes a single parameter in a tool's input schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	Format      string `json:"format,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
	Minimum     any    `json:"minimum,omitempty"`
	Maximum     any    `json:"maximum,omitempty"`
}

// Schema is the JSON-Schema object describing a tool's input.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// ObjectSchema builds a schema with the given properties and required names.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if required == nil {
		required = []string{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

// Tool is a registered capability.
type Tool struct {
	Name        string
	Description string
	InputSchema Schema
	Handler     Handler

	// DefaultTier applies to tools without dynamic classification.
	DefaultTier safety.Tier

	// Timeout bounds a single execution. Zero means the 30 s default.
	Timeout time.Duration
}

// Definition is the schema export consumed by the agent loop and forwarded
// to the chat-completion provider.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}
