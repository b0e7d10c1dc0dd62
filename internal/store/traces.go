package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Trace summarizes one agent session for audit and cost tracking.
type Trace struct {
	TraceID      string
	SessionID    string
	Iterations   int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Duration     time.Duration
	ToolsCalled  []string
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

// SaveTrace persists a trace. Writing the same trace id again replaces the
// row, so retried saves are idempotent.
func (s *Store) SaveTrace(t Trace) error {
	called := t.ToolsCalled
	if called == nil {
		called = []string{}
	}
	toolsJSON, err := json.Marshal(called)
	if err != nil {
		return fmt.Errorf("failed to encode tools_called: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO traces
		 (trace_id, session_id, iterations, input_tokens, output_tokens, cost_usd, duration_ms, tools_called, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.SessionID, t.Iterations, t.InputTokens, t.OutputTokens,
		t.CostUSD, t.Duration.Milliseconds(), string(toolsJSON), t.Success, t.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save trace: %w", err)
	}
	return nil
}

// GetTrace loads one trace by id.
func (s *Store) GetTrace(traceID string) (*Trace, error) {
	var t Trace
	var durationMS int64
	var toolsJSON string
	err := s.db.QueryRow(
		`SELECT trace_id, session_id, iterations, input_tokens, output_tokens,
		        cost_usd, duration_ms, tools_called, success, error_message, created_at
		 FROM traces WHERE trace_id = ?`, traceID).Scan(
		&t.TraceID, &t.SessionID, &t.Iterations, &t.InputTokens, &t.OutputTokens,
		&t.CostUSD, &durationMS, &toolsJSON, &t.Success, &t.ErrorMessage, &t.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	t.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(toolsJSON), &t.ToolsCalled); err != nil {
		return nil, fmt.Errorf("failed to decode tools_called: %w", err)
	}
	return &t, nil
}

// ToolExecution is one tool invocation within a trace.
type ToolExecution struct {
	TraceID   string
	ToolName  string
	Tier      string
	InputJSON string
	Output    string
	Error     string
	Duration  time.Duration
}

// RecordToolExecution appends an audit row for one tool invocation.
func (s *Store) RecordToolExecution(e ToolExecution) error {
	_, err := s.db.Exec(
		`INSERT INTO tool_executions (trace_id, tool_name, tier, input_json, output, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TraceID, e.ToolName, e.Tier, e.InputJSON, e.Output, e.Error, e.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record tool execution: %w", err)
	}
	return nil
}

// ListToolExecutions returns the executions for a trace in insertion order.
func (s *Store) ListToolExecutions(traceID string) ([]ToolExecution, error) {
	rows, err := s.db.Query(
		`SELECT trace_id, tool_name, tier, input_json, output, error, duration_ms
		 FROM tool_executions WHERE trace_id = ? ORDER BY id`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool executions: %w", err)
	}
	defer rows.Close()

	var execs []ToolExecution
	for rows.Next() {
		var e ToolExecution
		var durationMS int64
		if err := rows.Scan(&e.TraceID, &e.ToolName, &e.Tier, &e.InputJSON,
			&e.Output, &e.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan tool execution: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// RecordCost appends one model-call cost row.
func (s *Store) RecordCost(sessionID, model string, inputTokens, outputTokens int, costUSD float64) error {
	_, err := s.db.Exec(
		`INSERT INTO costs (session_id, model, input_tokens, output_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, model, inputTokens, outputTokens, costUSD)
	if err != nil {
		return fmt.Errorf("failed to record cost: %w", err)
	}
	return nil
}

// TotalCostSince sums recorded costs from the given time onward.
func (s *Store) TotalCostSince(since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(cost_usd), 0) FROM costs WHERE created_at >= ?`,
		since.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum costs: %w", err)
	}
	return total, nil
}
