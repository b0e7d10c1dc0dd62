package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGetHistory(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AppendTurn("sess-1", "user", "hello"))
	require.NoError(t, s.AppendTurn("sess-1", "assistant", "hi there"))
	require.NoError(t, s.AppendTurn("sess-1", "user", "what time is it"))
	require.NoError(t, s.AppendTurn("sess-2", "user", "other session"))

	turns, err := s.GetRecentHistory("sess-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, "hi there", turns[1].Content)
	assert.Equal(t, "what time is it", turns[2].Content)

	// Limit keeps the most recent turns, still chronological.
	turns, err = s.GetRecentHistory("sess-1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi there", turns[0].Content)
	assert.Equal(t, "what time is it", turns[1].Content)
}

func TestGetOrCreateSessionStable(t *testing.T) {
	s := newTestStore(t)

	first, err := s.GetOrCreateSession("terminal", "user-42")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.GetOrCreateSession("terminal", "user-42")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.GetOrCreateSession("terminal", "user-43")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSummaryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LatestSummary("sess-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SaveSummary("sess-1", "first summary"))
	require.NoError(t, s.SaveSummary("sess-1", "second summary"))

	got, err = s.LatestSummary("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "second summary", got)
}

func TestTrimHistory(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendTurn("sess-1", "user", "turn"))
	}
	require.NoError(t, s.TrimHistory("sess-1", 5))

	turns, err := s.GetRecentHistory("sess-1", 100)
	require.NoError(t, err)
	assert.Len(t, turns, 5)
}

func TestUpsertProfileFactConfidenceHysteresis(t *testing.T) {
	s := newTestStore(t)

	changed, err := s.UpsertProfileFact("preference", "editor", "vim", 0.6)
	require.NoError(t, err)
	assert.True(t, changed)

	// Within the 0.1 band: no change.
	changed, err = s.UpsertProfileFact("preference", "editor", "emacs", 0.65)
	require.NoError(t, err)
	assert.False(t, changed)

	facts, err := s.GetProfile(0)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "vim", facts[0].Value)
	assert.InDelta(t, 0.6, facts[0].Confidence, 1e-9)

	// Clearly above: overwrite.
	changed, err = s.UpsertProfileFact("preference", "editor", "emacs", 0.9)
	require.NoError(t, err)
	assert.True(t, changed)

	facts, err = s.GetProfile(0)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "emacs", facts[0].Value)
}

func TestSearchProfile(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertProfileFact("preference", "editor", "vim", 0.8)
	require.NoError(t, err)
	_, err = s.UpsertProfileFact("context", "timezone", "Europe/Berlin", 0.9)
	require.NoError(t, err)

	facts, err := s.SearchProfile("BERLIN", 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "timezone", facts[0].Key)

	facts, err = s.SearchProfile("nope", 10)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestDeleteProfileFact(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertProfileFact("preference", "editor", "vim", 0.8)
	require.NoError(t, err)

	require.NoError(t, s.DeleteProfileFact("preference", "editor"))
	require.NoError(t, s.DeleteProfileFact("preference", "editor")) // absent is fine

	facts, err := s.GetProfile(0)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestGetProfileFiltersAndOrdersByConfidence(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertProfileFact("preference", "editor", "vim", 0.9)
	require.NoError(t, err)
	_, err = s.UpsertProfileFact("context", "timezone", "Europe/Berlin", 0.5)
	require.NoError(t, err)
	_, err = s.UpsertProfileFact("context", "hunch", "maybe likes tea", 0.3)
	require.NoError(t, err)

	facts, err := s.GetProfile(0.5)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "editor", facts[0].Key)
	assert.Equal(t, "timezone", facts[1].Key)

	facts, err = s.GetProfile(0)
	require.NoError(t, err)
	assert.Len(t, facts, 3)
}

func TestSaveTraceIdempotent(t *testing.T) {
	s := newTestStore(t)

	tr := Trace{
		TraceID:      "trace-1",
		SessionID:    "sess-1",
		Iterations:   3,
		InputTokens:  1200,
		OutputTokens: 340,
		CostUSD:      0.0087,
		Duration:     2500 * time.Millisecond,
		ToolsCalled:  []string{"shell_execute", "web_fetch"},
		Success:      true,
	}
	require.NoError(t, s.SaveTrace(tr))

	tr.Iterations = 4
	require.NoError(t, s.SaveTrace(tr))

	got, err := s.GetTrace("trace-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Iterations)
	assert.Equal(t, 2500*time.Millisecond, got.Duration)
	assert.Equal(t, []string{"shell_execute", "web_fetch"}, got.ToolsCalled)
	assert.True(t, got.Success)

	missing, err := s.GetTrace("trace-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveTraceFailureRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveTrace(Trace{
		TraceID:      "trace-fail",
		SessionID:    "sess-1",
		Iterations:   15,
		ErrorMessage: "agent loop hit max_iterations=15",
	}))

	got, err := s.GetTrace("trace-fail")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Success)
	assert.Empty(t, got.ToolsCalled)
	assert.Contains(t, got.ErrorMessage, "max_iterations")
}

func TestToolExecutionsAndCosts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordToolExecution(ToolExecution{
		TraceID: "trace-1", ToolName: "shell_execute", Tier: "auto",
		InputJSON: `{"command":"ls"}`, Output: "a.txt", Duration: 40 * time.Millisecond,
	}))
	require.NoError(t, s.RecordToolExecution(ToolExecution{
		TraceID: "trace-1", ToolName: "web_fetch", Tier: "auto",
		InputJSON: `{"url":"https://example.com"}`, Error: "timeout", Duration: time.Second,
	}))

	execs, err := s.ListToolExecutions("trace-1")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "shell_execute", execs[0].ToolName)
	assert.Equal(t, "timeout", execs[1].Error)

	require.NoError(t, s.RecordCost("sess-1", "claude-sonnet-4-20250514", 1000, 200, 0.006))
	require.NoError(t, s.RecordCost("sess-1", "claude-haiku-4-5-20251001", 500, 100, 0.0008))

	total, err := s.TotalCostSince(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.0068, total, 1e-9)
}

func TestScheduledJobs(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateJob(ScheduledJob{JobID: "job-1", CronExpr: "0 9 * * *", Prompt: "morning briefing"}))
	require.NoError(t, s.CreateJob(ScheduledJob{JobID: "job-2", CronExpr: "*/30 * * * *", Prompt: "check disk space"}))

	jobs, err := s.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].JobID)

	deleted, err := s.DeleteJob("job-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteJob("job-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCleanupOldData(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AppendTurn("sess-1", "user", "recent"))
	require.NoError(t, s.SaveTrace(Trace{TraceID: "t-recent", SessionID: "sess-1"}))

	// Backdate one turn and one trace past their retention windows.
	old := time.Now().AddDate(0, 0, -100).UTC()
	_, err := s.db.Exec(
		`INSERT INTO conversations (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		"sess-1", "user", "ancient", old)
	require.NoError(t, err)
	_, err = s.db.Exec(
		`INSERT INTO traces (trace_id, session_id, iterations, input_tokens, output_tokens, cost_usd, duration_ms, created_at)
		 VALUES ('t-old', 'sess-1', 1, 0, 0, 0, 0, ?)`,
		time.Now().AddDate(0, 0, -40).UTC())
	require.NoError(t, err)

	convs, traces, err := s.CleanupOldData(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), convs)
	assert.Equal(t, int64(1), traces)

	turns, err := s.GetRecentHistory("sess-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "recent", turns[0].Content)
}

func TestDecayProfileConfidence(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertProfileFact("preference", "fresh", "v", 0.8)
	require.NoError(t, err)

	// Stale fact that survives one decay step.
	_, err = s.db.Exec(
		`INSERT INTO user_profile (category, key, value, confidence, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"preference", "stale", "v", 0.5, time.Now().AddDate(0, 0, -45).UTC())
	require.NoError(t, err)
	// Stale fact that decays below 0.1 and gets removed.
	_, err = s.db.Exec(
		`INSERT INTO user_profile (category, key, value, confidence, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"preference", "dying", "v", 0.11, time.Now().AddDate(0, 0, -45).UTC())
	require.NoError(t, err)

	removed, err := s.DecayProfileConfidence(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	facts, err := s.GetProfile(0)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	byKey := map[string]ProfileFact{}
	for _, f := range facts {
		byKey[f.Key] = f
	}
	assert.InDelta(t, 0.8, byKey["fresh"].Confidence, 1e-9)
	assert.InDelta(t, 0.45, byKey["stale"].Confidence, 1e-9)
}
