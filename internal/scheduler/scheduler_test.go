package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/store"
)

type fakeMaint struct {
	mu      sync.Mutex
	jobs    []store.ScheduledJob
	cleaned int
	decayed int
}

func (f *fakeMaint) CleanupOldData(now time.Time) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned++
	return 2, 1, nil
}

func (f *fakeMaint) DecayProfileConfidence(now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decayed++
	return 0, nil
}

func (f *fakeMaint) ListJobs() ([]store.ScheduledJob, error) {
	return f.jobs, nil
}

func TestStartLoadsPersistedJobs(t *testing.T) {
	maint := &fakeMaint{jobs: []store.ScheduledJob{
		{JobID: "good", CronExpr: "0 9 * * *", Prompt: "briefing"},
		{JobID: "bad", CronExpr: "not cron", Prompt: "broken"},
	}}

	s := New(func(ctx context.Context, jobID, prompt string) error { return nil }, maint, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	s.mu.Lock()
	_, goodLoaded := s.entries["good"]
	_, badLoaded := s.entries["bad"]
	s.mu.Unlock()
	assert.True(t, goodLoaded)
	assert.False(t, badLoaded, "unparseable jobs are skipped, not fatal")
}

func TestAddAndRemoveJob(t *testing.T) {
	maint := &fakeMaint{}
	s := New(func(ctx context.Context, jobID, prompt string) error { return nil }, maint, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.AddJob(store.ScheduledJob{JobID: "j1", CronExpr: "*/5 * * * *", Prompt: "p"}))
	s.mu.Lock()
	_, ok := s.entries["j1"]
	s.mu.Unlock()
	assert.True(t, ok)

	s.RemoveJob("j1")
	s.mu.Lock()
	_, ok = s.entries["j1"]
	s.mu.Unlock()
	assert.False(t, ok)

	// Removing twice is harmless.
	s.RemoveJob("j1")
}

func TestAddJobRejectsBadExpr(t *testing.T) {
	s := New(func(ctx context.Context, jobID, prompt string) error { return nil }, &fakeMaint{}, nil)
	err := s.AddJob(store.ScheduledJob{JobID: "j1", CronExpr: "bogus", Prompt: "p"})
	require.Error(t, err)
}

func TestRunJobInvokesRunner(t *testing.T) {
	var gotJob, gotPrompt string
	s := New(func(ctx context.Context, jobID, prompt string) error {
		gotJob, gotPrompt = jobID, prompt
		return nil
	}, &fakeMaint{}, nil)

	s.runJob(store.ScheduledJob{JobID: "j1", CronExpr: "0 9 * * *", Prompt: "check disk"})
	assert.Equal(t, "j1", gotJob)
	assert.Equal(t, "check disk", gotPrompt)
}

func TestMaintenanceCallbacks(t *testing.T) {
	maint := &fakeMaint{}
	s := New(func(ctx context.Context, jobID, prompt string) error { return nil }, maint, nil)

	s.runCleanup()
	s.runDecay()
	assert.Equal(t, 1, maint.cleaned)
	assert.Equal(t, 1, maint.decayed)
}
