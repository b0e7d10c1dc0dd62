package cron

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/store"
	"hearth/internal/tools"
)

type fakeJobs struct {
	jobs map[string]store.ScheduledJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]store.ScheduledJob{}}
}

func (f *fakeJobs) CreateJob(j store.ScheduledJob) error {
	f.jobs[j.JobID] = j
	return nil
}

func (f *fakeJobs) ListJobs() ([]store.ScheduledJob, error) {
	var out []store.ScheduledJob
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeJobs) DeleteJob(jobID string) (bool, error) {
	_, ok := f.jobs[jobID]
	delete(f.jobs, jobID)
	return ok, nil
}

type fakeSched struct {
	added   []store.ScheduledJob
	removed []string
}

func (f *fakeSched) AddJob(j store.ScheduledJob) error { f.added = append(f.added, j); return nil }
func (f *fakeSched) RemoveJob(id string)               { f.removed = append(f.removed, id) }

func TestCreateListDelete(t *testing.T) {
	jobs := newFakeJobs()
	sched := &fakeSched{}
	ts := NewToolset(jobs, sched)
	ctx := context.Background()

	out, err := ts.handle(ctx, tools.Input{
		"action": "create", "cron_expr": "0 9 * * *", "prompt": "morning briefing",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled job")
	require.Len(t, sched.added, 1)

	out, err = ts.handle(ctx, tools.Input{"action": "list"})
	require.NoError(t, err)
	assert.Contains(t, out, "morning briefing")

	out, err = ts.handle(ctx, tools.Input{"action": "delete", "job_id": sched.added[0].JobID})
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
	assert.Equal(t, []string{sched.added[0].JobID}, sched.removed)

	out, err = ts.handle(ctx, tools.Input{"action": "list"})
	require.NoError(t, err)
	assert.Equal(t, "no scheduled jobs", out)
}

func TestCreateRejectsDestructivePrompts(t *testing.T) {
	ts := NewToolset(newFakeJobs(), nil)
	ctx := context.Background()

	prompts := []string{
		"rm the old logs",
		"please kill the stuck process",
		"sudo restart the service",
		"delete stale sessions",
		"remove temp files",
		"format the report", // marker match, not actual destruction
		"drop unused tables",
	}
	for _, p := range prompts {
		_, err := ts.handle(ctx, tools.Input{
			"action": "create", "cron_expr": "0 9 * * *", "prompt": p,
		})
		assert.Error(t, err, "prompt: %s", p)
	}
}

func TestCreateValidation(t *testing.T) {
	ts := NewToolset(newFakeJobs(), nil)
	ctx := context.Background()

	_, err := ts.handle(ctx, tools.Input{"action": "create", "cron_expr": "0 9 * * *"})
	require.Error(t, err)

	_, err = ts.handle(ctx, tools.Input{
		"action": "create", "cron_expr": "not a cron", "prompt": "briefing",
	})
	require.Error(t, err)

	_, err = ts.handle(ctx, tools.Input{
		"action": "create", "cron_expr": "0 9 * * *",
		"prompt": strings.Repeat("x", maxPromptLen+1),
	})
	require.Error(t, err)

	// Every minute fires below the five-minute floor.
	_, err = ts.handle(ctx, tools.Input{
		"action": "create", "cron_expr": "* * * * *", "prompt": "too frequent",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more often")

	// Every five minutes is the boundary and is allowed.
	_, err = ts.handle(ctx, tools.Input{
		"action": "create", "cron_expr": "*/5 * * * *", "prompt": "boundary check",
	})
	require.NoError(t, err)
}

func TestDeleteUnknownJob(t *testing.T) {
	ts := NewToolset(newFakeJobs(), nil)
	_, err := ts.handle(context.Background(), tools.Input{"action": "delete", "job_id": "nope"})
	require.Error(t, err)
}

func TestUnknownAction(t *testing.T) {
	ts := NewToolset(newFakeJobs(), nil)
	_, err := ts.handle(context.Background(), tools.Input{"action": "pause"})
	require.Error(t, err)
}
