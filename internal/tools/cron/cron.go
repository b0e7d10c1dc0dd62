// Package cron provides the cron_schedule tool: creating, listing, and
// deleting scheduled prompts. Created jobs run headless, so their prompts
// are screened for destructive intent up front; nobody will be there to
// confirm later.
package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"

	"hearth/internal/safety"
	"hearth/internal/store"
	"hearth/internal/tools"
)

const (
	maxPromptLen = 500
	minInterval  = 5 * time.Minute
)

// destructiveMarkers is deliberately over-broad: a scheduled prompt that
// even mentions these words runs unattended, so it is rejected at creation.
var destructiveMarkers = []string{
	"rm ", "kill ", "sudo ", "delete ", "remove ", "format ", "drop ",
}

// Jobs is the persistence surface for scheduled jobs.
type Jobs interface {
	CreateJob(j store.ScheduledJob) error
	ListJobs() ([]store.ScheduledJob, error)
	DeleteJob(jobID string) (bool, error)
}

// Scheduler is the live scheduler the tool keeps in sync with the store.
type Scheduler interface {
	AddJob(j store.ScheduledJob) error
	RemoveJob(jobID string)
}

// Toolset binds the cron tool to its store and scheduler.
type Toolset struct {
	jobs  Jobs
	sched Scheduler
	now   func() time.Time
}

// NewToolset creates the toolset. sched may be nil in one-shot commands
// that only touch the store.
func NewToolset(jobs Jobs, sched Scheduler) *Toolset {
	return &Toolset{jobs: jobs, sched: sched, now: time.Now}
}

// Tool returns the cron_schedule tool.
func (t *Toolset) Tool() *tools.Tool {
	return &tools.Tool{
		Name: "cron_schedule",
		Description: "Manage scheduled prompts. Action 'create' needs cron_expr and prompt, " +
			"'list' shows all jobs, 'delete' needs job_id.",
		InputSchema: tools.ObjectSchema(map[string]tools.Property{
			"action":    {Type: "string", Description: "create, list, or delete", Enum: []any{"create", "list", "delete"}},
			"cron_expr": {Type: "string", Description: "Standard 5-field cron expression"},
			"prompt":    {Type: "string", Description: "Prompt to run on schedule", MaxLength: maxPromptLen},
			"job_id":    {Type: "string", Description: "Job id for delete"},
		}, "action"),
		Handler:     t.handle,
		DefaultTier: safety.TierConfirm,
	}
}

func (t *Toolset) handle(ctx context.Context, input tools.Input) (string, error) {
	switch input.String("action") {
	case "create":
		return t.create(input)
	case "list":
		return t.list()
	case "delete":
		return t.delete(input)
	default:
		return "", fmt.Errorf("unknown action %q (use create, list, or delete)", input.String("action"))
	}
}

func (t *Toolset) create(input tools.Input) (string, error) {
	expr := strings.TrimSpace(input.String("cron_expr"))
	prompt := strings.TrimSpace(input.String("prompt"))

	if expr == "" || prompt == "" {
		return "", fmt.Errorf("cron_expr and prompt are required")
	}
	if len(prompt) > maxPromptLen {
		return "", fmt.Errorf("prompt exceeds %d characters", maxPromptLen)
	}
	if marker := destructiveMarker(prompt); marker != "" {
		return "", fmt.Errorf("scheduled prompts may not contain %q: they run without anyone to confirm", strings.TrimSpace(marker))
	}

	sched, err := cronlib.ParseStandard(expr)
	if err != nil {
		return "", fmt.Errorf("invalid cron expression: %w", err)
	}
	first := sched.Next(t.now())
	second := sched.Next(first)
	if second.Sub(first) < minInterval {
		return "", fmt.Errorf("schedule fires more often than every %s", minInterval)
	}

	job := store.ScheduledJob{
		JobID:    uuid.NewString(),
		CronExpr: expr,
		Prompt:   prompt,
	}
	if err := t.jobs.CreateJob(job); err != nil {
		return "", err
	}
	if t.sched != nil {
		if err := t.sched.AddJob(job); err != nil {
			_, _ = t.jobs.DeleteJob(job.JobID)
			return "", fmt.Errorf("failed to schedule job: %w", err)
		}
	}
	return fmt.Sprintf("scheduled job %s (%s), next run %s", job.JobID, expr, first.Format(time.RFC3339)), nil
}

func (t *Toolset) list() (string, error) {
	jobs, err := t.jobs.ListJobs()
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "no scheduled jobs", nil
	}

	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "%s  %s  %s\n", j.JobID, j.CronExpr, j.Prompt)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Toolset) delete(input tools.Input) (string, error) {
	jobID := strings.TrimSpace(input.String("job_id"))
	if jobID == "" {
		return "", fmt.Errorf("job_id is required")
	}

	existed, err := t.jobs.DeleteJob(jobID)
	if err != nil {
		return "", err
	}
	if !existed {
		return "", fmt.Errorf("no job with id %s", jobID)
	}
	if t.sched != nil {
		t.sched.RemoveJob(jobID)
	}
	return "deleted job " + jobID, nil
}

func destructiveMarker(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, m := range destructiveMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}
