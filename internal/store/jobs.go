package store

import (
	"fmt"
	"time"
)

// ScheduledJob is a persisted cron job created through the agent.
type ScheduledJob struct {
	JobID     string
	CronExpr  string
	Prompt    string
	CreatedAt time.Time
}

// CreateJob persists a scheduled job.
func (s *Store) CreateJob(j ScheduledJob) error {
	_, err := s.db.Exec(
		`INSERT INTO scheduled_jobs (job_id, cron_expr, prompt) VALUES (?, ?, ?)`,
		j.JobID, j.CronExpr, j.Prompt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// ListJobs returns all scheduled jobs, oldest first.
func (s *Store) ListJobs() ([]ScheduledJob, error) {
	rows, err := s.db.Query(
		`SELECT job_id, cron_expr, prompt, created_at FROM scheduled_jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ScheduledJob
	for rows.Next() {
		var j ScheduledJob
		if err := rows.Scan(&j.JobID, &j.CronExpr, &j.Prompt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job by id, reporting whether it existed.
func (s *Store) DeleteJob(jobID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
