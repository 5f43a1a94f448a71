package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/mmk-pipeline/internal/domain/model"
)

// ListByStatus returns up to limit jobs in status, most recently updated first.
func (r *JobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status: %q", status)
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = $1
		ORDER BY updated_at DESC, id
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.Job, 0, limit)
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Retry moves a failed job back to pending with attempts reset and the result cleared.
// Jobs in any other status are a state conflict.
func (r *JobRepo) Retry(ctx context.Context, id string) (*model.Job, error) {
	r.logger.InfoContext(ctx, "retry job", "job_id", id)
	return r.transition(ctx, transitionQuery{
		id: id,
		query: `
			UPDATE jobs
			SET status = 'pending',
				attempts = 0,
				result = NULL,
				started_at = NULL,
				completed_at = NULL,
				updated_at = $2
			WHERE id = $1 AND status = 'failed'
			RETURNING ` + jobColumns,
		args: []any{id, r.timeProvider.Now()},
	})
}
