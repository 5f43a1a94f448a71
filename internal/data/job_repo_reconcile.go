package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data/pgxutil"
)

// Advisory lock namespace for reconciler operations, used with the two-arg
// pg_try_advisory_xact_lock(major, minor).
const (
	advisoryLockReconcilerMajor      = 2000
	advisoryLockReconcilerProcessing = 1 // ReconcileProcessing
	advisoryLockReconcilerDelete     = 2 // DeleteOldJobs
	advisoryLockReconcilerReminders  = 3 // ReminderRepo.DeleteCompletedBefore
)

const abandonedJobMessage = "processing timed out"

// ReconcileProcessing recovers jobs left in processing by a crashed dispatcher.
// Rows whose started_at is older than StaleAfter go back to pending while they
// have attempts left and to failed otherwise. At most BatchSize rows are touched
// per call. A concurrent reconciler holding the lock makes this a no-op.
func (r *JobRepo) ReconcileProcessing(ctx context.Context, params core.ReconcileParams) (core.ReconcileCounts, error) {
	var counts core.ReconcileCounts
	if params.BatchSize <= 0 {
		return counts, errors.New("batch size must be greater than zero")
	}
	if params.StaleAfter <= 0 {
		return counts, errors.New("stale after must be greater than zero")
	}

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockReconcilerMajor, advisoryLockReconcilerProcessing)
			if err != nil || !locked {
				return err
			}

			now := r.timeProvider.Now()
			cutoff := now.Add(-params.StaleAfter)

			rows, err := tx.QueryContext(ctx, `
				WITH stale AS (
					SELECT id FROM jobs
					WHERE status = 'processing'
					  AND COALESCE(started_at, updated_at) < $1
					ORDER BY COALESCE(started_at, updated_at)
					LIMIT $2
					FOR UPDATE SKIP LOCKED
				)
				UPDATE jobs j
				SET status = CASE WHEN j.attempts < j.max_retries THEN 'pending' ELSE 'failed' END,
					result = CASE WHEN j.attempts < j.max_retries THEN j.result
						ELSE jsonb_build_object('error', $3::text) END,
					completed_at = CASE WHEN j.attempts < j.max_retries THEN NULL ELSE $4 END,
					updated_at = $4
				FROM stale
				WHERE j.id = stale.id
				RETURNING j.status`, cutoff.UTC(), params.BatchSize, abandonedJobMessage, now)
			if err != nil {
				return fmt.Errorf("reconcile processing jobs: %w", err)
			}
			defer func() { _ = rows.Close() }()

			for rows.Next() {
				var status string
				if scanErr := rows.Scan(&status); scanErr != nil {
					return fmt.Errorf("scan reconciled status: %w", scanErr)
				}
				if status == "pending" {
					counts.Requeued++
				} else {
					counts.Failed++
				}
			}
			return rows.Err()
		},
	})
	if err != nil {
		return core.ReconcileCounts{}, err
	}
	return counts, nil
}

// DeleteOldJobs deletes jobs with the given terminal status finished more than MaxAge ago.
// Processes up to BatchSize jobs per call to keep locks short.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("only terminal jobs can be deleted: %s", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var deleted int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockReconcilerMajor, advisoryLockReconcilerDelete)
			if err != nil || !locked {
				return err
			}

			cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = $1
					  AND COALESCE(completed_at, updated_at) < $2
					ORDER BY COALESCE(completed_at, updated_at)
					LIMIT $3
				)`, string(params.Status), cutoff, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}
			deleted, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
