package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-pipeline/internal/data/pgxutil"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

// ReminderRepo provides database operations for reminders.
type ReminderRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewReminderRepo creates a new ReminderRepo instance.
func NewReminderRepo(db *sql.DB, cfg RepoConfig) *ReminderRepo {
	return &ReminderRepo{DB: db, timeProvider: resolveTimeProvider(cfg.TimeProvider)}
}

const reminderColumns = `id, customer_id, type, message, scheduled_for, completed, repeat_interval, created_at, updated_at`

// Create inserts a new incomplete reminder.
func (r *ReminderRepo) Create(ctx context.Context, req *model.CreateReminderRequest) (*model.Reminder, error) {
	if req == nil {
		return nil, errors.New("create reminder request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO reminders (id, customer_id, type, message, scheduled_for, completed, repeat_interval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $7)
		RETURNING `+reminderColumns,
		uuid.NewString(), strings.TrimSpace(req.CustomerID), req.Type, req.Message,
		req.ScheduledFor.UTC(), req.RepeatInterval, now,
	)
	rem, err := scanReminder(row)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return rem, nil
}

// GetByID returns the reminder or ErrReminderNotFound.
func (r *ReminderRepo) GetByID(ctx context.Context, id string) (*model.Reminder, error) {
	if !validID(id) {
		return nil, ErrReminderNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReminderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return rem, nil
}

// ListDue returns incomplete reminders scheduled at or before now, oldest first.
func (r *ReminderRepo) ListDue(ctx context.Context, now time.Time) ([]*model.Reminder, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE completed = false AND scheduled_for <= $1
		ORDER BY scheduled_for ASC, created_at ASC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return collectReminders(rows)
}

// ListByCustomer returns all reminders of a customer ordered by scheduled_for.
func (r *ReminderRepo) ListByCustomer(ctx context.Context, customerID string) ([]*model.Reminder, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE customer_id = $1
		ORDER BY scheduled_for ASC, created_at ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer reminders: %w", err)
	}
	return collectReminders(rows)
}

// MarkCompleted sets completed=true. A reminder that is already completed is returned as is.
func (r *ReminderRepo) MarkCompleted(ctx context.Context, id string) (*model.Reminder, error) {
	if !validID(id) {
		return nil, ErrReminderNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
		UPDATE reminders
		SET completed = true, updated_at = $2
		WHERE id = $1 AND completed = false
		RETURNING `+reminderColumns, id, r.timeProvider.Now())
	rem, err := scanReminder(row)
	if err == nil {
		return rem, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("complete reminder: %w", err)
	}
	// Either missing or already completed.
	return r.GetByID(ctx, id)
}

// Update applies a partial patch and refreshes updated_at. A completed reminder can
// be neither reopened nor moved; such patches fail with ErrReminderLocked.
func (r *ReminderRepo) Update(
	ctx context.Context,
	id string,
	req *model.UpdateReminderRequest,
) (*model.Reminder, error) {
	if req == nil {
		return nil, errors.New("update reminder request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrReminderNotFound
	}

	var out *model.Reminder
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			cur, err := scanReminder(tx.QueryRowContext(ctx,
				`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 FOR UPDATE`, id))
			if errors.Is(err, sql.ErrNoRows) {
				return ErrReminderNotFound
			}
			if err != nil {
				return fmt.Errorf("lock reminder: %w", err)
			}
			if cur.FrozenAgainst(req) {
				return ErrReminderLocked
			}

			sets, args := buildReminderPatch(req)
			args = append(args, r.timeProvider.Now(), id)
			query := fmt.Sprintf(`UPDATE reminders SET %s updated_at = $%d WHERE id = $%d RETURNING %s`,
				sets, len(args)-1, len(args), reminderColumns)

			out, err = scanReminder(tx.QueryRowContext(ctx, query, args...))
			if err != nil {
				return fmt.Errorf("update reminder: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildReminderPatch(req *model.UpdateReminderRequest) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, "%s = $%d, ", col, len(args))
	}
	if req.Type != nil {
		add("type", *req.Type)
	}
	if req.Message != nil {
		add("message", *req.Message)
	}
	if req.ScheduledFor != nil {
		add("scheduled_for", req.ScheduledFor.UTC())
	}
	if req.Completed != nil {
		add("completed", *req.Completed)
	}
	if req.RepeatInterval != nil {
		add("repeat_interval", *req.RepeatInterval)
	}
	return b.String(), args
}

// Delete removes a reminder and reports whether a row existed.
func (r *ReminderRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// HasOpen reports whether the customer has an incomplete reminder of the given type.
func (r *ReminderRepo) HasOpen(ctx context.Context, customerID string, reminderType model.ReminderType) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminders
			WHERE customer_id = $1 AND type = $2 AND completed = false
		)`, customerID, reminderType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open reminder: %w", err)
	}
	return exists, nil
}

// DeleteCompletedBefore removes up to batchSize completed reminders last touched before cutoff.
func (r *ReminderRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var deleted int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockReconcilerMajor, advisoryLockReconcilerReminders)
			if err != nil || !locked {
				return err
			}
			res, err := tx.ExecContext(ctx, `
				DELETE FROM reminders
				WHERE id IN (
					SELECT id FROM reminders
					WHERE completed = true AND updated_at < $1
					ORDER BY updated_at
					LIMIT $2
				)`, cutoff.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete completed reminders: %w", err)
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

// validID reports whether id can be compared against a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var (
		rem    model.Reminder
		repeat sql.NullString
	)
	if err := row.Scan(
		&rem.ID, &rem.CustomerID, &rem.Type, &rem.Message, &rem.ScheduledFor,
		&rem.Completed, &repeat, &rem.CreatedAt, &rem.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if repeat.Valid {
		rem.RepeatInterval = &repeat.String
	}
	rem.ScheduledFor = rem.ScheduledFor.UTC()
	return &rem, nil
}

func collectReminders(rows *sql.Rows) ([]*model.Reminder, error) {
	defer func() { _ = rows.Close() }()

	out := make([]*model.Reminder, 0)
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}
