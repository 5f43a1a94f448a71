package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data/pgxutil"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

// CustomerRepo reads customers and records their stage history.
type CustomerRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCustomerRepo creates a new CustomerRepo instance.
func NewCustomerRepo(db *sql.DB, cfg RepoConfig) *CustomerRepo {
	return &CustomerRepo{DB: db, timeProvider: resolveTimeProvider(cfg.TimeProvider)}
}

const customerColumns = `id, name, status, created_at, updated_at`

// GetByID returns the customer or ErrCustomerNotFound.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	c, err := scanCustomer(r.DB.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// ApplyTransition moves the customer from params.From to params.To and logs the
// change. It fails with ErrStageConflict when the stored stage is no longer params.From.
func (r *CustomerRepo) ApplyTransition(ctx context.Context, params core.TransitionParams) (*model.StageTransition, error) {
	if !params.From.Valid() || !params.To.Valid() {
		return nil, fmt.Errorf("invalid stage pair %q -> %q", params.From, params.To)
	}

	now := r.timeProvider.Now()
	tr := &model.StageTransition{
		ID:         uuid.NewString(),
		CustomerID: params.CustomerID,
		FromStage:  params.From,
		ToStage:    params.To,
		Notes:      params.Notes,
		CreatedAt:  now,
	}

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE customers SET status = $3, updated_at = $4
				WHERE id = $1 AND status = $2`,
				params.CustomerID, string(params.From), string(params.To), now)
			if err != nil {
				return fmt.Errorf("update customer stage: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				var exists bool
				if err := tx.QueryRowContext(ctx,
					`SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, params.CustomerID,
				).Scan(&exists); err != nil {
					return fmt.Errorf("check customer: %w", err)
				}
				if !exists {
					return ErrCustomerNotFound
				}
				return ErrStageConflict
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stage_transitions (id, customer_id, from_stage, to_stage, notes, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				tr.ID, tr.CustomerID, string(tr.FromStage), string(tr.ToStage), tr.Notes, now); err != nil {
				return fmt.Errorf("insert stage transition: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// ListTransitions returns the customer's stage history, oldest first.
func (r *CustomerRepo) ListTransitions(ctx context.Context, customerID string) ([]*model.StageTransition, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, customer_id, from_stage, to_stage, notes, created_at
		FROM stage_transitions
		WHERE customer_id = $1
		ORDER BY created_at ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list stage transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.StageTransition, 0)
	for rows.Next() {
		var (
			tr    model.StageTransition
			notes sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.CustomerID, &tr.FromStage, &tr.ToStage, &notes, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage transition: %w", err)
		}
		if notes.Valid {
			tr.Notes = &notes.String
		}
		out = append(out, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage transitions: %w", err)
	}
	return out, nil
}

// ListStale returns customers that have sat in params.Stage since before params.Before.
func (r *CustomerRepo) ListStale(ctx context.Context, params core.ListStaleParams) ([]*model.Customer, error) {
	if params.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, string(params.Stage), params.Before.UTC(), params.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale customers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return out, nil
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var (
		c      model.Customer
		status string
	)
	if err := row.Scan(&c.ID, &c.Name, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = model.PipelineStage(status)
	return &c, nil
}
