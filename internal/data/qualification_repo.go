package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

const noQualificationReason = "no qualification on record"

// QualificationRepo answers qualification checks from the customer_qualifications table.
// It satisfies pipeline.QualificationOracle.
type QualificationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewQualificationRepo creates a new QualificationRepo instance.
func NewQualificationRepo(db *sql.DB, cfg RepoConfig) *QualificationRepo {
	return &QualificationRepo{DB: db, timeProvider: resolveTimeProvider(cfg.TimeProvider)}
}

// Evaluate returns the stored qualification. A customer without a row is reported
// as unqualified with a zero score.
func (r *QualificationRepo) Evaluate(ctx context.Context, customerID string) (*model.Qualification, error) {
	var (
		q       model.Qualification
		missing []string
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT score, qualified, reason, missing
		FROM customer_qualifications
		WHERE customer_id = $1`, customerID,
	).Scan(&q.Score, &q.Qualified, &q.Reason, pgtype.NewMap().SQLScanner(&missing))
	if errors.Is(err, sql.ErrNoRows) {
		return &model.Qualification{Reason: noQualificationReason, Missing: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate qualification: %w", err)
	}
	q.Missing = append([]string{}, missing...)
	return &q, nil
}

// Upsert stores the latest qualification for a customer.
func (r *QualificationRepo) Upsert(ctx context.Context, customerID string, q model.Qualification) error {
	missing := q.Missing
	if missing == nil {
		missing = []string{}
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO customer_qualifications (customer_id, score, qualified, reason, missing, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id) DO UPDATE
		SET score = EXCLUDED.score,
			qualified = EXCLUDED.qualified,
			reason = EXCLUDED.reason,
			missing = EXCLUDED.missing,
			updated_at = EXCLUDED.updated_at`,
		customerID, q.Score, q.Qualified, q.Reason, missing, r.timeProvider.Now())
	if err != nil {
		return fmt.Errorf("upsert qualification: %w", err)
	}
	return nil
}
