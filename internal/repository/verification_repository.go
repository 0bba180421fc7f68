package repository

import (
	"context"
	"fmt"

	"github.com/riteshkumar/bank-payments/internal/models"
)

type PostgresVerificationRepository struct {
	db dbtx
}

func NewVerificationRepository(db dbtx) *PostgresVerificationRepository {
	return &PostgresVerificationRepository{db: db}
}

// Upsert records the latest verification result for a (transaction, field) pair.
func (r *PostgresVerificationRepository) Upsert(ctx context.Context, v *models.Verification) error {
	query := `INSERT INTO transaction_verifications (transaction_id, field, matched, verified_by, verified_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (transaction_id, field)
		DO UPDATE SET matched = EXCLUDED.matched, verified_by = EXCLUDED.verified_by, verified_at = EXCLUDED.verified_at
		RETURNING verified_at`

	err := r.db.QueryRowContext(ctx, query, v.TransactionID, v.Field, v.Matched, v.VerifiedBy).
		Scan(&v.VerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert verification: %w", err)
	}
	return nil
}

func (r *PostgresVerificationRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.Verification, error) {
	query := `SELECT transaction_id, field, matched, verified_by, verified_at
		FROM transaction_verifications
		WHERE transaction_id = $1
		ORDER BY field`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	var verifications []*models.Verification
	for rows.Next() {
		v := &models.Verification{}
		if err := rows.Scan(&v.TransactionID, &v.Field, &v.Matched, &v.VerifiedBy, &v.VerifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		verifications = append(verifications, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over verifications: %w", err)
	}
	return verifications, nil
}
