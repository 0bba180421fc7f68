package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
)

type PostgresRecipientRepository struct {
	db dbtx
}

func NewRecipientRepository(db dbtx) *PostgresRecipientRepository {
	return &PostgresRecipientRepository{db: db}
}

func (r *PostgresRecipientRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.InternationalRecipient, error) {
	query := `SELECT account_number, name, bank, swift_code
		FROM international_recipients WHERE account_number = $1`

	recipient := &models.InternationalRecipient{}
	err := r.db.QueryRowContext(ctx, query, accountNumber).
		Scan(&recipient.AccountNumber, &recipient.Name, &recipient.Bank, &recipient.SwiftCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to get international recipient: %w", err)
	}
	return recipient, nil
}
