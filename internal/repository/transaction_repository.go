package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
)

type PostgresTransactionRepository struct {
	db dbtx
}

func NewTransactionRepository(db dbtx) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

const transactionColumns = `id, type, sender_account_number, recipient_name, recipient_bank,
	recipient_account_number, swift_code, branch_code, currency, amount, status, idempotency_key,
	resolved_by, resolved_at, rejection_reason, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var (
		transaction    = &models.Transaction{}
		idempotencyKey sql.NullString
		resolvedBy     sql.NullString
		resolvedAt     sql.NullTime
	)

	err := row.Scan(
		&transaction.ID,
		&transaction.Type,
		&transaction.SenderAccountNumber,
		&transaction.Recipient.Name,
		&transaction.Recipient.Bank,
		&transaction.Recipient.AccountNumber,
		&transaction.Recipient.SwiftCode,
		&transaction.Recipient.BranchCode,
		&transaction.Recipient.Currency,
		&transaction.Amount,
		&transaction.Status,
		&idempotencyKey,
		&resolvedBy,
		&resolvedAt,
		&transaction.RejectionReason,
		&transaction.CreatedAt,
		&transaction.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	transaction.IdempotencyKey = idempotencyKey.String
	transaction.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		transaction.ResolvedAt = &t
	}
	return transaction, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	query := `INSERT INTO transactions (id, type, sender_account_number, recipient_name, recipient_bank,
			recipient_account_number, swift_code, branch_code, currency, amount, status, idempotency_key,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		transaction.ID,
		transaction.Type,
		transaction.SenderAccountNumber,
		transaction.Recipient.Name,
		transaction.Recipient.Bank,
		transaction.Recipient.AccountNumber,
		transaction.Recipient.SwiftCode,
		transaction.Recipient.BranchCode,
		transaction.Recipient.Currency,
		transaction.Amount,
		transaction.Status,
		nullString(transaction.IdempotencyKey),
	).Scan(&transaction.CreatedAt, &transaction.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation && transaction.IdempotencyKey != "" {
			return errors.ErrDuplicateSubmission
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r *PostgresTransactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresTransactionRepository) GetByIdempotencyKey(ctx context.Context, sender, key string) (*models.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE sender_account_number = $1 AND idempotency_key = $2`, sender, key)
}

func (r *PostgresTransactionRepository) getOne(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	transaction, err := scanTransaction(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return transaction, nil
}

func (r *PostgresTransactionRepository) GetByAccountNumber(ctx context.Context, accountNumber string) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE sender_account_number = $1 OR recipient_account_number = $1
		ORDER BY created_at DESC, id DESC`

	return r.list(ctx, query, accountNumber)
}

func (r *PostgresTransactionRepository) ListByStatus(ctx context.Context, status models.TransactionStatus, page models.Page) ([]*models.Transaction, error) {
	page = NormalizePage(page)
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, query, status, page.Limit, page.Offset)
}

func (r *PostgresTransactionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, transaction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}
	return transactions, nil
}

func (r *PostgresTransactionRepository) Resolve(ctx context.Context, transaction *models.Transaction) error {
	query := `UPDATE transactions
		SET status = $1, resolved_by = $2, resolved_at = $3, rejection_reason = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND status = 'pending'
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		transaction.Status,
		nullString(transaction.ResolvedBy),
		transaction.ResolvedAt,
		transaction.RejectionReason,
		transaction.ID,
	).Scan(&transaction.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return errors.ErrAlreadyResolved
		}
		return fmt.Errorf("failed to resolve transaction: %w", err)
	}
	return nil
}
