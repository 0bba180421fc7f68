package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
)

type PostgresAccountRepository struct {
	db dbtx
}

func NewAccountRepository(db dbtx) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `account_number, first_name, last_name, username, email, id_number,
	password_hash, balance, role, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.AccountNumber,
		&account.FirstName,
		&account.LastName,
		&account.Username,
		&account.Email,
		&account.IDNumber,
		&account.PasswordHash,
		&account.Balance,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (account_number, first_name, last_name, username, email, id_number,
			password_hash, balance, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		account.AccountNumber,
		account.FirstName,
		account.LastName,
		account.Username,
		account.Email,
		account.IDNumber,
		account.PasswordHash,
		account.Balance,
		account.Role,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			if strings.Contains(pqErr.Constraint, "username") {
				return errors.ErrUsernameTaken
			}
			return errors.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by number: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) GetAccountByNumberForUpdate(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by number for update: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) UpdateAccountBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE account_number = $2`

	result, err := r.db.ExecContext(ctx, query, newBalance, accountNumber)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating account balance: %w", err)
	}

	if rowsAffected == 0 {
		return errors.ErrAccountNotFound
	}

	return nil
}
