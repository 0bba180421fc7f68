package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-payments/internal/models"
)

// Store is the ledger store. Every read-modify-write runs inside WithTx so
// that the writes of one call commit together or not at all.
type Store interface {
	// WithTx runs fn in a read-write unit of work. fn may be invoked more than
	// once when the backend retries a serialization failure, so it must not
	// leak state between attempts.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(tx Tx) error) error
	Recipients() RecipientRepository
	Close() error
}

// Tx is the transaction-scoped view handed to WithTx and View callbacks.
type Tx interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	Audit() AuditRepository
	Verifications() VerificationRepository
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	// GetAccountByNumberForUpdate locks the row until the unit of work ends.
	GetAccountByNumberForUpdate(ctx context.Context, accountNumber string) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	UpdateAccountBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal) error
}

type TransactionRepository interface {
	Create(ctx context.Context, transaction *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, sender, key string) (*models.Transaction, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) ([]*models.Transaction, error)
	ListByStatus(ctx context.Context, status models.TransactionStatus, page models.Page) ([]*models.Transaction, error)
	// Resolve moves a pending transaction to a terminal status. It fails with
	// ErrAlreadyResolved when the stored status is no longer pending.
	Resolve(ctx context.Context, transaction *models.Transaction) error
}

type AuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	GetByEntityID(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error)
}

type VerificationRepository interface {
	Upsert(ctx context.Context, verification *models.Verification) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*models.Verification, error)
}

// RecipientRepository is read-only to the core.
type RecipientRepository interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.InternationalRecipient, error)
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// NormalizePage clamps a page to sane bounds.
func NormalizePage(p models.Page) models.Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
