package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/errors"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db         *sql.DB
	maxRetries int
	logger     *zap.Logger
}

func NewPostgresStore(db *sql.DB, maxRetries int, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:         db,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Connect opens the connection pool and waits for the database to answer.
func Connect(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(10 * time.Minute)

	for i := 1; i <= 5; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		logger.Warn("waiting for database", zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	db.Close()
	return nil, fmt.Errorf("failed to ping database: %w", err)
}

// WithTx runs fn under SERIALIZABLE isolation and retries serialization
// failures up to maxRetries times.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
		if !isRetryable(err) {
			return err
		}
		s.logger.Warn("retrying serialization failure",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *PostgresStore) run(ctx context.Context, opts *sql.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure rollback on error
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Nullify tx to avoid rollback in defer
	tx = nil
	return nil
}

func (s *PostgresStore) Recipients() RecipientRepository {
	return NewRecipientRepository(s.db)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Accounts() AccountRepository {
	return NewAccountRepository(t.tx)
}

func (t *postgresTx) Transactions() TransactionRepository {
	return NewTransactionRepository(t.tx)
}

func (t *postgresTx) Audit() AuditRepository {
	return NewAuditRepository(t.tx)
}

func (t *postgresTx) Verifications() VerificationRepository {
	return NewVerificationRepository(t.tx)
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	code := pqCode(err)
	return code == pqSerializationFailure || code == pqDeadlockDetected
}
