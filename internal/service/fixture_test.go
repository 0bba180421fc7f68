package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/events"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/ratelimit"
	"github.com/riteshkumar/bank-payments/internal/repository"
)

var (
	alice    = auth.Identity{AccountNumber: "1000001", Username: "alice", Role: models.RoleCustomer}
	bob      = auth.Identity{AccountNumber: "2000002", Username: "bob", Role: models.RoleCustomer}
	carol    = auth.Identity{AccountNumber: "4000004", Username: "carol", Role: models.RoleCustomer}
	employee = auth.Identity{Username: "teller", Role: models.RoleEmployee}
)

type fixture struct {
	memory       *repository.MemoryStore
	accounts     *AccountServiceImpl
	transactions *TransactionServiceImpl
	approvals    *ApprovalServiceImpl
	auth         *AuthServiceImpl
	jwt          *auth.JWTManager
	events       *events.Recorder
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	requireVerification bool
	wrap                func(repository.Store) repository.Store
}

func withoutVerification() fixtureOption {
	return func(c *fixtureConfig) { c.requireVerification = false }
}

func withStore(wrap func(repository.Store) repository.Store) fixtureOption {
	return func(c *fixtureConfig) { c.wrap = wrap }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{requireVerification: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	memory := repository.NewMemoryStore()
	var store repository.Store = memory
	if cfg.wrap != nil {
		store = cfg.wrap(memory)
	}

	logger := zaptest.NewLogger(t)
	recorder := &events.Recorder{}
	jwt := auth.NewJWTManager("test-secret", "bank-payments", time.Hour)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Options{Limit: 3, Window: time.Minute, Block: time.Minute})

	accounts := NewAccountService(store, logger)
	return &fixture{
		memory:       memory,
		accounts:     accounts,
		transactions: NewTransactionService(store, accounts, recorder, logger),
		approvals:    NewApprovalService(store, accounts, recorder, cfg.requireVerification, logger),
		auth:         NewAuthService(store, accounts, auth.NewBcryptHasher(bcrypt.MinCost), jwt, limiter, decimal.NewFromInt(10000), logger),
		jwt:          jwt,
		events:       recorder,
	}
}

func (f *fixture) addAccount(t *testing.T, identity auth.Identity, balance string) {
	t.Helper()
	err := f.accounts.CreateAccount(context.Background(), &models.Account{
		AccountNumber: identity.AccountNumber,
		FirstName:     identity.Username,
		Username:      identity.Username,
		PasswordHash:  "x",
		Balance:       decimal.RequireFromString(balance),
		Role:          models.RoleCustomer,
	}, "test")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, accountNumber string) decimal.Decimal {
	t.Helper()
	account, err := f.accounts.FindAccount(context.Background(), accountNumber)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) transactionCount(t *testing.T, accountNumber string) int {
	t.Helper()
	var n int
	err := f.memory.View(context.Background(), func(tx repository.Tx) error {
		list, err := tx.Transactions().GetByAccountNumber(context.Background(), accountNumber)
		n = len(list)
		return err
	})
	require.NoError(t, err)
	return n
}

func localTransfer(to, amount string) *models.TransferRequest {
	return &models.TransferRequest{
		Type:                   models.TransactionTypeLocal,
		RecipientName:          "Bob Builder",
		RecipientBank:          "First Bank",
		RecipientAccountNumber: to,
		Amount:                 decimal.RequireFromString(amount),
		BranchCode:             "123",
	}
}

func internationalTransfer(to, amount string) *models.TransferRequest {
	return &models.TransferRequest{
		Type:                   models.TransactionTypeInternational,
		RecipientName:          "Jane Doe",
		RecipientBank:          "Barclays",
		RecipientAccountNumber: to,
		Amount:                 decimal.RequireFromString(amount),
		SwiftCode:              "AAAABBCC",
		Currency:               "USD",
	}
}

const registryAccount = "30000003"

func (f *fixture) seedRegistry() {
	f.memory.SeedRecipients(models.InternationalRecipient{
		AccountNumber: registryAccount,
		Name:          "Jane Doe",
		Bank:          "Barclays",
		SwiftCode:     "AAAABBCC",
	})
}

// faultyStore fails every transaction insert, after any balance change in
// the same unit of work has already been staged.
type faultyStore struct {
	repository.Store
	err error
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(&faultyTx{Tx: tx, err: s.err})
	})
}

type faultyTx struct {
	repository.Tx
	err error
}

func (t *faultyTx) Transactions() repository.TransactionRepository {
	return &faultyTransactions{TransactionRepository: t.Tx.Transactions(), err: t.err}
}

type faultyTransactions struct {
	repository.TransactionRepository
	err error
}

func (r *faultyTransactions) Create(ctx context.Context, transaction *models.Transaction) error {
	return r.err
}
