package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
)

func seedAccount(t *testing.T, s *MemoryStore, number, username string, balance int64) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx Tx) error {
		return tx.Accounts().CreateAccount(context.Background(), &models.Account{
			AccountNumber: number,
			Username:      username,
			PasswordHash:  "hash",
			Balance:       decimal.NewFromInt(balance),
			Role:          models.RoleCustomer,
		})
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, s *MemoryStore, number string) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := s.View(context.Background(), func(tx Tx) error {
		a, err := tx.Accounts().GetAccountByNumber(context.Background(), number)
		if err != nil {
			return err
		}
		balance = a.Balance
		return nil
	})
	require.NoError(t, err)
	return balance
}

func TestMemoryStoreCommitsAllWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)
	seedAccount(t, s, "7654321", "bob", 0)

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.Accounts().UpdateAccountBalance(ctx, "1234567", decimal.NewFromInt(60)); err != nil {
			return err
		}
		return tx.Accounts().UpdateAccountBalance(ctx, "7654321", decimal.NewFromInt(40))
	})
	require.NoError(t, err)

	assert.True(t, balanceOf(t, s, "1234567").Equal(decimal.NewFromInt(60)))
	assert.True(t, balanceOf(t, s, "7654321").Equal(decimal.NewFromInt(40)))
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)

	boom := fmt.Errorf("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.Accounts().UpdateAccountBalance(ctx, "1234567", decimal.NewFromInt(0)); err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, &models.Transaction{
			ID:                  "txn_1",
			Type:                models.TransactionTypeLocal,
			SenderAccountNumber: "1234567",
			Amount:              decimal.NewFromInt(100),
			Status:              models.StatusSettled,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.True(t, balanceOf(t, s, "1234567").Equal(decimal.NewFromInt(100)))
	err = s.View(ctx, func(tx Tx) error {
		_, err := tx.Transactions().GetByID(ctx, "txn_1")
		return err
	})
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
}

func TestMemoryStoreCancelledContextDropsWrites(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.Accounts().UpdateAccountBalance(ctx, "1234567", decimal.NewFromInt(1)); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, balanceOf(t, s, "1234567").Equal(decimal.NewFromInt(100)))
}

func TestMemoryStoreUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.Accounts().CreateAccount(ctx, &models.Account{AccountNumber: "1234567", Username: "other"})
	})
	assert.ErrorIs(t, err, errors.ErrAccountAlreadyExists)

	err = s.WithTx(ctx, func(tx Tx) error {
		return tx.Accounts().CreateAccount(ctx, &models.Account{AccountNumber: "9999999", Username: "alice"})
	})
	assert.ErrorIs(t, err, errors.ErrUsernameTaken)

	create := func(id string) error {
		return s.WithTx(ctx, func(tx Tx) error {
			return tx.Transactions().Create(ctx, &models.Transaction{
				ID:                  id,
				Type:                models.TransactionTypeInternational,
				SenderAccountNumber: "1234567",
				Amount:              decimal.NewFromInt(5),
				Status:              models.StatusPending,
				IdempotencyKey:      "key-1",
			})
		})
	}
	require.NoError(t, create("txn_1"))
	assert.ErrorIs(t, create("txn_2"), errors.ErrDuplicateSubmission)
}

func TestMemoryStoreResolveOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		return tx.Transactions().Create(ctx, &models.Transaction{
			ID:                  "txn_1",
			Type:                models.TransactionTypeInternational,
			SenderAccountNumber: "1234567",
			Amount:              decimal.NewFromInt(5),
			Status:              models.StatusPending,
		})
	}))

	resolve := func() error {
		return s.WithTx(ctx, func(tx Tx) error {
			return tx.Transactions().Resolve(ctx, &models.Transaction{ID: "txn_1", Status: models.StatusRejected})
		})
	}
	require.NoError(t, resolve())
	assert.ErrorIs(t, resolve(), errors.ErrAlreadyResolved)
}

func TestMemoryStoreListByStatusPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("txn_%d", i)
		require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
			return tx.Transactions().Create(ctx, &models.Transaction{
				ID:                  id,
				Type:                models.TransactionTypeInternational,
				SenderAccountNumber: "1234567",
				Amount:              decimal.NewFromInt(1),
				Status:              models.StatusPending,
			})
		}))
	}

	var page []*models.Transaction
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		var err error
		page, err = tx.Transactions().ListByStatus(ctx, models.StatusPending, models.Page{Limit: 2, Offset: 1})
		return err
	}))
	require.Len(t, page, 2)
	assert.Equal(t, "txn_1", page[0].ID)
	assert.Equal(t, "txn_2", page[1].ID)

	var history []*models.Transaction
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		var err error
		history, err = tx.Transactions().GetByAccountNumber(ctx, "1234567")
		return err
	}))
	require.Len(t, history, 5)
	assert.Equal(t, "txn_4", history[0].ID)
}

func TestMemoryStoreViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedAccount(t, s, "1234567", "alice", 100)

	err := s.View(ctx, func(tx Tx) error {
		return tx.Accounts().UpdateAccountBalance(ctx, "1234567", decimal.Zero)
	})
	assert.Error(t, err)
	assert.True(t, balanceOf(t, s, "1234567").Equal(decimal.NewFromInt(100)))
}

func TestLoadRecipientsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.json")
	content := `[{"account_number":"12345678","name":"Jane Doe","bank":"Barclays","swift_code":"BARCGB22"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := NewMemoryStore()
	n, err := s.LoadRecipientsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, err := s.Recipients().GetByAccountNumber(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, "BARCGB22", r.SwiftCode)

	_, err = s.Recipients().GetByAccountNumber(context.Background(), "000000")
	assert.ErrorIs(t, err, errors.ErrRecipientNotFound)
}
