package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/repository"
)

type AccountService interface {
	FindAccount(ctx context.Context, accountNumber string) (*models.Account, error)
	Debit(ctx context.Context, accountNumber string, amount decimal.Decimal, actor string) (*models.BalanceChange, error)
	Credit(ctx context.Context, accountNumber string, amount decimal.Decimal, actor string) (*models.BalanceChange, error)
	TransferAtomic(ctx context.Context, from, to string, amount decimal.Decimal, actor string) (*models.TransferResult, error)
	CreateAccount(ctx context.Context, account *models.Account, actor string) error
	Dashboard(ctx context.Context, identity auth.Identity) (*models.DashboardResponse, error)
}

// AccountServiceImpl is the only code that changes balances. The InTx
// variants let other services fold balance effects into their own unit of work.
type AccountServiceImpl struct {
	store  repository.Store
	logger *zap.Logger
}

func NewAccountService(store repository.Store, logger *zap.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{
		store:  store,
		logger: logger,
	}
}

func (s *AccountServiceImpl) FindAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	if accountNumber == "" {
		return nil, errors.NewValidationError("accountNumber", "must be non-empty")
	}

	var account *models.Account
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().GetAccountByNumber(ctx, accountNumber)
		return err
	})
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("account not found", zap.String("account_number", accountNumber))
			return nil, err
		}
		s.logger.Error("failed to get account",
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, errors.Wrap("find account", err)
	}
	return account, nil
}

func (s *AccountServiceImpl) Debit(ctx context.Context, accountNumber string, amount decimal.Decimal, actor string) (*models.BalanceChange, error) {
	var change *models.BalanceChange
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		change, err = s.DebitInTx(ctx, tx, accountNumber, amount, actor)
		return err
	})
	if err != nil {
		s.logFailure("debit", accountNumber, amount, err)
		return nil, errors.Wrap("debit", err)
	}
	return change, nil
}

func (s *AccountServiceImpl) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal, actor string) (*models.BalanceChange, error) {
	var change *models.BalanceChange
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		change, err = s.CreditInTx(ctx, tx, accountNumber, amount, actor)
		return err
	})
	if err != nil {
		s.logFailure("credit", accountNumber, amount, err)
		return nil, errors.Wrap("credit", err)
	}
	return change, nil
}

// TransferAtomic moves amount from one account to another in a single unit of
// work. An unknown recipient is not an error: only the debit applies and the
// outcome says so.
func (s *AccountServiceImpl) TransferAtomic(ctx context.Context, from, to string, amount decimal.Decimal, actor string) (*models.TransferResult, error) {
	var result *models.TransferResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		result, err = s.TransferInTx(ctx, tx, from, to, amount, actor)
		return err
	})
	if err != nil {
		s.logFailure("transfer", from, amount, err)
		return nil, errors.Wrap("transfer", err)
	}
	return result, nil
}

func (s *AccountServiceImpl) DebitInTx(ctx context.Context, tx repository.Tx, accountNumber string, amount decimal.Decimal, actor string) (*models.BalanceChange, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	account, err := tx.Accounts().GetAccountByNumberForUpdate(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return s.applyDebit(ctx, tx, account, amount, actor)
}

func (s *AccountServiceImpl) CreditInTx(ctx context.Context, tx repository.Tx, accountNumber string, amount decimal.Decimal, actor string) (*models.BalanceChange, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	account, err := tx.Accounts().GetAccountByNumberForUpdate(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return s.applyCredit(ctx, tx, account, amount, actor)
}

// TransferInTx locks both rows in account number order so that two opposite
// transfers cannot deadlock.
func (s *AccountServiceImpl) TransferInTx(ctx context.Context, tx repository.Tx, from, to string, amount decimal.Decimal, actor string) (*models.TransferResult, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}
	if from == to {
		return nil, errors.NewValidationError("recAccNo", "cannot transfer to the sending account")
	}

	order := []string{from, to}
	if to < from {
		order = []string{to, from}
	}

	locked := make(map[string]*models.Account, 2)
	for _, accountNumber := range order {
		account, err := tx.Accounts().GetAccountByNumberForUpdate(ctx, accountNumber)
		if err != nil {
			if errors.IsNotFound(err) && accountNumber == to {
				continue
			}
			return nil, err
		}
		locked[accountNumber] = account
	}

	senderChange, err := s.applyDebit(ctx, tx, locked[from], amount, actor)
	if err != nil {
		return nil, err
	}

	result := &models.TransferResult{
		Outcome: models.OutcomeSettled,
		Sender:  *senderChange,
	}

	recipient, ok := locked[to]
	if !ok {
		s.logger.Warn("recipient account not found, sender debited only",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("amount", amount.String()),
		)
		result.Outcome = models.OutcomeSettledNoRecipientCredit
		return result, nil
	}

	recipientChange, err := s.applyCredit(ctx, tx, recipient, amount, actor)
	if err != nil {
		return nil, err
	}
	result.Recipient = recipientChange
	return result, nil
}

func (s *AccountServiceImpl) applyDebit(ctx context.Context, tx repository.Tx, account *models.Account, amount decimal.Decimal, actor string) (*models.BalanceChange, error) {
	if account.Balance.LessThan(amount) {
		s.logger.Warn("insufficient balance",
			zap.String("account_number", account.AccountNumber),
			zap.String("available_balance", account.Balance.String()),
			zap.String("requested_amount", amount.String()),
		)
		return nil, errors.ErrInsufficientFunds
	}
	return s.setBalance(ctx, tx, account, account.Balance.Sub(amount), models.AuditActionDebit, actor)
}

func (s *AccountServiceImpl) applyCredit(ctx context.Context, tx repository.Tx, account *models.Account, amount decimal.Decimal, actor string) (*models.BalanceChange, error) {
	return s.setBalance(ctx, tx, account, account.Balance.Add(amount), models.AuditActionCredit, actor)
}

func (s *AccountServiceImpl) setBalance(ctx context.Context, tx repository.Tx, account *models.Account, newBalance decimal.Decimal, action, actor string) (*models.BalanceChange, error) {
	if err := tx.Accounts().UpdateAccountBalance(ctx, account.AccountNumber, newBalance); err != nil {
		return nil, err
	}

	change := &models.BalanceChange{
		AccountNumber: account.AccountNumber,
		Before:        account.Balance,
		After:         newBalance,
	}

	err := writeAudit(ctx, tx, models.EntityTypeAccount, account.AccountNumber, action, actor,
		models.AccountBalanceSnapshot{AccountNumber: account.AccountNumber, Balance: change.Before},
		models.AccountBalanceSnapshot{AccountNumber: account.AccountNumber, Balance: change.After},
	)
	if err != nil {
		return nil, err
	}

	account.Balance = newBalance
	return change, nil
}

func (s *AccountServiceImpl) CreateAccount(ctx context.Context, account *models.Account, actor string) error {
	if account.Balance.IsNegative() {
		return errors.NewValidationError("balance", "must not be negative")
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
			return err
		}
		return writeAudit(ctx, tx, models.EntityTypeAccount, account.AccountNumber, models.AuditActionCreate, actor,
			nil,
			models.AccountBalanceSnapshot{AccountNumber: account.AccountNumber, Balance: account.Balance},
		)
	})
	if err != nil {
		if errors.IsAlreadyExists(err) || errors.Is(err, errors.ErrUsernameTaken) {
			s.logger.Warn("account already exists",
				zap.String("account_number", account.AccountNumber),
				zap.String("username", account.Username),
			)
			return err
		}
		s.logger.Error("failed to create account",
			zap.String("account_number", account.AccountNumber),
			zap.Error(err),
		)
		return errors.Wrap("create account", err)
	}

	s.logger.Info("account created successfully",
		zap.String("account_number", account.AccountNumber),
		zap.String("role", string(account.Role)),
	)
	return nil
}

// Dashboard returns the caller's profile and every transaction they sent or
// received, newest first.
func (s *AccountServiceImpl) Dashboard(ctx context.Context, identity auth.Identity) (*models.DashboardResponse, error) {
	if !identity.IsCustomer() {
		return nil, errors.ErrForbidden
	}

	var (
		account      *models.Account
		transactions []*models.Transaction
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().GetAccountByNumber(ctx, identity.AccountNumber)
		if err != nil {
			return err
		}
		transactions, err = tx.Transactions().GetByAccountNumber(ctx, identity.AccountNumber)
		return err
	})
	if err != nil {
		if !errors.IsDomain(err) {
			s.logger.Error("failed to load dashboard",
				zap.String("account_number", identity.AccountNumber),
				zap.Error(err),
			)
		}
		return nil, errors.Wrap("dashboard", err)
	}

	return &models.DashboardResponse{
		Message: "Welcome " + account.FirstName,
		User: models.AccountResponse{
			AccountNumber: account.AccountNumber,
			FirstName:     account.FirstName,
			LastName:      account.LastName,
			Email:         account.Email,
			Balance:       account.Balance,
		},
		Transactions: transactions,
	}, nil
}

func (s *AccountServiceImpl) logFailure(op, accountNumber string, amount decimal.Decimal, err error) {
	fields := []zap.Field{
		zap.String("account_number", accountNumber),
		zap.String("amount", amount.String()),
		zap.Error(err),
	}
	if errors.IsDomain(err) {
		s.logger.Warn(op+" rejected", fields...)
		return
	}
	s.logger.Error(op+" failed", fields...)
}
