package service

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/events"
	"github.com/riteshkumar/bank-payments/internal/metrics"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/repository"
	"github.com/riteshkumar/bank-payments/internal/validation"
)

const maxIdempotencyKeyLength = 255

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewTransactionID returns a time-sortable "txn_" prefixed ULID.
func NewTransactionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "txn_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

type TransactionService interface {
	SubmitTransfer(ctx context.Context, identity auth.Identity, req *models.TransferRequest, idempotencyKey string) (*models.TransferReceipt, error)
	GetTransaction(ctx context.Context, identity auth.Identity, id string) (*models.Transaction, error)
}

type TransactionServiceImpl struct {
	store     repository.Store
	accounts  *AccountServiceImpl
	publisher events.Publisher
	logger    *zap.Logger
	newID     func() string
}

func NewTransactionService(store repository.Store, accounts *AccountServiceImpl, publisher events.Publisher, logger *zap.Logger) *TransactionServiceImpl {
	return &TransactionServiceImpl{
		store:     store,
		accounts:  accounts,
		publisher: publisher,
		logger:    logger,
		newID:     NewTransactionID,
	}
}

// SubmitTransfer validates and records a payment from the caller's account.
// Local payments settle immediately; international ones wait for approval.
func (s *TransactionServiceImpl) SubmitTransfer(ctx context.Context, identity auth.Identity, req *models.TransferRequest, idempotencyKey string) (*models.TransferReceipt, error) {
	if !identity.IsCustomer() {
		return nil, errors.ErrForbidden
	}
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return nil, errors.NewValidationError("Idempotency-Key", "must be at most 255 characters")
	}
	if err := validation.Transfer(req); err != nil {
		s.logger.Warn("invalid transfer request",
			zap.String("sender", identity.AccountNumber),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		return nil, err
	}

	sender := identity.AccountNumber
	var receipt *models.TransferReceipt

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if idempotencyKey != "" {
			existing, err := tx.Transactions().GetByIdempotencyKey(ctx, sender, idempotencyKey)
			if err == nil {
				receipt, err = s.replayReceipt(ctx, tx, existing)
				return err
			}
			if !errors.IsTransactionNotFound(err) {
				return err
			}
		}

		transaction := &models.Transaction{
			ID:                  s.newID(),
			Type:                req.Type,
			SenderAccountNumber: sender,
			Recipient: models.Recipient{
				Name:          req.RecipientName,
				Bank:          req.RecipientBank,
				AccountNumber: req.RecipientAccountNumber,
				SwiftCode:     req.SwiftCode,
				BranchCode:    req.BranchCode,
				Currency:      req.Currency,
			},
			Amount:         req.Amount,
			IdempotencyKey: idempotencyKey,
		}

		var err error
		if req.Type == models.TransactionTypeLocal {
			receipt, err = s.submitLocal(ctx, tx, transaction, identity.Username)
		} else {
			receipt, err = s.submitInternational(ctx, tx, transaction, identity.Username)
		}
		return err
	})

	if errors.Is(err, errors.ErrDuplicateSubmission) {
		// lost the race to a concurrent submission with the same key
		err = s.store.View(ctx, func(tx repository.Tx) error {
			existing, err := tx.Transactions().GetByIdempotencyKey(ctx, sender, idempotencyKey)
			if err != nil {
				return err
			}
			receipt, err = s.replayReceipt(ctx, tx, existing)
			return err
		})
	}

	if err != nil {
		if errors.IsDomain(err) {
			s.logger.Warn("transfer rejected",
				zap.String("sender", sender),
				zap.String("type", string(req.Type)),
				zap.String("amount", req.Amount.String()),
				zap.Error(err),
			)
			return nil, err
		}
		s.logger.Error("failed to submit transfer",
			zap.String("sender", sender),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		return nil, errors.Wrap("submit transfer", err)
	}

	if receipt.Replayed {
		s.logger.Info("replayed idempotent submission",
			zap.String("transaction_id", receipt.Transaction.ID),
			zap.String("sender", sender),
		)
		return receipt, nil
	}

	metrics.TransfersTotal.WithLabelValues(string(req.Type), string(receipt.Outcome)).Inc()
	publishEvent(ctx, s.publisher, s.logger, receipt.Transaction, identity.Username)
	s.logger.Info("transfer submitted",
		zap.String("transaction_id", receipt.Transaction.ID),
		zap.String("type", string(req.Type)),
		zap.String("status", string(receipt.Transaction.Status)),
		zap.String("outcome", string(receipt.Outcome)),
	)
	return receipt, nil
}

func (s *TransactionServiceImpl) submitLocal(ctx context.Context, tx repository.Tx, transaction *models.Transaction, actor string) (*models.TransferReceipt, error) {
	result, err := s.accounts.TransferInTx(ctx, tx, transaction.SenderAccountNumber, transaction.Recipient.AccountNumber, transaction.Amount, actor)
	if err != nil {
		return nil, err
	}

	// Created -> settled is the only path for a local payment
	transaction.Status = models.StatusSettled
	if err := s.record(ctx, tx, transaction, actor); err != nil {
		return nil, err
	}

	receipt := &models.TransferReceipt{
		Message:          "Payment processed successfully",
		Outcome:          result.Outcome,
		Transaction:      transaction,
		SenderNewBalance: &result.Sender.After,
	}
	if result.Recipient != nil {
		receipt.RecipientNewBalance = &result.Recipient.After
	}
	return receipt, nil
}

func (s *TransactionServiceImpl) submitInternational(ctx context.Context, tx repository.Tx, transaction *models.Transaction, actor string) (*models.TransferReceipt, error) {
	sender, err := tx.Accounts().GetAccountByNumber(ctx, transaction.SenderAccountNumber)
	if err != nil {
		return nil, err
	}

	// funds are checked at approval, not here
	transaction.Status = models.StatusPending
	if err := s.record(ctx, tx, transaction, actor); err != nil {
		return nil, err
	}

	return &models.TransferReceipt{
		Message:       "International payment submitted for approval",
		Outcome:       models.OutcomePending,
		Transaction:   transaction,
		SenderBalance: &sender.Balance,
	}, nil
}

func (s *TransactionServiceImpl) record(ctx context.Context, tx repository.Tx, transaction *models.Transaction, actor string) error {
	if err := tx.Transactions().Create(ctx, transaction); err != nil {
		return err
	}
	return writeAudit(ctx, tx, models.EntityTypeTransaction, transaction.ID, models.AuditActionSubmit, actor,
		nil, transaction.Snapshot())
}

func (s *TransactionServiceImpl) replayReceipt(ctx context.Context, tx repository.Tx, existing *models.Transaction) (*models.TransferReceipt, error) {
	sender, err := tx.Accounts().GetAccountByNumber(ctx, existing.SenderAccountNumber)
	if err != nil {
		return nil, err
	}

	outcome := models.OutcomeSettled
	if existing.Status == models.StatusPending {
		outcome = models.OutcomePending
	}
	return &models.TransferReceipt{
		Message:       "Payment already submitted",
		Outcome:       outcome,
		Transaction:   existing,
		SenderBalance: &sender.Balance,
		Replayed:      true,
	}, nil
}

// GetTransaction returns a transaction to an employee, or to a customer who
// sent or received it. Anyone else gets not found.
func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, identity auth.Identity, id string) (*models.Transaction, error) {
	if id == "" {
		return nil, errors.NewValidationError("id", "must be non-empty")
	}

	var transaction *models.Transaction
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		transaction, err = tx.Transactions().GetByID(ctx, id)
		return err
	})
	if err != nil {
		if !errors.IsDomain(err) {
			s.logger.Error("failed to get transaction",
				zap.String("transaction_id", id),
				zap.Error(err),
			)
		}
		return nil, errors.Wrap("get transaction", err)
	}

	if identity.IsEmployee() {
		return transaction, nil
	}
	if transaction.SenderAccountNumber != identity.AccountNumber &&
		transaction.Recipient.AccountNumber != identity.AccountNumber {
		return nil, errors.ErrTransactionNotFound
	}
	return transaction, nil
}
