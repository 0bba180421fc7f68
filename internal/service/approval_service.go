package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/errors"
	"github.com/riteshkumar/bank-payments/internal/events"
	"github.com/riteshkumar/bank-payments/internal/metrics"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/repository"
)

type ApprovalService interface {
	ListPending(ctx context.Context, identity auth.Identity, page models.Page) ([]*models.Transaction, error)
	VerifyField(ctx context.Context, identity auth.Identity, req *models.VerifyFieldRequest) (*models.VerifyFieldResponse, error)
	Approve(ctx context.Context, identity auth.Identity, transactionID string) (*models.Transaction, error)
	Reject(ctx context.Context, identity auth.Identity, transactionID, reason string) (*models.Transaction, error)
}

type ApprovalServiceImpl struct {
	store               repository.Store
	accounts            *AccountServiceImpl
	publisher           events.Publisher
	logger              *zap.Logger
	requireVerification bool
	now                 func() time.Time
}

func NewApprovalService(store repository.Store, accounts *AccountServiceImpl, publisher events.Publisher, requireVerification bool, logger *zap.Logger) *ApprovalServiceImpl {
	return &ApprovalServiceImpl{
		store:               store,
		accounts:            accounts,
		publisher:           publisher,
		logger:              logger,
		requireVerification: requireVerification,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

func (s *ApprovalServiceImpl) ListPending(ctx context.Context, identity auth.Identity, page models.Page) ([]*models.Transaction, error) {
	if !identity.IsEmployee() {
		return nil, errors.ErrForbidden
	}

	page = repository.NormalizePage(page)
	var transactions []*models.Transaction
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		transactions, err = tx.Transactions().ListByStatus(ctx, models.StatusPending, page)
		return err
	})
	if err != nil {
		s.logger.Error("failed to list pending transactions", zap.Error(err))
		return nil, errors.Wrap("list pending", err)
	}
	return transactions, nil
}

// VerifyField checks one claimed recipient detail against the international
// registry, or for transactionAmount checks that the sender can cover it.
// With a transaction ID the outcome is stored against that transaction and an
// empty claim defaults to the value the sender submitted.
func (s *ApprovalServiceImpl) VerifyField(ctx context.Context, identity auth.Identity, req *models.VerifyFieldRequest) (*models.VerifyFieldResponse, error) {
	if !identity.IsEmployee() {
		return nil, errors.ErrForbidden
	}
	if !req.Field.Valid() {
		return nil, errors.NewValidationError("field", "invalid field to verify")
	}

	var matched bool
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		check := verificationInput{
			recipientAccount: req.AccountNumber,
			sender:           req.Sender,
			claimed:          strings.TrimSpace(req.ClaimedValue),
		}

		if req.TransactionID != "" {
			transaction, err := tx.Transactions().GetByID(ctx, req.TransactionID)
			if err != nil {
				return err
			}
			if transaction.Type != models.TransactionTypeInternational {
				return errors.NewValidationError("transactionId", "only international payments need verification")
			}
			if transaction.Status.IsTerminal() {
				return errors.ErrAlreadyResolved
			}
			check.transaction = transaction
			check.recipientAccount = transaction.Recipient.AccountNumber
			check.sender = transaction.SenderAccountNumber
			if check.claimed == "" {
				check.claimed = submittedValue(transaction, req.Field)
			}
		}

		var err error
		matched, err = s.check(ctx, tx, req.Field, check)
		if err != nil {
			return err
		}

		if check.transaction == nil {
			return nil
		}
		return tx.Verifications().Upsert(ctx, &models.Verification{
			TransactionID: check.transaction.ID,
			Field:         req.Field,
			Matched:       matched,
			VerifiedBy:    identity.Username,
		})
	})
	if err != nil {
		if errors.IsDomain(err) {
			s.logger.Warn("verification failed",
				zap.String("field", string(req.Field)),
				zap.String("transaction_id", req.TransactionID),
				zap.Error(err),
			)
			return nil, err
		}
		s.logger.Error("failed to verify field",
			zap.String("field", string(req.Field)),
			zap.Error(err),
		)
		return nil, errors.Wrap("verify field", err)
	}

	resp := &models.VerifyFieldResponse{Field: req.Field}
	if matched {
		resp.Result = models.VerificationMatched
		resp.Message = string(req.Field) + " verification successful."
	} else {
		resp.Result = models.VerificationMismatched
		resp.Message = string(req.Field) + " does not match."
	}
	return resp, nil
}

type verificationInput struct {
	transaction      *models.Transaction
	recipientAccount string
	sender           string
	claimed          string
}

func (s *ApprovalServiceImpl) check(ctx context.Context, tx repository.Tx, field models.VerificationField, in verificationInput) (bool, error) {
	if field == models.FieldTransactionAmount {
		return s.checkFunds(ctx, tx, in)
	}

	if in.recipientAccount == "" {
		return false, errors.NewValidationError("accountNumber", "recipient account number is required")
	}
	recipient, err := s.store.Recipients().GetByAccountNumber(ctx, in.recipientAccount)
	if err != nil {
		return false, err
	}

	var registered string
	switch field {
	case models.FieldRecipientName:
		registered = recipient.Name
	case models.FieldRecipientBank:
		registered = recipient.Bank
	case models.FieldAccountNumber:
		registered = recipient.AccountNumber
	case models.FieldSwiftCode:
		registered = recipient.SwiftCode
	default:
		return false, errors.NewValidationError("field", "invalid field to verify")
	}

	claimed := normalizeClaim(field, in.claimed)
	if claimed != normalizeClaim(field, registered) {
		return false, nil
	}
	// A stored transaction only verifies when the sender submitted the same
	// value the registry holds.
	if in.transaction != nil && claimed != normalizeClaim(field, submittedValue(in.transaction, field)) {
		return false, nil
	}
	return true, nil
}

func normalizeClaim(field models.VerificationField, value string) string {
	if field == models.FieldAccountNumber {
		return digitsOnly(value)
	}
	return value
}

// checkFunds matches when the sender's current balance covers the claimed
// amount. For a stored transaction the claim must also equal its amount.
func (s *ApprovalServiceImpl) checkFunds(ctx context.Context, tx repository.Tx, in verificationInput) (bool, error) {
	if in.sender == "" {
		return false, errors.NewValidationError("sender", "sender account number is required")
	}
	amount, err := decimal.NewFromString(in.claimed)
	if err != nil || !amount.IsPositive() {
		return false, errors.NewValidationError("claimedValue", "transaction amount must be a positive number")
	}

	sender, err := tx.Accounts().GetAccountByNumber(ctx, in.sender)
	if err != nil {
		return false, err
	}

	if in.transaction != nil && !in.transaction.Amount.Equal(amount) {
		return false, nil
	}
	return sender.Balance.GreaterThanOrEqual(amount), nil
}

func submittedValue(t *models.Transaction, field models.VerificationField) string {
	switch field {
	case models.FieldRecipientName:
		return t.Recipient.Name
	case models.FieldRecipientBank:
		return t.Recipient.Bank
	case models.FieldAccountNumber:
		return t.Recipient.AccountNumber
	case models.FieldSwiftCode:
		return t.Recipient.SwiftCode
	case models.FieldTransactionAmount:
		return t.Amount.String()
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Approve settles a pending international payment and debits the sender.
// Nothing is credited: the recipient is held at another bank.
func (s *ApprovalServiceImpl) Approve(ctx context.Context, identity auth.Identity, transactionID string) (*models.Transaction, error) {
	if !identity.IsEmployee() {
		return nil, errors.ErrForbidden
	}

	var transaction *models.Transaction
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		transaction, err = s.lockPending(ctx, tx, transactionID, models.StatusSettled)
		if err != nil {
			return err
		}

		if s.requireVerification {
			if err := s.ensureVerified(ctx, tx, transaction.ID); err != nil {
				return err
			}
		}

		if _, err := s.accounts.DebitInTx(ctx, tx, transaction.SenderAccountNumber, transaction.Amount, identity.Username); err != nil {
			return err
		}

		return s.resolve(ctx, tx, transaction, models.StatusSettled, "", identity.Username, models.AuditActionApprove)
	})
	if err != nil {
		return nil, s.resolutionError("approve", transactionID, err)
	}

	metrics.ApprovalsTotal.WithLabelValues("approved").Inc()
	publishEvent(ctx, s.publisher, s.logger, transaction, identity.Username)
	s.logger.Info("international payment approved",
		zap.String("transaction_id", transaction.ID),
		zap.String("approved_by", identity.Username),
		zap.String("amount", transaction.Amount.String()),
	)
	return transaction, nil
}

// Reject closes a pending payment without touching any balance. The record
// stays for audit.
func (s *ApprovalServiceImpl) Reject(ctx context.Context, identity auth.Identity, transactionID, reason string) (*models.Transaction, error) {
	if !identity.IsEmployee() {
		return nil, errors.ErrForbidden
	}

	var transaction *models.Transaction
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		transaction, err = s.lockPending(ctx, tx, transactionID, models.StatusRejected)
		if err != nil {
			return err
		}
		return s.resolve(ctx, tx, transaction, models.StatusRejected, reason, identity.Username, models.AuditActionReject)
	})
	if err != nil {
		return nil, s.resolutionError("reject", transactionID, err)
	}

	metrics.ApprovalsTotal.WithLabelValues("rejected").Inc()
	publishEvent(ctx, s.publisher, s.logger, transaction, identity.Username)
	s.logger.Info("international payment rejected",
		zap.String("transaction_id", transaction.ID),
		zap.String("rejected_by", identity.Username),
	)
	return transaction, nil
}

func (s *ApprovalServiceImpl) lockPending(ctx context.Context, tx repository.Tx, transactionID string, to models.TransactionStatus) (*models.Transaction, error) {
	if transactionID == "" {
		return nil, errors.NewValidationError("transactionId", "must be non-empty")
	}

	transaction, err := tx.Transactions().GetByIDForUpdate(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(transaction.Status, to) {
		return nil, errors.ErrAlreadyResolved
	}
	return transaction, nil
}

func (s *ApprovalServiceImpl) ensureVerified(ctx context.Context, tx repository.Tx, transactionID string) error {
	verifications, err := tx.Verifications().ListByTransaction(ctx, transactionID)
	if err != nil {
		return err
	}

	matched := make(map[models.VerificationField]bool, len(verifications))
	for _, v := range verifications {
		matched[v.Field] = v.Matched
	}
	for _, field := range models.RequiredVerificationFields {
		if !matched[field] {
			return errors.ErrVerificationIncomplete
		}
	}
	return nil
}

func (s *ApprovalServiceImpl) resolve(ctx context.Context, tx repository.Tx, transaction *models.Transaction, status models.TransactionStatus, reason, actor, action string) error {
	before := transaction.Snapshot()

	now := s.now()
	transaction.Status = status
	transaction.ResolvedBy = actor
	transaction.ResolvedAt = &now
	transaction.RejectionReason = reason

	if err := tx.Transactions().Resolve(ctx, transaction); err != nil {
		return err
	}
	return writeAudit(ctx, tx, models.EntityTypeTransaction, transaction.ID, action, actor, before, transaction.Snapshot())
}

func (s *ApprovalServiceImpl) resolutionError(op, transactionID string, err error) error {
	if errors.IsDomain(err) {
		s.logger.Warn(op+" refused",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		return err
	}
	s.logger.Error("failed to "+op+" transaction",
		zap.String("transaction_id", transactionID),
		zap.Error(err),
	)
	return errors.Wrap(op, err)
}
