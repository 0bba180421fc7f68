package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/events"
	"github.com/riteshkumar/bank-payments/internal/models"
	"github.com/riteshkumar/bank-payments/internal/repository"
)

// writeAudit records one audit entry in the caller's unit of work. A failure
// here fails the whole unit.
func writeAudit(ctx context.Context, tx repository.Tx, entityType, entityID, action, actor string, oldValue, newValue any) error {
	newJSON, err := json.Marshal(newValue)
	if err != nil {
		return fmt.Errorf("failed to marshal audit value: %w", err)
	}

	var oldJSON json.RawMessage
	if oldValue != nil {
		oldJSON, err = json.Marshal(oldValue)
		if err != nil {
			return fmt.Errorf("failed to marshal audit value: %w", err)
		}
	}

	auditLog := &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		OldValue:   oldJSON,
		NewValue:   newJSON,
	}
	if err := tx.Audit().Create(ctx, auditLog); err != nil {
		return fmt.Errorf("failed to create %s audit log for %s: %w", action, entityID, err)
	}
	return nil
}

// publishEvent announces a committed change. Failures are logged only; the
// change is already durable.
func publishEvent(ctx context.Context, publisher events.Publisher, logger *zap.Logger, transaction *models.Transaction, actor string) {
	if err := publisher.Publish(ctx, events.NewTransactionEvent(transaction, actor)); err != nil {
		logger.Error("failed to publish transaction event",
			zap.String("transaction_id", transaction.ID),
			zap.Error(err),
		)
	}
}
