package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/riteshkumar/bank-payments/internal/models"
)

const (
	TransactionEventsChannel = "transaction_events"

	EventSettled  = "transaction.settled"
	EventPending  = "transaction.pending"
	EventRejected = "transaction.rejected"
)

// Publisher announces committed state changes. It is only called after the
// unit of work has committed.
type Publisher interface {
	Publish(ctx context.Context, event *models.TransactionEvent) error
}

type RedisPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *models.TransactionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, TransactionEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published transaction event",
		zap.String("event_type", event.EventType),
		zap.String("transaction_id", event.TransactionID),
	)
	return nil
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *models.TransactionEvent) error {
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []models.TransactionEvent
}

func (r *Recorder) Publish(ctx context.Context, event *models.TransactionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *Recorder) Events() []models.TransactionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.TransactionEvent, len(r.events))
	copy(out, r.events)
	return out
}

// NewTransactionEvent builds the event for a transaction's current status.
func NewTransactionEvent(t *models.Transaction, actor string) *models.TransactionEvent {
	eventType := EventPending
	switch t.Status {
	case models.StatusSettled:
		eventType = EventSettled
	case models.StatusRejected:
		eventType = EventRejected
	}

	return &models.TransactionEvent{
		EventType:     eventType,
		TransactionID: t.ID,
		Type:          t.Type,
		Status:        t.Status,
		Sender:        t.SenderAccountNumber,
		Recipient:     t.Recipient.AccountNumber,
		Amount:        t.Amount,
		Actor:         actor,
		Timestamp:     time.Now().UTC(),
	}
}
