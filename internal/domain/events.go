package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Aggregate and event types published through the outbox.
const (
	AggregateTransaction = "transaction"

	EventPaymentCreated   = "payment_created"
	EventPaymentCompleted = "payment_completed"
	EventPaymentCancelled = "payment_cancelled"
	EventRefundCreated    = "refund_created"
	EventRefundCompleted  = "refund_completed"
)

// OutboxDraft is an event staged in the event_outbox table, published
// to Kafka by the outbox consumer.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTransactionEvent creates an outbox draft for a transaction
// lifecycle change.
func NewTransactionEvent(eventType string, tx *Transaction) OutboxDraft {
	payload, _ := json.Marshal(tx)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateTransaction,
		AggregateID:   tx.TransactionID,
		EventType:     eventType,
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
