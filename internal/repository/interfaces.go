package repository

import (
	"context"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TransactionRepository provides access to the transactions ledger.
// Ledger records are created once and never deleted; they are the
// durable audit trail of money movement.
type TransactionRepository interface {
	// Create inserts a ledger record. Transaction ids are unique by
	// construction (gateway-assigned for payments, locally generated
	// for refunds), so the insert is unconditional.
	Create(ctx context.Context, db DBTX, tx *domain.Transaction) error

	// Get returns a transaction by id, or nil when absent.
	Get(ctx context.Context, db DBTX, transactionID string) (*domain.Transaction, error)

	// TransitionStatus flips the status with a conditional write:
	// applied only while the stored status is in from. Returns false,
	// not an error, when the precondition no longer holds ("already
	// handled, no-op"). This is what makes callback processing
	// idempotent under at-least-once delivery.
	TransitionStatus(ctx context.Context, db DBTX, transactionID string, from []domain.TransactionStatus, to domain.TransactionStatus, provider *string) (bool, error)

	// ListByReference returns all transactions for one registration,
	// oldest first.
	ListByReference(ctx context.Context, db DBTX, reference string) ([]domain.Transaction, error)

	// RefundedAmount sums the minor-unit amount of non-failed refund
	// transactions for a reference.
	RefundedAmount(ctx context.Context, db DBTX, reference string) (int64, error)
}

// RegistrationRepository mutates the payment fields of the externally
// owned registration records.
type RegistrationRepository interface {
	// Get returns a registration, or nil when absent.
	Get(ctx context.Context, db DBTX, eventID, id string) (*domain.Registration, error)

	// SetPaymentPending marks a new payment attempt.
	SetPaymentPending(ctx context.Context, db DBTX, eventID, id string) error

	// ApplyPaymentSuccess accumulates the paid amount (server-side
	// addition, monotonically non-decreasing) and marks the
	// registration paid and ready.
	ApplyPaymentSuccess(ctx context.Context, db DBTX, eventID, id string, amountMajor float64, paidAt time.Time) error

	// CancelIfPending sets paymentStatus to CANCEL only while it is
	// still PENDING, so a later callback never clobbers a state that
	// has moved on. Returns whether the update applied.
	CancelIfPending(ctx context.Context, db DBTX, eventID, id string) (bool, error)

	// SetRefundStatus records the refund progress state.
	SetRefundStatus(ctx context.Context, db DBTX, eventID, id string, status domain.RefundStatus) error

	// ApplyRefundSuccess accumulates the refunded amount and marks the
	// refund successful.
	ApplyRefundSuccess(ctx context.Context, db DBTX, eventID, id string, amountMajor float64, refundAt time.Time) error
}

// EventRepository reads the externally owned event and organizer
// records.
type EventRepository interface {
	Get(ctx context.Context, db DBTX, id string) (*domain.DogEvent, error)
	GetOrganizer(ctx context.Context, db DBTX, id string) (*domain.Organizer, error)
}

// AuditRepository appends to the externally owned audit trail.
type AuditRepository interface {
	Append(ctx context.Context, db DBTX, entry domain.AuditEntry) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
