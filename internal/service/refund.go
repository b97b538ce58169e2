package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/mailer"
	"github.com/dogevents/platform/internal/money"
	"github.com/dogevents/platform/internal/provider"
	"github.com/dogevents/platform/internal/repository"
	"github.com/google/uuid"
)

// EmailRefundProvider is the gateway's fallback channel when a refund
// cannot be executed against the original payment method. Such refunds
// complete asynchronously.
const EmailRefundProvider = "email refund"

// RefundResult is the outcome of a refund creation.
type RefundResult struct {
	TransactionID string                   `json:"transactionId"`
	Provider      string                   `json:"provider,omitempty"`
	Status        domain.TransactionStatus `json:"status"`
}

// RefundService owns refund orchestration and refund callback
// reconciliation.
type RefundService struct {
	db            repository.DBTX
	gateway       Gateway
	transactions  repository.TransactionRepository
	registrations repository.RegistrationRepository
	events        repository.EventRepository
	audit         repository.AuditRepository
	outbox        repository.OutboxRepository
	mail          mailer.Mailer
	logger        *slog.Logger
	apiHost       string
}

// NewRefundService creates the refund service.
func NewRefundService(
	db repository.DBTX,
	gateway Gateway,
	transactions repository.TransactionRepository,
	registrations repository.RegistrationRepository,
	events repository.EventRepository,
	audit repository.AuditRepository,
	outbox repository.OutboxRepository,
	mail mailer.Mailer,
	logger *slog.Logger,
	apiHost string,
) *RefundService {
	return &RefundService{
		db:            db,
		gateway:       gateway,
		transactions:  transactions,
		registrations: registrations,
		events:        events,
		audit:         audit,
		outbox:        outbox,
		mail:          mail,
		logger:        logger,
		apiHost:       apiHost,
	}
}

// CreateRefund requests a refund against a completed payment
// transaction. Aggregate refunds (no line items on the payment) send a
// bare amount; single-line payments refund through a linked refund
// item; multi-line payments are rejected.
func (s *RefundService) CreateRefund(ctx context.Context, transactionID string, amount int64, actor string) (*RefundResult, error) {
	if amount <= 0 {
		return nil, domain.ErrValidation("refund amount must be positive")
	}

	tx, err := s.transactions.Get(ctx, s.db, transactionID)
	if err != nil {
		return nil, domain.ErrInternal("load transaction", err)
	}
	if tx == nil || tx.Type != domain.TransactionTypePayment {
		return nil, domain.ErrNotFound("payment transaction", transactionID)
	}

	eventID, registrationID := domain.SplitReference(tx.Reference)
	reg, err := s.registrations.Get(ctx, s.db, eventID, registrationID)
	if err != nil {
		return nil, domain.ErrInternal("load registration", err)
	}
	if reg == nil {
		return nil, domain.ErrNotFound("registration", registrationID)
	}

	event, err := s.events.Get(ctx, s.db, eventID)
	if err != nil {
		return nil, domain.ErrInternal("load event", err)
	}
	if event == nil {
		return nil, domain.ErrNotFound("event", eventID)
	}
	organizer, err := s.events.GetOrganizer(ctx, s.db, event.OrganizerID)
	if err != nil {
		return nil, domain.ErrInternal("load organizer", err)
	}
	if organizer == nil || organizer.MerchantID == "" {
		return nil, domain.ErrMerchantConfig(event.OrganizerID)
	}

	refunded, err := s.transactions.RefundedAmount(ctx, s.db, tx.Reference)
	if err != nil {
		return nil, domain.ErrInternal("sum refunds", err)
	}
	if refunded+amount > money.ToMinorUnits(reg.PaidAmount) {
		return nil, domain.ErrValidation(fmt.Sprintf(
			"refund of %s exceeds the refundable balance (%s paid, %s already refunded)",
			money.Format(amount), money.Format(money.ToMinorUnits(reg.PaidAmount)), money.Format(refunded)))
	}

	refundStamp := uuid.New().String()
	var (
		items     []domain.RefundItem
		amountPtr *int64
	)
	switch len(tx.Items) {
	case 0:
		amountPtr = &amount
	case 1:
		items = []domain.RefundItem{{
			Amount:          amount,
			Stamp:           tx.Items[0].Stamp,
			RefundStamp:     refundStamp,
			RefundReference: registrationID,
		}}
	default:
		return nil, domain.ErrUnsupportedRefund("refunds for multi-item payments are not supported")
	}

	result, err := s.gateway.RefundPayment(ctx, s.apiHost, tx.TransactionID, tx.Reference, refundStamp, items, amountPtr, reg.Payer.Email)
	if err != nil {
		return nil, domain.ErrGateway("create refund", err)
	}

	if actor == "" {
		actor = reg.Payer.Name
	}
	status := domain.TransactionStatus(result.Status)
	if status == "" {
		status = domain.TransactionStatusPending
	}
	refundTxID := result.TransactionID
	if refundTxID == "" {
		refundTxID = refundStamp
	}
	providerID := result.Provider
	refundTx := &domain.Transaction{
		TransactionID: refundTxID,
		Type:          domain.TransactionTypeRefund,
		Status:        status,
		Amount:        amount,
		Reference:     tx.Reference,
		Provider:      &providerID,
		RefundItems:   items,
		Stamp:         refundStamp,
		User:          actor,
		CreatedAt:     time.Now(),
	}
	if err := s.transactions.Create(ctx, s.db, refundTx); err != nil {
		return nil, domain.ErrInternal("persist refund transaction", err)
	}
	s.stage(ctx, domain.EventRefundCreated, refundTx)

	if status != domain.TransactionStatusOK || providerID == EmailRefundProvider {
		if err := s.registrations.SetRefundStatus(ctx, s.db, eventID, registrationID, domain.RefundStatusPending); err != nil {
			return nil, domain.ErrInternal("mark refund pending", err)
		}
		s.appendAudit(ctx, eventID, registrationID, actor,
			fmt.Sprintf("Refund in progress (%s), %s", money.ProviderName(providerID), money.Format(amount)))
	} else {
		if err := s.applyRefund(ctx, reg, refundTx); err != nil {
			return nil, err
		}
	}

	s.logger.Info("refund created",
		"transaction_id", refundTxID, "payment_id", tx.TransactionID,
		"reference", tx.Reference, "amount", amount, "status", status)

	return &RefundResult{TransactionID: refundTxID, Provider: providerID, Status: status}, nil
}

// HandleRefundSuccess processes a gateway refund success callback.
// Replays are no-ops.
func (s *RefundService) HandleRefundSuccess(ctx context.Context, params url.Values) error {
	if err := s.gateway.VerifyCallback(ctx, params); err != nil {
		return domain.ErrUnauthorized(err.Error())
	}
	cb := provider.ParseCallbackParams(params)

	tx, err := s.transactions.Get(ctx, s.db, cb.TransactionID)
	if err != nil {
		return domain.ErrInternal("load transaction", err)
	}
	if tx == nil || tx.Type != domain.TransactionTypeRefund {
		return domain.ErrNotFound("refund transaction", cb.TransactionID)
	}

	providerID := cb.Provider
	applied, err := s.transactions.TransitionStatus(ctx, s.db, tx.TransactionID,
		domain.NonTerminalStatuses, domain.TransactionStatusOK, &providerID)
	if err != nil {
		return domain.ErrInternal("transition transaction", err)
	}
	if !applied {
		s.logger.Info("refund callback replay ignored", "transaction_id", tx.TransactionID)
		return nil
	}

	eventID, registrationID := domain.SplitReference(tx.Reference)
	reg, err := s.registrations.Get(ctx, s.db, eventID, registrationID)
	if err != nil {
		return domain.ErrInternal("load registration", err)
	}
	if reg == nil {
		return domain.ErrNotFound("registration", registrationID)
	}

	if providerID == "" && tx.Provider != nil {
		providerID = *tx.Provider
	}
	if err := s.applyRefund(ctx, reg, tx); err != nil {
		return err
	}
	s.appendAudit(ctx, reg.EventID, reg.ID, tx.User,
		fmt.Sprintf("Refund (%s), %s", money.ProviderName(providerID), money.Format(tx.Amount)))
	s.stage(ctx, domain.EventRefundCompleted, tx)

	s.logger.Info("refund completed",
		"transaction_id", tx.TransactionID, "reference", tx.Reference, "provider", providerID)
	return nil
}

// ListTransactions returns all ledger records for one registration,
// oldest first.
func (s *RefundService) ListTransactions(ctx context.Context, eventID, registrationID string) ([]domain.Transaction, error) {
	list, err := s.transactions.ListByReference(ctx, s.db, domain.MakeReference(eventID, registrationID))
	if err != nil {
		return nil, domain.ErrInternal("list transactions", err)
	}
	return list, nil
}

// applyRefund records a completed refund on the registration and
// queues the notification email. The ledger itself documents an
// immediately successful refund; only asynchronous completions are
// audited, by the callback path.
func (s *RefundService) applyRefund(ctx context.Context, reg *domain.Registration, tx *domain.Transaction) error {
	if err := s.registrations.ApplyRefundSuccess(ctx, s.db, reg.EventID, reg.ID,
		float64(tx.Amount)/100, time.Now()); err != nil {
		return domain.ErrInternal("apply refund", err)
	}

	if reg.Payer.Email != "" {
		data := map[string]any{
			"eventId":        reg.EventID,
			"registrationId": reg.ID,
			"amount":         money.Format(tx.Amount),
		}
		if err := s.mail.SendTemplated(ctx, mailer.TemplateRefund, reg.Language, []string{reg.Payer.Email}, data); err != nil {
			s.logger.Warn("refund email failed", "reference", tx.Reference, "error", err)
		}
	}
	return nil
}

func (s *RefundService) appendAudit(ctx context.Context, eventID, registrationID, user, message string) {
	entry := domain.AuditEntry{
		AuditKey:  domain.RegistrationAuditKey(eventID, registrationID),
		Message:   message,
		User:      user,
		Timestamp: time.Now(),
	}
	if err := s.audit.Append(ctx, s.db, entry); err != nil {
		s.logger.Warn("audit append failed", "audit_key", entry.AuditKey, "error", err)
	}
}

func (s *RefundService) stage(ctx context.Context, eventType string, tx *domain.Transaction) {
	if err := s.outbox.Insert(ctx, s.db, domain.NewTransactionEvent(eventType, tx)); err != nil {
		s.logger.Warn("outbox insert failed", "event_type", eventType, "transaction_id", tx.TransactionID, "error", err)
	}
}
