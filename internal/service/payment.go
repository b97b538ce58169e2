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
	"github.com/dogevents/platform/internal/pricing"
	"github.com/dogevents/platform/internal/provider"
	"github.com/dogevents/platform/internal/repository"
	"github.com/google/uuid"
)

// Gateway is the payment gateway surface the services depend on.
// provider.PaytrailClient satisfies it.
type Gateway interface {
	CreatePayment(ctx context.Context, apiHost, origin string, amount int64, reference, stamp string, items []domain.PaymentItem, customer provider.Customer) (*provider.CreatePaymentResponse, error)
	RefundPayment(ctx context.Context, apiHost, transactionID, reference, refundStamp string, items []domain.RefundItem, amount *int64, payerEmail string) (*provider.RefundResponse, error)
	VerifyCallback(ctx context.Context, params url.Values) error
}

// CreatePaymentResult is what the frontend needs to send the payer to
// the gateway's payment page.
type CreatePaymentResult struct {
	TransactionID string                     `json:"transactionId"`
	Href          string                     `json:"href"`
	Reference     string                     `json:"reference"`
	Terms         string                     `json:"terms,omitempty"`
	Groups        []provider.ProviderGroup   `json:"groups,omitempty"`
	Providers     []provider.PaymentProvider `json:"providers,omitempty"`
}

// VerifyResult is the browser-facing verification outcome. Status
// reports whether verification itself concluded; PaymentStatus reports
// what is known about the payment.
type VerifyResult struct {
	Status         string `json:"status"`
	PaymentStatus  string `json:"paymentStatus"`
	EventID        string `json:"eventId,omitempty"`
	RegistrationID string `json:"registrationId,omitempty"`
}

// PaymentService owns payment creation and callback reconciliation.
type PaymentService struct {
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
	frontendURL   string
}

// NewPaymentService creates the payment service.
func NewPaymentService(
	db repository.DBTX,
	gateway Gateway,
	transactions repository.TransactionRepository,
	registrations repository.RegistrationRepository,
	events repository.EventRepository,
	audit repository.AuditRepository,
	outbox repository.OutboxRepository,
	mail mailer.Mailer,
	logger *slog.Logger,
	apiHost, frontendURL string,
) *PaymentService {
	return &PaymentService{
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
		frontendURL:   frontendURL,
	}
}

// CreatePayment opens a gateway payment for a registration's amount
// due. The actor is the display name of the authenticated caller; an
// empty actor falls back to the payer's name.
func (s *PaymentService) CreatePayment(ctx context.Context, eventID, registrationID, actor string) (*CreatePaymentResult, error) {
	reg, err := s.registrations.Get(ctx, s.db, eventID, registrationID)
	if err != nil {
		return nil, domain.ErrInternal("load registration", err)
	}
	if reg == nil || reg.Cancelled {
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

	amount := pricing.AmountDue(event.Cost, pricing.Inputs{
		Member:         reg.IsMember(),
		BreedCode:      reg.Dog.BreedCode,
		SelectedCost:   reg.SelectedCost,
		OptionalCosts:  reg.OptionalCosts,
		CreatedAt:      reg.CreatedAt,
		EntryStartDate: event.EntryStartDate,
		PaidAmount:     reg.PaidAmount,
	})
	if amount <= 0 {
		return nil, domain.ErrAlreadyPaid()
	}

	reference := domain.MakeReference(eventID, registrationID)
	stamp := uuid.New().String()
	items := []domain.PaymentItem{{
		Stamp:         stamp,
		UnitPrice:     amount,
		Units:         1,
		VATPercentage: 0,
		ProductCode:   reference,
		Description:   event.PaymentDescription(),
		Reference:     registrationID,
		Merchant:      organizer.MerchantID,
	}}
	customer := provider.Customer{Email: reg.Payer.Email, Phone: reg.Payer.Phone}

	result, err := s.gateway.CreatePayment(ctx, s.apiHost, s.frontendURL, amount, reference, stamp, items, customer)
	if err != nil {
		return nil, domain.ErrGateway("create payment", err)
	}

	if actor == "" {
		actor = reg.Payer.Name
	}
	var bankReference *string
	if result.Reference != "" {
		bankReference = &result.Reference
	}
	tx := &domain.Transaction{
		TransactionID: result.TransactionID,
		Type:          domain.TransactionTypePayment,
		Status:        domain.TransactionStatusNew,
		Amount:        amount,
		Reference:     reference,
		BankReference: bankReference,
		Items:         items,
		Stamp:         stamp,
		User:          actor,
		CreatedAt:     time.Now(),
	}
	if err := s.transactions.Create(ctx, s.db, tx); err != nil {
		return nil, domain.ErrInternal("persist transaction", err)
	}
	if err := s.registrations.SetPaymentPending(ctx, s.db, eventID, registrationID); err != nil {
		return nil, domain.ErrInternal("mark registration pending", err)
	}
	s.stage(ctx, domain.EventPaymentCreated, tx)

	s.logger.Info("payment created",
		"transaction_id", tx.TransactionID, "reference", reference, "amount", amount)

	return &CreatePaymentResult{
		TransactionID: result.TransactionID,
		Href:          result.Href,
		Reference:     result.Reference,
		Terms:         result.Terms,
		Groups:        result.Groups,
		Providers:     result.Providers,
	}, nil
}

// HandleSuccess processes a gateway success callback. Replays are
// no-ops: the registration and audit effects run only on the first
// transition to ok.
func (s *PaymentService) HandleSuccess(ctx context.Context, params url.Values) error {
	if err := s.gateway.VerifyCallback(ctx, params); err != nil {
		return domain.ErrUnauthorized(err.Error())
	}
	return s.reconcileSuccess(ctx, provider.ParseCallbackParams(params))
}

// HandleCancel processes a gateway cancel callback.
func (s *PaymentService) HandleCancel(ctx context.Context, params url.Values) error {
	if err := s.gateway.VerifyCallback(ctx, params); err != nil {
		return domain.ErrUnauthorized(err.Error())
	}
	return s.reconcileCancel(ctx, provider.ParseCallbackParams(params))
}

// Verify handles the browser's return from the payment page. It never
// surfaces an error: on any internal failure the result still reports
// paymentStatus ok so the server-to-server callback remains the source
// of truth.
func (s *PaymentService) Verify(ctx context.Context, params url.Values) VerifyResult {
	cb := provider.ParseCallbackParams(params)
	res := VerifyResult{
		Status:         "error",
		PaymentStatus:  "ok",
		EventID:        cb.EventID,
		RegistrationID: cb.RegistrationID,
	}

	if err := s.gateway.VerifyCallback(ctx, params); err != nil {
		s.logger.Error("verify: callback verification failed", "error", err)
		return res
	}

	switch cb.Status {
	case domain.TransactionStatusOK:
		if err := s.reconcileSuccess(ctx, cb); err != nil {
			s.logger.Error("verify: success reconciliation failed",
				"transaction_id", cb.TransactionID, "error", err)
			return res
		}
		res.Status = "ok"
	case domain.TransactionStatusFail:
		if err := s.reconcileCancel(ctx, cb); err != nil {
			s.logger.Error("verify: cancel reconciliation failed",
				"transaction_id", cb.TransactionID, "error", err)
		}
		res.PaymentStatus = "fail"
	default:
		// Payment still in flight; the callback settles it later.
		res.Status = "ok"
	}
	return res
}

func (s *PaymentService) reconcileSuccess(ctx context.Context, cb provider.CallbackParams) error {
	tx, err := s.transactions.Get(ctx, s.db, cb.TransactionID)
	if err != nil {
		return domain.ErrInternal("load transaction", err)
	}
	if tx == nil {
		return domain.ErrNotFound("transaction", cb.TransactionID)
	}

	providerID := cb.Provider
	applied, err := s.transactions.TransitionStatus(ctx, s.db, tx.TransactionID,
		domain.NonTerminalStatuses, domain.TransactionStatusOK, &providerID)
	if err != nil {
		return domain.ErrInternal("transition transaction", err)
	}
	if !applied {
		s.logger.Info("payment callback replay ignored", "transaction_id", tx.TransactionID)
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

	paidAt := time.Now()
	if err := s.registrations.ApplyPaymentSuccess(ctx, s.db, eventID, registrationID,
		float64(tx.Amount)/100, paidAt); err != nil {
		return domain.ErrInternal("apply payment", err)
	}

	s.appendAudit(ctx, eventID, registrationID, tx.User,
		fmt.Sprintf("Payment (%s), %s", money.ProviderName(providerID), money.Format(tx.Amount)))
	s.sendPaymentEmails(ctx, reg, tx)
	s.stage(ctx, domain.EventPaymentCompleted, tx)

	s.logger.Info("payment completed",
		"transaction_id", tx.TransactionID, "reference", tx.Reference, "provider", providerID)
	return nil
}

func (s *PaymentService) reconcileCancel(ctx context.Context, cb provider.CallbackParams) error {
	tx, err := s.transactions.Get(ctx, s.db, cb.TransactionID)
	if err != nil {
		return domain.ErrInternal("load transaction", err)
	}
	if tx == nil {
		return domain.ErrNotFound("transaction", cb.TransactionID)
	}

	providerID := cb.Provider
	applied, err := s.transactions.TransitionStatus(ctx, s.db, tx.TransactionID,
		domain.NonTerminalStatuses, domain.TransactionStatusFail, &providerID)
	if err != nil {
		return domain.ErrInternal("transition transaction", err)
	}
	if !applied {
		s.logger.Info("cancel callback replay ignored", "transaction_id", tx.TransactionID)
		return nil
	}

	eventID, registrationID := domain.SplitReference(tx.Reference)
	cancelled, err := s.registrations.CancelIfPending(ctx, s.db, eventID, registrationID)
	if err != nil {
		return domain.ErrInternal("cancel registration payment", err)
	}
	if !cancelled {
		// A success for another attempt already landed; the failed
		// attempt must not clobber it.
		s.logger.Info("registration no longer pending, cancel skipped",
			"transaction_id", tx.TransactionID, "reference", tx.Reference)
	}

	s.appendAudit(ctx, eventID, registrationID, tx.User,
		fmt.Sprintf("Payment failed (%s), %s", money.ProviderName(providerID), money.Format(tx.Amount)))
	s.stage(ctx, domain.EventPaymentCancelled, tx)

	s.logger.Info("payment cancelled",
		"transaction_id", tx.TransactionID, "reference", tx.Reference, "provider", providerID)
	return nil
}

// sendPaymentEmails queues the receipt and confirmation emails.
// Failures are logged and swallowed: money state never depends on the
// mail pipeline.
func (s *PaymentService) sendPaymentEmails(ctx context.Context, reg *domain.Registration, tx *domain.Transaction) {
	data := map[string]any{
		"eventId":        reg.EventID,
		"registrationId": reg.ID,
		"amount":         money.Format(tx.Amount),
	}
	if reg.Payer.Email != "" {
		if err := s.mail.SendTemplated(ctx, mailer.TemplateReceipt, reg.Language, []string{reg.Payer.Email}, data); err != nil {
			s.logger.Warn("receipt email failed", "reference", tx.Reference, "error", err)
		}
	}
	if to := mailer.EmailRecipients(reg); len(to) > 0 {
		if err := s.mail.SendTemplated(ctx, mailer.TemplateRegistration, reg.Language, to, data); err != nil {
			s.logger.Warn("registration email failed", "reference", tx.Reference, "error", err)
		}
	}
}

func (s *PaymentService) appendAudit(ctx context.Context, eventID, registrationID, user, message string) {
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

func (s *PaymentService) stage(ctx context.Context, eventType string, tx *domain.Transaction) {
	if err := s.outbox.Insert(ctx, s.db, domain.NewTransactionEvent(eventType, tx)); err != nil {
		s.logger.Warn("outbox insert failed", "event_type", eventType, "transaction_id", tx.TransactionID, "error", err)
	}
}
