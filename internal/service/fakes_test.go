package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/provider"
	"github.com/dogevents/platform/internal/repository"
)

// In-memory fakes mirroring the SQL semantics of the pgx repositories.

type fakeTxRepo struct {
	byID map[string]*domain.Transaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byID: make(map[string]*domain.Transaction)}
}

func (r *fakeTxRepo) Create(_ context.Context, _ repository.DBTX, tx *domain.Transaction) error {
	if _, exists := r.byID[tx.TransactionID]; exists {
		return fmt.Errorf("duplicate transaction id %s", tx.TransactionID)
	}
	cp := *tx
	r.byID[tx.TransactionID] = &cp
	return nil
}

func (r *fakeTxRepo) Get(_ context.Context, _ repository.DBTX, transactionID string) (*domain.Transaction, error) {
	tx, ok := r.byID[transactionID]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *fakeTxRepo) TransitionStatus(_ context.Context, _ repository.DBTX, transactionID string, from []domain.TransactionStatus, to domain.TransactionStatus, providerID *string) (bool, error) {
	tx, ok := r.byID[transactionID]
	if !ok {
		return false, nil
	}
	match := false
	for _, f := range from {
		if tx.Status == f {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	now := time.Now()
	tx.Status = to
	tx.StatusAt = &now
	if providerID != nil && *providerID != "" {
		tx.Provider = providerID
	}
	return true, nil
}

func (r *fakeTxRepo) ListByReference(_ context.Context, _ repository.DBTX, reference string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range r.byID {
		if tx.Reference == reference {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeTxRepo) RefundedAmount(_ context.Context, _ repository.DBTX, reference string) (int64, error) {
	var sum int64
	for _, tx := range r.byID {
		if tx.Reference == reference && tx.Type == domain.TransactionTypeRefund && tx.Status != domain.TransactionStatusFail {
			sum += tx.Amount
		}
	}
	return sum, nil
}

type fakeRegRepo struct {
	byKey map[string]*domain.Registration
}

func newFakeRegRepo() *fakeRegRepo {
	return &fakeRegRepo{byKey: make(map[string]*domain.Registration)}
}

func (r *fakeRegRepo) put(reg *domain.Registration) {
	cp := *reg
	r.byKey[domain.MakeReference(reg.EventID, reg.ID)] = &cp
}

func (r *fakeRegRepo) Get(_ context.Context, _ repository.DBTX, eventID, id string) (*domain.Registration, error) {
	reg, ok := r.byKey[domain.MakeReference(eventID, id)]
	if !ok {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRegRepo) SetPaymentPending(_ context.Context, _ repository.DBTX, eventID, id string) error {
	reg, ok := r.byKey[domain.MakeReference(eventID, id)]
	if !ok {
		return fmt.Errorf("registration %s not found", id)
	}
	reg.PaymentStatus = domain.PaymentStatusPending
	return nil
}

func (r *fakeRegRepo) ApplyPaymentSuccess(_ context.Context, _ repository.DBTX, eventID, id string, amountMajor float64, paidAt time.Time) error {
	reg, ok := r.byKey[domain.MakeReference(eventID, id)]
	if !ok {
		return fmt.Errorf("registration %s not found", id)
	}
	reg.PaidAmount += amountMajor
	reg.PaidAt = &paidAt
	reg.PaymentStatus = domain.PaymentStatusSuccess
	reg.State = domain.RegistrationStateReady
	return nil
}

func (r *fakeRegRepo) CancelIfPending(_ context.Context, _ repository.DBTX, eventID, id string) (bool, error) {
	reg, ok := r.byKey[domain.MakeReference(eventID, id)]
	if !ok || reg.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	reg.PaymentStatus = domain.PaymentStatusCancel
	return true, nil
}

func (r *fakeRegRepo) SetRefundStatus(_ context.Context, _ repository.DBTX, eventID, id string, status domain.RefundStatus) error {
	reg, ok := r.byKey[domain.MakeReference(eventID, id)]
	if !ok {
		return fmt.Errorf("registration %s not found", id)
	}
	reg.RefundStatus = status
	return nil
}

func (r *fakeRegRepo) ApplyRefundSuccess(_ context.Context, _ repository.DBTX, eventID, id string, amountMajor float64, refundAt time.Time) error {
	reg, ok := r.byKey[domain.MakeReference(eventID, id)]
	if !ok {
		return fmt.Errorf("registration %s not found", id)
	}
	reg.RefundAmount += amountMajor
	reg.RefundAt = &refundAt
	reg.RefundStatus = domain.RefundStatusSuccess
	return nil
}

type fakeEventRepo struct {
	events     map[string]*domain.DogEvent
	organizers map[string]*domain.Organizer
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events:     make(map[string]*domain.DogEvent),
		organizers: make(map[string]*domain.Organizer),
	}
}

func (r *fakeEventRepo) Get(_ context.Context, _ repository.DBTX, id string) (*domain.DogEvent, error) {
	event, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	cp := *event
	return &cp, nil
}

func (r *fakeEventRepo) GetOrganizer(_ context.Context, _ repository.DBTX, id string) (*domain.Organizer, error) {
	org, ok := r.organizers[id]
	if !ok {
		return nil, nil
	}
	cp := *org
	return &cp, nil
}

type fakeAuditRepo struct {
	entries []domain.AuditEntry
}

func (r *fakeAuditRepo) Append(_ context.Context, _ repository.DBTX, entry domain.AuditEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type fakeOutboxRepo struct {
	drafts []domain.OutboxDraft
}

func (r *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	draft.SeqID = int64(len(r.drafts) + 1)
	r.drafts = append(r.drafts, draft)
	return nil
}

func (r *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	if limit > len(r.drafts) {
		limit = len(r.drafts)
	}
	return append([]domain.OutboxDraft(nil), r.drafts[:limit]...), nil
}

func (r *fakeOutboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	out := make([]string, 0, len(r.drafts))
	for _, d := range r.drafts {
		out = append(out, d.EventType)
	}
	return out
}

type sentMail struct {
	Template string
	Language string
	To       []string
}

type fakeMailer struct {
	sent    []sentMail
	sendErr error
}

func (m *fakeMailer) SendTemplated(_ context.Context, template, language string, to []string, _ map[string]any) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMail{Template: template, Language: language, To: to})
	return nil
}

type createCall struct {
	Amount    int64
	Reference string
	Stamp     string
	Items     []domain.PaymentItem
	Customer  provider.Customer
}

type refundCall struct {
	TransactionID string
	Reference     string
	RefundStamp   string
	Items         []domain.RefundItem
	Amount        *int64
	PayerEmail    string
}

type fakeGateway struct {
	createResp  *provider.CreatePaymentResponse
	createErr   error
	refundResp  *provider.RefundResponse
	refundErr   error
	verifyErr   error
	createCalls []createCall
	refundCalls []refundCall
}

func (g *fakeGateway) CreatePayment(_ context.Context, _, _ string, amount int64, reference, stamp string, items []domain.PaymentItem, customer provider.Customer) (*provider.CreatePaymentResponse, error) {
	g.createCalls = append(g.createCalls, createCall{
		Amount: amount, Reference: reference, Stamp: stamp, Items: items, Customer: customer,
	})
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createResp, nil
}

func (g *fakeGateway) RefundPayment(_ context.Context, _, transactionID, reference, refundStamp string, items []domain.RefundItem, amount *int64, payerEmail string) (*provider.RefundResponse, error) {
	g.refundCalls = append(g.refundCalls, refundCall{
		TransactionID: transactionID, Reference: reference, RefundStamp: refundStamp,
		Items: items, Amount: amount, PayerEmail: payerEmail,
	})
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return g.refundResp, nil
}

func (g *fakeGateway) VerifyCallback(_ context.Context, _ url.Values) error {
	return g.verifyErr
}

func callbackParams(transactionID, reference, status, providerID string, amount int64) url.Values {
	return url.Values{
		"checkout-transaction-id": {transactionID},
		"checkout-reference":      {reference},
		"checkout-status":         {status},
		"checkout-provider":       {providerID},
		"checkout-amount":         {fmt.Sprintf("%d", amount)},
		"signature":               {"test-signature"},
	}
}
