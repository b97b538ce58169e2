package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	svc    *PaymentService
	txs    *fakeTxRepo
	regs   *fakeRegRepo
	events *fakeEventRepo
	audit  *fakeAuditRepo
	outbox *fakeOutboxRepo
	mail   *fakeMailer
	gw     *fakeGateway
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		txs:    newFakeTxRepo(),
		regs:   newFakeRegRepo(),
		events: newFakeEventRepo(),
		audit:  &fakeAuditRepo{},
		outbox: &fakeOutboxRepo{},
		mail:   &fakeMailer{},
		gw: &fakeGateway{
			createResp: &provider.CreatePaymentResponse{
				TransactionID: "pt-1",
				Href:          "https://pay.example.com/pt-1",
				Reference:     "e1:r1",
			},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewPaymentService(nil, f.gw, f.txs, f.regs, f.events, f.audit, f.outbox, f.mail, logger,
		"api.example.com", "https://app.example.com")
	return f
}

func (f *paymentFixture) seedEvent(normal float64) {
	f.events.events["e1"] = &domain.DogEvent{
		ID:          "e1",
		EventType:   "NOME-B",
		Name:        "Spring Trial",
		Location:    "Tampere",
		OrganizerID: "org1",
		Cost:        domain.PricingPolicy{Structured: &domain.StructuredPolicy{Normal: normal}},
	}
	f.events.organizers["org1"] = &domain.Organizer{ID: "org1", Name: "Kennel Club", MerchantID: "merchant-1"}
}

func (f *paymentFixture) seedRegistration() {
	f.regs.put(&domain.Registration{
		EventID:   "e1",
		ID:        "r1",
		Language:  "fi",
		Payer:     domain.Person{Name: "Liisa Virtanen", Email: "liisa@example.com"},
		Handler:   domain.Person{Name: "Liisa Virtanen", Email: "liisa@example.com"},
		Owner:     domain.Person{Name: "Matti Virtanen", Email: "matti@example.com"},
		CreatedAt: time.Now(),
	})
}

func TestCreatePayment(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()

	result, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "Secretary")
	require.NoError(t, err)
	assert.Equal(t, "pt-1", result.TransactionID)
	assert.Equal(t, "https://pay.example.com/pt-1", result.Href)

	require.Len(t, f.gw.createCalls, 1)
	call := f.gw.createCalls[0]
	assert.Equal(t, int64(5000), call.Amount)
	assert.Equal(t, "e1:r1", call.Reference)
	require.Len(t, call.Items, 1)
	assert.Equal(t, "merchant-1", call.Items[0].Merchant)
	assert.Equal(t, "liisa@example.com", call.Customer.Email)

	tx, err := f.txs.Get(context.Background(), nil, "pt-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, domain.TransactionStatusNew, tx.Status)
	assert.Equal(t, domain.TransactionTypePayment, tx.Type)
	assert.Equal(t, int64(5000), tx.Amount)
	assert.Equal(t, "Secretary", tx.User)
	require.NotNil(t, tx.BankReference, "gateway-assigned reference is recorded on the ledger row")
	assert.Equal(t, "e1:r1", *tx.BankReference)

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatusPending, reg.PaymentStatus)
	assert.Equal(t, []string{domain.EventPaymentCreated}, f.outbox.eventTypes())
}

func TestCreatePaymentPartialBalance(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	reg.PaidAmount = 30
	f.regs.put(reg)

	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	require.Len(t, f.gw.createCalls, 1)
	assert.Equal(t, int64(2000), f.gw.createCalls[0].Amount)
}

func TestCreatePaymentAlreadyPaid(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	reg.PaidAmount = 50
	f.regs.put(reg)

	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ALREADY_PAID", appErr.Code)
	assert.Empty(t, f.gw.createCalls, "no gateway call when nothing is due")
}

func TestCreatePaymentCancelledRegistration(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	reg.Cancelled = true
	f.regs.put(reg)

	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestCreatePaymentMissingMerchant(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	f.events.organizers["org1"].MerchantID = ""

	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "MERCHANT_NOT_CONFIGURED", appErr.Code)
	assert.Equal(t, 412, appErr.Status)
	assert.Empty(t, f.gw.createCalls)
}

func TestCreatePaymentGatewayFailureLeavesNoState(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	f.gw.createErr = errors.New("gateway timeout")

	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "GATEWAY_ERROR", appErr.Code)

	assert.Empty(t, f.txs.byID, "no transaction persisted for a failed gateway call")
	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatus(""), reg.PaymentStatus, "registration not flipped to pending")
	assert.Empty(t, f.outbox.drafts)
}

func TestCreatePaymentAnonymousActorFallsBackToPayer(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()

	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	tx, _ := f.txs.Get(context.Background(), nil, "pt-1")
	assert.Equal(t, "Liisa Virtanen", tx.User)
}

func TestHandleSuccess(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "Secretary")
	require.NoError(t, err)

	params := callbackParams("pt-1", "e1:r1", "ok", "nordea", 5000)
	require.NoError(t, f.svc.HandleSuccess(context.Background(), params))

	tx, _ := f.txs.Get(context.Background(), nil, "pt-1")
	assert.Equal(t, domain.TransactionStatusOK, tx.Status)
	require.NotNil(t, tx.Provider)
	assert.Equal(t, "nordea", *tx.Provider)
	assert.NotNil(t, tx.StatusAt)

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatusSuccess, reg.PaymentStatus)
	assert.Equal(t, 50.0, reg.PaidAmount)
	assert.NotNil(t, reg.PaidAt)
	assert.Equal(t, domain.RegistrationStateReady, reg.State)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "Payment (Nordea), 50,00 €", f.audit.entries[0].Message)
	assert.Equal(t, "e1:r1", f.audit.entries[0].AuditKey)
	assert.Equal(t, "Secretary", f.audit.entries[0].User)

	require.Len(t, f.mail.sent, 2)
	assert.Equal(t, "receipt", f.mail.sent[0].Template)
	assert.Equal(t, []string{"liisa@example.com"}, f.mail.sent[0].To)
	assert.Equal(t, "registration", f.mail.sent[1].Template)
	assert.ElementsMatch(t, []string{"liisa@example.com", "matti@example.com"}, f.mail.sent[1].To)

	assert.Equal(t, []string{domain.EventPaymentCreated, domain.EventPaymentCompleted}, f.outbox.eventTypes())
}

func TestHandleSuccessReplayIsNoOp(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	params := callbackParams("pt-1", "e1:r1", "ok", "nordea", 5000)
	require.NoError(t, f.svc.HandleSuccess(context.Background(), params))
	require.NoError(t, f.svc.HandleSuccess(context.Background(), params))

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, 50.0, reg.PaidAmount, "paid amount applied exactly once")
	assert.Len(t, f.audit.entries, 1)
	assert.Len(t, f.mail.sent, 2)
}

func TestHandleSuccessEmailFailureDoesNotFailPayment(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)
	f.mail.sendErr = errors.New("smtp unreachable")

	params := callbackParams("pt-1", "e1:r1", "ok", "nordea", 5000)
	require.NoError(t, f.svc.HandleSuccess(context.Background(), params))

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatusSuccess, reg.PaymentStatus)
	assert.Equal(t, 50.0, reg.PaidAmount)
	assert.Len(t, f.audit.entries, 1)
	assert.Empty(t, f.mail.sent)
}

func TestHandleSuccessInvalidSignature(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)
	f.gw.verifyErr = errors.New("callback signature verification failed")

	params := callbackParams("pt-1", "e1:r1", "ok", "nordea", 5000)
	err = f.svc.HandleSuccess(context.Background(), params)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 401, appErr.Status)

	tx, _ := f.txs.Get(context.Background(), nil, "pt-1")
	assert.Equal(t, domain.TransactionStatusNew, tx.Status, "unverified callback must not change state")
}

func TestHandleSuccessUnknownTransaction(t *testing.T) {
	f := newPaymentFixture()

	err := f.svc.HandleSuccess(context.Background(), callbackParams("nope", "e1:r1", "ok", "nordea", 5000))
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestHandleCancel(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	params := callbackParams("pt-1", "e1:r1", "fail", "osuuspankki", 5000)
	require.NoError(t, f.svc.HandleCancel(context.Background(), params))

	tx, _ := f.txs.Get(context.Background(), nil, "pt-1")
	assert.Equal(t, domain.TransactionStatusFail, tx.Status)

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatusCancel, reg.PaymentStatus)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "Payment failed (OP), 50,00 €", f.audit.entries[0].Message)
	assert.Equal(t, []string{domain.EventPaymentCreated, domain.EventPaymentCancelled}, f.outbox.eventTypes())
}

func TestHandleCancelDoesNotClobberSuccess(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	// Second attempt for the same registration.
	f.gw.createResp = &provider.CreatePaymentResponse{TransactionID: "pt-2", Href: "https://pay.example.com/pt-2"}
	_, err = f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleSuccess(context.Background(), callbackParams("pt-2", "e1:r1", "ok", "nordea", 5000)))
	require.NoError(t, f.svc.HandleCancel(context.Background(), callbackParams("pt-1", "e1:r1", "fail", "nordea", 5000)))

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatusSuccess, reg.PaymentStatus, "late cancel must not overwrite success")

	tx1, _ := f.txs.Get(context.Background(), nil, "pt-1")
	assert.Equal(t, domain.TransactionStatusFail, tx1.Status)
}

func TestHandleCancelReplayIsNoOp(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	params := callbackParams("pt-1", "e1:r1", "fail", "nordea", 5000)
	require.NoError(t, f.svc.HandleCancel(context.Background(), params))
	require.NoError(t, f.svc.HandleCancel(context.Background(), params))

	assert.Len(t, f.audit.entries, 1)
}

func TestVerifySuccess(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	res := f.svc.Verify(context.Background(), callbackParams("pt-1", "e1:r1", "ok", "nordea", 5000))
	assert.Equal(t, VerifyResult{Status: "ok", PaymentStatus: "ok", EventID: "e1", RegistrationID: "r1"}, res)

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, 50.0, reg.PaidAmount)
}

func TestVerifyFailedPayment(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	res := f.svc.Verify(context.Background(), callbackParams("pt-1", "e1:r1", "fail", "nordea", 5000))
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "fail", res.PaymentStatus)

	reg, _ := f.regs.Get(context.Background(), nil, "e1", "r1")
	assert.Equal(t, domain.PaymentStatusCancel, reg.PaymentStatus)
}

func TestVerifyNeverSurfacesInternalErrors(t *testing.T) {
	f := newPaymentFixture()

	// Unknown transaction: reconciliation fails internally but the
	// caller still gets a well-formed result with paymentStatus ok.
	res := f.svc.Verify(context.Background(), callbackParams("nope", "e1:r1", "ok", "nordea", 5000))
	assert.Equal(t, VerifyResult{Status: "error", PaymentStatus: "ok", EventID: "e1", RegistrationID: "r1"}, res)
}

func TestVerifyInvalidSignature(t *testing.T) {
	f := newPaymentFixture()
	f.gw.verifyErr = errors.New("callback signature verification failed")

	res := f.svc.Verify(context.Background(), callbackParams("pt-1", "e1:r1", "ok", "nordea", 5000))
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "ok", res.PaymentStatus)
}

func TestVerifyPendingStatusLeavesStateAlone(t *testing.T) {
	f := newPaymentFixture()
	f.seedEvent(50)
	f.seedRegistration()
	_, err := f.svc.CreatePayment(context.Background(), "e1", "r1", "")
	require.NoError(t, err)

	res := f.svc.Verify(context.Background(), callbackParams("pt-1", "e1:r1", "pending", "nordea", 5000))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "ok", res.PaymentStatus)

	tx, _ := f.txs.Get(context.Background(), nil, "pt-1")
	assert.Equal(t, domain.TransactionStatusNew, tx.Status)
}
