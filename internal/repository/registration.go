package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/jackc/pgx/v5"
)

type registrationRepo struct{}

// NewRegistrationRepository returns a pgx-backed RegistrationRepository.
func NewRegistrationRepository() RegistrationRepository {
	return &registrationRepo{}
}

const registrationColumns = `
	event_id, id, state, cancelled, language,
	payer, handler, owner, dog,
	selected_cost, optional_costs, created_at,
	payment_status, paid_amount, paid_at,
	refund_status, refund_amount, refund_at`

func (r *registrationRepo) Get(ctx context.Context, db DBTX, eventID, id string) (*domain.Registration, error) {
	row := db.QueryRow(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations WHERE event_id = $1 AND id = $2`, eventID, id)
	return scanRegistration(row)
}

func (r *registrationRepo) SetPaymentPending(ctx context.Context, db DBTX, eventID, id string) error {
	_, err := db.Exec(ctx, `
		UPDATE registrations SET payment_status = 'PENDING'
		WHERE event_id = $1 AND id = $2`, eventID, id)
	if err != nil {
		return fmt.Errorf("set payment pending: %w", err)
	}
	return nil
}

// ApplyPaymentSuccess uses server-side addition so paid_amount only
// ever accumulates, regardless of delivery order.
func (r *registrationRepo) ApplyPaymentSuccess(ctx context.Context, db DBTX, eventID, id string, amountMajor float64, paidAt time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE registrations
		SET paid_amount = COALESCE(paid_amount, 0) + $3,
		    paid_at = $4,
		    payment_status = 'SUCCESS',
		    state = 'ready'
		WHERE event_id = $1 AND id = $2`, eventID, id, amountMajor, paidAt)
	if err != nil {
		return fmt.Errorf("apply payment success: %w", err)
	}
	return nil
}

func (r *registrationRepo) CancelIfPending(ctx context.Context, db DBTX, eventID, id string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE registrations SET payment_status = 'CANCEL'
		WHERE event_id = $1 AND id = $2 AND payment_status = 'PENDING'`, eventID, id)
	if err != nil {
		return false, fmt.Errorf("cancel payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *registrationRepo) SetRefundStatus(ctx context.Context, db DBTX, eventID, id string, status domain.RefundStatus) error {
	_, err := db.Exec(ctx, `
		UPDATE registrations SET refund_status = $3
		WHERE event_id = $1 AND id = $2`, eventID, id, string(status))
	if err != nil {
		return fmt.Errorf("set refund status: %w", err)
	}
	return nil
}

func (r *registrationRepo) ApplyRefundSuccess(ctx context.Context, db DBTX, eventID, id string, amountMajor float64, refundAt time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE registrations
		SET refund_amount = COALESCE(refund_amount, 0) + $3,
		    refund_at = $4,
		    refund_status = 'SUCCESS'
		WHERE event_id = $1 AND id = $2`, eventID, id, amountMajor, refundAt)
	if err != nil {
		return fmt.Errorf("apply refund success: %w", err)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	var payer, handler, owner, dog []byte
	var optionalCosts []int32
	var paymentStatus, refundStatus, state, language, selectedCost *string
	err := row.Scan(
		&reg.EventID, &reg.ID, &state, &reg.Cancelled, &language,
		&payer, &handler, &owner, &dog,
		&selectedCost, &optionalCosts, &reg.CreatedAt,
		&paymentStatus, &reg.PaidAmount, &reg.PaidAt,
		&refundStatus, &reg.RefundAmount, &reg.RefundAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}

	for _, f := range []struct {
		data []byte
		dst  any
	}{
		{payer, &reg.Payer}, {handler, &reg.Handler}, {owner, &reg.Owner}, {dog, &reg.Dog},
	} {
		if len(f.data) > 0 {
			if err := json.Unmarshal(f.data, f.dst); err != nil {
				return nil, fmt.Errorf("decode registration field: %w", err)
			}
		}
	}

	for _, i := range optionalCosts {
		reg.OptionalCosts = append(reg.OptionalCosts, int(i))
	}
	if state != nil {
		reg.State = *state
	}
	if language != nil {
		reg.Language = *language
	}
	if selectedCost != nil {
		reg.SelectedCost = *selectedCost
	}
	if paymentStatus != nil {
		reg.PaymentStatus = domain.PaymentStatus(*paymentStatus)
	}
	if refundStatus != nil {
		reg.RefundStatus = domain.RefundStatus(*refundStatus)
	}
	return &reg, nil
}
