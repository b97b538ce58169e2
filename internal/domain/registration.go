package domain

import "time"

// PaymentStatus tracks a registration's payment state.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusCancel  PaymentStatus = "CANCEL"
)

// RefundStatus tracks a registration's refund state.
type RefundStatus string

const (
	RefundStatusPending RefundStatus = "PENDING"
	RefundStatusSuccess RefundStatus = "SUCCESS"
)

// Person holds the contact details this core needs from a registration
// participant.
type Person struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Membership bool   `json:"membership,omitempty"`
}

// Dog holds the subset of dog details used by pricing.
type Dog struct {
	BreedCode string `json:"breedCode,omitempty"`
}

// Registration is the externally owned registration entity. This core
// reads it for pricing inputs and mutates only the payment fields
// (paymentStatus, paidAmount, paidAt, refund fields, state).
type Registration struct {
	EventID       string    `json:"eventId"`
	ID            string    `json:"id"`
	State         string    `json:"state,omitempty"`
	Cancelled     bool      `json:"cancelled,omitempty"`
	Language      string    `json:"language,omitempty"`
	Payer         Person    `json:"payer"`
	Handler       Person    `json:"handler"`
	Owner         Person    `json:"owner"`
	Dog           Dog       `json:"dog"`
	SelectedCost  string    `json:"selectedCost,omitempty"`
	OptionalCosts []int     `json:"optionalCosts,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`

	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	PaidAmount    float64       `json:"paidAmount,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
	RefundStatus  RefundStatus  `json:"refundStatus,omitempty"`
	RefundAmount  float64       `json:"refundAmount,omitempty"`
	RefundAt      *time.Time    `json:"refundAt,omitempty"`
}

// IsMember reports whether the registration qualifies for member
// pricing: either the handler or the owner is a member.
func (r *Registration) IsMember() bool {
	return r.Handler.Membership || r.Owner.Membership
}

// RegistrationStateReady is the registration state set when a payment
// completes, re-opening the booking.
const RegistrationStateReady = "ready"
