package domain

import (
	"strings"
	"time"
)

// TransactionType distinguishes payments from refunds.
type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
)

// TransactionStatus tracks the gateway transaction lifecycle.
// A transaction only ever moves new/pending -> ok/fail; terminal
// statuses are never overwritten.
type TransactionStatus string

const (
	TransactionStatusNew     TransactionStatus = "new"
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusOK      TransactionStatus = "ok"
	TransactionStatusFail    TransactionStatus = "fail"
)

// NonTerminalStatuses is the precondition set for callback-driven
// status transitions.
var NonTerminalStatuses = []TransactionStatus{TransactionStatusNew, TransactionStatusPending}

// Terminal reports whether the status is final.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusOK || s == TransactionStatusFail
}

// PaymentItem is one itemized line of a payment transaction.
type PaymentItem struct {
	Stamp         string `json:"stamp"`
	UnitPrice     int64  `json:"unitPrice"`
	Units         int    `json:"units"`
	VATPercentage int    `json:"vatPercentage"`
	ProductCode   string `json:"productCode"`
	Description   string `json:"description,omitempty"`
	Reference     string `json:"reference"`
	Merchant      string `json:"merchant"`
}

// RefundItem links a refund to the original payment line by its stamp.
type RefundItem struct {
	Amount          int64  `json:"amount"`
	Stamp           string `json:"stamp"`
	RefundStamp     string `json:"refundStamp"`
	RefundReference string `json:"refundReference"`
}

// Transaction is one transactions table row: one gateway-facing payment
// or refund operation. Immutable after creation except for status,
// statusAt and provider.
type Transaction struct {
	TransactionID string            `json:"transactionId"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	StatusAt      *time.Time        `json:"statusAt,omitempty"`
	Amount        int64             `json:"amount"`
	Reference     string            `json:"reference"`
	BankReference *string           `json:"bankReference,omitempty"`
	Provider      *string           `json:"provider,omitempty"`
	Items         []PaymentItem     `json:"items,omitempty"`
	RefundItems   []RefundItem      `json:"refundItems,omitempty"`
	Stamp         string            `json:"stamp"`
	User          string            `json:"user"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Reference is the "<eventId>:<registrationId>" compound key linking a
// transaction to the registration it pays for.
func MakeReference(eventID, registrationID string) string {
	return eventID + ":" + registrationID
}

// SplitReference splits a compound reference on the first colon.
func SplitReference(reference string) (eventID, registrationID string) {
	eventID, registrationID, _ = strings.Cut(reference, ":")
	return eventID, registrationID
}
