package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403}
}

// ErrAlreadyPaid signals that the amount due is zero or negative; no
// transaction is created and the caller sees an empty success.
func ErrAlreadyPaid() *AppError {
	return &AppError{Code: "ALREADY_PAID", Message: "registration is already paid", Status: 204}
}

// ErrMerchantConfig signals that the organizer has no payment merchant
// configuration; raised before any gateway call.
func ErrMerchantConfig(organizerID string) *AppError {
	return &AppError{Code: "MERCHANT_NOT_CONFIGURED", Message: fmt.Sprintf("organizer %s has no merchant id", organizerID), Status: 412}
}

// ErrUnsupportedRefund signals a refund shape with no defined policy,
// e.g. a multi-line transaction.
func ErrUnsupportedRefund(msg string) *AppError {
	return &AppError{Code: "UNSUPPORTED_REFUND", Message: msg, Status: 412}
}

func ErrGateway(msg string, cause error) *AppError {
	return &AppError{Code: "GATEWAY_ERROR", Message: msg, Status: 500, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
