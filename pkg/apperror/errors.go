package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid API credentials", http.StatusUnauthorized)
}

func ErrNotOwned(entity string) *AppError {
	return New("AUTH_002", fmt.Sprintf("%s does not belong to this merchant", entity), http.StatusForbidden)
}

// ---- Payment Business Logic (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_001", "Invalid amount", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrPaymentNotRefundable() *AppError {
	return New("PAY_003", "Only successful payments can be refunded", http.StatusBadRequest)
}

func ErrRefundExceedsPayment() *AppError {
	return New("PAY_004", "Refund amount exceeds remaining refundable amount", http.StatusBadRequest)
}

func ErrInvalidPaymentMethod() *AppError {
	return New("PAY_005", "Unsupported payment method", http.StatusBadRequest)
}

// ---- Job & Webhook Subsystem (JOB / WH) ----

// ErrTransientStore signals that the queue or ledger backend is
// unreachable. The originating business record is already durable, so
// callers log it and continue rather than rolling back.
func ErrTransientStore(err error) *AppError {
	return Wrap("JOB_001", "Job store temporarily unavailable", http.StatusServiceUnavailable, err)
}

// ErrRecordNotFound marks a job whose referenced record vanished between
// enqueue and processing. The job is dropped without retry.
func ErrRecordNotFound(entity string) *AppError {
	return New("JOB_002", fmt.Sprintf("%s referenced by job no longer exists", entity), http.StatusNotFound)
}

// ErrDeliveryFailure marks a non-2xx response or transport error on a
// webhook attempt. Retried per the backoff schedule up to the cap.
func ErrDeliveryFailure(err error) *AppError {
	return Wrap("WH_001", "Webhook delivery failed", http.StatusBadGateway, err)
}

// ErrConfigurationMissing marks a merchant without a webhook URL or
// signing secret. No delivery is attempted and no record is created.
func ErrConfigurationMissing() *AppError {
	return New("WH_002", "Merchant webhook URL or secret not configured", http.StatusUnprocessableEntity)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a generic request validation error.
func Validation(message string) *AppError {
	return New("PAY_001", message, http.StatusBadRequest)
}
