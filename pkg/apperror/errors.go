package apperror

import (
	"errors"
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

// IsCode reports whether err is, or wraps, an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes returned by the ledger core.
const (
	CodeInvalidAmount       = "REQ_001"
	CodeUnsupportedCurrency = "REQ_002"
	CodeSameCurrency        = "REQ_003"
	CodeValidation          = "REQ_004"
	CodeRateUnavailable     = "FX_001"
	CodeInsufficientFunds   = "PAY_001"
	CodeNotFound            = "PAY_004"
	CodeVendorNotFound      = "VND_001"
	CodeVendorNotVerified   = "VND_002"
	CodeOwnershipMismatch   = "TOP_001"
	CodePaymentNotCompleted = "TOP_002"
	CodeChargeMismatch      = "TOP_003"
	CodeProcessorError      = "TOP_004"
)

// ---- Input (REQ) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be greater than zero with at most 8 decimal places", http.StatusBadRequest)
}

func ErrUnsupportedCurrency(code string) *AppError {
	return New(CodeUnsupportedCurrency, fmt.Sprintf("Unsupported currency: %q", code), http.StatusBadRequest)
}

func ErrSameCurrency() *AppError {
	return New(CodeSameCurrency, "Source and destination currency must differ", http.StatusBadRequest)
}

// Validation returns a REQ_004 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Exchange (FX) ----

func ErrRateUnavailable(from, to string) *AppError {
	return New(CodeRateUnavailable, fmt.Sprintf("No exchange rate for %s to %s", from, to), http.StatusUnprocessableEntity)
}

// ---- Payment (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Vendor (VND) ----

func ErrVendorNotFound() *AppError {
	return New(CodeVendorNotFound, "Vendor not found", http.StatusNotFound)
}

func ErrVendorNotVerified() *AppError {
	return New(CodeVendorNotVerified, "Vendor is not verified", http.StatusUnprocessableEntity)
}

// ---- Top-up (TOP) ----

func ErrOwnershipMismatch() *AppError {
	return New(CodeOwnershipMismatch, "Payment does not belong to the caller", http.StatusForbidden)
}

func ErrPaymentNotCompleted(status string) *AppError {
	return New(CodePaymentNotCompleted, fmt.Sprintf("Payment has not succeeded (status %q)", status), http.StatusUnprocessableEntity)
}

func ErrChargeMismatch() *AppError {
	return New(CodeChargeMismatch, "Payment amount or currency does not match the request", http.StatusUnprocessableEntity)
}

func ErrProcessorUnavailable(err error) *AppError {
	return Wrap(CodeProcessorError, "Payment processor unavailable", http.StatusBadGateway, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_005", "Insufficient permissions", http.StatusForbidden)
}

// ---- Security (SEC) ----

func ErrInvalidFeedKey() *AppError {
	return New("SEC_001", "Invalid rate feed key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrServiceUnavailable(err error) *AppError {
	return Wrap("SYS_002", "Service temporarily unavailable", http.StatusServiceUnavailable, err)
}
