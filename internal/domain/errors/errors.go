package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies errors for logging and HTTP mapping.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypePolicy       ErrorType = "policy"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTransient    ErrorType = "transient"
	ErrorTypeInternal     ErrorType = "internal"
)

// AppError is a structured application error. Code is the stable result_code
// string exposed to clients; Message may change.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// Constructors

func NewValidationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Code: code, Message: message, StatusCode: 400}
}

// NewPolicyError marks a well-formed request rejected by auction rules.
// Policy rejections always produce a bid_rejected audit event at the caller.
func NewPolicyError(code, message string) *AppError {
	return &AppError{Type: ErrorTypePolicy, Code: code, Message: message, StatusCode: 400}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf("%s not found", resource), StatusCode: 404}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Type: ErrorTypeUnauthorized, Code: "UNAUTHORIZED", Message: message, StatusCode: 401}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Type: ErrorTypeForbidden, Code: "FORBIDDEN", Message: message, StatusCode: 403}
}

func NewConflictError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeConflict, Code: code, Message: message, StatusCode: 409}
}

func NewTransientError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeTransient, Code: code, Message: message, Retryable: true, StatusCode: 503}
}

func NewInternalError(message string) *AppError {
	return &AppError{Type: ErrorTypeInternal, Code: "INTERNAL_ERROR", Message: message, Retryable: true, StatusCode: 500}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{Type: ErrorTypeForbidden, Code: "RATE_LIMIT_EXCEEDED", Message: message, Retryable: true, StatusCode: 429}
}

// Stable result codes for bidding and lifecycle operations.
var (
	ErrInvalidAmount     = NewValidationError("INVALID_AMOUNT", "bid amount must be positive")
	ErrInvalidMaxBid     = NewValidationError("INVALID_MAX_BID", "max bid must be at least the bid amount")
	ErrLotNotActive      = NewPolicyError("LOT_NOT_ACTIVE", "lot is not open for bidding")
	ErrAuctionClosed     = NewPolicyError("AUCTION_CLOSED", "bidding on this lot has closed")
	ErrBidTooLow         = NewPolicyError("BID_TOO_LOW", "bid amount is below the minimum next bid")
	ErrSelfOutbid        = NewPolicyError("SELF_OUTBID", "bidder already holds the winning bid")
	ErrMaxBidTied        = NewPolicyError("MAX_BID_TIED", "max bid equals the current high bidder's max; earlier bid wins")
	ErrNoBuyNow          = NewPolicyError("NO_BUY_NOW", "lot has no buy now price")
	ErrNotActive         = NewPolicyError("NOT_ACTIVE", "lot is not active")
	ErrNotClosed         = NewPolicyError("NOT_CLOSED", "auction is not closed")
	ErrAlreadyGenerated  = NewConflictError("ALREADY_GENERATED", "invoices already generated for auction")
	ErrTransientConflict = NewTransientError("TRANSIENT_CONFLICT", "concurrent update conflict, retry")
	ErrLotNotFound       = NewNotFoundError("lot")
	ErrAuctionNotFound   = NewNotFoundError("auction")
)

// Wrap wraps an error with a message using %w.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks whether err is an AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether the caller may retry.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// Code extracts the stable result code, or INTERNAL_ERROR.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}

// GetStatusCode extracts the HTTP status code from an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
