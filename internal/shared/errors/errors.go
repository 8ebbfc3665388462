package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternal       = errors.New("internal error")
	ErrNetwork        = errors.New("network failure")
	ErrScriptLoad     = errors.New("gateway script unavailable")
	ErrServerRejected = errors.New("server rejected request")
	ErrGatewayDecline = errors.New("gateway declined payment")
	ErrUserDismissed  = errors.New("user dismissed checkout")
	ErrSessionExpired = errors.New("session expired")
)

// Outcome codes carried on the /checkout/error route.
const (
	OutcomePaymentFailed       = "payment_failed"
	OutcomePaymentCancelled    = "payment_cancelled"
	OutcomeSessionExpired      = "session_expired"
	OutcomeInsufficientBalance = "insufficient_balance"
	OutcomeNetworkError        = "network_error"
	OutcomeUnknown             = "unknown"
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors.

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// ValidationError creates a validation error. Validation failures are surfaced
// inline on the checkout form and never reach the outcome routes.
func ValidationError(message string) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        ErrBadRequest,
	}
}

// Conflict creates a conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        ErrConflict,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NetworkError creates an error for a failed call to the commerce backend or
// gateway, including circuit-breaker rejections.
func NetworkError(message string, err error) *AppError {
	if message == "" {
		message = "upstream request failed"
	}
	return &AppError{
		Code:       "NETWORK_ERROR",
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        errors.Join(ErrNetwork, err),
	}
}

// ScriptLoadError creates an error for a gateway checkout asset that could not
// be initialized or fetched.
func ScriptLoadError(provider string, err error) *AppError {
	return &AppError{
		Code:       "SCRIPT_LOAD_ERROR",
		Message:    fmt.Sprintf("%s checkout could not be initialized", provider),
		StatusCode: http.StatusBadGateway,
		Err:        errors.Join(ErrScriptLoad, err),
	}
}

// ServerRejection creates an error for a non-2xx response from the commerce
// backend. The backend's status code is preserved.
func ServerRejection(message string, statusCode int) *AppError {
	if statusCode < http.StatusBadRequest {
		statusCode = http.StatusBadGateway
	}
	return &AppError{
		Code:       "SERVER_REJECTION",
		Message:    message,
		StatusCode: statusCode,
		Err:        ErrServerRejected,
	}
}

// InsufficientBalance creates a server rejection for a failed wallet reservation.
func InsufficientBalance(message string) *AppError {
	if message == "" {
		message = "wallet balance is insufficient for this order"
	}
	return &AppError{
		Code:       "INSUFFICIENT_BALANCE",
		Message:    message,
		StatusCode: http.StatusPaymentRequired,
		Err:        ErrServerRejected,
	}
}

// GatewayDeclined creates an error for a payment declined by the gateway.
func GatewayDeclined(message string) *AppError {
	if message == "" {
		message = "payment was declined"
	}
	return &AppError{
		Code:       "GATEWAY_DECLINED",
		Message:    message,
		StatusCode: http.StatusPaymentRequired,
		Err:        ErrGatewayDecline,
	}
}

// SessionExpired creates an error for an expired or invalid session.
func SessionExpired(message string) *AppError {
	if message == "" {
		message = "your session has expired, please sign in again"
	}
	return &AppError{
		Code:       "SESSION_EXPIRED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrSessionExpired,
	}
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	}
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrGatewayDecline):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrScriptLoad):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// OutcomeCode maps an error to the code carried on the checkout error route.
// Unrecognized errors map to "unknown".
func OutcomeCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == "INSUFFICIENT_BALANCE" {
		return OutcomeInsufficientBalance
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		return OutcomeSessionExpired
	case errors.Is(err, ErrGatewayDecline):
		return OutcomePaymentFailed
	case errors.Is(err, ErrUserDismissed):
		return OutcomePaymentCancelled
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrScriptLoad):
		return OutcomeNetworkError
	default:
		return OutcomeUnknown
	}
}
