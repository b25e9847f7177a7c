package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
	CodeTimeout         = "TIMEOUT"

	// Scanner session codes
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeIntentNotApplicable  = "INTENT_NOT_APPLICABLE"
	CodeIllegalTransition    = "ILLEGAL_TRANSITION"
	CodeSuperseded           = "SUPERSEDED"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges details into the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout)
}

// ErrSessionNotFound reports an unknown or evicted scanner session.
func ErrSessionNotFound(sessionID string) *AppError {
	return NewAppError(CodeSessionNotFound, "scanner session not found", http.StatusNotFound).
		WithDetail("sessionId", sessionID)
}

// ErrIntentNotApplicable reports an operator intent that does not apply to
// the session's current phase.
func ErrIntentNotApplicable(intent, phase string) *AppError {
	return NewAppError(CodeIntentNotApplicable, fmt.Sprintf("%s is not applicable in phase %s", intent, phase), http.StatusConflict).
		WithDetail("intent", intent).
		WithDetail("phase", phase)
}

// ErrIllegalTransition reports an event the state machine rejected.
func ErrIllegalTransition(message string) *AppError {
	return NewAppError(CodeIllegalTransition, message, http.StatusConflict)
}

// ErrSuperseded reports a request whose result was discarded because a newer
// request replaced it.
func ErrSuperseded() *AppError {
	return NewAppError(CodeSuperseded, "request was superseded by a newer scan", http.StatusConflict)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts any error to an AppError, defaulting to internal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return ErrInternal("").Wrap(err)
}
