package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrInvariantViolated = errors.New("workflow invariant violated")
	ErrInvalidBarcode    = errors.New("invalid barcode")
	ErrNotSubmittable    = errors.New("state is not submittable")
)

// TransitionError is returned when the engine rejects an event. The state
// returned alongside it is the unchanged input state.
type TransitionError struct {
	Phase  Phase
	Event  EventType
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s in phase %s: %s", e.Event, e.Phase, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// ErrorKind classifies a failure for presentation and retry decisions.
type ErrorKind string

const (
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindInactive      ErrorKind = "inactive"
	ErrorKindNoneAvailable ErrorKind = "none_available"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConflict      ErrorKind = "conflict"
	ErrorKindTransport     ErrorKind = "transport"
	ErrorKindInvalidInput  ErrorKind = "invalid_input"
	ErrorKindInterrupted   ErrorKind = "interrupted"
)

// Retryable reports whether re-issuing the same call could succeed. A
// conflict needs the operator to re-check the stock first.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTransport, ErrorKindInterrupted:
		return true
	default:
		return false
	}
}

// Failure is the error carried in State. It is plain data so it serializes
// with the snapshot.
type Failure struct {
	Kind    ErrorKind `json:"kind" bson:"kind"`
	Code    string    `json:"code,omitempty" bson:"code,omitempty"`
	Message string    `json:"message" bson:"message"`
}

// Failure codes raised by the engine itself.
const (
	CodeSameLocation    = "SAME_LOCATION"
	CodeInvalidQuantity = "INVALID_QUANTITY"
	CodeInterrupted     = "INTERRUPTED"
)

// GatewayError is the typed error remote gateway adapters return.
type GatewayError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError builds a GatewayError.
func NewGatewayError(kind ErrorKind, code, message string) *GatewayError {
	return &GatewayError{Kind: kind, Code: code, Message: message}
}

// FailureFromError converts any gateway error into a Failure. Errors that are
// not GatewayErrors are treated as transport failures.
func FailureFromError(err error) Failure {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		msg := gwErr.Message
		if msg == "" {
			msg = gwErr.Error()
		}
		return Failure{Kind: gwErr.Kind, Code: gwErr.Code, Message: msg}
	}
	return Failure{Kind: ErrorKindTransport, Message: err.Error()}
}
