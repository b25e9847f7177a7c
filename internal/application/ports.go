package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wms-platform/scanner-service/internal/domain"
)

// Application errors
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrIntentNotApplicable = errors.New("intent not applicable")
	ErrSuperseded          = errors.New("superseded by a newer request")
	ErrSessionClosed       = errors.New("session closed")
	ErrInvalidInput        = errors.New("invalid input")
)

// IntentError is returned when an intent is not accepted in the current
// phase.
type IntentError struct {
	Intent Intent
	Phase  domain.Phase
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("intent %s is not applicable in phase %s", e.Intent, e.Phase)
}

func (e *IntentError) Unwrap() error {
	return ErrIntentNotApplicable
}

// Gateway resolves scans and submits completed operations. Implementations
// return *domain.GatewayError so failures can be classified.
type Gateway interface {
	LookupItem(ctx context.Context, op domain.Operation, code string) (domain.ScannedEntity, error)
	LookupDestination(ctx context.Context, op domain.Operation, code string) (domain.DestinationEntity, error)
	// FetchSuggestion returns a GatewayError of kind none_available when the
	// backend has no suggestion for the item.
	FetchSuggestion(ctx context.Context, op domain.Operation, itemID string) (domain.Suggestion, error)
	SubmitOperation(ctx context.Context, submission domain.Submission) (domain.Result, error)
}

// Feedback renders audible/haptic cues on the device. Calls must not block.
type Feedback interface {
	SignalSuccess()
	SignalError()
	SignalWarning()
	SignalConfirm()
}

// FeedbackFactory builds the feedback sink of one session.
type FeedbackFactory func(sessionID string) Feedback

// CallKind names a remote call an orchestrator makes.
type CallKind string

const (
	CallItemLookup        CallKind = "item_lookup"
	CallDestinationLookup CallKind = "destination_lookup"
	CallSuggestion        CallKind = "suggestion"
	CallSubmit            CallKind = "submit"
)

// FailedCall records the last failed remote call so Retry can re-issue it
// with identical inputs.
type FailedCall struct {
	Kind       CallKind           `json:"kind" bson:"kind"`
	Code       string             `json:"code,omitempty" bson:"code,omitempty"`
	ItemID     string             `json:"itemId,omitempty" bson:"itemId,omitempty"`
	Submission *domain.Submission `json:"submission,omitempty" bson:"submission,omitempty"`
}

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	SessionID  string       `json:"sessionId" bson:"sessionId"`
	DeviceID   string       `json:"deviceId,omitempty" bson:"deviceId,omitempty"`
	OperatorID string       `json:"operatorId,omitempty" bson:"operatorId,omitempty"`
	State      domain.State `json:"state" bson:"state"`
	LastFailed *FailedCall  `json:"lastFailed,omitempty" bson:"lastFailed,omitempty"`
	CreatedAt  time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// SnapshotStore persists session records. Load returns ErrSessionNotFound
// for unknown sessions. Save must ignore records older than the stored one.
type SnapshotStore interface {
	Save(ctx context.Context, record SessionRecord) error
	Load(ctx context.Context, sessionID string) (*SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionLister is implemented by stores that can list a device's sessions.
type SessionLister interface {
	FindByDevice(ctx context.Context, deviceID string, limit int64) ([]SessionRecord, error)
}

// Completion describes a successfully submitted operation.
type Completion struct {
	SessionID   string
	DeviceID    string
	OperatorID  string
	Submission  domain.Submission
	Result      domain.Result
	Warnings    []domain.Warning
	CompletedAt time.Time
}

// SubmissionFailure describes a rejected or failed submission.
type SubmissionFailure struct {
	SessionID  string
	DeviceID   string
	Submission domain.Submission
	Failure    domain.Failure
}

// EventPublisher announces completed operations to the rest of the platform.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, completion Completion) error
	PublishSubmissionFailed(ctx context.Context, failure SubmissionFailure) error
}
