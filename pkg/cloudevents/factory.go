package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// EventFactory creates CloudEvents for one source.
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent builds an event and stamps the current trace parent from ctx.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	return event
}

// OperationCompleted builds a ScannerOperationCompleted event for a session.
func (f *EventFactory) OperationCompleted(ctx context.Context, deviceID string, data OperationCompletedData) *WMSCloudEvent {
	event := f.CreateEvent(ctx, ScannerOperationCompleted, "session/"+data.SessionID, data)
	event.SessionID = data.SessionID
	event.DeviceID = deviceID
	event.CorrelationID = data.SubmissionKey
	return event
}

// DestinationOverridden builds the audit event for an override.
func (f *EventFactory) DestinationOverridden(ctx context.Context, deviceID, submissionKey string, data DestinationOverriddenData) *WMSCloudEvent {
	event := f.CreateEvent(ctx, ScannerDestinationOverridden, "session/"+data.SessionID, data)
	event.SessionID = data.SessionID
	event.DeviceID = deviceID
	event.CorrelationID = submissionKey
	return event
}

// SubmissionFailed builds a ScannerSubmissionFailed event.
func (f *EventFactory) SubmissionFailed(ctx context.Context, deviceID string, data SubmissionFailedData) *WMSCloudEvent {
	event := f.CreateEvent(ctx, ScannerSubmissionFailed, "session/"+data.SessionID, data)
	event.SessionID = data.SessionID
	event.DeviceID = deviceID
	event.CorrelationID = data.SubmissionKey
	return event
}
