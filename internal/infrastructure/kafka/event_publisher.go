package kafka

import (
	"context"
	"fmt"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/pkg/cloudevents"
	wmskafka "github.com/wms-platform/scanner-service/pkg/kafka"
)

// EventPublisher emits scanner session outcomes as CloudEvents. Completions
// and submission failures go to the scanner topic; overrides are also written
// to the audit topic.
type EventPublisher struct {
	producer wmskafka.EventPublisher
	factory  *cloudevents.EventFactory
}

// NewEventPublisher creates an EventPublisher over producer.
func NewEventPublisher(producer wmskafka.EventPublisher, factory *cloudevents.EventFactory) *EventPublisher {
	if factory == nil {
		factory = cloudevents.NewEventFactory(cloudevents.SourceScanner)
	}
	return &EventPublisher{producer: producer, factory: factory}
}

func (p *EventPublisher) PublishCompleted(ctx context.Context, c application.Completion) error {
	sub := c.Submission
	warnings := make([]string, 0, len(c.Warnings))
	for _, w := range c.Warnings {
		warnings = append(warnings, string(w.Kind))
	}

	event := p.factory.OperationCompleted(ctx, c.DeviceID, cloudevents.OperationCompletedData{
		SessionID:       c.SessionID,
		Operation:       string(sub.Operation),
		SubmissionKey:   sub.Key,
		SourceID:        sub.SourceID,
		SourceCode:      sub.SourceCode,
		DestinationID:   sub.DestinationID,
		DestinationCode: sub.DestinationCode,
		Quantity:        sub.Quantity,
		UoM:             sub.UoM,
		Override:        sub.Override,
		Reference:       c.Result.Reference,
		Counters:        c.Result.Counters,
		Warnings:        warnings,
		CompletedAt:     c.CompletedAt,
	})
	if err := p.producer.PublishEvent(ctx, wmskafka.Topics.ScannerEvents, event); err != nil {
		return fmt.Errorf("failed to publish completion of session %s: %w", c.SessionID, err)
	}

	if !sub.Override {
		return nil
	}
	audit := p.factory.DestinationOverridden(ctx, c.DeviceID, sub.Key, cloudevents.DestinationOverriddenData{
		SessionID:              c.SessionID,
		Operation:              string(sub.Operation),
		OperatorID:             c.OperatorID,
		SourceID:               sub.SourceID,
		SuggestedDestinationID: sub.SuggestedDestinationID,
		ChosenDestinationID:    sub.DestinationID,
		Reason:                 sub.OverrideReason,
		OverriddenAt:           c.CompletedAt,
	})
	if err := p.producer.PublishEvent(ctx, wmskafka.Topics.AuditEvents, audit); err != nil {
		return fmt.Errorf("failed to publish override audit of session %s: %w", c.SessionID, err)
	}
	return nil
}

func (p *EventPublisher) PublishSubmissionFailed(ctx context.Context, f application.SubmissionFailure) error {
	event := p.factory.SubmissionFailed(ctx, f.DeviceID, cloudevents.SubmissionFailedData{
		SessionID:     f.SessionID,
		Operation:     string(f.Submission.Operation),
		SubmissionKey: f.Submission.Key,
		ErrorKind:     string(f.Failure.Kind),
		ErrorCode:     f.Failure.Code,
		Message:       f.Failure.Message,
	})
	if err := p.producer.PublishEvent(ctx, wmskafka.Topics.ScannerEvents, event); err != nil {
		return fmt.Errorf("failed to publish submission failure of session %s: %w", f.SessionID, err)
	}
	return nil
}
