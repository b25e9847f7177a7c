package gateway

import (
	"context"
	"errors"

	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/wms-platform/scanner-service/internal/activities"
	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/internal/workflows"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
	"github.com/wms-platform/scanner-service/pkg/temporal"
)

// TemporalSubmitter runs submissions as ScannerSubmissionWorkflow executions
// keyed by the submission key. A repeated key attaches to the execution
// already started for it instead of posting the operation twice.
type TemporalSubmitter struct {
	client    client.Client
	taskQueue string
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewTemporalSubmitter creates a TemporalSubmitter on the scanner task queue.
func NewTemporalSubmitter(c client.Client, m *metrics.Metrics, logger *logging.Logger) *TemporalSubmitter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TemporalSubmitter{
		client:    c,
		taskQueue: temporal.TaskQueues.Scanner,
		metrics:   m,
		logger:    logger.WithComponent("temporal-submitter"),
	}
}

// SubmitOperation starts or attaches to the submission workflow and waits
// for its result.
func (s *TemporalSubmitter) SubmitOperation(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	input := workflows.SubmissionInput{Submission: sub}
	if id, ok := ctx.Value(logging.SessionIDKey).(string); ok {
		input.SessionID = id
	}

	run, err := temporal.StartOrAttach(ctx, s.client, workflows.SubmissionWorkflowID(sub.Key), s.taskQueue,
		temporal.WorkflowNames.ScannerSubmission, input)
	s.metrics.RecordWorkflowStarted(temporal.WorkflowNames.ScannerSubmission, err == nil)
	if err != nil {
		return domain.Result{}, &domain.GatewayError{Kind: domain.ErrorKindTransport, Message: "failed to start submission workflow", Err: err}
	}

	s.logger.WithContext(ctx).Debug("Waiting on submission workflow",
		"workflowId", run.GetID(),
		"runId", run.GetRunID(),
	)

	var result domain.Result
	if err := run.Get(ctx, &result); err != nil {
		return domain.Result{}, submissionError(err)
	}
	return result, nil
}

// submissionError recovers the failure kind the activity encoded as the
// ApplicationError type.
func submissionError(err error) error {
	var appErr *sdktemporal.ApplicationError
	if !errors.As(err, &appErr) {
		return &domain.GatewayError{Kind: domain.ErrorKindTransport, Message: "submission workflow failed", Err: err}
	}

	kind := domain.ErrorKind(appErr.Type())
	switch kind {
	case domain.ErrorKindNotFound, domain.ErrorKindInactive, domain.ErrorKindNoneAvailable,
		domain.ErrorKindValidation, domain.ErrorKindConflict, domain.ErrorKindInvalidInput:
	default:
		kind = domain.ErrorKindTransport
	}

	var code string
	if appErr.HasDetails() {
		_ = appErr.Details(&code)
	}
	return &domain.GatewayError{Kind: kind, Code: code, Message: appErr.Message(), Err: err}
}

// WithSubmitter returns a gateway that resolves scans through base and sends
// submissions through submitter.
func WithSubmitter(base application.Gateway, submitter activities.Submitter) application.Gateway {
	return &routedGateway{Gateway: base, submitter: submitter}
}

type routedGateway struct {
	application.Gateway
	submitter activities.Submitter
}

func (g *routedGateway) SubmitOperation(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	return g.submitter.SubmitOperation(ctx, sub)
}
