package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/scanner-service/internal/domain"
)

// Submitter sends a confirmed operation to the backend. The HTTP gateway
// satisfies it.
type Submitter interface {
	SubmitOperation(ctx context.Context, sub domain.Submission) (domain.Result, error)
}

// SubmissionActivities contains the activities of the submission workflow
type SubmissionActivities struct {
	submitter Submitter
}

// NewSubmissionActivities creates a new SubmissionActivities instance
func NewSubmissionActivities(submitter Submitter) *SubmissionActivities {
	return &SubmissionActivities{submitter: submitter}
}

// SubmitScannerOperation posts the submission once. Rejections that a retry
// cannot change are returned as non-retryable ApplicationErrors typed with the
// failure kind and carrying the backend code as details.
func (a *SubmissionActivities) SubmitScannerOperation(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	logger.Info("Submitting scanner operation",
		"submissionKey", sub.Key,
		"operation", sub.Operation,
		"attempt", info.Attempt,
	)

	result, err := a.submitter.SubmitOperation(ctx, sub)
	if err == nil {
		return result, nil
	}

	failure := domain.FailureFromError(err)
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) || failure.Kind.Retryable() {
		logger.Warn("Scanner submission attempt failed", "submissionKey", sub.Key, "error", err)
		return domain.Result{}, temporal.NewApplicationError(failure.Message, string(failure.Kind), failure.Code)
	}

	logger.Warn("Scanner submission rejected",
		"submissionKey", sub.Key,
		"kind", failure.Kind,
		"code", failure.Code,
	)
	return domain.Result{}, temporal.NewNonRetryableApplicationError(failure.Message, string(failure.Kind), err, failure.Code)
}
