package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/temporal"
)

// SubmissionInput is the input of ScannerSubmissionWorkflow.
type SubmissionInput struct {
	SessionID  string            `json:"sessionId,omitempty"`
	DeviceID   string            `json:"deviceId,omitempty"`
	Submission domain.Submission `json:"submission"`
}

// SubmissionWorkflowID returns the workflow id for a submission key. One key
// maps to one execution, so a resubmitted key attaches to the first run.
func SubmissionWorkflowID(key string) string {
	return "scanner-submission-" + key
}

// ScannerSubmissionWorkflow executes a confirmed scanner operation against
// the submit service. Transport failures are retried by the activity retry
// policy; business rejections fail the workflow with the rejection kind.
func ScannerSubmissionWorkflow(ctx workflow.Context, input SubmissionInput) (domain.Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting scanner submission",
		"submissionKey", input.Submission.Key,
		"operation", input.Submission.Operation,
		"sessionId", input.SessionID,
	)

	ctx = workflow.WithActivityOptions(ctx, SubmissionActivityOptions())

	var result domain.Result
	err := workflow.ExecuteActivity(ctx, temporal.ActivityNames.SubmitScannerOperation, input.Submission).Get(ctx, &result)
	if err != nil {
		logger.Warn("Scanner submission failed",
			"submissionKey", input.Submission.Key,
			"error", err,
		)
		return domain.Result{}, err
	}

	logger.Info("Scanner submission completed",
		"submissionKey", input.Submission.Key,
		"reference", result.Reference,
	)
	return result, nil
}
