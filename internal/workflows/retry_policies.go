package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/scanner-service/internal/domain"
)

// RetryPolicyType defines different retry policy configurations
type RetryPolicyType int

const (
	// StandardRetry for submissions (3 attempts, 1s-1m backoff)
	StandardRetry RetryPolicyType = iota
)

// nonRetryableKinds are the failures a repeat of the identical request cannot
// fix. Activities report them with the ErrorKind as the ApplicationError type.
var nonRetryableKinds = []string{
	string(domain.ErrorKindNotFound),
	string(domain.ErrorKindInactive),
	string(domain.ErrorKindNoneAvailable),
	string(domain.ErrorKindValidation),
	string(domain.ErrorKindConflict),
	string(domain.ErrorKindInvalidInput),
}

// GetRetryPolicy returns a configured retry policy based on type
func GetRetryPolicy(policyType RetryPolicyType) *temporal.RetryPolicy {
	switch policyType {
	case StandardRetry:
		fallthrough
	default:
		return &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: nonRetryableKinds,
		}
	}
}

// SubmissionActivityOptions returns the options for the submit activity.
func SubmissionActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         GetRetryPolicy(StandardRetry),
	}
}
