package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/internal/workflows"
	"github.com/wms-platform/scanner-service/pkg/logging"
)

func newWorkflowRun(result domain.Result, err error) *mocks.WorkflowRun {
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("scanner-submission-key-1").Maybe()
	run.On("GetRunID").Return("run-1").Maybe()
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		if err == nil {
			*args.Get(1).(*domain.Result) = result
		}
	}).Return(err)
	return run
}

func TestTemporalSubmitter_StartsKeyedWorkflow(t *testing.T) {
	c := &mocks.Client{}
	defer c.AssertExpectations(t)

	sub := domain.Submission{Key: "key-1", Operation: domain.OperationPick, SourceID: "pl-1"}
	run := newWorkflowRun(domain.Result{Reference: "PK-1"}, nil)
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == "scanner-submission-key-1" && opts.TaskQueue == "scanner-queue"
		}),
		"ScannerSubmissionWorkflow",
		mock.MatchedBy(func(in workflows.SubmissionInput) bool {
			return in.Submission == sub && in.SessionID == "sess-1"
		}),
	).Return(run, nil)

	ctx := logging.ContextWithSessionID(context.Background(), "sess-1")
	result, err := NewTemporalSubmitter(c, nil, nil).SubmitOperation(ctx, sub)

	require.NoError(t, err)
	assert.Equal(t, "PK-1", result.Reference)
}

func TestTemporalSubmitter_AttachesToExistingExecution(t *testing.T) {
	c := &mocks.Client{}
	defer c.AssertExpectations(t)

	run := newWorkflowRun(domain.Result{Reference: "PK-1"}, nil)
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", ""))
	c.On("GetWorkflow", mock.Anything, "scanner-submission-key-1", "").Return(run)

	result, err := NewTemporalSubmitter(c, nil, nil).SubmitOperation(context.Background(), domain.Submission{Key: "key-1"})

	require.NoError(t, err)
	assert.Equal(t, "PK-1", result.Reference)
}

func TestTemporalSubmitter_MapsFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.ErrorKind
		code string
	}{
		{
			name: "rejection",
			err:  sdktemporal.NewNonRetryableApplicationError("location inactive", "inactive", nil, "LOCATION_INACTIVE"),
			kind: domain.ErrorKindInactive,
			code: "LOCATION_INACTIVE",
		},
		{
			name: "retries exhausted",
			err:  sdktemporal.NewApplicationError("upstream unavailable", "transport"),
			kind: domain.ErrorKindTransport,
		},
		{
			name: "unknown type",
			err:  sdktemporal.NewApplicationError("boom", "PanicError"),
			kind: domain.ErrorKindTransport,
		},
		{
			name: "not an application error",
			err:  errors.New("workflow timed out"),
			kind: domain.ErrorKindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mocks.Client{}
			c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(newWorkflowRun(domain.Result{}, tt.err), nil)

			_, err := NewTemporalSubmitter(c, nil, nil).SubmitOperation(context.Background(), domain.Submission{Key: "key-1"})

			failure := domain.FailureFromError(err)
			assert.Equal(t, tt.kind, failure.Kind)
			assert.Equal(t, tt.code, failure.Code)
		})
	}
}

func TestTemporalSubmitter_StartFailureIsTransport(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable"))

	_, err := NewTemporalSubmitter(c, nil, nil).SubmitOperation(context.Background(), domain.Submission{Key: "key-1"})

	assert.Equal(t, domain.ErrorKindTransport, domain.FailureFromError(err).Kind)
}

type stubSubmitter struct {
	subs []domain.Submission
}

func (s *stubSubmitter) SubmitOperation(_ context.Context, sub domain.Submission) (domain.Result, error) {
	s.subs = append(s.subs, sub)
	return domain.Result{Reference: "ROUTED"}, nil
}

func TestWithSubmitter(t *testing.T) {
	submitter := &stubSubmitter{}
	gw := WithSubmitter(newTestGateway("http://unused.invalid"), submitter)

	result, err := gw.SubmitOperation(context.Background(), domain.Submission{Key: "key-1"})

	require.NoError(t, err)
	assert.Equal(t, "ROUTED", result.Reference)
	assert.Len(t, submitter.subs, 1)
}
