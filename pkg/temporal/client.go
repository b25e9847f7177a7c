package temporal

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Config holds Temporal client configuration
type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "scanner-service",
	}
}

// TaskQueues contains the task queues served by scanner workers
var TaskQueues = struct {
	Scanner string
}{
	Scanner: "scanner-queue",
}

// WorkflowNames contains the workflows registered by scanner workers
var WorkflowNames = struct {
	ScannerSubmission string
}{
	ScannerSubmission: "ScannerSubmissionWorkflow",
}

// ActivityNames contains the activities registered by scanner workers
var ActivityNames = struct {
	SubmitScannerOperation string
}{
	SubmitScannerOperation: "SubmitScannerOperation",
}

// Client wraps the Temporal client.
type Client struct {
	client client.Client
}

// NewClient dials the Temporal frontend.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	return &Client{client: c}, nil
}

// Client returns the underlying Temporal client
func (c *Client) Client() client.Client {
	return c.client
}

func (c *Client) Close() {
	c.client.Close()
}

// StartOrAttach starts workflowName under workflowID. When an execution with
// that id is running or has completed, the existing run is returned so
// callers wait on its original result. A failed execution may be started
// again under the same id.
func StartOrAttach(ctx context.Context, c client.Client, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	opts := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}

	run, err := c.ExecuteWorkflow(ctx, opts, workflowName, args...)
	if err == nil {
		return run, nil
	}

	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return c.GetWorkflow(ctx, workflowID, ""), nil
	}
	return nil, err
}

// WorkerOptions contains options for creating a worker
type WorkerOptions struct {
	TaskQueue                    string
	MaxConcurrentActivityPollers int
	MaxConcurrentWorkflowPollers int
	MaxConcurrentActivities      int
	MaxConcurrentWorkflows       int
}

// DefaultWorkerOptions returns default worker options
func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{
		TaskQueue:                    taskQueue,
		MaxConcurrentActivityPollers: 4,
		MaxConcurrentWorkflowPollers: 4,
		MaxConcurrentActivities:      50,
		MaxConcurrentWorkflows:       50,
	}
}

// NewWorker creates a new Temporal worker
func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.client, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     opts.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: opts.MaxConcurrentWorkflows,
		MaxConcurrentActivityTaskPollers:       opts.MaxConcurrentActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       opts.MaxConcurrentWorkflowPollers,
	})
}
