package main

import (
	"context"
	"flag"
	"os"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/scanner-service/internal/activities"
	"github.com/wms-platform/scanner-service/internal/config"
	"github.com/wms-platform/scanner-service/internal/infrastructure/gateway"
	"github.com/wms-platform/scanner-service/internal/workflows"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
	"github.com/wms-platform/scanner-service/pkg/temporal"
)

const serviceName = "scanner-worker"

func main() {
	configPath := flag.String("config", os.Getenv("SCANNER_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.DefaultConfig(serviceName)).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting scanner worker")

	// Initialize Temporal client
	ctx := context.Background()
	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = cfg.Temporal.HostPort
	temporalConfig.Namespace = cfg.Temporal.Namespace
	temporalConfig.Identity = serviceName

	temporalClient, err := temporal.NewClient(ctx, temporalConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", temporalConfig.HostPort, "namespace", temporalConfig.Namespace)

	m := metrics.New(metrics.DefaultConfig(serviceName))

	// The activity posts through the same gateway the API uses for direct
	// submissions, with its own circuit breakers.
	submitter := gateway.NewHTTPGateway(&gateway.Config{
		InventoryServiceURL: cfg.Services.Inventory,
		FacilityServiceURL:  cfg.Services.Facility,
		StowServiceURL:      cfg.Services.Stow,
		SubmitServiceURL:    cfg.Services.Submit,
		Timeout:             cfg.Services.Timeout,
	}, nil, m, logger)
	submissionActivities := activities.NewSubmissionActivities(submitter)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Scanner))

	w.RegisterWorkflowWithOptions(workflows.ScannerSubmissionWorkflow, workflow.RegisterOptions{
		Name: temporal.WorkflowNames.ScannerSubmission,
	})
	w.RegisterActivityWithOptions(submissionActivities.SubmitScannerOperation, activity.RegisterOptions{
		Name: temporal.ActivityNames.SubmitScannerOperation,
	})
	logger.Info("Registered workflows and activities",
		"workflows", []string{temporal.WorkflowNames.ScannerSubmission},
		"activities", []string{temporal.ActivityNames.SubmitScannerOperation},
	)

	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Scanner)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.WithError(err).Error("Worker failed")
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
