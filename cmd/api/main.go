package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/scanner-service/internal/api/handlers"
	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/internal/config"
	"github.com/wms-platform/scanner-service/internal/infrastructure/feedback"
	"github.com/wms-platform/scanner-service/internal/infrastructure/gateway"
	scannerKafka "github.com/wms-platform/scanner-service/internal/infrastructure/kafka"
	mongoRepo "github.com/wms-platform/scanner-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/scanner-service/pkg/cloudevents"
	"github.com/wms-platform/scanner-service/pkg/kafka"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
	"github.com/wms-platform/scanner-service/pkg/middleware"
	"github.com/wms-platform/scanner-service/pkg/mongodb"
	"github.com/wms-platform/scanner-service/pkg/resilience"
	"github.com/wms-platform/scanner-service/pkg/temporal"
	"github.com/wms-platform/scanner-service/pkg/tracing"
)

const serviceName = "scanner-service"

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

	logger.Info("Starting scanner-service API", "submitMode", cfg.Session.SubmitMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = cfg.Tracing.Endpoint
	tracingConfig.Environment = cfg.Environment
	tracingConfig.Enabled = cfg.Tracing.Enabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint, "enabled", tracingConfig.Enabled)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	deps := application.Dependencies{Metrics: m, Logger: logger}
	readiness := map[string]func(ctx context.Context) error{}

	// Session snapshots
	if cfg.MongoDB.URI != "" {
		mongoConfig := mongodb.DefaultConfig()
		mongoConfig.URI = cfg.MongoDB.URI
		mongoConfig.Database = cfg.MongoDB.Database

		mongoClient, err := mongodb.NewClient(ctx, mongoConfig)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to MongoDB")
			os.Exit(1)
		}
		defer mongoClient.Close(context.Background())

		sessionRepo := mongoRepo.NewSessionRepository(mongoClient.Database(), m, cfg.Session.Retention)
		if err := sessionRepo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Error("Failed to create session indexes")
			os.Exit(1)
		}
		deps.Store = sessionRepo
		readiness["mongodb"] = mongoClient.HealthCheck
		logger.Info("Connected to MongoDB", "database", mongoConfig.Database)
	}

	// Operation events
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = cfg.Kafka.Brokers
		kafkaConfig.ClientID = serviceName

		producer := kafka.NewProducer(kafkaConfig)
		defer producer.Close()
		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("kafka"), logger.Logger)
		instrumented := kafka.NewInstrumentedProducer(producer, breaker, m, logger)
		deps.Publisher = scannerKafka.NewEventPublisher(instrumented, cloudevents.NewEventFactory("/"+serviceName))
		logger.Info("Kafka producer initialized", "brokers", kafkaConfig.Brokers)
	}

	// Remote gateway
	var gw application.Gateway = gateway.NewHTTPGateway(&gateway.Config{
		InventoryServiceURL: cfg.Services.Inventory,
		FacilityServiceURL:  cfg.Services.Facility,
		StowServiceURL:      cfg.Services.Stow,
		SubmitServiceURL:    cfg.Services.Submit,
		Timeout:             cfg.Services.Timeout,
	}, nil, m, logger)

	if cfg.Session.SubmitMode == config.SubmitModeTemporal {
		temporalConfig := temporal.DefaultConfig()
		temporalConfig.HostPort = cfg.Temporal.HostPort
		temporalConfig.Namespace = cfg.Temporal.Namespace

		temporalClient, err := temporal.NewClient(ctx, temporalConfig)
		if err != nil {
			logger.WithError(err).Error("Failed to create Temporal client")
			os.Exit(1)
		}
		defer temporalClient.Close()
		gw = gateway.WithSubmitter(gw, gateway.NewTemporalSubmitter(temporalClient.Client(), m, logger))
		logger.Info("Connected to Temporal", "hostPort", temporalConfig.HostPort, "namespace", temporalConfig.Namespace)
	}
	deps.Gateway = gw

	// Sessions
	hub := feedback.NewHub()
	options := application.DefaultOptions()
	options.DebounceWindow = cfg.Session.DebounceWindow
	manager := application.NewSessionManager(application.ManagerConfig{
		Options: options,
		IdleTTL: cfg.Session.IdleTTL,
	}, deps, feedback.NewFactory(logger, m, hub))
	defer manager.Close()

	// Setup Gin router with middleware
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middlewareConfig.Metrics = m
	middleware.Setup(router, middlewareConfig)
	if err := handlers.RegisterValidators(); err != nil {
		logger.WithError(err).Error("Failed to register validators")
		os.Exit(1)
	}

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readiness))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	api := router.Group("/api/v1")
	handlers.NewSessionHandler(manager, logger).RegisterRoutes(api)
	handlers.NewStreamHandler(manager, hub, logger).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Services.Timeout + 20*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return manager.RunSweeper(gctx, cfg.Session.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
	}
	logger.Info("Server stopped")
}
