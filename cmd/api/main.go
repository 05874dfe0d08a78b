package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/returns-service/internal/api/handlers"
	"github.com/wms-platform/returns-service/internal/application"
	"github.com/wms-platform/returns-service/internal/config"
	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/internal/infrastructure/clients"
	mongoRepo "github.com/wms-platform/returns-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/returns-service/internal/infrastructure/policyconfig"
	temporalInfra "github.com/wms-platform/returns-service/internal/infrastructure/temporal"
	"github.com/wms-platform/returns-service/pkg/cloudevents"
	"github.com/wms-platform/returns-service/pkg/kafka"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/metrics"
	"github.com/wms-platform/returns-service/pkg/middleware"
	"github.com/wms-platform/returns-service/pkg/mongodb"
	"github.com/wms-platform/returns-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/returns-service/pkg/outbox/mongodb"
	"github.com/wms-platform/returns-service/pkg/resilience"
	"github.com/wms-platform/returns-service/pkg/temporal"
	"github.com/wms-platform/returns-service/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.DefaultConfig(config.ServiceName)).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(config.ServiceName)
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting returns-service API")
	ctx := context.Background()

	// Tracing is optional; the service runs without it
	tracerProvider, err := tracing.Initialize(ctx, cfg.Tracing())
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", cfg.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(config.ServiceName))

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB())
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", cfg.MongoDatabase)

	db := mongoClient.Database()
	instr := mongodb.NewInstrumentation(cfg.MongoDatabase, m, logger)
	eventFactory := cloudevents.NewEventFactory("/wms/" + config.ServiceName)
	returnRepo := mongoRepo.NewReturnRepository(db, eventFactory, instr)
	policyRepo := mongoRepo.NewPolicyRepository(db, instr)

	producer := kafka.NewInstrumentedProducer(kafka.NewProducer(cfg.Kafka()), logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", cfg.KafkaBrokers)

	outboxPublisher := outbox.NewPublisher(
		outboxMongo.NewOutboxRepository(db),
		producer,
		logger,
		m,
		&outbox.PublisherConfig{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
		},
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	breaker := resilience.NewCircuitBreaker(cfg.OrderServiceBreaker(), logger.Logger, m.SetCircuitBreakerState)
	orderClient := clients.NewOrderServiceClient(cfg.OrderServiceURL, breaker)

	decoder, err := policyconfig.NewDecoder()
	if err != nil {
		logger.WithError(err).Error("Failed to compile policy schema")
		os.Exit(1)
	}
	var defaultPolicy *domain.PolicyConfig
	if cfg.DefaultPolicyFile != "" {
		defaultPolicy, err = decoder.LoadFile(cfg.DefaultPolicyFile)
		if err != nil {
			logger.WithError(err).Error("Failed to load default policy")
			os.Exit(1)
		}
		logger.Info("Default return policy loaded", "file", cfg.DefaultPolicyFile, "name", defaultPolicy.Name)
	}

	var scheduler application.LifecycleScheduler = application.NopScheduler{}
	if cfg.TemporalEnabled {
		temporalClient, err := temporal.NewClient(ctx, cfg.Temporal())
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Temporal")
			os.Exit(1)
		}
		defer temporalClient.Close()
		scheduler = temporalInfra.NewAuthorizationScheduler(temporalClient.Client(), cfg.TemporalTaskQueue, logger)
		logger.Info("Connected to Temporal", "namespace", cfg.TemporalNamespace)
	}

	returnService := application.NewReturnService(
		returnRepo,
		orderClient,
		policyRepo,
		logger,
		application.WithDefaultPolicy(defaultPolicy),
		application.WithScheduler(scheduler),
		application.WithMetrics(m),
		application.WithAuthorizationWindow(cfg.AuthorizationWindow),
	)
	policyService := application.NewPolicyService(policyRepo, returnRepo, orderClient, decoder, defaultPolicy, m, logger)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(config.ServiceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(config.ServiceName)))

	router.GET("/health", middleware.HealthCheck(config.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(config.ServiceName, mongoClient.HealthCheck))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	handlers.RegisterRoutes(router,
		handlers.NewReturnHandler(returnService, logger),
		handlers.NewPolicyHandler(policyService, logger),
	)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
