package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wms-platform/returns-service/internal/activities"
	"github.com/wms-platform/returns-service/internal/application"
	"github.com/wms-platform/returns-service/internal/config"
	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/internal/infrastructure/clients"
	mongoRepo "github.com/wms-platform/returns-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/returns-service/internal/infrastructure/policyconfig"
	"github.com/wms-platform/returns-service/internal/workflows"
	"github.com/wms-platform/returns-service/pkg/cloudevents"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/mongodb"
	"github.com/wms-platform/returns-service/pkg/resilience"
	"github.com/wms-platform/returns-service/pkg/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.DefaultConfig(config.ServiceName)).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(config.ServiceName + "-worker")
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting returns worker")
	ctx := context.Background()

	temporalClient, err := temporal.NewClient(ctx, cfg.Temporal())
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", cfg.TemporalHost, "namespace", cfg.TemporalNamespace)

	// Expiry cancels returns through the same service and outbox as the API
	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB())
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)

	db := mongoClient.Database()
	instr := mongodb.NewInstrumentation(cfg.MongoDatabase, nil, logger)
	returnRepo := mongoRepo.NewReturnRepository(db, cloudevents.NewEventFactory("/wms/"+config.ServiceName), instr)
	policyRepo := mongoRepo.NewPolicyRepository(db, instr)
	orderClient := clients.NewOrderServiceClient(cfg.OrderServiceURL,
		resilience.NewCircuitBreaker(cfg.OrderServiceBreaker(), logger.Logger, nil))

	var defaultPolicy *domain.PolicyConfig
	if cfg.DefaultPolicyFile != "" {
		decoder, err := policyconfig.NewDecoder()
		if err == nil {
			defaultPolicy, err = decoder.LoadFile(cfg.DefaultPolicyFile)
		}
		if err != nil {
			logger.WithError(err).Error("Failed to load default policy")
			os.Exit(1)
		}
	}

	returnService := application.NewReturnService(returnRepo, orderClient, policyRepo, logger,
		application.WithDefaultPolicy(defaultPolicy),
		application.WithAuthorizationWindow(cfg.AuthorizationWindow),
	)
	authorizationActivities := activities.NewAuthorizationActivities(returnService, logger.Logger)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(cfg.TemporalTaskQueue))

	w.RegisterWorkflow(workflows.ReturnAuthorizationWorkflow)
	logger.Info("Registered workflows", "workflows", []string{temporal.WorkflowNames.ReturnAuthorization})

	w.RegisterActivity(authorizationActivities.ExpireAuthorization)
	logger.Info("Registered activities", "activities", []string{workflows.ActivityExpireAuthorization})

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", cfg.TemporalTaskQueue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}
