package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/diagnoml/platform/pkg/common/config"
	"github.com/diagnoml/platform/pkg/common/database"
	"github.com/diagnoml/platform/pkg/common/kafka"
	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/retry"
	"github.com/diagnoml/platform/pkg/dataset"
	"github.com/diagnoml/platform/pkg/drift"
	"github.com/diagnoml/platform/pkg/edc"
	"github.com/diagnoml/platform/pkg/feedback"
	"github.com/diagnoml/platform/pkg/intake"
	"github.com/diagnoml/platform/pkg/monitoring"
	"github.com/diagnoml/platform/pkg/observability/metrics"
	"github.com/diagnoml/platform/pkg/orchestrator"
	"github.com/diagnoml/platform/pkg/pseudonym"
	"github.com/diagnoml/platform/pkg/registry"
	"github.com/diagnoml/platform/pkg/serving"
	"github.com/diagnoml/platform/pkg/training"
	"github.com/diagnoml/platform/pkg/warehouse"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}

	// Persistence
	db, err := database.NewPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer database.ClosePostgres(db)

	vaultStore := pseudonym.NewGormStore(db)
	recordStore := warehouse.NewGormStore(db)
	registryStore := registry.NewGormStore(db)
	feedbackStore := feedback.NewGormStore(db)
	predictionStore := serving.NewGormPredictionStore(db)

	for _, m := range []interface{ AutoMigrate() error }{
		vaultStore, recordStore, registryStore, feedbackStore, predictionStore,
	} {
		if err := m.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Database migration failed")
		}
	}

	// Feature cache: Redis is an acceleration, not a dependency. Without it
	// the warehouse serves reads directly.
	var recordSource serving.RecordSource = recordStore
	var featureCache intake.Cache
	if redisClient, err := database.NewRedis(cfg); err != nil {
		logger.Log.WithError(err).Warn("Redis unavailable, serving reads from Postgres")
	} else {
		cache := warehouse.NewFeatureCache(redisClient, recordStore, cfg.FeatureCacheTTL)
		recordSource = cache
		featureCache = cache
	}

	// Monitoring events
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaMonitoringTopic)
	defer producer.Close()
	emitter := monitoring.NewKafkaEmitter(producer, "diagnoml-service")

	ioRetry := retry.Policy{MaxAttempts: 3, Backoff: 200 * time.Millisecond}

	// Core services
	pseudonyms := pseudonym.NewService(cfg.Study.PseudonymSalt, vaultStore)
	transformer := dataset.NewTransformer()
	intakeService := intake.NewService(pseudonyms, transformer, recordStore, featureCache, emitter, ioRetry)
	predictor := serving.NewPredictor(registryStore, recordSource, predictionStore)
	feedbackService := feedback.NewService(feedbackStore, predictionStore)
	trainer := training.NewTrainer(registryStore, cfg.Study.MinExamplesPerClass)
	detector := drift.NewDetector(cfg.Study.DriftThreshold, cfg.Study.MinWindowSize)

	loop := orchestrator.New(cfg.Study, registryStore, recordStore, feedbackService, trainer, detector, emitter, ioRetry)

	// Router
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	intake.NewHTTPHandler(intakeService, cfg.MaxRequestBody).Register(router)
	serving.NewHTTPHandler(predictor).Register(router)
	feedback.NewHTTPHandler(feedbackService).Register(router)
	registry.NewHTTPHandler(registryStore).Register(router)
	orchestrator.NewHTTPHandler(loop).Register(router)

	// Background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := orchestrator.NewScheduler(loop, cfg.Study.EvaluationInterval)
	go scheduler.Run(ctx)

	if cfg.EDCBaseURL != "" {
		poller := edc.NewPoller(edc.NewClient(cfg), intakeService, cfg.EDCPollInterval, ioRetry)
		go poller.Run(ctx)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":      cfg.ServerHost,
			"port":      cfg.ServerPort,
			"study_oid": cfg.Study.OID,
		}).Info("DiagnoML service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down DiagnoML service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("DiagnoML service stopped")
}
