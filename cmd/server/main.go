package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/api"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/config"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/db"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/events"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/fetch"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/services"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/store"
	"github.com/MTIR-FRANCE-SERVICE/Signature/pkg/logger"
	"github.com/MTIR-FRANCE-SERVICE/Signature/pkg/metrics"
	"go.uber.org/zap"
)

func main() {
	var cfg *config.Configuration
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.InitializeDefaultConfig()
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	if err := config.Validate(cfg); err != nil {
		zapLogger.Fatal("Invalid configuration", zap.Error(err))
	}
	config.LogConfig(zapLogger)

	metricsCollector := metrics.NewMetricsCollector()

	var sessionStore store.Store
	if cfg.Database.Enabled {
		database, err := db.Initialize(cfg)
		if err != nil {
			zapLogger.Fatal("Failed to initialize database", zap.Error(err))
		}
		sessionStore = store.NewGormStore(database, zapLogger)
		defer func() {
			if sqlDB, err := database.DB(); err == nil {
				sqlDB.Close()
			}
		}()
	} else {
		fileStore, err := store.NewFileStore(cfg.Storage.DataDir, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to initialize session store", zap.Error(err))
		}
		sessionStore = fileStore
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to event broker", zap.Error(err))
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	fetcher := fetch.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.Retry, zapLogger)

	sessionService := services.NewSessionService(
		services.SessionServiceConfig{
			TokenSecret:        cfg.Security.TokenSecret,
			DataDir:            cfg.Storage.DataDir,
			DefaultDocumentURL: cfg.Fetch.DefaultDocumentURL,
			PublicURL:          cfg.Server.PublicURL,
		},
		sessionStore,
		fetcher,
		services.CopyFinalizer{},
		publisher,
		zapLogger,
		metricsCollector,
	)

	router := api.NewRouter(zapLogger, metricsCollector, sessionService, cfg.Security.WebhookSecret)
	router.SetupRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	go func() {
		if err := router.Run(":" + port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")
	zapLogger.Info("Server gracefully stopped")
}
