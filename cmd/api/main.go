package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/simplyinspect/permwatch/internal/api/handlers"
	"github.com/simplyinspect/permwatch/internal/api/router"
	"github.com/simplyinspect/permwatch/internal/config"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/repository/postgres"
	"github.com/simplyinspect/permwatch/internal/services"
	"github.com/simplyinspect/permwatch/internal/transport"
	"github.com/simplyinspect/permwatch/internal/worker"
	"github.com/simplyinspect/permwatch/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Infof("Starting permwatch API server (env=%s)", cfg.Server.Environment)

	db, err := postgres.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrationFS, err := migrations.ForDriver(cfg.Database.Driver)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}
	if err := postgres.RunMigrations(db, migrationFS); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	baselineRepo := postgres.NewBaselineRepository(db)
	changeRepo := postgres.NewChangeRepository(db)
	cacheRepo := postgres.NewCacheRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	source := postgres.NewPermissionSource(db)

	// Services
	sender := transport.NewSMTPSender(cfg.SMTP)
	baselineService := services.NewBaselineService(baselineRepo, source, log)
	changeService := services.NewChangeService(changeRepo, cacheRepo, log)
	dispatcher := services.NewDispatcherService(notificationRepo, changeRepo, sender, cfg.Notification, log)
	detectionService := services.NewDetectionService(
		baselineRepo,
		changeRepo,
		cacheRepo,
		source,
		dispatcher,
		cfg.Detection.CacheMaxAge,
		log,
	)

	// Background jobs
	scheduler := worker.NewScheduler(detectionService, dispatcher, *cfg, log)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// HTTP layer
	h := &router.Handlers{
		Health:       handlers.NewHealthHandler(db, log),
		Baseline:     handlers.NewBaselineHandler(baselineService, log),
		Change:       handlers.NewChangeHandler(changeService, log),
		Detection:    handlers.NewDetectionHandler(detectionService, log),
		Notification: handlers.NewNotificationHandler(dispatcher, log),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}

	log.Info("Server stopped")
}
