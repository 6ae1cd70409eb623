package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/api"
	"github.com/Kamar-Folarin/repo-ingest/internal/audit"
	"github.com/Kamar-Folarin/repo-ingest/internal/authz"
	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/db"
	"github.com/Kamar-Folarin/repo-ingest/internal/executor"
	"github.com/Kamar-Folarin/repo-ingest/internal/gateway"
	"github.com/Kamar-Folarin/repo-ingest/internal/github"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
	"github.com/Kamar-Folarin/repo-ingest/internal/scheduler"
	"github.com/Kamar-Folarin/repo-ingest/internal/status"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	store, closeStore := openStore(cfg, logger)
	defer closeStore()

	recorder := audit.NewRecorder(store, logger, 256)
	authorizer := authz.NewStaticAuthorizer(cfg.Authz)
	projection := status.NewProjection(store, authorizer, logger, cfg.PollInterval.Duration())

	objects, err := executor.NewMinioClient(&cfg.ObjectStore)
	if err != nil {
		logger.Fatalf("Failed to initialize object store client: %v", err)
	}
	workerClient := &http.Client{Timeout: 30 * time.Second}
	executors := executor.NewExecutors(cfg, objects, workerClient, logger)

	runner := pipeline.NewRunner(store, projection, executors, recorder, &cfg.Pipeline, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Runs left active by a previous process can never finish
	if n, err := runner.RecoverInterrupted(ctx); err != nil {
		logger.WithError(err).Error("Failed to recover interrupted runs")
	} else if n > 0 {
		logger.Warnf("Marked %d interrupted runs as failed", n)
	}

	syncScheduler := scheduler.NewScheduler(store, runner, &cfg.Sync, logger)
	syncScheduler.Start(ctx)

	githubClient := github.NewClient(cfg.GitHub, logger)
	gw := gateway.NewGateway(store, runner, projection, authorizer, recorder, githubClient, &cfg.Sync, logger)

	router := api.SetupRouter(api.NewHandler(gw, logger), logger)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(router)

	// Long-polls hold a request for up to api.MaxWait
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: api.MaxWait + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	cancel()
	syncScheduler.Stop()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Pipeline shutdown failed: %v", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Errorf("Audit recorder shutdown failed: %v", err)
	}
	logger.Info("Server exited properly")
}

func openStore(cfg *config.Config, logger *logrus.Logger) (db.Store, func()) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage; state is lost on restart")
		return db.NewMemoryStore(), func() {}
	}

	pgStore, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return pgStore.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	return pgStore, func() {
		if err := pgStore.Close(); err != nil {
			logger.Errorf("Failed to close database: %v", err)
		}
	}
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
