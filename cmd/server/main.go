// Package main is the entry point for the progression engine server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roamly/progression-engine/internal/api/rewards"
	"github.com/roamly/progression-engine/internal/cache"
	"github.com/roamly/progression-engine/internal/catalog"
	"github.com/roamly/progression-engine/internal/config"
	"github.com/roamly/progression-engine/internal/notify"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/badges"
	"github.com/roamly/progression-engine/internal/service/content"
	"github.com/roamly/progression-engine/internal/service/progression"
	"github.com/roamly/progression-engine/internal/service/scheduler"
	"github.com/roamly/progression-engine/internal/service/tasks"
	"github.com/roamly/progression-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting progression engine")

	// Database
	db, err := repository.NewDB(&cfg.Database.Postgres, log.Component("database"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	if err := db.Migrate(log.Component("migrations")); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis
	redisCache, err := cache.New(&cfg.Database.Redis, log.Component("cache"))
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}()

	// Repositories
	progressionRepo := repository.NewProgressionRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	userRepo := repository.NewUserRepository(db)
	contentRepo := repository.NewContentRepository(db)

	// Catalog seed
	if cfg.Rewards.CatalogPath != "" {
		seeder := catalog.NewSeeder(taskRepo, badgeRepo, log.Component("catalog"))
		if err := seeder.Load(cfg.Rewards.CatalogPath); err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
	}

	// Services
	notifier := notify.NewClient(&cfg.Notify, log.Component("notify"))
	badgeService := badges.NewService(badgeRepo, progressionRepo, log.Component("badges"))
	taskService := tasks.NewService(taskRepo, progressionRepo, userRepo, badgeService, log.Component("tasks"))
	progressionService := progression.NewService(
		progressionRepo,
		taskService,
		badgeService,
		badgeRepo,
		userRepo,
		redisCache,
		notifier,
		time.Duration(cfg.Rewards.SnapshotTTL)*time.Second,
		log.Component("progression"),
	)
	contentService := content.NewService(
		contentRepo,
		userRepo,
		progressionService,
		cfg.Rewards.MemoryPoints,
		cfg.Rewards.ReplyPoints,
		log.Component("content"),
	)

	// Scheduler
	sweepScheduler := scheduler.NewService(cfg, userRepo, taskService, badgeService, log.Component("scheduler"))
	if err := sweepScheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sweepScheduler.Stop()

	// HTTP server
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := rewards.NewHandler(progressionService, contentService, log.Component("api"))
	handler.RegisterRoutes(router)

	router.GET("/healthz", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		if err := redisCache.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop HTTP server gracefully")
		return err
	}

	log.Info().Msg("Shutdown completed")
	return nil
}
