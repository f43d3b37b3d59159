package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/versehub/community-api/internal/api"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/repository"
	"github.com/versehub/community-api/internal/service"
	"github.com/versehub/community-api/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New()
	log.Info().Msg("Starting community API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	repos := repository.New(db, repository.Options{
		RoleCacheSize: cfg.RoleCache.Size,
		RoleCacheTTL:  cfg.RoleCache.TTL,
	})

	// Metrics registry with process and Go runtime collectors
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize services
	services := service.NewServices(repos, cfg, m, log)

	// Start directory refresher
	ctx, stopRefresher := context.WithCancel(context.Background())
	defer stopRefresher()

	if cfg.Directory.RefreshOnStart {
		if n, err := services.Refresher.RefreshNow(ctx); err != nil {
			log.Error().Err(err).Msg("Initial directory rebuild failed")
		} else {
			log.Info().Int("entries", n).Msg("Initial directory rebuild completed")
		}
	}
	go services.Refresher.Start(ctx)
	log.Info().Msg("Directory refresher started")

	// Initialize router
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	router := api.NewRouter(services, cfg, verifier, m, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the refresher after in-flight requests have finished
	services.Refresher.Stop()

	log.Info().Msg("Server exited gracefully")
}
