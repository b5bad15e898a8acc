package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stagehub/pinguard/internal/auth"
	"github.com/stagehub/pinguard/internal/background"
	"github.com/stagehub/pinguard/internal/config"
	"github.com/stagehub/pinguard/internal/database"
	"github.com/stagehub/pinguard/internal/handlers"
	middlewareCustom "github.com/stagehub/pinguard/internal/middleware"
	"github.com/stagehub/pinguard/internal/models"
	"github.com/stagehub/pinguard/internal/repositories"
	"github.com/stagehub/pinguard/internal/routes"
	"github.com/stagehub/pinguard/internal/services"
	pkghttp "github.com/stagehub/pinguard/pkg/http"
	pkglogger "github.com/stagehub/pinguard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.Int("max_failures", cfg.Security.MaxFailures),
		slog.Duration("lock_duration", cfg.Security.LockDuration),
		slog.Bool("fail_open", cfg.Security.FailOpen))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(migrateCtx); err != nil {
			cancel()
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		cancel()
	}

	// Initialize repositories
	lockoutRepo := repositories.NewLockoutStateRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	adminActionRepo := repositories.NewAdminActionRepository(db)

	// Lockout alerting (optional)
	var alerter services.LockAlerter
	if cfg.Alerts.Enabled {
		sesAlerter, err := services.NewAWSSESAlertService(
			cfg.Alerts.AWSRegion,
			cfg.Alerts.FromAddress,
			cfg.Alerts.ToAddress,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = sesAlerter
	}

	// Security gateway
	auditLogger := pkglogger.NewAuditLogger(logger)
	policy := models.LockoutPolicy{
		MaxFailures:  cfg.Security.MaxFailures,
		LockDuration: cfg.Security.LockDuration,
	}
	securityService := services.NewSecurityService(
		lockoutRepo,
		attemptRepo,
		adminActionRepo,
		alerter,
		policy,
		cfg.Security.FailOpen,
		logger,
		auditLogger,
	)

	// Service token verification for admin endpoints
	verifier := auth.NewServiceTokenVerifier(cfg.Security.ServiceTokenSecret)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	securityHandler := handlers.NewSecurityHandler(securityService, ipConfig)

	// Attempt record retention
	var retentionManager *background.RetentionManager
	if cfg.Security.AttemptRetention > 0 {
		retentionManager = background.NewRetentionManager(
			attemptRepo,
			logger,
			cfg.Security.AttemptRetention,
			cfg.Security.RetentionInterval,
		)
	}

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, securityHandler, verifier)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Resource not found")
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start retention task
	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	defer retentionCancel()

	if retentionManager != nil {
		go retentionManager.Start(retentionCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	retentionCancel()
	if retentionManager != nil {
		retentionManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
