package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mwestergaard/hearth/internal/background"
	"github.com/mwestergaard/hearth/internal/config"
	"github.com/mwestergaard/hearth/internal/handlers"
	middlewareCustom "github.com/mwestergaard/hearth/internal/middleware"
	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/repositories"
	"github.com/mwestergaard/hearth/internal/routes"
	"github.com/mwestergaard/hearth/internal/services"
	"github.com/mwestergaard/hearth/internal/storage"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
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

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize the profile store
	profileRepo, err := repositories.NewProfileRepository(cfg.Storage.DataDir, logger)
	if err != nil {
		logger.Error("failed to open profile store", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize the session manager. An undecryptable store is fatal: the
	// process must not serve with state it cannot tell apart from tampering.
	sessionStore := storage.NewSessionStore(cfg.Storage.DataDir, cfg.Storage.SessionPassphrase, logger)
	sessionService, err := services.NewSessionService(sessionStore, profileRepo, services.SessionConfig{
		UserTTL:  cfg.Auth.SessionTTL,
		AdminTTL: cfg.Auth.AdminSessionTTL,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize session manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Audit log
	auditService := services.NewAuditService(cfg.Storage.DataDir, services.AuditConfig{
		MaxSizeBytes: cfg.Audit.MaxSizeBytes,
		Retention:    cfg.Audit.Retention,
	}, logger)

	// Rate limiters: one for credential guessing, one for admin traffic
	loginLimiter := services.NewRateLimitService(services.RateLimitConfig{
		MaxAttempts:   cfg.Auth.LoginMaxAttempts,
		Window:        cfg.Auth.LoginWindow,
		BlockDuration: cfg.Auth.LoginBlockDuration,
	}, logger)
	adminLimiter := services.NewRateLimitService(services.RateLimitConfig{
		MaxAttempts:   cfg.Auth.AdminMaxAttempts,
		Window:        cfg.Auth.AdminWindow,
		BlockDuration: cfg.Auth.AdminBlockDuration,
	}, logger)

	policy := pkgauth.PasswordPolicy{
		MinLength:    cfg.Auth.PasswordMinLength,
		RequireUpper: cfg.Auth.PasswordRequireUpper,
		RequireLower: cfg.Auth.PasswordRequireLower,
		RequireDigit: cfg.Auth.PasswordRequireDigit,
	}

	// Optional out-of-band credential delivery
	var mailer services.Mailer
	if cfg.Email.Enabled {
		sesMailer, err := services.NewAWSSESMailer(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize mailer", slog.Any("error", err))
			os.Exit(1)
		}
		mailer = sesMailer
	}

	// Initialize services
	authService := services.NewAuthService(profileRepo, sessionService, loginLimiter, auditService, policy, cfg.Auth.PasswordMaxAgeDays, logger)
	profileService := services.NewProfileService(profileRepo, sessionService, auditService, mailer, logger)

	// Bootstrap the first admin profile if configured
	if err := ensureAdminProfile(profileRepo, logger); err != nil {
		logger.Error("failed to ensure admin profile", slog.Any("error", err))
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, sessionService, auditService, ipConfig)
	profileHandler := handlers.NewProfileHandler(profileService)
	auditHandler := handlers.NewAuditHandler(auditService)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, profileHandler, auditHandler, sessionService, adminLimiter, ipConfig)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start session sweeper
	sweeper := background.NewSweeper(sessionService, logger, cfg.Auth.SweepInterval)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweeper.Start(sweepCtx)

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

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Flush any coalesced profile writes before exit
	if err := profileRepo.Flush(); err != nil {
		logger.Error("failed to flush profile store", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminProfile creates the administrator account if ADMIN_USER and
// ADMIN_PASSWORD are set and no such profile exists yet
func ensureAdminProfile(repo *repositories.ProfileRepository, logger *slog.Logger) error {
	adminUser := os.Getenv("ADMIN_USER")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUser == "" || adminPassword == "" {
		logger.Info("no ADMIN_USER or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	if _, err := repo.GetByName(adminUser); err == nil {
		logger.Info("admin profile already exists")
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check for admin profile: %w", err)
	}

	salt, err := pkgauth.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	now := time.Now()
	admin := &models.Profile{
		ID:                uuid.New().String(),
		Name:              adminUser,
		Salt:              salt,
		PasswordHash:      pkgauth.HashSecret(adminPassword, salt),
		Role:              models.RoleAdmin,
		IsAdmin:           true,
		CreatedAt:         now,
		PasswordChangedAt: now,
	}
	if err := repo.Create(admin); err != nil {
		return fmt.Errorf("failed to create admin profile: %w", err)
	}

	logger.Info("admin profile created")
	return nil
}
