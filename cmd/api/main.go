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

	"github.com/BradenHooton/libgate/internal/auth"
	"github.com/BradenHooton/libgate/internal/background"
	"github.com/BradenHooton/libgate/internal/config"
	"github.com/BradenHooton/libgate/internal/database"
	"github.com/BradenHooton/libgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/libgate/internal/middleware"
	"github.com/BradenHooton/libgate/internal/models"
	"github.com/BradenHooton/libgate/internal/repositories"
	"github.com/BradenHooton/libgate/internal/routes"
	"github.com/BradenHooton/libgate/internal/services"
	"github.com/BradenHooton/libgate/migrations"
	pkgauth "github.com/BradenHooton/libgate/pkg/auth"
	pkghttp "github.com/BradenHooton/libgate/pkg/http"
	pkglogger "github.com/BradenHooton/libgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := pkglogger.New(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = database.Migrate(migrateCtx, db.Pool, migrations.FS, logger)
	migrateCancel()
	if err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	challengeRepo := repositories.NewTwoFactorChallengeRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	codeManager, err := auth.NewCodeManager(cfg.Auth.CodeKey, cfg.Email.FromName, cfg.Auth.CodeTTL)
	if err != nil {
		logger.Error("failed to initialize code manager", slog.Any("error", err))
		os.Exit(1)
	}

	var emailService services.EmailService = services.NewLogEmailService(logger)
	if cfg.Email.Enabled {
		emailService, err = services.NewAWSSESEmailService(context.Background(), cfg.Email.Region, cfg.Email.FromName, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("email disabled, codes and reset links are only logged at debug level")
	}

	auditLogger := pkglogger.NewAuditLogger(logger)
	authService := services.NewAuthService(
		services.AuthRepositories{
			Users:       userRepo,
			Revocations: revokeRepo,
			Challenges:  challengeRepo,
			Resets:      resetRepo,
		},
		tokenManager,
		codeManager,
		emailService,
		services.AuthSettings{
			CodeTTL:         cfg.Auth.CodeTTL,
			MaxCodeAttempts: cfg.Auth.MaxCodeAttempts,
			ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
			ResetURL:        cfg.Auth.ResetURL,
			BcryptCost:      cfg.Auth.BcryptCost,
		},
		logger,
		auditLogger,
	)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, cfg.Auth.BcryptCost, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, routes.Dependencies{
			AuthHandler:  authHandler,
			Health:       db,
			TokenManager: tokenManager,
			Revocations:  revokeRepo,
			RateLimit: middlewareCustom.RateLimitConfig{
				Requests: cfg.Server.AuthRateLimit,
				Window:   cfg.Server.AuthRateWindow,
				IPConfig: ipConfig,
			},
			Logger: logger,
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval,
		background.Task{Name: "revoked_tokens", Run: func(ctx context.Context, _ time.Time) (int64, error) {
			return revokeRepo.CleanupExpiredTokens(ctx)
		}},
		background.Task{Name: "two_factor_challenges", Run: func(ctx context.Context, now time.Time) (int64, error) {
			return challengeRepo.CleanupExpired(ctx, now.Add(-24*time.Hour))
		}},
		background.Task{Name: "password_reset_tokens", Run: func(ctx context.Context, now time.Time) (int64, error) {
			return resetRepo.CleanupExpired(ctx, now.Add(-24*time.Hour))
		}},
	)

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, cost int, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPasswordWithCost(adminPassword, cost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = userRepo.Create(ctx, &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
