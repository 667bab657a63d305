//go:build integration

package integration

import (
	"bytes"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/libgate/internal/auth"
	"github.com/BradenHooton/libgate/internal/database"
	"github.com/BradenHooton/libgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/libgate/internal/middleware"
	"github.com/BradenHooton/libgate/internal/repositories"
	"github.com/BradenHooton/libgate/internal/routes"
	"github.com/BradenHooton/libgate/internal/services"
	pkglogger "github.com/BradenHooton/libgate/pkg/logger"
)

// TestServer wraps httptest.Server with the real router over a real database
// and captured email.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *services.MockEmailService
	Revocations  *repositories.TokenRevocationRepository
}

// URL is the API base the client talks to.
func (ts *TestServer) URL() string {
	return ts.Server.URL + "/api"
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) *TestServer {
	logger := pkglogger.Discard()
	email := &services.MockEmailService{}

	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)

	tokenManager := auth.NewTokenManager("integration-secret-0123456789-abcdefghijklmnop", 15*time.Minute)
	codeManager, err := auth.NewCodeManager(bytes.Repeat([]byte{3}, 32), "LibGateTest", 5*time.Minute)
	if err != nil {
		panic(err)
	}

	authService := services.NewAuthService(
		services.AuthRepositories{
			Users:       userRepo,
			Revocations: revokeRepo,
			Challenges:  repositories.NewTwoFactorChallengeRepository(db),
			Resets:      repositories.NewPasswordResetRepository(db),
		},
		tokenManager, codeManager, email,
		services.AuthSettings{
			CodeTTL:         5 * time.Minute,
			MaxCodeAttempts: 5,
			ResetTokenTTL:   time.Hour,
			ResetURL:        "http://localhost:5173/reset-password",
			BcryptCost:      bcrypt.MinCost,
		},
		logger, pkglogger.NewAuditLogger(logger),
	)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(chiMiddleware.Recoverer)
	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, routes.Dependencies{
			AuthHandler:  handlers.NewAuthHandler(authService, nil),
			Health:       db,
			TokenManager: tokenManager,
			Revocations:  revokeRepo,
			RateLimit:    middlewareCustom.RateLimitConfig{Requests: 1000, Window: time.Minute},
			Logger:       logger,
		})
	})

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		EmailService: email,
		Revocations:  revokeRepo,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}
