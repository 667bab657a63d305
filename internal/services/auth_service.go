package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/libgate/internal/auth"
	"github.com/BradenHooton/libgate/internal/models"
	pkgauth "github.com/BradenHooton/libgate/pkg/auth"
	pkglogger "github.com/BradenHooton/libgate/pkg/logger"
)

// UserRepository defines the user persistence operations the service needs
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) (*models.User, error)
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type TwoFactorChallengeRepository interface {
	Create(ctx context.Context, c *models.TwoFactorChallenge) (*models.TwoFactorChallenge, error)
	LatestOpen(ctx context.Context, userID string) (*models.TwoFactorChallenge, error)
	IncrementFailures(ctx context.Context, id string) (int, error)
	MarkUsed(ctx context.Context, id string) error
}

type PasswordResetRepository interface {
	Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.PasswordResetToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkAsUsed(ctx context.Context, id string) error
}

// AuthRepositories groups the stores AuthService writes to.
type AuthRepositories struct {
	Users       UserRepository
	Revocations TokenRevocationRepository
	Challenges  TwoFactorChallengeRepository
	Resets      PasswordResetRepository
}

type AuthSettings struct {
	CodeTTL         time.Duration
	MaxCodeAttempts int
	ResetTokenTTL   time.Duration
	ResetURL        string
	BcryptCost      int
}

// LoginResult is the body of a successful /login or /verify-2fa.
type LoginResult struct {
	AccessToken       string `json:"access_token,omitempty"`
	RequiresTwoFactor bool   `json:"requires_2fa,omitempty"`
	UserID            string `json:"user_id,omitempty"`
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthService handles authentication business logic
type AuthService struct {
	repos       AuthRepositories
	tm          *auth.TokenManager
	codes       *auth.CodeManager
	email       EmailService
	settings    AuthSettings
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService
func NewAuthService(repos AuthRepositories, tm *auth.TokenManager, codes *auth.CodeManager, email EmailService, settings AuthSettings, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	if settings.BcryptCost == 0 {
		settings.BcryptCost = pkgauth.BcryptCost
	}
	if settings.MaxCodeAttempts <= 0 {
		settings.MaxCodeAttempts = 5
	}
	return &AuthService{
		repos:       repos,
		tm:          tm,
		codes:       codes,
		email:       email,
		settings:    settings,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Login checks the password. Users with two-factor enabled get a challenge
// emailed to them instead of a token.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, models.ErrUnauthorized
	}

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// keep the unknown-email path as slow as a wrong password
			_ = pkgauth.ComparePassword(s.dummyPasswordHash(), password)
			s.loginFailed(ctx, email, "", ip, "invalid_credentials")
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.loginFailed(ctx, email, user.ID, ip, "invalid_credentials")
		return nil, models.ErrUnauthorized
	}

	if user.TwoFactorEnabled {
		if err := s.issueChallenge(ctx, user, ip); err != nil {
			return nil, err
		}
		return &LoginResult{RequiresTwoFactor: true, UserID: user.ID}, nil
	}

	result, err := s.grant(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:  pkglogger.EventLogin,
		Identifier: email,
		UserID:     user.ID,
		IPAddress:  ip,
		Success:    true,
	})
	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, userID, ip, reason string) {
	s.logger.Info("login failed: invalid credentials")
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		Identifier:    email,
		UserID:        userID,
		IPAddress:     ip,
		FailureReason: reason,
	})
}

func (s *AuthService) issueChallenge(ctx context.Context, user *models.User, ip string) error {
	now := s.now()
	expiresAt := now.Add(s.settings.CodeTTL)

	encrypted, nonce, code, err := s.codes.NewChallenge(user.Email, now)
	if err != nil {
		s.logger.Error("failed to create second factor secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.repos.Challenges.Create(ctx, &models.TwoFactorChallenge{
		UserID:          user.ID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		IssuedAt:        now,
		ExpiresAt:       expiresAt,
	}); err != nil {
		s.logger.Error("failed to store second factor challenge", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendSecondFactorCode(ctx, user.Email, code, expiresAt); err != nil {
		s.logger.Error("failed to send second factor code", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventChallengeIssued,
		UserID:    user.ID,
		IPAddress: ip,
		Success:   true,
	})
	return nil
}

// VerifyTwoFactor checks code against the user's newest open challenge. A
// challenge is closed after a successful verify or too many wrong codes.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, userID, code, ip string) (*LoginResult, error) {
	challenge, err := s.repos.Challenges.LatestOpen(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			s.verifyFailed(ctx, userID, ip, "no_challenge")
			return nil, models.ErrInvalidCode
		}
		s.logger.Error("failed to load second factor challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if challenge.IsExpired(s.now()) {
		s.verifyFailed(ctx, userID, ip, "expired")
		return nil, models.ErrCodeExpired
	}

	ok, err := s.codes.Validate(challenge.SecretEncrypted, challenge.SecretNonce, code, challenge.IssuedAt)
	if err != nil {
		s.logger.Error("failed to validate second factor code", slog.String("challenge_id", challenge.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !ok {
		failures, err := s.repos.Challenges.IncrementFailures(ctx, challenge.ID)
		if err != nil {
			s.logger.Error("failed to record code failure", slog.String("challenge_id", challenge.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if failures >= s.settings.MaxCodeAttempts {
			if err := s.repos.Challenges.MarkUsed(ctx, challenge.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
				s.logger.Error("failed to close challenge", slog.String("challenge_id", challenge.ID), slog.Any("error", err))
			}
		}
		s.verifyFailed(ctx, userID, ip, "invalid_code")
		return nil, models.ErrInvalidCode
	}

	if err := s.repos.Challenges.MarkUsed(ctx, challenge.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.verifyFailed(ctx, userID, ip, "already_used")
			return nil, models.ErrInvalidCode
		}
		s.logger.Error("failed to close challenge", slog.String("challenge_id", challenge.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to get user after second factor", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result, err := s.grant(user)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventSecondFactor,
		UserID:    userID,
		IPAddress: ip,
		Success:   true,
	})
	return result, nil
}

func (s *AuthService) verifyFailed(ctx context.Context, userID, ip, reason string) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventSecondFactor,
		UserID:        userID,
		IPAddress:     ip,
		FailureReason: reason,
	})
}

func (s *AuthService) grant(user *models.User) (*LoginResult, error) {
	issued, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return &LoginResult{AccessToken: issued.Token}, nil
}

// CurrentUser loads the user behind a validated token. Tokens issued before
// the last password change are rejected.
func (s *AuthService) CurrentUser(ctx context.Context, claims *models.TokenClaims) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get current user", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		// JWT timestamps have second precision
		if claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
			return nil, models.ErrUnauthorized
		}
	}

	return user, nil
}

// Logout revokes the token's JTI until it would have expired anyway
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	expiresAt := s.now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	if err := s.repos.Revocations.RevokeToken(ctx, claims.ID, claims.UserID, expiresAt, "logout"); err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventLogout, claims.UserID, nil)
	return nil
}

// Register creates a member account. Password policy failures come back as
// *pkgauth.PasswordValidationError.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hashed, err := pkgauth.HashPasswordWithCost(in.Password, s.settings.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	created, err := s.repos.Users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hashed,
		Name:         name,
		Role:         models.RoleMember,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: user already exists")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventRegister, created.ID, nil)
	return created, nil
}

// ForgotPassword emails a reset link if the address belongs to a user. The
// caller sees the same result either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to get user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	token, digest, err := pkgauth.GenerateResetToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	expiresAt := s.now().Add(s.settings.ResetTokenTTL)
	if _, err := s.repos.Resets.Create(ctx, user.ID, digest, user.Email, expiresAt); err != nil {
		s.logger.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	link := ResetLink(s.settings.ResetURL, user.Email, token)
	if err := s.email.SendPasswordReset(ctx, user.Email, link, expiresAt); err != nil {
		s.logger.Error("failed to send reset email", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventPasswordReset, user.ID, map[string]string{"stage": "requested"})
	return nil
}

// ResetPassword consumes a reset token and sets a new password. Existing
// access tokens stop working once password_changed_at moves.
func (s *AuthService) ResetPassword(ctx context.Context, email, token, password string) error {
	record, err := s.repos.Resets.GetByTokenHash(ctx, pkgauth.HashResetToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidResetLink
		}
		s.logger.Error("failed to load reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !record.IsValid(s.now()) || !strings.EqualFold(record.Email, strings.TrimSpace(email)) {
		return models.ErrInvalidResetLink
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return err
	}

	hashed, err := pkgauth.HashPasswordWithCost(password, s.settings.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repos.Resets.MarkAsUsed(ctx, record.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidResetLink
		}
		s.logger.Error("failed to consume reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repos.Users.UpdatePassword(ctx, record.UserID, hashed); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", record.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventPasswordReset, record.UserID, map[string]string{"stage": "completed"})
	return nil
}

// SetTwoFactor turns the emailed second factor on or off for the caller.
func (s *AuthService) SetTwoFactor(ctx context.Context, claims *models.TokenClaims, enable bool) (*models.User, error) {
	if _, err := s.CurrentUser(ctx, claims); err != nil {
		return nil, err
	}

	user, err := s.repos.Users.SetTwoFactor(ctx, claims.UserID, enable)
	if err != nil {
		s.logger.Error("failed to update two factor setting", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventTwoFactorToggle, user.ID, map[string]string{
		"enabled": strconv.FormatBool(enable),
	})
	return user, nil
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := pkgauth.HashPasswordWithCost(fmt.Sprintf("unused-%d", s.now().UnixNano()), s.settings.BcryptCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
