package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/libgate/internal/auth"
	"github.com/BradenHooton/libgate/internal/models"
	"github.com/BradenHooton/libgate/internal/services"
	pkgauth "github.com/BradenHooton/libgate/pkg/auth"
	pkghttp "github.com/BradenHooton/libgate/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ip string) (*services.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, userID, code, ip string) (*services.LoginResult, error)
	CurrentUser(ctx context.Context, claims *models.TokenClaims) (*models.User, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, token, password string) error
	SetTwoFactor(ctx context.Context, claims *models.TokenClaims, enable bool) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyTwoFactorRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email                string `json:"email" validate:"required,email"`
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// MessageResponse acknowledges requests that return no resource
type MessageResponse struct {
	Message string `json:"message"`
}

const invalidCredentials = "Invalid credentials or unauthorized access."

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	result, err := h.service.Login(r.Context(), req.Email, req.Password, ip)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, invalidCredentials)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// VerifyTwoFactor handles POST /verify-2fa
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if fields := FieldErrors(req); fields != nil {
		pkghttp.WriteValidationErrors(w, "Invalid code", fields)
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	result, err := h.service.VerifyTwoFactor(r.Context(), req.UserID, req.Code, ip)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteUnauthorized(w, "Invalid code")
		case errors.Is(err, models.ErrCodeExpired):
			pkghttp.WriteUnprocessable(w, "Code expired, please sign in again")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Me handles GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user.Response())
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Register handles POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if fields := FieldErrors(req); fields != nil {
		pkghttp.WriteValidationErrors(w, "Registration failed", fields)
		return
	}

	_, err := h.service.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteValidationErrors(w, "Registration failed", map[string][]string{"password": pwErr.Errors})
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteValidationErrors(w, "Registration failed", map[string][]string{"email": {"is already registered"}})
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Name and email are required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, MessageResponse{Message: "Registration successful. You can now sign in."})
}

// ForgotPassword handles POST /forgot-password. The response does not reveal
// whether the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if fields := FieldErrors(req); fields != nil {
		pkghttp.WriteValidationErrors(w, "Invalid email", fields)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Message: "If that email is registered, a password reset link has been sent.",
	})
}

// ResetPassword handles POST /reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if fields := FieldErrors(req); fields != nil {
		pkghttp.WriteValidationErrors(w, "Password reset failed", fields)
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Email, req.Token, req.Password)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteValidationErrors(w, "Password reset failed", map[string][]string{"password": pwErr.Errors})
		case errors.Is(err, models.ErrInvalidResetLink):
			pkghttp.WriteUnprocessable(w, "This password reset link is invalid or has expired.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Your password has been reset."})
}

// EnableTwoFactor handles POST /enable-2fa
func (h *AuthHandler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.setTwoFactor(w, r, true)
}

// DisableTwoFactor handles POST /disable-2fa
func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.setTwoFactor(w, r, false)
}

func (h *AuthHandler) setTwoFactor(w http.ResponseWriter, r *http.Request, enable bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if _, err := h.service.SetTwoFactor(r.Context(), claims, enable); err != nil {
		writeSessionError(w, err)
		return
	}

	msg := "Two-factor authentication disabled."
	if enable {
		msg = "Two-factor authentication enabled."
	}
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrUnauthorized) {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}
