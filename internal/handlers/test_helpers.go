package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/libgate/internal/auth"
	"github.com/BradenHooton/libgate/internal/models"
	"github.com/BradenHooton/libgate/internal/services"
	pkghttp "github.com/BradenHooton/libgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: userID,
		Email:  email,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc           func(ctx context.Context, email, password, ip string) (*services.LoginResult, error)
	VerifyTwoFactorFunc func(ctx context.Context, userID, code, ip string) (*services.LoginResult, error)
	CurrentUserFunc     func(ctx context.Context, claims *models.TokenClaims) (*models.User, error)
	LogoutFunc          func(ctx context.Context, claims *models.TokenClaims) error
	RegisterFunc        func(ctx context.Context, in services.RegisterInput) (*models.User, error)
	ForgotPasswordFunc  func(ctx context.Context, email string) error
	ResetPasswordFunc   func(ctx context.Context, email, token, password string) error
	SetTwoFactorFunc    func(ctx context.Context, claims *models.TokenClaims, enable bool) (*models.User, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ip string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ip)
}

func (m *MockAuthService) VerifyTwoFactor(ctx context.Context, userID, code, ip string) (*services.LoginResult, error) {
	if m.VerifyTwoFactorFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.VerifyTwoFactorFunc(ctx, userID, code, ip)
}

func (m *MockAuthService) CurrentUser(ctx context.Context, claims *models.TokenClaims) (*models.User, error) {
	if m.CurrentUserFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.CurrentUserFunc(ctx, claims)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, claims)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc == nil {
		return nil
	}
	return m.ForgotPasswordFunc(ctx, email)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, token, password string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidResetLink
	}
	return m.ResetPasswordFunc(ctx, email, token, password)
}

func (m *MockAuthService) SetTwoFactor(ctx context.Context, claims *models.TokenClaims, enable bool) (*models.User, error) {
	if m.SetTwoFactorFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.SetTwoFactorFunc(ctx, claims, enable)
}
