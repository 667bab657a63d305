package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/libgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRevocationChecker struct {
	IsTokenRevokedFunc func(ctx context.Context, jti string) (bool, error)
}

func (m *MockRevocationChecker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

func protected(t *testing.T, checker TokenRevocationChecker) (*TokenManager, http.Handler) {
	t.Helper()
	tm := NewTokenManager(testSecret, time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		if claims == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(claims.UserID))
	})
	return tm, AuthMiddleware(tm, checker, logger.Discard())(next)
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tm, h := protected(t, &MockRevocationChecker{})
	issued, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	rec := serve(h, "Bearer "+issued.Token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	_, h := protected(t, nil)

	rec := serve(h, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message"`)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	_, h := protected(t, nil)

	assert.Equal(t, http.StatusUnauthorized, serve(h, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer not-a-token").Code)
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	var seen string
	tm, h := protected(t, &MockRevocationChecker{
		IsTokenRevokedFunc: func(ctx context.Context, jti string) (bool, error) {
			seen = jti
			return true, nil
		},
	})
	issued, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	rec := serve(h, "Bearer "+issued.Token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, issued.JTI, seen)
}

func TestAuthMiddleware_RevocationLookupFailsClosed(t *testing.T) {
	tm, h := protected(t, &MockRevocationChecker{
		IsTokenRevokedFunc: func(ctx context.Context, jti string) (bool, error) {
			return false, errors.New("db down")
		},
	})
	issued, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	rec := serve(h, "Bearer "+issued.Token)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetUserFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetUserFromContext(req))
}
