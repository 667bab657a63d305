package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/BradenHooton/libgate/pkg/http"
	"github.com/BradenHooton/libgate/pkg/logger"
)

func newTestClient(t *testing.T, r chi.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithLogger(logger.Discard()))
}

func TestClient_LoginDirectToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "reader@library.org", body.Email)
		assert.Equal(t, "hunter22", body.Password)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"access_token": "tok"})
	})

	res, err := newTestClient(t, r).Login(context.Background(), "reader@library.org", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.AccessToken)
	assert.False(t, res.RequiresTwoFactor)
}

func TestClient_LoginRequiresTwoFactor(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"requires_2fa": true, "user_id": "u-1"})
	})

	res, err := newTestClient(t, r).Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.True(t, res.RequiresTwoFactor)
	assert.Equal(t, "u-1", res.UserID)
}

func TestClient_LoginRejected(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteUnauthorized(w, "Invalid credentials")
	})

	_, err := newTestClient(t, r).Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.True(t, IsAPIError(err))
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	_, err := newTestClient(t, r).Login(context.Background(), "a@b.c", "pw")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := newTestClient(t, r).Login(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, IsAPIError(err))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL, WithLogger(logger.Discard())).Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.False(t, IsAPIError(err))
	assert.False(t, errors.Is(err, ErrMalformedResponse))
}

func TestClient_VerifyTwoFactor(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/verify-2fa", func(w http.ResponseWriter, r *http.Request) {
		var body verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Code != "123456" {
			pkghttp.WriteUnauthorized(w, "Code expired")
			return
		}
		assert.Equal(t, "u-1", body.UserID)
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"access_token": "tok2"})
	})
	c := newTestClient(t, r)

	res, err := c.VerifyTwoFactor(context.Background(), "u-1", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok2", res.AccessToken)

	_, err = c.VerifyTwoFactor(context.Background(), "u-1", "000000")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Code expired", apiErr.Message)
}

func TestClient_VerifyTwoFactorMissingToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/verify-2fa", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{})
	})

	_, err := newTestClient(t, r).VerifyTwoFactor(context.Background(), "u-1", "123456")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_MeSendsBearer(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			pkghttp.WriteUnauthorized(w, "Invalid token")
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, Profile{ID: "u-1", Name: "Ada", Email: "ada@library.org", Role: "admin", TwoFactorEnabled: true})
	})
	c := newTestClient(t, r)

	p, err := c.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	assert.True(t, p.TwoFactorEnabled)

	_, err = c.Me(context.Background(), "stale")
	assert.True(t, IsAPIError(err))
}

func TestClient_LogoutAndSetTwoFactor(t *testing.T) {
	var hits []string
	r := chi.NewRouter()
	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path+" "+r.Header.Get("Authorization"))
		pkghttp.WriteJSON(w, http.StatusOK, MessageResult{Message: "Logged out"})
	})
	r.Post("/enable-2fa", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		pkghttp.WriteJSON(w, http.StatusOK, MessageResult{Message: "Two-factor authentication enabled"})
	})
	r.Post("/disable-2fa", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		pkghttp.WriteJSON(w, http.StatusOK, MessageResult{Message: "Two-factor authentication disabled"})
	})
	c := newTestClient(t, r)

	require.NoError(t, c.Logout(context.Background(), "tok"))

	res, err := c.SetTwoFactor(context.Background(), "tok", true)
	require.NoError(t, err)
	assert.Equal(t, "Two-factor authentication enabled", res.Message)

	_, err = c.SetTwoFactor(context.Background(), "tok", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"/logout Bearer tok", "/enable-2fa", "/disable-2fa"}, hits)
}

func TestClient_RegisterValidationErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteValidationErrors(w, "Validation failed", map[string][]string{
			"email": {"email has already been taken"},
		})
	})

	_, err := newTestClient(t, r).Register(context.Background(), RegisterRequest{Email: "a@b.c"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, []string{"email has already been taken"}, apiErr.Fields["email"])
}

func TestClient_PasswordReset(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])
		pkghttp.WriteJSON(w, http.StatusOK, MessageResult{Message: "sent"})
	})
	r.Post("/reset-password", func(w http.ResponseWriter, r *http.Request) {
		var body ResetPasswordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "t0k", body.Token)
		pkghttp.WriteJSON(w, http.StatusOK, MessageResult{Message: "reset"})
	})
	c := newTestClient(t, r)

	res, err := c.ForgotPassword(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Message)

	res, err = c.ResetPassword(context.Background(), ResetPasswordRequest{Email: "a@b.c", Token: "t0k", Password: "x", PasswordConfirmation: "x"})
	require.NoError(t, err)
	assert.Equal(t, "reset", res.Message)
}
