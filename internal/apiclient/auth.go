package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// LoginResult is the body of a 2xx /login response. Exactly one of
// AccessToken or RequiresTwoFactor is expected to be set.
type LoginResult struct {
	AccessToken       string `json:"access_token,omitempty"`
	RequiresTwoFactor bool   `json:"requires_2fa,omitempty"`
	UserID            string `json:"user_id,omitempty"`
}

type TokenResult struct {
	AccessToken string `json:"access_token"`
}

// Profile is the signed-in user as returned by /me.
type Profile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// MessageResult is the body of endpoints that only acknowledge.
type MessageResult struct {
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type ResetPasswordRequest struct {
	Email                string `json:"email"`
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyTwoFactor(ctx context.Context, userID, code string) (*TokenResult, error) {
	var out TokenResult
	if err := c.do(ctx, http.MethodPost, "/verify-2fa", "", verifyRequest{UserID: userID, Code: code}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrMalformedResponse)
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/logout", token, nil, nil)
}

// SetTwoFactor calls /enable-2fa or /disable-2fa.
func (c *Client) SetTwoFactor(ctx context.Context, token string, enable bool) (*MessageResult, error) {
	path := "/disable-2fa"
	if enable {
		path = "/enable-2fa"
	}
	var out MessageResult
	if err := c.do(ctx, http.MethodPost, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*MessageResult, error) {
	var out MessageResult
	if err := c.do(ctx, http.MethodPost, "/register", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResult, error) {
	var out MessageResult
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/forgot-password", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResult, error) {
	var out MessageResult
	if err := c.do(ctx, http.MethodPost, "/reset-password", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
