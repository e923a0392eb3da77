package portalsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client talks to the portal without credentials and creates Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login posts credentials. When the account has 2FA the response carries a
// pending login id instead of tokens.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", LoginRequest{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteLogin answers a pending login with a TOTP or backup code.
func (c *Client) CompleteLogin(ctx context.Context, pendingLoginID, code string, isBackupCode bool) (*LoginResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/login/2fa", "", CompleteLoginRequest{
		PendingLoginID: pendingLoginID,
		Code:           code,
		IsBackupCode:   isBackupCode,
	})
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new pair. The old token is spent.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/refresh", "", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes refreshToken.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/logout", "", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var out HealthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RealtimeURL returns the websocket endpoint for accessToken.
func (c *Client) RealtimeURL(accessToken string) string {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/realtime?token=" + accessToken
}
