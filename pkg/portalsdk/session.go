package portalsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshSkew refreshes the access token this long before it expires.
const refreshSkew = 30 * time.Second

var ErrNoRefreshToken = errors.New("portalsdk: access token expired and no refresh token available")

// Session is an authenticated portal session. Its methods refresh the
// access token when needed and are safe for concurrent use.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewSession wraps a token pair obtained from Login, CompleteLogin or
// Refresh.
func (c *Client) NewSession(tokens *TokenResponse) *Session {
	s := &Session{client: c}
	s.store(tokens)
	return s
}

func (s *Session) store(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshSkew)
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// validToken returns an unexpired access token, refreshing first if needed.
func (s *Session) validToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tokens)
	return s.accessToken, nil
}

// Refresh rotates the token pair now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.store(tokens)
	return nil
}

// Logout revokes the refresh token and clears the session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.accessToken, s.refreshToken = "", ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if refreshToken == "" {
		return ErrNoRefreshToken
	}
	return s.client.Logout(ctx, refreshToken)
}

// RealtimeURL returns the websocket URL with the current access token.
func (s *Session) RealtimeURL(ctx context.Context) (string, error) {
	token, err := s.validToken(ctx)
	if err != nil {
		return "", err
	}
	return s.client.RealtimeURL(token), nil
}

func (s *Session) call(ctx context.Context, method, path string, body, out any, expectedStatus int) error {
	token, err := s.validToken(ctx)
	if err != nil {
		return err
	}
	resp, err := s.client.do(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	if expectedStatus == http.StatusNoContent {
		return checkStatusNoContent(resp)
	}
	return decodeJSON(resp, out, expectedStatus)
}

// ============================================================================
// Two-factor
// ============================================================================

func (s *Session) TwoFactorStatus(ctx context.Context) (*TwoFactorStatusResponse, error) {
	var out TwoFactorStatusResponse
	if err := s.call(ctx, http.MethodGet, "/v1/2fa/status", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// BeginTwoFactorSetup starts (or restarts) enrollment.
func (s *Session) BeginTwoFactorSetup(ctx context.Context) (*TwoFactorSetupResponse, error) {
	var out TwoFactorSetupResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/setup", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTwoFactorSetup enables 2FA. backupCodes may be nil; when given
// they must be the codes returned by BeginTwoFactorSetup.
func (s *Session) ConfirmTwoFactorSetup(ctx context.Context, code string, backupCodes []string) (*ConfirmSetupResponse, error) {
	var out ConfirmSetupResponse
	req := ConfirmSetupRequest{Code: code, BackupCodes: backupCodes}
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/verify", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableTwoFactor turns 2FA off. Every refresh session of the user is
// revoked, this one included.
func (s *Session) DisableTwoFactor(ctx context.Context, password, code string) error {
	req := DisableTwoFactorRequest{Password: password, Code: code}
	return s.call(ctx, http.MethodPost, "/v1/2fa/disable", req, nil, http.StatusNoContent)
}

func (s *Session) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	var out BackupCodesResponse
	req := RegenerateBackupCodesRequest{Code: code}
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/backup-codes", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.BackupCodes, nil
}

// ============================================================================
// Messaging
// ============================================================================

// SendMessage submits a message. A nil recipient broadcasts to the admins.
func (s *Session) SendMessage(ctx context.Context, content string, recipientID *string) (*MessageResponse, error) {
	var out MessageResponse
	req := SendMessageRequest{Content: content, RecipientID: recipientID}
	if err := s.call(ctx, http.MethodPost, "/v1/messages", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	path := "/v1/messages/" + url.PathEscape(messageID) + "/read"
	return s.call(ctx, http.MethodPost, path, nil, nil, http.StatusNoContent)
}

// Presence reports whether userID has an open realtime connection. Only
// admin and support staff may ask.
func (s *Session) Presence(ctx context.Context, userID string) (*PresenceResponse, error) {
	var out PresenceResponse
	path := "/v1/presence/" + url.PathEscape(userID)
	if err := s.call(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
