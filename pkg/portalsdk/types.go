package portalsdk

import "time"

// ============================================================================
// Authentication
// ============================================================================

type LoginRequest struct {
	Identifier string `json:"identifier"` // username or email
	Password   string `json:"password"`
}

// LoginResponse is either a token pair or a pending second-factor
// challenge, never both.
type LoginResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`

	Requires2FA      bool       `json:"requires_2fa"`
	PendingLoginID   string     `json:"pending_login_id,omitempty"`
	PendingExpiresAt *time.Time `json:"pending_expires_at,omitempty"`
}

// Tokens returns the token part of the response.
func (r *LoginResponse) Tokens() *TokenResponse {
	return &TokenResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
	}
}

type CompleteLoginRequest struct {
	PendingLoginID string `json:"pending_login_id"`
	Code           string `json:"code"`
	IsBackupCode   bool   `json:"is_backup_code,omitempty"`
}

// RefreshRequest is optional: browsers send the portal_refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ============================================================================
// Two-factor
// ============================================================================

type TwoFactorStatusResponse struct {
	State                string `json:"state"`
	Enabled              bool   `json:"enabled"`
	BackupCodesRemaining int    `json:"backup_codes_remaining"`
}

// TwoFactorSetupResponse is shown once. The backup codes cannot be fetched
// again.
type TwoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

type ConfirmSetupRequest struct {
	Code        string   `json:"code"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

type ConfirmSetupResponse struct {
	Enabled           bool `json:"enabled"`
	BackupCodesStored int  `json:"backup_codes_stored"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

type RegenerateBackupCodesRequest struct {
	Code string `json:"code"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// ============================================================================
// Messaging
// ============================================================================

// SendMessageRequest with no recipient goes to the admin team.
type SendMessageRequest struct {
	Content     string  `json:"content"`
	RecipientID *string `json:"recipient_id,omitempty"`
}

type MessageResponse struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID *string    `json:"recipient_id"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// ============================================================================
// Common
// ============================================================================

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type HealthChecks struct {
	Database   string `json:"database"`
	Challenges string `json:"challenges,omitempty"`
}

type HealthResponse struct {
	Status      string        `json:"status"`
	Uptime      string        `json:"uptime"`
	Version     string        `json:"version"`
	Connections *int          `json:"connections,omitempty"`
	Checks      *HealthChecks `json:"checks,omitempty"`
}

type PresenceResponse struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
