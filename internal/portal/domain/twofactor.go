package domain

import "time"

// LoginChallenge binds a password-verified login to its pending second factor.
type LoginChallenge struct {
	ID        string // ULID, handed to the client as pendingLoginId
	UserID    string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginResult is either a token pair or a pending 2FA challenge.
type LoginResult struct {
	Tokens         *TokenPair
	Requires2FA    bool
	PendingLoginID string
	PendingExpires time.Time
}

// TwoFactorSetup is returned once by beginSetup. The backup codes are never
// shown again.
type TwoFactorSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

type TwoFactorStatus struct {
	State                TwoFactorState `json:"state"`
	Enabled              bool           `json:"enabled"`
	BackupCodesRemaining int            `json:"backup_codes_remaining"`
}
