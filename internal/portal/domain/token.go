package domain

import "time"

// TokenPair is what login, 2FA completion and refresh hand back.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"` // seconds
	RefreshExpiresAt time.Time `json:"-"`
}

// RefreshSession is the ledger entry for one issued refresh token.
type RefreshSession struct {
	TokenHash string // fingerprint of the token's jti
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
