package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. Both are overridable through configuration.
const (
	// DefaultAccessTokenTTL is the lifetime of an access token.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of a refresh token.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Kind discriminates the two token classes. It is signed into every token and
// checked before any other claim is trusted.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the wire shape shared by both token classes. The subject is the
// user id. Callers never see Claims directly; Verify* hands back a typed
// payload once the discriminator has been checked.
type Claims struct {
	jwt.RegisteredClaims

	Kind  Kind   `json:"kind"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`

	// IsRefreshToken is only ever set on refresh tokens.
	IsRefreshToken bool `json:"is_refresh_token,omitempty"`
}

// Subject is the identity a token is minted for.
type Subject struct {
	UserID string
	Role   string
	Email  string
}

// AccessPayload is a verified access token.
type AccessPayload struct {
	UserID    string
	Role      string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshPayload is a verified refresh token. ID is the token's jti, which the
// session ledger uses for rotation and revocation.
type RefreshPayload struct {
	ID        string
	UserID    string
	Role      string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is a freshly minted token together with the values the caller needs
// to persist or report without decoding it again.
type Token struct {
	Raw       string
	ID        string
	ExpiresAt time.Time
}

func newClaims(kind Kind, s Subject, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Kind:           kind,
		Role:           s.Role,
		Email:          s.Email,
		IsRefreshToken: kind == KindRefresh,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
