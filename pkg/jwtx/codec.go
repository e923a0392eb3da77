package jwtx

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("jwtx: invalid token")
	ErrTokenExpired     = errors.New("jwtx: token expired")
	ErrNotARefreshToken = errors.New("jwtx: not a refresh token")

	ErrMissingSecret = errors.New("jwtx: signing secret is empty")
	ErrSharedSecret  = errors.New("jwtx: access and refresh secrets must differ")
)

// Config carries the per-class secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Codec mints and verifies HS256 access and refresh tokens. Each class is
// signed with its own secret and carries an explicit kind discriminator.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, ErrSharedSecret
	}

	c := &Codec{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           cfg.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTokenTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTokenTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken mints a short-lived access token for s.
func (c *Codec) IssueAccessToken(s Subject) (Token, error) {
	return c.issue(newClaims(KindAccess, s, c.issuer, c.accessTTL, c.now()), c.accessSecret)
}

// IssueRefreshToken mints a refresh token for s, signed with the refresh secret.
func (c *Codec) IssueRefreshToken(s Subject) (Token, error) {
	return c.issue(newClaims(KindRefresh, s, c.issuer, c.refreshTTL, c.now()), c.refreshSecret)
}

func (c *Codec) issue(claims Claims, secret []byte) (Token, error) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("jwtx: sign %s token: %w", claims.Kind, err)
	}
	return Token{Raw: raw, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifyAccessToken checks signature, expiry and class of an access token.
func (c *Codec) VerifyAccessToken(raw string) (AccessPayload, error) {
	claims, err := c.parse(raw, c.accessSecret)
	if err != nil {
		return AccessPayload{}, err
	}
	if claims.Kind != KindAccess || claims.IsRefreshToken {
		return AccessPayload{}, ErrInvalidToken
	}
	return AccessPayload{
		UserID:    claims.Subject,
		Role:      claims.Role,
		Email:     claims.Email,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// VerifyRefreshToken checks signature and expiry with the refresh secret and
// then requires the refresh discriminator, so an access token can never be
// replayed as a refresh token even if the secrets were ever shared.
func (c *Codec) VerifyRefreshToken(raw string) (RefreshPayload, error) {
	claims, err := c.parse(raw, c.refreshSecret)
	if err != nil {
		return RefreshPayload{}, err
	}
	if claims.Kind != KindRefresh || !claims.IsRefreshToken {
		return RefreshPayload{}, ErrNotARefreshToken
	}
	if claims.ID == "" {
		return RefreshPayload{}, ErrInvalidToken
	}
	return RefreshPayload{
		ID:        claims.ID,
		UserID:    claims.Subject,
		Role:      claims.Role,
		Email:     claims.Email,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (c *Codec) parse(raw string, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
