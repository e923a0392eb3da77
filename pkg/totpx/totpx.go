// Package totpx wraps RFC 6238 time-based one-time passwords with the
// parameters the portal uses: SHA1, six digits, 30 second steps and a
// 160-bit secret.
package totpx

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	Period        = 30
	SecretSize    = 20 // bytes
	DefaultWindow = 2  // steps either side of the current one
)

// Enrollment is a freshly generated shared secret and its otpauth:// URI.
type Enrollment struct {
	Secret string
	URI    string
}

// Engine generates and verifies codes.
type Engine struct {
	Issuer string
	Window uint
	Now    func() time.Time
}

// New returns an Engine with the given issuer and drift window.
func New(issuer string, window uint) *Engine {
	return &Engine{Issuer: issuer, Window: window, Now: time.Now}
}

// GenerateSecret creates a new base32 secret for account.
func (e *Engine) GenerateSecret(account string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: account,
		Period:      Period,
		SecretSize:  SecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("totpx: generate key: %w", err)
	}
	return Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify reports whether code matches secret within ±Window steps of now.
// Codes must be exactly six digits.
func (e *Engine) Verify(secret, code string) bool {
	if secret == "" || len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.now(), e.opts())
	return err == nil && ok
}

// Code returns the code for secret at t.
func (e *Engine) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, e.opts())
}

func (e *Engine) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      e.Window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
