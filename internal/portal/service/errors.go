package service

import (
	"errors"
	"fmt"

	"github.com/estatevault/portal/internal/portal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountInactive    = errors.New("account_inactive")
	ErrInvalid2FACode     = errors.New("invalid_2fa_code")
	ErrSessionInvalid     = errors.New("session_invalid")
	ErrTooManyAttempts    = errors.New("too_many_attempts")

	ErrAlreadyEnabled      = errors.New("2fa_already_enabled")
	ErrNotEnabled          = errors.New("2fa_not_enabled")
	ErrSetupNotInitialized = errors.New("2fa_setup_not_initialized")
	ErrInvalidCode         = errors.New("invalid_code")

	ErrEmptyContent     = errors.New("empty_content")
	ErrContentTooLong   = errors.New("content_too_long")
	ErrNotRecipient     = errors.New("not_recipient")
	ErrUnknownRecipient = errors.New("unknown_recipient")
	ErrMessageNotFound  = errors.New("message_not_found")

	// ErrStoreUnavailable is the only error a caller may retry.
	ErrStoreUnavailable = errors.New("store_unavailable")
)

// storeErr tags driver outages with ErrStoreUnavailable and passes
// everything else through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
