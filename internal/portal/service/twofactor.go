package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/slogx"
	"github.com/estatevault/portal/pkg/totpx"
)

// TwoFactorService drives the enrollment state machine
// disabled -> pending -> enabled -> disabled.
type TwoFactorService struct {
	Store           store.Store
	TOTP            *totpx.Engine
	BackupCodeCount int // defaults to cryptox.DefaultBackupCodeCount
}

func (s *TwoFactorService) backupCodeCount() int {
	if s.BackupCodeCount <= 0 {
		return cryptox.DefaultBackupCodeCount
	}
	return s.BackupCodeCount
}

func (s *TwoFactorService) Status(ctx context.Context, userID string) (domain.TwoFactorStatus, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorStatus{}, storeErr("get user", err)
	}

	status := domain.TwoFactorStatus{State: user.TwoFactorState, Enabled: user.TwoFactorEnabled()}
	if status.Enabled {
		n, err := s.Store.BackupCodes().CountBackupCodes(ctx, userID)
		if err != nil {
			return domain.TwoFactorStatus{}, storeErr("count backup codes", err)
		}
		status.BackupCodesRemaining = n
	}
	return status, nil
}

// BeginSetup stores a fresh secret and backup codes with the user in the
// pending state. Calling it again while pending restarts enrollment. The
// plaintext codes are returned here and nowhere else.
func (s *TwoFactorService) BeginSetup(ctx context.Context, userID string) (domain.TwoFactorSetup, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorSetup{}, storeErr("get user", err)
	}
	if user.TwoFactorState == domain.TwoFactorEnabled {
		return domain.TwoFactorSetup{}, ErrAlreadyEnabled
	}

	enrollment, err := s.TOTP.GenerateSecret(user.Email)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	codes, err := cryptox.GenerateBackupCodes(s.backupCodeCount())
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().BeginTwoFactor(ctx, userID, enrollment.Secret); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrAlreadyEnabled
			}
			return storeErr("begin 2fa", err)
		}
		if err := tx.BackupCodes().ReplaceBackupCodes(ctx, userID, cryptox.HashBackupCodes(userID, codes)); err != nil {
			return storeErr("store backup codes", err)
		}
		return nil
	})
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}

	slogx.FromContext(ctx).Info("2fa setup started", slog.String("user_id", userID))
	return domain.TwoFactorSetup{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.URI,
		BackupCodes:     codes,
	}, nil
}

// ConfirmSetup enables 2FA once code verifies against the pending secret.
// backupCodes is optional; when given it must be exactly the set handed out
// by BeginSetup. It returns the number of stored backup codes.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code string, backupCodes []string) (int, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return 0, storeErr("get user", err)
	}
	switch {
	case user.TwoFactorState == domain.TwoFactorEnabled:
		return 0, ErrAlreadyEnabled
	case user.TwoFactorState != domain.TwoFactorPending || user.TwoFactorSecret == nil:
		return 0, ErrSetupNotInitialized
	}
	secret := *user.TwoFactorSecret

	if !s.TOTP.Verify(secret, code) {
		slogx.FromContext(ctx).Info("2fa setup code rejected", slog.String("user_id", userID))
		return 0, ErrInvalidCode
	}

	stored, err := s.Store.BackupCodes().ListBackupCodes(ctx, userID)
	if err != nil {
		return 0, storeErr("list backup codes", err)
	}
	if len(backupCodes) > 0 && !sameBackupCodes(userID, backupCodes, stored) {
		return 0, ErrInvalidCode
	}

	// The conditional enable fails if BeginSetup ran again in between.
	if err := s.Store.Users().EnableTwoFactor(ctx, userID, secret); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return 0, ErrSetupNotInitialized
		}
		return 0, storeErr("enable 2fa", err)
	}

	slogx.FromContext(ctx).Info("2fa enabled", slog.String("user_id", userID))
	return len(stored), nil
}

func sameBackupCodes(userID string, codes, hashes []string) bool {
	if len(codes) != len(hashes) {
		return false
	}
	remaining := hashes
	for _, c := range codes {
		var ok bool
		remaining, ok = cryptox.ConsumeBackupCode(userID, c, remaining)
		if !ok {
			return false
		}
	}
	return len(remaining) == 0
}

// Disable turns 2FA off. It needs the current password and a TOTP code, so a
// stolen access token alone is not enough. All refresh sessions are revoked.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return storeErr("get user", err)
	}
	if !user.TwoFactorEnabled() {
		return ErrNotEnabled
	}
	if user.PasswordHash == nil {
		cryptox.DummyVerify(password)
		return ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, *user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if !s.TOTP.Verify(*user.TwoFactorSecret, code) {
		return ErrInvalidCode
	}

	var revoked int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableTwoFactor(ctx, userID); err != nil {
			return storeErr("disable 2fa", err)
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return storeErr("delete backup codes", err)
		}
		n, err := tx.RefreshSessions().RevokeAllUserRefreshSessions(ctx, userID)
		if err != nil {
			return storeErr("revoke sessions", err)
		}
		revoked = n
		return nil
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("2fa disabled",
		slog.String("user_id", userID),
		slog.Int64("revoked_sessions", revoked),
	)
	return nil
}

// CheckLogin checks a second factor for an enabled user without using it
// up. A backup code that passes here still has to be won with
// ConsumeBackupCode.
func (s *TwoFactorService) CheckLogin(ctx context.Context, userID, code string, isBackupCode bool) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return storeErr("get user", err)
	}
	if !user.TwoFactorEnabled() {
		return ErrNotEnabled
	}

	if !isBackupCode {
		if !s.TOTP.Verify(*user.TwoFactorSecret, code) {
			return ErrInvalidCode
		}
		return nil
	}

	if cryptox.CanonicalBackupCode(code) == "" {
		return ErrInvalidCode
	}
	hashes, err := s.Store.BackupCodes().ListBackupCodes(ctx, userID)
	if err != nil {
		return storeErr("list backup codes", err)
	}
	if !cryptox.VerifyBackupCode(userID, code, hashes) {
		return ErrInvalidCode
	}
	return nil
}

// ConsumeBackupCode deletes code by the same statement that matches it, so
// of two concurrent calls with one code exactly one succeeds.
func (s *TwoFactorService) ConsumeBackupCode(ctx context.Context, userID, code string) error {
	if cryptox.CanonicalBackupCode(code) == "" {
		return ErrInvalidCode
	}
	ok, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, userID, cryptox.HashBackupCode(userID, code))
	if err != nil {
		return storeErr("consume backup code", err)
	}
	if !ok {
		return ErrInvalidCode
	}
	slogx.FromContext(ctx).Info("backup code used", slog.String("user_id", userID))
	return nil
}

// VerifyLogin is CheckLogin followed, for backup codes, by
// ConsumeBackupCode.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, userID, code string, isBackupCode bool) error {
	if err := s.CheckLogin(ctx, userID, code, isBackupCode); err != nil {
		return err
	}
	if isBackupCode {
		return s.ConsumeBackupCode(ctx, userID, code)
	}
	return nil
}

// RegenerateBackupCodes replaces the whole set. Only a TOTP code is accepted,
// never a backup code.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if !user.TwoFactorEnabled() {
		return nil, ErrNotEnabled
	}
	if !s.TOTP.Verify(*user.TwoFactorSecret, code) {
		return nil, ErrInvalidCode
	}

	codes, err := cryptox.GenerateBackupCodes(s.backupCodeCount())
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().ReplaceBackupCodes(ctx, userID, cryptox.HashBackupCodes(userID, codes)); err != nil {
			return storeErr("replace backup codes", err)
		}
		// The replace holds the write lock, so a Disable that committed
		// first is visible here.
		current, err := tx.Users().GetUserByID(ctx, userID)
		if err != nil {
			return storeErr("get user", err)
		}
		if !current.TwoFactorEnabled() {
			return ErrNotEnabled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("backup codes regenerated", slog.String("user_id", userID))
	return codes, nil
}
