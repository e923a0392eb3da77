package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/slogx"
)

const (
	DefaultChallengeTTL         = 5 * time.Minute
	DefaultChallengeMaxAttempts = 5

	tokenTypeBearer = "Bearer"
)

type SessionService struct {
	Store     store.Store
	Codec     *jwtx.Codec
	TwoFactor SecondFactor

	// Challenges overrides Store.LoginChallenges, e.g. with the redis driver.
	Challenges           store.LoginChallenges
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int

	Now func() time.Time
}

func (s *SessionService) challenges() store.LoginChallenges {
	if s.Challenges != nil {
		return s.Challenges
	}
	return s.Store.LoginChallenges()
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionService) challengeTTL() time.Duration {
	if s.ChallengeTTL <= 0 {
		return DefaultChallengeTTL
	}
	return s.ChallengeTTL
}

func (s *SessionService) maxAttempts() int {
	if s.ChallengeMaxAttempts <= 0 {
		return DefaultChallengeMaxAttempts
	}
	return s.ChallengeMaxAttempts
}

// Login checks identifier (username or email) and password. Users with 2FA
// get a pending challenge and no tokens. Unknown users, password-less
// accounts and wrong passwords all return ErrInvalidCredentials after the
// same amount of hashing work.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)

	user, err := s.lookup(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.DummyVerify(password)
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		return domain.LoginResult{}, storeErr("lookup user", err)
	}
	if user.PasswordHash == nil {
		cryptox.DummyVerify(password)
		return domain.LoginResult{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, *user.PasswordHash); err != nil {
		l.Info("login password mismatch", slog.String("user_id", user.ID))
		return domain.LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		l.Info("login for inactive account", slog.String("user_id", user.ID))
		return domain.LoginResult{}, ErrAccountInactive
	}

	if user.TwoFactorEnabled() {
		now := s.now()
		challenge := domain.LoginChallenge{
			ID:        idx.NewAt(now).String(),
			UserID:    user.ID,
			ExpiresAt: now.Add(s.challengeTTL()),
			CreatedAt: now,
		}
		if err := s.challenges().CreateLoginChallenge(ctx, challenge); err != nil {
			return domain.LoginResult{}, storeErr("create login challenge", err)
		}
		l.Info("login pending 2fa",
			slog.String("user_id", user.ID),
			slog.String("challenge_id", challenge.ID),
		)
		return domain.LoginResult{
			Requires2FA:    true,
			PendingLoginID: challenge.ID,
			PendingExpires: challenge.ExpiresAt,
		}, nil
	}

	pair, err := s.issuePair(ctx, s.Store.RefreshSessions(), user)
	if err != nil {
		return domain.LoginResult{}, err
	}
	l.Info("login succeeded", slog.String("user_id", user.ID))
	return domain.LoginResult{Tokens: &pair}, nil
}

func (s *SessionService) lookup(ctx context.Context, identifier string) (domain.User, error) {
	if identifier == "" {
		return domain.User{}, store.ErrNotFound
	}
	if strings.Contains(identifier, "@") {
		return s.Store.Users().GetUserByEmail(ctx, identifier)
	}
	return s.Store.Users().GetUserByUsername(ctx, identifier)
}

// SecondFactor checks and spends second factor codes during login.
type SecondFactor interface {
	CheckLogin(ctx context.Context, userID, code string, isBackupCode bool) error
	ConsumeBackupCode(ctx context.Context, userID, code string) error
}

// CompleteLogin finishes a pending login. A challenge mints at most one
// session and checks at most ChallengeMaxAttempts codes: each attempt is
// counted before the code is looked at, so concurrent guesses cannot
// outrun the cap. A backup code is spent only by the request that has
// already claimed the challenge.
func (s *SessionService) CompleteLogin(ctx context.Context, pendingLoginID, code string, isBackupCode bool) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	challenges := s.challenges()

	challenge, err := challenges.IncrementLoginChallengeAttempts(ctx, pendingLoginID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.TokenPair{}, ErrInvalid2FACode
	case errors.Is(err, store.ErrConflict):
		// Lost the increment to concurrent attempts; nothing was checked.
		l.Warn("login challenge contended", slog.String("challenge_id", pendingLoginID))
		return domain.TokenPair{}, ErrInvalid2FACode
	case err != nil:
		return domain.TokenPair{}, storeErr("reserve 2fa attempt", err)
	}
	if challenge.Attempts > s.maxAttempts() {
		return domain.TokenPair{}, s.lockOut(ctx, challenge)
	}

	err = s.TwoFactor.CheckLogin(ctx, challenge.UserID, code, isBackupCode)
	switch {
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrNotEnabled):
		if challenge.Attempts >= s.maxAttempts() {
			return domain.TokenPair{}, s.lockOut(ctx, challenge)
		}
		return domain.TokenPair{}, ErrInvalid2FACode
	case errors.Is(err, store.ErrNotFound):
		_, _ = challenges.ConsumeLoginChallenge(ctx, challenge.ID)
		return domain.TokenPair{}, ErrInvalid2FACode
	case err != nil:
		return domain.TokenPair{}, err
	}

	ok, err := challenges.ConsumeLoginChallenge(ctx, challenge.ID)
	if err != nil {
		return domain.TokenPair{}, storeErr("consume login challenge", err)
	}
	if !ok {
		l.Warn("login challenge already used", slog.String("challenge_id", challenge.ID))
		return domain.TokenPair{}, ErrInvalid2FACode
	}

	if isBackupCode {
		if err := s.TwoFactor.ConsumeBackupCode(ctx, challenge.UserID, code); err != nil {
			if errors.Is(err, ErrInvalidCode) {
				return domain.TokenPair{}, ErrInvalid2FACode
			}
			return domain.TokenPair{}, err
		}
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalid2FACode
		}
		return domain.TokenPair{}, storeErr("get user", err)
	}
	if !user.IsActive {
		return domain.TokenPair{}, ErrAccountInactive
	}

	pair, err := s.issuePair(ctx, s.Store.RefreshSessions(), user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	l.Info("login completed with 2fa",
		slog.String("user_id", user.ID),
		slog.Bool("backup_code", isBackupCode),
	)
	return pair, nil
}

func (s *SessionService) lockOut(ctx context.Context, challenge domain.LoginChallenge) error {
	ok, _ := s.challenges().ConsumeLoginChallenge(ctx, challenge.ID)
	if ok {
		slogx.FromContext(ctx).Warn("login challenge locked out",
			slog.String("challenge_id", challenge.ID),
			slog.String("user_id", challenge.UserID),
		)
	}
	return ErrTooManyAttempts
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued. Of two concurrent refreshes with the same token exactly
// one wins. Every failure wraps ErrSessionInvalid.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	payload, err := s.Codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.RefreshSessions().RevokeRefreshSession(ctx, cryptox.Fingerprint(payload.ID))
		if err != nil {
			return storeErr("revoke refresh session", err)
		}
		if !ok {
			return ErrSessionInvalid
		}

		user, err := tx.Users().GetUserByID(ctx, payload.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSessionInvalid
			}
			return storeErr("get user", err)
		}
		if !user.IsActive {
			return ErrSessionInvalid
		}

		pair, err = s.issuePair(ctx, tx.RefreshSessions(), user)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			slogx.FromContext(ctx).Info("refresh rejected", slog.String("user_id", payload.UserID))
		}
		return domain.TokenPair{}, err
	}
	return pair, nil
}

// Revoke logs out the session behind refreshToken. Revoking an already
// revoked session is not an error.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	payload, err := s.Codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}
	if _, err := s.Store.RefreshSessions().RevokeRefreshSession(ctx, cryptox.Fingerprint(payload.ID)); err != nil {
		return storeErr("revoke refresh session", err)
	}
	slogx.FromContext(ctx).Info("session revoked", slog.String("user_id", payload.UserID))
	return nil
}

// RevokeAll revokes every refresh session of userID.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.RefreshSessions().RevokeAllUserRefreshSessions(ctx, userID)
	if err != nil {
		return 0, storeErr("revoke all sessions", err)
	}
	return n, nil
}

func (s *SessionService) issuePair(ctx context.Context, sessions store.RefreshSessions, user domain.User) (domain.TokenPair, error) {
	subject := jwtx.Subject{UserID: user.ID, Role: string(user.Role), Email: user.Email}

	access, err := s.Codec.IssueAccessToken(subject)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.Codec.IssueRefreshToken(subject)
	if err != nil {
		return domain.TokenPair{}, err
	}

	err = sessions.CreateRefreshSession(ctx, domain.RefreshSession{
		TokenHash: cryptox.Fingerprint(refresh.ID),
		UserID:    user.ID,
		ExpiresAt: refresh.ExpiresAt,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.TokenPair{}, storeErr("create refresh session", err)
	}

	return domain.TokenPair{
		AccessToken:      access.Raw,
		RefreshToken:     refresh.Raw,
		TokenType:        tokenTypeBearer,
		ExpiresIn:        int64(s.Codec.AccessTTL().Seconds()),
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
