package store

import (
	"context"
	"errors"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict means a conditional write matched no row because the
	// record changed underneath the caller.
	ErrConflict = errors.New("store: conflicting update")

	// ErrUnavailable wraps every driver failure that is not one of the above.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories so that transactional work goes through Tx.
type Store interface {
	Users() Users
	BackupCodes() BackupCodes
	Messages() Messages
	RefreshSessions() RefreshSessions
	LoginChallenges() LoginChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	// Inside fn only tx may be used.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is the credential store.
type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// ListUsersByRole returns active users with role, oldest first.
	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error)

	// CreateUser inserts a new user (id is provided by the caller as a ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser applies the non-nil fields of patch and bumps updated_at.
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)

	// BeginTwoFactor stores secret and moves the user to pending, unless 2FA
	// is already enabled (ErrConflict).
	BeginTwoFactor(ctx context.Context, userID, secret string) error

	// EnableTwoFactor moves a pending user whose stored secret still equals
	// secret to enabled. Any other state yields ErrConflict.
	EnableTwoFactor(ctx context.Context, userID, secret string) error

	// DisableTwoFactor clears the secret and moves the user to disabled.
	DisableTwoFactor(ctx context.Context, userID string) error
}

// BackupCodes is the ordered set of backup code hashes per user.
type BackupCodes interface {
	// ReplaceBackupCodes swaps the user's whole set for hashes, keeping order.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// ListBackupCodes returns the user's hashes in issue order.
	ListBackupCodes(ctx context.Context, userID string) ([]string, error)

	// ConsumeBackupCode deletes one hash and reports whether this call
	// removed it. Of two concurrent calls with the same hash exactly one
	// sees true.
	ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error)

	CountBackupCodes(ctx context.Context, userID string) (int, error)
	DeleteAllBackupCodes(ctx context.Context, userID string) error
}

type Messages interface {
	CreateMessage(ctx context.Context, m domain.ChatMessage) error
	GetMessage(ctx context.Context, id string) (domain.ChatMessage, error)

	// MarkMessageRead flips is_read once and reports whether this call did it.
	MarkMessageRead(ctx context.Context, id string, at time.Time) (bool, error)

	// ListCorrespondents returns, once each, the users that exchanged a
	// direct message with userID or sent a broadcast it may have received.
	// Only admins receive broadcasts, so callers pass admin ids.
	ListCorrespondents(ctx context.Context, userID string) ([]string, error)
}

// RefreshSessions is the refresh token ledger.
type RefreshSessions interface {
	CreateRefreshSession(ctx context.Context, s domain.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (domain.RefreshSession, error)

	// RevokeRefreshSession revokes a live, unrevoked session and reports
	// whether this call did it. Rotation relies on that to let exactly one
	// concurrent refresh win.
	RevokeRefreshSession(ctx context.Context, tokenHash string) (bool, error)

	RevokeAllUserRefreshSessions(ctx context.Context, userID string) (int64, error)
	DeleteExpiredRefreshSessions(ctx context.Context) (int64, error)
}

// LoginChallenges holds pending second-factor logins. Besides the sqlite
// driver there is a redis implementation for multi-instance deployments.
type LoginChallenges interface {
	CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error

	// GetLoginChallenge returns an unexpired challenge or ErrNotFound.
	GetLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error)

	// IncrementLoginChallengeAttempts bumps the failure counter and returns
	// the updated challenge.
	IncrementLoginChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error)

	// ConsumeLoginChallenge deletes the challenge and reports whether this
	// call removed it.
	ConsumeLoginChallenge(ctx context.Context, id string) (bool, error)

	DeleteExpiredLoginChallenges(ctx context.Context) (int64, error)
}
