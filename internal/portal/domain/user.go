package domain

import "time"

type Role string

const (
	RoleClient  Role = "client"
	RoleAdmin   Role = "admin"
	RoleSupport Role = "support"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

// TwoFactorState is the enrollment state of a user's second factor.
// A secret is stored exactly when the state is not disabled.
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	TwoFactorPending  TwoFactorState = "pending"
	TwoFactorEnabled  TwoFactorState = "enabled"
)

type User struct {
	ID       string
	Email    string
	Username string

	// PasswordHash is nil when password login is disabled for the account.
	PasswordHash *string

	Role     Role
	IsActive bool

	TwoFactorState  TwoFactorState
	TwoFactorSecret *string // base32, set while pending or enabled

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorEnabled reports whether logins must pass a second factor.
func (u User) TwoFactorEnabled() bool {
	return u.TwoFactorState == TwoFactorEnabled && u.TwoFactorSecret != nil
}

// UserPatch carries optional field updates. Nil fields are left alone. 2FA
// fields are not patchable; they only move through the enrollment operations.
type UserPatch struct {
	Email        *string
	Username     *string
	PasswordHash **string
	Role         *Role
	IsActive     *bool
}
