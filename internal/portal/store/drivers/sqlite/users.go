package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
)

const userColumns = `id, email, username, password_hash, role, is_active,
	two_factor_state, two_factor_secret, created_at, updated_at`

type usersRepo struct {
	db  dbtx
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                  domain.User
		passwordHash       sql.NullString
		secret             sql.NullString
		role, state        string
		createdAt, updated int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &passwordHash, &role, &u.IsActive,
		&state, &secret, &createdAt, &updated)
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	u.PasswordHash = nullStringPtr(passwordHash)
	u.Role = domain.Role(role)
	u.TwoFactorState = domain.TwoFactorState(state)
	u.TwoFactorSecret = nullStringPtr(secret)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

func (r *usersRepo) getBy(ctx context.Context, column, value string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	return scanUser(row)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *usersRepo) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ? AND is_active = 1 ORDER BY created_at, id`,
		string(role))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, mapErr(rows.Err())
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := toMillis(r.now())
	state := u.TwoFactorState
	if state == "" {
		state = domain.TwoFactorDisabled
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, role, is_active,
			two_factor_state, two_factor_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, optionalString(u.PasswordHash), string(u.Role), u.IsActive,
		string(state), optionalString(u.TwoFactorSecret), now, now)
	return mapErr(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Email != nil {
		sets, args = append(sets, "email = ?"), append(args, *patch.Email)
	}
	if patch.Username != nil {
		sets, args = append(sets, "username = ?"), append(args, *patch.Username)
	}
	if patch.PasswordHash != nil {
		sets, args = append(sets, "password_hash = ?"), append(args, optionalString(*patch.PasswordHash))
	}
	if patch.Role != nil {
		sets, args = append(sets, "role = ?"), append(args, string(*patch.Role))
	}
	if patch.IsActive != nil {
		sets, args = append(sets, "is_active = ?"), append(args, *patch.IsActive)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, toMillis(r.now()))
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return mapErr(err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, mapErr(err)
	}
	return count == 0, nil
}

func (r *usersRepo) BeginTwoFactor(ctx context.Context, userID, secret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET two_factor_state = 'pending', two_factor_secret = ?, updated_at = ?
		WHERE id = ? AND two_factor_state != 'enabled'`,
		secret, toMillis(r.now()), userID)
	if err != nil {
		return mapErr(err)
	}
	return r.conditional(ctx, res, userID)
}

func (r *usersRepo) EnableTwoFactor(ctx context.Context, userID, secret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET two_factor_state = 'enabled', updated_at = ?
		WHERE id = ? AND two_factor_state = 'pending' AND two_factor_secret = ?`,
		toMillis(r.now()), userID, secret)
	if err != nil {
		return mapErr(err)
	}
	return r.conditional(ctx, res, userID)
}

func (r *usersRepo) DisableTwoFactor(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET two_factor_state = 'disabled', two_factor_secret = NULL, updated_at = ?
		WHERE id = ?`,
		toMillis(r.now()), userID)
	if err != nil {
		return mapErr(err)
	}
	return r.conditional(ctx, res, userID)
}

// conditional turns a zero-row update into ErrNotFound or ErrConflict.
func (r *usersRepo) conditional(ctx context.Context, res sql.Result, userID string) error {
	ok, err := affectedOne(res)
	if err != nil || ok {
		return err
	}
	if _, err := r.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return store.ErrConflict
}
