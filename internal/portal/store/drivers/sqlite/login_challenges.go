package sqlite

import (
	"context"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
)

type loginChallengesRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *loginChallengesRepo) CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_challenges (id, user_id, attempts, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Attempts, toMillis(c.ExpiresAt), toMillis(createdAt))
	return mapErr(err)
}

func (r *loginChallengesRepo) GetLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, attempts, expires_at, created_at
		FROM login_challenges WHERE id = ? AND expires_at > ?`,
		id, toMillis(r.now()))
	return scanChallenge(row)
}

func (r *loginChallengesRepo) IncrementLoginChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE login_challenges SET attempts = attempts + 1
		WHERE id = ? AND expires_at > ?
		RETURNING id, user_id, attempts, expires_at, created_at`,
		id, toMillis(r.now()))
	return scanChallenge(row)
}

func (r *loginChallengesRepo) ConsumeLoginChallenge(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE id = ? AND expires_at > ?`, id, toMillis(r.now()))
	if err != nil {
		return false, mapErr(err)
	}
	return affectedOne(res)
}

func (r *loginChallengesRepo) DeleteExpiredLoginChallenges(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE expires_at <= ?`, toMillis(r.now()))
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapErr(err)
}

func scanChallenge(row rowScanner) (domain.LoginChallenge, error) {
	var (
		c                    domain.LoginChallenge
		expiresAt, createdAt int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Attempts, &expiresAt, &createdAt); err != nil {
		return domain.LoginChallenge{}, mapErr(err)
	}
	c.ExpiresAt = fromMillis(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}
