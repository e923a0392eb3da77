package sqlite

import (
	"context"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
)

type refreshSessionsRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *refreshSessionsRepo) CreateRefreshSession(ctx context.Context, s domain.RefreshSession) error {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.TokenHash, s.UserID, toMillis(s.ExpiresAt), s.Revoked, toMillis(createdAt))
	return mapErr(err)
}

func (r *refreshSessionsRepo) GetRefreshSession(ctx context.Context, tokenHash string) (domain.RefreshSession, error) {
	var (
		s                    domain.RefreshSession
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, expires_at, revoked, created_at
		FROM refresh_sessions WHERE token_hash = ?`, tokenHash).
		Scan(&s.TokenHash, &s.UserID, &expiresAt, &s.Revoked, &createdAt)
	if err != nil {
		return domain.RefreshSession{}, mapErr(err)
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *refreshSessionsRepo) RevokeRefreshSession(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked = 1
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		tokenHash, toMillis(r.now()))
	if err != nil {
		return false, mapErr(err)
	}
	return affectedOne(res)
}

func (r *refreshSessionsRepo) RevokeAllUserRefreshSessions(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapErr(err)
}

func (r *refreshSessionsRepo) DeleteExpiredRefreshSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at <= ?`, toMillis(r.now()))
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapErr(err)
}
