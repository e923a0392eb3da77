package sqlite

import (
	"context"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if err := r.DeleteAllBackupCodes(ctx, userID); err != nil {
		return err
	}
	for i, h := range hashes {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, position, code_hash) VALUES (?, ?, ?)`,
			userID, i, h)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *backupCodesRepo) ListBackupCodes(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code_hash FROM backup_codes WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, mapErr(err)
		}
		hashes = append(hashes, h)
	}
	return hashes, mapErr(rows.Err())
}

// ConsumeBackupCode is a single conditional DELETE, so sqlite's write lock
// decides which of two racing callers removes the row.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`, userID, hash)
	if err != nil {
		return false, mapErr(err)
	}
	return affectedOne(res)
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID).Scan(&n)
	return n, mapErr(err)
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return mapErr(err)
}
