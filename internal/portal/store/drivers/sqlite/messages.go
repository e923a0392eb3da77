package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
)

type messagesRepo struct {
	db dbtx
}

func (r *messagesRepo) CreateMessage(ctx context.Context, m domain.ChatMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, optionalString(m.RecipientID), m.Content, m.IsRead, toMillis(m.CreatedAt))
	return mapErr(err)
}

func (r *messagesRepo) GetMessage(ctx context.Context, id string) (domain.ChatMessage, error) {
	var (
		m         domain.ChatMessage
		recipient sql.NullString
		readAt    sql.NullInt64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sender_id, recipient_id, content, is_read, read_at, created_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.SenderID, &recipient, &m.Content, &m.IsRead, &readAt, &createdAt)
	if err != nil {
		return domain.ChatMessage{}, mapErr(err)
	}
	m.RecipientID = nullStringPtr(recipient)
	m.ReadAt = nullMillis(readAt)
	m.CreatedAt = fromMillis(createdAt)
	return m, nil
}

func (r *messagesRepo) MarkMessageRead(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0`,
		toMillis(at), id)
	if err != nil {
		return false, mapErr(err)
	}
	return affectedOne(res)
}

func (r *messagesRepo) ListCorrespondents(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recipient_id FROM messages WHERE sender_id = ? AND recipient_id IS NOT NULL
		UNION
		SELECT sender_id FROM messages WHERE recipient_id = ?
		UNION
		SELECT sender_id FROM messages WHERE recipient_id IS NULL AND sender_id <> ?`,
		userID, userID, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr(err)
		}
		ids = append(ids, id)
	}
	return ids, mapErr(rows.Err())
}
