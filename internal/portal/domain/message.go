package domain

import "time"

type ChatMessage struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID *string    `json:"recipient_id"` // nil broadcasts to admins
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Broadcast reports whether the message is addressed to the admin pool.
func (m ChatMessage) Broadcast() bool { return m.RecipientID == nil }
