package domain

import "time"

// EventType names a server-to-client realtime event.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventMessage     EventType = "message"
	EventMessageSent EventType = "message_sent"
	EventTyping      EventType = "typing"
	EventRead        EventType = "read"
	EventPresence    EventType = "presence"
	EventPong        EventType = "pong"
	EventError       EventType = "error"
)

// Event is one frame pushed over a realtime connection.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

type TypingEvent struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type ReadEvent struct {
	MessageID string    `json:"message_id"`
	ReaderID  string    `json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}

type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type ConnectedEvent struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	Role         Role   `json:"role"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
