package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/slogx"
)

const MaxMessageLength = 4000

// Notifier delivers an event to every live connection of a user and returns
// how many connections got it. Offline users are skipped.
type Notifier interface {
	SendTo(userID string, ev domain.Event) int
}

// RelayService persists chat messages and fans them out to live connections.
type RelayService struct {
	Store     store.Store
	Directory *AdminDirectory
	Notifier  Notifier
	Now       func() time.Time
}

func (s *RelayService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Submit stores a message and delivers it. A nil recipientID broadcasts to
// every active admin. The sender always gets a message_sent echo.
func (s *RelayService) Submit(ctx context.Context, senderID, content string, recipientID *string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ChatMessage{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return domain.ChatMessage{}, ErrContentTooLong
	}
	if recipientID != nil {
		if err := s.checkRecipient(ctx, senderID, *recipientID); err != nil {
			return domain.ChatMessage{}, err
		}
	}

	now := s.now()
	msg := domain.ChatMessage{
		ID:          idx.NewAt(now).String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   now,
	}
	if err := s.Store.Messages().CreateMessage(ctx, msg); err != nil {
		return domain.ChatMessage{}, storeErr("create message", err)
	}

	targets, err := s.recipients(ctx, senderID, recipientID)
	if err != nil {
		// Persisted already; the recipients will see it on next fetch.
		slogx.FromContext(ctx).Warn("message recipients unresolved",
			slog.String("message_id", msg.ID),
			slog.Any("error", err),
		)
	}

	delivered := 0
	for _, id := range targets {
		delivered += s.Notifier.SendTo(id, domain.Event{Type: domain.EventMessage, Data: msg})
	}
	s.Notifier.SendTo(senderID, domain.Event{Type: domain.EventMessageSent, Data: msg})

	slogx.FromContext(ctx).Debug("message relayed",
		slog.String("message_id", msg.ID),
		slog.Bool("broadcast", msg.Broadcast()),
		slog.Int("delivered", delivered),
	)
	return msg, nil
}

func (s *RelayService) checkRecipient(ctx context.Context, senderID, recipientID string) error {
	if recipientID == "" || recipientID == senderID {
		return ErrUnknownRecipient
	}
	u, err := s.Store.Users().GetUserByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownRecipient
		}
		return storeErr("get recipient", err)
	}
	if !u.IsActive {
		return ErrUnknownRecipient
	}
	return nil
}

// recipients resolves the delivery set, never including the sender.
func (s *RelayService) recipients(ctx context.Context, senderID string, recipientID *string) ([]string, error) {
	if recipientID != nil {
		return []string{*recipientID}, nil
	}
	admins, err := s.Directory.Admins(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(admins))
	for _, id := range admins {
		if id != senderID {
			out = append(out, id)
		}
	}
	return out, nil
}

// MarkRead flags a message read by its recipient and sends a read receipt to
// the sender. Any admin may mark a broadcast message. Marking an already
// read message is a no-op.
func (s *RelayService) MarkRead(ctx context.Context, messageID, readerID string, readerRole domain.Role) error {
	msg, err := s.Store.Messages().GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return storeErr("get message", err)
	}

	switch {
	case msg.Broadcast():
		if readerRole != domain.RoleAdmin || readerID == msg.SenderID {
			return ErrNotRecipient
		}
	case *msg.RecipientID != readerID:
		return ErrNotRecipient
	}

	at := s.now()
	changed, err := s.Store.Messages().MarkMessageRead(ctx, messageID, at)
	if err != nil {
		return storeErr("mark read", err)
	}
	if !changed {
		return nil
	}

	s.Notifier.SendTo(msg.SenderID, domain.Event{
		Type: domain.EventRead,
		Data: domain.ReadEvent{MessageID: messageID, ReaderID: readerID, ReadAt: at},
	})
	return nil
}

// Typing relays an ephemeral typing indicator. Nothing is stored.
func (s *RelayService) Typing(ctx context.Context, senderID string, recipientID *string, isTyping bool) error {
	if recipientID != nil && (*recipientID == "" || *recipientID == senderID) {
		return ErrUnknownRecipient
	}
	targets, err := s.recipients(ctx, senderID, recipientID)
	if err != nil {
		return err
	}
	ev := domain.Event{Type: domain.EventTyping, Data: domain.TypingEvent{UserID: senderID, IsTyping: isTyping}}
	for _, id := range targets {
		s.Notifier.SendTo(id, ev)
	}
	return nil
}

// Presence tells the admins that userID came online or went offline, and
// when userID is an admin, also the users it has exchanged messages with.
// It is called when a user's first connection opens or the last one closes.
func (s *RelayService) Presence(ctx context.Context, userID string, online bool) {
	l := slogx.FromContext(ctx)
	admins, err := s.recipients(ctx, userID, nil)
	if err != nil {
		l.Warn("presence not delivered",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}

	targets := admins
	if s.isAdmin(ctx, userID) {
		peers, err := s.Store.Messages().ListCorrespondents(ctx, userID)
		if err != nil {
			// Admins are still told.
			l.Warn("presence correspondents unresolved",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
		targets = mergeIDs(admins, peers, userID)
	}

	ev := domain.Event{Type: domain.EventPresence, Data: domain.PresenceEvent{UserID: userID, Online: online}}
	for _, id := range targets {
		s.Notifier.SendTo(id, ev)
	}
}

func (s *RelayService) isAdmin(ctx context.Context, userID string) bool {
	admins, err := s.Directory.Admins(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(admins, userID)
}

// mergeIDs returns a followed by the members of b not in a, without self.
func mergeIDs(a, b []string, self string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range slices.Concat(a, b) {
		if _, ok := seen[id]; ok || id == self {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
