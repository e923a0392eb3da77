package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/slogx"
)

// Client to server frame types.
const (
	FrameMessage = "message"
	FrameTyping  = "typing"
	FrameRead    = "read"
	FramePing    = "ping"
)

// Frame is what clients send.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type messageFrame struct {
	Content     string  `json:"content"`
	RecipientID *string `json:"recipient_id"`
}

type typingFrame struct {
	RecipientID *string `json:"recipient_id"`
	IsTyping    bool    `json:"is_typing"`
}

type readFrame struct {
	MessageID string `json:"message_id"`
}

// Relay is the message side the handler forwards frames to.
type Relay interface {
	Submit(ctx context.Context, senderID, content string, recipientID *string) (domain.ChatMessage, error)
	MarkRead(ctx context.Context, messageID, readerID string, readerRole domain.Role) error
	Typing(ctx context.Context, senderID string, recipientID *string, isTyping bool) error
}

// Handler authenticates and upgrades /v1/realtime requests, then pumps
// frames between the socket and the relay.
type Handler struct {
	Registry *Registry
	Relay    Relay
	Verifier httpx.AccessVerifier

	// Exposed lists the errors whose text may be sent back to the client as
	// an error event code. Anything else is reported as server_error.
	Exposed []error

	// OnFrame, when set, is told the type of each accepted client frame.
	OnFrame func(frameType string)

	upgrader websocket.Upgrader
}

// NewHandler builds a handler. An empty allowedOrigins list accepts
// same-origin requests only.
func NewHandler(reg *Registry, relay Relay, verifier httpx.AccessVerifier, allowedOrigins []string) *Handler {
	h := &Handler{Registry: reg, Relay: relay, Verifier: verifier}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		}
	}
	return h
}

// tokenFromRequest prefers the bearer header and falls back to ?token=.
func tokenFromRequest(r *http.Request) string {
	if tok := httpx.BearerToken(r); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	raw := tokenFromRequest(r)
	if raw == "" {
		httpx.ErrInvalidToken.WithDescription("missing access token").WriteError(w)
		return
	}
	payload, err := h.Verifier.VerifyAccessToken(raw)
	if err != nil {
		desc := "invalid access token"
		if errors.Is(err, jwtx.ErrTokenExpired) {
			desc = "token expired"
		}
		httpx.ErrInvalidToken.WithDescription(desc).WriteError(w)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		l.Info("websocket upgrade failed", slog.Any("error", err))
		return
	}

	conn := newWSConn(ws, idx.New().String(), payload.UserID)
	l = l.With(slog.String("conn_id", conn.ID()), slog.String("user_id", payload.UserID))
	ctx := slogx.WithContext(context.WithoutCancel(r.Context()), l)

	ws.SetReadLimit(maxFrameSize)
	ws.SetPongHandler(func(string) error {
		h.Registry.Ack(conn.ID())
		return nil
	})

	h.Registry.Register(conn)
	defer func() {
		h.Registry.Unregister(conn.ID())
		_ = conn.Close()
		l.Info("realtime connection closed")
	}()

	l.Info("realtime connection opened")
	_ = conn.Send(domain.Event{Type: domain.EventConnected, Data: domain.ConnectedEvent{
		ConnectionID: conn.ID(),
		UserID:       payload.UserID,
		Role:         domain.Role(payload.Role),
	}})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Debug("realtime read ended", slog.Any("error", err))
			}
			return
		}
		h.Registry.Ack(conn.ID())

		var f Frame
		if msgType != websocket.TextMessage || strictUnmarshal(data, &f) != nil {
			_ = conn.Send(errorEvent(errBadFrame.Error(), "frame is not valid JSON"))
			continue
		}
		h.dispatch(ctx, conn, payload, f)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn Conn, who jwtx.AccessPayload, f Frame) {
	var err error
	switch f.Type {
	case FramePing:
		err = conn.Send(domain.Event{Type: domain.EventPong})
	case FrameMessage:
		var m messageFrame
		if err = decodeFrame(f, &m); err == nil {
			_, err = h.Relay.Submit(ctx, who.UserID, m.Content, m.RecipientID)
		}
	case FrameTyping:
		var t typingFrame
		if err = decodeFrame(f, &t); err == nil {
			err = h.Relay.Typing(ctx, who.UserID, t.RecipientID, t.IsTyping)
		}
	case FrameRead:
		var rf readFrame
		if err = decodeFrame(f, &rf); err == nil {
			err = h.Relay.MarkRead(ctx, rf.MessageID, who.UserID, domain.Role(who.Role))
		}
	default:
		_ = conn.Send(errorEvent("unknown_frame", "unknown frame type "+f.Type))
		return
	}

	if h.OnFrame != nil {
		h.OnFrame(f.Type)
	}
	if err != nil {
		slogx.FromContext(ctx).Info("realtime frame rejected",
			slog.String("frame", f.Type),
			slog.Any("error", err),
		)
		_ = conn.Send(h.frameError(err))
	}
}

var errBadFrame = errors.New("invalid_frame")

func decodeFrame(f Frame, v any) error {
	if len(f.Data) == 0 {
		return errBadFrame
	}
	if err := strictUnmarshal(f.Data, v); err != nil {
		return errBadFrame
	}
	return nil
}

// strictUnmarshal rejects unknown fields, so a misspelled recipient_id
// fails instead of turning a direct message into a broadcast.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errBadFrame
	}
	return nil
}

func errorEvent(code, msg string) domain.Event {
	return domain.Event{Type: domain.EventError, Data: domain.ErrorEvent{Code: code, Message: msg}}
}

// frameError reports exposed errors by their text and hides the rest.
func (h *Handler) frameError(err error) domain.Event {
	if errors.Is(err, errBadFrame) {
		return errorEvent(errBadFrame.Error(), "frame data is missing or malformed")
	}
	for _, known := range h.Exposed {
		if errors.Is(err, known) {
			return errorEvent(known.Error(), known.Error())
		}
	}
	return errorEvent("server_error", "request failed")
}
