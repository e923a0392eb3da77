package http

import (
	"net/http"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/realtime"
	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/estatevault/portal/pkg/portalsdk"
)

// MessagesHandler lets clients without an open socket submit messages and
// read receipts. Delivery still happens over the realtime connections.
type MessagesHandler struct {
	Relay   *service.RelayService
	Metrics *metricsx.Metrics
}

func messageResponse(m domain.ChatMessage) portalsdk.MessageResponse {
	return portalsdk.MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
	}
}

// HandleSend handles POST /v1/messages
//
//	@Summary		Send a message
//	@Description	Stores a message and delivers it to the recipient's open connections. Without a recipient it goes to every admin.
//	@Tags			Messages
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.SendMessageRequest	true	"Message"
//	@Success		201		{object}	portalsdk.MessageResponse		"Stored message"
//	@Failure		400		{object}	portalsdk.ErrorResponse			"Empty or too long content, or unknown recipient"
//	@Failure		401		{object}	portalsdk.ErrorResponse			"Invalid or missing access token"
//	@Router			/v1/messages [post].
func (h *MessagesHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.SendMessageRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	msg, err := h.Relay.Submit(r.Context(), httpx.UserIDFromContext(r.Context()), req.Content, req.RecipientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Metrics.ObserveMessage()
	httpx.WriteJSON(w, http.StatusCreated, messageResponse(msg))
}

// HandleMarkRead handles POST /v1/messages/{id}/read
//
//	@Summary		Mark a message read
//	@Description	Only the recipient may mark a direct message. Any admin may mark a broadcast. The sender gets a read receipt the first time.
//	@Tags			Messages
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Message id"
//	@Success		204	"Marked read"
//	@Failure		403	{object}	portalsdk.ErrorResponse	"Not the recipient"
//	@Failure		404	{object}	portalsdk.ErrorResponse	"Message not found"
//	@Router			/v1/messages/{id}/read [post].
func (h *MessagesHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if !idx.Valid(id) {
		writeError(w, r, service.ErrMessageNotFound)
		return
	}
	err := h.Relay.MarkRead(ctx, id, httpx.UserIDFromContext(ctx), domain.Role(httpx.RoleFromContext(ctx)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PresenceHandler godoc
//
//	@Summary		Realtime presence
//	@Description	Reports whether a user has an open realtime connection. Staff only.
//	@Tags			Messages
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string						true	"User id"
//	@Success		200	{object}	portalsdk.PresenceResponse	"Presence"
//	@Failure		403	{object}	portalsdk.ErrorResponse		"Not staff"
//	@Router			/v1/presence/{id} [get].
func PresenceHandler(reg *realtime.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		httpx.WriteJSON(w, http.StatusOK, portalsdk.PresenceResponse{UserID: id, Online: reg.Online(id)})
	}
}
