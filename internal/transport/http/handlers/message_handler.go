package handlers

import (
	"net/http"
	"strconv"

	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/internal/transport/http/middleware"
	"github.com/vedran77/pulseboard/pkg/validator"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r, "channel")
	if !ok {
		return
	}

	var input service.SendMessageInput
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), identity, channelID, input)
	if err != nil {
		writeServiceError(w, r, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// List returns the latest messages of a channel and marks them read for
// the caller.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r, "channel")
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			errs := validator.ValidationErrors{}
			errs.Add("limit", "limit must be a positive integer")
			writeValidationErrors(w, "Invalid input", errs)
			return
		}
		limit = l
	}

	messages, err := h.messageService.History(r.Context(), identity, channelID, limit)
	if err != nil {
		writeServiceError(w, r, "list messages", err)
		return
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	messageID, ok := pathID(w, r, "message")
	if !ok {
		return
	}

	var input service.EditMessageInput
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messageService.Edit(r.Context(), identity, messageID, input)
	if err != nil {
		writeServiceError(w, r, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	messageID, ok := pathID(w, r, "message")
	if !ok {
		return
	}

	if err := h.messageService.Delete(r.Context(), identity, messageID); err != nil {
		writeServiceError(w, r, "delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	total, err := h.messageService.UnreadTotal(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, "unread total", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"unread": total})
}
