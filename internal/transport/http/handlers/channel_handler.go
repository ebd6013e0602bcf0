package handlers

import (
	"net/http"

	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/internal/transport/http/middleware"
)

type ChannelHandler struct {
	channelService *service.ChannelService
}

func NewChannelHandler(channelService *service.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService}
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	channels, err := h.channelService.ListVisible(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, "list channels", err)
		return
	}

	if channels == nil {
		channels = []domain.ChannelSummary{}
	}

	writeJSON(w, http.StatusOK, channels)
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var input service.CreateChannelInput
	if !decodeJSON(w, r, &input) {
		return
	}

	ch, err := h.channelService.Create(r.Context(), identity, input)
	if err != nil {
		writeServiceError(w, r, "create channel", err)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r, "channel")
	if !ok {
		return
	}

	ch, err := h.channelService.Get(r.Context(), identity, channelID)
	if err != nil {
		writeServiceError(w, r, "get channel", err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r, "channel")
	if !ok {
		return
	}

	var input service.UpdateChannelInput
	if !decodeJSON(w, r, &input) {
		return
	}

	ch, err := h.channelService.Update(r.Context(), identity, channelID, input)
	if err != nil {
		writeServiceError(w, r, "update channel", err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

// Delete soft-deletes the channel together with its messages.
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r, "channel")
	if !ok {
		return
	}

	if err := h.channelService.Delete(r.Context(), identity, channelID); err != nil {
		writeServiceError(w, r, "delete channel", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
