package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/pkg/validator"
)

// Event types - Client → Server
const (
	EventTypeJoin          = "join"
	EventTypeLeave         = "leave"
	EventTypeSendMessage   = "sendMessage"
	EventTypeEditMessage   = "editMessage"
	EventTypeDeleteMessage = "deleteMessage"
	EventTypeEditChannel   = "editChannel"
	EventTypeDeleteChannel = "deleteChannel"
	EventTypeTyping        = "typing"
	EventTypeStopTyping    = "stopTyping"
	EventTypePing          = "ping"
)

// Event types - Server → Client
const (
	EventTypeMessageReceived    = "messageReceived"
	EventTypeMessageEdited      = "messageEdited"
	EventTypeMessageDeleted     = "messageDeleted"
	EventTypeChannelEdited      = "channelEdited"
	EventTypeChannelDeleted     = "channelDeleted"
	EventTypeUserTyping         = "userTyping"
	EventTypeUserStoppedTyping  = "userStoppedTyping"
	EventTypeMessagesMarkedRead = "messagesMarkedRead"
	EventTypePong               = "pong"
	EventTypeError              = "error"
)

// Event is the base envelope for all WebSocket messages. Ref is chosen by
// the client and echoed on the error event a command produces.
type Event struct {
	Type      string          `json:"type"`
	ChannelID *uuid.UUID      `json:"channel_id,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type EditMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Text      string    `json:"text"`
}

type DeleteMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type TypingRequestPayload struct {
	DisplayName string `json:"display_name,omitempty"`
}

// --- Server → Client payloads ---

type MessagePayload struct {
	domain.Message
}

type MessageDeletedPayload struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
}

type ChannelPayload struct {
	domain.Channel
}

type ChannelDeletedPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

type TypingPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

type MessagesReadPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
}

type ErrorPayload struct {
	Code    string                     `json:"code"`
	Message string                     `json:"message"`
	Fields  validator.ValidationErrors `json:"fields,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, channelID *uuid.UUID, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Event{
		Type:      eventType,
		ChannelID: channelID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
