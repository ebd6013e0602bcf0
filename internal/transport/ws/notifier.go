package ws

import (
	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyNewMessage(msg *domain.Message) {
	n.publish(msg.ChannelID, EventTypeMessageReceived, MessagePayload{Message: *msg})
}

func (n *HubNotifier) NotifyEditedMessage(msg *domain.Message) {
	n.publish(msg.ChannelID, EventTypeMessageEdited, MessagePayload{Message: *msg})
}

func (n *HubNotifier) NotifyDeletedMessage(channelID, messageID uuid.UUID) {
	n.publish(channelID, EventTypeMessageDeleted, MessageDeletedPayload{ID: messageID, ChannelID: channelID})
}

func (n *HubNotifier) NotifyMessagesRead(channelID, userID uuid.UUID) {
	n.publish(channelID, EventTypeMessagesMarkedRead, MessagesReadPayload{ChannelID: channelID, UserID: userID})
}

func (n *HubNotifier) NotifyChannelEdited(ch *domain.Channel) {
	n.publish(ch.ID, EventTypeChannelEdited, ChannelPayload{Channel: *ch})
}

func (n *HubNotifier) NotifyChannelDeleted(channelID uuid.UUID) {
	n.publish(channelID, EventTypeChannelDeleted, ChannelDeletedPayload{ChannelID: channelID})
}

func (n *HubNotifier) publish(channelID uuid.UUID, eventType string, payload any) {
	evt, err := NewEvent(eventType, &channelID, payload)
	if err != nil {
		n.hub.log.Error().Err(err).Str("type", eventType).Msg("marshal event")
		return
	}
	n.hub.Publish(channelID, evt, "")
}
