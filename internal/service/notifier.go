package service

import (
	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
)

// Notifier broadcasts real-time events to connected clients. Calls happen
// after the change is persisted and must not block on slow subscribers.
type Notifier interface {
	NotifyNewMessage(msg *domain.Message)
	NotifyEditedMessage(msg *domain.Message)
	NotifyDeletedMessage(channelID, messageID uuid.UUID)
	NotifyMessagesRead(channelID, userID uuid.UUID)
	NotifyChannelEdited(ch *domain.Channel)
	NotifyChannelDeleted(channelID uuid.UUID)
}

type nopNotifier struct{}

func (nopNotifier) NotifyNewMessage(*domain.Message) {}
func (nopNotifier) NotifyEditedMessage(*domain.Message) {}
func (nopNotifier) NotifyDeletedMessage(uuid.UUID, uuid.UUID) {}
func (nopNotifier) NotifyMessagesRead(uuid.UUID, uuid.UUID) {}
func (nopNotifier) NotifyChannelEdited(*domain.Channel) {}
func (nopNotifier) NotifyChannelDeleted(uuid.UUID) {}
