package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/repository/memory"
)

type recordedEvent struct {
	kind      string
	channelID uuid.UUID
	messageID uuid.UUID
	userID    uuid.UUID
	createdAt time.Time
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) add(e recordedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) all() []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedEvent(nil), n.events...)
}

func (n *recordingNotifier) ofKind(kind string) []recordedEvent {
	var out []recordedEvent
	for _, e := range n.all() {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) NotifyNewMessage(msg *domain.Message) {
	n.add(recordedEvent{kind: "new", channelID: msg.ChannelID, messageID: msg.ID, createdAt: msg.CreatedAt})
}

func (n *recordingNotifier) NotifyEditedMessage(msg *domain.Message) {
	n.add(recordedEvent{kind: "edited", channelID: msg.ChannelID, messageID: msg.ID})
}

func (n *recordingNotifier) NotifyDeletedMessage(channelID, messageID uuid.UUID) {
	n.add(recordedEvent{kind: "deleted", channelID: channelID, messageID: messageID})
}

func (n *recordingNotifier) NotifyMessagesRead(channelID, userID uuid.UUID) {
	n.add(recordedEvent{kind: "read", channelID: channelID, userID: userID})
}

func (n *recordingNotifier) NotifyChannelEdited(ch *domain.Channel) {
	n.add(recordedEvent{kind: "channel_edited", channelID: ch.ID})
}

func (n *recordingNotifier) NotifyChannelDeleted(channelID uuid.UUID) {
	n.add(recordedEvent{kind: "channel_deleted", channelID: channelID})
}

type testEnv struct {
	store    *memory.Store
	channels *ChannelService
	messages *MessageService
	notifier *recordingNotifier

	admin domain.Identity
	alice domain.Identity
	bob   domain.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	env := &testEnv{
		store:    store,
		channels: NewChannelService(store.Channels(), store.Messages(), store.Projects()),
		messages: NewMessageService(store.Messages(), store.Channels(), store.Users()),
		notifier: &recordingNotifier{},
		admin:    domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin},
		alice:    domain.Identity{UserID: uuid.New(), Role: domain.RoleMember},
		bob:      domain.Identity{UserID: uuid.New(), Role: domain.RoleMember},
	}
	env.channels.SetNotifier(env.notifier)
	env.messages.SetNotifier(env.notifier)

	store.PutUser(domain.User{ID: env.admin.UserID, Name: "Ada Admin", Role: domain.RoleAdmin})
	store.PutUser(domain.User{ID: env.alice.UserID, Name: "Alice", Role: domain.RoleMember})
	store.PutUser(domain.User{ID: env.bob.UserID, Name: "Bob", Role: domain.RoleMember})
	return env
}

func (e *testEnv) createChannel(t *testing.T, by domain.Identity, name string, private bool, members ...uuid.UUID) *domain.Channel {
	t.Helper()
	ch, err := e.channels.Create(context.Background(), by, CreateChannelInput{
		Name:      name,
		IsPrivate: private,
		MemberIDs: members,
	})
	require.NoError(t, err)
	return ch
}

func (e *testEnv) send(t *testing.T, by domain.Identity, channelID uuid.UUID, text string) *domain.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), by, channelID, SendMessageInput{Text: text})
	require.NoError(t, err)
	return msg
}
