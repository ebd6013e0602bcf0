package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/internal/transport/ws"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []*ws.Event
	sendErr error
	inbox   chan *ws.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan *ws.Event, 16)}
}

func (f *fakeTransport) Send(_ context.Context, evt *ws.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, evt)
	return nil
}

func (f *fakeTransport) Read(ctx context.Context) (*ws.Event, error) {
	select {
	case evt, ok := <-f.inbox:
		if !ok {
			return nil, io.EOF
		}
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, e := range f.sent {
		out[i] = e.Type
	}
	return out
}

func (f *fakeTransport) last() *ws.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func newTestSession(t *testing.T, tr *fakeTransport) (*Session, uuid.UUID) {
	t.Helper()
	self := uuid.New()
	s := NewSession(SessionConfig{
		Conn:           tr,
		UserID:         self,
		Log:            zerolog.Nop(),
		TypingThrottle: time.Hour,
		TypingIdle:     30 * time.Millisecond,
	})
	return s, self
}

// open selects a channel without the REST round trip.
func open(s *Session, channelID uuid.UUID, history ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := channelID
	s.selected = &id
	s.messages.Reset(history)
}

func pushed(t *testing.T, eventType string, channelID uuid.UUID, ref string, payload any) *ws.Event {
	t.Helper()
	evt, err := ws.NewEvent(eventType, &channelID, payload)
	require.NoError(t, err)
	evt.Ref = ref
	return evt
}

func TestSend_Validation(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)

	s.SetDraft("hello")
	assert.ErrorIs(t, s.Send(context.Background()), ErrNoChannel)

	open(s, uuid.New())
	s.SetDraft("   ")
	assert.ErrorIs(t, s.Send(context.Background()), ErrEmptyText)
	assert.Empty(t, tr.types())
}

func TestSend_StopsTypingAndClearsComposer(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)
	channelID := uuid.New()
	target := uuid.New()
	open(s, channelID)

	require.NoError(t, s.Keystroke(context.Background()))
	s.SetDraft("hello")
	s.ReplyTo(&target)
	require.NoError(t, s.Send(context.Background()))

	assert.Equal(t, []string{ws.EventTypeTyping, ws.EventTypeStopTyping, ws.EventTypeSendMessage}, tr.types())
	sent := tr.last()
	assert.Equal(t, channelID, *sent.ChannelID)
	assert.NotEmpty(t, sent.Ref)

	var input service.SendMessageInput
	require.NoError(t, json.Unmarshal(sent.Payload, &input))
	assert.Equal(t, "hello", input.Text)
	assert.Equal(t, &target, input.ReplyToID)

	assert.Empty(t, s.Draft())
	assert.Nil(t, s.ReplyTarget())

	// The idle timer was cancelled by the send.
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, tr.types(), 3)
}

func TestSend_ErrorRestoresDraft(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)
	channelID := uuid.New()
	open(s, channelID)

	s.SetDraft("too long")
	require.NoError(t, s.Send(context.Background()))
	ref := tr.last().Ref

	s.Apply(pushed(t, ws.EventTypeError, channelID, "other", ws.ErrorPayload{Code: "VALIDATION_ERROR"}))
	assert.Empty(t, s.Draft())

	s.Apply(pushed(t, ws.EventTypeError, channelID, ref, ws.ErrorPayload{Code: "VALIDATION_ERROR", Message: "Invalid input"}))
	assert.Equal(t, "too long", s.Draft())
	require.NotNil(t, s.LastError())
	assert.Equal(t, "VALIDATION_ERROR", s.LastError().Code)
}

func TestSend_TransportFailureRestoresDraft(t *testing.T) {
	tr := newFakeTransport()
	tr.sendErr = errors.New("closed")
	s, _ := newTestSession(t, tr)
	open(s, uuid.New())

	s.SetDraft("hello")
	assert.Error(t, s.Send(context.Background()))
	assert.Equal(t, "hello", s.Draft())
}

func TestKeystroke_ThrottleAndIdleStop(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)
	open(s, uuid.New())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Keystroke(context.Background()))
	}
	assert.Equal(t, []string{ws.EventTypeTyping}, tr.types())

	require.Eventually(t, func() bool {
		return len(tr.types()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, ws.EventTypeStopTyping, tr.last().Type)

	// Typing again after the stop announces again.
	require.NoError(t, s.Keystroke(context.Background()))
	assert.Equal(t, ws.EventTypeTyping, tr.types()[2])
}

func TestKeystroke_RequiresChannel(t *testing.T) {
	s, _ := newTestSession(t, newFakeTransport())
	assert.ErrorIs(t, s.Keystroke(context.Background()), ErrNoChannel)
}

func TestApply_MessageEvents(t *testing.T) {
	s, _ := newTestSession(t, newFakeTransport())
	channelID := uuid.New()
	first := domain.Message{ID: uuid.New(), ChannelID: channelID, Text: "one"}
	open(s, channelID, first)

	second := domain.Message{ID: uuid.New(), ChannelID: channelID, Text: "two"}
	s.Apply(pushed(t, ws.EventTypeMessageReceived, channelID, "", ws.MessagePayload{Message: second}))
	s.Apply(pushed(t, ws.EventTypeMessageReceived, channelID, "", ws.MessagePayload{Message: second}))
	s.Apply(pushed(t, ws.EventTypeMessageReceived, channelID, "", ws.MessagePayload{Message: first}))
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, ids(s.Messages()))

	edited := first
	edited.Text = "uno"
	edited.IsEdited = true
	s.Apply(pushed(t, ws.EventTypeMessageEdited, channelID, "", ws.MessagePayload{Message: edited}))
	s.Apply(pushed(t, ws.EventTypeMessageEdited, channelID, "", ws.MessagePayload{Message: domain.Message{ID: uuid.New(), ChannelID: channelID}}))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "uno", msgs[0].Text)
	assert.True(t, msgs[0].IsEdited)

	s.Apply(pushed(t, ws.EventTypeMessageDeleted, channelID, "", ws.MessageDeletedPayload{ID: second.ID, ChannelID: channelID}))
	s.Apply(pushed(t, ws.EventTypeMessageDeleted, channelID, "", ws.MessageDeletedPayload{ID: second.ID, ChannelID: channelID}))
	assert.Equal(t, []uuid.UUID{first.ID}, ids(s.Messages()))
}

func TestApply_OtherChannelBumpsUnread(t *testing.T) {
	s, _ := newTestSession(t, newFakeTransport())
	selected, other := uuid.New(), uuid.New()
	s.channels.Reset([]domain.ChannelSummary{
		{Channel: domain.Channel{ID: selected}},
		{Channel: domain.Channel{ID: other}},
	})
	open(s, selected)

	msg := domain.Message{ID: uuid.New(), ChannelID: other, SenderID: uuid.New()}
	s.Apply(pushed(t, ws.EventTypeMessageReceived, other, "", ws.MessagePayload{Message: msg}))

	assert.Empty(t, s.Messages())
	ch, ok := s.channels.Get(other)
	require.True(t, ok)
	assert.Equal(t, int64(1), ch.UnreadCount)
}

func TestApply_ChannelDeletedClearsSelection(t *testing.T) {
	s, _ := newTestSession(t, newFakeTransport())
	channelID := uuid.New()
	s.channels.Reset([]domain.ChannelSummary{{Channel: domain.Channel{ID: channelID}}})
	open(s, channelID, domain.Message{ID: uuid.New(), ChannelID: channelID})

	s.Apply(pushed(t, ws.EventTypeChannelDeleted, channelID, "", ws.ChannelDeletedPayload{ChannelID: channelID}))

	_, ok := s.Selected()
	assert.False(t, ok)
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.Channels())
}

func TestApply_ChannelEditedPrivateWithoutSelf(t *testing.T) {
	s, _ := newTestSession(t, newFakeTransport())
	ch := domain.Channel{ID: uuid.New(), Name: "general"}
	s.channels.Reset([]domain.ChannelSummary{{Channel: ch}})
	open(s, ch.ID)

	ch.IsPrivate = true
	ch.Members = []uuid.UUID{uuid.New()}
	s.Apply(pushed(t, ws.EventTypeChannelEdited, ch.ID, "", ws.ChannelPayload{Channel: ch}))

	_, ok := s.Selected()
	assert.False(t, ok)
	assert.Empty(t, s.Channels())
}

func TestApply_Typing(t *testing.T) {
	s, self := newTestSession(t, newFakeTransport())
	channelID := uuid.New()
	open(s, channelID)
	alice := uuid.New()

	s.Apply(pushed(t, ws.EventTypeUserTyping, channelID, "", ws.TypingPayload{UserID: alice, DisplayName: "Alice"}))
	s.Apply(pushed(t, ws.EventTypeUserTyping, channelID, "", ws.TypingPayload{UserID: alice, DisplayName: "Alice"}))
	s.Apply(pushed(t, ws.EventTypeUserTyping, channelID, "", ws.TypingPayload{UserID: self}))
	s.Apply(pushed(t, ws.EventTypeUserTyping, uuid.New(), "", ws.TypingPayload{UserID: uuid.New()}))
	assert.Equal(t, []uuid.UUID{alice}, s.Typing())
	assert.Equal(t, []string{"Alice"}, s.TypingNames())

	s.Apply(pushed(t, ws.EventTypeUserStoppedTyping, channelID, "", ws.TypingPayload{UserID: alice}))
	assert.Empty(t, s.Typing())
}

func TestListen_ReturnsOnClose(t *testing.T) {
	tr := newFakeTransport()
	var seen []string
	s := NewSession(SessionConfig{
		Conn:    tr,
		UserID:  uuid.New(),
		Log:     zerolog.Nop(),
		OnEvent: func(evt ws.Event) { seen = append(seen, evt.Type) },
	})

	tr.inbox <- &ws.Event{Type: ws.EventTypePong}
	close(tr.inbox)

	err := s.Listen(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{ws.EventTypePong}, seen)
}
