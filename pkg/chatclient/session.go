package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/internal/transport/ws"
)

const (
	DefaultTypingThrottle = time.Second
	DefaultTypingIdle     = 2 * time.Second
	sendTimeout           = 5 * time.Second
)

var (
	ErrEmptyText  = errors.New("message text is empty")
	ErrNoChannel  = errors.New("no channel selected")
	ErrNotStarted = errors.New("session has no connection")
)

type SessionConfig struct {
	API    *API
	Conn   Transport
	UserID uuid.UUID
	Log    zerolog.Logger

	// TypingThrottle is the minimum gap between typing signals while the
	// user keeps typing. TypingIdle is the quiet period after which an
	// explicit stop is sent.
	TypingThrottle time.Duration
	TypingIdle     time.Duration

	// OnEvent, if set, is called after each pushed event has been merged.
	OnEvent func(ws.Event)
}

// Session is one client's view of the chat: the open connection, the
// selected channel and its messages, who is typing, and the composer.
type Session struct {
	api     *API
	conn    Transport
	self    uuid.UUID
	log     zerolog.Logger
	onEvent func(ws.Event)

	throttle time.Duration
	idle     time.Duration

	mu       sync.Mutex
	selected *uuid.UUID
	messages MessageList
	channels *ChannelList
	typing   TypingSet
	replyTo  *uuid.UUID
	draft    string
	lastErr  *ws.ErrorPayload

	refSeq      uint64
	pendingRef  string
	pendingText string

	typingSentAt time.Time
	typingActive bool
	stopTimer    *time.Timer
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.TypingThrottle <= 0 {
		cfg.TypingThrottle = DefaultTypingThrottle
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = DefaultTypingIdle
	}
	return &Session{
		api:      cfg.API,
		conn:     cfg.Conn,
		self:     cfg.UserID,
		log:      cfg.Log.With().Str("component", "chat_session").Logger(),
		onEvent:  cfg.OnEvent,
		throttle: cfg.TypingThrottle,
		idle:     cfg.TypingIdle,
		channels: NewChannelList(cfg.UserID),
	}
}

// LoadChannels refreshes the channel list from the REST API.
func (s *Session) LoadChannels(ctx context.Context) error {
	list, err := s.api.ListChannels(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.channels.Reset(list)
	s.mu.Unlock()
	return nil
}

// Select opens a channel: it leaves the previous room, fetches history
// (which marks it read) and then joins the channel's room.
func (s *Session) Select(ctx context.Context, channelID uuid.UUID) error {
	s.mu.Lock()
	previous := s.selected
	s.mu.Unlock()

	if previous != nil && *previous != channelID {
		if err := s.Deselect(ctx); err != nil {
			return err
		}
	}

	history, err := s.api.History(ctx, channelID, 0)
	if err != nil {
		return err
	}

	s.mu.Lock()
	id := channelID
	s.selected = &id
	s.messages.Reset(history)
	s.typing.Clear()
	s.replyTo = nil
	s.channels.SetUnread(channelID, 0)
	s.mu.Unlock()

	return s.emit(ctx, ws.EventTypeJoin, &channelID, "", nil)
}

// Deselect leaves the selected channel's room and clears its state.
func (s *Session) Deselect(ctx context.Context) error {
	s.mu.Lock()
	previous := s.selected
	wasTyping := s.cancelTypingLocked()
	s.clearSelectionLocked()
	s.mu.Unlock()

	if previous == nil {
		return nil
	}
	if wasTyping {
		if err := s.emit(ctx, ws.EventTypeStopTyping, previous, "", nil); err != nil {
			return err
		}
	}
	return s.emit(ctx, ws.EventTypeLeave, previous, "", nil)
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// ReplyTo sets the message the next send replies to; nil clears it.
func (s *Session) ReplyTo(messageID *uuid.UUID) {
	s.mu.Lock()
	s.replyTo = messageID
	s.mu.Unlock()
}

// Keystroke records typing activity in the composer. A typing signal goes
// out at most once per throttle interval, and a stop signal follows after
// the idle period without keystrokes.
func (s *Session) Keystroke(ctx context.Context) error {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoChannel
	}
	channelID := *s.selected

	now := time.Now()
	announce := !s.typingActive || now.Sub(s.typingSentAt) >= s.throttle
	if announce {
		s.typingSentAt = now
	}
	s.typingActive = true

	if s.stopTimer != nil {
		s.stopTimer.Stop()
	}
	s.stopTimer = time.AfterFunc(s.idle, func() { s.typingIdle(channelID) })
	s.mu.Unlock()

	if !announce {
		return nil
	}
	return s.emit(ctx, ws.EventTypeTyping, &channelID, "", nil)
}

// Send posts the draft to the selected channel. It stops typing first and
// clears the composer optimistically; the message itself shows up through
// messageReceived. If the hub rejects it, the draft is restored.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	text := s.draft
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return ErrEmptyText
	}
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoChannel
	}
	channelID := *s.selected
	replyTo := s.replyTo

	s.cancelTypingLocked()
	s.refSeq++
	ref := "send-" + strconv.FormatUint(s.refSeq, 10)
	s.pendingRef = ref
	s.pendingText = text
	s.draft = ""
	s.replyTo = nil
	s.mu.Unlock()

	if err := s.emit(ctx, ws.EventTypeStopTyping, &channelID, "", nil); err != nil {
		s.restoreDraft(ref)
		return err
	}

	err := s.emit(ctx, ws.EventTypeSendMessage, &channelID, ref, service.SendMessageInput{
		Text:      text,
		ReplyToID: replyTo,
	})
	if err != nil {
		s.restoreDraft(ref)
		return err
	}
	return nil
}

// Listen merges pushed events until the connection fails or ctx ends. The
// session does not reconnect; re-selecting a channel after a new Dial
// resynchronizes it.
func (s *Session) Listen(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotStarted
	}
	for {
		evt, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		s.Apply(evt)
	}
}

// Apply merges one pushed event into the session state. Every rule is
// idempotent, so duplicates from history overlap or echoes are harmless.
func (s *Session) Apply(evt *ws.Event) {
	s.mu.Lock()
	s.applyLocked(evt)
	s.mu.Unlock()

	if s.onEvent != nil {
		s.onEvent(*evt)
	}
}

func (s *Session) applyLocked(evt *ws.Event) {
	switch evt.Type {
	case ws.EventTypeMessageReceived:
		var m domain.Message
		if !s.decode(evt, &m) {
			return
		}
		if m.SenderID == s.self && s.pendingRef != "" && m.Text == s.pendingText {
			s.pendingRef, s.pendingText = "", ""
		}
		if s.isSelected(m.ChannelID) {
			s.messages.Add(m)
		} else if m.SenderID != s.self {
			if ch, ok := s.channels.Get(m.ChannelID); ok {
				s.channels.SetUnread(m.ChannelID, ch.UnreadCount+1)
			}
		}

	case ws.EventTypeMessageEdited:
		var m domain.Message
		if s.decode(evt, &m) && s.isSelected(m.ChannelID) {
			s.messages.Replace(m)
		}

	case ws.EventTypeMessageDeleted:
		var p ws.MessageDeletedPayload
		if s.decode(evt, &p) && s.isSelected(p.ChannelID) {
			s.messages.Remove(p.ID)
		}

	case ws.EventTypeChannelEdited:
		var ch domain.Channel
		if !s.decode(evt, &ch) {
			return
		}
		if !s.channels.Upsert(ch) && s.isSelected(ch.ID) {
			s.cancelTypingLocked()
			s.clearSelectionLocked()
		}

	case ws.EventTypeChannelDeleted:
		var p ws.ChannelDeletedPayload
		if !s.decode(evt, &p) {
			return
		}
		s.channels.Remove(p.ChannelID)
		if s.isSelected(p.ChannelID) {
			s.cancelTypingLocked()
			s.clearSelectionLocked()
		}

	case ws.EventTypeUserTyping:
		var p ws.TypingPayload
		if s.decode(evt, &p) && p.UserID != s.self && evt.ChannelID != nil && s.isSelected(*evt.ChannelID) {
			s.typing.Add(p.UserID, p.DisplayName)
		}

	case ws.EventTypeUserStoppedTyping:
		var p ws.TypingPayload
		if s.decode(evt, &p) && evt.ChannelID != nil && s.isSelected(*evt.ChannelID) {
			s.typing.Remove(p.UserID)
		}

	case ws.EventTypeMessagesMarkedRead:
		var p ws.MessagesReadPayload
		if !s.decode(evt, &p) {
			return
		}
		if p.UserID == s.self {
			s.channels.SetUnread(p.ChannelID, 0)
		}
		if s.isSelected(p.ChannelID) {
			s.messages.MarkReadBy(p.UserID)
		}

	case ws.EventTypeError:
		var p ws.ErrorPayload
		if !s.decode(evt, &p) {
			return
		}
		s.lastErr = &p
		if evt.Ref != "" && evt.Ref == s.pendingRef {
			if s.draft == "" {
				s.draft = s.pendingText
			}
			s.pendingRef, s.pendingText = "", ""
		}
		s.log.Debug().Str("code", p.Code).Str("ref", evt.Ref).Msg(p.Message)

	case ws.EventTypePong:
	default:
		s.log.Debug().Str("type", evt.Type).Msg("ignoring event")
	}
}

// Selected returns the open channel, if any.
func (s *Session) Selected() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return uuid.Nil, false
	}
	return *s.selected, true
}

func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Items()
}

func (s *Session) Channels() []domain.ChannelSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels.Items()
}

// Typing returns the users currently shown as typing.
func (s *Session) Typing() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.Users()
}

func (s *Session) TypingNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.Names()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) ReplyTarget() *uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replyTo
}

// LastError returns the most recent error event from the hub.
func (s *Session) LastError() *ws.ErrorPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) typingIdle(channelID uuid.UUID) {
	s.mu.Lock()
	if !s.typingActive || !s.isSelected(channelID) {
		s.mu.Unlock()
		return
	}
	s.typingActive = false
	s.stopTimer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.emit(ctx, ws.EventTypeStopTyping, &channelID, "", nil); err != nil {
		s.log.Warn().Err(err).Msg("send stopTyping")
	}
}

// cancelTypingLocked stops the idle timer and reports whether typing was
// active.
func (s *Session) cancelTypingLocked() bool {
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	was := s.typingActive
	s.typingActive = false
	return was
}

func (s *Session) clearSelectionLocked() {
	s.selected = nil
	s.messages.Clear()
	s.typing.Clear()
	s.replyTo = nil
}

func (s *Session) restoreDraft(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingRef != ref {
		return
	}
	if s.draft == "" {
		s.draft = s.pendingText
	}
	s.pendingRef, s.pendingText = "", ""
}

func (s *Session) isSelected(channelID uuid.UUID) bool {
	return s.selected != nil && *s.selected == channelID
}

func (s *Session) decode(evt *ws.Event, v any) bool {
	if err := json.Unmarshal(evt.Payload, v); err != nil {
		s.log.Warn().Err(err).Str("type", evt.Type).Msg("malformed event payload")
		return false
	}
	return true
}

func (s *Session) emit(ctx context.Context, eventType string, channelID *uuid.UUID, ref string, payload any) error {
	if s.conn == nil {
		return ErrNotStarted
	}
	evt := &ws.Event{Type: eventType, ChannelID: channelID, Ref: ref}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", eventType, err)
		}
		evt.Payload = data
	}
	return s.conn.Send(ctx, evt)
}
