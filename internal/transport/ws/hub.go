package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/pubsub"
	"github.com/vedran77/pulseboard/internal/service"
	"golang.org/x/sync/errgroup"
)

const (
	broadcastBufSize = 256
	publishTimeout   = 5 * time.Second
)

// MessageLog is the part of the message service the hub drives.
type MessageLog interface {
	Send(ctx context.Context, id domain.Identity, channelID uuid.UUID, input service.SendMessageInput) (*domain.Message, error)
	Edit(ctx context.Context, id domain.Identity, messageID uuid.UUID, input service.EditMessageInput) (*domain.Message, error)
	Delete(ctx context.Context, id domain.Identity, messageID uuid.UUID) error
}

// ChannelDirectory is the part of the channel service the hub drives.
type ChannelDirectory interface {
	Get(ctx context.Context, id domain.Identity, channelID uuid.UUID) (*domain.ChannelSummary, error)
	Update(ctx context.Context, id domain.Identity, channelID uuid.UUID, input service.UpdateChannelInput) (*domain.Channel, error)
	Delete(ctx context.Context, id domain.Identity, channelID uuid.UUID) error
}

// Hub manages all active WebSocket clients and their channel rooms. Room
// state is owned by the Run loop; other goroutines reach it through
// channels.
type Hub struct {
	clients map[*Client]struct{}
	rooms   map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	calls      chan func()
	done       chan struct{}

	bus      pubsub.Bus
	typing   *TypingTracker
	messages MessageLog
	channels ChannelDirectory
	log      zerolog.Logger
}

type broadcastMsg struct {
	channelID   uuid.UUID
	data        []byte
	excludeConn string

	// closeRoom drops every subscriber after delivery.
	closeRoom bool
	// allowed, when set, evicts subscribers whose user is not in it after delivery.
	allowed map[uuid.UUID]struct{}
}

func NewHub(bus pubsub.Bus, messages MessageLog, channels ChannelDirectory, typingTTL time.Duration, log zerolog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, broadcastBufSize),
		calls:      make(chan func()),
		done:       make(chan struct{}),
		bus:        bus,
		messages:   messages,
		channels:   channels,
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
	h.typing = NewTypingTracker(typingTTL, h.typingExpired)
	return h
}

// Run consumes the bus and drives the room loop until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.bus.Subscribe(ctx, h.deliver)
	})
	g.Go(func() error {
		h.loop(ctx)
		return nil
	})
	return g.Wait()
}

func (h *Hub) loop(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
		close(h.done)
	}()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.log.Debug().Str("conn", client.id).Str("user", client.identity.UserID.String()).
				Int("total", len(h.clients)).Msg("client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Debug().Str("conn", client.id).Int("total", len(h.clients)).Msg("client disconnected")
			}
			if facts := h.typing.RetractConn(client.id); len(facts) > 0 {
				go h.announceStopped(facts)
			}

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case fn := <-h.calls:
			fn()

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) fanOut(msg *broadcastMsg) {
	room := h.rooms[msg.channelID]
	for client := range room {
		if client.id == msg.excludeConn {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			// Slow consumer: drop it rather than stall the room.
			h.log.Warn().Str("conn", client.id).Msg("send buffer full, dropping client")
			h.drop(client)
		}
	}

	switch {
	case msg.closeRoom:
		for client := range h.rooms[msg.channelID] {
			client.room = nil
		}
		delete(h.rooms, msg.channelID)
	case msg.allowed != nil:
		for client := range h.rooms[msg.channelID] {
			if _, ok := msg.allowed[client.identity.UserID]; !ok {
				h.leaveRoom(client)
			}
		}
	}
}

// drop forgets a client and stops its write pump. Loop goroutine only.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	h.leaveRoom(client)
	delete(h.clients, client)
	close(client.done)
}

func (h *Hub) joinRoom(client *Client, channelID uuid.UUID) {
	if client.room != nil && *client.room == channelID {
		return
	}
	h.leaveRoom(client)

	room, ok := h.rooms[channelID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[channelID] = room
	}
	room[client] = struct{}{}
	id := channelID
	client.room = &id
}

func (h *Hub) leaveRoom(client *Client) {
	if client.room == nil {
		return
	}
	if room, ok := h.rooms[*client.room]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, *client.room)
		}
	}
	client.room = nil
}

// do runs fn on the loop goroutine and waits for it. It reports false if
// the hub has stopped.
func (h *Hub) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(finished) }:
	case <-h.done:
		return false
	}
	<-finished
	return true
}

// Register adds a client. It reports false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join subscribes the client to channelID, leaving its previous room.
// Joining the current room again is a no-op.
func (h *Hub) Join(client *Client, channelID uuid.UUID) bool {
	var previous *uuid.UUID
	ok := h.do(func() {
		if _, registered := h.clients[client]; !registered {
			return
		}
		previous = client.room
		h.joinRoom(client, channelID)
	})
	if ok && previous != nil && *previous != channelID {
		h.retractTyping(client)
	}
	return ok
}

// Leave unsubscribes the client if it is in channelID's room.
func (h *Hub) Leave(client *Client, channelID uuid.UUID) bool {
	left := false
	h.do(func() {
		if client.room != nil && *client.room == channelID {
			h.leaveRoom(client)
			left = true
		}
	})
	if left {
		h.retractTyping(client)
	}
	return left
}

// InRoom reports whether the client is subscribed to channelID.
func (h *Hub) InRoom(client *Client, channelID uuid.UUID) bool {
	in := false
	h.do(func() {
		in = client.room != nil && *client.room == channelID
	})
	return in
}

// RoomSize returns the number of local subscribers of channelID.
func (h *Hub) RoomSize(channelID uuid.UUID) int {
	n := 0
	h.do(func() {
		n = len(h.rooms[channelID])
	})
	return n
}

// Publish sends an event to every subscriber of channelID on every hub
// instance sharing the bus, except the connection named by excludeConn.
func (h *Hub) Publish(channelID uuid.UUID, event *Event, excludeConn string) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = h.bus.Publish(ctx, pubsub.Envelope{
		ChannelID:   channelID,
		ExcludeConn: excludeConn,
		Event:       data,
	})
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Str("channel", channelID.String()).Msg("publish event")
	}
}

// deliver hands an envelope from the bus to the local loop.
func (h *Hub) deliver(env pubsub.Envelope) {
	msg := &broadcastMsg{
		channelID:   env.ChannelID,
		data:        env.Event,
		excludeConn: env.ExcludeConn,
	}

	var head struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(env.Event, &head); err != nil {
		h.log.Error().Err(err).Msg("decode envelope event")
		return
	}
	switch head.Type {
	case EventTypeChannelDeleted:
		msg.closeRoom = true
	case EventTypeChannelEdited:
		var ch domain.Channel
		if err := json.Unmarshal(head.Payload, &ch); err == nil && ch.IsPrivate {
			msg.allowed = make(map[uuid.UUID]struct{}, len(ch.Members))
			for _, id := range ch.Members {
				msg.allowed[id] = struct{}{}
			}
		}
	}

	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) typingExpired(f TypingFact) {
	h.announceStopped([]TypingFact{f})
}

func (h *Hub) retractTyping(client *Client) {
	if facts := h.typing.RetractConn(client.id); len(facts) > 0 {
		h.announceStopped(facts)
	}
}

func (h *Hub) announceStopped(facts []TypingFact) {
	for _, f := range facts {
		channelID := f.ChannelID
		evt, err := NewEvent(EventTypeUserStoppedTyping, &channelID, TypingPayload{
			UserID:      f.UserID,
			DisplayName: f.DisplayName,
		})
		if err != nil {
			continue
		}
		h.Publish(channelID, evt, f.ConnID)
	}
}
