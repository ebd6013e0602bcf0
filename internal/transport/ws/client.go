package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/service"
	"nhooyr.io/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	commandTimeout = 10 * time.Second
	maxMessageSize = 16 * 1024
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	identity domain.Identity
	name     string

	// room is the channel this connection listens to. Owned by the hub loop.
	room *uuid.UUID

	send chan []byte
	done chan struct{}
	log  zerolog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, identity domain.Identity, name string) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		identity: identity,
		name:     name,
		send:     make(chan []byte, sendBufSize),
		done:     make(chan struct{}),
		log: hub.log.With().
			Str("conn", id).
			Str("user", identity.UserID.String()).
			Logger(),
	}
}

// ID identifies the connection, not the user.
func (c *Client) ID() string { return c.id }

// ReadPump reads commands from the WebSocket until it closes. Commands run
// one at a time in arrival order.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				c.log.Debug().Msg("client disconnected")
			} else {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.sendError("", "INVALID_PAYLOAD", "Malformed event", nil)
			continue
		}

		c.handleEvent(ctx, &event)
	}
}

// WritePump writes queued events to the WebSocket and keeps it alive.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Warn().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Warn().Err(err).Msg("ping error")
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch event.Type {
	case EventTypeJoin:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		if _, err := c.hub.channels.Get(ctx, c.identity, channelID); err != nil {
			c.sendServiceError(event.Ref, err)
			return
		}
		c.hub.Join(c, channelID)

	case EventTypeLeave:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		c.hub.Leave(c, channelID)

	case EventTypeSendMessage:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		var input service.SendMessageInput
		if !c.decode(event, &input) {
			return
		}
		if c.hub.typing.Stop(channelID, c.identity.UserID) {
			c.publishTyping(EventTypeUserStoppedTyping, channelID, c.name)
		}
		if _, err := c.hub.messages.Send(ctx, c.identity, channelID, input); err != nil {
			c.sendServiceError(event.Ref, err)
		}

	case EventTypeEditMessage:
		var p EditMessagePayload
		if !c.decode(event, &p) {
			return
		}
		if _, err := c.hub.messages.Edit(ctx, c.identity, p.MessageID, service.EditMessageInput{Text: p.Text}); err != nil {
			c.sendServiceError(event.Ref, err)
		}

	case EventTypeDeleteMessage:
		var p DeleteMessagePayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.hub.messages.Delete(ctx, c.identity, p.MessageID); err != nil {
			c.sendServiceError(event.Ref, err)
		}

	case EventTypeEditChannel:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		var input service.UpdateChannelInput
		if !c.decode(event, &input) {
			return
		}
		if _, err := c.hub.channels.Update(ctx, c.identity, channelID, input); err != nil {
			c.sendServiceError(event.Ref, err)
		}

	case EventTypeDeleteChannel:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		if err := c.hub.channels.Delete(ctx, c.identity, channelID); err != nil {
			c.sendServiceError(event.Ref, err)
		}

	case EventTypeTyping:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		if !c.hub.InRoom(c, channelID) {
			c.sendError(event.Ref, "NOT_JOINED", "Join the channel before typing", nil)
			return
		}
		name := c.name
		var p TypingRequestPayload
		if len(event.Payload) > 0 && json.Unmarshal(event.Payload, &p) == nil && p.DisplayName != "" {
			name = p.DisplayName
		}
		c.hub.typing.Touch(TypingFact{
			ChannelID:   channelID,
			UserID:      c.identity.UserID,
			ConnID:      c.id,
			DisplayName: name,
		})
		c.publishTyping(EventTypeUserTyping, channelID, name)

	case EventTypeStopTyping:
		channelID, ok := c.requireChannel(event)
		if !ok {
			return
		}
		if !c.hub.InRoom(c, channelID) {
			c.sendError(event.Ref, "NOT_JOINED", "Join the channel before typing", nil)
			return
		}
		c.hub.typing.Stop(channelID, c.identity.UserID)
		c.publishTyping(EventTypeUserStoppedTyping, channelID, c.name)

	case EventTypePing:
		c.enqueueEvent(&Event{Type: EventTypePong, Ref: event.Ref, Timestamp: time.Now().Unix()})

	default:
		c.sendError(event.Ref, "UNKNOWN_EVENT", "Unknown event type: "+event.Type, nil)
	}
}

func (c *Client) requireChannel(event *Event) (uuid.UUID, bool) {
	if event.ChannelID == nil || *event.ChannelID == uuid.Nil {
		c.sendError(event.Ref, "INVALID_PAYLOAD", "channel_id required for "+event.Type, nil)
		return uuid.Nil, false
	}
	return *event.ChannelID, true
}

func (c *Client) decode(event *Event, v any) bool {
	if len(event.Payload) == 0 {
		c.sendError(event.Ref, "INVALID_PAYLOAD", "payload required for "+event.Type, nil)
		return false
	}
	if err := json.Unmarshal(event.Payload, v); err != nil {
		c.sendError(event.Ref, "INVALID_PAYLOAD", "invalid "+event.Type+" payload", nil)
		return false
	}
	return true
}

func (c *Client) publishTyping(eventType string, channelID uuid.UUID, name string) {
	evt, err := NewEvent(eventType, &channelID, TypingPayload{
		UserID:      c.identity.UserID,
		DisplayName: name,
	})
	if err != nil {
		return
	}
	c.hub.Publish(channelID, evt, c.id)
}

func (c *Client) sendServiceError(ref string, err error) {
	code := service.Code(err)
	if code == "INTERNAL" {
		c.log.Error().Err(err).Msg("command failed")
		c.sendError(ref, code, "Something went wrong", nil)
		return
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		c.sendError(ref, code, svcErr.Message, svcErr.Fields)
		return
	}
	c.sendError(ref, code, err.Error(), nil)
}

func (c *Client) sendError(ref, code, message string, fields map[string]string) {
	evt, err := NewEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message, Fields: fields})
	if err != nil {
		return
	}
	evt.Ref = ref
	c.enqueueEvent(evt)
}

// enqueueEvent queues an event for this connection only. It never blocks.
func (c *Client) enqueueEvent(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn().Str("type", evt.Type).Msg("send buffer full, event dropped")
	}
}
