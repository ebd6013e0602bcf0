package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultPrefix = "chat:channel:"
	maxBackoff    = 30 * time.Second
)

// RedisBus fans envelopes out across instances with Redis Pub/Sub. Each
// channel room maps to one Redis channel, so per-room order is kept.
type RedisBus struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

func NewRedisBus(client *redis.Client, prefix string, log zerolog.Logger) *RedisBus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "redis_bus").Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+env.ChannelID.String(), data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe listens on the room pattern and reconnects with backoff when the
// subscription drops.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	backoff := time.Second

	for {
		err := b.listen(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		b.log.Warn().Err(err).Dur("backoff", backoff).Msg("subscription lost")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (b *RedisBus) listen(ctx context.Context, handler func(Envelope)) error {
	sub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer sub.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info().Str("pattern", b.prefix+"*").Msg("subscribed")

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			if !strings.HasPrefix(msg.Channel, b.prefix) {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Error().Err(err).Str("channel", msg.Channel).Msg("bad envelope")
				continue
			}
			handler(env)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
