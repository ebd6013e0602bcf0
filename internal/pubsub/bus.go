// Package pubsub carries real-time events between hub instances.
package pubsub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is one event addressed to a channel room. ExcludeConn names a
// connection that must not receive it.
type Envelope struct {
	ChannelID   uuid.UUID       `json:"channel_id"`
	ExcludeConn string          `json:"exclude_conn,omitempty"`
	Event       json.RawMessage `json:"event"`
}

// Bus delivers published envelopes to every subscriber in publish order.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe blocks, calling handler for each envelope, until ctx is done.
	Subscribe(ctx context.Context, handler func(Envelope)) error
}

const localBufSize = 1024

// LocalBus is an in-process Bus for single-instance deployments.
type LocalBus struct {
	ch chan Envelope
}

func NewLocalBus() *LocalBus {
	return &LocalBus{ch: make(chan Envelope, localBufSize)}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	for {
		select {
		case env := <-b.ch:
			handler(env)
		case <-ctx.Done():
			return nil
		}
	}
}
