package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) handle(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *collector) snapshot() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func envelopes(channelID uuid.UUID, n int) []Envelope {
	out := make([]Envelope, n)
	for i := range out {
		raw, _ := json.Marshal(map[string]int{"seq": i})
		out[i] = Envelope{ChannelID: channelID, Event: raw}
	}
	return out
}

func TestLocalBus_Order(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &collector{}
	go bus.Subscribe(ctx, got.handle)

	channelID := uuid.New()
	want := envelopes(channelID, 50)
	for _, env := range want {
		require.NoError(t, bus.Publish(ctx, env))
	}

	require.Eventually(t, func() bool { return len(got.snapshot()) == len(want) }, time.Second, 5*time.Millisecond)
	for i, env := range got.snapshot() {
		assert.JSONEq(t, string(want[i].Event), string(env.Event))
	}
}

func TestLocalBus_PublishCancelled(t *testing.T) {
	bus := &LocalBus{ch: make(chan Envelope)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Publish(ctx, Envelope{ChannelID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisBus_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &collector{}
	done := make(chan error, 1)
	go func() { done <- bus.Subscribe(ctx, got.handle) }()

	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	channelID := uuid.New()
	want := envelopes(channelID, 10)
	want[3].ExcludeConn = "conn-3"
	for _, env := range want {
		require.NoError(t, bus.Publish(ctx, env))
	}

	require.Eventually(t, func() bool { return len(got.snapshot()) == len(want) }, 2*time.Second, 10*time.Millisecond)
	received := got.snapshot()
	for i := range want {
		assert.Equal(t, channelID, received[i].ChannelID)
		assert.JSONEq(t, string(want[i].Event), string(received[i].Event))
	}
	assert.Equal(t, "conn-3", received[3].ExcludeConn)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestRedisBus_IgnoresGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, "test:", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &collector{}
	go bus.Subscribe(ctx, got.handle)
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	mr.Publish("test:"+uuid.NewString(), "not json")
	require.NoError(t, bus.Publish(ctx, envelopes(uuid.New(), 1)[0]))

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
