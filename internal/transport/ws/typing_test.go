package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiries struct {
	mu    sync.Mutex
	facts []TypingFact
}

func (e *expiries) record(f TypingFact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts = append(e.facts, f)
}

func (e *expiries) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.facts)
}

func TestTypingTracker_TouchIsNewOnce(t *testing.T) {
	tr := NewTypingTracker(time.Minute, nil)
	f := TypingFact{ChannelID: uuid.New(), UserID: uuid.New(), ConnID: "c1"}

	assert.True(t, tr.Touch(f))
	assert.False(t, tr.Touch(f))
	assert.Equal(t, []uuid.UUID{f.UserID}, tr.Typing(f.ChannelID))
}

func TestTypingTracker_Expires(t *testing.T) {
	var got expiries
	tr := NewTypingTracker(30*time.Millisecond, got.record)
	f := TypingFact{ChannelID: uuid.New(), UserID: uuid.New(), ConnID: "c1", DisplayName: "Alice"}

	tr.Touch(f)

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, f, got.facts[0])
	assert.Empty(t, tr.Typing(f.ChannelID))
}

func TestTypingTracker_RefreshExtendsLife(t *testing.T) {
	var got expiries
	tr := NewTypingTracker(80*time.Millisecond, got.record)
	f := TypingFact{ChannelID: uuid.New(), UserID: uuid.New(), ConnID: "c1"}

	tr.Touch(f)
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		tr.Touch(f)
	}
	assert.Equal(t, 0, got.count())
	assert.Len(t, tr.Typing(f.ChannelID), 1)

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTypingTracker_StopSuppressesExpiry(t *testing.T) {
	var got expiries
	tr := NewTypingTracker(20*time.Millisecond, got.record)
	f := TypingFact{ChannelID: uuid.New(), UserID: uuid.New(), ConnID: "c1"}

	tr.Touch(f)
	assert.True(t, tr.Stop(f.ChannelID, f.UserID))
	assert.False(t, tr.Stop(f.ChannelID, f.UserID))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, got.count())
}

func TestTypingTracker_RetractConn(t *testing.T) {
	tr := NewTypingTracker(time.Minute, nil)
	chA, chB := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	tr.Touch(TypingFact{ChannelID: chA, UserID: alice, ConnID: "a1"})
	tr.Touch(TypingFact{ChannelID: chB, UserID: alice, ConnID: "a1"})
	tr.Touch(TypingFact{ChannelID: chA, UserID: bob, ConnID: "b1"})

	retracted := tr.RetractConn("a1")
	assert.Len(t, retracted, 2)
	assert.Equal(t, []uuid.UUID{bob}, tr.Typing(chA))
	assert.Empty(t, tr.Typing(chB))
	assert.Empty(t, tr.RetractConn("a1"))
}

func TestTypingTracker_DefaultTTL(t *testing.T) {
	tr := NewTypingTracker(0, nil)
	assert.Equal(t, DefaultTypingTTL, tr.ttl)
}
