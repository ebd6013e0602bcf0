package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTypingTTL is how long a typing fact lives without a refresh.
const DefaultTypingTTL = 2 * time.Second

type typingKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

// TypingFact is one user typing in one channel, asserted by one connection.
type TypingFact struct {
	ChannelID   uuid.UUID
	UserID      uuid.UUID
	ConnID      string
	DisplayName string
}

type typingEntry struct {
	fact  TypingFact
	gen   uint64
	timer *time.Timer
}

// TypingTracker holds ephemeral typing facts in memory. A fact expires
// after ttl without a Touch, and onExpire is called for it.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	gen      uint64
	facts    map[typingKey]*typingEntry
	onExpire func(TypingFact)
}

func NewTypingTracker(ttl time.Duration, onExpire func(TypingFact)) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	if onExpire == nil {
		onExpire = func(TypingFact) {}
	}
	return &TypingTracker{
		ttl:      ttl,
		facts:    make(map[typingKey]*typingEntry),
		onExpire: onExpire,
	}
}

// Touch asserts or refreshes a fact and reports whether it is new.
func (t *TypingTracker) Touch(f TypingFact) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{f.ChannelID, f.UserID}
	t.gen++
	gen := t.gen

	entry, exists := t.facts[key]
	if exists {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		t.facts[key] = entry
	}
	entry.fact = f
	entry.gen = gen
	entry.timer = time.AfterFunc(t.ttl, func() { t.expire(key, gen) })

	return !exists
}

// Stop retracts a fact and reports whether one existed.
func (t *TypingTracker) Stop(channelID, userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{channelID, userID}
	entry, ok := t.facts[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.facts, key)
	return true
}

// RetractConn removes every fact asserted by connID and returns them.
func (t *TypingTracker) RetractConn(connID string) []TypingFact {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []TypingFact
	for key, entry := range t.facts {
		if entry.fact.ConnID != connID {
			continue
		}
		entry.timer.Stop()
		delete(t.facts, key)
		out = append(out, entry.fact)
	}
	return out
}

// Typing returns the users currently typing in a channel.
func (t *TypingTracker) Typing(channelID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []uuid.UUID
	for key := range t.facts {
		if key.channelID == channelID {
			out = append(out, key.userID)
		}
	}
	return out
}

func (t *TypingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	entry, ok := t.facts[key]
	if !ok || entry.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.facts, key)
	t.mu.Unlock()

	t.onExpire(entry.fact)
}
