package service

import (
	"sync"

	"github.com/google/uuid"
)

// channelLocks serializes work per channel id. Entries are dropped once no
// goroutine holds or waits for them.
type channelLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*channelLock
}

type channelLock struct {
	mu   sync.Mutex
	refs int
}

// channelGuard is shared by every service in the process so that a channel
// delete cannot interleave with an append to the same channel.
var channelGuard = newChannelLocks()

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[uuid.UUID]*channelLock)}
}

// lock blocks until the caller owns channelID and returns the release func.
func (l *channelLocks) lock(channelID uuid.UUID) func() {
	l.mu.Lock()
	cl, ok := l.locks[channelID]
	if !ok {
		cl = &channelLock{}
		l.locks[channelID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, channelID)
		}
		l.mu.Unlock()
	}
}
