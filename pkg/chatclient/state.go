package chatclient

import (
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
)

// MessageList is the ordered in-memory view of one channel. Every merge is
// keyed by message id and safe to repeat.
type MessageList struct {
	items []domain.Message
}

// Reset replaces the list with a history snapshot, dropping duplicates.
func (l *MessageList) Reset(messages []domain.Message) {
	l.items = l.items[:0]
	for _, m := range messages {
		l.Add(m)
	}
}

// Add appends m unless a message with the same id is already present.
func (l *MessageList) Add(m domain.Message) bool {
	if l.index(m.ID) >= 0 {
		return false
	}
	l.items = append(l.items, m)
	return true
}

// Replace swaps the entry with m's id in place. Unknown ids are ignored.
func (l *MessageList) Replace(m domain.Message) bool {
	i := l.index(m.ID)
	if i < 0 {
		return false
	}
	l.items[i] = m
	return true
}

func (l *MessageList) Remove(id uuid.UUID) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

// MarkReadBy adds userID to the read set of every message it did not send.
func (l *MessageList) MarkReadBy(userID uuid.UUID) {
	for i := range l.items {
		m := &l.items[i]
		if m.SenderID != userID && !m.ReadByUser(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
}

func (l *MessageList) Clear() {
	l.items = nil
}

func (l *MessageList) Len() int {
	return len(l.items)
}

// Items returns a copy of the list in display order.
func (l *MessageList) Items() []domain.Message {
	return slices.Clone(l.items)
}

func (l *MessageList) index(id uuid.UUID) int {
	return slices.IndexFunc(l.items, func(m domain.Message) bool { return m.ID == id })
}

// ChannelList is the sidebar: channels visible to the session user.
type ChannelList struct {
	self  uuid.UUID
	items []domain.ChannelSummary
}

func NewChannelList(self uuid.UUID) *ChannelList {
	return &ChannelList{self: self}
}

func (l *ChannelList) Reset(channels []domain.ChannelSummary) {
	l.items = slices.Clone(channels)
}

// Upsert merges an edited channel. A channel the user can no longer see is
// removed instead; the return value reports whether it is still listed.
func (l *ChannelList) Upsert(ch domain.Channel) bool {
	i := l.index(ch.ID)
	if !ch.VisibleTo(l.self) {
		if i >= 0 {
			l.items = slices.Delete(l.items, i, i+1)
		}
		return false
	}
	if i >= 0 {
		l.items[i].Channel = ch
		return true
	}
	l.items = append(l.items, domain.ChannelSummary{Channel: ch})
	return true
}

func (l *ChannelList) Remove(id uuid.UUID) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

func (l *ChannelList) SetUnread(id uuid.UUID, n int64) {
	if i := l.index(id); i >= 0 {
		l.items[i].UnreadCount = n
	}
}

func (l *ChannelList) Get(id uuid.UUID) (domain.ChannelSummary, bool) {
	i := l.index(id)
	if i < 0 {
		return domain.ChannelSummary{}, false
	}
	return l.items[i], true
}

func (l *ChannelList) Items() []domain.ChannelSummary {
	return slices.Clone(l.items)
}

func (l *ChannelList) index(id uuid.UUID) int {
	return slices.IndexFunc(l.items, func(c domain.ChannelSummary) bool { return c.ID == id })
}

// TypingSet holds who is typing in the selected channel, keyed by user id.
type TypingSet struct {
	users map[uuid.UUID]string
}

func (t *TypingSet) Add(userID uuid.UUID, name string) bool {
	if t.users == nil {
		t.users = make(map[uuid.UUID]string)
	}
	_, exists := t.users[userID]
	t.users[userID] = name
	return !exists
}

func (t *TypingSet) Remove(userID uuid.UUID) bool {
	if _, ok := t.users[userID]; !ok {
		return false
	}
	delete(t.users, userID)
	return true
}

func (t *TypingSet) Clear() {
	t.users = nil
}

// Names returns the display names of typing users, sorted.
func (t *TypingSet) Names() []string {
	out := make([]string, 0, len(t.users))
	for _, name := range t.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (t *TypingSet) Users() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(t.users))
	for id := range t.users {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
