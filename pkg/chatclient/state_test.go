package chatclient

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vedran77/pulseboard/internal/domain"
)

func TestMessageList_Merges(t *testing.T) {
	a := domain.Message{ID: uuid.New(), Text: "a"}
	b := domain.Message{ID: uuid.New(), Text: "b"}

	var l MessageList
	l.Reset([]domain.Message{a, b, a})
	assert.Equal(t, 2, l.Len())

	assert.False(t, l.Add(b))
	assert.Equal(t, 2, l.Len())

	edited := b
	edited.Text = "b2"
	assert.True(t, l.Replace(edited))
	assert.False(t, l.Replace(domain.Message{ID: uuid.New()}))
	assert.Equal(t, "b2", l.Items()[1].Text)

	assert.True(t, l.Remove(a.ID))
	assert.False(t, l.Remove(a.ID))
	assert.Equal(t, []uuid.UUID{b.ID}, ids(l.Items()))
}

func TestMessageList_MarkReadBy(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	var l MessageList
	l.Reset([]domain.Message{
		{ID: uuid.New(), SenderID: alice, ReadBy: []uuid.UUID{alice}},
		{ID: uuid.New(), SenderID: bob, ReadBy: []uuid.UUID{bob}},
	})

	l.MarkReadBy(bob)
	l.MarkReadBy(bob)

	items := l.Items()
	assert.Equal(t, []uuid.UUID{alice, bob}, items[0].ReadBy)
	assert.Equal(t, []uuid.UUID{bob}, items[1].ReadBy)
}

func TestChannelList_Upsert(t *testing.T) {
	self := uuid.New()
	l := NewChannelList(self)
	public := domain.Channel{ID: uuid.New(), Name: "general"}
	l.Reset([]domain.ChannelSummary{{Channel: public, UnreadCount: 3}})

	renamed := public
	renamed.Name = "lobby"
	assert.True(t, l.Upsert(renamed))
	got, ok := l.Get(public.ID)
	assert.True(t, ok)
	assert.Equal(t, "lobby", got.Name)
	assert.Equal(t, int64(3), got.UnreadCount)

	hidden := renamed
	hidden.IsPrivate = true
	assert.False(t, l.Upsert(hidden))
	assert.Empty(t, l.Items())

	member := hidden
	member.Members = []uuid.UUID{self}
	assert.True(t, l.Upsert(member))
	assert.Len(t, l.Items(), 1)

	assert.True(t, l.Remove(public.ID))
	assert.False(t, l.Remove(public.ID))
}

func TestTypingSet(t *testing.T) {
	var s TypingSet
	alice, bob := uuid.New(), uuid.New()

	assert.True(t, s.Add(alice, "Alice"))
	assert.False(t, s.Add(alice, "Alice"))
	assert.True(t, s.Add(bob, "Bob"))
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())

	assert.True(t, s.Remove(alice))
	assert.False(t, s.Remove(alice))
	assert.Equal(t, []uuid.UUID{bob}, s.Users())

	s.Clear()
	assert.Empty(t, s.Users())
}

func ids(messages []domain.Message) []uuid.UUID {
	out := make([]uuid.UUID, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}
