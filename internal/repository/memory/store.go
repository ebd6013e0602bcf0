// Package memory is a process-local implementation of the repository
// interfaces. It backs tests and single-node development runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
)

// Store holds every collection behind one lock, so multi-record updates
// such as the channel cascade are atomic for readers.
type Store struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]*domain.Channel
	messages map[uuid.UUID]*domain.Message
	users    map[uuid.UUID]domain.User
	projects map[uuid.UUID]domain.Project
}

func New() *Store {
	return &Store{
		channels: make(map[uuid.UUID]*domain.Channel),
		messages: make(map[uuid.UUID]*domain.Message),
		users:    make(map[uuid.UUID]domain.User),
		projects: make(map[uuid.UUID]domain.Project),
	}
}

func (s *Store) Channels() *ChannelRepo { return &ChannelRepo{s: s} }
func (s *Store) Messages() *MessageRepo { return &MessageRepo{s: s} }
func (s *Store) Users() *UserDirectory { return &UserDirectory{s: s} }
func (s *Store) Projects() *ProjectDirectory { return &ProjectDirectory{s: s} }

// PutUser seeds the user directory.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutProject seeds the project directory.
func (s *Store) PutProject(p domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

func cloneChannel(ch *domain.Channel) domain.Channel {
	out := *ch
	out.Members = slices.Clone(ch.Members)
	return out
}

func cloneMessage(m *domain.Message) domain.Message {
	out := *m
	out.ReadBy = slices.Clone(m.ReadBy)
	return out
}

type ChannelRepo struct {
	s *Store
}

func (r *ChannelRepo) Create(_ context.Context, ch *domain.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := cloneChannel(ch)
	r.s.channels[ch.ID] = &c
	return nil
}

func (r *ChannelRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ch, ok := r.s.channels[id]
	if !ok {
		return nil, nil
	}
	c := cloneChannel(ch)
	return &c, nil
}

func (r *ChannelRepo) ListVisible(_ context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var channels []domain.Channel
	for _, ch := range r.s.channels {
		if ch.VisibleTo(userID) {
			channels = append(channels, cloneChannel(ch))
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].UpdatedAt.After(channels[j].UpdatedAt)
	})
	return channels, nil
}

func (r *ChannelRepo) Update(_ context.Context, ch *domain.Channel) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.channels[ch.ID]
	if !ok || cur.IsDeleted {
		return false, nil
	}
	cur.Name = ch.Name
	cur.Description = ch.Description
	cur.IsPrivate = ch.IsPrivate
	cur.Members = slices.Clone(ch.Members)
	cur.UpdatedAt = ch.UpdatedAt
	return true, nil
}

func (r *ChannelRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ch, ok := r.s.channels[id]; ok && at.After(ch.UpdatedAt) {
		ch.UpdatedAt = at
	}
	return nil
}

func (r *ChannelRepo) SoftDelete(_ context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ch, ok := r.s.channels[id]
	if !ok || ch.IsDeleted {
		return false, nil
	}
	ch.IsDeleted = true
	ch.DeletedBy = &deletedBy
	ch.DeletedAt = &at

	for _, m := range r.s.messages {
		if m.ChannelID != id || m.IsDeleted {
			continue
		}
		m.IsDeleted = true
		m.DeletedBy = &deletedBy
		m.DeletedAt = &at
		m.UpdatedAt = at
	}
	return true, nil
}

type MessageRepo struct {
	s *Store
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := cloneMessage(msg)
	r.s.messages[msg.ID] = &m
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, nil
	}
	out := cloneMessage(m)
	return &out, nil
}

func (r *MessageRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]domain.Message, len(ids))
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok {
			out[id] = cloneMessage(m)
		}
	}
	return out, nil
}

func (r *MessageRepo) ListRecent(_ context.Context, channelID uuid.UUID, limit int) ([]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var messages []domain.Message
	for _, m := range r.s.messages {
		if m.ChannelID == channelID && !m.IsDeleted {
			messages = append(messages, cloneMessage(m))
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID.String() < messages[j].ID.String()
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (r *MessageRepo) UpdateText(_ context.Context, id uuid.UUID, text string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.IsDeleted {
		return false, nil
	}
	m.Text = text
	m.IsEdited = true
	m.EditedAt = &at
	m.UpdatedAt = at
	return true, nil
}

func (r *MessageRepo) SoftDelete(_ context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.DeletedBy = &deletedBy
	m.DeletedAt = &at
	m.UpdatedAt = at
	return true, nil
}

func (r *MessageRepo) MarkRead(_ context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var changed int64
	for _, id := range ids {
		m, ok := r.s.messages[id]
		if !ok || m.ReadByUser(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		changed++
	}
	return changed, nil
}

func (r *MessageRepo) CountUnread(_ context.Context, channelIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[uuid.UUID]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		wanted[id] = struct{}{}
	}

	counts := make(map[uuid.UUID]int64)
	for _, m := range r.s.messages {
		if _, ok := wanted[m.ChannelID]; !ok {
			continue
		}
		if m.IsDeleted || m.SenderID == userID || m.ReadByUser(userID) {
			continue
		}
		counts[m.ChannelID]++
	}
	return counts, nil
}

type UserDirectory struct {
	s *Store
}

func (d *UserDirectory) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.User, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	out := make(map[uuid.UUID]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := d.s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type ProjectDirectory struct {
	s *Store
}

func (d *ProjectDirectory) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Project, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	out := make(map[uuid.UUID]domain.Project, len(ids))
	for _, id := range ids {
		if p, ok := d.s.projects[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
