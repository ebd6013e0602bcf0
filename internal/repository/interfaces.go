package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
)

// ChannelRepository returns (nil, nil) from lookups when nothing matches.
type ChannelRepository interface {
	Create(ctx context.Context, ch *domain.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	// ListVisible returns non-deleted channels that are public or list userID
	// as a member, most recently active first.
	ListVisible(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error)
	// Update persists name, description, visibility, members and updated_at
	// of a non-deleted channel. It reports false if the channel is gone.
	Update(ctx context.Context, ch *domain.Channel) (bool, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// SoftDelete flags the channel and every non-deleted message in it with
	// the same deletedBy/deletedAt. It reports false if the channel was
	// missing or already deleted.
	SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error)
}

// MessageRepository returns (nil, nil) from lookups when nothing matches.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// GetByIDs includes deleted messages; it is used to render reply previews.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Message, error)
	// ListRecent returns the newest limit non-deleted messages of a channel
	// in chronological order.
	ListRecent(ctx context.Context, channelID uuid.UUID, limit int) ([]domain.Message, error)
	UpdateText(ctx context.Context, id uuid.UUID, text string, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error)
	// MarkRead adds userID to the read set of the given messages and returns
	// how many of them changed.
	MarkRead(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error)
	// CountUnread returns per-channel unread counts for userID. Channels with
	// nothing unread may be absent from the map.
	CountUnread(ctx context.Context, channelIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error)
}

type UserDirectory interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.User, error)
}

type ProjectDirectory interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Project, error)
}
