package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Channel struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description,omitempty"`
	ProjectID   *uuid.UUID  `json:"project_id,omitempty"`
	IsPrivate   bool        `json:"is_private"`
	Members     []uuid.UUID `json:"members"`
	CreatedBy   uuid.UUID   `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	IsDeleted   bool        `json:"is_deleted"`
	DeletedBy   *uuid.UUID  `json:"deleted_by,omitempty"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
	// Joined fields
	ProjectName string `json:"project_name,omitempty"`
}

// HasMember reports whether userID is in the explicit member set.
func (c *Channel) HasMember(userID uuid.UUID) bool {
	return slices.Contains(c.Members, userID)
}

// VisibleTo reports whether the channel shows up for userID.
func (c *Channel) VisibleTo(userID uuid.UUID) bool {
	if c.IsDeleted {
		return false
	}
	return !c.IsPrivate || c.HasMember(userID)
}

// ChannelSummary is a channel annotated with the caller's unread count.
type ChannelSummary struct {
	Channel
	UnreadCount int64 `json:"unread_count"`
}
