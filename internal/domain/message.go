package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        uuid.UUID   `json:"id"`
	ChannelID uuid.UUID   `json:"channel_id"`
	SenderID  uuid.UUID   `json:"sender_id"`
	Text      string      `json:"text"`
	ReplyToID *uuid.UUID  `json:"reply_to_id,omitempty"`
	ReadBy    []uuid.UUID `json:"read_by"`
	IsEdited  bool        `json:"is_edited"`
	EditedAt  *time.Time  `json:"edited_at,omitempty"`
	IsDeleted bool        `json:"is_deleted"`
	DeletedBy *uuid.UUID  `json:"deleted_by,omitempty"`
	DeletedAt *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	// Joined fields
	SenderName string        `json:"sender_name,omitempty"`
	ReplyTo    *ReplyPreview `json:"reply_to,omitempty"`
}

// ReadByUser reports whether userID is in the read receipt set.
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	return slices.Contains(m.ReadBy, userID)
}

// ReplyPreview is the quoted snippet shown above a reply. Text is empty
// once the target has been deleted.
type ReplyPreview struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	IsDeleted  bool      `json:"is_deleted"`
}
