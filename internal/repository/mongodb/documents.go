package mongodb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
)

// Ids are stored as canonical uuid strings.

type channelDoc struct {
	ID          string     `bson:"_id"`
	Name        string     `bson:"name"`
	Description *string    `bson:"description"`
	ProjectID   string     `bson:"project_id,omitempty"`
	IsPrivate   bool       `bson:"is_private"`
	Members     []string   `bson:"members"`
	CreatedBy   string     `bson:"created_by"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	IsDeleted   bool       `bson:"is_deleted"`
	DeletedBy   string     `bson:"deleted_by,omitempty"`
	DeletedAt   *time.Time `bson:"deleted_at,omitempty"`
}

type messageDoc struct {
	ID        string     `bson:"_id"`
	ChannelID string     `bson:"channel_id"`
	SenderID  string     `bson:"sender_id"`
	Text      string     `bson:"text"`
	ReplyToID string     `bson:"reply_to_id,omitempty"`
	ReadBy    []string   `bson:"read_by"`
	IsEdited  bool       `bson:"is_edited"`
	EditedAt  *time.Time `bson:"edited_at,omitempty"`
	IsDeleted bool       `bson:"is_deleted"`
	DeletedBy string     `bson:"deleted_by,omitempty"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

type userDoc struct {
	ID    string `bson:"_id"`
	Email string `bson:"email"`
	Name  string `bson:"name"`
	Role  string `bson:"role"`
}

type projectDoc struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

func fromChannel(ch *domain.Channel) channelDoc {
	return channelDoc{
		ID:          ch.ID.String(),
		Name:        ch.Name,
		Description: ch.Description,
		ProjectID:   optionalString(ch.ProjectID),
		IsPrivate:   ch.IsPrivate,
		Members:     idStrings(ch.Members),
		CreatedBy:   ch.CreatedBy.String(),
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
		IsDeleted:   ch.IsDeleted,
		DeletedBy:   optionalString(ch.DeletedBy),
		DeletedAt:   ch.DeletedAt,
	}
}

func (d channelDoc) model() (domain.Channel, error) {
	var ch domain.Channel
	var err error
	if ch.ID, err = uuid.Parse(d.ID); err != nil {
		return ch, fmt.Errorf("channel id %q: %w", d.ID, err)
	}
	if ch.CreatedBy, err = uuid.Parse(d.CreatedBy); err != nil {
		return ch, fmt.Errorf("channel %s created_by: %w", d.ID, err)
	}
	if ch.ProjectID, err = optionalUUID(d.ProjectID); err != nil {
		return ch, fmt.Errorf("channel %s project_id: %w", d.ID, err)
	}
	if ch.DeletedBy, err = optionalUUID(d.DeletedBy); err != nil {
		return ch, fmt.Errorf("channel %s deleted_by: %w", d.ID, err)
	}
	if ch.Members, err = uuids(d.Members); err != nil {
		return ch, fmt.Errorf("channel %s members: %w", d.ID, err)
	}
	ch.Name = d.Name
	ch.Description = d.Description
	ch.IsPrivate = d.IsPrivate
	ch.CreatedAt = d.CreatedAt.UTC()
	ch.UpdatedAt = d.UpdatedAt.UTC()
	ch.IsDeleted = d.IsDeleted
	ch.DeletedAt = utcPtr(d.DeletedAt)
	return ch, nil
}

func fromMessage(m *domain.Message) messageDoc {
	return messageDoc{
		ID:        m.ID.String(),
		ChannelID: m.ChannelID.String(),
		SenderID:  m.SenderID.String(),
		Text:      m.Text,
		ReplyToID: optionalString(m.ReplyToID),
		ReadBy:    idStrings(m.ReadBy),
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		IsDeleted: m.IsDeleted,
		DeletedBy: optionalString(m.DeletedBy),
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (d messageDoc) model() (domain.Message, error) {
	var m domain.Message
	var err error
	if m.ID, err = uuid.Parse(d.ID); err != nil {
		return m, fmt.Errorf("message id %q: %w", d.ID, err)
	}
	if m.ChannelID, err = uuid.Parse(d.ChannelID); err != nil {
		return m, fmt.Errorf("message %s channel_id: %w", d.ID, err)
	}
	if m.SenderID, err = uuid.Parse(d.SenderID); err != nil {
		return m, fmt.Errorf("message %s sender_id: %w", d.ID, err)
	}
	if m.ReplyToID, err = optionalUUID(d.ReplyToID); err != nil {
		return m, fmt.Errorf("message %s reply_to_id: %w", d.ID, err)
	}
	if m.DeletedBy, err = optionalUUID(d.DeletedBy); err != nil {
		return m, fmt.Errorf("message %s deleted_by: %w", d.ID, err)
	}
	if m.ReadBy, err = uuids(d.ReadBy); err != nil {
		return m, fmt.Errorf("message %s read_by: %w", d.ID, err)
	}
	m.Text = d.Text
	m.IsEdited = d.IsEdited
	m.EditedAt = utcPtr(d.EditedAt)
	m.IsDeleted = d.IsDeleted
	m.DeletedAt = utcPtr(d.DeletedAt)
	m.CreatedAt = d.CreatedAt.UTC()
	m.UpdatedAt = d.UpdatedAt.UTC()
	return m, nil
}

func optionalString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func uuids(ss []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
