package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/repository"
	"github.com/vedran77/pulseboard/pkg/validator"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

type MessageService struct {
	messageRepo repository.MessageRepository
	channelRepo repository.ChannelRepository
	users       repository.UserDirectory
	notifier    Notifier
	locks       *channelLocks

	defaultLimit int
	maxLimit     int
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	channelRepo repository.ChannelRepository,
	users repository.UserDirectory,
) *MessageService {
	return &MessageService{
		messageRepo:  messageRepo,
		channelRepo:  channelRepo,
		users:        users,
		notifier:     nopNotifier{},
		locks:        channelGuard,
		defaultLimit: DefaultHistoryLimit,
		maxLimit:     MaxHistoryLimit,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetHistoryLimits overrides the default and maximum page size of History.
func (s *MessageService) SetHistoryLimits(defaultLimit, maxLimit int) {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
}

type SendMessageInput struct {
	Text      string     `json:"text" validate:"notblank,max=4000"`
	ReplyToID *uuid.UUID `json:"reply_to_id,omitempty"`
}

type EditMessageInput struct {
	Text string `json:"text" validate:"notblank,max=4000"`
}

// Send appends a message to a channel. REST and real-time sends both land
// here. Appends to one channel are serialized so that notifications leave
// in persistence order.
func (s *MessageService) Send(ctx context.Context, id domain.Identity, channelID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	if errs := validator.Struct(input); errs.HasErrors() {
		return nil, invalid(errs)
	}

	unlock := s.locks.lock(channelID)
	defer unlock()

	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.IsDeleted {
		return nil, ErrChannelUnavailable
	}
	if ch.IsPrivate && !ch.HasMember(id.UserID) {
		return nil, ErrNotChannelMember
	}

	if input.ReplyToID != nil {
		target, err := s.messageRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			return nil, err
		}
		if target == nil || target.IsDeleted || target.ChannelID != channelID {
			return nil, ErrReplyTargetNotFound
		}
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:        uuid.New(),
		ChannelID: channelID,
		SenderID:  id.UserID,
		Text:      input.Text,
		ReplyToID: input.ReplyToID,
		ReadBy:    []uuid.UUID{id.UserID},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	// Another instance may have deleted the channel since the check above.
	if ch, err = s.channelRepo.GetByID(ctx, channelID); err != nil {
		return nil, err
	}
	if ch == nil || ch.IsDeleted {
		s.retract(ctx, msg, ch)
		return nil, ErrChannelUnavailable
	}
	if err := s.channelRepo.Touch(ctx, channelID, now); err != nil {
		return nil, fmt.Errorf("touching channel: %w", err)
	}

	out := []domain.Message{*msg}
	if err := s.decorate(ctx, out); err != nil {
		return nil, err
	}
	full := &out[0]

	s.notifier.NotifyNewMessage(full)
	return full, nil
}

// retract tombstones a message that landed in a channel deleted under it,
// with the channel's own deletion stamp when there is one.
func (s *MessageService) retract(ctx context.Context, msg *domain.Message, ch *domain.Channel) {
	by, at := msg.SenderID, time.Now().UTC()
	if ch != nil && ch.DeletedBy != nil && ch.DeletedAt != nil {
		by, at = *ch.DeletedBy, *ch.DeletedAt
	}
	if _, err := s.messageRepo.SoftDelete(ctx, msg.ID, by, at); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID.String()).Msg("retracting message from deleted channel")
	}
}

// History returns the latest messages of a visible channel, oldest first,
// and marks them read for the caller.
func (s *MessageService) History(ctx context.Context, id domain.Identity, channelID uuid.UUID, limit int) ([]domain.Message, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil || !ch.VisibleTo(id.UserID) {
		return nil, ErrChannelNotFound
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	messages, err := s.messageRepo.ListRecent(ctx, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	var unread []uuid.UUID
	for _, m := range messages {
		if m.SenderID != id.UserID && !m.ReadByUser(id.UserID) {
			unread = append(unread, m.ID)
		}
	}

	if len(unread) > 0 {
		changed, err := s.messageRepo.MarkRead(ctx, unread, id.UserID)
		if err != nil {
			return nil, fmt.Errorf("marking read: %w", err)
		}
		for i := range messages {
			if messages[i].SenderID != id.UserID && !messages[i].ReadByUser(id.UserID) {
				messages[i].ReadBy = append(messages[i].ReadBy, id.UserID)
			}
		}
		if changed > 0 {
			s.notifier.NotifyMessagesRead(channelID, id.UserID)
		}
	}

	if err := s.decorate(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *MessageService) Edit(ctx context.Context, id domain.Identity, messageID uuid.UUID, input EditMessageInput) (*domain.Message, error) {
	if !id.IsAdmin() {
		return nil, ErrNotAdmin
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.IsDeleted {
		return nil, ErrMessageNotFound
	}

	if errs := validator.Struct(input); errs.HasErrors() {
		return nil, invalid(errs)
	}

	ok, err := s.messageRepo.UpdateText(ctx, messageID, input.Text, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}
	if !ok {
		return nil, ErrMessageNotFound
	}

	updated, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrMessageNotFound
	}

	out := []domain.Message{*updated}
	if err := s.decorate(ctx, out); err != nil {
		return nil, err
	}
	full := &out[0]

	s.notifier.NotifyEditedMessage(full)
	return full, nil
}

func (s *MessageService) Delete(ctx context.Context, id domain.Identity, messageID uuid.UUID) error {
	if !id.IsAdmin() {
		return ErrNotAdmin
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.IsDeleted {
		return ErrMessageDeleted
	}

	ok, err := s.messageRepo.SoftDelete(ctx, messageID, id.UserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if !ok {
		return ErrMessageDeleted
	}

	s.notifier.NotifyDeletedMessage(msg.ChannelID, messageID)
	return nil
}

// UnreadTotal sums the caller's unread counts over every visible channel.
func (s *MessageService) UnreadTotal(ctx context.Context, id domain.Identity) (int64, error) {
	channels, err := s.channelRepo.ListVisible(ctx, id.UserID)
	if err != nil {
		return 0, fmt.Errorf("listing channels: %w", err)
	}

	counts, err := unreadCounts(ctx, s.messageRepo, channels, id.UserID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// decorate resolves sender names and reply previews in place.
func (s *MessageService) decorate(ctx context.Context, messages []domain.Message) error {
	var replyIDs []uuid.UUID
	for _, m := range messages {
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}

	targets := map[uuid.UUID]domain.Message{}
	if len(replyIDs) > 0 {
		var err error
		targets, err = s.messageRepo.GetByIDs(ctx, replyIDs)
		if err != nil {
			return fmt.Errorf("resolving reply targets: %w", err)
		}
	}

	seen := make(map[uuid.UUID]struct{})
	var userIDs []uuid.UUID
	addUser := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			userIDs = append(userIDs, id)
		}
	}
	for _, m := range messages {
		addUser(m.SenderID)
	}
	for _, t := range targets {
		addUser(t.SenderID)
	}

	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("resolving users: %w", err)
	}

	for i := range messages {
		m := &messages[i]
		m.SenderName = users[m.SenderID].Name
		if m.ReplyToID == nil {
			continue
		}
		t, ok := targets[*m.ReplyToID]
		if !ok {
			continue
		}
		preview := &domain.ReplyPreview{
			ID:         t.ID,
			SenderID:   t.SenderID,
			SenderName: users[t.SenderID].Name,
			IsDeleted:  t.IsDeleted,
		}
		if !t.IsDeleted {
			preview.Text = t.Text
		}
		m.ReplyTo = preview
	}
	return nil
}
