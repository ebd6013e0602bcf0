package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/repository"
	"github.com/vedran77/pulseboard/pkg/validator"
)

var ErrProjectNotFound = newError(ErrValidation, "Project not found")

type ChannelService struct {
	channelRepo repository.ChannelRepository
	messageRepo repository.MessageRepository
	projects    repository.ProjectDirectory
	notifier    Notifier
	locks       *channelLocks
}

func NewChannelService(
	channelRepo repository.ChannelRepository,
	messageRepo repository.MessageRepository,
	projects repository.ProjectDirectory,
) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		messageRepo: messageRepo,
		projects:    projects,
		notifier:    nopNotifier{},
		locks:       channelGuard,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ChannelService) SetNotifier(n Notifier) {
	s.notifier = n
}

type CreateChannelInput struct {
	Name        string      `json:"name" validate:"notblank,max=80"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=500"`
	ProjectID   *uuid.UUID  `json:"project_id,omitempty"`
	IsPrivate   bool        `json:"is_private"`
	MemberIDs   []uuid.UUID `json:"member_ids,omitempty"`
}

type UpdateChannelInput struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,notblank,max=80"`
	Description *string      `json:"description,omitempty" validate:"omitempty,max=500"`
	IsPrivate   *bool        `json:"is_private,omitempty"`
	MemberIDs   *[]uuid.UUID `json:"member_ids,omitempty"`
}

func (s *ChannelService) ListVisible(ctx context.Context, id domain.Identity) ([]domain.ChannelSummary, error) {
	channels, err := s.channelRepo.ListVisible(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}

	counts, err := unreadCounts(ctx, s.messageRepo, channels, id.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.attachProjects(ctx, channels); err != nil {
		return nil, err
	}

	summaries := make([]domain.ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		summaries = append(summaries, domain.ChannelSummary{
			Channel:     ch,
			UnreadCount: counts[ch.ID],
		})
	}
	return summaries, nil
}

func (s *ChannelService) Get(ctx context.Context, id domain.Identity, channelID uuid.UUID) (*domain.ChannelSummary, error) {
	ch, err := s.visible(ctx, id.UserID, channelID)
	if err != nil {
		return nil, err
	}

	channels := []domain.Channel{*ch}
	counts, err := unreadCounts(ctx, s.messageRepo, channels, id.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.attachProjects(ctx, channels); err != nil {
		return nil, err
	}

	return &domain.ChannelSummary{Channel: channels[0], UnreadCount: counts[ch.ID]}, nil
}

func (s *ChannelService) Create(ctx context.Context, id domain.Identity, input CreateChannelInput) (*domain.Channel, error) {
	if errs := validator.Struct(input); errs.HasErrors() {
		return nil, invalid(errs)
	}

	if input.ProjectID != nil {
		projects, err := s.projects.GetByIDs(ctx, []uuid.UUID{*input.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("resolving project: %w", err)
		}
		if _, ok := projects[*input.ProjectID]; !ok {
			return nil, ErrProjectNotFound
		}
	}

	now := time.Now().UTC()
	ch := &domain.Channel{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: trimOptional(input.Description),
		ProjectID:   input.ProjectID,
		IsPrivate:   input.IsPrivate,
		Members:     memberSet(id.UserID, input.MemberIDs),
		CreatedBy:   id.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.channelRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	if err := s.attachProject(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *ChannelService) Update(ctx context.Context, id domain.Identity, channelID uuid.UUID, input UpdateChannelInput) (*domain.Channel, error) {
	if !id.IsAdmin() {
		return nil, ErrNotAdmin
	}

	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.IsDeleted {
		return nil, ErrChannelNotFound
	}

	if errs := validator.Struct(input); errs.HasErrors() {
		return nil, invalid(errs)
	}

	if input.Name != nil {
		ch.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		ch.Description = trimOptional(input.Description)
	}
	if input.IsPrivate != nil {
		ch.IsPrivate = *input.IsPrivate
	}
	if input.MemberIDs != nil {
		ch.Members = memberSet(ch.CreatedBy, *input.MemberIDs)
	}
	ch.UpdatedAt = time.Now().UTC()

	ok, err := s.channelRepo.Update(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("updating channel: %w", err)
	}
	if !ok {
		return nil, ErrChannelNotFound
	}

	if err := s.attachProject(ctx, ch); err != nil {
		return nil, err
	}

	s.notifier.NotifyChannelEdited(ch)
	return ch, nil
}

// Delete soft-deletes the channel together with all of its messages.
func (s *ChannelService) Delete(ctx context.Context, id domain.Identity, channelID uuid.UUID) error {
	if !id.IsAdmin() {
		return ErrNotAdmin
	}

	unlock := s.locks.lock(channelID)
	defer unlock()

	ok, err := s.channelRepo.SoftDelete(ctx, channelID, id.UserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	if !ok {
		return ErrChannelNotFound
	}

	s.notifier.NotifyChannelDeleted(channelID)
	return nil
}

// visible returns the channel if userID may see it, ErrChannelNotFound otherwise.
func (s *ChannelService) visible(ctx context.Context, userID, channelID uuid.UUID) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil || !ch.VisibleTo(userID) {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

func (s *ChannelService) attachProject(ctx context.Context, ch *domain.Channel) error {
	channels := []domain.Channel{*ch}
	if err := s.attachProjects(ctx, channels); err != nil {
		return err
	}
	ch.ProjectName = channels[0].ProjectName
	return nil
}

func (s *ChannelService) attachProjects(ctx context.Context, channels []domain.Channel) error {
	var ids []uuid.UUID
	for _, ch := range channels {
		if ch.ProjectID != nil {
			ids = append(ids, *ch.ProjectID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	projects, err := s.projects.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolving projects: %w", err)
	}
	for i := range channels {
		if channels[i].ProjectID == nil {
			continue
		}
		channels[i].ProjectName = projects[*channels[i].ProjectID].Name
	}
	return nil
}

func unreadCounts(ctx context.Context, repo repository.MessageRepository, channels []domain.Channel, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	if len(channels) == 0 {
		return map[uuid.UUID]int64{}, nil
	}
	ids := make([]uuid.UUID, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	counts, err := repo.CountUnread(ctx, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("counting unread: %w", err)
	}
	return counts, nil
}

// memberSet returns owner followed by the distinct ids of others.
func memberSet(owner uuid.UUID, others []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{owner: {}}
	members := []uuid.UUID{owner}
	for _, id := range others {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
