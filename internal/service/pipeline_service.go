package service

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var pipelineTracer = otel.Tracer("service/pipeline")

const (
	lastMessagePreview = 100
	upcomingWindow     = 7 * 24 * time.Hour
)

// PipelineService manages prospects, their conversations and follow-up
// reminders.
type PipelineService struct {
	store  port.ProspectStore
	logger *zap.Logger
	now    func() time.Time
}

// NewPipelineService creates a pipeline service.
func NewPipelineService(store port.ProspectStore, logger *zap.Logger) *PipelineService {
	return &PipelineService{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *PipelineService) WithClock(now func() time.Time) *PipelineService {
	s.now = now
	return s
}

// ============================================================
// Prospects
// ============================================================

func (s *PipelineService) ListProspects(ctx context.Context, companyID string, f domain.ProspectFilter) ([]domain.Prospect, error) {
	return s.store.ListProspects(ctx, companyID, f)
}

// CreateProspect stores a new prospect; status defaults to new and priority
// to medium.
func (s *PipelineService) CreateProspect(ctx context.Context, companyID string, in domain.ProspectInput) (*domain.Prospect, error) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.CreateProspect")
	defer span.End()

	in.Name = sanitizeText(in.Name)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	p := &domain.Prospect{
		CompanyID:     companyID,
		Name:          in.Name,
		Email:         in.Email,
		WhopUserID:    in.WhopUserID,
		ProfilePicURL: in.ProfilePicURL,
		CommunityName: sanitizeText(in.CommunityName),
		CommunitySize: in.CommunitySize,
		Platform:      in.Platform,
		Niche:         in.Niche,
		Status:        in.Status,
		Priority:      in.Priority,
		WhopDmURL:     in.WhopDmURL,
		DiscordHandle: in.DiscordHandle,
		TwitterHandle: in.TwitterHandle,
		Notes:         sanitizeText(in.Notes),
		Tags:          in.Tags,
		Metadata:      in.Metadata,
	}
	if p.Status == "" {
		p.Status = domain.ProspectNew
	}
	if p.Priority == "" {
		p.Priority = domain.PriorityMedium
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	created, err := s.store.CreateProspect(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("prospect created", zap.String("company_id", companyID), zap.String("prospect_id", created.ID))
	return created, nil
}

// GetProspect returns a prospect with its conversations and reminders.
func (s *PipelineService) GetProspect(ctx context.Context, companyID, prospectID string) (*domain.Prospect, error) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.GetProspect")
	defer span.End()
	span.SetAttributes(attribute.String("prospect.id", prospectID))

	p, err := s.store.GetProspect(ctx, companyID, prospectID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p.Conversations, err = s.store.ListConversations(gctx, companyID, domain.ConversationFilter{ProspectID: prospectID})
		return err
	})
	g.Go(func() error {
		var err error
		p.Reminders, err = s.store.ListReminders(gctx, companyID, domain.ReminderFilter{ProspectID: prospectID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProspect applies a partial update.
func (s *PipelineService) UpdateProspect(ctx context.Context, companyID, prospectID string, u domain.ProspectUpdate) (*domain.Prospect, error) {
	if err := validateStruct(&u); err != nil {
		return nil, err
	}
	p, err := s.store.GetProspect(ctx, companyID, prospectID)
	if err != nil {
		return nil, err
	}
	if u.Notes != nil {
		clean := sanitizeText(*u.Notes)
		u.Notes = &clean
	}
	u.Apply(p)
	return s.store.SaveProspect(ctx, p)
}

func (s *PipelineService) DeleteProspect(ctx context.Context, companyID, prospectID string) error {
	return s.store.DeleteProspect(ctx, companyID, prospectID)
}

// ============================================================
// Conversations
// ============================================================

func (s *PipelineService) ListConversations(ctx context.Context, companyID string, f domain.ConversationFilter) ([]domain.Conversation, error) {
	return s.store.ListConversations(ctx, companyID, f)
}

// CreateConversation opens a thread with a prospect of the company.
func (s *PipelineService) CreateConversation(ctx context.Context, companyID string, in domain.ConversationInput) (*domain.Conversation, error) {
	in.Title = sanitizeText(in.Title)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProspect(ctx, companyID, in.ProspectID); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = domain.ConversationOpen
	}
	return s.store.CreateConversation(ctx, &domain.Conversation{
		ProspectID: in.ProspectID,
		CompanyID:  companyID,
		Title:      in.Title,
		Status:     status,
	})
}

// GetConversation returns a conversation with its messages.
func (s *PipelineService) GetConversation(ctx context.Context, companyID, conversationID string) (*domain.Conversation, error) {
	c, err := s.store.GetConversation(ctx, companyID, conversationID)
	if err != nil {
		return nil, err
	}
	c.Messages, err = s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PipelineService) UpdateConversation(ctx context.Context, companyID, conversationID string, u domain.ConversationUpdate) (*domain.Conversation, error) {
	if err := validateStruct(&u); err != nil {
		return nil, err
	}
	c, err := s.store.GetConversation(ctx, companyID, conversationID)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		c.Title = sanitizeText(*u.Title)
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	return s.store.SaveConversation(ctx, c)
}

func (s *PipelineService) DeleteConversation(ctx context.Context, companyID, conversationID string) error {
	return s.store.DeleteConversation(ctx, companyID, conversationID)
}

// ListMessages returns a conversation's messages, oldest first.
func (s *PipelineService) ListMessages(ctx context.Context, companyID, conversationID string) ([]domain.ConversationMessage, error) {
	if _, err := s.store.GetConversation(ctx, companyID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// PostMessage appends a message and refreshes the conversation preview.
func (s *PipelineService) PostMessage(ctx context.Context, companyID, conversationID string, in domain.MessageInput) (*domain.ConversationMessage, error) {
	ctx, span := pipelineTracer.Start(ctx, "PipelineService.PostMessage")
	defer span.End()

	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	c, err := s.store.GetConversation(ctx, companyID, conversationID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg, err := s.store.CreateMessage(ctx, &domain.ConversationMessage{
		ConversationID: conversationID,
		Content:        in.Content,
		Sender:         in.Sender,
		SenderName:     in.SenderName,
		Metadata:       in.Metadata,
		SentAt:         now,
	})
	if err != nil {
		return nil, err
	}

	c.LastMessage = truncateRunes(in.Content, lastMessagePreview)
	c.LastMessageAt = &now
	c.MessageCount++
	if _, err := s.store.SaveConversation(ctx, c); err != nil {
		s.logger.Warn("conversation preview not updated",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	return msg, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ============================================================
// Reminders
// ============================================================

// ListReminders returns reminders due-date first. With upcoming set, only
// pending reminders due within the next seven days are returned.
func (s *PipelineService) ListReminders(ctx context.Context, companyID string, f domain.ReminderFilter, upcoming bool) ([]domain.FollowUpReminder, error) {
	if upcoming {
		cutoff := s.now().Add(upcomingWindow)
		f.Status = domain.ReminderPending
		f.DueBefore = &cutoff
	}
	return s.store.ListReminders(ctx, companyID, f)
}

func (s *PipelineService) CreateReminder(ctx context.Context, companyID string, in domain.ReminderInput) (*domain.FollowUpReminder, error) {
	in.Title = sanitizeText(in.Title)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProspect(ctx, companyID, in.ProspectID); err != nil {
		return nil, err
	}
	return s.store.CreateReminder(ctx, &domain.FollowUpReminder{
		ProspectID:  in.ProspectID,
		CompanyID:   companyID,
		Title:       in.Title,
		Description: sanitizeText(in.Description),
		DueAt:       in.DueAt.UTC(),
		Status:      domain.ReminderPending,
	})
}

func (s *PipelineService) GetReminder(ctx context.Context, companyID, reminderID string) (*domain.FollowUpReminder, error) {
	return s.store.GetReminder(ctx, companyID, reminderID)
}

// UpdateReminder applies a partial update. Completing a reminder stamps
// completed_at.
func (s *PipelineService) UpdateReminder(ctx context.Context, companyID, reminderID string, u domain.ReminderUpdate) (*domain.FollowUpReminder, error) {
	if err := validateStruct(&u); err != nil {
		return nil, err
	}
	r, err := s.store.GetReminder(ctx, companyID, reminderID)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		r.Title = sanitizeText(*u.Title)
	}
	if u.Description != nil {
		r.Description = sanitizeText(*u.Description)
	}
	if u.DueAt != nil {
		r.DueAt = u.DueAt.UTC()
	}
	if u.Status != nil {
		r.Status = *u.Status
		if r.Status == domain.ReminderCompleted {
			now := s.now().UTC()
			r.CompletedAt = &now
		} else {
			r.CompletedAt = nil
		}
	}
	return s.store.SaveReminder(ctx, r)
}

func (s *PipelineService) DeleteReminder(ctx context.Context, companyID, reminderID string) error {
	return s.store.DeleteReminder(ctx, companyID, reminderID)
}
