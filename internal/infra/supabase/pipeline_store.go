package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// ============================================================
// Prospects
// ============================================================

// Server-assigned or embedded columns never written back.
var (
	prospectReadOnly     = []string{"id", "created_at", "updated_at", "conversations", "reminders"}
	conversationReadOnly = []string{"id", "created_at", "updated_at", "messages"}
	reminderReadOnly     = []string{"id", "created_at", "updated_at"}
)

func (c *Client) ListProspects(ctx context.Context, companyID string, f domain.ProspectFilter) ([]domain.Prospect, error) {
	path := "prospects?company_id=" + eq(companyID)
	if f.Status != "" {
		path += "&status=" + eq(string(f.Status))
	}
	if f.Priority != "" {
		path += "&priority=" + eq(string(f.Priority))
	}
	if f.Search != "" {
		path += "&or=" + ilikeAny(f.Search, "name", "email", "community_name")
	}
	path += "&order=updated_at.desc"

	rows := make([]domain.Prospect, 0)
	if err := c.selectRows(ctx, "ListProspects", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetProspect(ctx context.Context, companyID, prospectID string) (*domain.Prospect, error) {
	var rows []domain.Prospect
	path := fmt.Sprintf("prospects?id=%s&company_id=%s&limit=1", eq(prospectID), eq(companyID))
	if err := c.selectRows(ctx, "GetProspect", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "prospect", ID: prospectID})
}

func (c *Client) CreateProspect(ctx context.Context, p *domain.Prospect) (*domain.Prospect, error) {
	row, err := toRow(p, prospectReadOnly...)
	if err != nil {
		return nil, err
	}
	var rows []domain.Prospect
	if err := c.insert(ctx, "CreateProspect", "prospects", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "prospect", ID: p.Name})
}

func (c *Client) SaveProspect(ctx context.Context, p *domain.Prospect) (*domain.Prospect, error) {
	row, err := toRow(p, prospectReadOnly...)
	if err != nil {
		return nil, err
	}
	row["updated_at"] = c.now()

	var rows []domain.Prospect
	path := fmt.Sprintf("prospects?id=%s&company_id=%s", eq(p.ID), eq(p.CompanyID))
	if err := c.patch(ctx, "SaveProspect", path, row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "prospect", ID: p.ID})
}

// DeleteProspect cascades to conversations, messages and reminders in the
// database.
func (c *Client) DeleteProspect(ctx context.Context, companyID, prospectID string) error {
	return c.removeScoped(ctx, "DeleteProspect", "prospects", "prospect", companyID, prospectID)
}

func (c *Client) removeScoped(ctx context.Context, op, table, resource, companyID, id string) error {
	n, err := c.remove(ctx, op, fmt.Sprintf("%s?id=%s&company_id=%s", table, eq(id), eq(companyID)))
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return nil
}

// ============================================================
// Conversations & messages
// ============================================================

func (c *Client) ListConversations(ctx context.Context, companyID string, f domain.ConversationFilter) ([]domain.Conversation, error) {
	path := "conversations?company_id=" + eq(companyID)
	if f.ProspectID != "" {
		path += "&prospect_id=" + eq(f.ProspectID)
	}
	if f.Status != "" {
		path += "&status=" + eq(string(f.Status))
	}
	path += "&order=updated_at.desc"

	rows := make([]domain.Conversation, 0)
	if err := c.selectRows(ctx, "ListConversations", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetConversation(ctx context.Context, companyID, conversationID string) (*domain.Conversation, error) {
	var rows []domain.Conversation
	path := fmt.Sprintf("conversations?id=%s&company_id=%s&limit=1", eq(conversationID), eq(companyID))
	if err := c.selectRows(ctx, "GetConversation", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "conversation", ID: conversationID})
}

func (c *Client) CreateConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	row, err := toRow(conv, conversationReadOnly...)
	if err != nil {
		return nil, err
	}
	var rows []domain.Conversation
	if err := c.insert(ctx, "CreateConversation", "conversations", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "prospect", ID: conv.ProspectID})
}

func (c *Client) SaveConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	row, err := toRow(conv, conversationReadOnly...)
	if err != nil {
		return nil, err
	}
	row["updated_at"] = c.now()

	var rows []domain.Conversation
	path := fmt.Sprintf("conversations?id=%s&company_id=%s", eq(conv.ID), eq(conv.CompanyID))
	if err := c.patch(ctx, "SaveConversation", path, row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "conversation", ID: conv.ID})
}

func (c *Client) DeleteConversation(ctx context.Context, companyID, conversationID string) error {
	return c.removeScoped(ctx, "DeleteConversation", "conversations", "conversation", companyID, conversationID)
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.ConversationMessage, error) {
	rows := make([]domain.ConversationMessage, 0)
	path := "conversation_messages?conversation_id=" + eq(conversationID) + "&order=sent_at.asc"
	if err := c.selectRows(ctx, "ListMessages", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) CreateMessage(ctx context.Context, m *domain.ConversationMessage) (*domain.ConversationMessage, error) {
	drop := []string{"id"}
	if m.SentAt.IsZero() {
		drop = append(drop, "sent_at")
	}
	row, err := toRow(m, drop...)
	if err != nil {
		return nil, err
	}
	var rows []domain.ConversationMessage
	if err := c.insert(ctx, "CreateMessage", "conversation_messages", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "conversation", ID: m.ConversationID})
}

// ============================================================
// Follow-up reminders
// ============================================================

func (c *Client) ListReminders(ctx context.Context, companyID string, f domain.ReminderFilter) ([]domain.FollowUpReminder, error) {
	path := "follow_up_reminders?company_id=" + eq(companyID)
	if f.ProspectID != "" {
		path += "&prospect_id=" + eq(f.ProspectID)
	}
	if f.Status != "" {
		path += "&status=" + eq(string(f.Status))
	}
	if f.DueBefore != nil {
		path += "&due_at=lte." + ts(*f.DueBefore)
	}
	path += "&order=due_at.asc"

	rows := make([]domain.FollowUpReminder, 0)
	if err := c.selectRows(ctx, "ListReminders", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetReminder(ctx context.Context, companyID, reminderID string) (*domain.FollowUpReminder, error) {
	var rows []domain.FollowUpReminder
	path := fmt.Sprintf("follow_up_reminders?id=%s&company_id=%s&limit=1", eq(reminderID), eq(companyID))
	if err := c.selectRows(ctx, "GetReminder", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "reminder", ID: reminderID})
}

func (c *Client) CreateReminder(ctx context.Context, r *domain.FollowUpReminder) (*domain.FollowUpReminder, error) {
	row, err := toRow(r, reminderReadOnly...)
	if err != nil {
		return nil, err
	}
	var rows []domain.FollowUpReminder
	if err := c.insert(ctx, "CreateReminder", "follow_up_reminders", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "prospect", ID: r.ProspectID})
}

// SaveReminder writes every column, so a nil CompletedAt clears it.
func (c *Client) SaveReminder(ctx context.Context, r *domain.FollowUpReminder) (*domain.FollowUpReminder, error) {
	row, err := toRow(r, reminderReadOnly...)
	if err != nil {
		return nil, err
	}
	row["completed_at"] = r.CompletedAt
	row["updated_at"] = c.now()

	var rows []domain.FollowUpReminder
	path := fmt.Sprintf("follow_up_reminders?id=%s&company_id=%s", eq(r.ID), eq(r.CompanyID))
	if err := c.patch(ctx, "SaveReminder", path, row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "reminder", ID: r.ID})
}

func (c *Client) DeleteReminder(ctx context.Context, companyID, reminderID string) error {
	return c.removeScoped(ctx, "DeleteReminder", "follow_up_reminders", "reminder", companyID, reminderID)
}
