// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// LLMCaller runs a JSON-mode chat completion.
type LLMCaller interface {
	Complete(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error)
}

// WhopAPI is the subset of the platform REST API the CRM consumes. An empty
// token falls back to the configured API key.
type WhopAPI interface {
	ListMemberships(ctx context.Context, token string, page, perPage int) (*domain.WhopMembershipPage, error)
	GetCurrentCompany(ctx context.Context, accessToken string) (*domain.WhopCompany, error)
}

// CompanyStore persists tenants.
type CompanyStore interface {
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	GetCompanyByWhopID(ctx context.Context, whopCompanyID string) (*domain.Company, error)
	UpsertCompany(ctx context.Context, c *domain.Company) (*domain.Company, error)
	TouchCompanySync(ctx context.Context, id string, at time.Time) error
}

// MemberStore persists members and their owned records.
type MemberStore interface {
	GetMember(ctx context.Context, companyID, memberID string) (*domain.Member, error)
	GetMemberByWhopUserID(ctx context.Context, whopUserID string) (*domain.Member, error)
	ListMembers(ctx context.Context, companyID string, f domain.MemberFilter) (*domain.MemberList, error)
	QueryMembers(ctx context.Context, companyID string, q domain.MemberQuery) ([]domain.Member, error)
	UpsertMember(ctx context.Context, in *domain.MemberUpsert) (*domain.Member, error)
	UpdateMemberFields(ctx context.Context, memberID string, fields map[string]any) error
	UpdateMemberScores(ctx context.Context, memberID string, scores domain.MemberScores) error
	IncrementMemberRevenue(ctx context.Context, memberID string, amount float64) error
	DeleteMembers(ctx context.Context, companyID string, memberIDs []string) (int, error)
	DeleteAllMembers(ctx context.Context, companyID string) (int, error)

	UpsertMembership(ctx context.Context, in *domain.MembershipUpsert) (*domain.Membership, error)
	CancelMembership(ctx context.Context, whopMembershipID string, at time.Time) error
	ListMemberships(ctx context.Context, memberID string) ([]domain.Membership, error)

	CreateEvent(ctx context.Context, e *domain.Event) (*domain.Event, error)
	ListEvents(ctx context.Context, memberID string, limit int) ([]domain.Event, error)
	ListCompanyEvents(ctx context.Context, companyID string, limit int) ([]domain.Event, error)
}

// NoteStore persists member notes.
type NoteStore interface {
	CreateNote(ctx context.Context, n *domain.Note) (*domain.Note, error)
	ListNotes(ctx context.Context, memberID string, limit int) ([]domain.Note, error)
	GetNote(ctx context.Context, noteID string) (*domain.Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// TagStore persists tags and member-tag assignments.
type TagStore interface {
	ListTags(ctx context.Context, companyID string) ([]domain.Tag, error)
	GetTag(ctx context.Context, companyID, tagID string) (*domain.Tag, error)
	CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error)
	DeleteTag(ctx context.Context, companyID, tagID string) error

	// AddMemberTag is idempotent; created is false when the pair existed.
	AddMemberTag(ctx context.Context, memberID, tagID string) (created bool, err error)
	// RemoveMemberTag is idempotent; removed is false when the pair was absent.
	RemoveMemberTag(ctx context.Context, memberID, tagID string) (removed bool, err error)
	ListMemberTags(ctx context.Context, memberIDs []string) ([]domain.MemberTag, error)
}

// SegmentStore persists saved segments.
type SegmentStore interface {
	ListSegments(ctx context.Context, companyID string) ([]domain.Segment, error)
	GetSegment(ctx context.Context, companyID, segmentID string) (*domain.Segment, error)
	CreateSegment(ctx context.Context, s *domain.Segment) (*domain.Segment, error)
	UpdateSegment(ctx context.Context, s *domain.Segment) (*domain.Segment, error)
	DeleteSegment(ctx context.Context, companyID, segmentID string) error
}

// AutomationStore persists automations. ListActiveAutomations returns rows
// ordered by creation time, then id.
type AutomationStore interface {
	ListAutomations(ctx context.Context, companyID string) ([]domain.Automation, error)
	ListActiveAutomations(ctx context.Context, companyID string) ([]domain.Automation, error)
	GetAutomation(ctx context.Context, companyID, automationID string) (*domain.Automation, error)
	CreateAutomation(ctx context.Context, a *domain.Automation) (*domain.Automation, error)
	SetAutomationActive(ctx context.Context, automationID string, active bool) error
	RecordAutomationRun(ctx context.Context, automationID string, at time.Time) error
	DeleteAutomation(ctx context.Context, companyID, automationID string) error
}

// ProspectStore persists the sales pipeline.
type ProspectStore interface {
	ListProspects(ctx context.Context, companyID string, f domain.ProspectFilter) ([]domain.Prospect, error)
	GetProspect(ctx context.Context, companyID, prospectID string) (*domain.Prospect, error)
	CreateProspect(ctx context.Context, p *domain.Prospect) (*domain.Prospect, error)
	SaveProspect(ctx context.Context, p *domain.Prospect) (*domain.Prospect, error)
	DeleteProspect(ctx context.Context, companyID, prospectID string) error

	ListConversations(ctx context.Context, companyID string, f domain.ConversationFilter) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, companyID, conversationID string) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	SaveConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, companyID, conversationID string) error
	ListMessages(ctx context.Context, conversationID string) ([]domain.ConversationMessage, error)
	CreateMessage(ctx context.Context, m *domain.ConversationMessage) (*domain.ConversationMessage, error)

	ListReminders(ctx context.Context, companyID string, f domain.ReminderFilter) ([]domain.FollowUpReminder, error)
	GetReminder(ctx context.Context, companyID, reminderID string) (*domain.FollowUpReminder, error)
	CreateReminder(ctx context.Context, r *domain.FollowUpReminder) (*domain.FollowUpReminder, error)
	SaveReminder(ctx context.Context, r *domain.FollowUpReminder) (*domain.FollowUpReminder, error)
	DeleteReminder(ctx context.Context, companyID, reminderID string) error
}

// InsightStore persists dashboard insights.
type InsightStore interface {
	ListDashboardInsights(ctx context.Context, companyID string) ([]domain.DashboardInsight, error)
	// ReplaceDashboardInsights deletes every insight of the company and
	// inserts the given ones.
	ReplaceDashboardInsights(ctx context.Context, companyID string, insights []domain.DashboardInsight) ([]domain.DashboardInsight, error)
}

// WebhookStore records webhook deliveries for deduplication.
type WebhookStore interface {
	// RecordDelivery inserts the delivery; first is false when its id was
	// already recorded. A recorded delivery whose processing failed is
	// claimed again and reported as first.
	RecordDelivery(ctx context.Context, d *domain.WebhookDelivery) (first bool, err error)
	FinishDelivery(ctx context.Context, id string, at time.Time, processingErr string) error
}

// Store is the full persistence surface of the CRM, implemented by the
// Supabase adapter and the in-memory store.
type Store interface {
	CompanyStore
	MemberStore
	NoteStore
	TagStore
	SegmentStore
	AutomationStore
	ProspectStore
	InsightStore
	WebhookStore
	Ping(ctx context.Context) error
}
