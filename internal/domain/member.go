package domain

import (
	"encoding/json"
	"time"
)

// MemberStatus is the lifecycle state of a member.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberCancelled MemberStatus = "cancelled"
	MemberPastDue   MemberStatus = "past_due"
	MemberInactive  MemberStatus = "inactive"
)

// ChurnRisk is the heuristic churn label.
type ChurnRisk string

const (
	ChurnLow    ChurnRisk = "low"
	ChurnMedium ChurnRisk = "medium"
	ChurnHigh   ChurnRisk = "high"
)

// Company is the tenant root.
type Company struct {
	ID             string     `json:"id"`
	WhopCompanyID  string     `json:"whop_company_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email,omitempty"`
	IsActive       bool       `json:"is_active"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Member is a platform user's relationship to a company.
type Member struct {
	ID              string       `json:"id"`
	CompanyID       string       `json:"company_id"`
	WhopUserID      string       `json:"whop_user_id"`
	Email           string       `json:"email"`
	Username        string       `json:"username,omitempty"`
	ProfilePicURL   string       `json:"profile_pic_url,omitempty"`
	Status          MemberStatus `json:"status"`
	CurrentPlan     string       `json:"current_plan,omitempty"`
	PlanID          string       `json:"plan_id,omitempty"`
	TotalRevenue    float64      `json:"total_revenue"`
	MonthlyRevenue  float64      `json:"monthly_revenue"`
	LifetimeValue   float64      `json:"lifetime_value"`
	EngagementScore int          `json:"engagement_score"`
	ChurnRisk       ChurnRisk    `json:"churn_risk"`
	FirstJoinedAt   time.Time    `json:"first_joined_at"`
	LastSeenAt      *time.Time   `json:"last_seen_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Membership is one subscription instance of a member.
type Membership struct {
	ID               string     `json:"id"`
	MemberID         string     `json:"member_id"`
	WhopMembershipID string     `json:"whop_membership_id"`
	PlanID           string     `json:"plan_id"`
	PlanName         string     `json:"plan_name"`
	Status           string     `json:"status"`
	Price            float64    `json:"price"`
	Currency         string     `json:"currency"`
	Interval         string     `json:"interval"`
	StartedAt        time.Time  `json:"started_at"`
	RenewsAt         *time.Time `json:"renews_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Event is an append-only log entry on a member.
type Event struct {
	ID         string          `json:"id"`
	MemberID   string          `json:"member_id"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Note is a free-text annotation on a member.
type Note struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	CompanyID string    `json:"company_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a company-scoped label.
type Tag struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberTag joins a tag to a member. Unique on (TagID, MemberID).
type MemberTag struct {
	MemberID  string    `json:"member_id"`
	TagID     string    `json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
	Tag       *Tag      `json:"tag,omitempty"`
}

// MemberSnapshot is the denormalized view scoring and recommendations run on.
type MemberSnapshot struct {
	Member      Member       `json:"member"`
	Events      []Event      `json:"events"`
	Memberships []Membership `json:"memberships"`
	Notes       []Note       `json:"notes"`
	Tags        []MemberTag  `json:"tags,omitempty"`
}

// MemberFilter narrows member listings.
type MemberFilter struct {
	Search   string
	Status   MemberStatus
	Page     int
	PageSize int
}

// MemberList is a page of members plus counts by status.
type MemberList struct {
	Members      []Member             `json:"members"`
	Total        int                  `json:"total"`
	StatusCounts map[MemberStatus]int `json:"status_counts"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
}

// MemberUpsert describes the platform-side view of a member, as carried by
// webhooks and the membership sync.
type MemberUpsert struct {
	CompanyID     string
	WhopUserID    string
	Email         string
	Username      string
	ProfilePicURL string
	Status        MemberStatus
	CurrentPlan   string
	PlanID        string
	FirstJoinedAt *time.Time
	LastSeenAt    *time.Time
}

// MembershipUpsert is the platform-side view of a membership.
type MembershipUpsert struct {
	MemberID         string
	WhopMembershipID string
	PlanID           string
	PlanName         string
	Status           string
	Price            float64
	Currency         string
	Interval         string
	StartedAt        time.Time
	RenewsAt         *time.Time
	CancelledAt      *time.Time
}

// MemberScores are the derived values written back by rescoring.
type MemberScores struct {
	EngagementScore int       `json:"engagement_score"`
	ChurnRisk       ChurnRisk `json:"churn_risk"`
	LifetimeValue   float64   `json:"lifetime_value"`
}

// Recommendation is one suggested action for a member.
type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// MemberInsights is the heuristic report for a single member.
type MemberInsights struct {
	MemberID        string           `json:"member_id"`
	ChurnRisk       ChurnRisk        `json:"churn_risk"`
	EngagementScore int              `json:"engagement_score"`
	LifetimeValue   float64          `json:"lifetime_value"`
	Recommendations []Recommendation `json:"recommendations"`
}

// BatchResult reports a continue-on-failure batch operation.
type BatchResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// DashboardStats are the headline numbers of the company dashboard.
type DashboardStats struct {
	TotalMembers   int     `json:"total_members"`
	ActiveMembers  int     `json:"active_members"`
	TotalRevenue   float64 `json:"total_revenue"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
	RecentEvents   []Event `json:"recent_events"`
}

// UpdatableMemberFields lists the string columns an update_field automation
// action may overwrite.
var UpdatableMemberFields = map[string]struct{}{
	"status":          {},
	"churn_risk":      {},
	"current_plan":    {},
	"plan_id":         {},
	"username":        {},
	"email":           {},
	"profile_pic_url": {},
}

// NormalizeMemberField maps the camelCase names used by automation authors to
// column names.
func NormalizeMemberField(field string) string {
	switch field {
	case "churnRisk":
		return "churn_risk"
	case "currentPlan":
		return "current_plan"
	case "planId":
		return "plan_id"
	case "profilePicUrl":
		return "profile_pic_url"
	}
	return field
}

// NoteInput is the payload of a new member note.
type NoteInput struct {
	Content string `json:"content" validate:"required,max=10000"`
}

// TagInput is the payload of a new company tag.
type TagInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,max=32"`
}

// MemberIDsInput carries the selection of a bulk member operation.
type MemberIDsInput struct {
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,required"`
}
