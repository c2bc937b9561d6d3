package domain

import (
	"encoding/json"
	"time"
)

// ProspectStatus is the pipeline stage of a prospect.
type ProspectStatus string

const (
	ProspectNew            ProspectStatus = "new"
	ProspectContacted      ProspectStatus = "contacted"
	ProspectFollowUpNeeded ProspectStatus = "follow_up_needed"
	ProspectNegotiating    ProspectStatus = "negotiating"
	ProspectConverted      ProspectStatus = "converted"
	ProspectDead           ProspectStatus = "dead"
)

// ProspectPriority ranks prospects.
type ProspectPriority string

const (
	PriorityLow    ProspectPriority = "low"
	PriorityMedium ProspectPriority = "medium"
	PriorityHigh   ProspectPriority = "high"
	PriorityUrgent ProspectPriority = "urgent"
)

// Prospect is a sales-pipeline lead, independent of platform members.
type Prospect struct {
	ID              string             `json:"id"`
	CompanyID       string             `json:"company_id"`
	Name            string             `json:"name"`
	Email           string             `json:"email,omitempty"`
	WhopUserID      string             `json:"whop_user_id,omitempty"`
	ProfilePicURL   string             `json:"profile_pic_url,omitempty"`
	CommunityName   string             `json:"community_name,omitempty"`
	CommunitySize   *int               `json:"community_size,omitempty"`
	Platform        string             `json:"platform,omitempty"`
	Niche           string             `json:"niche,omitempty"`
	Status          ProspectStatus     `json:"status"`
	Priority        ProspectPriority   `json:"priority"`
	WhopDmURL       string             `json:"whop_dm_url,omitempty"`
	DiscordHandle   string             `json:"discord_handle,omitempty"`
	TwitterHandle   string             `json:"twitter_handle,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	Tags            []string           `json:"tags"`
	Metadata        json.RawMessage    `json:"metadata,omitempty"`
	LastContactedAt *time.Time         `json:"last_contacted_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Conversations   []Conversation     `json:"conversations,omitempty"`
	Reminders       []FollowUpReminder `json:"reminders,omitempty"`
}

// ProspectInput is the create payload; optional enums default when empty.
type ProspectInput struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Email         string           `json:"email" validate:"omitempty,email"`
	WhopUserID    string           `json:"whop_user_id"`
	ProfilePicURL string           `json:"profile_pic_url" validate:"omitempty,url"`
	CommunityName string           `json:"community_name"`
	CommunitySize *int             `json:"community_size" validate:"omitempty,min=0"`
	Platform      string           `json:"platform"`
	Niche         string           `json:"niche"`
	Status        ProspectStatus   `json:"status" validate:"omitempty,oneof=new contacted follow_up_needed negotiating converted dead"`
	Priority      ProspectPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	WhopDmURL     string           `json:"whop_dm_url"`
	DiscordHandle string           `json:"discord_handle"`
	TwitterHandle string           `json:"twitter_handle"`
	Notes         string           `json:"notes"`
	Tags          []string         `json:"tags"`
	Metadata      json.RawMessage  `json:"metadata"`
}

// ProspectUpdate is a partial update; nil fields are left unchanged.
type ProspectUpdate struct {
	Name            *string           `json:"name" validate:"omitempty,min=1,max=200"`
	Email           *string           `json:"email" validate:"omitempty,email"`
	WhopUserID      *string           `json:"whop_user_id"`
	ProfilePicURL   *string           `json:"profile_pic_url"`
	CommunityName   *string           `json:"community_name"`
	CommunitySize   *int              `json:"community_size" validate:"omitempty,min=0"`
	Platform        *string           `json:"platform"`
	Niche           *string           `json:"niche"`
	Status          *ProspectStatus   `json:"status" validate:"omitempty,oneof=new contacted follow_up_needed negotiating converted dead"`
	Priority        *ProspectPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	WhopDmURL       *string           `json:"whop_dm_url"`
	DiscordHandle   *string           `json:"discord_handle"`
	TwitterHandle   *string           `json:"twitter_handle"`
	Notes           *string           `json:"notes"`
	Tags            []string          `json:"tags"`
	Metadata        json.RawMessage   `json:"metadata"`
	LastContactedAt *time.Time        `json:"last_contacted_at"`
}

// Apply copies the set fields of u onto p.
func (u ProspectUpdate) Apply(p *Prospect) {
	setString(&p.Name, u.Name)
	setString(&p.Email, u.Email)
	setString(&p.WhopUserID, u.WhopUserID)
	setString(&p.ProfilePicURL, u.ProfilePicURL)
	setString(&p.CommunityName, u.CommunityName)
	setString(&p.Platform, u.Platform)
	setString(&p.Niche, u.Niche)
	setString(&p.WhopDmURL, u.WhopDmURL)
	setString(&p.DiscordHandle, u.DiscordHandle)
	setString(&p.TwitterHandle, u.TwitterHandle)
	setString(&p.Notes, u.Notes)
	if u.CommunitySize != nil {
		p.CommunitySize = u.CommunitySize
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Priority != nil {
		p.Priority = *u.Priority
	}
	if u.Tags != nil {
		p.Tags = u.Tags
	}
	if u.Metadata != nil {
		p.Metadata = u.Metadata
	}
	if u.LastContactedAt != nil {
		p.LastContactedAt = u.LastContactedAt
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ProspectFilter narrows prospect listings.
type ProspectFilter struct {
	Status   ProspectStatus
	Priority ProspectPriority
	Search   string
}

// ConversationStatus is the state of a prospect conversation.
type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "open"
	ConversationClosed   ConversationStatus = "closed"
	ConversationArchived ConversationStatus = "archived"
)

// Conversation is a message thread with a prospect.
type Conversation struct {
	ID            string                `json:"id"`
	ProspectID    string                `json:"prospect_id"`
	CompanyID     string                `json:"company_id"`
	Title         string                `json:"title"`
	Status        ConversationStatus    `json:"status"`
	LastMessage   string                `json:"last_message,omitempty"`
	LastMessageAt *time.Time            `json:"last_message_at,omitempty"`
	MessageCount  int                   `json:"message_count"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Messages      []ConversationMessage `json:"messages,omitempty"`
}

// ConversationInput is the create payload of a conversation.
type ConversationInput struct {
	ProspectID string             `json:"prospect_id" validate:"required"`
	Title      string             `json:"title" validate:"required,max=200"`
	Status     ConversationStatus `json:"status" validate:"omitempty,oneof=open closed archived"`
}

// ConversationUpdate is a partial update of a conversation.
type ConversationUpdate struct {
	Title  *string             `json:"title" validate:"omitempty,min=1,max=200"`
	Status *ConversationStatus `json:"status" validate:"omitempty,oneof=open closed archived"`
}

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	ProspectID string
	Status     ConversationStatus
}

// MessageSender identifies who wrote a message.
type MessageSender string

const (
	SenderUser     MessageSender = "user"
	SenderProspect MessageSender = "prospect"
)

// ConversationMessage is one message in a conversation.
type ConversationMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Content        string          `json:"content"`
	Sender         MessageSender   `json:"sender"`
	SenderName     string          `json:"sender_name,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	SentAt         time.Time       `json:"sent_at"`
}

// MessageInput is the payload for posting a message.
type MessageInput struct {
	Content    string          `json:"content" validate:"required,max=10000"`
	Sender     MessageSender   `json:"sender" validate:"required,oneof=user prospect"`
	SenderName string          `json:"sender_name"`
	Metadata   json.RawMessage `json:"metadata"`
}

// ReminderStatus is the state of a follow-up reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderCompleted ReminderStatus = "completed"
	ReminderDismissed ReminderStatus = "dismissed"
)

// FollowUpReminder is a dated to-do attached to a prospect.
type FollowUpReminder struct {
	ID          string         `json:"id"`
	ProspectID  string         `json:"prospect_id"`
	CompanyID   string         `json:"company_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	DueAt       time.Time      `json:"due_at"`
	Status      ReminderStatus `json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ReminderInput is the create payload of a reminder.
type ReminderInput struct {
	ProspectID  string     `json:"prospect_id" validate:"required"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	DueAt       *time.Time `json:"due_at" validate:"required"`
}

// ReminderUpdate is a partial update of a reminder.
type ReminderUpdate struct {
	Title       *string         `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string         `json:"description"`
	DueAt       *time.Time      `json:"due_at"`
	Status      *ReminderStatus `json:"status" validate:"omitempty,oneof=pending completed dismissed"`
}

// ReminderFilter narrows reminder listings. DueBefore restricts to reminders
// due at or before the given instant.
type ReminderFilter struct {
	ProspectID string
	Status     ReminderStatus
	DueBefore  *time.Time
}
