package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TriggerType is the domain event that activates an automation.
type TriggerType string

const (
	TriggerMembershipCreated   TriggerType = "membership_created"
	TriggerMembershipCancelled TriggerType = "membership_cancelled"
	TriggerPaymentSucceeded    TriggerType = "payment_succeeded"
	TriggerPaymentFailed       TriggerType = "payment_failed"
)

// Valid reports whether t is a known trigger.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerMembershipCreated, TriggerMembershipCancelled, TriggerPaymentSucceeded, TriggerPaymentFailed:
		return true
	}
	return false
}

// Trigger matches automations by exact event type.
type Trigger struct {
	Type TriggerType `json:"type" validate:"required,oneof=membership_created membership_cancelled payment_succeeded payment_failed"`
}

// ActionType discriminates the Action union on the wire.
type ActionType string

const (
	ActionAddTag      ActionType = "add_tag"
	ActionRemoveTag   ActionType = "remove_tag"
	ActionAddNote     ActionType = "add_note"
	ActionUpdateField ActionType = "update_field"
)

// ActionVisitor handles every action kind. Adding a kind to the union means
// adding a method here, so every executor has to handle it.
type ActionVisitor interface {
	VisitAddTag(ctx context.Context, a AddTagAction) error
	VisitRemoveTag(ctx context.Context, a RemoveTagAction) error
	VisitAddNote(ctx context.Context, a AddNoteAction) error
	VisitUpdateField(ctx context.Context, a UpdateFieldAction) error
}

// Action is one effect an automation applies to a member.
type Action interface {
	Type() ActionType
	Accept(ctx context.Context, v ActionVisitor) error
	Validate() error
}

// AddTagAction attaches a tag to the member. No-op when already attached.
type AddTagAction struct {
	TagID   string
	TagName string
}

func (AddTagAction) Type() ActionType { return ActionAddTag }

func (a AddTagAction) Accept(ctx context.Context, v ActionVisitor) error {
	return v.VisitAddTag(ctx, a)
}

func (a AddTagAction) Validate() error {
	if a.TagID == "" {
		return &ErrValidation{Field: "tag_id", Message: "add_tag requires tag_id"}
	}
	return nil
}

// RemoveTagAction detaches a tag from the member. No-op when absent.
type RemoveTagAction struct {
	TagID string
}

func (RemoveTagAction) Type() ActionType { return ActionRemoveTag }

func (a RemoveTagAction) Accept(ctx context.Context, v ActionVisitor) error {
	return v.VisitRemoveTag(ctx, a)
}

func (a RemoveTagAction) Validate() error {
	if a.TagID == "" {
		return &ErrValidation{Field: "tag_id", Message: "remove_tag requires tag_id"}
	}
	return nil
}

// AddNoteAction appends a note to the member.
type AddNoteAction struct {
	Content string
}

func (AddNoteAction) Type() ActionType { return ActionAddNote }

func (a AddNoteAction) Accept(ctx context.Context, v ActionVisitor) error {
	return v.VisitAddNote(ctx, a)
}

func (a AddNoteAction) Validate() error {
	if a.Content == "" {
		return &ErrValidation{Field: "content", Message: "add_note requires content"}
	}
	return nil
}

// UpdateFieldAction overwrites one string column of the member with a literal.
type UpdateFieldAction struct {
	Field string
	Value string
}

func (UpdateFieldAction) Type() ActionType { return ActionUpdateField }

func (a UpdateFieldAction) Accept(ctx context.Context, v ActionVisitor) error {
	return v.VisitUpdateField(ctx, a)
}

func (a UpdateFieldAction) Validate() error {
	if a.Field == "" {
		return &ErrValidation{Field: "field", Message: "update_field requires field"}
	}
	if _, ok := UpdatableMemberFields[NormalizeMemberField(a.Field)]; !ok {
		return &ErrValidation{Field: "field", Message: fmt.Sprintf("member field %q cannot be updated by automations", a.Field)}
	}
	return nil
}

// actionWire is the persisted JSON form of every action kind.
type actionWire struct {
	Type    ActionType `json:"type"`
	TagID   string     `json:"tag_id,omitempty"`
	TagName string     `json:"tag_name,omitempty"`
	Content string     `json:"content,omitempty"`
	Field   string     `json:"field,omitempty"`
	Value   string     `json:"value,omitempty"`
}

// Actions is an ordered action list that (de)serializes the tagged union.
type Actions []Action

func (as Actions) MarshalJSON() ([]byte, error) {
	wire := make([]actionWire, 0, len(as))
	for _, a := range as {
		switch a := a.(type) {
		case AddTagAction:
			wire = append(wire, actionWire{Type: ActionAddTag, TagID: a.TagID, TagName: a.TagName})
		case RemoveTagAction:
			wire = append(wire, actionWire{Type: ActionRemoveTag, TagID: a.TagID})
		case AddNoteAction:
			wire = append(wire, actionWire{Type: ActionAddNote, Content: a.Content})
		case UpdateFieldAction:
			wire = append(wire, actionWire{Type: ActionUpdateField, Field: a.Field, Value: a.Value})
		default:
			return nil, fmt.Errorf("unsupported action %T", a)
		}
	}
	return json.Marshal(wire)
}

func (as *Actions) UnmarshalJSON(data []byte) error {
	var wire []actionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Actions, 0, len(wire))
	for i, w := range wire {
		switch w.Type {
		case ActionAddTag:
			out = append(out, AddTagAction{TagID: w.TagID, TagName: w.TagName})
		case ActionRemoveTag:
			out = append(out, RemoveTagAction{TagID: w.TagID})
		case ActionAddNote:
			out = append(out, AddNoteAction{Content: w.Content})
		case ActionUpdateField:
			out = append(out, UpdateFieldAction{Field: w.Field, Value: w.Value})
		default:
			return fmt.Errorf("action %d: unknown type %q", i, w.Type)
		}
	}
	*as = out
	return nil
}

// Automation is a stored trigger → actions rule.
type Automation struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Trigger     Trigger    `json:"trigger"`
	Actions     Actions    `json:"actions"`
	IsActive    bool       `json:"is_active"`
	RunCount    int        `json:"run_count"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AutomationInput is the create payload for an automation.
type AutomationInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Trigger     Trigger `json:"trigger"`
	Actions     Actions `json:"actions" validate:"min=1"`
}

// ExecutionContext is the domain event an automation run reacts to.
type ExecutionContext struct {
	MemberID  string
	CompanyID string
	Trigger   TriggerType
	Data      json.RawMessage
}

// RunSummary reports one engine invocation.
type RunSummary struct {
	Matched        int `json:"matched"`
	ActionsRun     int `json:"actions_run"`
	ActionsFailed  int `json:"actions_failed"`
	ActionsSkipped int `json:"actions_skipped"`
}
