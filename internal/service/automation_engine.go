package service

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var automationTracer = otel.Tracer("service/automation")

// engineStore is everything automation actions touch.
type engineStore interface {
	port.AutomationStore
	port.MemberStore
	port.TagStore
	port.NoteStore
}

// AutomationRunner executes automations for a domain event.
type AutomationRunner interface {
	Execute(ctx context.Context, ec domain.ExecutionContext) (*domain.RunSummary, error)
}

// AutomationEngine matches active automations to a trigger and runs their
// actions sequentially against the member. Action failures are logged and
// never stop the remaining actions or automations.
type AutomationEngine struct {
	store   engineStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAutomationEngine creates an engine.
func NewAutomationEngine(store engineStore, metrics *observability.Metrics, logger *zap.Logger) *AutomationEngine {
	return &AutomationEngine{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Execute runs every active automation of the company whose trigger matches
// exactly, in creation order. Only a failure to load automations is returned.
func (e *AutomationEngine) Execute(ctx context.Context, ec domain.ExecutionContext) (*domain.RunSummary, error) {
	ctx, span := automationTracer.Start(ctx, "AutomationEngine.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("member.id", ec.MemberID),
		attribute.String("company.id", ec.CompanyID),
		attribute.String("trigger", string(ec.Trigger)),
	)

	automations, err := e.store.ListActiveAutomations(ctx, ec.CompanyID)
	if err != nil {
		e.logger.Error("automation: load failed",
			zap.String("company_id", ec.CompanyID),
			zap.Error(err),
		)
		return nil, err
	}

	summary := &domain.RunSummary{}
	for _, a := range automations {
		if a.Trigger.Type != ec.Trigger {
			continue
		}
		summary.Matched++
		e.run(ctx, a, ec, summary)
	}

	e.logger.Info("automations executed",
		zap.String("member_id", ec.MemberID),
		zap.String("trigger", string(ec.Trigger)),
		zap.Int("matched", summary.Matched),
		zap.Int("actions_run", summary.ActionsRun),
		zap.Int("actions_failed", summary.ActionsFailed),
		zap.Int("actions_skipped", summary.ActionsSkipped),
	)
	return summary, nil
}

func (e *AutomationEngine) run(ctx context.Context, a domain.Automation, ec domain.ExecutionContext, summary *domain.RunSummary) {
	exec := &actionExecutor{engine: e, ec: ec}

	for i, action := range a.Actions {
		fields := []zap.Field{
			zap.String("automation_id", a.ID),
			zap.Int("action_index", i),
			zap.String("action", string(action.Type())),
			zap.String("member_id", ec.MemberID),
		}

		if err := action.Validate(); err != nil {
			summary.ActionsSkipped++
			e.metrics.IncrAction(string(action.Type()), "skipped")
			e.logger.Warn("automation: action skipped", append(fields, zap.Error(err))...)
			continue
		}

		if err := action.Accept(ctx, exec); err != nil {
			summary.ActionsFailed++
			e.metrics.IncrAction(string(action.Type()), "failed")
			e.logger.Error("automation: action failed", append(fields, zap.Error(err))...)
			continue
		}

		summary.ActionsRun++
		e.metrics.IncrAction(string(action.Type()), "ok")
	}

	if err := e.store.RecordAutomationRun(ctx, a.ID, e.now().UTC()); err != nil {
		e.logger.Error("automation: failed to record run",
			zap.String("automation_id", a.ID),
			zap.Error(err),
		)
	}
	e.metrics.IncrAutomationRun(string(a.Trigger.Type))
}

// actionExecutor applies actions to the member of one execution context.
type actionExecutor struct {
	engine *AutomationEngine
	ec     domain.ExecutionContext
}

var _ domain.ActionVisitor = (*actionExecutor)(nil)

func (x *actionExecutor) VisitAddTag(ctx context.Context, a domain.AddTagAction) error {
	if _, err := x.engine.store.GetTag(ctx, x.ec.CompanyID, a.TagID); err != nil {
		return err
	}
	created, err := x.engine.store.AddMemberTag(ctx, x.ec.MemberID, a.TagID)
	if err != nil {
		return err
	}
	if !created {
		x.engine.logger.Debug("automation: tag already present",
			zap.String("member_id", x.ec.MemberID),
			zap.String("tag_id", a.TagID),
		)
	}
	return nil
}

func (x *actionExecutor) VisitRemoveTag(ctx context.Context, a domain.RemoveTagAction) error {
	_, err := x.engine.store.RemoveMemberTag(ctx, x.ec.MemberID, a.TagID)
	return err
}

func (x *actionExecutor) VisitAddNote(ctx context.Context, a domain.AddNoteAction) error {
	content := sanitizeText(a.Content)
	if content == "" {
		return &domain.ErrValidation{Field: "content", Message: "note is empty after sanitizing"}
	}
	_, err := x.engine.store.CreateNote(ctx, &domain.Note{
		MemberID:  x.ec.MemberID,
		CompanyID: x.ec.CompanyID,
		Content:   content,
	})
	return err
}

func (x *actionExecutor) VisitUpdateField(ctx context.Context, a domain.UpdateFieldAction) error {
	field := domain.NormalizeMemberField(a.Field)
	return x.engine.store.UpdateMemberFields(ctx, x.ec.MemberID, map[string]any{field: a.Value})
}
