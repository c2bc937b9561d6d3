package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/resilience"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var webhookTracer = otel.Tracer("service/webhook")

// webhookStore is what webhook processing writes to.
type webhookStore interface {
	port.MemberStore
	port.WebhookStore
}

// companyResolver yields the company webhooks are applied to.
type companyResolver interface {
	Configured(ctx context.Context) (*domain.Company, error)
}

// errSkipped marks a delivery that was valid but had nothing to apply.
var errSkipped = errors.New("skipped")

// WebhookService applies verified platform webhooks to the CRM. Deliveries
// are deduplicated by id, acknowledged immediately and processed on a
// background goroutine.
type WebhookService struct {
	store    webhookStore
	tenants  companyResolver
	engine   AutomationRunner
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewWebhookService creates a webhook service. maxConcurrency bounds the
// number of deliveries processed at once.
func NewWebhookService(
	store webhookStore,
	tenants companyResolver,
	engine AutomationRunner,
	maxConcurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		store:    store,
		tenants:  tenants,
		engine:   engine,
		bulkhead: resilience.NewBulkhead(maxConcurrency),
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Accept records the delivery and schedules its processing. It returns false
// for a redelivery, which is acknowledged but not processed again.
func (s *WebhookService) Accept(ctx context.Context, deliveryID string, env domain.WebhookEnvelope) (bool, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.Accept")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.id", deliveryID),
		attribute.String("webhook.action", env.Action),
	)

	first, err := s.store.RecordDelivery(ctx, &domain.WebhookDelivery{
		ID:         deliveryID,
		Action:     env.Action,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return false, err
	}
	if !first {
		s.metrics.IncrWebhook(env.Action, "duplicate")
		s.logger.Info("webhook redelivery ignored",
			zap.String("webhook_id", deliveryID),
			zap.String("action", env.Action),
		)
		return false, nil
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.bulkhead.Acquire(bg); err != nil {
			return
		}
		defer s.bulkhead.Release()
		s.processDelivery(bg, deliveryID, env)
	}()
	return true, nil
}

// Drain waits until in-flight deliveries finish or ctx is done.
func (s *WebhookService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebhookService) processDelivery(ctx context.Context, deliveryID string, env domain.WebhookEnvelope) {
	start := time.Now()
	err := s.Process(ctx, env)
	s.metrics.RecordRequestDuration("webhook_"+env.Action, time.Since(start))

	outcome, errText := "processed", ""
	switch {
	case errors.Is(err, errSkipped):
		outcome = "skipped"
	case err != nil:
		outcome, errText = "failed", err.Error()
		s.logger.Error("webhook processing failed",
			zap.String("webhook_id", deliveryID),
			zap.String("action", env.Action),
			zap.Error(err),
		)
	}
	s.metrics.IncrWebhook(env.Action, outcome)

	if ferr := s.store.FinishDelivery(ctx, deliveryID, s.now(), errText); ferr != nil {
		s.logger.Warn("webhook: failed to finish delivery", zap.String("webhook_id", deliveryID), zap.Error(ferr))
	}
}

// Process applies one webhook synchronously. Unknown actions and payloads for
// other companies or unknown members are skipped.
func (s *WebhookService) Process(ctx context.Context, env domain.WebhookEnvelope) error {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.Process")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.action", env.Action))

	company, err := s.tenants.Configured(ctx)
	if err != nil {
		return fmt.Errorf("resolve company: %w", err)
	}

	switch env.Action {
	case domain.WebhookMembershipValid:
		var m domain.WhopMembership
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("decode membership: %w", err)
		}
		if !s.ownedBy(company, m.CompanyID, env.Action) {
			return errSkipped
		}
		return s.membershipValid(ctx, company, m, env.Data)

	case domain.WebhookMembershipInvalid:
		var m domain.WhopMembership
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("decode membership: %w", err)
		}
		if !s.ownedBy(company, m.CompanyID, env.Action) {
			return errSkipped
		}
		return s.membershipInvalid(ctx, company, m, env.Data)

	case domain.WebhookPaymentSucceeded, domain.WebhookPaymentFailed:
		var p domain.WhopPayment
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode payment: %w", err)
		}
		if !s.ownedBy(company, p.CompanyID, env.Action) {
			return errSkipped
		}
		if env.Action == domain.WebhookPaymentSucceeded {
			return s.paymentSucceeded(ctx, company, p, env.Data)
		}
		return s.paymentFailed(ctx, company, p, env.Data)
	}

	s.logger.Info("unhandled webhook action", zap.String("action", env.Action))
	return errSkipped
}

func (s *WebhookService) ownedBy(company *domain.Company, payloadCompanyID, action string) bool {
	if payloadCompanyID == "" || payloadCompanyID == company.WhopCompanyID {
		return true
	}
	s.logger.Warn("webhook for another company skipped",
		zap.String("action", action),
		zap.String("payload_company_id", payloadCompanyID),
		zap.String("company_id", company.WhopCompanyID),
	)
	return false
}

func (s *WebhookService) membershipValid(ctx context.Context, company *domain.Company, m domain.WhopMembership, raw json.RawMessage) error {
	if m.User == nil || m.User.ID == "" {
		return &domain.ErrValidation{Field: "user", Message: "membership has no user"}
	}

	existing, err := s.store.GetMemberByWhopUserID(ctx, m.User.ID)
	var nf *domain.ErrNotFound
	switch {
	case err == nil && existing.CompanyID != company.ID:
		s.logger.Warn("webhook for member of another company skipped",
			zap.String("whop_user_id", m.User.ID),
			zap.String("company_id", company.ID),
		)
		return errSkipped
	case err != nil && !errors.As(err, &nf):
		return fmt.Errorf("find member: %w", err)
	}

	status := domain.MemberInactive
	if m.Valid {
		status = domain.MemberActive
	}
	up := &domain.MemberUpsert{
		CompanyID:     company.ID,
		WhopUserID:    m.User.ID,
		Email:         m.User.Email,
		Username:      m.User.Username,
		ProfilePicURL: m.User.ProfilePicURL,
		Status:        status,
	}
	if m.Plan != nil {
		up.CurrentPlan = m.Plan.Name
		up.PlanID = m.Plan.ID
	}

	member, err := s.store.UpsertMember(ctx, up)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}

	if _, err := s.store.UpsertMembership(ctx, membershipUpsert(member.ID, m, string(status), s.now())); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}

	return s.recordAndRun(ctx, company, member.ID, domain.TriggerMembershipCreated, raw)
}

func (s *WebhookService) membershipInvalid(ctx context.Context, company *domain.Company, m domain.WhopMembership, raw json.RawMessage) error {
	if m.User == nil || m.User.ID == "" {
		return &domain.ErrValidation{Field: "user", Message: "membership has no user"}
	}
	member, ok, err := s.findMember(ctx, company, m.User.ID)
	if err != nil || !ok {
		return err
	}

	now := s.now()
	if err := s.store.UpdateMemberFields(ctx, member.ID, map[string]any{
		"status":       string(domain.MemberCancelled),
		"cancelled_at": now,
	}); err != nil {
		return fmt.Errorf("cancel member: %w", err)
	}

	if err := s.store.CancelMembership(ctx, m.ID, now); err != nil {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			return fmt.Errorf("cancel membership: %w", err)
		}
		s.logger.Warn("webhook: membership to cancel not found", zap.String("whop_membership_id", m.ID))
	}

	return s.recordAndRun(ctx, company, member.ID, domain.TriggerMembershipCancelled, raw)
}

func (s *WebhookService) paymentSucceeded(ctx context.Context, company *domain.Company, p domain.WhopPayment, raw json.RawMessage) error {
	if p.UserID == "" {
		return errSkipped
	}
	member, ok, err := s.findMember(ctx, company, p.UserID)
	if err != nil || !ok {
		return err
	}

	if err := s.store.IncrementMemberRevenue(ctx, member.ID, p.Amount()); err != nil {
		return fmt.Errorf("increment revenue: %w", err)
	}

	return s.recordAndRun(ctx, company, member.ID, domain.TriggerPaymentSucceeded, raw)
}

func (s *WebhookService) paymentFailed(ctx context.Context, company *domain.Company, p domain.WhopPayment, raw json.RawMessage) error {
	if p.UserID == "" {
		return errSkipped
	}
	member, ok, err := s.findMember(ctx, company, p.UserID)
	if err != nil || !ok {
		return err
	}

	if err := s.store.UpdateMemberFields(ctx, member.ID, map[string]any{
		"status": string(domain.MemberPastDue),
	}); err != nil {
		return fmt.Errorf("mark past due: %w", err)
	}

	return s.recordAndRun(ctx, company, member.ID, domain.TriggerPaymentFailed, raw)
}

// findMember looks a member up by platform user id. ok is false, with a
// skip error, when the member is unknown or belongs to another company.
func (s *WebhookService) findMember(ctx context.Context, company *domain.Company, whopUserID string) (*domain.Member, bool, error) {
	member, err := s.store.GetMemberByWhopUserID(ctx, whopUserID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			s.logger.Info("webhook for unknown member skipped", zap.String("whop_user_id", whopUserID))
			return nil, false, errSkipped
		}
		return nil, false, fmt.Errorf("find member: %w", err)
	}
	if member.CompanyID != company.ID {
		return nil, false, errSkipped
	}
	return member, true, nil
}

func (s *WebhookService) recordAndRun(ctx context.Context, company *domain.Company, memberID string, trigger domain.TriggerType, raw json.RawMessage) error {
	if _, err := s.store.CreateEvent(ctx, &domain.Event{
		MemberID:   memberID,
		Type:       string(trigger),
		Data:       raw,
		OccurredAt: s.now(),
	}); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	if _, err := s.engine.Execute(ctx, domain.ExecutionContext{
		MemberID:  memberID,
		CompanyID: company.ID,
		Trigger:   trigger,
		Data:      raw,
	}); err != nil {
		return fmt.Errorf("run automations: %w", err)
	}
	return nil
}

// membershipUpsert maps a platform membership onto the stored shape.
func membershipUpsert(memberID string, m domain.WhopMembership, status string, now time.Time) *domain.MembershipUpsert {
	up := &domain.MembershipUpsert{
		MemberID:         memberID,
		WhopMembershipID: m.ID,
		Status:           status,
		Currency:         "usd",
		Interval:         "month",
		StartedAt:        now,
		RenewsAt:         domain.UnixTime(m.RenewalPeriodEnd),
	}
	if m.Plan != nil {
		up.PlanID = m.Plan.ID
		up.PlanName = m.Plan.Name
		up.Price = m.Plan.InitialPrice
		if m.Plan.RenewalPeriod != "" {
			up.Interval = m.Plan.RenewalPeriod
		}
	}
	if t := domain.UnixTime(m.RenewalPeriodStart); t != nil {
		up.StartedAt = *t
	} else if t := domain.UnixTime(m.CreatedAt); t != nil {
		up.StartedAt = *t
	}
	return up
}
