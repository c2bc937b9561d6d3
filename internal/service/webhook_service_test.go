package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type webhookFixture struct {
	store   *memstore.Store
	metrics *observability.Metrics
	svc     *service.WebhookService
	company *domain.Company
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	store := memstore.New()
	metrics := observability.NewMetrics()
	tenants := service.NewTenantService(store, "biz_1", zap.NewNop())
	company, err := tenants.Configured(context.Background())
	require.NoError(t, err)

	engine := service.NewAutomationEngine(store, metrics, zap.NewNop())
	return &webhookFixture{
		store:   store,
		metrics: metrics,
		svc:     service.NewWebhookService(store, tenants, engine, 4, metrics, zap.NewNop()),
		company: company,
	}
}

func envelope(t *testing.T, action string, data any) domain.WebhookEnvelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return domain.WebhookEnvelope{Action: action, Data: raw}
}

func TestWebhook_MembershipValidCreatesMember(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	err := f.svc.Process(ctx, envelope(t, domain.WebhookMembershipValid, map[string]any{
		"id":    "mem_1",
		"valid": true,
		"user":  map[string]any{"id": "user_1", "email": "a@example.com", "username": "alice"},
		"plan":  map[string]any{"id": "plan_1", "name": "Pro", "initial_price": 29.0},
	}))
	require.NoError(t, err)

	m, err := f.store.GetMemberByWhopUserID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, f.company.ID, m.CompanyID)
	assert.Equal(t, domain.MemberActive, m.Status)
	assert.Equal(t, "Pro", m.CurrentPlan)

	ms, err := f.store.ListMemberships(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "mem_1", ms[0].WhopMembershipID)

	evs, err := f.store.ListEvents(ctx, m.ID, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, string(domain.TriggerMembershipCreated), evs[0].Type)
}

func TestWebhook_PaymentFailedEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	member := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "user_1", Status: domain.MemberActive})
	tag, err := f.store.CreateTag(ctx, &domain.Tag{CompanyID: f.company.ID, Name: "payment-issue"})
	require.NoError(t, err)
	_, err = f.store.CreateAutomation(ctx, &domain.Automation{
		CompanyID: f.company.ID,
		Name:      "flag failed payments",
		Trigger:   domain.Trigger{Type: domain.TriggerPaymentFailed},
		Actions:   domain.Actions{domain.AddTagAction{TagID: tag.ID}},
		IsActive:  true,
	})
	require.NoError(t, err)

	env := envelope(t, domain.WebhookPaymentFailed, map[string]any{
		"id": "pay_1", "user_id": "user_1", "final_amount": 10.0, "company_id": "biz_1",
	})

	first, err := f.svc.Accept(ctx, "msg_1", env)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := f.svc.Accept(ctx, "msg_1", env)
	require.NoError(t, err)
	assert.False(t, again)

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Drain(drainCtx))

	m, err := f.store.GetMember(ctx, f.company.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberPastDue, m.Status)

	tags, err := f.store.ListMemberTags(ctx, []string{member.ID})
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	evs, err := f.store.ListEvents(ctx, member.ID, 10)
	require.NoError(t, err)
	assert.Len(t, evs, 1)

	d, ok := f.store.Delivery("msg_1")
	require.True(t, ok)
	assert.NotNil(t, d.ProcessedAt)
	assert.Empty(t, d.Error)
	assert.Equal(t, 1.0, f.metrics.WebhookCount(domain.WebhookPaymentFailed, "processed"))
	assert.Equal(t, 1.0, f.metrics.WebhookCount(domain.WebhookPaymentFailed, "duplicate"))
}

func TestWebhook_PaymentSucceededUsesAmountAfterFees(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	member := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "user_1", TotalRevenue: 5})

	require.NoError(t, f.svc.Process(ctx, envelope(t, domain.WebhookPaymentSucceeded, map[string]any{
		"user_id": "user_1", "final_amount": 10.0, "amount_after_fees": 9.5,
	})))
	require.NoError(t, f.svc.Process(ctx, envelope(t, domain.WebhookPaymentSucceeded, map[string]any{
		"user_id": "user_1", "final_amount": 10.0, "amount_after_fees": 0,
	})))

	m, err := f.store.GetMember(ctx, f.company.ID, member.ID)
	require.NoError(t, err)
	assert.InDelta(t, 24.5, m.TotalRevenue, 0.001)
}

func TestWebhook_MembershipInvalidCancels(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	member := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "user_1", Status: domain.MemberActive})

	require.NoError(t, f.svc.Process(ctx, envelope(t, domain.WebhookMembershipInvalid, map[string]any{
		"id": "mem_missing", "user": map[string]any{"id": "user_1"},
	})))

	m, err := f.store.GetMember(ctx, f.company.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberCancelled, m.Status)
	assert.NotNil(t, m.CancelledAt)
}

func TestWebhook_OtherCompanyIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	member := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "user_1", Status: domain.MemberActive})

	err := f.svc.Process(ctx, envelope(t, domain.WebhookPaymentFailed, map[string]any{
		"user_id": "user_1", "company_id": "biz_other",
	}))
	assert.Error(t, err)

	m, err := f.store.GetMember(ctx, f.company.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberActive, m.Status)
}

func TestWebhook_UnknownMemberAndActionSkipped(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	_, err := f.svc.Accept(ctx, "msg_a", envelope(t, domain.WebhookPaymentFailed, map[string]any{"user_id": "ghost"}))
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, "msg_b", envelope(t, "app.installed", map[string]any{}))
	require.NoError(t, err)
	require.NoError(t, f.svc.Drain(ctx))

	assert.Equal(t, 1.0, f.metrics.WebhookCount(domain.WebhookPaymentFailed, "skipped"))
	assert.Equal(t, 1.0, f.metrics.WebhookCount("app.installed", "skipped"))
}

func TestWebhook_MembershipValidLeavesForeignMemberUntouched(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	foreign := f.store.PutMember(domain.Member{
		CompanyID:   "other-co",
		WhopUserID:  "user_1",
		Email:       "orig@other.com",
		Status:      domain.MemberCancelled,
		CurrentPlan: "Gold",
	})

	err := f.svc.Process(ctx, envelope(t, domain.WebhookMembershipValid, map[string]any{
		"id":    "mem_x",
		"valid": true,
		"user":  map[string]any{"id": "user_1", "email": "attacker@x.com"},
		"plan":  map[string]any{"id": "plan_free", "name": "Free"},
	}))
	assert.Error(t, err)

	m, err := f.store.GetMember(ctx, "other-co", foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, "orig@other.com", m.Email)
	assert.Equal(t, domain.MemberCancelled, m.Status)
	assert.Equal(t, "Gold", m.CurrentPlan)

	ms, err := f.store.ListMemberships(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Empty(t, ms)
	evs, err := f.store.ListEvents(ctx, foreign.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestWebhook_FailedDeliveryIsReprocessed(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	member := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "user_1", Status: domain.MemberActive})

	broken := domain.WebhookEnvelope{Action: domain.WebhookPaymentFailed, Data: json.RawMessage(`"not an object"`)}
	first, err := f.svc.Accept(ctx, "msg_retry", broken)
	require.NoError(t, err)
	assert.True(t, first)
	require.NoError(t, f.svc.Drain(ctx))

	d, ok := f.store.Delivery("msg_retry")
	require.True(t, ok)
	assert.NotEmpty(t, d.Error)

	first, err = f.svc.Accept(ctx, "msg_retry", envelope(t, domain.WebhookPaymentFailed, map[string]any{"user_id": "user_1"}))
	require.NoError(t, err)
	assert.True(t, first)
	require.NoError(t, f.svc.Drain(ctx))

	d, _ = f.store.Delivery("msg_retry")
	assert.Empty(t, d.Error)
	assert.NotNil(t, d.ProcessedAt)
	m, err := f.store.GetMember(ctx, f.company.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberPastDue, m.Status)

	first, err = f.svc.Accept(ctx, "msg_retry", envelope(t, domain.WebhookPaymentFailed, map[string]any{"user_id": "user_1"}))
	require.NoError(t, err)
	assert.False(t, first)
}
