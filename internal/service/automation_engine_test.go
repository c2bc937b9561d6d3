package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type engineFixture struct {
	store   *memstore.Store
	metrics *observability.Metrics
	engine  *service.AutomationEngine
	member  *domain.Member
	tag     *domain.Tag
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store := memstore.New()
	tag, err := store.CreateTag(context.Background(), &domain.Tag{CompanyID: "c1", Name: "at-risk"})
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	return &engineFixture{
		store:   store,
		metrics: metrics,
		engine:  service.NewAutomationEngine(store, metrics, zap.NewNop()),
		member:  store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1", Status: domain.MemberActive}),
		tag:     tag,
	}
}

func (f *engineFixture) automation(t *testing.T, trigger domain.TriggerType, active bool, actions ...domain.Action) *domain.Automation {
	t.Helper()
	a, err := f.store.CreateAutomation(context.Background(), &domain.Automation{
		CompanyID: "c1",
		Name:      string(trigger),
		Trigger:   domain.Trigger{Type: trigger},
		Actions:   actions,
		IsActive:  active,
	})
	require.NoError(t, err)
	return a
}

func (f *engineFixture) exec(trigger domain.TriggerType) domain.ExecutionContext {
	return domain.ExecutionContext{MemberID: f.member.ID, CompanyID: "c1", Trigger: trigger}
}

func TestAutomationEngine_RunsMatchingActions(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	a := f.automation(t, domain.TriggerPaymentFailed, true,
		domain.AddTagAction{TagID: f.tag.ID},
		domain.AddNoteAction{Content: "<b>Payment failed</b>"},
		domain.UpdateFieldAction{Field: "churnRisk", Value: "high"},
	)
	f.automation(t, domain.TriggerPaymentSucceeded, true, domain.AddNoteAction{Content: "thanks"})
	f.automation(t, domain.TriggerPaymentFailed, false, domain.AddNoteAction{Content: "inactive"})

	summary, err := f.engine.Execute(ctx, f.exec(domain.TriggerPaymentFailed))
	require.NoError(t, err)
	assert.Equal(t, &domain.RunSummary{Matched: 1, ActionsRun: 3}, summary)

	tags, err := f.store.ListMemberTags(ctx, []string{f.member.ID})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, f.tag.ID, tags[0].TagID)

	notes, err := f.store.ListNotes(ctx, f.member.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Payment failed", notes[0].Content)

	m, err := f.store.GetMember(ctx, "c1", f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChurnHigh, m.ChurnRisk)

	stored, err := f.store.GetAutomation(ctx, "c1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RunCount)
	assert.NotNil(t, stored.LastRunAt)
}

func TestAutomationEngine_AddTagIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	a := f.automation(t, domain.TriggerMembershipCreated, true, domain.AddTagAction{TagID: f.tag.ID})

	for i := 0; i < 3; i++ {
		_, err := f.engine.Execute(ctx, f.exec(domain.TriggerMembershipCreated))
		require.NoError(t, err)
	}

	tags, err := f.store.ListMemberTags(ctx, []string{f.member.ID})
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	stored, err := f.store.GetAutomation(ctx, "c1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.RunCount)
}

func TestAutomationEngine_FailuresDoNotStopLaterActions(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	foreign, err := f.store.CreateTag(ctx, &domain.Tag{CompanyID: "c2", Name: "other"})
	require.NoError(t, err)

	f.automation(t, domain.TriggerPaymentFailed, true,
		domain.AddTagAction{TagID: foreign.ID},
		domain.UpdateFieldAction{Field: "total_revenue", Value: "0"},
		domain.AddNoteAction{Content: "still runs"},
	)
	f.automation(t, domain.TriggerPaymentFailed, true, domain.RemoveTagAction{TagID: f.tag.ID})

	summary, err := f.engine.Execute(ctx, f.exec(domain.TriggerPaymentFailed))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 2, summary.ActionsRun)
	assert.Equal(t, 1, summary.ActionsFailed)
	assert.Equal(t, 1, summary.ActionsSkipped)

	assert.Equal(t, 1.0, f.metrics.ActionCount(string(domain.ActionAddTag), "failed"))
	assert.Equal(t, 1.0, f.metrics.ActionCount(string(domain.ActionUpdateField), "skipped"))

	tags, err := f.store.ListMemberTags(ctx, []string{f.member.ID})
	require.NoError(t, err)
	assert.Empty(t, tags)

	notes, err := f.store.ListNotes(ctx, f.member.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "still runs", notes[0].Content)
}

func TestAutomationEngine_NoMatches(t *testing.T) {
	f := newEngineFixture(t)
	summary, err := f.engine.Execute(context.Background(), f.exec(domain.TriggerMembershipCancelled))
	require.NoError(t, err)
	assert.Zero(t, summary.Matched)
}
