package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/cache"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockLLM struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []*domain.LLMRequest
}

func (m *mockLLM) Complete(_ context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.LLMResponse{Content: m.content, Model: "gpt-4o"}, nil
}

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

const validAnalysis = `{
  "churnRiskAssessment": {"level": "high", "confidence": 80, "reasoning": "Payment failed", "keyFactors": ["past due"]},
  "engagementAnalysis": {"score": 33.6, "trend": "declining", "breakdown": {"activity": 20, "monetization": 40, "loyalty": 30}},
  "recommendations": [{"priority": "high", "category": "payment", "action": "Send reminder", "expectedImpact": "Recover revenue", "timeline": "today"}],
  "lifetimeValue": {"predicted": 120, "confidence": 60, "reasoning": "Three more months"},
  "keyInsights": ["Member at risk"]
}`

type aiFixture struct {
	store   *memstore.Store
	llm     *mockLLM
	metrics *observability.Metrics
	svc     *service.AIInsightService
	member  *domain.Member
}

func newAIFixture(t *testing.T, content string) *aiFixture {
	t.Helper()
	store := memstore.New()
	llm := &mockLLM{content: content}
	metrics := observability.NewMetrics()
	c := cache.New[*domain.MemberAnalysisResult](time.Minute)
	t.Cleanup(c.Close)
	return &aiFixture{
		store:   store,
		llm:     llm,
		metrics: metrics,
		svc:     service.NewAIInsightService(llm, store, c, metrics, zap.NewNop()).WithClock(func() time.Time { return testNow }),
		member:  store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1", Email: "a@x.io", Status: domain.MemberPastDue, FirstJoinedAt: *daysAgo(60)}),
	}
}

// --- Tests ---

func TestAnalyzeMember_CachesUntilRefresh(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, validAnalysis)

	first, err := f.svc.AnalyzeMember(ctx, "c1", f.member.ID, false, false)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, domain.ChurnHigh, first.Insights.ChurnRiskAssessment.Level)

	second, err := f.svc.AnalyzeMember(ctx, "c1", f.member.ID, false, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.llm.calls())

	_, err = f.svc.AnalyzeMember(ctx, "c1", f.member.ID, true, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.llm.calls())
}

func TestAnalyzeMember_UpdateScores(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, validAnalysis)

	_, err := f.svc.AnalyzeMember(ctx, "c1", f.member.ID, false, true)
	require.NoError(t, err)

	m, err := f.store.GetMember(ctx, "c1", f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, 34, m.EngagementScore)
	assert.Equal(t, domain.ChurnHigh, m.ChurnRisk)
	assert.InDelta(t, 120.0, m.LifetimeValue, 0.001)
}

func TestAnalyzeMember_RejectsMalformedResponses(t *testing.T) {
	cases := map[string]string{
		"not json":      "I think this member is fine",
		"unknown field": `{"churnRiskAssessment": {"level": "high", "confidence": 80, "reasoning": "x", "keyFactors": ["y"]}, "mood": "sad"}`,
		"bad enum":      `{"churnRiskAssessment": {"level": "extreme", "confidence": 80, "reasoning": "x", "keyFactors": ["y"]}, "engagementAnalysis": {"score": 10, "trend": "stable", "breakdown": {}}, "recommendations": [{"priority": "high", "category": "c", "action": "a", "expectedImpact": "e", "timeline": "t"}], "lifetimeValue": {"predicted": 1, "confidence": 1, "reasoning": "r"}, "keyInsights": ["k"]}`,
		"trailing data": validAnalysis + ` {}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			f := newAIFixture(t, content)
			_, err := f.svc.AnalyzeMember(context.Background(), "c1", f.member.ID, false, true)
			var ie *domain.ErrInvalidLLMResponse
			require.ErrorAs(t, err, &ie)

			m, err := f.store.GetMember(context.Background(), "c1", f.member.ID)
			require.NoError(t, err)
			assert.Zero(t, m.EngagementScore)
		})
	}
}

func TestAnalyzeMember_LLMErrorPassesThrough(t *testing.T) {
	f := newAIFixture(t, "")
	f.llm.err = &domain.ErrNotConfigured{Setting: "OPENAI_API_KEY"}

	_, err := f.svc.AnalyzeMember(context.Background(), "c1", f.member.ID, false, false)
	var nc *domain.ErrNotConfigured
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, "OPENAI_API_KEY is not configured", err.Error())
}

func TestGenerateDashboardInsights_ReplacesCompanyID(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, `{"insights": [{"title": "Churn rising", "description": "More cancellations", "priority": "high", "category": "churn", "metric": "12%", "actionable": true, "actionUrl": "/dashboard/COMPANY_ID/members"}]}`)
	company := &domain.Company{ID: "c1", WhopCompanyID: "biz_1"}

	saved, err := f.svc.GenerateDashboardInsights(ctx, company)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "/dashboard/biz_1/members", saved[0].ActionURL)
	assert.True(t, saved[0].IsActive)

	f.llm.content = `[]`
	empty, err := f.svc.GenerateDashboardInsights(ctx, company)
	require.NoError(t, err)
	assert.Empty(t, empty)

	stored, err := f.svc.ListDashboardInsights(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestGenerateDashboardInsights_InvalidPriority(t *testing.T) {
	f := newAIFixture(t, `[{"title": "t", "description": "d", "priority": "urgent", "category": "c"}]`)
	_, err := f.svc.GenerateDashboardInsights(context.Background(), &domain.Company{ID: "c1"})
	var ie *domain.ErrInvalidLLMResponse
	assert.ErrorAs(t, err, &ie)
}

func TestSearchMembers(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, `{"status": ["past_due"], "churnRisk": ["high"], "totalRevenue": {"min": 100}}`)

	res, err := f.svc.SearchMembers(ctx, "  risky payers over $100 ")
	require.NoError(t, err)
	assert.Equal(t, []domain.MemberStatus{domain.MemberPastDue}, res.Filters.Status)
	require.NotNil(t, res.Filters.TotalRevenue)
	assert.InDelta(t, 100.0, *res.Filters.TotalRevenue.Min, 0.001)
	assert.Equal(t, "Searching for members matching: risky payers over $100", res.Interpretation)

	_, err = f.svc.SearchMembers(ctx, "   ")
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)

	f.llm.content = `{"status": ["vip"]}`
	_, err = f.svc.SearchMembers(ctx, "vips")
	var ie *domain.ErrInvalidLLMResponse
	assert.ErrorAs(t, err, &ie)

	f.llm.err = errors.New("boom")
	_, err = f.svc.SearchMembers(ctx, "anyone")
	assert.Error(t, err)
}
