package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var aiTracer = otel.Tracer("service/ai-insights")

const analysisCacheName = "member_analysis"

type aiStore interface {
	snapshotStore
	port.InsightStore
}

// AIInsightService produces LLM-backed member analyses, dashboard insights
// and natural-language member searches. Every model response is decoded
// strictly and validated before use.
type AIInsightService struct {
	llm     port.LLMCaller
	store   aiStore
	cache   port.Cache[*domain.MemberAnalysisResult]
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAIInsightService creates the service.
func NewAIInsightService(
	llm port.LLMCaller,
	store aiStore,
	c port.Cache[*domain.MemberAnalysisResult],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AIInsightService {
	return &AIInsightService{
		llm:     llm,
		store:   store,
		cache:   c,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *AIInsightService) WithClock(now func() time.Time) *AIInsightService {
	s.now = now
	return s
}

// decodeStrict parses model output into v, rejecting unknown fields,
// trailing data and values that fail validation.
func decodeStrict(content string, v any) error {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ErrInvalidLLMResponse{Reason: err.Error()}
	}
	if dec.More() {
		return &domain.ErrInvalidLLMResponse{Reason: "trailing data after JSON value"}
	}
	if err := validateStruct(v); err != nil {
		return &domain.ErrInvalidLLMResponse{Reason: err.Error()}
	}
	return nil
}

func (s *AIInsightService) complete(ctx context.Context, req *domain.LLMRequest, out any) error {
	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := decodeStrict(resp.Content, out); err != nil {
		s.metrics.IncrLLMRequest("invalid")
		s.logger.Warn("llm response rejected",
			zap.String("operation", req.Operation),
			zap.String("model", resp.Model),
			zap.Error(err),
		)
		return err
	}
	s.metrics.IncrLLMRequest("success")
	return nil
}

// AnalyzeMember returns the deep profile of a member. A cached analysis is
// served unless refresh is set. With updateScores the model's churn level,
// engagement score and LTV are written onto the member.
func (s *AIInsightService) AnalyzeMember(ctx context.Context, companyID, memberID string, refresh, updateScores bool) (*domain.MemberAnalysisResult, error) {
	ctx, span := aiTracer.Start(ctx, "AIInsightService.AnalyzeMember")
	defer span.End()
	span.SetAttributes(
		attribute.String("member.id", memberID),
		attribute.Bool("refresh", refresh),
	)

	key := companyID + ":" + memberID
	if !refresh && !updateScores {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.IncrCacheHit(analysisCacheName)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		s.metrics.IncrCacheMiss(analysisCacheName)
	}

	snap, err := LoadSnapshot(ctx, s.store, companyID, memberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := time.Now()
	var analysis domain.MemberAnalysis
	err = s.complete(ctx, &domain.LLMRequest{
		Operation: "member_analysis",
		Messages: []domain.ChatMessage{
			{Role: "system", Content: memberAnalysisSystemPrompt},
			{Role: "user", Content: buildMemberAnalysisPrompt(snap, now)},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	}, &analysis)
	s.metrics.RecordRequestDuration("member_analysis", time.Since(start))
	if err != nil {
		return nil, err
	}

	if updateScores {
		scores := domain.MemberScores{
			EngagementScore: clampScore(int(analysis.EngagementAnalysis.Score + 0.5)),
			ChurnRisk:       analysis.ChurnRiskAssessment.Level,
			LifetimeValue:   analysis.LifetimeValue.Predicted,
		}
		if err := s.store.UpdateMemberScores(ctx, memberID, scores); err != nil {
			return nil, fmt.Errorf("store model scores: %w", err)
		}
	}

	result := &domain.MemberAnalysisResult{
		Success:    true,
		Source:     "gpt-4o",
		Insights:   analysis,
		AnalyzedAt: now,
	}
	s.cache.Set(key, result)
	return result, nil
}

func clampScore(v int) int {
	return max(0, min(100, v))
}

// llmDashboardInsight is the model's wire shape of one dashboard insight.
type llmDashboardInsight struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority" validate:"required,oneof=critical high medium low"`
	Category    string `json:"category" validate:"required"`
	Metric      string `json:"metric"`
	Actionable  bool   `json:"actionable"`
	ActionURL   string `json:"actionUrl"`
}

type llmDashboardInsights struct {
	Insights []llmDashboardInsight `json:"insights" validate:"dive"`
}

// decodeDashboardInsights accepts either a bare array or {"insights": [...]}.
func decodeDashboardInsights(content string) ([]llmDashboardInsight, error) {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []llmDashboardInsight
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&items); err != nil {
			return nil, &domain.ErrInvalidLLMResponse{Reason: err.Error()}
		}
		wrapped := llmDashboardInsights{Insights: items}
		if err := validateStruct(&wrapped); err != nil {
			return nil, &domain.ErrInvalidLLMResponse{Reason: err.Error()}
		}
		return items, nil
	}

	var wrapped llmDashboardInsights
	if err := decodeStrict(content, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Insights == nil {
		return nil, &domain.ErrInvalidLLMResponse{Reason: "missing insights array"}
	}
	return wrapped.Insights, nil
}

// CompanyAnalytics aggregates the figures the dashboard prompt is built from.
func (s *AIInsightService) CompanyAnalytics(ctx context.Context, companyID string) (*domain.CompanyAnalytics, error) {
	members, err := s.store.QueryMembers(ctx, companyID, domain.MemberQuery{})
	if err != nil {
		return nil, err
	}
	return computeAnalytics(members, s.now()), nil
}

func computeAnalytics(members []domain.Member, now time.Time) *domain.CompanyAnalytics {
	cutoff := now.AddDate(0, 0, -activityWindowDays)
	a := &domain.CompanyAnalytics{TotalMembers: len(members)}
	for _, m := range members {
		switch m.Status {
		case domain.MemberActive:
			a.ActiveMembers++
		case domain.MemberCancelled:
			a.CancelledMembers++
		}
		if m.ChurnRisk == domain.ChurnHigh {
			a.HighChurnRisk++
		}
		if m.EngagementScore > 0 && m.EngagementScore < 40 {
			a.LowEngagement++
		}
		if !m.FirstJoinedAt.IsZero() && !m.FirstJoinedAt.Before(cutoff) {
			a.NewMembers30d++
		}
		if m.CancelledAt != nil && !m.CancelledAt.Before(cutoff) {
			a.RecentCancellations++
		}
		a.TotalRevenue += m.TotalRevenue
	}
	if a.TotalMembers > 0 {
		a.AvgRevenue = a.TotalRevenue / float64(a.TotalMembers)
	}
	if d := a.ActiveMembers + a.RecentCancellations; d > 0 {
		a.ChurnRate = float64(a.RecentCancellations) / float64(d) * 100
	}
	return a
}

// GenerateDashboardInsights asks the model for company insights and replaces
// the stored ones. An empty answer leaves existing insights untouched.
func (s *AIInsightService) GenerateDashboardInsights(ctx context.Context, company *domain.Company) ([]domain.DashboardInsight, error) {
	ctx, span := aiTracer.Start(ctx, "AIInsightService.GenerateDashboardInsights")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", company.ID))

	analytics, err := s.CompanyAnalytics(ctx, company.ID)
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Complete(ctx, &domain.LLMRequest{
		Operation: "dashboard_insights",
		Messages: []domain.ChatMessage{
			{Role: "system", Content: dashboardInsightsSystemPrompt},
			{Role: "user", Content: buildDashboardInsightsPrompt(*analytics)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	items, err := decodeDashboardInsights(resp.Content)
	if err != nil {
		s.metrics.IncrLLMRequest("invalid")
		s.logger.Warn("llm response rejected", zap.String("operation", "dashboard_insights"), zap.Error(err))
		return nil, err
	}
	s.metrics.IncrLLMRequest("success")

	if len(items) == 0 {
		s.logger.Info("no dashboard insights generated", zap.String("company_id", company.ID))
		return []domain.DashboardInsight{}, nil
	}

	insights := make([]domain.DashboardInsight, 0, len(items))
	for _, it := range items {
		insights = append(insights, domain.DashboardInsight{
			CompanyID:   company.ID,
			Title:       it.Title,
			Description: it.Description,
			Priority:    it.Priority,
			Category:    it.Category,
			Metric:      it.Metric,
			Actionable:  it.Actionable,
			ActionURL:   strings.ReplaceAll(it.ActionURL, "COMPANY_ID", company.WhopCompanyID),
			IsActive:    true,
		})
	}

	saved, err := s.store.ReplaceDashboardInsights(ctx, company.ID, insights)
	if err != nil {
		return nil, err
	}
	s.logger.Info("dashboard insights generated", zap.String("company_id", company.ID), zap.Int("count", len(saved)))
	return saved, nil
}

// ListDashboardInsights returns the stored dashboard insights.
func (s *AIInsightService) ListDashboardInsights(ctx context.Context, companyID string) ([]domain.DashboardInsight, error) {
	return s.store.ListDashboardInsights(ctx, companyID)
}

// SearchMembers turns a natural-language query into typed member filters.
func (s *AIInsightService) SearchMembers(ctx context.Context, query string) (*domain.AISearchResult, error) {
	ctx, span := aiTracer.Start(ctx, "AIInsightService.SearchMembers")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ErrValidation{Field: "query", Message: "Query is required"}
	}

	var filters domain.AISearchFilters
	err := s.complete(ctx, &domain.LLMRequest{
		Operation: "member_search",
		Messages: []domain.ChatMessage{
			{Role: "system", Content: memberSearchSystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0.3,
	}, &filters)
	if err != nil {
		return nil, err
	}

	return &domain.AISearchResult{
		Filters:        filters,
		Interpretation: "Searching for members matching: " + query,
	}, nil
}
