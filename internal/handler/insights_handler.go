package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Rule-based scoring
// ============================================================

func memberInsightsHandler(svc *service.ScoringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/members/{memberId}/insights")
		defer span.End()

		insights, err := svc.GetMemberInsights(ctx, companyID(r), chi.URLParam(r, "memberId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, insights)
	}
}

func rescoreMemberHandler(svc *service.ScoringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/{memberId}/insights")
		defer span.End()

		scores, err := svc.UpdateMemberInsights(ctx, companyID(r), chi.URLParam(r, "memberId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "scores": scores})
	}
}

func updateAllInsightsHandler(svc *service.ScoringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/insights/update")
		defer span.End()

		result, err := svc.UpdateAllMemberInsights(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("members.updated", result.Updated))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"updated": result.Updated,
			"total":   result.Total,
		})
	}
}

// ============================================================
// LLM insights
// ============================================================

type gptInsightsRequest struct {
	Refresh      bool `json:"refresh"`
	UpdateScores bool `json:"updateScores"`
}

func gptInsightsHandler(svc *service.AIInsightService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " /v1/members/{memberId}/gpt-insights"
		ctx, span := tracer.Start(r.Context(), route)
		defer span.End()

		req := gptInsightsRequest{Refresh: queryBool(r, "refresh")}
		if r.Method == http.MethodPost {
			// An empty body means defaults.
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		span.SetAttributes(
			attribute.Bool("insights.refresh", req.Refresh),
			attribute.Bool("insights.update_scores", req.UpdateScores),
		)

		result, err := svc.AnalyzeMember(ctx, companyID(r), chi.URLParam(r, "memberId"), req.Refresh, req.UpdateScores)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func aiSearchHandler(svc *service.AIInsightService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/ai-search")
		defer span.End()

		var req struct {
			Query string `json:"query"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		result, err := svc.SearchMembers(ctx, req.Query)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func companyAnalyticsHandler(svc *service.AIInsightService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics")
		defer span.End()

		analytics, err := svc.CompanyAnalytics(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, analytics)
	}
}

func listDashboardInsightsHandler(svc *service.AIInsightService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard/insights")
		defer span.End()

		insights, err := svc.ListDashboardInsights(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
	}
}

func generateDashboardInsightsHandler(svc *service.AIInsightService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/insights/generate")
		defer span.End()

		insights, err := svc.GenerateDashboardInsights(ctx, CompanyFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"insights": insights,
			"count":    len(insights),
		})
	}
}
