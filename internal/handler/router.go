package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/webhook"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router dispatches to.
type Services struct {
	Store       Pinger
	Tenants     *service.TenantService
	Members     *service.MemberService
	Segments    *service.SegmentService
	Automations *service.AutomationService
	Pipeline    *service.PipelineService
	Scoring     *service.ScoringService
	AI          *service.AIInsightService
	Webhooks    *service.WebhookService
	Sync        *service.SyncService
	OAuth       *service.OAuthService
	Verifier    *webhook.Verifier
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(MetricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/llm", llmMetricsHandler(metrics))

		// =============================================
		// Platform: webhooks, install, init
		// =============================================
		r.Post("/webhooks", webhookHandler(svc.Verifier, svc.Webhooks, logger))
		r.Get("/auth/install", installHandler(svc.OAuth, logger))
		r.Get("/auth/callback", callbackHandler(svc.OAuth, logger))
		r.Post("/init", initHandler(svc.Tenants, svc.OAuth, logger))

		// =============================================
		// Tenant-scoped API
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(TenantMiddleware(svc.Tenants, logger))

			r.Post("/sync", syncHandler(svc.Sync, logger))
			r.Post("/cleanup", cleanupHandler(svc.Members, logger))

			// Dashboard
			r.Get("/dashboard", dashboardHandler(svc.Members, logger))
			r.Get("/dashboard/insights", listDashboardInsightsHandler(svc.AI, logger))
			r.Get("/analytics", companyAnalyticsHandler(svc.AI, logger))
			r.Post("/insights/update", updateAllInsightsHandler(svc.Scoring, logger))
			r.Post("/insights/generate", generateDashboardInsightsHandler(svc.AI, logger))

			// Members
			r.Get("/members", listMembersHandler(svc.Members, logger))
			r.Post("/members/bulk-delete", bulkDeleteHandler(svc.Members, logger))
			r.Post("/members/bulk-export", bulkExportHandler(svc.Members, logger))
			r.Post("/members/ai-search", aiSearchHandler(svc.AI, logger))
			r.Route("/members/{memberId}", func(r chi.Router) {
				r.Get("/", getMemberHandler(svc.Members, logger))
				r.Delete("/", deleteMemberHandler(svc.Members, logger))

				r.Get("/insights", memberInsightsHandler(svc.Scoring, logger))
				r.Post("/insights", rescoreMemberHandler(svc.Scoring, logger))
				r.Get("/gpt-insights", gptInsightsHandler(svc.AI, logger))
				r.Post("/gpt-insights", gptInsightsHandler(svc.AI, logger))

				r.Get("/notes", listNotesHandler(svc.Members, logger))
				r.Post("/notes", addNoteHandler(svc.Members, logger))
				r.Delete("/notes/{noteId}", deleteNoteHandler(svc.Members, logger))

				r.Get("/tags", listMemberTagsHandler(svc.Members, logger))
				r.Post("/tags", assignTagHandler(svc.Members, logger))
				r.Delete("/tags/{tagId}", unassignTagHandler(svc.Members, logger))
			})

			// Tags
			r.Get("/tags", listTagsHandler(svc.Members, logger))
			r.Post("/tags", createTagHandler(svc.Members, logger))
			r.Delete("/tags/{tagId}", deleteTagHandler(svc.Members, logger))

			// Segments
			r.Get("/segments", listSegmentsHandler(svc.Segments, logger))
			r.Post("/segments", createSegmentHandler(svc.Segments, logger))
			r.Get("/segments/template/{templateId}/export", exportTemplateHandler(svc.Segments, logger))
			r.Get("/segments/{segmentId}", getSegmentHandler(svc.Segments, logger))
			r.Put("/segments/{segmentId}", updateSegmentHandler(svc.Segments, logger))
			r.Delete("/segments/{segmentId}", deleteSegmentHandler(svc.Segments, logger))
			r.Get("/segments/{segmentId}/members", segmentMembersHandler(svc.Segments, logger))
			r.Get("/segments/{segmentId}/export", exportSegmentHandler(svc.Segments, logger))

			// Automations
			r.Get("/automations", listAutomationsHandler(svc.Automations, logger))
			r.Post("/automations", createAutomationHandler(svc.Automations, logger))
			r.Patch("/automations/{automationId}/toggle", toggleAutomationHandler(svc.Automations, logger))
			r.Delete("/automations/{automationId}", deleteAutomationHandler(svc.Automations, logger))

			// Prospect pipeline
			r.Get("/prospects", listProspectsHandler(svc.Pipeline, logger))
			r.Post("/prospects", createProspectHandler(svc.Pipeline, logger))
			r.Get("/prospects/{prospectId}", getProspectHandler(svc.Pipeline, logger))
			r.Put("/prospects/{prospectId}", updateProspectHandler(svc.Pipeline, logger))
			r.Delete("/prospects/{prospectId}", deleteProspectHandler(svc.Pipeline, logger))

			r.Get("/conversations", listConversationsHandler(svc.Pipeline, logger))
			r.Post("/conversations", createConversationHandler(svc.Pipeline, logger))
			r.Get("/conversations/{conversationId}", getConversationHandler(svc.Pipeline, logger))
			r.Put("/conversations/{conversationId}", updateConversationHandler(svc.Pipeline, logger))
			r.Delete("/conversations/{conversationId}", deleteConversationHandler(svc.Pipeline, logger))
			r.Get("/conversations/{conversationId}/messages", listMessagesHandler(svc.Pipeline, logger))
			r.Post("/conversations/{conversationId}/messages", postMessageHandler(svc.Pipeline, logger))

			r.Get("/reminders", listRemindersHandler(svc.Pipeline, logger))
			r.Post("/reminders", createReminderHandler(svc.Pipeline, logger))
			r.Get("/reminders/{reminderId}", getReminderHandler(svc.Pipeline, logger))
			r.Put("/reminders/{reminderId}", updateReminderHandler(svc.Pipeline, logger))
			r.Delete("/reminders/{reminderId}", deleteReminderHandler(svc.Pipeline, logger))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "crm-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(r.Context())
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("health: store ping failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = s.Status
			}
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func llmMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLLMSnapshot())
	}
}
