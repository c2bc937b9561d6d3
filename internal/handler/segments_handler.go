package handler

import (
	"net/http"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Segments
// ============================================================

func listSegmentsHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments")
		defer span.End()

		segments, err := svc.ListSegments(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
	}
}

func getSegmentHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments/{segmentId}")
		defer span.End()

		seg, err := svc.GetSegment(ctx, companyID(r), chi.URLParam(r, "segmentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	}
}

func createSegmentHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/segments")
		defer span.End()

		var req domain.SegmentInput
		if !decodeJSON(w, r, &req) {
			return
		}

		seg, err := svc.CreateSegment(ctx, companyID(r), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("segment.member_count", seg.MemberCount))
		writeJSON(w, http.StatusCreated, seg)
	}
}

func updateSegmentHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/segments/{segmentId}")
		defer span.End()

		var req domain.SegmentInput
		if !decodeJSON(w, r, &req) {
			return
		}

		seg, err := svc.UpdateSegment(ctx, companyID(r), chi.URLParam(r, "segmentId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	}
}

func deleteSegmentHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/segments/{segmentId}")
		defer span.End()

		if err := svc.DeleteSegment(ctx, companyID(r), chi.URLParam(r, "segmentId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func segmentMembersHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments/{segmentId}/members")
		defer span.End()

		members, err := svc.SegmentMembers(ctx, companyID(r), chi.URLParam(r, "segmentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members, "total": len(members)})
	}
}

func exportSegmentHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments/{segmentId}/export")
		defer span.End()

		export, err := svc.ExportSegment(ctx, companyID(r), chi.URLParam(r, "segmentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeCSV(w, export)
	}
}

func exportTemplateHandler(svc *service.SegmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments/template/{templateId}/export")
		defer span.End()

		template := domain.SegmentTemplate(chi.URLParam(r, "templateId"))
		span.SetAttributes(attribute.String("segment.template", string(template)))

		export, err := svc.ExportTemplate(ctx, companyID(r), template)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeCSV(w, export)
	}
}

// ============================================================
// Automations
// ============================================================

func listAutomationsHandler(svc *service.AutomationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/automations")
		defer span.End()

		list, err := svc.ListAutomations(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"automations": list})
	}
}

func createAutomationHandler(svc *service.AutomationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/automations")
		defer span.End()

		var req domain.AutomationInput
		if !decodeJSON(w, r, &req) {
			return
		}

		a, err := svc.CreateAutomation(ctx, companyID(r), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func toggleAutomationHandler(svc *service.AutomationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/automations/{automationId}/toggle")
		defer span.End()

		var req struct {
			IsActive *bool `json:"isActive"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.IsActive == nil {
			writeError(w, http.StatusBadRequest, "isActive is required")
			return
		}

		a, err := svc.ToggleAutomation(ctx, companyID(r), chi.URLParam(r, "automationId"), *req.IsActive)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func deleteAutomationHandler(svc *service.AutomationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/automations/{automationId}")
		defer span.End()

		if err := svc.DeleteAutomation(ctx, companyID(r), chi.URLParam(r, "automationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
