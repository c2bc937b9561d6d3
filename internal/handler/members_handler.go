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
// Members
// ============================================================

func listMembersHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/members")
		defer span.End()

		page, pageSize := parsePagination(r)
		list, err := svc.ListMembers(ctx, companyID(r), domain.MemberFilter{
			Search:   r.URL.Query().Get("search"),
			Status:   domain.MemberStatus(r.URL.Query().Get("status")),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getMemberHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/members/{memberId}")
		defer span.End()

		memberID := chi.URLParam(r, "memberId")
		span.SetAttributes(attribute.String("member.id", memberID))

		snap, err := svc.GetMember(ctx, companyID(r), memberID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func deleteMemberHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/members/{memberId}")
		defer span.End()

		memberID := chi.URLParam(r, "memberId")
		if err := svc.DeleteMember(ctx, companyID(r), memberID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": memberID})
	}
}

func bulkDeleteHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/bulk-delete")
		defer span.End()

		var req domain.MemberIDsInput
		if !decodeJSON(w, r, &req) {
			return
		}
		span.SetAttributes(attribute.Int("members.requested", len(req.MemberIDs)))

		n, err := svc.BulkDelete(ctx, companyID(r), req.MemberIDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
	}
}

func bulkExportHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/bulk-export")
		defer span.End()

		var req domain.MemberIDsInput
		if !decodeJSON(w, r, &req) {
			return
		}

		export, err := svc.BulkExport(ctx, companyID(r), req.MemberIDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeCSV(w, export)
	}
}

func cleanupHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cleanup")
		defer span.End()

		n, err := svc.Cleanup(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
	}
}

func dashboardHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		stats, err := svc.Dashboard(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// ============================================================
// Notes
// ============================================================

func listNotesHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/members/{memberId}/notes")
		defer span.End()

		notes, err := svc.ListNotes(ctx, companyID(r), chi.URLParam(r, "memberId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
	}
}

func addNoteHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/{memberId}/notes")
		defer span.End()

		var req domain.NoteInput
		if !decodeJSON(w, r, &req) {
			return
		}

		note, err := svc.AddNote(ctx, companyID(r), chi.URLParam(r, "memberId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, note)
	}
}

func deleteNoteHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/members/{memberId}/notes/{noteId}")
		defer span.End()

		err := svc.DeleteNote(ctx, companyID(r), chi.URLParam(r, "memberId"), chi.URLParam(r, "noteId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// ============================================================
// Tags
// ============================================================

func listTagsHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tags")
		defer span.End()

		tags, err := svc.ListTags(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
	}
}

func createTagHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tags")
		defer span.End()

		var req domain.TagInput
		if !decodeJSON(w, r, &req) {
			return
		}

		tag, err := svc.CreateTag(ctx, companyID(r), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tag)
	}
}

func deleteTagHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/tags/{tagId}")
		defer span.End()

		if err := svc.DeleteTag(ctx, companyID(r), chi.URLParam(r, "tagId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func listMemberTagsHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/members/{memberId}/tags")
		defer span.End()

		tags, err := svc.ListMemberTags(ctx, companyID(r), chi.URLParam(r, "memberId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
	}
}

func assignTagHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/{memberId}/tags")
		defer span.End()

		var req struct {
			TagID string `json:"tagId"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.TagID == "" {
			writeError(w, http.StatusBadRequest, "tagId is required")
			return
		}

		mt, err := svc.AssignTag(ctx, companyID(r), chi.URLParam(r, "memberId"), req.TagID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, mt)
	}
}

func unassignTagHandler(svc *service.MemberService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/members/{memberId}/tags/{tagId}")
		defer span.End()

		err := svc.UnassignTag(ctx, companyID(r), chi.URLParam(r, "memberId"), chi.URLParam(r, "tagId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
