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
// Prospects
// ============================================================

func listProspectsHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/prospects")
		defer span.End()

		q := r.URL.Query()
		list, err := svc.ListProspects(ctx, companyID(r), domain.ProspectFilter{
			Status:   domain.ProspectStatus(q.Get("status")),
			Priority: domain.ProspectPriority(q.Get("priority")),
			Search:   q.Get("search"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prospects": list})
	}
}

func createProspectHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/prospects")
		defer span.End()

		var req domain.ProspectInput
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.CreateProspect(ctx, companyID(r), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func getProspectHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/prospects/{prospectId}")
		defer span.End()

		p, err := svc.GetProspect(ctx, companyID(r), chi.URLParam(r, "prospectId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updateProspectHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/prospects/{prospectId}")
		defer span.End()

		var req domain.ProspectUpdate
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.UpdateProspect(ctx, companyID(r), chi.URLParam(r, "prospectId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProspectHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/prospects/{prospectId}")
		defer span.End()

		if err := svc.DeleteProspect(ctx, companyID(r), chi.URLParam(r, "prospectId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// ============================================================
// Conversations & messages
// ============================================================

func listConversationsHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations")
		defer span.End()

		q := r.URL.Query()
		list, err := svc.ListConversations(ctx, companyID(r), domain.ConversationFilter{
			ProspectID: q.Get("prospectId"),
			Status:     domain.ConversationStatus(q.Get("status")),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
	}
}

func createConversationHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations")
		defer span.End()

		var req domain.ConversationInput
		if !decodeJSON(w, r, &req) {
			return
		}

		conv, err := svc.CreateConversation(ctx, companyID(r), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func getConversationHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations/{conversationId}")
		defer span.End()

		conv, err := svc.GetConversation(ctx, companyID(r), chi.URLParam(r, "conversationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func updateConversationHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/conversations/{conversationId}")
		defer span.End()

		var req domain.ConversationUpdate
		if !decodeJSON(w, r, &req) {
			return
		}

		conv, err := svc.UpdateConversation(ctx, companyID(r), chi.URLParam(r, "conversationId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func deleteConversationHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/conversations/{conversationId}")
		defer span.End()

		if err := svc.DeleteConversation(ctx, companyID(r), chi.URLParam(r, "conversationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func listMessagesHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations/{conversationId}/messages")
		defer span.End()

		msgs, err := svc.ListMessages(ctx, companyID(r), chi.URLParam(r, "conversationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func postMessageHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations/{conversationId}/messages")
		defer span.End()

		conversationID := chi.URLParam(r, "conversationId")
		span.SetAttributes(attribute.String("conversation.id", conversationID))

		var req domain.MessageInput
		if !decodeJSON(w, r, &req) {
			return
		}

		msg, err := svc.PostMessage(ctx, companyID(r), conversationID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// ============================================================
// Follow-up reminders
// ============================================================

func listRemindersHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reminders")
		defer span.End()

		q := r.URL.Query()
		list, err := svc.ListReminders(ctx, companyID(r), domain.ReminderFilter{
			ProspectID: q.Get("prospectId"),
			Status:     domain.ReminderStatus(q.Get("status")),
		}, queryBool(r, "upcoming"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reminders": list})
	}
}

func createReminderHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reminders")
		defer span.End()

		var req domain.ReminderInput
		if !decodeJSON(w, r, &req) {
			return
		}

		rem, err := svc.CreateReminder(ctx, companyID(r), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rem)
	}
}

func getReminderHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reminders/{reminderId}")
		defer span.End()

		rem, err := svc.GetReminder(ctx, companyID(r), chi.URLParam(r, "reminderId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rem)
	}
}

func updateReminderHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/reminders/{reminderId}")
		defer span.End()

		var req domain.ReminderUpdate
		if !decodeJSON(w, r, &req) {
			return
		}

		rem, err := svc.UpdateReminder(ctx, companyID(r), chi.URLParam(r, "reminderId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rem)
	}
}

func deleteReminderHandler(svc *service.PipelineService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/reminders/{reminderId}")
		defer span.End()

		if err := svc.DeleteReminder(ctx, companyID(r), chi.URLParam(r, "reminderId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
