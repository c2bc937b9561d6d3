package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/webhook"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// ============================================================
// Webhooks
// ============================================================

func webhookHandler(verifier *webhook.Verifier, svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks")
		defer span.End()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid webhook")
			return
		}

		if verifier == nil {
			handleServiceError(w, &domain.ErrNotConfigured{Setting: "WHOP_WEBHOOK_SECRET"}, logger)
			return
		}
		deliveryID, err := verifier.Verify(r.Header, body)
		if err != nil {
			if errors.Is(err, webhook.ErrNoSecret) {
				handleServiceError(w, &domain.ErrNotConfigured{Setting: "WHOP_WEBHOOK_SECRET"}, logger)
				return
			}
			logger.Warn("webhook: signature rejected", zap.Error(err))
			writeError(w, http.StatusBadRequest, "Invalid webhook")
			return
		}

		var env domain.WebhookEnvelope
		if err := json.Unmarshal(body, &env); err != nil || env.Action == "" {
			writeError(w, http.StatusBadRequest, "Invalid webhook")
			return
		}
		span.SetAttributes(
			attribute.String("webhook.id", deliveryID),
			attribute.String("webhook.action", env.Action),
		)

		first, err := svc.Accept(ctx, deliveryID, env)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": !first})
	}
}

// ============================================================
// Membership sync
// ============================================================

func syncHandler(svc *service.SyncService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sync")
		defer span.End()

		result, err := svc.Sync(ctx, CompanyFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("sync.synced", result.Synced))
		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// Install, OAuth callback, init
// ============================================================

func installHandler(svc *service.OAuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/auth/install")
		defer span.End()

		url, err := svc.InstallURL(r.URL.Query().Get("company_id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func callbackHandler(svc *service.OAuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/callback")
		defer span.End()

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			logger.Warn("oauth: provider returned error", zap.String("error", e))
			writeError(w, http.StatusBadRequest, e)
			return
		}
		code := q.Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}

		company, err := svc.Callback(ctx, code, q.Get("state"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		http.Redirect(w, r, svc.DashboardURL(company), http.StatusFound)
	}
}

func initHandler(tenants *service.TenantService, oauth *service.OAuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/init")
		defer span.End()

		company, err := tenants.Init(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		http.Redirect(w, r, oauth.DashboardURL(company), http.StatusSeeOther)
	}
}
