package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const companyKey contextKey = "company"

// CompanyHeader carries the tenant when the query string does not.
const CompanyHeader = "X-Company-ID"

// TenantMiddleware resolves the company a request acts for and injects it
// into the context. The id comes from ?companyId= or the X-Company-ID header.
func TenantMiddleware(tenants *service.TenantService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested := r.URL.Query().Get("companyId")
			if requested == "" {
				requested = r.Header.Get(CompanyHeader)
			}

			company, err := tenants.Resolve(r.Context(), requested)
			if err != nil {
				logger.Warn("tenant: rejected request",
					zap.String("path", r.URL.Path),
					zap.String("company_id", requested),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), companyKey, company)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CompanyFromContext returns the tenant resolved by TenantMiddleware.
func CompanyFromContext(ctx context.Context) *domain.Company {
	c, _ := ctx.Value(companyKey).(*domain.Company)
	return c
}

func companyID(r *http.Request) string {
	if c := CompanyFromContext(r.Context()); c != nil {
		return c.ID
	}
	return ""
}

// MetricsMiddleware records request durations labelled by route pattern.
func MetricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			metrics.RecordRequestDuration(r.Method+" "+pattern, time.Since(start))
		})
	}
}
