package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tenantTracer = otel.Tracer("service/tenant")

// TenantService resolves the company a request acts for.
//
// With a configured platform company id the deployment serves that company
// only; the id in the path may be either its platform id or its internal id.
// Without one, any company that completed the install flow is served.
type TenantService struct {
	store         port.CompanyStore
	whopCompanyID string
	logger        *zap.Logger
}

// NewTenantService creates a tenant resolver.
func NewTenantService(store port.CompanyStore, whopCompanyID string, logger *zap.Logger) *TenantService {
	return &TenantService{store: store, whopCompanyID: whopCompanyID, logger: logger}
}

// Configured returns the deployment's company, creating it on first use.
func (t *TenantService) Configured(ctx context.Context) (*domain.Company, error) {
	if t.whopCompanyID == "" {
		return nil, &domain.ErrNotConfigured{Setting: "WHOP_COMPANY_ID"}
	}

	c, err := t.store.GetCompanyByWhopID(ctx, t.whopCompanyID)
	if err == nil {
		return c, nil
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, err
	}

	c, err = t.store.UpsertCompany(ctx, &domain.Company{
		WhopCompanyID: t.whopCompanyID,
		Name:          t.whopCompanyID,
		IsActive:      true,
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("company initialized", zap.String("company_id", c.ID), zap.String("whop_company_id", c.WhopCompanyID))
	return c, nil
}

// Resolve maps the company id of a request to the tenant, or returns
// ErrForbidden when the caller may not act for it.
func (t *TenantService) Resolve(ctx context.Context, requested string) (*domain.Company, error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("company.requested", requested))

	if requested == "" {
		return nil, &domain.ErrValidation{Field: "companyId", Message: "Company ID required"}
	}

	if t.whopCompanyID != "" {
		c, err := t.Configured(ctx)
		if err != nil {
			return nil, err
		}
		if requested != c.WhopCompanyID && requested != c.ID {
			return nil, &domain.ErrForbidden{Action: "access company", Message: "Company mismatch"}
		}
		return c, nil
	}

	c, err := t.lookup(ctx, requested)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, &domain.ErrForbidden{Action: "access company", Message: "Company mismatch"}
		}
		return nil, err
	}
	if !c.IsActive {
		return nil, &domain.ErrForbidden{Action: "access company", Message: "Company is not active"}
	}
	return c, nil
}

func (t *TenantService) lookup(ctx context.Context, id string) (*domain.Company, error) {
	c, err := t.store.GetCompanyByWhopID(ctx, id)
	if err == nil {
		return c, nil
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		return nil, err
	}
	return t.store.GetCompany(ctx, id)
}

// Init makes sure the configured company exists and stamps it active.
func (t *TenantService) Init(ctx context.Context) (*domain.Company, error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.Init")
	defer span.End()

	c, err := t.Configured(ctx)
	if err != nil {
		return nil, err
	}
	if c.IsActive {
		return c, nil
	}
	c.IsActive = true
	c.UpdatedAt = time.Now().UTC()
	return t.store.UpsertCompany(ctx, c)
}
