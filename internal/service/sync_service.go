package service

import (
	"context"
	"errors"
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

var syncTracer = otel.Tracer("service/sync")

const (
	syncPageSize = 100
	syncMaxPages = 100
)

type syncStore interface {
	port.MemberStore
	port.CompanyStore
}

// tokenOpener decrypts stored OAuth tokens.
type tokenOpener interface {
	Open(sealed string) (string, error)
}

// SyncResult is the outcome of a membership sync.
type SyncResult struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
}

// SyncService pulls memberships from the platform into the CRM.
type SyncService struct {
	api     port.WhopAPI
	store   syncStore
	tokens  tokenOpener
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSyncService creates a sync service.
func NewSyncService(api port.WhopAPI, store syncStore, tokens tokenOpener, metrics *observability.Metrics, logger *zap.Logger) *SyncService {
	return &SyncService{
		api:     api,
		store:   store,
		tokens:  tokens,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// memberStatusFromWhop maps a platform membership status onto a member status.
func memberStatusFromWhop(status string, valid bool) domain.MemberStatus {
	switch strings.ToLower(status) {
	case "active", "trialing", "completed":
		return domain.MemberActive
	case "past_due":
		return domain.MemberPastDue
	case "canceled", "cancelled", "expired":
		return domain.MemberCancelled
	case "":
		if valid {
			return domain.MemberActive
		}
	}
	return domain.MemberInactive
}

// Sync pages through the company's memberships and upserts each one. It
// stops at the first failed or empty page and skips items that fail.
func (s *SyncService) Sync(ctx context.Context, company *domain.Company) (*SyncResult, error) {
	ctx, span := syncTracer.Start(ctx, "SyncService.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", company.ID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("sync", time.Since(start)) }()

	token := s.accessToken(company)
	synced := 0

	for page := 1; page <= syncMaxPages; page++ {
		res, err := s.api.ListMemberships(ctx, token, page, syncPageSize)
		if err != nil {
			var nc *domain.ErrNotConfigured
			if errors.As(err, &nc) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Error("sync: failed to fetch memberships", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(res.Data) == 0 {
			break
		}

		for _, m := range res.Data {
			if err := s.syncOne(ctx, company, m); err != nil {
				s.logger.Warn("sync: membership skipped",
					zap.String("whop_membership_id", m.ID),
					zap.Error(err),
				)
				continue
			}
			synced++
		}
	}

	now := s.now()
	if err := s.store.TouchCompanySync(ctx, company.ID, now); err != nil {
		return nil, fmt.Errorf("touch company sync: %w", err)
	}
	s.metrics.AddMembersSynced(synced)

	s.logger.Info("sync complete", zap.String("company_id", company.ID), zap.Int("synced", synced))
	return &SyncResult{Success: true, Synced: synced}, nil
}

// accessToken prefers the installed OAuth token. An empty result lets the
// client fall back to the API key.
func (s *SyncService) accessToken(company *domain.Company) string {
	if company.AccessToken == "" || s.tokens == nil {
		return ""
	}
	tok, err := s.tokens.Open(company.AccessToken)
	if err != nil {
		s.logger.Warn("sync: stored access token unusable, using API key", zap.Error(err))
		return ""
	}
	return tok
}

func (s *SyncService) syncOne(ctx context.Context, company *domain.Company, m domain.WhopMembership) error {
	if m.User == nil || m.User.ID == "" {
		return &domain.ErrValidation{Field: "user", Message: "membership has no user"}
	}

	now := s.now()
	status := memberStatusFromWhop(m.Status, m.Valid)
	up := &domain.MemberUpsert{
		CompanyID:     company.ID,
		WhopUserID:    m.User.ID,
		Email:         m.User.Email,
		Username:      m.User.Username,
		ProfilePicURL: m.User.ProfilePicURL,
		Status:        status,
		FirstJoinedAt: domain.UnixTime(m.CreatedAt),
		LastSeenAt:    &now,
	}
	if m.Plan != nil {
		up.CurrentPlan = m.Plan.Name
		up.PlanID = m.Plan.ID
	}

	member, err := s.store.UpsertMember(ctx, up)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}

	msUp := membershipUpsert(member.ID, m, string(status), now)
	msUp.Price = m.Amount
	if m.CancelAtPeriodEnd {
		msUp.CancelledAt = &now
	}
	if _, err := s.store.UpsertMembership(ctx, msUp); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}
