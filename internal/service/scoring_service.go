package service

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var scoringTracer = otel.Tracer("service/scoring")

// snapshotStore is what loading a member snapshot needs.
type snapshotStore interface {
	port.MemberStore
	port.NoteStore
	port.TagStore
}

// ScoringService persists heuristic scores and serves per-member insights.
type ScoringService struct {
	store   snapshotStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewScoringService creates a scoring service.
func NewScoringService(store snapshotStore, metrics *observability.Metrics, logger *zap.Logger) *ScoringService {
	return &ScoringService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// WithClock overrides the time source used for scoring.
func (s *ScoringService) WithClock(now func() time.Time) *ScoringService {
	s.now = now
	return s
}

// LoadSnapshot fetches a member with its last 100 events, memberships, notes
// and tags.
func LoadSnapshot(ctx context.Context, store snapshotStore, companyID, memberID string) (*domain.MemberSnapshot, error) {
	member, err := store.GetMember(ctx, companyID, memberID)
	if err != nil {
		return nil, err
	}

	snap := &domain.MemberSnapshot{Member: *member}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evs, err := store.ListEvents(gctx, memberID, snapshotEventLimit)
		snap.Events = evs
		return err
	})
	g.Go(func() error {
		ms, err := store.ListMemberships(gctx, memberID)
		snap.Memberships = ms
		return err
	})
	g.Go(func() error {
		notes, err := store.ListNotes(gctx, memberID, 0)
		snap.Notes = notes
		return err
	})
	g.Go(func() error {
		tags, err := store.ListMemberTags(gctx, []string{memberID})
		snap.Tags = tags
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetMemberInsights returns stored scores plus recommendations.
func (s *ScoringService) GetMemberInsights(ctx context.Context, companyID, memberID string) (*domain.MemberInsights, error) {
	ctx, span := scoringTracer.Start(ctx, "ScoringService.GetMemberInsights")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID))

	snap, err := LoadSnapshot(ctx, s.store, companyID, memberID)
	if err != nil {
		return nil, err
	}
	m := snap.Member
	return &domain.MemberInsights{
		MemberID:        m.ID,
		ChurnRisk:       m.ChurnRisk,
		EngagementScore: m.EngagementScore,
		LifetimeValue:   m.LifetimeValue,
		Recommendations: GenerateRecommendations(snap, s.now()),
	}, nil
}

// UpdateMemberInsights recomputes and stores one member's scores.
func (s *ScoringService) UpdateMemberInsights(ctx context.Context, companyID, memberID string) (*domain.MemberScores, error) {
	ctx, span := scoringTracer.Start(ctx, "ScoringService.UpdateMemberInsights")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID))

	snap, err := LoadSnapshot(ctx, s.store, companyID, memberID)
	if err != nil {
		return nil, err
	}

	scores := ScoreSnapshot(snap, s.now())
	if err := s.store.UpdateMemberScores(ctx, memberID, scores); err != nil {
		return nil, err
	}

	s.logger.Debug("member rescored",
		zap.String("member_id", memberID),
		zap.Int("engagement_score", scores.EngagementScore),
		zap.String("churn_risk", string(scores.ChurnRisk)),
		zap.Float64("lifetime_value", scores.LifetimeValue),
	)
	return &scores, nil
}

// UpdateAllMemberInsights rescores every member of the company one by one,
// continuing past per-member failures.
func (s *ScoringService) UpdateAllMemberInsights(ctx context.Context, companyID string) (*domain.BatchResult, error) {
	ctx, span := scoringTracer.Start(ctx, "ScoringService.UpdateAllMemberInsights")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("rescore_company", time.Since(start)) }()

	members, err := s.store.QueryMembers(ctx, companyID, domain.MemberQuery{})
	if err != nil {
		return nil, err
	}

	res := &domain.BatchResult{Total: len(members)}
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.UpdateMemberInsights(ctx, companyID, m.ID); err != nil {
			s.metrics.IncrRescore("error")
			s.logger.Warn("rescore failed", zap.String("member_id", m.ID), zap.Error(err))
			continue
		}
		s.metrics.IncrRescore("ok")
		res.Updated++
	}

	s.logger.Info("company rescored",
		zap.String("company_id", companyID),
		zap.Int("updated", res.Updated),
		zap.Int("total", res.Total),
	)
	return res, nil
}
