package service

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var segmentTracer = otel.Tracer("service/segment")

type segmentStore interface {
	snapshotStore
	port.SegmentStore
}

// SegmentService manages saved member segments and their CSV exports.
type SegmentService struct {
	store  segmentStore
	logger *zap.Logger
	now    func() time.Time
}

// NewSegmentService creates a segment service.
func NewSegmentService(store segmentStore, logger *zap.Logger) *SegmentService {
	return &SegmentService{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *SegmentService) WithClock(now func() time.Time) *SegmentService {
	s.now = now
	return s
}

func canonicalFilters(in []domain.SegmentFilter) []domain.SegmentFilter {
	out := make([]domain.SegmentFilter, len(in))
	for i, f := range in {
		f.Field = domain.CanonicalField(f.Field)
		out[i] = f
	}
	return out
}

// aggregate counts the members a filter set matches and sums their monthly
// revenue.
func (s *SegmentService) aggregate(ctx context.Context, companyID string, filters []domain.SegmentFilter) (int, float64, error) {
	members, err := s.store.QueryMembers(ctx, companyID, domain.MemberQuery{Filters: filters})
	if err != nil {
		return 0, 0, err
	}
	mrr := 0.0
	for _, m := range members {
		mrr += m.MonthlyRevenue
	}
	return len(members), mrr, nil
}

// ListSegments returns the company's segments.
func (s *SegmentService) ListSegments(ctx context.Context, companyID string) ([]domain.Segment, error) {
	return s.store.ListSegments(ctx, companyID)
}

// GetSegment returns one segment.
func (s *SegmentService) GetSegment(ctx context.Context, companyID, segmentID string) (*domain.Segment, error) {
	return s.store.GetSegment(ctx, companyID, segmentID)
}

// CreateSegment saves a segment with its member count and MRR computed now.
func (s *SegmentService) CreateSegment(ctx context.Context, companyID string, in domain.SegmentInput) (*domain.Segment, error) {
	ctx, span := segmentTracer.Start(ctx, "SegmentService.CreateSegment")
	defer span.End()

	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	filters := canonicalFilters(in.Filters)
	count, mrr, err := s.aggregate(ctx, companyID, filters)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("segment.member_count", count))

	return s.store.CreateSegment(ctx, &domain.Segment{
		CompanyID:   companyID,
		Name:        sanitizeText(in.Name),
		Description: sanitizeText(in.Description),
		Filters:     filters,
		MemberCount: count,
		TotalMRR:    mrr,
	})
}

// UpdateSegment replaces a segment's definition and recomputes its
// aggregates.
func (s *SegmentService) UpdateSegment(ctx context.Context, companyID, segmentID string, in domain.SegmentInput) (*domain.Segment, error) {
	ctx, span := segmentTracer.Start(ctx, "SegmentService.UpdateSegment")
	defer span.End()

	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	seg, err := s.store.GetSegment(ctx, companyID, segmentID)
	if err != nil {
		return nil, err
	}
	filters := canonicalFilters(in.Filters)
	count, mrr, err := s.aggregate(ctx, companyID, filters)
	if err != nil {
		return nil, err
	}

	seg.Name = sanitizeText(in.Name)
	seg.Description = sanitizeText(in.Description)
	seg.Filters = filters
	seg.MemberCount = count
	seg.TotalMRR = mrr
	return s.store.UpdateSegment(ctx, seg)
}

// DeleteSegment removes a segment.
func (s *SegmentService) DeleteSegment(ctx context.Context, companyID, segmentID string) error {
	return s.store.DeleteSegment(ctx, companyID, segmentID)
}

// SegmentMembers returns the members currently matching a segment.
func (s *SegmentService) SegmentMembers(ctx context.Context, companyID, segmentID string) ([]domain.Member, error) {
	seg, err := s.store.GetSegment(ctx, companyID, segmentID)
	if err != nil {
		return nil, err
	}
	return s.store.QueryMembers(ctx, companyID, domain.MemberQuery{Filters: seg.Filters})
}

// ExportSegment renders the members of a segment as CSV.
func (s *SegmentService) ExportSegment(ctx context.Context, companyID, segmentID string) (*CSVExport, error) {
	ctx, span := segmentTracer.Start(ctx, "SegmentService.ExportSegment")
	defer span.End()

	seg, err := s.store.GetSegment(ctx, companyID, segmentID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.QueryMembers(ctx, companyID, domain.MemberQuery{Filters: seg.Filters})
	if err != nil {
		return nil, err
	}
	return renderMembersCSV(ctx, s.store, members, WriteSegmentCSV, SegmentExportFilename(seg.Name, s.now()))
}

// ExportTemplate renders one of the built-in segments as CSV.
func (s *SegmentService) ExportTemplate(ctx context.Context, companyID string, template domain.SegmentTemplate) (*CSVExport, error) {
	ctx, span := segmentTracer.Start(ctx, "SegmentService.ExportTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("segment.template", string(template)))

	filters, ok := domain.TemplateFilters(template)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "segment template", ID: string(template)}
	}
	now := s.now()
	q := domain.MemberQuery{Filters: filters}
	if template == domain.TemplateNew {
		since := now.AddDate(0, 0, -activityWindowDays)
		q.JoinedSince = &since
	}

	members, err := s.store.QueryMembers(ctx, companyID, q)
	if err != nil {
		return nil, err
	}
	return renderMembersCSV(ctx, s.store, members, WriteSegmentCSV, SegmentExportFilename(string(template), now))
}
