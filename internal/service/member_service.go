package service

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var memberTracer = otel.Tracer("service/member")

const dashboardEventLimit = 10

// MemberService serves member listings, detail, notes, tags, exports and
// the company dashboard. All operations are scoped to one company.
type MemberService struct {
	store  snapshotStore
	logger *zap.Logger
	now    func() time.Time
}

// NewMemberService creates a member service.
func NewMemberService(store snapshotStore, logger *zap.Logger) *MemberService {
	return &MemberService{store: store, logger: logger, now: time.Now}
}

// ListMembers returns a filtered page of members with counts by status.
func (s *MemberService) ListMembers(ctx context.Context, companyID string, f domain.MemberFilter) (*domain.MemberList, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.ListMembers")
	defer span.End()
	return s.store.ListMembers(ctx, companyID, f)
}

// GetMember returns a member with memberships, recent events, notes and tags.
func (s *MemberService) GetMember(ctx context.Context, companyID, memberID string) (*domain.MemberSnapshot, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.GetMember")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID))
	return LoadSnapshot(ctx, s.store, companyID, memberID)
}

// DeleteMember removes one member of the company and everything it owns.
func (s *MemberService) DeleteMember(ctx context.Context, companyID, memberID string) error {
	ctx, span := memberTracer.Start(ctx, "MemberService.DeleteMember")
	defer span.End()

	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return err
	}
	if _, err := s.store.DeleteMembers(ctx, companyID, []string{memberID}); err != nil {
		return err
	}
	s.logger.Info("member deleted", zap.String("company_id", companyID), zap.String("member_id", memberID))
	return nil
}

// requireOwned returns the selected members, or ErrForbidden when any id is
// unknown or belongs to another company.
func (s *MemberService) requireOwned(ctx context.Context, companyID string, ids []string) ([]domain.Member, error) {
	if err := validateStruct(&domain.MemberIDsInput{MemberIDs: ids}); err != nil {
		return nil, &domain.ErrValidation{Field: "memberIds", Message: "No members selected"}
	}
	unique := dedupe(ids)
	members, err := s.store.QueryMembers(ctx, companyID, domain.MemberQuery{IDs: unique})
	if err != nil {
		return nil, err
	}
	if len(members) != len(unique) {
		return nil, &domain.ErrForbidden{
			Action:  "delete members",
			Message: "Some members not found or don't belong to this company",
		}
	}
	return members, nil
}

// BulkDelete deletes the selected members. Nothing is deleted unless every
// id belongs to the company.
func (s *MemberService) BulkDelete(ctx context.Context, companyID string, ids []string) (int, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.BulkDelete")
	defer span.End()
	span.SetAttributes(attribute.Int("members.requested", len(ids)))

	members, err := s.requireOwned(ctx, companyID, ids)
	if err != nil {
		return 0, err
	}
	owned := make([]string, 0, len(members))
	for _, m := range members {
		owned = append(owned, m.ID)
	}
	n, err := s.store.DeleteMembers(ctx, companyID, owned)
	if err != nil {
		return 0, err
	}
	s.logger.Info("members bulk deleted", zap.String("company_id", companyID), zap.Int("deleted", n))
	return n, nil
}

// BulkExport renders the selected members of the company as CSV. Ids that
// are not the company's are left out.
func (s *MemberService) BulkExport(ctx context.Context, companyID string, ids []string) (*CSVExport, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.BulkExport")
	defer span.End()

	if err := validateStruct(&domain.MemberIDsInput{MemberIDs: ids}); err != nil {
		return nil, &domain.ErrValidation{Field: "memberIds", Message: "No members selected"}
	}
	members, err := s.store.QueryMembers(ctx, companyID, domain.MemberQuery{IDs: dedupe(ids)})
	if err != nil {
		return nil, err
	}
	return renderMembersCSV(ctx, s.store, members, WriteBulkCSV, BulkExportFilename(s.now()))
}

type csvWriterFunc func(w io.Writer, members []domain.Member, tags map[string][]string) error

func renderMembersCSV(
	ctx context.Context,
	store snapshotStore,
	members []domain.Member,
	write csvWriterFunc,
	filename string,
) (*CSVExport, error) {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	tags, err := store.ListMemberTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := write(&buf, members, memberTagNames(tags)); err != nil {
		return nil, err
	}
	return &CSVExport{Filename: filename, Body: buf.Bytes()}, nil
}

// Cleanup deletes every member of the company.
func (s *MemberService) Cleanup(ctx context.Context, companyID string) (int, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.Cleanup")
	defer span.End()

	n, err := s.store.DeleteAllMembers(ctx, companyID)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("company members cleaned up", zap.String("company_id", companyID), zap.Int("deleted", n))
	return n, nil
}

// Dashboard returns headline numbers and the latest events.
func (s *MemberService) Dashboard(ctx context.Context, companyID string) (*domain.DashboardStats, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.Dashboard")
	defer span.End()

	var (
		members []domain.Member
		events  []domain.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = s.store.QueryMembers(gctx, companyID, domain.MemberQuery{})
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.store.ListCompanyEvents(gctx, companyID, dashboardEventLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &domain.DashboardStats{TotalMembers: len(members), RecentEvents: events}
	for _, m := range members {
		if m.Status == domain.MemberActive {
			stats.ActiveMembers++
		}
		stats.TotalRevenue += m.TotalRevenue
		stats.MonthlyRevenue += m.MonthlyRevenue
	}
	return stats, nil
}

// ============================================================
// Notes
// ============================================================

// ListNotes returns a member's notes, newest first.
func (s *MemberService) ListNotes(ctx context.Context, companyID, memberID string) ([]domain.Note, error) {
	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, memberID, 0)
}

// AddNote appends a sanitized note to a member of the company.
func (s *MemberService) AddNote(ctx context.Context, companyID, memberID string, in domain.NoteInput) (*domain.Note, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.AddNote")
	defer span.End()

	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	content := sanitizeText(in.Content)
	if content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "is required"}
	}
	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return nil, err
	}
	return s.store.CreateNote(ctx, &domain.Note{
		MemberID:  memberID,
		CompanyID: companyID,
		Content:   content,
	})
}

// DeleteNote removes a note after checking it belongs to the member.
func (s *MemberService) DeleteNote(ctx context.Context, companyID, memberID, noteID string) error {
	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return err
	}
	n, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if n.MemberID != memberID {
		return &domain.ErrNotFound{Resource: "note", ID: noteID}
	}
	return s.store.DeleteNote(ctx, noteID)
}

// ============================================================
// Tags
// ============================================================

// ListTags returns the company's tags.
func (s *MemberService) ListTags(ctx context.Context, companyID string) ([]domain.Tag, error) {
	return s.store.ListTags(ctx, companyID)
}

// CreateTag adds a company tag. Names are unique per company.
func (s *MemberService) CreateTag(ctx context.Context, companyID string, in domain.TagInput) (*domain.Tag, error) {
	in.Name = sanitizeText(in.Name)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	return s.store.CreateTag(ctx, &domain.Tag{CompanyID: companyID, Name: in.Name, Color: in.Color})
}

// DeleteTag removes a company tag and its assignments.
func (s *MemberService) DeleteTag(ctx context.Context, companyID, tagID string) error {
	return s.store.DeleteTag(ctx, companyID, tagID)
}

// ListMemberTags returns the tags assigned to a member.
func (s *MemberService) ListMemberTags(ctx context.Context, companyID, memberID string) ([]domain.MemberTag, error) {
	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return nil, err
	}
	return s.store.ListMemberTags(ctx, []string{memberID})
}

// AssignTag attaches a company tag to a member of the same company.
func (s *MemberService) AssignTag(ctx context.Context, companyID, memberID, tagID string) (*domain.MemberTag, error) {
	ctx, span := memberTracer.Start(ctx, "MemberService.AssignTag")
	defer span.End()

	if tagID == "" {
		return nil, &domain.ErrValidation{Field: "tagId", Message: "Tag ID is required"}
	}
	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return nil, err
	}
	tag, err := s.store.GetTag(ctx, companyID, tagID)
	if err != nil {
		return nil, err
	}
	created, err := s.store.AddMemberTag(ctx, memberID, tagID)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, &domain.ErrDuplicate{Key: memberID + ":" + tagID, Message: "Member already has this tag"}
	}
	return &domain.MemberTag{MemberID: memberID, TagID: tagID, CreatedAt: s.now().UTC(), Tag: tag}, nil
}

// UnassignTag detaches a tag. A missing assignment is not found.
func (s *MemberService) UnassignTag(ctx context.Context, companyID, memberID, tagID string) error {
	if _, err := s.store.GetMember(ctx, companyID, memberID); err != nil {
		return err
	}
	removed, err := s.store.RemoveMemberTag(ctx, memberID, tagID)
	if err != nil {
		return err
	}
	if !removed {
		return &domain.ErrNotFound{Resource: "member tag", ID: tagID}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
