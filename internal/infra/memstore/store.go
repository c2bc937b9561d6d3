// Package memstore is an in-process implementation of port.Store. It backs
// tests and local runs without Supabase (USE_SUPABASE=false).
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"

	"github.com/google/uuid"
)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	companies     map[string]*domain.Company
	members       map[string]*domain.Member
	memberships   map[string]*domain.Membership
	events        map[string][]domain.Event
	notes         map[string]*domain.Note
	tags          map[string]*domain.Tag
	memberTags    map[memberTagKey]domain.MemberTag
	segments      map[string]*domain.Segment
	automations   map[string]*domain.Automation
	prospects     map[string]*domain.Prospect
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.ConversationMessage
	reminders     map[string]*domain.FollowUpReminder
	insights      map[string][]domain.DashboardInsight
	deliveries    map[string]*domain.WebhookDelivery
}

type memberTagKey struct {
	memberID string
	tagID    string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:           func() time.Time { return time.Now().UTC() },
		companies:     make(map[string]*domain.Company),
		members:       make(map[string]*domain.Member),
		memberships:   make(map[string]*domain.Membership),
		events:        make(map[string][]domain.Event),
		notes:         make(map[string]*domain.Note),
		tags:          make(map[string]*domain.Tag),
		memberTags:    make(map[memberTagKey]domain.MemberTag),
		segments:      make(map[string]*domain.Segment),
		automations:   make(map[string]*domain.Automation),
		prospects:     make(map[string]*domain.Prospect),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.ConversationMessage),
		reminders:     make(map[string]*domain.FollowUpReminder),
		insights:      make(map[string][]domain.DashboardInsight),
		deliveries:    make(map[string]*domain.WebhookDelivery),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newID() string { return uuid.NewString() }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ============================================================
// Companies
// ============================================================

func (s *Store) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetCompanyByWhopID(_ context.Context, whopCompanyID string) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.WhopCompanyID == whopCompanyID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "company", ID: whopCompanyID}
}

func (s *Store) UpsertCompany(_ context.Context, in *domain.Company) (*domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, c := range s.companies {
		if c.WhopCompanyID == in.WhopCompanyID {
			if in.Name != "" {
				c.Name = in.Name
			}
			if in.Email != "" {
				c.Email = in.Email
			}
			if in.AccessToken != "" {
				c.AccessToken = in.AccessToken
				c.RefreshToken = in.RefreshToken
				c.TokenExpiresAt = in.TokenExpiresAt
			}
			c.IsActive = true
			c.UpdatedAt = now
			cp := *c
			return &cp, nil
		}
	}
	c := *in
	c.ID = newID()
	c.IsActive = true
	c.CreatedAt = now
	c.UpdatedAt = now
	s.companies[c.ID] = &c
	cp := c
	return &cp, nil
}

func (s *Store) TouchCompanySync(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "company", ID: id}
	}
	c.LastSyncedAt = &at
	c.UpdatedAt = at
	return nil
}

// ============================================================
// Members
// ============================================================

func (s *Store) GetMember(_ context.Context, companyID, memberID string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok || m.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "member", ID: memberID}
	}
	cp := *m
	return &cp, nil
}

func (s *Store) GetMemberByWhopUserID(_ context.Context, whopUserID string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if m.WhopUserID == whopUserID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "member", ID: whopUserID}
}

func (s *Store) companyMembers(companyID string) []domain.Member {
	out := make([]domain.Member, 0)
	for _, m := range s.members {
		if m.CompanyID == companyID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ListMembers(_ context.Context, companyID string, f domain.MemberFilter) (*domain.MemberList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.companyMembers(companyID)
	counts := make(map[domain.MemberStatus]int)
	search := strings.ToLower(f.Search)
	matched := make([]domain.Member, 0, len(all))
	for _, m := range all {
		counts[m.Status]++
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Email), search) &&
			!strings.Contains(strings.ToLower(m.Username), search) {
			continue
		}
		matched = append(matched, m)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	start := min((page-1)*size, len(matched))
	end := min(start+size, len(matched))

	return &domain.MemberList{
		Members:      matched[start:end],
		Total:        len(matched),
		StatusCounts: counts,
		Page:         page,
		PageSize:     size,
	}, nil
}

func (s *Store) QueryMembers(_ context.Context, companyID string, q domain.MemberQuery) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]struct{}
	if q.IDs != nil {
		ids = make(map[string]struct{}, len(q.IDs))
		for _, id := range q.IDs {
			ids[id] = struct{}{}
		}
	}

	out := make([]domain.Member, 0)
	for _, m := range s.companyMembers(companyID) {
		if ids != nil {
			if _, ok := ids[m.ID]; !ok {
				continue
			}
		}
		if q.JoinedSince != nil && m.FirstJoinedAt.Before(*q.JoinedSince) {
			continue
		}
		if !domain.MatchesAll(q.Filters, m) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) UpsertMember(_ context.Context, in *domain.MemberUpsert) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	for _, m := range s.members {
		if m.WhopUserID != in.WhopUserID {
			continue
		}
		if m.CompanyID != in.CompanyID {
			return nil, &domain.ErrConflict{Message: "member belongs to another company"}
		}
		m.Email = in.Email
		m.Username = in.Username
		m.ProfilePicURL = in.ProfilePicURL
		m.Status = in.Status
		m.CurrentPlan = in.CurrentPlan
		m.PlanID = in.PlanID
		if in.LastSeenAt != nil {
			m.LastSeenAt = in.LastSeenAt
		}
		m.UpdatedAt = now
		cp := *m
		return &cp, nil
	}

	m := &domain.Member{
		ID:            newID(),
		CompanyID:     in.CompanyID,
		WhopUserID:    in.WhopUserID,
		Email:         in.Email,
		Username:      in.Username,
		ProfilePicURL: in.ProfilePicURL,
		Status:        in.Status,
		CurrentPlan:   in.CurrentPlan,
		PlanID:        in.PlanID,
		ChurnRisk:     domain.ChurnLow,
		FirstJoinedAt: now,
		LastSeenAt:    in.LastSeenAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.FirstJoinedAt != nil {
		m.FirstJoinedAt = *in.FirstJoinedAt
	}
	s.members[m.ID] = m
	cp := *m
	return &cp, nil
}

// PutMember inserts or replaces a member verbatim. Intended for seeding.
func (s *Store) PutMember(m domain.Member) *domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.UpdatedAt = m.CreatedAt
	s.members[m.ID] = &m
	cp := m
	return &cp
}

func (s *Store) UpdateMemberFields(_ context.Context, memberID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return &domain.ErrNotFound{Resource: "member", ID: memberID}
	}
	for k, v := range fields {
		if err := setMemberField(m, k, v); err != nil {
			return err
		}
	}
	m.UpdatedAt = s.now()
	return nil
}

func setMemberField(m *domain.Member, field string, v any) error {
	switch field {
	case "status":
		if s, ok := v.(string); ok {
			m.Status = domain.MemberStatus(s)
			return nil
		}
	case "churn_risk":
		if s, ok := v.(string); ok {
			m.ChurnRisk = domain.ChurnRisk(s)
			return nil
		}
	case "current_plan":
		if s, ok := v.(string); ok {
			m.CurrentPlan = s
			return nil
		}
	case "plan_id":
		if s, ok := v.(string); ok {
			m.PlanID = s
			return nil
		}
	case "username":
		if s, ok := v.(string); ok {
			m.Username = s
			return nil
		}
	case "email":
		if s, ok := v.(string); ok {
			m.Email = s
			return nil
		}
	case "profile_pic_url":
		if s, ok := v.(string); ok {
			m.ProfilePicURL = s
			return nil
		}
	case "cancelled_at":
		if t, ok := v.(time.Time); ok {
			m.CancelledAt = &t
			return nil
		}
	case "last_seen_at":
		if t, ok := v.(time.Time); ok {
			m.LastSeenAt = &t
			return nil
		}
	}
	return &domain.ErrValidation{Field: field, Message: "unsupported member field or value type"}
}

func (s *Store) UpdateMemberScores(_ context.Context, memberID string, scores domain.MemberScores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return &domain.ErrNotFound{Resource: "member", ID: memberID}
	}
	m.EngagementScore = scores.EngagementScore
	m.ChurnRisk = scores.ChurnRisk
	m.LifetimeValue = scores.LifetimeValue
	m.UpdatedAt = s.now()
	return nil
}

func (s *Store) IncrementMemberRevenue(_ context.Context, memberID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return &domain.ErrNotFound{Resource: "member", ID: memberID}
	}
	m.TotalRevenue += amount
	m.LifetimeValue += amount
	m.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteMembers(_ context.Context, companyID string, memberIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range memberIDs {
		if m, ok := s.members[id]; ok && m.CompanyID == companyID {
			s.deleteMemberLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteAllMembers(_ context.Context, companyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.members {
		if m.CompanyID == companyID {
			s.deleteMemberLocked(id)
			n++
		}
	}
	return n, nil
}

// deleteMemberLocked removes a member and cascades to its children.
func (s *Store) deleteMemberLocked(id string) {
	delete(s.members, id)
	delete(s.events, id)
	for k, ms := range s.memberships {
		if ms.MemberID == id {
			delete(s.memberships, k)
		}
	}
	for k, n := range s.notes {
		if n.MemberID == id {
			delete(s.notes, k)
		}
	}
	for k := range s.memberTags {
		if k.memberID == id {
			delete(s.memberTags, k)
		}
	}
}

// ============================================================
// Memberships & events
// ============================================================

func (s *Store) UpsertMembership(_ context.Context, in *domain.MembershipUpsert) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, ms := range s.memberships {
		if ms.WhopMembershipID != in.WhopMembershipID {
			continue
		}
		ms.Status = in.Status
		if in.PlanName != "" {
			ms.PlanName = in.PlanName
		}
		if in.Price != 0 {
			ms.Price = in.Price
		}
		ms.RenewsAt = in.RenewsAt
		ms.CancelledAt = in.CancelledAt
		ms.UpdatedAt = now
		cp := *ms
		return &cp, nil
	}
	ms := &domain.Membership{
		ID:               newID(),
		MemberID:         in.MemberID,
		WhopMembershipID: in.WhopMembershipID,
		PlanID:           in.PlanID,
		PlanName:         in.PlanName,
		Status:           in.Status,
		Price:            in.Price,
		Currency:         in.Currency,
		Interval:         in.Interval,
		StartedAt:        in.StartedAt,
		RenewsAt:         in.RenewsAt,
		CancelledAt:      in.CancelledAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.memberships[ms.ID] = ms
	cp := *ms
	return &cp, nil
}

func (s *Store) CancelMembership(_ context.Context, whopMembershipID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ms := range s.memberships {
		if ms.WhopMembershipID == whopMembershipID {
			ms.Status = "cancelled"
			ms.CancelledAt = &at
			ms.UpdatedAt = at
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "membership", ID: whopMembershipID}
}

func (s *Store) ListMemberships(_ context.Context, memberID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Membership, 0)
	for _, ms := range s.memberships {
		if ms.MemberID == memberID {
			out = append(out, *ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateEvent(_ context.Context, e *domain.Event) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[e.MemberID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "member", ID: e.MemberID}
	}
	ev := *e
	ev.ID = newID()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	s.events[ev.MemberID] = append(s.events[ev.MemberID], ev)
	return &ev, nil
}

func (s *Store) ListEvents(_ context.Context, memberID string, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Event(nil), s.events[memberID]...)
	sortEventsDesc(out)
	return truncate(out, limit), nil
}

func (s *Store) ListCompanyEvents(_ context.Context, companyID string, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, 0)
	for memberID, evs := range s.events {
		if m, ok := s.members[memberID]; ok && m.CompanyID == companyID {
			out = append(out, evs...)
		}
	}
	sortEventsDesc(out)
	return truncate(out, limit), nil
}

func sortEventsDesc(evs []domain.Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].OccurredAt.After(evs[j].OccurredAt) })
}

func truncate[T any](xs []T, limit int) []T {
	if limit > 0 && len(xs) > limit {
		return xs[:limit]
	}
	return xs
}

// ============================================================
// Notes & tags
// ============================================================

func (s *Store) CreateNote(_ context.Context, n *domain.Note) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note := *n
	note.ID = newID()
	note.CreatedAt = s.now()
	s.notes[note.ID] = &note
	cp := note
	return &cp, nil
}

func (s *Store) ListNotes(_ context.Context, memberID string, limit int) ([]domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Note, 0)
	for _, n := range s.notes {
		if n.MemberID == memberID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

func (s *Store) GetNote(_ context.Context, noteID string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[noteID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "note", ID: noteID}
	}
	cp := *n
	return &cp, nil
}

func (s *Store) DeleteNote(_ context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, noteID)
	return nil
}

func (s *Store) ListTags(_ context.Context, companyID string) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Tag, 0)
	for _, t := range s.tags {
		if t.CompanyID == companyID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetTag(_ context.Context, companyID, tagID string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[tagID]
	if !ok || t.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "tag", ID: tagID}
	}
	cp := *t
	return &cp, nil
}

func (s *Store) CreateTag(_ context.Context, in *domain.Tag) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.CompanyID == in.CompanyID && strings.EqualFold(t.Name, in.Name) {
			return nil, &domain.ErrDuplicate{Key: "tag:" + in.Name, Message: "Tag already exists"}
		}
	}
	t := *in
	t.ID = newID()
	t.CreatedAt = s.now()
	s.tags[t.ID] = &t
	cp := t
	return &cp, nil
}

func (s *Store) DeleteTag(_ context.Context, companyID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[tagID]
	if !ok || t.CompanyID != companyID {
		return &domain.ErrNotFound{Resource: "tag", ID: tagID}
	}
	delete(s.tags, tagID)
	for k := range s.memberTags {
		if k.tagID == tagID {
			delete(s.memberTags, k)
		}
	}
	return nil
}

func (s *Store) AddMemberTag(_ context.Context, memberID, tagID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberTagKey{memberID: memberID, tagID: tagID}
	if _, ok := s.memberTags[key]; ok {
		return false, nil
	}
	if _, ok := s.members[memberID]; !ok {
		return false, &domain.ErrNotFound{Resource: "member", ID: memberID}
	}
	if _, ok := s.tags[tagID]; !ok {
		return false, &domain.ErrNotFound{Resource: "tag", ID: tagID}
	}
	s.memberTags[key] = domain.MemberTag{MemberID: memberID, TagID: tagID, CreatedAt: s.now()}
	return true, nil
}

func (s *Store) RemoveMemberTag(_ context.Context, memberID, tagID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberTagKey{memberID: memberID, tagID: tagID}
	if _, ok := s.memberTags[key]; !ok {
		return false, nil
	}
	delete(s.memberTags, key)
	return true, nil
}

func (s *Store) ListMemberTags(_ context.Context, memberIDs []string) ([]domain.MemberTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		want[id] = struct{}{}
	}
	out := make([]domain.MemberTag, 0)
	for k, mt := range s.memberTags {
		if _, ok := want[k.memberID]; !ok {
			continue
		}
		if t, ok := s.tags[k.tagID]; ok {
			tc := *t
			mt.Tag = &tc
		}
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberID != out[j].MemberID {
			return out[i].MemberID < out[j].MemberID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ============================================================
// Segments, automations, insights, webhooks
// ============================================================

func (s *Store) ListSegments(_ context.Context, companyID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Segment, 0)
	for _, seg := range s.segments {
		if seg.CompanyID == companyID {
			out = append(out, *seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetSegment(_ context.Context, companyID, segmentID string) (*domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[segmentID]
	if !ok || seg.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "segment", ID: segmentID}
	}
	cp := *seg
	return &cp, nil
}

func (s *Store) CreateSegment(_ context.Context, in *domain.Segment) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg := *in
	seg.ID = newID()
	seg.CreatedAt = s.now()
	seg.UpdatedAt = seg.CreatedAt
	s.segments[seg.ID] = &seg
	cp := seg
	return &cp, nil
}

func (s *Store) UpdateSegment(_ context.Context, in *domain.Segment) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[in.ID]
	if !ok || seg.CompanyID != in.CompanyID {
		return nil, &domain.ErrNotFound{Resource: "segment", ID: in.ID}
	}
	createdAt := seg.CreatedAt
	*seg = *in
	seg.CreatedAt = createdAt
	seg.UpdatedAt = s.now()
	cp := *seg
	return &cp, nil
}

func (s *Store) DeleteSegment(_ context.Context, companyID, segmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[segmentID]
	if !ok || seg.CompanyID != companyID {
		return &domain.ErrNotFound{Resource: "segment", ID: segmentID}
	}
	delete(s.segments, segmentID)
	return nil
}

func (s *Store) sortedAutomations(companyID string, activeOnly bool) []domain.Automation {
	out := make([]domain.Automation, 0)
	for _, a := range s.automations {
		if a.CompanyID != companyID || (activeOnly && !a.IsActive) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ListAutomations(_ context.Context, companyID string) ([]domain.Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedAutomations(companyID, false), nil
}

func (s *Store) ListActiveAutomations(_ context.Context, companyID string) ([]domain.Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedAutomations(companyID, true), nil
}

func (s *Store) GetAutomation(_ context.Context, companyID, automationID string) (*domain.Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.automations[automationID]
	if !ok || a.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	cp := *a
	return &cp, nil
}

func (s *Store) CreateAutomation(_ context.Context, in *domain.Automation) (*domain.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *in
	a.ID = newID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.UpdatedAt = a.CreatedAt
	s.automations[a.ID] = &a
	cp := a
	return &cp, nil
}

func (s *Store) SetAutomationActive(_ context.Context, automationID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.automations[automationID]
	if !ok {
		return &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	a.IsActive = active
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) RecordAutomationRun(_ context.Context, automationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.automations[automationID]
	if !ok {
		return &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	a.RunCount++
	a.LastRunAt = &at
	return nil
}

func (s *Store) DeleteAutomation(_ context.Context, companyID, automationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.automations[automationID]
	if !ok || a.CompanyID != companyID {
		return &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	delete(s.automations, automationID)
	return nil
}

func (s *Store) ListDashboardInsights(_ context.Context, companyID string) ([]domain.DashboardInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DashboardInsight{}, s.insights[companyID]...), nil
}

func (s *Store) ReplaceDashboardInsights(_ context.Context, companyID string, in []domain.DashboardInsight) ([]domain.DashboardInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]domain.DashboardInsight, 0, len(in))
	for _, ins := range in {
		ins.ID = newID()
		ins.CompanyID = companyID
		ins.IsActive = true
		ins.CreatedAt = now
		out = append(out, ins)
	}
	s.insights[companyID] = out
	return append([]domain.DashboardInsight{}, out...), nil
}

func (s *Store) RecordDelivery(_ context.Context, d *domain.WebhookDelivery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.deliveries[d.ID]; ok {
		if prev.Error == "" {
			return false, nil
		}
		prev.Error = ""
		prev.ProcessedAt = nil
		prev.ReceivedAt = d.ReceivedAt
		return true, nil
	}
	cp := *d
	s.deliveries[d.ID] = &cp
	return true, nil
}

func (s *Store) FinishDelivery(_ context.Context, id string, at time.Time, processingErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "webhook delivery", ID: id}
	}
	d.ProcessedAt = &at
	d.Error = processingErr
	return nil
}

// Delivery returns a recorded webhook delivery.
func (s *Store) Delivery(id string) (domain.WebhookDelivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return domain.WebhookDelivery{}, false
	}
	return *d, true
}
