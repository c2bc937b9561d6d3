package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Members: CRUD via PostgREST
// ============================================================

const defaultMemberPageSize = 50

var errForeignMember = &domain.ErrConflict{Message: "member belongs to another company"}

func (c *Client) GetMember(ctx context.Context, companyID, memberID string) (*domain.Member, error) {
	var rows []domain.Member
	path := fmt.Sprintf("members?id=%s&company_id=%s&limit=1", eq(memberID), eq(companyID))
	if err := c.selectRows(ctx, "GetMember", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "member", ID: memberID})
}

func (c *Client) GetMemberByWhopUserID(ctx context.Context, whopUserID string) (*domain.Member, error) {
	var rows []domain.Member
	if err := c.selectRows(ctx, "GetMemberByWhopUserID", "members?whop_user_id="+eq(whopUserID)+"&limit=1", &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "member", ID: whopUserID})
}

// ListMembers returns one page plus the company-wide counts by status.
func (c *Client) ListMembers(ctx context.Context, companyID string, f domain.MemberFilter) (*domain.MemberList, error) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultMemberPageSize
	}

	path := "members?company_id=" + eq(companyID)
	if f.Status != "" {
		path += "&status=" + eq(string(f.Status))
	}
	if f.Search != "" {
		path += "&or=" + ilikeAny(f.Search, "email", "username")
	}
	path += fmt.Sprintf("&order=created_at.desc,id.asc&limit=%d&offset=%d", size, (page-1)*size)

	resp, err := c.exec(ctx, "ListMembers", http.MethodGet, path, nil, "count=exact")
	if err != nil {
		return nil, err
	}
	members := make([]domain.Member, 0)
	if err := decode("ListMembers", resp.body, &members); err != nil {
		return nil, err
	}
	total, ok := contentRangeTotal(resp.header)
	if !ok {
		total = len(members)
	}

	var statuses []struct {
		Status domain.MemberStatus `json:"status"`
	}
	if err := c.selectRows(ctx, "CountMembersByStatus", "members?select=status&company_id="+eq(companyID), &statuses); err != nil {
		return nil, err
	}
	counts := make(map[domain.MemberStatus]int)
	for _, s := range statuses {
		counts[s.Status]++
	}

	return &domain.MemberList{
		Members:      members,
		Total:        total,
		StatusCounts: counts,
		Page:         page,
		PageSize:     size,
	}, nil
}

// QueryMembers narrows by ids and join date in PostgREST and evaluates
// segment filters in process, so unsupported filters match every member.
func (c *Client) QueryMembers(ctx context.Context, companyID string, q domain.MemberQuery) ([]domain.Member, error) {
	if q.IDs != nil && len(q.IDs) == 0 {
		return []domain.Member{}, nil
	}
	path := "members?company_id=" + eq(companyID)
	if q.IDs != nil {
		path += "&id=" + in(q.IDs)
	}
	if q.JoinedSince != nil {
		path += "&first_joined_at=gte." + ts(*q.JoinedSince)
	}
	path += "&order=created_at.desc,id.asc"

	rows, err := selectAll[domain.Member](ctx, c, "QueryMembers", path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(rows))
	for _, m := range rows {
		if domain.MatchesAll(q.Filters, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// UpsertMember matches on whop_user_id. Existing rows keep their join date,
// scores and revenue. A row owned by another company is never touched.
func (c *Client) UpsertMember(ctx context.Context, in *domain.MemberUpsert) (*domain.Member, error) {
	existing, err := c.GetMemberByWhopUserID(ctx, in.WhopUserID)
	var nf *domain.ErrNotFound
	switch {
	case err == nil:
		if existing.CompanyID != in.CompanyID {
			return nil, errForeignMember
		}
		return c.updateUpsertedMember(ctx, existing.ID, in)
	case !errors.As(err, &nf):
		return nil, err
	}

	now := c.now()
	joined := now
	if in.FirstJoinedAt != nil {
		joined = *in.FirstJoinedAt
	}
	row := map[string]any{
		"company_id":      in.CompanyID,
		"whop_user_id":    in.WhopUserID,
		"email":           in.Email,
		"username":        in.Username,
		"profile_pic_url": in.ProfilePicURL,
		"status":          in.Status,
		"current_plan":    in.CurrentPlan,
		"plan_id":         in.PlanID,
		"churn_risk":      domain.ChurnLow,
		"first_joined_at": joined,
		"last_seen_at":    in.LastSeenAt,
	}
	var rows []domain.Member
	err = c.insert(ctx, "InsertMember", "members", row, &rows)
	var dup *domain.ErrDuplicate
	if errors.As(err, &dup) {
		// Lost a race with a concurrent insert of the same user.
		existing, err := c.GetMemberByWhopUserID(ctx, in.WhopUserID)
		if err != nil {
			return nil, err
		}
		if existing.CompanyID != in.CompanyID {
			return nil, errForeignMember
		}
		return c.updateUpsertedMember(ctx, existing.ID, in)
	}
	if err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "member", ID: in.WhopUserID})
}

func (c *Client) updateUpsertedMember(ctx context.Context, memberID string, in *domain.MemberUpsert) (*domain.Member, error) {
	fields := map[string]any{
		"email":           in.Email,
		"username":        in.Username,
		"profile_pic_url": in.ProfilePicURL,
		"status":          in.Status,
		"current_plan":    in.CurrentPlan,
		"plan_id":         in.PlanID,
		"updated_at":      c.now(),
	}
	if in.LastSeenAt != nil {
		fields["last_seen_at"] = in.LastSeenAt
	}
	var rows []domain.Member
	if err := c.patch(ctx, "UpdateMember", "members?id="+eq(memberID), fields, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "member", ID: memberID})
}

func (c *Client) UpdateMemberFields(ctx context.Context, memberID string, fields map[string]any) error {
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = c.now()

	var rows []domain.Member
	if err := c.patch(ctx, "UpdateMemberFields", "members?id="+eq(memberID), patch, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "member", ID: memberID}
	}
	return nil
}

func (c *Client) UpdateMemberScores(ctx context.Context, memberID string, scores domain.MemberScores) error {
	return c.UpdateMemberFields(ctx, memberID, map[string]any{
		"engagement_score": scores.EngagementScore,
		"churn_risk":       scores.ChurnRisk,
		"lifetime_value":   scores.LifetimeValue,
	})
}

// IncrementMemberRevenue adds amount to total revenue and lifetime value.
func (c *Client) IncrementMemberRevenue(ctx context.Context, memberID string, amount float64) error {
	var rows []domain.Member
	if err := c.selectRows(ctx, "GetMemberRevenue", "members?id="+eq(memberID)+"&limit=1", &rows); err != nil {
		return err
	}
	m, err := first(rows, &domain.ErrNotFound{Resource: "member", ID: memberID})
	if err != nil {
		return err
	}

	err = c.UpdateMemberFields(ctx, memberID, map[string]any{
		"total_revenue":  m.TotalRevenue + amount,
		"lifetime_value": m.LifetimeValue + amount,
	})
	if err != nil {
		return err
	}

	c.logger.Debug("supabase: member revenue incremented",
		zap.String("member_id", memberID),
		zap.Float64("amount", amount),
		zap.Float64("new_total", m.TotalRevenue+amount),
	)
	return nil
}

// DeleteMembers removes the given members of the company. Memberships,
// events, notes and tag rows go with them through ON DELETE CASCADE.
func (c *Client) DeleteMembers(ctx context.Context, companyID string, memberIDs []string) (int, error) {
	if len(memberIDs) == 0 {
		return 0, nil
	}
	return c.remove(ctx, "DeleteMembers", "members?company_id="+eq(companyID)+"&id="+in(memberIDs))
}

func (c *Client) DeleteAllMembers(ctx context.Context, companyID string) (int, error) {
	return c.remove(ctx, "DeleteAllMembers", "members?company_id="+eq(companyID))
}

// ============================================================
// Memberships & events
// ============================================================

// UpsertMembership matches on whop_membership_id. Updates keep the stored
// plan name and price when the incoming ones are empty.
func (c *Client) UpsertMembership(ctx context.Context, in *domain.MembershipUpsert) (*domain.Membership, error) {
	var existing []domain.Membership
	if err := c.selectRows(ctx, "GetMembership", "memberships?whop_membership_id="+eq(in.WhopMembershipID)+"&limit=1", &existing); err != nil {
		return nil, err
	}

	var rows []domain.Membership
	if len(existing) > 0 {
		fields := map[string]any{
			"status":       in.Status,
			"renews_at":    in.RenewsAt,
			"cancelled_at": in.CancelledAt,
			"updated_at":   c.now(),
		}
		if in.PlanName != "" {
			fields["plan_name"] = in.PlanName
		}
		if in.Price != 0 {
			fields["price"] = in.Price
		}
		if err := c.patch(ctx, "UpdateMembership", "memberships?id="+eq(existing[0].ID), fields, &rows); err != nil {
			return nil, err
		}
	} else {
		row := map[string]any{
			"member_id":          in.MemberID,
			"whop_membership_id": in.WhopMembershipID,
			"plan_id":            in.PlanID,
			"plan_name":          in.PlanName,
			"status":             in.Status,
			"price":              in.Price,
			"currency":           in.Currency,
			"interval":           in.Interval,
			"started_at":         in.StartedAt,
			"renews_at":          in.RenewsAt,
			"cancelled_at":       in.CancelledAt,
		}
		if err := c.insert(ctx, "InsertMembership", "memberships", row, &rows); err != nil {
			return nil, err
		}
	}
	return first(rows, &domain.ErrNotFound{Resource: "membership", ID: in.WhopMembershipID})
}

func (c *Client) CancelMembership(ctx context.Context, whopMembershipID string, at time.Time) error {
	var rows []domain.Membership
	err := c.patch(ctx, "CancelMembership", "memberships?whop_membership_id="+eq(whopMembershipID), map[string]any{
		"status":       "cancelled",
		"cancelled_at": at,
		"updated_at":   at,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "membership", ID: whopMembershipID}
	}
	return nil
}

func (c *Client) ListMemberships(ctx context.Context, memberID string) ([]domain.Membership, error) {
	rows := make([]domain.Membership, 0)
	if err := c.selectRows(ctx, "ListMemberships", "memberships?member_id="+eq(memberID)+"&order=created_at.desc", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) CreateEvent(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = c.now()
	}
	row := map[string]any{
		"member_id":   e.MemberID,
		"type":        e.Type,
		"occurred_at": occurred,
	}
	if len(e.Data) > 0 {
		row["data"] = e.Data
	}
	var rows []domain.Event
	if err := c.insert(ctx, "CreateEvent", "events", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "member", ID: e.MemberID})
}

func limitParam(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "&limit=" + strconv.Itoa(limit)
}

func (c *Client) ListEvents(ctx context.Context, memberID string, limit int) ([]domain.Event, error) {
	rows := make([]domain.Event, 0)
	path := "events?member_id=" + eq(memberID) + "&order=occurred_at.desc" + limitParam(limit)
	if err := c.selectRows(ctx, "ListEvents", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListCompanyEvents joins through members to scope events to the company.
func (c *Client) ListCompanyEvents(ctx context.Context, companyID string, limit int) ([]domain.Event, error) {
	rows := make([]domain.Event, 0)
	path := "events?select=id,member_id,type,data,occurred_at,members!inner(company_id)" +
		"&members.company_id=" + eq(companyID) +
		"&order=occurred_at.desc" + limitParam(limit)
	if err := c.selectRows(ctx, "ListCompanyEvents", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
