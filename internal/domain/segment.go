package domain

import (
	"strconv"
	"strings"
	"time"
)

// SegmentFilter is one {field, operator, value} predicate over members.
type SegmentFilter struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Segment is a saved filter definition with aggregates cached at save time.
type Segment struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Filters     []SegmentFilter `json:"filters"`
	MemberCount int             `json:"member_count"`
	TotalMRR    float64         `json:"total_mrr"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SegmentInput is the create/update payload of a segment.
type SegmentInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Filters     []SegmentFilter `json:"filters" validate:"required,min=1,dive"`
}

// Canonical filter field names.
const (
	FilterStatus          = "status"
	FilterTotalRevenue    = "total_revenue"
	FilterMonthlyRevenue  = "monthly_revenue"
	FilterEngagementScore = "engagement_score"
	FilterCurrentPlan     = "current_plan"
)

// CanonicalField maps camelCase and snake_case field names to one spelling.
// Unknown names are returned unchanged.
func CanonicalField(field string) string {
	switch field {
	case "totalRevenue":
		return FilterTotalRevenue
	case "monthlyRevenue":
		return FilterMonthlyRevenue
	case "engagementScore":
		return FilterEngagementScore
	case "currentPlan":
		return FilterCurrentPlan
	}
	return field
}

// NumericFilterValue parses the filter value; ok is false when the value is
// not a number, in which case the filter is ignored.
func (f SegmentFilter) NumericFilterValue() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
	return v, err == nil
}

// Matches evaluates the filter. Unsupported fields or operators match every
// member.
func (f SegmentFilter) Matches(m Member) bool {
	switch CanonicalField(f.Field) {
	case FilterStatus:
		return string(m.Status) == f.Value
	case FilterTotalRevenue:
		return matchNumber(m.TotalRevenue, f)
	case FilterMonthlyRevenue:
		return matchNumber(m.MonthlyRevenue, f)
	case FilterEngagementScore:
		return matchNumber(float64(m.EngagementScore), f)
	case FilterCurrentPlan:
		switch f.Operator {
		case "equals":
			return m.CurrentPlan == f.Value
		case "contains":
			return strings.Contains(strings.ToLower(m.CurrentPlan), strings.ToLower(f.Value))
		}
	}
	return true
}

func matchNumber(got float64, f SegmentFilter) bool {
	want, ok := f.NumericFilterValue()
	if !ok {
		return true
	}
	switch f.Operator {
	case "gte":
		return got >= want
	case "lte":
		return got <= want
	case "eq":
		return got == want
	}
	return true
}

// MatchesAll reports whether m satisfies every filter.
func MatchesAll(filters []SegmentFilter, m Member) bool {
	for _, f := range filters {
		if !f.Matches(m) {
			return false
		}
	}
	return true
}

// SegmentTemplate is a built-in export preset.
type SegmentTemplate string

const (
	TemplateActive    SegmentTemplate = "active"
	TemplateAtRisk    SegmentTemplate = "at-risk"
	TemplateHighValue SegmentTemplate = "high-value"
	TemplateChurned   SegmentTemplate = "churned"
	TemplateNew       SegmentTemplate = "new"
)

// TemplateFilters returns the filters a template expands to. The "new"
// template is date-based and additionally needs JoinedSince.
func TemplateFilters(t SegmentTemplate) ([]SegmentFilter, bool) {
	switch t {
	case TemplateActive:
		return []SegmentFilter{{Field: FilterStatus, Operator: "eq", Value: string(MemberActive)}}, true
	case TemplateAtRisk:
		return []SegmentFilter{{Field: FilterStatus, Operator: "eq", Value: string(MemberPastDue)}}, true
	case TemplateHighValue:
		return []SegmentFilter{
			{Field: FilterTotalRevenue, Operator: "gte", Value: "200"},
			{Field: FilterStatus, Operator: "eq", Value: string(MemberActive)},
		}, true
	case TemplateChurned:
		return []SegmentFilter{{Field: FilterStatus, Operator: "eq", Value: string(MemberCancelled)}}, true
	case TemplateNew:
		return nil, true
	}
	return nil, false
}

// MemberQuery selects members for segments and exports.
type MemberQuery struct {
	Filters     []SegmentFilter
	JoinedSince *time.Time
	IDs         []string
}
