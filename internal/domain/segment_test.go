package domain_test

import (
	"testing"

	"github.com/boddenberg/whop-crm-go/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestSegmentFilter_CurrentPlan(t *testing.T) {
	m := domain.Member{CurrentPlan: "Pro Monthly"}

	tests := []struct {
		name   string
		filter domain.SegmentFilter
		want   bool
	}{
		{"equals exact", domain.SegmentFilter{Field: "currentPlan", Operator: "equals", Value: "Pro Monthly"}, true},
		{"equals is case sensitive", domain.SegmentFilter{Field: "currentPlan", Operator: "equals", Value: "pro monthly"}, false},
		{"contains ignores case", domain.SegmentFilter{Field: "current_plan", Operator: "contains", Value: "PRO"}, true},
		{"contains miss", domain.SegmentFilter{Field: "current_plan", Operator: "contains", Value: "basic"}, false},
		{"unknown operator matches", domain.SegmentFilter{Field: "current_plan", Operator: "startsWith", Value: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(m))
		})
	}
}
