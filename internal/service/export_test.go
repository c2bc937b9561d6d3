package service_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSegmentCSV_QuotesRoundTrip(t *testing.T) {
	joined := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	members := []domain.Member{{
		ID:              "m1",
		Email:           "a@x.io",
		Username:        `Doe, "Johnny"`,
		Status:          domain.MemberActive,
		CurrentPlan:     "Pro\nAnnual",
		TotalRevenue:    1234.5,
		MonthlyRevenue:  99,
		EngagementScore: 42,
		FirstJoinedAt:   joined,
	}}
	tags := map[string][]string{"m1": {"vip", "early, adopter"}}

	var buf bytes.Buffer
	require.NoError(t, service.WriteSegmentCSV(&buf, members, tags))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Engagement Score", rows[0][6])
	assert.Equal(t, []string{
		"a@x.io", `Doe, "Johnny"`, "active", "Pro\nAnnual", "1234.50", "99.00", "42",
		"2025-01-02", "", "vip; early, adopter",
	}, rows[1])
}

func TestWriteBulkCSV_Columns(t *testing.T) {
	cancelled := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
	members := []domain.Member{{
		ID:          "m1",
		Email:       "a@x.io",
		Status:      domain.MemberCancelled,
		ChurnRisk:   domain.ChurnHigh,
		CancelledAt: &cancelled,
	}}

	var buf bytes.Buffer
	require.NoError(t, service.WriteBulkCSV(&buf, members, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[0], 11)
	assert.Equal(t, "No plan", rows[1][3])
	assert.Equal(t, "high", rows[1][7])
	assert.Equal(t, "2025-06-30", rows[1][9])
}

func TestExportFilenames(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, "High_value__2026_2026-02-03.csv", service.SegmentExportFilename("High value: 2026", now))
	assert.Equal(t, "members-export-1770091506000.csv", service.BulkExportFilename(now))
}
