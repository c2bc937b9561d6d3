package service

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

var segmentExportHeader = []string{
	"Email", "Username", "Status", "Current Plan", "Total Revenue", "Monthly Revenue",
	"Engagement Score", "Join Date", "Last Active", "Tags",
}

var bulkExportHeader = []string{
	"Email", "Username", "Status", "Current Plan", "Total Revenue", "Monthly Revenue",
	"Engagement Score", "Churn Risk", "First Joined", "Cancelled At", "Tags",
}

// CSVExport is a rendered CSV attachment.
type CSVExport struct {
	Filename string
	Body     []byte
}

// memberTagNames groups tag names by member id.
func memberTagNames(tags []domain.MemberTag) map[string][]string {
	out := make(map[string][]string)
	for _, mt := range tags {
		if mt.Tag == nil {
			continue
		}
		out[mt.MemberID] = append(out[mt.MemberID], mt.Tag.Name)
	}
	return out
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func dateOnly(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// WriteSegmentCSV writes the segment export layout.
func WriteSegmentCSV(w io.Writer, members []domain.Member, tags map[string][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(segmentExportHeader); err != nil {
		return err
	}
	for _, m := range members {
		joined := m.FirstJoinedAt
		if err := cw.Write([]string{
			m.Email,
			m.Username,
			string(m.Status),
			m.CurrentPlan,
			money(m.TotalRevenue),
			money(m.MonthlyRevenue),
			strconv.Itoa(m.EngagementScore),
			dateOnly(&joined),
			dateOnly(m.LastSeenAt),
			strings.Join(tags[m.ID], "; "),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBulkCSV writes the member bulk export layout.
func WriteBulkCSV(w io.Writer, members []domain.Member, tags map[string][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(bulkExportHeader); err != nil {
		return err
	}
	for _, m := range members {
		joined := m.FirstJoinedAt
		if err := cw.Write([]string{
			m.Email,
			m.Username,
			string(m.Status),
			orDefault(m.CurrentPlan, "No plan"),
			money(m.TotalRevenue),
			money(m.MonthlyRevenue),
			strconv.Itoa(m.EngagementScore),
			string(m.ChurnRisk),
			dateOnly(&joined),
			dateOnly(m.CancelledAt),
			strings.Join(tags[m.ID], "; "),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SegmentExportFilename replaces every non-alphanumeric ASCII character of
// the segment name with an underscore and appends the date.
func SegmentExportFilename(name string, now time.Time) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + "_" + now.UTC().Format(time.DateOnly) + ".csv"
}

// BulkExportFilename names a bulk member export.
func BulkExportFilename(now time.Time) string {
	return "members-export-" + strconv.FormatInt(now.UnixMilli(), 10) + ".csv"
}
