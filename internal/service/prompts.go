package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

const memberAnalysisSystemPrompt = "You are an expert SaaS customer success analyst. Provide detailed, actionable insights based on customer data. Always respond with valid JSON."

const memberAnalysisSchema = `{
  "churnRiskAssessment": {
    "level": "low" | "medium" | "high",
    "confidence": 0-100,
    "reasoning": "Brief explanation of why this risk level",
    "keyFactors": ["factor1", "factor2", "factor3"]
  },
  "engagementAnalysis": {
    "score": 0-100,
    "trend": "improving" | "stable" | "declining",
    "breakdown": {
      "activity": 0-100,
      "monetization": 0-100,
      "loyalty": 0-100
    }
  },
  "recommendations": [
    {
      "priority": "critical" | "high" | "medium" | "low",
      "category": "retention" | "engagement" | "monetization" | "support",
      "action": "Specific action to take",
      "expectedImpact": "What this will achieve",
      "timeline": "When to do this"
    }
  ],
  "lifetimeValue": {
    "predicted": estimated_ltv_in_dollars,
    "confidence": 0-100,
    "reasoning": "Why this LTV prediction"
  },
  "keyInsights": [
    "Notable insight 1",
    "Notable insight 2",
    "Notable insight 3"
  ]
}`

const dashboardInsightsSystemPrompt = `You are a CRM analytics expert. Analyze the provided membership data and generate 3-5 actionable insights for the dashboard.

Each insight should:
- Be concise and actionable
- Include a specific metric/number
- Have a priority level (critical, high, medium, low)
- Have a category (churn, revenue, engagement, growth)
- Optionally suggest an action URL (segment filter query)

Return a JSON object {"insights": [...]} where each insight has this structure:
{
  "title": "Short title",
  "description": "1-2 sentence description with specific metrics",
  "priority": "critical|high|medium|low",
  "category": "churn|revenue|engagement|growth",
  "metric": "23 members" or "15% increase",
  "actionable": true|false,
  "actionUrl": "/dashboard/COMPANY_ID/members?filters=..." (optional)
}

Focus on the most impactful insights. Prioritize urgent issues (high churn, revenue drops) over positive trends.`

const memberSearchSystemPrompt = `You are a CRM query assistant. Convert natural language queries into structured filter criteria.

Available filters:
- status: array of "active", "cancelled", "past_due", "inactive"
- churnRisk: array of "low", "medium", "high"
- engagementScore: {"min": X, "max": Y}, numbers 0-100 (higher = more engaged)
- totalRevenue: {"min": X, "max": Y}, in dollars
- lastActiveDays: number of days since the member was last active
- tags: array of tag names
- hasNotes: boolean

Engagement references:
- "highly engaged" = engagementScore min 70
- "moderately engaged" = engagementScore min 40, max 69
- "low engagement" / "inactive" = engagementScore max 39

Revenue references:
- "high value" / "big spenders" = totalRevenue min 500
- "low value" = totalRevenue max 99

Return ONLY a JSON object with the filters that apply. Omit the rest. Example:
{"status": ["active"], "churnRisk": ["high"], "engagementScore": {"max": 39}}`

// buildMemberAnalysisPrompt renders the member profile sent for deep analysis.
func buildMemberAnalysisPrompt(s *domain.MemberSnapshot, now time.Time) string {
	m := s.Member
	accountAge := daysSince(now, m.FirstJoinedAt)
	revenuePerDay := 0.0
	if accountAge > 0 {
		revenuePerDay = m.TotalRevenue / float64(accountAge)
	}

	lastActive := "Never seen"
	if m.LastSeenAt != nil {
		lastActive = fmt.Sprintf("%d days", daysSince(now, *m.LastSeenAt))
	}

	cutoff := now.AddDate(0, 0, -activityWindowDays)
	breakdown := map[string]int{}
	recent := 0
	for _, e := range s.Events {
		if !e.OccurredAt.Before(cutoff) {
			breakdown[e.Type]++
			recent++
		}
	}
	breakdownJSON, _ := json.MarshalIndent(breakdown, "", "  ")

	var b strings.Builder
	b.WriteString("You are an expert customer success analyst for a SaaS business. Analyze this member's data and provide actionable insights.\n\n")

	b.WriteString("## Member Profile\n")
	fmt.Fprintf(&b, "- Email: %s\n", m.Email)
	fmt.Fprintf(&b, "- Username: %s\n", orDefault(m.Username, "Not set"))
	fmt.Fprintf(&b, "- Current Status: %s\n", m.Status)
	fmt.Fprintf(&b, "- Current Plan: %s\n\n", orDefault(m.CurrentPlan, "Unknown"))

	b.WriteString("## Financial Metrics\n")
	fmt.Fprintf(&b, "- Total Lifetime Revenue: $%.2f\n", m.TotalRevenue)
	fmt.Fprintf(&b, "- Monthly Recurring Revenue: $%.2f\n", m.MonthlyRevenue)
	fmt.Fprintf(&b, "- Average Revenue per Day: $%.2f\n\n", revenuePerDay)

	b.WriteString("## Engagement Metrics\n")
	fmt.Fprintf(&b, "- Account Age: %d days\n", accountAge)
	fmt.Fprintf(&b, "- Days Since Last Active: %s\n", lastActive)
	fmt.Fprintf(&b, "- Current Engagement Score: %d/100 (algorithmic)\n", m.EngagementScore)
	fmt.Fprintf(&b, "- Current Churn Risk: %s (algorithmic)\n\n", m.ChurnRisk)

	b.WriteString("## Activity (Last 30 Days)\n")
	fmt.Fprintf(&b, "- Total Events: %d\n", recent)
	fmt.Fprintf(&b, "- Event Breakdown: %s\n\n", breakdownJSON)

	b.WriteString("## Historical Data\n")
	fmt.Fprintf(&b, "- Total Memberships: %d\n", len(s.Memberships))
	fmt.Fprintf(&b, "- Total Notes/Interactions: %d\n", len(s.Notes))
	fmt.Fprintf(&b, "- Join Date: %s\n", m.FirstJoinedAt.Format(time.DateOnly))
	if m.CancelledAt != nil {
		fmt.Fprintf(&b, "- Cancelled Date: %s\n", m.CancelledAt.Format(time.DateOnly))
	}

	b.WriteString("\n## Recent Notes (Last 3)\n")
	notes := s.Notes
	if len(notes) > 3 {
		notes = notes[:3]
	}
	if len(notes) == 0 {
		b.WriteString("No notes\n")
	}
	for i, n := range notes {
		fmt.Fprintf(&b, "%d. %s...\n", i+1, truncateRunes(n.Content, 100))
	}

	b.WriteString("\n---\n\nBased on this data, provide a comprehensive analysis in the following JSON format:\n\n")
	b.WriteString(memberAnalysisSchema)
	b.WriteString("\n\nProvide 3-5 specific, actionable recommendations. Be direct and data-driven. Focus on what actions would have the highest impact.")
	return b.String()
}

// buildDashboardInsightsPrompt renders the company aggregates.
func buildDashboardInsightsPrompt(a domain.CompanyAnalytics) string {
	data := map[string]any{
		"totalMembers":         a.TotalMembers,
		"activeMembers":        a.ActiveMembers,
		"cancelledMembers":     a.CancelledMembers,
		"highChurnRiskMembers": a.HighChurnRisk,
		"lowEngagementMembers": a.LowEngagement,
		"newMembers":           a.NewMembers30d,
		"churnRate":            fmt.Sprintf("%.1f", a.ChurnRate),
		"totalRevenue":         fmt.Sprintf("%.2f", a.TotalRevenue),
		"avgRevenue":           fmt.Sprintf("%.2f", a.AvgRevenue),
	}
	raw, _ := json.MarshalIndent(data, "", "  ")
	return "Analyze this CRM data and generate insights:\n\n" + string(raw) +
		"\n\nGenerate 3-5 insights focusing on the most important findings."
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
