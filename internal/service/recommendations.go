package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// GenerateRecommendations maps a scored member to suggested actions. Every
// matching rule fires, in a fixed order.
func GenerateRecommendations(s *domain.MemberSnapshot, now time.Time) []domain.Recommendation {
	m := s.Member
	recs := make([]domain.Recommendation, 0, 4)
	age := daysSince(now, m.FirstJoinedAt)

	if m.ChurnRisk == domain.ChurnHigh {
		recs = append(recs, domain.Recommendation{
			Type:     "retention",
			Priority: "high",
			Message:  "High churn risk detected. Consider reaching out personally.",
			Action:   "Send personalized message or offer",
		})
	}

	if m.LastSeenAt != nil {
		if d := daysSince(now, *m.LastSeenAt); d > 30 {
			recs = append(recs, domain.Recommendation{
				Type:     "engagement",
				Priority: "high",
				Message:  fmt.Sprintf("Member hasn't been active in %d days", d),
				Action:   "Send re-engagement campaign",
			})
		}
	}

	if m.Status == domain.MemberPastDue {
		recs = append(recs, domain.Recommendation{
			Type:     "payment",
			Priority: "high",
			Message:  "Payment is past due. Risk of involuntary churn.",
			Action:   "Send payment reminder",
		})
	}

	if m.EngagementScore < 30 {
		recs = append(recs, domain.Recommendation{
			Type:     "engagement",
			Priority: "medium",
			Message:  "Low engagement score. Member may not be getting value.",
			Action:   "Send onboarding resources or check-in",
		})
	}

	if m.EngagementScore > 70 && m.Status == domain.MemberActive && m.TotalRevenue < 200 {
		recs = append(recs, domain.Recommendation{
			Type:     "upsell",
			Priority: "medium",
			Message:  "High engagement member. Good candidate for upsell.",
			Action:   "Offer premium plan or add-ons",
		})
	}

	if age <= 7 && m.EngagementScore < 40 {
		recs = append(recs, domain.Recommendation{
			Type:     "onboarding",
			Priority: "high",
			Message:  "New member with low engagement. Critical onboarding period.",
			Action:   "Send welcome series and onboarding guide",
		})
	}

	if len(s.Notes) == 0 && age > 30 {
		recs = append(recs, domain.Recommendation{
			Type:     "relationship",
			Priority: "low",
			Message:  "No notes on file. Consider adding interaction history.",
			Action:   "Document relationship and touchpoints",
		})
	}

	if m.TotalRevenue > 500 && m.Status == domain.MemberActive {
		recs = append(recs, domain.Recommendation{
			Type:     "vip",
			Priority: "high",
			Message:  "High-value member. Ensure excellent service.",
			Action:   "Add VIP tag and prioritize support",
		})
	}

	return recs
}
