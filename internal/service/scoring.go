package service

import (
	"math"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// Scoring policy. All thresholds are fixed.
const (
	churnHighThreshold   = 70
	churnMediumThreshold = 40

	activityWindowDays = 30
	snapshotEventLimit = 100
)

// daysSince returns whole days elapsed between t and now, rounded down.
func daysSince(now, t time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// recentEventCount counts events in the activity window, its start included.
func recentEventCount(events []domain.Event, now time.Time) int {
	cutoff := now.AddDate(0, 0, -activityWindowDays)
	n := 0
	for _, e := range events {
		if !e.OccurredAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// ChurnPoints returns the additive churn score behind CalculateChurnRisk.
func ChurnPoints(s *domain.MemberSnapshot, now time.Time) int {
	m := s.Member
	points := 0

	if m.LastSeenAt == nil {
		points += 25
	} else {
		switch d := daysSince(now, *m.LastSeenAt); {
		case d > 30:
			points += 30
		case d > 14:
			points += 20
		case d > 7:
			points += 10
		}
	}

	switch m.Status {
	case domain.MemberPastDue:
		points += 40
	case domain.MemberCancelled:
		points += 100
	}

	switch {
	case m.EngagementScore < 20:
		points += 30
	case m.EngagementScore < 40:
		points += 20
	case m.EngagementScore < 60:
		points += 10
	}

	switch n := recentEventCount(s.Events, now); {
	case n == 0:
		points += 20
	case n < 3:
		points += 10
	}

	switch age := daysSince(now, m.FirstJoinedAt); {
	case age < 7:
		points += 15
	case age < 30:
		points += 10
	}

	switch {
	case m.TotalRevenue == 0:
		points += 25
	case m.TotalRevenue < 50:
		points += 15
	}

	return points
}

// CalculateChurnRisk labels the member's churn likelihood.
func CalculateChurnRisk(s *domain.MemberSnapshot, now time.Time) domain.ChurnRisk {
	switch p := ChurnPoints(s, now); {
	case p >= churnHighThreshold:
		return domain.ChurnHigh
	case p >= churnMediumThreshold:
		return domain.ChurnMedium
	default:
		return domain.ChurnLow
	}
}

// CalculateEngagementScore returns a 0-100 composite of recency, activity,
// payment standing, notes and tenure.
func CalculateEngagementScore(s *domain.MemberSnapshot, now time.Time) int {
	m := s.Member
	score := 0

	if m.LastSeenAt != nil {
		switch d := daysSince(now, *m.LastSeenAt); {
		case d <= 1:
			score += 40
		case d <= 3:
			score += 30
		case d <= 7:
			score += 20
		case d <= 14:
			score += 10
		case d <= 30:
			score += 5
		}
	}

	switch n := recentEventCount(s.Events, now); {
	case n >= 20:
		score += 30
	case n >= 10:
		score += 20
	case n >= 5:
		score += 10
	case n >= 1:
		score += 5
	}

	switch m.Status {
	case domain.MemberActive:
		score += 15
	case domain.MemberPastDue:
		score += 5
	}

	switch n := len(s.Notes); {
	case n >= 5:
		score += 10
	case n >= 3:
		score += 7
	case n >= 1:
		score += 5
	}

	switch age := daysSince(now, m.FirstJoinedAt); {
	case age >= 90:
		score += 5
	case age >= 30:
		score += 3
	case age >= 7:
		score += 1
	}

	return max(0, min(100, score))
}

// EstimatedMonths is the LTV horizon picked from churn risk and engagement.
func EstimatedMonths(risk domain.ChurnRisk, engagement int) int {
	switch {
	case risk == domain.ChurnLow && engagement > 70:
		return 24
	case risk == domain.ChurnHigh || engagement < 30:
		return 3
	case risk == domain.ChurnMedium:
		return 6
	default:
		return 12
	}
}

// PredictLifetimeValue projects revenue over the estimated remaining tenure.
func PredictLifetimeValue(m *domain.Member) float64 {
	return m.MonthlyRevenue * float64(EstimatedMonths(m.ChurnRisk, m.EngagementScore))
}

// ScoreSnapshot computes fresh scores from one snapshot. Churn risk and
// lifetime value read the engagement and churn risk stored on the member, so
// a rescore never feeds its own output back in.
func ScoreSnapshot(s *domain.MemberSnapshot, now time.Time) domain.MemberScores {
	return domain.MemberScores{
		EngagementScore: CalculateEngagementScore(s, now),
		ChurnRisk:       CalculateChurnRisk(s, now),
		LifetimeValue:   PredictLifetimeValue(&s.Member),
	}
}
