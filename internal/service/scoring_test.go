package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.AddDate(0, 0, -n)
	return &t
}

func recentEvents(n int) []domain.Event {
	evs := make([]domain.Event, n)
	for i := range evs {
		evs[i] = domain.Event{Type: "payment_succeeded", OccurredAt: testNow.Add(-time.Duration(i+1) * time.Hour)}
	}
	return evs
}

func engagedSnapshot() *domain.MemberSnapshot {
	return &domain.MemberSnapshot{
		Member: domain.Member{
			ID:             "m1",
			Status:         domain.MemberActive,
			TotalRevenue:   300,
			MonthlyRevenue: 50,
			FirstJoinedAt:  *daysAgo(100),
			LastSeenAt:     &testNow,
		},
		Events: recentEvents(20),
		Notes:  make([]domain.Note, 5),
	}
}

func TestCalculateEngagementScore_ClampsAtHundred(t *testing.T) {
	assert.Equal(t, 100, service.CalculateEngagementScore(engagedSnapshot(), testNow))
}

func TestCalculateEngagementScore_NeverSeen(t *testing.T) {
	s := &domain.MemberSnapshot{Member: domain.Member{Status: domain.MemberCancelled, FirstJoinedAt: testNow}}
	assert.Equal(t, 0, service.CalculateEngagementScore(s, testNow))
}

func TestCalculateEngagementScore_MoreActivityNeverLowers(t *testing.T) {
	base := &domain.MemberSnapshot{
		Member: domain.Member{Status: domain.MemberActive, FirstJoinedAt: *daysAgo(40), LastSeenAt: daysAgo(5)},
	}
	prev := service.CalculateEngagementScore(base, testNow)
	for _, n := range []int{1, 5, 10, 20, 40} {
		s := *base
		s.Events = recentEvents(n)
		got := service.CalculateEngagementScore(&s, testNow)
		assert.GreaterOrEqual(t, got, prev, "events=%d", n)
		prev = got
	}
}

func TestCalculateChurnRisk(t *testing.T) {
	tests := []struct {
		name string
		snap *domain.MemberSnapshot
		want domain.ChurnRisk
	}{
		{
			name: "engaged paying member",
			snap: &domain.MemberSnapshot{
				Member: domain.Member{
					Status: domain.MemberActive, EngagementScore: 80, TotalRevenue: 100,
					FirstJoinedAt: *daysAgo(100), LastSeenAt: &testNow,
				},
				Events: recentEvents(5),
			},
			want: domain.ChurnLow,
		},
		{
			name: "past due only",
			snap: &domain.MemberSnapshot{
				Member: domain.Member{
					Status: domain.MemberPastDue, EngagementScore: 80, TotalRevenue: 100,
					FirstJoinedAt: *daysAgo(100), LastSeenAt: &testNow,
				},
				Events: recentEvents(5),
			},
			want: domain.ChurnMedium,
		},
		{
			name: "cancelled new member",
			snap: &domain.MemberSnapshot{
				Member: domain.Member{Status: domain.MemberCancelled, FirstJoinedAt: *daysAgo(3)},
			},
			want: domain.ChurnHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.CalculateChurnRisk(tt.snap, testNow))
		})
	}
}

func TestChurnPoints_ThresholdBoundaries(t *testing.T) {
	s := &domain.MemberSnapshot{
		Member: domain.Member{
			Status: domain.MemberPastDue, EngagementScore: 80, TotalRevenue: 100,
			FirstJoinedAt: *daysAgo(100), LastSeenAt: &testNow,
		},
		Events: recentEvents(5),
	}
	assert.Equal(t, 40, service.ChurnPoints(s, testNow))
}

func TestEstimatedMonths(t *testing.T) {
	assert.Equal(t, 24, service.EstimatedMonths(domain.ChurnLow, 71))
	assert.Equal(t, 12, service.EstimatedMonths(domain.ChurnLow, 70))
	assert.Equal(t, 3, service.EstimatedMonths(domain.ChurnHigh, 90))
	assert.Equal(t, 3, service.EstimatedMonths(domain.ChurnLow, 29))
	assert.Equal(t, 6, service.EstimatedMonths(domain.ChurnMedium, 50))
}

func TestScoreSnapshot_UsesStoredScores(t *testing.T) {
	snap := engagedSnapshot()
	snap.Member.EngagementScore = 10
	snap.Member.ChurnRisk = domain.ChurnHigh
	snap.Member.MonthlyRevenue = 100

	scores := service.ScoreSnapshot(snap, testNow)

	assert.Equal(t, 100, scores.EngagementScore)
	// Only the stored engagement of 10 adds churn points.
	assert.Equal(t, domain.ChurnLow, scores.ChurnRisk)
	// Stored high churn risk gives the 3 month horizon.
	assert.InDelta(t, 300.0, scores.LifetimeValue, 0.001)
}

func TestActivityWindow_IncludesItsStart(t *testing.T) {
	s := &domain.MemberSnapshot{
		Member: domain.Member{
			Status: domain.MemberActive, EngagementScore: 80, TotalRevenue: 100,
			FirstJoinedAt: *daysAgo(100), LastSeenAt: &testNow,
		},
		Events: []domain.Event{{Type: "payment_succeeded", OccurredAt: *daysAgo(30)}},
	}
	assert.Equal(t, 10, service.ChurnPoints(s, testNow))
	assert.Equal(t, 65, service.CalculateEngagementScore(s, testNow))

	s.Events[0].OccurredAt = daysAgo(30).Add(-time.Second)
	assert.Equal(t, 20, service.ChurnPoints(s, testNow))
	assert.Equal(t, 60, service.CalculateEngagementScore(s, testNow))
}

func TestCalculateChurnRisk_NeverDropsAsInactivityGrows(t *testing.T) {
	tiers := map[domain.ChurnRisk]int{domain.ChurnLow: 0, domain.ChurnMedium: 1, domain.ChurnHigh: 2}
	members := []domain.Member{
		{Status: domain.MemberActive, EngagementScore: 80, TotalRevenue: 100, FirstJoinedAt: *daysAgo(100)},
		{Status: domain.MemberActive, EngagementScore: 50, TotalRevenue: 20, FirstJoinedAt: *daysAgo(20)},
		{Status: domain.MemberPastDue, EngagementScore: 30, TotalRevenue: 0, FirstJoinedAt: *daysAgo(200)},
	}
	for i, m := range members {
		prevPoints, prevTier := -1, -1
		for d := 0; d <= 60; d++ {
			s := &domain.MemberSnapshot{Member: m, Events: recentEvents(2)}
			s.Member.LastSeenAt = daysAgo(d)

			points := service.ChurnPoints(s, testNow)
			tier := tiers[service.CalculateChurnRisk(s, testNow)]
			assert.GreaterOrEqual(t, points, prevPoints, "member %d, %d days inactive", i, d)
			assert.GreaterOrEqual(t, tier, prevTier, "member %d, %d days inactive", i, d)
			prevPoints, prevTier = points, tier
		}
	}
}

func TestCalculateEngagementScore_ClampedForExtremeInputs(t *testing.T) {
	farFuture := testNow.AddDate(50, 0, 0)
	tests := []struct {
		name string
		snap *domain.MemberSnapshot
	}{
		{
			name: "negative revenue",
			snap: &domain.MemberSnapshot{
				Member: domain.Member{Status: domain.MemberActive, TotalRevenue: -1e9, MonthlyRevenue: -500,
					FirstJoinedAt: *daysAgo(400), LastSeenAt: &testNow},
				Events: recentEvents(500),
				Notes:  make([]domain.Note, 100),
			},
		},
		{
			name: "joined in the far future",
			snap: &domain.MemberSnapshot{
				Member: domain.Member{Status: domain.MemberPastDue, FirstJoinedAt: farFuture, LastSeenAt: &farFuture},
				Events: recentEvents(50),
			},
		},
		{
			name: "seen in the far future, zero time join",
			snap: &domain.MemberSnapshot{
				Member: domain.Member{Status: domain.MemberActive, LastSeenAt: &farFuture},
				Events: []domain.Event{{OccurredAt: farFuture}},
				Notes:  make([]domain.Note, 10),
			},
		},
		{
			name: "nothing at all",
			snap: &domain.MemberSnapshot{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.CalculateEngagementScore(tt.snap, testNow)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestScoringService_UpdateAllMemberInsights(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	m1 := store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u1", Status: domain.MemberActive, FirstJoinedAt: *daysAgo(10), LastSeenAt: &testNow})
	store.PutMember(domain.Member{CompanyID: "c1", WhopUserID: "u2", Status: domain.MemberCancelled, FirstJoinedAt: *daysAgo(10)})
	store.PutMember(domain.Member{CompanyID: "c2", WhopUserID: "u3", Status: domain.MemberActive, FirstJoinedAt: *daysAgo(10)})

	svc := service.NewScoringService(store, observability.NewMetrics(), zap.NewNop()).
		WithClock(func() time.Time { return testNow })

	res, err := svc.UpdateAllMemberInsights(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Updated)

	got, err := store.GetMember(ctx, "c1", m1.ID)
	require.NoError(t, err)
	assert.Positive(t, got.EngagementScore)
}

func TestScoringService_GetMemberInsights_OtherCompany(t *testing.T) {
	store := memstore.New()
	m := store.PutMember(domain.Member{CompanyID: "c2", WhopUserID: "u1"})
	svc := service.NewScoringService(store, observability.NewMetrics(), zap.NewNop())

	_, err := svc.GetMemberInsights(context.Background(), "c1", m.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}
