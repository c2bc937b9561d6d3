package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/tokenbox"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockWhopAPI struct {
	mu      sync.Mutex
	pages   map[int][]domain.WhopMembership
	failAt  int
	err     error
	tokens  []string
	calls   int
	company *domain.WhopCompany
}

func (m *mockWhopAPI) ListMemberships(_ context.Context, token string, page, _ int) (*domain.WhopMembershipPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.tokens = append(m.tokens, token)
	if m.err != nil && (m.failAt == 0 || page == m.failAt) {
		return nil, m.err
	}
	return &domain.WhopMembershipPage{Data: m.pages[page]}, nil
}

func (m *mockWhopAPI) GetCurrentCompany(_ context.Context, _ string) (*domain.WhopCompany, error) {
	if m.company == nil {
		return nil, &domain.ErrExternalService{Service: "whop", Err: errors.New("no company")}
	}
	return m.company, nil
}

func whopMembership(id, userID, status string) domain.WhopMembership {
	created := testNow.AddDate(0, -2, 0).Unix()
	return domain.WhopMembership{
		ID:        id,
		Status:    status,
		User:      &domain.WhopUser{ID: userID, Email: userID + "@x.io"},
		Plan:      &domain.WhopPlan{ID: "plan_1", Name: "Pro"},
		Amount:    19,
		CreatedAt: &created,
	}
}

func TestSync_PagesUntilEmpty(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	company, err := store.UpsertCompany(ctx, &domain.Company{WhopCompanyID: "biz_1", IsActive: true})
	require.NoError(t, err)

	api := &mockWhopAPI{pages: map[int][]domain.WhopMembership{
		1: {whopMembership("mem_1", "u1", "active"), whopMembership("mem_2", "u2", "past_due")},
		2: {whopMembership("mem_3", "u3", "canceled"), {ID: "mem_bad"}},
	}}
	svc := service.NewSyncService(api, store, nil, observability.NewMetrics(), zap.NewNop())

	res, err := svc.Sync(ctx, company)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Synced)
	assert.Equal(t, 3, api.calls)

	m, err := store.GetMemberByWhopUserID(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberCancelled, m.Status)
	assert.True(t, m.FirstJoinedAt.Equal(testNow.AddDate(0, -2, 0)))

	stored, err := store.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSyncedAt)
}

func TestSync_StopsOnPageError(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	company, err := store.UpsertCompany(ctx, &domain.Company{WhopCompanyID: "biz_1", IsActive: true})
	require.NoError(t, err)

	api := &mockWhopAPI{
		pages:  map[int][]domain.WhopMembership{1: {whopMembership("mem_1", "u1", "active")}},
		failAt: 2,
		err:    &domain.ErrExternalService{Service: "whop", Err: errors.New("status 500")},
	}
	svc := service.NewSyncService(api, store, nil, observability.NewMetrics(), zap.NewNop())

	res, err := svc.Sync(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 2, api.calls)
}

func TestSync_NotConfigured(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	company, err := store.UpsertCompany(ctx, &domain.Company{WhopCompanyID: "biz_1", IsActive: true})
	require.NoError(t, err)

	api := &mockWhopAPI{err: &domain.ErrNotConfigured{Setting: "WHOP_API_KEY"}}
	svc := service.NewSyncService(api, store, nil, observability.NewMetrics(), zap.NewNop())

	_, err = svc.Sync(ctx, company)
	var nc *domain.ErrNotConfigured
	assert.ErrorAs(t, err, &nc)
}

func TestSync_UsesStoredAccessToken(t *testing.T) {
	ctx := context.Background()
	box := tokenbox.New("sync-test-key")
	sealed, err := box.Seal("oauth-access")
	require.NoError(t, err)

	store := memstore.New()
	company, err := store.UpsertCompany(ctx, &domain.Company{WhopCompanyID: "biz_1", IsActive: true, AccessToken: sealed})
	require.NoError(t, err)

	api := &mockWhopAPI{}
	svc := service.NewSyncService(api, store, box, observability.NewMetrics(), zap.NewNop())

	_, err = svc.Sync(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, []string{"oauth-access"}, api.tokens)

	api.tokens = nil
	company.AccessToken = "garbage"
	_, err = svc.Sync(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, api.tokens)
}
