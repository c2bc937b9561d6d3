package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/handler"
	"github.com/boddenberg/whop-crm-go/internal/infra/cache"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/tokenbox"
	"github.com/boddenberg/whop-crm-go/internal/infra/webhook"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLLM struct {
	content string
}

func (s *stubLLM) Complete(_ context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	return &domain.LLMResponse{Content: s.content, Model: "gpt-4o"}, nil
}

type apiFixture struct {
	router   http.Handler
	store    *memstore.Store
	metrics  *observability.Metrics
	services *handler.Services
	company  *domain.Company
	verifier *webhook.Verifier
	llm      *stubLLM
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New()
	metrics := observability.NewMetrics()
	box := tokenbox.New("test-key")
	llm := &stubLLM{}

	tenants := service.NewTenantService(store, "biz_1", logger)
	company, err := tenants.Configured(context.Background())
	require.NoError(t, err)

	engine := service.NewAutomationEngine(store, metrics, logger)
	verifier := webhook.NewVerifier("whsec_" + base64.StdEncoding.EncodeToString([]byte("router-secret")))

	svc := &handler.Services{
		Store:       store,
		Tenants:     tenants,
		Members:     service.NewMemberService(store, logger),
		Segments:    service.NewSegmentService(store, logger),
		Automations: service.NewAutomationService(store, logger),
		Pipeline:    service.NewPipelineService(store, logger),
		Scoring:     service.NewScoringService(store, metrics, logger),
		AI:          service.NewAIInsightService(llm, store, cache.New[*domain.MemberAnalysisResult](time.Minute), metrics, logger),
		Webhooks:    service.NewWebhookService(store, tenants, engine, 4, metrics, logger),
		Sync:        service.NewSyncService(nil, store, box, metrics, logger),
		OAuth: service.NewOAuthService(service.OAuthConfig{
			ClientID:     "app_1",
			ClientSecret: "secret",
			AuthURL:      "https://whop.com/oauth",
			TokenURL:     "https://api.whop.com/api/v5/oauth/token",
			AppURL:       "http://crm.test",
			StateSecret:  "state-secret",
		}, nil, store, box, logger),
		Verifier: verifier,
	}

	return &apiFixture{
		router:   handler.NewRouter(svc, metrics, logger),
		store:    store,
		metrics:  metrics,
		services: svc,
		company:  company,
		verifier: verifier,
		llm:      llm,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) deliver(t *testing.T, id string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	now := time.Now()
	sig, err := f.verifier.Sign(id, now, body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set(webhook.HeaderID, id)
	req.Header.Set(webhook.HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(webhook.HeaderSignature, sig)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[domain.HealthStatus](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Services, 2)
}

func TestReadyz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/readyz", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crm_request_duration_seconds")
}

func TestLLMMetricsSnapshot(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/metrics/llm", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[domain.LLMMetrics](t, rec)
	assert.Zero(t, snap.TotalRequests)
}

func TestTenant_RequiresCompanyID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/members", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Company ID required")
}

func TestTenant_MismatchIsForbidden(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/members?companyId=biz_other", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenant_HeaderAndInternalID(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tags", nil)
	req.Header.Set(handler.CompanyHeader, f.company.ID)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenant_ForeignMemberIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	foreign := f.store.PutMember(domain.Member{CompanyID: "someone-else", WhopUserID: "u9"})

	rec := f.do(t, http.MethodGet, "/v1/members/"+foreign.ID+"?companyId=biz_1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/members/"+foreign.ID+"?companyId=biz_1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkDelete_ForeignMemberIsForbidden(t *testing.T) {
	f := newAPIFixture(t)
	own := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "u1"})
	foreign := f.store.PutMember(domain.Member{CompanyID: "someone-else", WhopUserID: "u2"})

	rec := f.do(t, http.MethodPost, "/v1/members/bulk-delete?companyId=biz_1", map[string]any{
		"memberIds": []string{own.ID, foreign.ID},
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Some members not found or don't belong to this company", decodeBody[map[string]string](t, rec)["error"])

	_, err := f.store.GetMember(context.Background(), f.company.ID, own.ID)
	assert.NoError(t, err)
}

func TestCreateSegment_CountsMatchingMembers(t *testing.T) {
	f := newAPIFixture(t)
	f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "u1", Status: domain.MemberActive, MonthlyRevenue: 20})
	f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "u2", Status: domain.MemberActive, MonthlyRevenue: 30})
	f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "u3", Status: domain.MemberCancelled, MonthlyRevenue: 99})

	rec := f.do(t, http.MethodPost, "/v1/segments?companyId=biz_1", map[string]any{
		"name":    "Active",
		"filters": []map[string]string{{"field": "status", "operator": "eq", "value": "active"}},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	seg := decodeBody[domain.Segment](t, rec)
	assert.Equal(t, 2, seg.MemberCount)
	assert.InDelta(t, 50.0, seg.TotalMRR, 0.001)

	rec = f.do(t, http.MethodPost, "/v1/segments?companyId=biz_1", map[string]any{"name": "No filters"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkExport_CSVAttachment(t *testing.T) {
	f := newAPIFixture(t)
	m := f.store.PutMember(domain.Member{
		CompanyID: f.company.ID, WhopUserID: "u1", Email: "jane@example.com",
		Username: `Doe, "JJ" Jane`, Status: domain.MemberActive, TotalRevenue: 12.5,
	})

	rec := f.do(t, http.MethodPost, "/v1/members/bulk-export?companyId=biz_1", map[string]any{
		"memberIds": []string{m.ID},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), `attachment; filename="members-export-`))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Email", rows[0][0])
	assert.Equal(t, "jane@example.com", rows[1][0])
	assert.Equal(t, `Doe, "JJ" Jane`, rows[1][1])
	assert.Equal(t, "12.50", rows[1][4])
}

func TestWebhook_PaymentFailedEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	member := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "user_1", Status: domain.MemberActive})

	rec := f.do(t, http.MethodPost, "/v1/tags?companyId=biz_1", map[string]any{"name": "payment-issue"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tag := decodeBody[domain.Tag](t, rec)

	rec = f.do(t, http.MethodPost, "/v1/automations?companyId=biz_1", map[string]any{
		"name":    "Flag failed payments",
		"trigger": map[string]any{"type": "payment_failed"},
		"actions": []map[string]any{{"type": "add_tag", "tag_id": tag.ID}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	payload := map[string]any{
		"action": domain.WebhookPaymentFailed,
		"data":   map[string]any{"id": "pay_1", "user_id": "user_1", "final_amount": 10.0, "company_id": "biz_1"},
	}
	first := f.deliver(t, "msg_1", payload)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, false, decodeBody[map[string]any](t, first)["duplicate"])

	again := f.deliver(t, "msg_1", payload)
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, again)["duplicate"])

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.services.Webhooks.Drain(drainCtx))

	m, err := f.store.GetMember(ctx, f.company.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberPastDue, m.Status)

	tags, err := f.store.ListMemberTags(ctx, []string{member.ID})
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	rec = f.do(t, http.MethodGet, "/v1/automations?companyId=biz_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Automations []domain.Automation `json:"automations"`
	}](t, rec)
	require.Len(t, list.Automations, 1)
	assert.Equal(t, 1, list.Automations[0].RunCount)
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", strings.NewReader(`{"action":"payment.failed"}`))
	req.Header.Set(webhook.HeaderID, "msg_x")
	req.Header.Set(webhook.HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(webhook.HeaderSignature, "v1,bm9wZQ==")
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid webhook", decodeBody[map[string]string](t, rec)["error"])
}

func TestNotesAndTags_Lifecycle(t *testing.T) {
	f := newAPIFixture(t)
	m := f.store.PutMember(domain.Member{CompanyID: f.company.ID, WhopUserID: "u1"})
	base := "/v1/members/" + m.ID

	rec := f.do(t, http.MethodPost, base+"/notes?companyId=biz_1", map[string]any{"content": "<b>Called</b> &amp; left a message"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decodeBody[domain.Note](t, rec)
	assert.Equal(t, "Called & left a message", note.Content)

	rec = f.do(t, http.MethodPost, base+"/notes?companyId=biz_1", map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/tags?companyId=biz_1", map[string]any{"name": "VIP"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tag := decodeBody[domain.Tag](t, rec)

	rec = f.do(t, http.MethodPost, base+"/tags?companyId=biz_1", map[string]any{"tagId": tag.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, base+"/tags?companyId=biz_1", map[string]any{"tagId": tag.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Member already has this tag", decodeBody[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodDelete, base+"/tags/"+tag.ID+"?companyId=biz_1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, base+"/tags/"+tag.ID+"?companyId=biz_1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, base+"/notes/"+note.ID+"?companyId=biz_1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPipeline_MessageUpdatesConversation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/prospects?companyId=biz_1", map[string]any{"name": "Creator Co"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[domain.Prospect](t, rec)
	assert.Equal(t, domain.ProspectNew, p.Status)

	rec = f.do(t, http.MethodPost, "/v1/conversations?companyId=biz_1", map[string]any{"prospect_id": p.ID, "title": "Intro"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decodeBody[domain.Conversation](t, rec)

	rec = f.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages?companyId=biz_1", map[string]any{
		"content": strings.Repeat("é", 120), "sender": "user",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"?companyId=biz_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[domain.Conversation](t, rec)
	assert.Equal(t, 1, got.MessageCount)
	assert.Equal(t, strings.Repeat("é", 100), got.LastMessage)
}

func TestAISearch_ReturnsFilters(t *testing.T) {
	f := newAPIFixture(t)
	f.llm.content = `{"status":["active"],"engagementScore":{"min":70}}`

	rec := f.do(t, http.MethodPost, "/v1/members/ai-search?companyId=biz_1", map[string]any{"query": "highly engaged active members"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[domain.AISearchResult](t, rec)
	assert.Equal(t, []domain.MemberStatus{domain.MemberActive}, result.Filters.Status)
	assert.Contains(t, result.Interpretation, "highly engaged")
}

func TestInstall_RedirectsToConsent(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/auth/install?company_id=biz_1", nil)

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, "https://whop.com/oauth?"), loc)
	assert.Contains(t, loc, "state=")
}

func TestInit_RedirectsToDashboard(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/init", nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "http://crm.test/dashboard/biz_1", rec.Header().Get("Location"))
}
