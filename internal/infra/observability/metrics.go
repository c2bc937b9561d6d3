package observability

import (
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the CRM.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	tokensUsed        *prometheus.CounterVec
	llmRequests       *prometheus.CounterVec
	automationRuns    *prometheus.CounterVec
	actionResults     *prometheus.CounterVec
	webhookDeliveries *prometheus.CounterVec
	membersSynced     prometheus.Counter
	membersRescored   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_request_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_llm_requests_total",
				Help: "LLM requests by outcome (success, error, invalid).",
			},
			[]string{"status"},
		),
		automationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_automation_runs_total",
				Help: "Automations executed by trigger.",
			},
			[]string{"trigger"},
		),
		actionResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_automation_actions_total",
				Help: "Automation actions by type and result.",
			},
			[]string{"action", "result"},
		),
		webhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_webhook_deliveries_total",
				Help: "Webhook deliveries by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		membersSynced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_members_synced_total",
				Help: "Members upserted by the platform sync.",
			},
		),
		membersRescored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_members_rescored_total",
				Help: "Member score recomputations by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrLLMRequest counts an LLM call outcome.
func (m *Metrics) IncrLLMRequest(status string) {
	m.llmRequests.WithLabelValues(status).Inc()
}

// IncrAutomationRun counts one executed automation.
func (m *Metrics) IncrAutomationRun(trigger string) {
	m.automationRuns.WithLabelValues(trigger).Inc()
}

// IncrAction counts one automation action outcome (ok, failed, skipped).
func (m *Metrics) IncrAction(action, result string) {
	m.actionResults.WithLabelValues(action, result).Inc()
}

// IncrWebhook counts a webhook delivery outcome.
func (m *Metrics) IncrWebhook(action, outcome string) {
	m.webhookDeliveries.WithLabelValues(action, outcome).Inc()
}

// AddMembersSynced adds to the synced member counter.
func (m *Metrics) AddMembersSynced(n int) {
	m.membersSynced.Add(float64(n))
}

// IncrRescore counts a member rescoring outcome.
func (m *Metrics) IncrRescore(result string) {
	m.membersRescored.WithLabelValues(result).Inc()
}

// ActionCount returns the current value of an action counter.
func (m *Metrics) ActionCount(action, result string) float64 {
	return getCounterValue(m.actionResults, action, result)
}

// WebhookCount returns the current value of a webhook counter.
func (m *Metrics) WebhookCount(action, outcome string) float64 {
	return getCounterValue(m.webhookDeliveries, action, outcome)
}

// GetLLMSnapshot returns a snapshot of LLM usage suitable for the
// GET /v1/metrics/llm endpoint.
func (m *Metrics) GetLLMSnapshot() *domain.LLMMetrics {
	promptTokens := getCounterValue(m.tokensUsed, "prompt")
	completionTokens := getCounterValue(m.tokensUsed, "completion")
	success := getCounterValue(m.llmRequests, "success")
	failed := getCounterValue(m.llmRequests, "error")
	invalid := getCounterValue(m.llmRequests, "invalid")
	totalRequests := success + failed + invalid
	cacheHits := getCounterValue(m.cacheHits, "member_analysis")
	cacheMisses := getCounterValue(m.cacheMisses, "member_analysis")

	snap := &domain.LLMMetrics{Period: "all_time"}
	snap.TotalRequests = int64(totalRequests)
	if totalRequests > 0 {
		snap.AvgTokensPerRequest = (promptTokens + completionTokens) / totalRequests
		snap.ErrorRate = failed / totalRequests
		snap.InvalidResponseRate = invalid / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		snap.CacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	// gpt-4o list pricing: $2.50 / 1M prompt tokens, $10 / 1M completion tokens.
	snap.EstimatedCostUsd = promptTokens/1e6*2.5 + completionTokens/1e6*10

	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
