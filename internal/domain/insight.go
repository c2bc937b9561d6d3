package domain

import "time"

// ============================================================
// LLM member analysis
// ============================================================

// ChurnAssessment is the model's churn verdict for a member.
type ChurnAssessment struct {
	Level      ChurnRisk `json:"level" validate:"required,oneof=low medium high"`
	Confidence float64   `json:"confidence" validate:"min=0,max=100"`
	Reasoning  string    `json:"reasoning" validate:"required"`
	KeyFactors []string  `json:"keyFactors" validate:"required,min=1,dive,required"`
}

// EngagementBreakdown splits the engagement score into three axes.
type EngagementBreakdown struct {
	Activity     float64 `json:"activity" validate:"min=0,max=100"`
	Monetization float64 `json:"monetization" validate:"min=0,max=100"`
	Loyalty      float64 `json:"loyalty" validate:"min=0,max=100"`
}

// EngagementAnalysis is the model's view of member engagement.
type EngagementAnalysis struct {
	Score     float64             `json:"score" validate:"min=0,max=100"`
	Trend     string              `json:"trend" validate:"required,oneof=improving stable declining"`
	Breakdown EngagementBreakdown `json:"breakdown"`
}

// AIRecommendation is one model-suggested action.
type AIRecommendation struct {
	Priority       string `json:"priority" validate:"required,oneof=critical high medium low"`
	Category       string `json:"category" validate:"required"`
	Action         string `json:"action" validate:"required"`
	ExpectedImpact string `json:"expectedImpact" validate:"required"`
	Timeline       string `json:"timeline" validate:"required"`
}

// LifetimeValueForecast is the model's LTV prediction.
type LifetimeValueForecast struct {
	Predicted  float64 `json:"predicted" validate:"min=0"`
	Confidence float64 `json:"confidence" validate:"min=0,max=100"`
	Reasoning  string  `json:"reasoning" validate:"required"`
}

// MemberAnalysis is the strictly validated deep profile returned by the LLM.
type MemberAnalysis struct {
	ChurnRiskAssessment ChurnAssessment       `json:"churnRiskAssessment"`
	EngagementAnalysis  EngagementAnalysis    `json:"engagementAnalysis"`
	Recommendations     []AIRecommendation    `json:"recommendations" validate:"required,min=1,dive"`
	LifetimeValue       LifetimeValueForecast `json:"lifetimeValue"`
	KeyInsights         []string              `json:"keyInsights" validate:"required,min=1,dive,required"`
}

// MemberAnalysisResult wraps an analysis with its provenance.
type MemberAnalysisResult struct {
	Success    bool           `json:"success"`
	Source     string         `json:"source"`
	Insights   MemberAnalysis `json:"insights"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}

// ============================================================
// Dashboard insights
// ============================================================

// DashboardInsight is an LLM-generated company insight.
type DashboardInsight struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Category    string    `json:"category"`
	Metric      string    `json:"metric,omitempty"`
	Actionable  bool      `json:"actionable"`
	ActionURL   string    `json:"action_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CompanyAnalytics are the aggregates fed to the dashboard-insight prompt.
type CompanyAnalytics struct {
	TotalMembers        int     `json:"totalMembers"`
	ActiveMembers       int     `json:"activeMembers"`
	CancelledMembers    int     `json:"cancelledMembers"`
	HighChurnRisk       int     `json:"highChurnRisk"`
	LowEngagement       int     `json:"lowEngagement"`
	NewMembers30d       int     `json:"newMembers30d"`
	RecentCancellations int     `json:"recentCancellations"`
	ChurnRate           float64 `json:"churnRate"`
	TotalRevenue        float64 `json:"totalRevenue"`
	AvgRevenue          float64 `json:"avgRevenue"`
}

// ============================================================
// AI member search
// ============================================================

// NumberRange bounds a numeric search criterion. Nil bounds are open.
type NumberRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// AISearchFilters are the criteria the model may extract from a query.
type AISearchFilters struct {
	Status          []MemberStatus `json:"status,omitempty" validate:"omitempty,dive,oneof=active cancelled past_due inactive"`
	EngagementScore *NumberRange   `json:"engagementScore,omitempty"`
	TotalRevenue    *NumberRange   `json:"totalRevenue,omitempty"`
	ChurnRisk       []ChurnRisk    `json:"churnRisk,omitempty" validate:"omitempty,dive,oneof=low medium high"`
	LastActiveDays  *int           `json:"lastActiveDays,omitempty" validate:"omitempty,min=0"`
	Tags            []string       `json:"tags,omitempty"`
	HasNotes        *bool          `json:"hasNotes,omitempty"`
}

// AISearchResult is the natural-language search response.
type AISearchResult struct {
	Filters        AISearchFilters `json:"filters"`
	Interpretation string          `json:"interpretation"`
}

// ============================================================
// LLM transport
// ============================================================

// ChatMessage is one message of a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest is a JSON-mode completion request.
type LLMRequest struct {
	Operation   string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// TokenUsage tracks LLM token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is the raw JSON content the model produced.
type LLMResponse struct {
	Content string     `json:"content"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
}

// LLMMetrics is the usage snapshot served at /v1/metrics/llm.
type LLMMetrics struct {
	TotalRequests       int64   `json:"total_requests"`
	ErrorRate           float64 `json:"error_rate"`
	InvalidResponseRate float64 `json:"invalid_response_rate"`
	AvgTokensPerRequest float64 `json:"avg_tokens_per_request"`
	EstimatedCostUsd    float64 `json:"estimated_cost_usd"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	Period              string  `json:"period"`
}
