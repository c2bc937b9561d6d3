package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values come from environment variables (and bound CLI flags) with defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string
	AppURL   string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	UseSupabase        bool

	// Whop
	WhopCompanyID     string // single-tenant pin; empty serves every installed company
	WhopClientID      string
	WhopClientSecret  string
	WhopAPIKey        string
	WhopAPIURL        string
	WhopOAuthURL      string
	WhopWebhookSecret string

	// LLM
	OpenAIAPIKey string
	OpenAIAPIURL string
	OpenAIModel  string
	LLMRateLimit float64 // requests per minute

	// Secrets
	StateSecret        string
	TokenEncryptionKey string
}

var defaults = map[string]any{
	"PORT":      8080,
	"LOG_LEVEL": "info",
	"APP_URL":   "http://localhost:8080",

	"HTTP_TIMEOUT":    10 * time.Second,
	"MAX_RETRIES":     3,
	"INITIAL_BACKOFF": 100 * time.Millisecond,
	"MAX_CONCURRENCY": 50,
	"CACHE_TTL":       5 * time.Minute,

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",

	"USE_SUPABASE": true,

	"WHOP_API_URL":   "https://api.whop.com",
	"WHOP_OAUTH_URL": "https://whop.com/oauth",

	"OPENAI_API_URL": "https://api.openai.com/v1/chat/completions",
	"OPENAI_MODEL":   "gpt-4o",
	"LLM_RATE_LIMIT": 60.0,
}

// NewViper returns a viper instance with the defaults registered and
// environment lookup enabled. Callers may bind flags on it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	return v
}

// Load reads configuration through v. A nil v uses NewViper.
func Load(v *viper.Viper) *Config {
	if v == nil {
		v = NewViper()
	}
	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),
		AppURL:   v.GetString("APP_URL"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheTTL: v.GetDuration("CACHE_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		SupabaseURL:        v.GetString("SUPABASE_URL"),
		SupabaseAnonKey:    v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		UseSupabase:        v.GetBool("USE_SUPABASE"),

		WhopCompanyID:     v.GetString("WHOP_COMPANY_ID"),
		WhopClientID:      v.GetString("WHOP_CLIENT_ID"),
		WhopClientSecret:  v.GetString("WHOP_CLIENT_SECRET"),
		WhopAPIKey:        v.GetString("WHOP_API_KEY"),
		WhopAPIURL:        v.GetString("WHOP_API_URL"),
		WhopOAuthURL:      v.GetString("WHOP_OAUTH_URL"),
		WhopWebhookSecret: v.GetString("WHOP_WEBHOOK_SECRET"),

		OpenAIAPIKey: v.GetString("OPENAI_API_KEY"),
		OpenAIAPIURL: v.GetString("OPENAI_API_URL"),
		OpenAIModel:  v.GetString("OPENAI_MODEL"),
		LLMRateLimit: v.GetFloat64("LLM_RATE_LIMIT"),

		StateSecret:        v.GetString("STATE_SECRET"),
		TokenEncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
	}
}

// SupabaseReady reports whether the Supabase store can be used.
func (c *Config) SupabaseReady() bool {
	return c.UseSupabase && c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// OAuthAuthorizeURL is the consent endpoint of the install flow.
func (c *Config) OAuthAuthorizeURL() string { return c.WhopOAuthURL }

// OAuthTokenURL is the code-exchange endpoint of the install flow.
func (c *Config) OAuthTokenURL() string { return strings.TrimRight(c.WhopAPIURL, "/") + "/api/v5/oauth/token" }
