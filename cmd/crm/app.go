package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/whop-crm-go/internal/config"
	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/handler"
	"github.com/boddenberg/whop-crm-go/internal/infra/cache"
	"github.com/boddenberg/whop-crm-go/internal/infra/client"
	"github.com/boddenberg/whop-crm-go/internal/infra/memstore"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/resilience"
	"github.com/boddenberg/whop-crm-go/internal/infra/supabase"
	"github.com/boddenberg/whop-crm-go/internal/infra/tokenbox"
	"github.com/boddenberg/whop-crm-go/internal/infra/webhook"
	"github.com/boddenberg/whop-crm-go/internal/port"
	"github.com/boddenberg/whop-crm-go/internal/service"

	"go.uber.org/zap"
)

// app is the fully wired process shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	services *handler.Services
	analyses *cache.InMemory[*domain.MemberAnalysisResult]
	shutdown func(context.Context) error
}

func newApp() (*app, error) {
	// --- Config ---
	cfg := config.Load(v)

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Bool("supabase_ready", cfg.SupabaseReady()),
		zap.String("whop_company_id", cfg.WhopCompanyID),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Float64("llm_rate_limit_per_min", cfg.LLMRateLimit),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, observability.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store ---
	var store port.Store
	if cfg.SupabaseReady() {
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		store = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			resilienceCfg,
			logger,
		)
	} else {
		logger.Warn("Supabase not configured, using in-memory store")
		store = memstore.New()
	}

	// --- Clients ---
	whop := client.NewWhopClient(httpClient, cfg.WhopAPIURL, cfg.WhopAPIKey,
		resilience.NewCircuitBreaker("whop", logger), resilienceCfg, metrics)

	llm := client.NewOpenAIClient(httpClient, cfg.OpenAIAPIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel,
		resilience.NewCircuitBreaker("openai", logger), client.NewRequestLimiter(cfg.LLMRateLimit), metrics)

	box := tokenbox.New(cfg.TokenEncryptionKey)
	analysisCache := cache.New[*domain.MemberAnalysisResult](cfg.CacheTTL)

	// --- Services ---
	tenants := service.NewTenantService(store, cfg.WhopCompanyID, logger)
	engine := service.NewAutomationEngine(store, metrics, logger)

	var verifier *webhook.Verifier
	if cfg.WhopWebhookSecret != "" {
		verifier = webhook.NewVerifier(cfg.WhopWebhookSecret)
	}

	services := &handler.Services{
		Store:       store,
		Tenants:     tenants,
		Members:     service.NewMemberService(store, logger),
		Segments:    service.NewSegmentService(store, logger),
		Automations: service.NewAutomationService(store, logger),
		Pipeline:    service.NewPipelineService(store, logger),
		Scoring:     service.NewScoringService(store, metrics, logger),
		AI:          service.NewAIInsightService(llm, store, analysisCache, metrics, logger),
		Webhooks:    service.NewWebhookService(store, tenants, engine, cfg.MaxConcurrency, metrics, logger),
		Sync:        service.NewSyncService(whop, store, box, metrics, logger),
		OAuth: service.NewOAuthService(service.OAuthConfig{
			ClientID:     cfg.WhopClientID,
			ClientSecret: cfg.WhopClientSecret,
			AuthURL:      cfg.OAuthAuthorizeURL(),
			TokenURL:     cfg.OAuthTokenURL(),
			AppURL:       cfg.AppURL,
			StateSecret:  cfg.StateSecret,
		}, whop, store, box, logger),
		Verifier: verifier,
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		services: services,
		analyses: analysisCache,
		shutdown: shutdown,
	}, nil
}

func (a *app) close() {
	a.analyses.Close()
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
