package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var oauthTracer = otel.Tracer("service/oauth")

const (
	oauthScopes   = "memberships:read users:read payments:read"
	stateLifetime = 10 * time.Minute
	stateIssuer   = "whop-crm"
)

// tokenSealer encrypts OAuth tokens before they are stored.
type tokenSealer interface {
	Seal(plaintext string) (string, error)
}

// OAuthConfig holds the app registration and endpoints of the install flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	AppURL       string
	StateSecret  string
}

// OAuthService runs the app install flow: redirect to consent, verify the
// returned state, exchange the code and store the company with sealed tokens.
type OAuthService struct {
	cfg    OAuthConfig
	api    port.WhopAPI
	store  port.CompanyStore
	sealer tokenSealer
	logger *zap.Logger
	now    func() time.Time
}

// NewOAuthService creates the install flow service.
func NewOAuthService(cfg OAuthConfig, api port.WhopAPI, store port.CompanyStore, sealer tokenSealer, logger *zap.Logger) *OAuthService {
	return &OAuthService{cfg: cfg, api: api, store: store, sealer: sealer, logger: logger, now: time.Now}
}

// WithClock overrides the time source used to issue and check state.
func (s *OAuthService) WithClock(now func() time.Time) *OAuthService {
	s.now = now
	return s
}

func (s *OAuthService) oauthConfig() (*oauth2.Config, error) {
	switch {
	case s.cfg.ClientID == "":
		return nil, &domain.ErrNotConfigured{Setting: "WHOP_CLIENT_ID"}
	case s.cfg.ClientSecret == "":
		return nil, &domain.ErrNotConfigured{Setting: "WHOP_CLIENT_SECRET"}
	case s.cfg.StateSecret == "":
		return nil, &domain.ErrNotConfigured{Setting: "STATE_SECRET"}
	}
	return &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.cfg.AuthURL,
			TokenURL:  s.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: strings.TrimRight(s.cfg.AppURL, "/") + "/v1/auth/callback",
		Scopes:      []string{oauthScopes},
	}, nil
}

type stateClaims struct {
	CompanyID string `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// InstallURL returns the consent URL. companyID is optional and travels in
// the signed state.
func (s *OAuthService) InstallURL(companyID string) (string, error) {
	cfg, err := s.oauthConfig()
	if err != nil {
		return "", err
	}
	now := s.now()
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateLifetime)),
		},
	}).SignedString([]byte(s.cfg.StateSecret))
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return cfg.AuthCodeURL(state), nil
}

func (s *OAuthService) verifyState(state string) (*stateClaims, error) {
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.StateSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired state"}
	}
	return claims, nil
}

// Callback completes the install and returns the stored company.
func (s *OAuthService) Callback(ctx context.Context, code, state string) (*domain.Company, error) {
	ctx, span := oauthTracer.Start(ctx, "OAuthService.Callback")
	defer span.End()

	cfg, err := s.oauthConfig()
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, &domain.ErrValidation{Field: "code", Message: "Missing code"}
	}
	claims, err := s.verifyState(state)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &domain.ErrExternalService{Service: "whop-oauth", Err: fmt.Errorf("token exchange: %s", re.ErrorCode)}
		}
		return nil, &domain.ErrExternalService{Service: "whop-oauth", Err: err}
	}

	wc, err := s.api.GetCurrentCompany(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if claims.CompanyID != "" && claims.CompanyID != wc.ID {
		s.logger.Warn("oauth: installed company differs from requested",
			zap.String("requested", claims.CompanyID),
			zap.String("installed", wc.ID),
		)
	}

	access, err := s.sealer.Seal(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(tok.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	c := &domain.Company{
		WhopCompanyID: wc.ID,
		Name:          wc.Title,
		Email:         wc.Email,
		IsActive:      true,
		AccessToken:   access,
		RefreshToken:  refresh,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		c.TokenExpiresAt = &exp
	}

	saved, err := s.store.UpsertCompany(ctx, c)
	if err != nil {
		return nil, err
	}
	s.logger.Info("company installed", zap.String("company_id", saved.ID), zap.String("whop_company_id", saved.WhopCompanyID))
	return saved, nil
}

// DashboardURL is where the browser lands after install or init.
func (s *OAuthService) DashboardURL(c *domain.Company) string {
	return strings.TrimRight(s.cfg.AppURL, "/") + "/dashboard/" + c.WhopCompanyID
}
