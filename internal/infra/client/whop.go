package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/observability"
	"github.com/boddenberg/whop-crm-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

const defaultWhopAPIURL = "https://api.whop.com"

// WhopClient calls the Whop REST API (v5).
type WhopClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	metrics    *observability.Metrics
}

// NewWhopClient creates a new WhopClient. An empty baseURL selects the public
// API host.
func NewWhopClient(
	httpClient *http.Client,
	baseURL, apiKey string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	metrics *observability.Metrics,
) *WhopClient {
	if baseURL == "" {
		baseURL = defaultWhopAPIURL
	}
	return &WhopClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// ListMemberships fetches one page of the company's memberships. An empty
// token falls back to the app API key.
func (c *WhopClient) ListMemberships(ctx context.Context, token string, page, perPage int) (*domain.WhopMembershipPage, error) {
	ctx, span := tracer.Start(ctx, "WhopClient.ListMemberships")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page))

	if token == "" {
		token = c.apiKey
	}
	if token == "" {
		return nil, &domain.ErrNotConfigured{Setting: "WHOP_API_KEY"}
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per", strconv.Itoa(perPage))

	var out domain.WhopMembershipPage
	if err := c.get(ctx, "/api/v5/memberships?"+q.Encode(), token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCurrentCompany returns the company the access token was issued for.
func (c *WhopClient) GetCurrentCompany(ctx context.Context, accessToken string) (*domain.WhopCompany, error) {
	ctx, span := tracer.Start(ctx, "WhopClient.GetCurrentCompany")
	defer span.End()

	if accessToken == "" {
		return nil, &domain.ErrUnauthorized{Message: "missing access token"}
	}

	var out domain.WhopCompany
	if err := c.get(ctx, "/api/v5/me/company", accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs an authenticated GET through the breaker with retry. Client
// errors other than 429 are not retried.
func (c *WhopClient) get(ctx context.Context, path, token string, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				statusErr := fmt.Errorf("whop API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return resilience.Permanent(statusErr)
				}
				return statusErr
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resilience.Permanent(fmt.Errorf("decode whop response: %w", err))
			}
			return nil
		})
	})
	if err != nil {
		c.metrics.IncrExternalError("whop")
		if resilience.IsOpen(err) {
			return &domain.ErrCircuitOpen{Service: "whop"}
		}
		return &domain.ErrExternalService{Service: "whop", Err: err}
	}
	return nil
}
