// Package supabase implements port.Store on top of the Supabase PostgREST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
	now            func() time.Time
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// statusError is a non-2xx PostgREST response.
type statusError struct {
	Status int
	Code   string
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Body)
}

// Postgres error codes surfaced by PostgREST.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type response struct {
	body   []byte
	header http.Header
}

// doRequest executes one authenticated request to PostgREST.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, prefer string) (*response, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("encode %s body: %w", method, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		se := &statusError{Status: resp.StatusCode, Body: string(raw)}
		var pgErr struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(raw, &pgErr) == nil {
			se.Code = pgErr.Code
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(se)
		}
		return nil, se
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return &response{body: raw, header: resp.Header}, nil
}

// exec runs doRequest through the breaker with retry, then maps the failure
// to a domain error.
func (c *Client) exec(ctx context.Context, op, method, path string, body any, prefer string) (*response, error) {
	ctx, span := tracer.Start(ctx, "Supabase."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method))

	var out *response
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			resp, err := c.doRequest(ctx, method, path, body, prefer)
			if err != nil {
				return err
			}
			out = resp
			return nil
		})
	})
	if err != nil {
		return nil, c.mapError(err)
	}
	return out, nil
}

func (c *Client) mapError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case pgUniqueViolation:
			return &domain.ErrDuplicate{Key: se.Body}
		case pgForeignKeyViolation:
			return &domain.ErrNotFound{Resource: "referenced record", ID: se.Body}
		}
	}
	if resilience.IsOpen(err) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	return &domain.ErrExternalService{Service: "supabase", Err: err}
}

// Ping checks that PostgREST answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.exec(ctx, "Ping", http.MethodGet, "companies?select=id&limit=1", nil, "")
	return err
}

// contentRangeTotal extracts the total from a "0-49/123" Content-Range.
func contentRangeTotal(h http.Header) (int, bool) {
	cr := h.Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(cr[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
