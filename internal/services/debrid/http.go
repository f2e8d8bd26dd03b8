package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amaumene/bridgarr/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	userAgent       = "bridgarr/1.0"
	maxResponseSize = 10 << 20
)

type options struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	linkLifetime time.Duration
}

// Option configures a provider client
type Option func(*options)

// WithBaseURL overrides the provider API base URL
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithRateLimit caps the request rate against the provider API
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLinkLifetime overrides how long generated links stay valid; zero means permanent
func WithLinkLifetime(lifetime time.Duration) Option {
	return func(o *options) {
		o.linkLifetime = lifetime
	}
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.limiter == nil {
		o.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return o
}

// apiClient is the HTTP plumbing shared by provider implementations
type apiClient struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
	authorize  func(req *http.Request)
	// mapError turns a provider error body into a sentinel-wrapping error, nil to use the status mapping
	mapError func(status int, body []byte) error
}

func newAPIClient(provider string, o options, logger *logrus.Logger) *apiClient {
	return &apiClient{
		provider:   provider,
		baseURL:    o.baseURL,
		httpClient: o.httpClient,
		limiter:    o.limiter,
		logger:     logger,
		authorize:  func(*http.Request) {},
	}
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.send(ctx, http.MethodGet, path, query, nil, "", out)
}

func (c *apiClient) postForm(ctx context.Context, path string, query, form url.Values, out interface{}) error {
	return c.send(ctx, http.MethodPost, path, query, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

func (c *apiClient) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return newAPIError(c.provider, 0, "", err.Error(), ErrProviderUnavailable)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, "network_error").Inc()
		return newAPIError(c.provider, 0, "", err.Error(), ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, "network_error").Inc()
		return newAPIError(c.provider, resp.StatusCode, "", err.Error(), ErrProviderUnavailable)
	}

	c.logger.WithFields(logrus.Fields{
		"provider":    c.provider,
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Debrid API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, "http_error").Inc()
		if c.mapError != nil {
			if mapped := c.mapError(resp.StatusCode, data); mapped != nil {
				return mapped
			}
		}
		return newAPIError(c.provider, resp.StatusCode, "", truncate(string(data), 200), errorForStatus(resp.StatusCode))
	}

	metrics.ProviderRequestsTotal.WithLabelValues(c.provider, "ok").Inc()

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newAPIError(c.provider, resp.StatusCode, "", "failed to decode response: "+err.Error(), ErrProviderUnavailable)
	}
	return nil
}

func bearer(token string) func(req *http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
