package otis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

const userAgent = "ListingSyncer/1.0"

// maxErrorBodySize caps how much of an error response is kept in an APIError.
const maxErrorBodySize = 64 * 1024

// ClientConfig holds remote API client configuration.
type ClientConfig struct {
	BaseURL   string
	AuthURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int

	BreakerMaxRequests         uint32
	BreakerInterval            time.Duration
	BreakerTimeout             time.Duration
	BreakerConsecutiveFailures uint32
}

// Client is an authenticated client for the listings API. It caches one bearer token
// and refreshes it once when the API rejects it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authURL    string
	username   string
	password   string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a new API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		authURL:  cfg.AuthURL,
		username: cfg.Username,
		password: cfg.Password,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1)),
		logger:   logger.With("component", "api_client"),
	}
	if cfg.RateLimit <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	consecutive := cfg.BreakerConsecutiveFailures
	if consecutive == 0 {
		consecutive = 5
	}
	breakerName := "listings-api"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutive
		},
		// Only transport failures and upstream 5xx count against the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) {
				return apiErr.Code < 500
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return c
}

// BaseURL returns the API root used to derive stable external paths.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch performs a GET against resourcePath and returns the raw JSON body.
// An AuthExpired failure clears the token, fetches exactly one new token and
// retries once; a second failure is returned as is.
func (c *Client) Fetch(ctx context.Context, resourcePath string, params url.Values) ([]byte, error) {
	body, err := c.call(ctx, resourcePath, params)
	var lErr *loginError
	if err == nil || errors.As(err, &lErr) || !errors.Is(err, domain.ErrAuthExpired) {
		return body, err
	}

	c.logger.Warn("api token rejected, refreshing", "path", resourcePath)
	c.clearToken()
	if _, err := c.Token(ctx); err != nil {
		return nil, err
	}

	return c.call(ctx, resourcePath, params)
}

// Token returns the cached token, logging in when there is none. The mutex makes
// concurrent callers wait for a single login instead of starting their own.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	if c.username == "" || c.password == "" {
		return "", &domain.ConfigurationError{Field: "api.username/api.password", Msg: "credentials missing"}
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", &loginError{err: err}
	}
	c.token = token
	metrics.TokenRefreshes.Inc()

	return token, nil
}

// loginError is a failed token request. It is never answered with a refresh.
type loginError struct {
	err error
}

func (e *loginError) Error() string { return "fetch token: " + e.err.Error() }

func (e *loginError) Unwrap() error { return e.err }

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	c.logger.Debug("requesting api token", "url", c.authURL)

	body, err := c.do(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()), "")
	if err != nil {
		return "", err
	}

	var resp struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if resp.Key == "" {
		return "", &domain.APIError{Code: http.StatusUnauthorized, Message: "login returned no key"}
	}

	return resp.Key, nil
}

func (c *Client) call(ctx context.Context, resourcePath string, params url.Values) ([]byte, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := endpointLabel(resourcePath)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.TransportError{Op: "rate limit " + endpoint, Err: err}
	}

	target := c.endpoint(resourcePath, params)
	start := time.Now()
	c.logger.Debug("api call", "path", resourcePath, "query", params.Encode())

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, target, nil, token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.TransportError{Op: "GET " + resourcePath, Err: err}
	}

	elapsed := time.Since(start)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	metrics.APIRequests.WithLabelValues(endpoint, outcomeLabel(err)).Inc()

	if err != nil {
		c.logger.Debug("api call failed", "path", resourcePath, "duration", elapsed, "error", err)
		return nil, err
	}
	c.logger.Debug("api call completed", "path", resourcePath, "duration", elapsed, "bytes", len(body))

	return body, nil
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.APIError{Code: resp.StatusCode, Message: string(readBodyForError(resp.Body))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: "read body " + req.URL.Path, Err: err}
	}

	return data, nil
}

func (c *Client) endpoint(resourcePath string, params url.Values) string {
	resourcePath = strings.Trim(resourcePath, "/") + "/"

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("app-nocache", "true")

	return c.baseURL + "/" + resourcePath + "?" + query.Encode()
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

// endpointLabel keeps metric cardinality bounded: uuids and ids are dropped.
func endpointLabel(resourcePath string) string {
	parts := strings.Split(strings.Trim(resourcePath, "/"), "/")
	if len(parts) > 1 {
		switch parts[1] {
		case "history", "activeids", "deleted":
			return parts[0] + "/" + parts[1]
		}
	}
	return parts[0]
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http_%d", apiErr.Code)
	}
	return "transport_error"
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
