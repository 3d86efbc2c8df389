package fanvue

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/onyxos/onyxsync/internal/cache"
	"github.com/onyxos/onyxsync/internal/retry"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	// APIVersionHeader carries the pinned upstream API version.
	APIVersionHeader = "X-Fanvue-API-Version"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 2048
)

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client

	// Header names are upstream specific and treated as opaque strings.
	LimitHeader     string
	RemainingHeader string
	ResetHeader     string

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64

	// MaxRetries is the default 429 retry budget of GetJSON.
	MaxRetries int
	// Backoff supplies the waits used when a 429 carries no reset time.
	Backoff retry.Policy

	Cache    cache.Cache
	CacheTTL time.Duration
}

// Client issues authenticated requests against the Fanvue REST API and
// retries rate-limited calls.
type Client struct {
	logger *logger.Logger

	baseURL    string
	apiVersion string
	httpClient *http.Client

	limitHeader     string
	remainingHeader string
	resetHeader     string

	limiter    *rate.Limiter
	maxRetries int
	backoff    retry.Policy

	cache    cache.Cache
	cacheTTL time.Duration

	now func() time.Time
}

// Request is one API call. Body, when set, is sent as JSON.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Token  string
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RateLimit  RateLimit
}

func NewClient(opts Options, logger *logger.Logger) *Client {
	c := &Client{
		logger:          logger,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		apiVersion:      opts.APIVersion,
		httpClient:      opts.HTTPClient,
		limitHeader:     opts.LimitHeader,
		remainingHeader: opts.RemainingHeader,
		resetHeader:     opts.ResetHeader,
		limiter:         rate.NewLimiter(rate.Inf, 1),
		maxRetries:      opts.MaxRetries,
		backoff:         opts.Backoff,
		cache:           opts.Cache,
		cacheTTL:        opts.CacheTTL,
		now:             time.Now,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	if c.limitHeader == "" {
		c.limitHeader = "X-RateLimit-Limit"
	}
	if c.remainingHeader == "" {
		c.remainingHeader = "X-RateLimit-Remaining"
	}
	if c.resetHeader == "" {
		c.resetHeader = "X-RateLimit-Reset"
	}
	if c.backoff.BaseDelay <= 0 {
		c.backoff.BaseDelay = time.Second
	}
	if c.backoff.MaxDelay <= 0 {
		c.backoff.MaxDelay = time.Minute
	}
	if c.cache == nil {
		c.cache = cache.Nop{}
	}
	return c
}

// Do issues req. A 429 is retried up to maxRetries times, waiting until the
// announced reset or, without one, along the backoff schedule. When the
// budget is spent the call returns *RateLimitError.
func (c *Client) Do(ctx context.Context, req Request, maxRetries int) (*Response, error) {
	policy := c.backoff
	policy.MaxAttempts = maxRetries + 1
	policy.Retryable = IsRateLimited

	var resp *Response
	err := policy.Do(ctx, func(attempt int) error {
		r, err := c.do(ctx, req)
		if err != nil {
			var rl *RateLimitError
			if errors.As(err, &rl) {
				rl.Attempts = attempt
				c.logger.Warn("Fanvue rate limit hit", "path", req.Path, "attempt", attempt, "remaining", rl.RateLimit.Remaining, "wait", rl.Wait)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if c.apiVersion != "" {
		httpReq.Header.Set(APIVersionHeader, c.apiVersion)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request slot: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, req.Path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, req.Path, err)
	}

	rateLimit := c.readRateLimit(httpResp.Header)

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Path:      req.Path,
			RateLimit: rateLimit,
			Wait:      c.resetWait(httpResp.Header, rateLimit),
		}
	case httpResp.StatusCode < 200 || httpResp.StatusCode > 299:
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &APIError{Method: method, Path: req.Path, StatusCode: httpResp.StatusCode, Body: text}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
		RateLimit:  rateLimit,
	}, nil
}

// GetJSON performs a GET and decodes the body into out. Cacheable responses
// are served from and stored into the response cache, keyed per token.
func (c *Client) GetJSON(ctx context.Context, token, path string, query url.Values, out interface{}, cacheable bool) error {
	key := ""
	if cacheable {
		key = cacheKey(token, path, query)
		if cached, err := c.cache.Get(ctx, key); err == nil {
			return json.Unmarshal(cached, out)
		}
	}

	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Token: token}, c.maxRetries)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if cacheable {
		if err := c.cache.Set(ctx, key, resp.Body, c.cacheTTL); err != nil {
			c.logger.Warn("Failed to cache Fanvue response", "path", path, "error", err)
		}
	}
	return nil
}

// Invalidate drops a cached GET response.
func (c *Client) Invalidate(ctx context.Context, token, path string, query url.Values) error {
	return c.cache.Invalidate(ctx, cacheKey(token, path, query))
}

func (c *Client) readRateLimit(h http.Header) RateLimit {
	var rl RateLimit
	if v, err := strconv.Atoi(h.Get(c.limitHeader)); err == nil {
		rl.Limit = v
		rl.Known = true
	}
	if v, err := strconv.Atoi(h.Get(c.remainingHeader)); err == nil {
		rl.Remaining = v
		rl.Known = true
	}
	if reset, ok := c.parseReset(h.Get(c.resetHeader)); ok {
		rl.Reset = reset
		rl.Known = true
	}
	return rl
}

// parseReset accepts either seconds until reset or an absolute unix time.
func (c *Client) parseReset(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, false
	}
	if f > 1e9 {
		return time.Unix(int64(f), 0), true
	}
	return c.now().Add(time.Duration(f * float64(time.Second))), true
}

func (c *Client) resetWait(h http.Header, rl RateLimit) time.Duration {
	if !rl.Reset.IsZero() {
		if wait := rl.Reset.Sub(c.now()); wait > 0 {
			return wait
		}
		return 0
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if wait := at.Sub(c.now()); wait > 0 {
				return wait
			}
		}
	}
	return 0
}

func cacheKey(token, path string, query url.Values) string {
	sum := sha256.Sum256([]byte(token))
	key := "fanvue:" + hex.EncodeToString(sum[:8]) + ":" + path
	if len(query) > 0 {
		key += "?" + query.Encode()
	}
	return key
}
