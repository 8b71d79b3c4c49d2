// Package fetcher provides the shared HTTP client used to reach the Read the
// Docs API and rendered documentation sites, with rate limiting, optional
// retries and typed status errors.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// UserAgent is sent with every request.
const UserAgent = "readthedocs-mcp/1.0"

const (
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 60 * time.Second
)

// ErrNotFound is matched by status errors for 404 and 410 responses.
var ErrNotFound = errors.New("resource not found")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status HTTP %d for %s", e.StatusCode, e.URL)
}

// Is reports whether target is ErrNotFound and the status means the resource is gone.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// userAgentRoundTripper sets the User-Agent header unless the caller already did
type userAgentRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("User-Agent") != "" {
		return base.RoundTrip(req)
	}
	cloned := req.Clone(req.Context())
	cloned.Header = req.Header.Clone()
	cloned.Header.Set("User-Agent", rt.userAgent)
	return base.RoundTrip(cloned)
}

// HTTPClient provides HTTP client functionality with timeout, retry logic, and rate limiting
type HTTPClient struct {
	client      *http.Client
	maxRetries  int
	rateLimiter *rate.Limiter
	logger      zerolog.Logger

	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewHTTPClient creates a new HTTP client with the specified timeout, max retries, and max concurrent requests.
// Redirects are followed with the net/http default policy.
//
// Parameters:
//   - timeout: HTTP request timeout duration
//   - maxRetries: Maximum number of retry attempts (not including the initial request); 0 disables retries
//   - maxConcurrent: Requests per second allowed by the limiter, also used as the burst
//   - logger: zerolog logger for request tracing
//
// Returns a configured HTTPClient ready for use.
func NewHTTPClient(timeout time.Duration, maxRetries int, maxConcurrent int, logger zerolog.Logger) *HTTPClient {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &userAgentRoundTripper{
			base:      http.DefaultTransport,
			userAgent: UserAgent,
		},
	}

	return &HTTPClient{
		client:       httpClient,
		maxRetries:   maxRetries,
		rateLimiter:  rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent),
		logger:       logger,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
	}
}

// backoffDelay returns the wait before retry number attempt (1-based):
// initialDelay doubled per attempt and capped at maxDelay.
func backoffDelay(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

// Fetch retrieves url with a GET request, adding header to the request.
//
// A non-2xx response returns a *StatusError. 5xx responses and network
// errors are retried with exponential backoff when retries are enabled;
// 4xx responses never are.
func (c *HTTPClient) Fetch(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, c.initialDelay, c.maxDelay)
			c.logger.Debug().
				Str("url", url).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying request")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}

		c.logger.Debug().Str("url", url).Msg("Fetching")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.logger.Debug().
				Str("url", url).
				Int("status", resp.StatusCode).
				Int("content_size", len(body)).
				Msg("Fetched")
			return body, nil
		}

		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if resp.StatusCode >= 500 {
			lastErr = statusErr
			continue
		}

		c.logger.Debug().
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Request rejected")
		return nil, statusErr
	}

	c.logger.Warn().
		Err(lastErr).
		Str("url", url).
		Int("attempts", c.maxRetries+1).
		Msg("Request failed")

	if c.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
