package adapter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/game-stats/internal/circuitbreaker"
	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/logging"
)

const (
	defaultTimeout = 5 * time.Second
	userAgent      = "game-stats/1.0"
	maxBodyBytes   = 4 << 20
)

// Options configures an upstream client
type Options struct {
	BaseURL    string
	Timeout    time.Duration // applied to every call
	HTTPClient *http.Client
	Breaker    *circuitbreaker.CircuitBreaker
	// RequestsPerSecond throttles outgoing calls; 0 means unlimited
	RequestsPerSecond float64
	Burst             int
}

// jsonClient is the GET-and-decode core shared by every provider client.
// Each call runs under its own timeout and through the provider's breaker.
type jsonClient struct {
	provider string
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   *logging.Logger
}

func newJSONClient(provider string, opts Options) *jsonClient {
	c := &jsonClient{
		provider: provider,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		breaker:  opts.Breaker,
		logger:   logging.GetGlobalLogger().WithComponent("adapter").WithField("provider", provider),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(provider))
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// getJSON issues GET baseURL+path?query and decodes the body into out
func (c *jsonClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		return c.do(ctx, endpoint, out)
	})
	if err == nil {
		return nil
	}

	c.logger.WithError(err).WithFields(map[string]interface{}{
		"path":     path,
		"duration": time.Since(start).String(),
	}).Debug("Upstream call failed")

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewProviderTimeoutError(c.provider, err)
	}
	return errors.NewProviderError(c.provider, err)
}

func (c *jsonClient) do(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
