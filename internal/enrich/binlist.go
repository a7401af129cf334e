// Package enrich fills missing fields on merged records from the public
// binlist.net lookup API, behind a persistent cache and a rate limiter.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bincheck/binetl/internal/resilience"
)

// DefaultBaseURL is the public, unauthenticated binlist.net endpoint. It is
// strictly rate limited, which is why every lookup goes through the limiter
// and the cache.
const DefaultBaseURL = "https://lookup.binlist.net"

// LookupBank is the issuing-bank block of a lookup response.
type LookupBank struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Phone string `json:"phone,omitempty"`
	City  string `json:"city,omitempty"`
}

// LookupCountry is the country block of a lookup response.
type LookupCountry struct {
	Name     string `json:"name,omitempty"`
	Alpha2   string `json:"alpha2,omitempty"`
	Numeric  string `json:"numeric,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// LookupResponse is the subset of the binlist.net payload the pipeline uses.
type LookupResponse struct {
	Scheme  string         `json:"scheme,omitempty"`
	Type    string         `json:"type,omitempty"`
	Brand   string         `json:"brand,omitempty"`
	Prepaid *bool          `json:"prepaid,omitempty"`
	Country *LookupCountry `json:"country,omitempty"`
	Bank    *LookupBank    `json:"bank,omitempty"`
}

// Client looks up BIN metadata with request pacing and retry on transient
// upstream failures.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Config
}

// NewClient builds a Client pacing requests at one per delay. Retries back
// off starting from the same delay so they never tighten the request rate.
func NewClient(baseURL string, timeout, delay time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		retry: resilience.Config{
			MaxAttempts:    3,
			InitialBackoff: delay,
			OnRetry:        resilience.RetryLogger("binlist", "lookup"),
		},
	}
}

// Lookup fetches metadata for one BIN. A 404 means the upstream has no
// record and returns (nil, nil); callers should cache that as a miss.
// Server and network errors are retried with backoff before surfacing. A 429
// is not retried: it surfaces at once so the failed attempt gets cached
// instead of burning more of the rate budget inside one lookup.
func (c *Client) Lookup(ctx context.Context, bin string) (*LookupResponse, error) {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) (*LookupResponse, error) {
		return c.fetch(ctx, bin)
	})
}

func (c *Client) fetch(ctx context.Context, bin string) (*LookupResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enrich: wait for rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(bin)), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: build lookup request for %s", bin)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: lookup %s", bin)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, eris.Errorf("enrich: lookup %s: HTTP 429 (rate limited)", bin)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("enrich: lookup %s: HTTP %d", bin, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, eris.Errorf("enrich: lookup %s: HTTP %d", bin, resp.StatusCode)
	}

	var data LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, eris.Wrapf(err, "enrich: decode lookup response for %s", bin)
	}
	return &data, nil
}
