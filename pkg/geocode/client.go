// Package geocode resolves free-text addresses to coordinates through a
// Google-compatible geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
)

// DefaultConcurrency is the ResolveMany ceiling used when the caller passes
// a non-positive limit.
const DefaultConcurrency = 10

// Resolver turns addresses into coordinates. Failures are never returned:
// an unresolved address yields the zero Coordinate.
type Resolver interface {
	// Resolve looks up one address.
	Resolve(ctx context.Context, address string) model.Coordinate

	// ResolveMany looks up addresses with at most limit lookups in flight.
	// The result is in input order.
	ResolveMany(ctx context.Context, addresses []string, limit int) []model.Coordinate
}

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL points the client at a different provider host (tests,
// self-hosted proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithRegion sets the ccTLD region bias, e.g. "ca".
func WithRegion(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// WithHTTPClient sets a custom HTTP client. Its timeout bounds each lookup.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit across all lookups.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithCircuitBreaker guards lookups with cb. While the circuit is open,
// lookups fail immediately without a request.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithFailureHook registers fn to be called for every failed lookup, in
// addition to the log line.
func WithFailureHook(fn func(address string, err error)) Option {
	return func(c *Client) {
		c.onFailure = fn
	}
}

// Client is the Google Geocoding API Resolver.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	region     string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	onFailure  func(address string, err error)
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		limiter:    rate.NewLimiter(50, 50),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate reports configuration that would make every lookup fail.
func (c *Client) Validate() error {
	if c.baseURL == defaultBaseURL && c.apiKey == "" {
		return eris.New("geocode: api key is required for the Google endpoint (PIN_GEOCODE_API_KEY)")
	}
	return nil
}

// Resolve implements Resolver.
func (c *Client) Resolve(ctx context.Context, address string) model.Coordinate {
	coord, err := c.lookup(ctx, address)
	if err != nil {
		c.fail(address, err)
		return model.Coordinate{}
	}
	return coord
}

// ResolveMany implements Resolver. Lookups are dispatched in input order and
// complete in any order; each result is stored at its input index.
func (c *Client) ResolveMany(ctx context.Context, addresses []string, limit int) []model.Coordinate {
	return resolveMany(ctx, c, addresses, limit)
}

// resolveMany fans addresses out to r.Resolve with a bounded errgroup.
func resolveMany(ctx context.Context, r Resolver, addresses []string, limit int) []model.Coordinate {
	results := make([]model.Coordinate, len(addresses))
	if len(addresses) == 0 {
		return results
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var eg errgroup.Group
	eg.SetLimit(limit)

	for i, addr := range addresses {
		eg.Go(func() error {
			results[i] = r.Resolve(ctx, addr)
			return nil
		})
	}

	_ = eg.Wait() // workers never return errors
	return results
}

// lookup performs one request, through the circuit breaker when configured.
func (c *Client) lookup(ctx context.Context, address string) (model.Coordinate, error) {
	if address == "" {
		return model.Coordinate{}, eris.New("geocode: empty address")
	}
	if c.breaker == nil {
		return c.lookupGoogle(ctx, address)
	}

	var miss error
	coord, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (model.Coordinate, error) {
		coord, err := c.lookupGoogle(ctx, address)
		if isMiss(err) {
			// A clean "no match" says nothing about provider health.
			miss = err
			return model.Coordinate{}, nil
		}
		return coord, err
	})
	if err != nil {
		return model.Coordinate{}, err
	}
	if miss != nil {
		return model.Coordinate{}, miss
	}
	return coord, nil
}

func (c *Client) fail(address string, err error) {
	zap.L().Warn("geocode: lookup failed, using unresolved coordinate",
		zap.String("address", address),
		zap.Error(err),
	)
	if c.onFailure != nil {
		c.onFailure(address, err)
	}
}
