// Package pinapi is a client for the pin service's bulk-create endpoint.
package pinapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
	"github.com/sells-group/pin-ingest/internal/submit"
)

const (
	bulkPath     = "/pins/bulk"
	maxBodyBytes = 1 << 20
)

// ItemError is one rejected draft in a partial-failure response. The server
// may send either a bare string or an object.
type ItemError struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// UnmarshalJSON accepts "message" or {"id":..., "message":...}.
func (e *ItemError) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.Message)
	}
	type plain ItemError
	return json.Unmarshal(b, (*plain)(e))
}

// BulkResponse is the body of a 201 or 207 response.
type BulkResponse struct {
	Created int         `json:"created"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Zero disables the limiter.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Client posts drafts to {baseURL}/pins/bulk. It implements
// submit.BulkCreator.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

var _ submit.BulkCreator = (*Client)(nil)

// NewClient creates a Client. token is sent as a bearer token when non-empty.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, eris.New("pinapi: base url is required (PIN_PINAPI_BASE_URL)")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BulkCreate sends one chunk. 201 is full success, 207 a partial failure;
// any other status fails the whole chunk, transient for 408/429/5xx.
func (c *Client) BulkCreate(ctx context.Context, drafts []model.PinDraft) (submit.BulkResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return submit.BulkResult{}, eris.Wrap(err, "pinapi: rate limit")
		}
	}

	body, err := json.Marshal(drafts)
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "pinapi: marshal drafts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+bulkPath, bytes.NewReader(body))
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "pinapi: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "pinapi: bulk create")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return submit.BulkResult{}, eris.Wrap(err, "pinapi: read response")
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusMultiStatus:
	default:
		return submit.BulkResult{}, resilience.HTTPStatusError("pinapi", resp.StatusCode, respBody)
	}

	if resp.StatusCode == http.StatusCreated && len(bytes.TrimSpace(respBody)) == 0 {
		// An older server answers 201 with an empty body.
		return submit.BulkResult{Created: len(drafts)}, nil
	}

	var br BulkResponse
	if err := json.Unmarshal(respBody, &br); err != nil {
		return submit.BulkResult{}, eris.Wrapf(err, "pinapi: decode %d response", resp.StatusCode)
	}

	res := submit.BulkResult{Created: br.Created}
	for _, ie := range br.Errors {
		msg := ie.Message
		if ie.ID != "" {
			msg = ie.ID + ": " + msg
			res.FailedIDs = append(res.FailedIDs, ie.ID)
		}
		res.Errors = append(res.Errors, msg)
	}
	if resp.StatusCode == http.StatusCreated && len(res.Errors) == 0 && br.Created == 0 && len(drafts) > 0 {
		// Same for a 201 that omits the count.
		res.Created = len(drafts)
	}
	return res, nil
}
