// Package salesforce writes pin drafts to a Salesforce custom object over the
// REST collections API.
package salesforce

import (
	"context"
	"encoding/json"
	"net/http"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// collectionLimit is the most records one sObject Collections call accepts.
const collectionLimit = 200

// Client is the part of the Salesforce REST API the pin sink uses.
type Client interface {
	// Insert creates records on object. Results follow request order.
	Insert(ctx context.Context, object string, records []map[string]any) ([]InsertResult, error)
	// Fields lists the API names of object's fields.
	Fields(ctx context.Context, object string) ([]string, error)
}

// InsertResult is one record's outcome in a collection insert.
type InsertResult struct {
	RecordID string
	OK       bool
	Messages []string
}

// Creds holds JWT bearer-flow credentials.
type Creds struct {
	LoginURL string
	Username string
	ClientID string
	KeyPEM   string
}

// Option configures a Client.
type Option func(*restClient)

// WithRateLimit caps API calls per second. Zero or negative leaves calls
// unthrottled.
func WithRateLimit(rps float64) Option {
	return func(c *restClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// restClient calls Salesforce through go-salesforce, which takes no context;
// ctx only bounds the limiter wait.
type restClient struct {
	api     *gosf.Salesforce
	limiter *rate.Limiter
}

// Dial signs in with the JWT bearer flow.
func Dial(creds Creds, opts ...Option) (Client, error) {
	switch {
	case creds.ClientID == "":
		return nil, eris.New("salesforce: client ID is required")
	case creds.KeyPEM == "":
		return nil, eris.New("salesforce: private key is required")
	}
	api, err := gosf.Init(gosf.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: creds.KeyPEM,
	})
	if err != nil {
		return nil, eris.Wrap(err, "salesforce: sign in")
	}
	return New(api, opts...), nil
}

// New wraps an authenticated go-salesforce session.
func New(api *gosf.Salesforce, opts ...Option) Client {
	c := &restClient{api: api}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *restClient) throttle(ctx context.Context) error {
	if c.limiter != nil {
		return c.limiter.Wait(ctx)
	}
	return ctx.Err()
}

func (c *restClient) Insert(ctx context.Context, object string, records []map[string]any) ([]InsertResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, eris.Wrap(err, "salesforce: throttle")
	}
	resp, err := c.api.InsertCollection(object, records, collectionLimit)
	if err != nil {
		return nil, eris.Wrapf(err, "salesforce: insert into %s", object)
	}

	out := make([]InsertResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		ir := InsertResult{RecordID: r.Id, OK: r.Success}
		for _, e := range r.Errors {
			ir.Messages = append(ir.Messages, e.Message)
		}
		out = append(out, ir)
	}
	return out, nil
}

func (c *restClient) Fields(ctx context.Context, object string) ([]string, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, eris.Wrap(err, "salesforce: throttle")
	}
	resp, err := c.api.DoRequest(http.MethodGet, "/sobjects/"+object+"/describe", nil)
	if err != nil {
		return nil, eris.Wrapf(err, "salesforce: describe %s", object)
	}
	defer resp.Body.Close() //nolint:errcheck

	var desc struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, eris.Wrapf(err, "salesforce: decode %s describe", object)
	}
	names := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		names[i] = f.Name
	}
	return names, nil
}
