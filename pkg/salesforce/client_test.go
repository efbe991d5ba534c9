package salesforce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRESTClient returns a Client talking to an httptest server with a
// pre-issued token.
func newRESTClient(t *testing.T, handler http.Handler, opts ...Option) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	api, err := gosf.Init(gosf.Creds{AccessToken: "test-token", Domain: ts.URL},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return New(api, opts...)
}

func TestFields(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.URL.Path, "/sobjects/Pin__c/describe")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"Pin__c","fields":[
			{"name":"Id","type":"id","createable":false},
			{"name":"External_Id__c","type":"string","createable":true}
		]}`)
	}), WithRateLimit(100))

	fields, err := client.Fields(context.Background(), "Pin__c")
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "External_Id__c"}, fields)
}

func TestFields_NotFound(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "sobject not found", "errorCode": "NOT_FOUND"},
		})
	}))

	_, err := client.Fields(context.Background(), "Nope__c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce: describe Nope__c")
}

func TestFields_BadBody(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"fields":`)
	}))

	_, err := client.Fields(context.Background(), "Pin__c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode Pin__c describe")
}

func TestInsert_CancelledContext(t *testing.T) {
	client := newRESTClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request should not be sent")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Insert(ctx, "Pin__c", []map[string]any{{"Name": "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle")
}

func TestDial_RequiresCredentials(t *testing.T) {
	_, err := Dial(Creds{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID")

	_, err = Dial(Creds{ClientID: "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key")
}
