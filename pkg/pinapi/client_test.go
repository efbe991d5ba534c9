package pinapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", "test-token")
	require.NoError(t, err)
	return c
}

func testDrafts() []model.PinDraft {
	return []model.PinDraft{
		{ID: "a", Status: model.PinStatusPending, Address: model.NormalizedAddress{FormattedAddress: "1 A St, Canada"}},
		{ID: "b", Status: model.PinStatusPending},
		{ID: "c", Status: model.PinStatusPending},
	}
}

func TestBulkCreate(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       bool
		wantTransient bool
		wantCreated   int
		wantErrors    []string
		wantFailedIDs []string
	}{
		{name: "created", status: 201, body: `{"created":3}`, wantCreated: 3},
		{name: "created empty object", status: 201, body: `{}`, wantCreated: 3},
		{name: "created no body", status: 201, wantCreated: 3},
		{name: "created whitespace body", status: 201, body: " \n", wantCreated: 3},
		{name: "partial no body", status: 207, wantErr: true},
		{
			name:          "partial with objects",
			status:        207,
			body:          `{"created":1,"errors":[{"id":"b","message":"invalid postal code"},{"id":"c","message":"duplicate"}]}`,
			wantCreated:   1,
			wantErrors:    []string{"b: invalid postal code", "c: duplicate"},
			wantFailedIDs: []string{"b", "c"},
		},
		{
			name:        "partial with strings",
			status:      207,
			body:        `{"created":2,"errors":["row 3 rejected"]}`,
			wantCreated: 2,
			wantErrors:  []string{"row 3 rejected"},
		},
		{name: "bad request", status: 400, body: `{"error":"schema"}`, wantErr: true},
		{name: "ok is not created", status: 200, body: `{"created":3}`, wantErr: true},
		{name: "rate limited", status: 429, body: `slow down`, wantErr: true, wantTransient: true},
		{name: "server error", status: 502, wantErr: true, wantTransient: true},
		{name: "malformed", status: 201, body: `{"created":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/pins/bulk", r.URL.Path)
				assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var got []model.PinDraft
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Len(t, got, 3)
				assert.Equal(t, "a", got[0].ID)
				assert.Equal(t, model.PinStatusPending, got[0].Status)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.BulkCreate(context.Background(), testDrafts())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, res.Created)
			assert.Equal(t, tt.wantErrors, res.Errors)
			assert.Equal(t, tt.wantFailedIDs, res.FailedIDs)
		})
	}
}

func TestBulkCreate_NoTokenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":3}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", WithRateLimit(100))
	require.NoError(t, err)
	res, err := c.BulkCreate(context.Background(), testDrafts())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
}

func TestBulkCreate_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.BulkCreate(ctx, testDrafts())
	assert.Error(t, err)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("", "tok")
	assert.Error(t, err)
}
