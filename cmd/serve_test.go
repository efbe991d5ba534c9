package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/submit"
)

const located = "Address,Name,Email,Latitude,Longitude\n" +
	"1 Main St,Ada Lovelace,ada@example.com,43.65,-79.38\n" +
	"2 King St,Alan Turing,,45.42,-75.69\n"

func newTestServer(t *testing.T, sink *recordingSink) *server {
	t.Helper()
	c := withConfig(t)
	orch, err := newOrchestrator(c, &sinkEnv{Name: "test", Creator: sink})
	require.NoError(t, err)
	return &server{orch: orch, maxBytes: 1 << 20, allowedOrigins: []string{"*"}}
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) model.SubmissionReport {
	t.Helper()
	var report model.SubmissionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestUpload_RawBody(t *testing.T) {
	sink := &recordingSink{}
	s := newTestServer(t, sink)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads?format=csv&filename=pins.csv", strings.NewReader(located))
	req.Header.Set("X-Caller", "user-42")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeReport(t, rec)
	assert.Equal(t, 2, report.TotalAttempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.GeocodeFailures)

	require.Len(t, sink.drafts, 2)
	assert.Equal(t, "user-42", sink.drafts[0].CreatedBy)
	assert.Equal(t, "pins.csv", sink.drafts[0].SourceFile)
	assert.InDelta(t, 43.65, sink.drafts[0].Coordinate.Latitude, 1e-9)
}

func TestUpload_Multipart(t *testing.T) {
	sink := &recordingSink{}
	s := newTestServer(t, sink)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("caller", "form-user"))
	fw, err := mw.CreateFormFile("file", "upload.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(located))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeReport(t, rec).Succeeded)
	require.Len(t, sink.drafts, 2)
	assert.Equal(t, "form-user", sink.drafts[0].CreatedBy)
	assert.Equal(t, "upload.csv", sink.drafts[0].SourceFile)
}

func TestUpload_PartialFailureStillOK(t *testing.T) {
	sink := &recordingSink{fn: func([]model.PinDraft) (submit.BulkResult, error) {
		return submit.BulkResult{Created: 1, Errors: []string{"duplicate pin"}}, nil
	}}
	s := newTestServer(t, sink)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads?format=csv", strings.NewReader(located))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.FailureMessages, 1)
	assert.Contains(t, report.FailureMessages[0], "duplicate pin")
	assert.Equal(t, "api", sink.drafts[0].CreatedBy)
}

func TestUpload_FatalParseErrorIs422(t *testing.T) {
	sink := &recordingSink{}
	s := newTestServer(t, sink)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads?format=csv", strings.NewReader("Address\n"))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no data rows")
	assert.Empty(t, sink.drafts)
}

func TestUpload_BadRequests(t *testing.T) {
	s := newTestServer(t, &recordingSink{})

	tests := []struct {
		name   string
		target string
		ctype  string
		body   string
		want   int
	}{
		{name: "no format", target: "/v1/uploads", body: located, want: http.StatusBadRequest},
		{name: "unknown format", target: "/v1/uploads?format=pdf", body: located, want: http.StatusBadRequest},
		{name: "format from content type", target: "/v1/uploads", ctype: "text/csv", body: located, want: http.StatusOK},
		{name: "multipart without file", target: "/v1/uploads", ctype: "multipart/form-data; boundary=x", body: "--x--\r\n", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			if tt.ctype != "" {
				req.Header.Set("Content-Type", tt.ctype)
			}
			rec := httptest.NewRecorder()
			s.routes().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t, &recordingSink{})
	s.maxBytes = 16

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads?format=csv", strings.NewReader(located))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &recordingSink{})

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s.health = func(context.Context) error { return errors.New("database is down") }
	rec = httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is down")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &recordingSink{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/uploads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
