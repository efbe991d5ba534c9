package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pin-ingest/internal/parser"
	"github.com/sells-group/pin-ingest/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

func TestLoad_LocalFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "upload.csv")
	require.NoError(t, os.WriteFile(p, []byte("Address\n1 Main St\n"), 0o600))

	f, err := NewLoader().Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "upload.csv", f.Name)
	assert.Equal(t, parser.FormatCSV, f.Format)
	assert.Equal(t, "Address\n1 Main St\n", string(f.Data))

	f, err = NewLoader().Load(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "upload.csv", f.Name)
}

func TestLoad_LocalFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader().Load(context.Background(), filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat")

	_, err = NewLoader().Load(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")

	big := filepath.Join(dir, "big.csv")
	require.NoError(t, os.WriteFile(big, make([]byte, 64), 0o600))
	_, err = NewLoader(WithMaxBytes(10)).Load(context.Background(), big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestLoad_UnknownExtensionLeavesFormatEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "upload.dat")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	f, err := NewLoader().Load(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, f.Format)
}

func TestLoad_Rejects(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "  ")
	require.Error(t, err)

	_, err = NewLoader().Load(context.Background(), "s3://bucket/key.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestLoad_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pin-ingest/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`[{"Address":"1 Main St"}]`))
	}))
	defer srv.Close()

	f, err := NewLoader().Load(context.Background(), srv.URL+"/exports/pins%20today")
	require.NoError(t, err)
	assert.Equal(t, "pins today", f.Name)
	assert.Equal(t, parser.FormatJSON, f.Format)
	assert.JSONEq(t, `[{"Address":"1 Main St"}]`, string(f.Data))
}

func TestLoad_HTTPExtensionFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("Address\n"))
	}))
	defer srv.Close()

	f, err := NewLoader().Load(context.Background(), srv.URL+"/upload.csv")
	require.NoError(t, err)
	assert.Equal(t, parser.FormatCSV, f.Format)
}

func TestLoad_HTTPRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("Address\n"))
	}))
	defer srv.Close()

	f, err := NewLoader(WithRetry(fastRetry())).Load(context.Background(), srv.URL+"/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "Address\n", string(f.Data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoad_HTTPPermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such export"))
	}))
	defer srv.Close()

	_, err := NewLoader(WithRetry(fastRetry())).Load(context.Background(), srv.URL+"/a.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoad_HTTPTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	_, err := NewLoader(WithMaxBytes(50), WithRetry(fastRetry())).Load(context.Background(), srv.URL+"/a.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestFormatFromContentType(t *testing.T) {
	assert.Equal(t, parser.FormatCSV, formatFromContentType("text/csv; charset=utf-8"))
	assert.Equal(t, parser.FormatXLSX, formatFromContentType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, parser.Format(""), formatFromContentType("text/plain"))
}
