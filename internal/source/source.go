// Package source resolves an upload reference (local path, http(s) URL or
// ftp URL) to its bytes.
package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/parser"
	"github.com/sells-group/pin-ingest/internal/resilience"
)

// DefaultMaxBytes bounds an upload read into memory.
const DefaultMaxBytes = 50 << 20

// File is a fetched upload. Format is empty when neither the name nor the
// content type identified one.
type File struct {
	Name   string
	Data   []byte
	Format parser.Format
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(hc *http.Client) Option {
	return func(l *Loader) {
		l.http = hc
	}
}

// WithRetry sets the retry policy for remote sources.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(l *Loader) {
		l.retry = cfg
	}
}

// WithTimeout sets the per-attempt timeout for remote sources.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxBytes caps the size of an upload. Larger inputs are rejected.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header for http(s) sources.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		l.userAgent = ua
	}
}

// Loader fetches uploads from the local filesystem, http(s) or ftp.
type Loader struct {
	http      *http.Client
	retry     resilience.RetryConfig
	timeout   time.Duration
	maxBytes  int64
	userAgent string
}

// NewLoader returns a Loader with a 30s timeout and the default retry policy.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		retry:     resilience.DefaultRetryConfig(),
		timeout:   30 * time.Second,
		maxBytes:  DefaultMaxBytes,
		userAgent: "pin-ingest/1.0",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.http == nil {
		l.http = &http.Client{Timeout: l.timeout}
	}
	if l.retry.OnRetry == nil {
		l.retry.OnRetry = resilience.RetryLogger("source fetch")
	}
	return l
}

// Load resolves ref by scheme. A ref without a scheme is a local path.
func (l *Loader) Load(ctx context.Context, ref string) (*File, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, eris.New("source: empty reference")
	}

	scheme := ""
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}

	var (
		f   *File
		err error
	)
	switch scheme {
	case "", "file":
		f, err = l.loadFile(strings.TrimPrefix(ref, "file://"))
	case "http", "https":
		f, err = l.loadHTTP(ctx, ref)
	case "ftp":
		f, err = l.loadFTP(ctx, ref)
	default:
		return nil, eris.Errorf("source: unsupported scheme %q", scheme)
	}
	if err != nil {
		return nil, err
	}

	if f.Format == "" {
		if format, ferr := parser.FormatFromFileName(f.Name); ferr == nil {
			f.Format = format
		}
	}
	zap.L().Debug("source: loaded",
		zap.String("name", f.Name),
		zap.String("format", string(f.Format)),
		zap.Int("bytes", len(f.Data)),
	)
	return f, nil
}

func (l *Loader) loadFile(p string) (*File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: stat %s", p)
	}
	if info.IsDir() {
		return nil, eris.Errorf("source: %s is a directory", p)
	}
	if info.Size() > l.maxBytes {
		return nil, eris.Errorf("source: %s is %d bytes, limit is %d", p, info.Size(), l.maxBytes)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", p)
	}
	return &File{Name: filepath.Base(p), Data: data}, nil
}

func (l *Loader) loadHTTP(ctx context.Context, rawURL string) (*File, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "source: parse url")
	}

	return resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*File, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "source: create request")
		}
		req.Header.Set("User-Agent", l.userAgent)

		resp, err := l.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "source: GET %s", u.Redacted()), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, resilience.HTTPStatusError("source", resp.StatusCode, body)
		}

		data, err := l.readAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &File{
			Name:   remoteName(u.Path),
			Data:   data,
			Format: formatFromContentType(resp.Header.Get("Content-Type")),
		}, nil
	})
}

// readAll reads r up to maxBytes and rejects anything longer.
func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "source: read body"), 0)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, eris.Errorf("source: upload exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}

func remoteName(p string) string {
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// formatFromContentType maps a response media type to a format, or "".
func formatFromContentType(ct string) parser.Format {
	mt, _, _ := strings.Cut(ct, ";")
	mt = strings.TrimSpace(strings.ToLower(mt))
	switch mt {
	case "text/csv", "text/tab-separated-values":
		return parser.FormatCSV
	case "application/json":
		return parser.FormatJSON
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return parser.FormatXLSX
	}
	return ""
}
