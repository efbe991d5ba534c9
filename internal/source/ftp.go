package source

import (
	"context"
	"net"
	"net/url"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/resilience"
)

// ftpTarget is a parsed ftp:// reference.
type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL extracts host (with port), path and credentials from an FTP
// URL. Credentials default to anonymous.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "source: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("source: expected ftp scheme, got %q", u.Scheme)
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if t.path == "" || t.path == "/" {
		return ftpTarget{}, eris.New("source: empty path in ftp url")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

func (l *Loader) loadFTP(ctx context.Context, rawURL string) (*File, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	return resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*File, error) {
		zap.L().Debug("source: ftp connecting", zap.String("host", t.host), zap.String("path", t.path))

		conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(l.timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "source: ftp dial"), 0)
		}
		defer conn.Quit() //nolint:errcheck

		if err := conn.Login(t.user, t.password); err != nil {
			return nil, eris.Wrap(err, "source: ftp login")
		}

		resp, err := conn.Retr(t.path)
		if err != nil {
			return nil, eris.Wrapf(err, "source: ftp retrieve %s", t.path)
		}
		defer resp.Close() //nolint:errcheck

		data, err := l.readAll(resp)
		if err != nil {
			return nil, err
		}
		return &File{Name: remoteName(t.path), Data: data}, nil
	})
}
