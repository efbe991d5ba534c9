// Package store persists pins and dead letters in Postgres (PostGIS) or
// SQLite. Both stores implement submit.BulkCreator and
// submit.DeadLetterSink.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
	"github.com/sells-group/pin-ingest/internal/submit"
)

// Store is the persistence interface shared by both drivers.
type Store interface {
	submit.BulkCreator
	submit.DeadLetterSink

	// ListDeadLetters returns replayable entries, oldest first.
	ListDeadLetters(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	GetDeadLetter(ctx context.Context, id string) (*resilience.DLQEntry, error)
	// RecordReplay removes the entry when replayErr is nil and otherwise
	// bumps its retry count.
	RecordReplay(ctx context.Context, id string, replayErr error) error
	CountDeadLetters(ctx context.Context) (int, error)

	CountPins(ctx context.Context) (int, error)

	// Migrate returns the migrations it applied.
	Migrate(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the store for driver. An empty driver is inferred from
// the DSN: postgres:// and postgresql:// URLs select Postgres, anything else
// is a SQLite path.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	if dsn == "" {
		return nil, eris.New("store: database url is required (PIN_STORE_DATABASE_URL)")
	}
	if driver == "" {
		driver = DriverSQLite
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			driver = DriverPostgres
		}
	}

	switch driver {
	case DriverPostgres:
		return NewPostgres(ctx, dsn, nil)
	case DriverSQLite:
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// defaultListLimit caps ListDeadLetters when the filter sets no limit.
const defaultListLimit = 100

func listLimit(f resilience.DLQFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// pinRow flattens a draft into column order shared by both stores (geometry
// excluded).
func pinRow(d model.PinDraft) []any {
	return []any{
		d.ID,
		d.CreatedBy,
		d.Address.FormattedAddress,
		d.Address.UnitNumber,
		d.Address.StreetNumber,
		d.Address.StreetName,
		d.Address.City,
		d.Address.Province,
		d.Address.PostalCode,
		d.Contact.Name,
		d.Contact.Email,
		d.Contact.Phone,
		string(d.Status),
		d.SourceFile,
		d.Row,
	}
}

var pinColumns = []string{
	"id", "created_by", "formatted_address", "unit_number", "street_number",
	"street_name", "city", "province", "postal_code", "contact_name",
	"contact_email", "contact_phone", "status", "source_file", "source_row",
}
