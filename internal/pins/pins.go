// Package pins turns normalized rows into pending pin drafts.
package pins

import (
	"github.com/google/uuid"

	"github.com/sells-group/pin-ingest/internal/model"
)

// Input is everything known about one row before submission.
type Input struct {
	Address    model.NormalizedAddress
	Contact    model.Contact
	Caller     string
	SourceFile string
	Row        int

	// Coordinate is a pre-known location from the upload. Zero means the
	// draft still needs geocoding.
	Coordinate model.Coordinate
}

// Build creates a pending draft with a fresh ID.
func Build(in Input) model.PinDraft {
	return model.PinDraft{
		ID:         uuid.NewString(),
		CreatedBy:  in.Caller,
		Address:    in.Address,
		Coordinate: in.Coordinate,
		Contact:    in.Contact,
		Status:     model.PinStatusPending,
		SourceFile: in.SourceFile,
		Row:        in.Row,
	}
}

// NeedsGeocode reports whether d is unresolved and has an address to look up.
// A row with no location fields stays at {0,0} rather than resolving to the
// country centroid.
func NeedsGeocode(d model.PinDraft) bool {
	return d.Coordinate.IsZero() && d.Address.HasLocation()
}

// WithCoordinate returns a copy of d located at c.
func WithCoordinate(d model.PinDraft, c model.Coordinate) model.PinDraft {
	d.Coordinate = c
	return d
}

// Pending returns the indexes of drafts that need geocoding, in order,
// alongside their addresses.
func Pending(drafts []model.PinDraft) (idx []int, addresses []string) {
	for i, d := range drafts {
		if NeedsGeocode(d) {
			idx = append(idx, i)
			addresses = append(addresses, d.Address.FormattedAddress)
		}
	}
	return idx, addresses
}
