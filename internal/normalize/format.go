package normalize

import (
	"strings"

	"github.com/sells-group/pin-ingest/internal/model"
)

// DefaultCountry is appended to every formatted address.
const DefaultCountry = "Canada"

const (
	unitMarker   = "(apt)"
	streetMarker = "(st.)"
)

// Format derives the display address from the sub-fields:
//
//	{unit} (apt) {number} (st.) {street}, {city}, {province} {postal}, {country}
//
// The unit segment and both markers are omitted when there is no unit. Empty
// sub-fields leave no dangling separators.
func Format(addr model.NormalizedAddress, country string) string {
	var street string
	if addr.UnitNumber != "" {
		street = addr.UnitNumber + " " + unitMarker + " " + addr.StreetNumber + " " + streetMarker + " " + addr.StreetName
	} else {
		street = addr.StreetNumber + " " + addr.StreetName
	}
	raw := street + ", " + addr.City + ", " + addr.Province + " " + addr.PostalCode + ", " + country
	return collapseSegments(raw)
}

// Decompose splits a formatted address back into sub-fields such that
// Format(Decompose(s, c), c) == s for every s produced by Format. Where the
// split is ambiguous (empty sub-fields were dropped), text is assigned so
// that it re-renders in the same position.
func Decompose(formatted, country string) model.NormalizedAddress {
	var addr model.NormalizedAddress

	segs := strings.Split(collapseSegments(formatted), ", ")
	if len(segs) == 1 && segs[0] == "" {
		segs = nil
	}
	if n := len(segs); n > 0 && segs[n-1] == country {
		segs = segs[:n-1]
	}
	if len(segs) == 0 {
		addr.FormattedAddress = Format(addr, country)
		return addr
	}

	addr.UnitNumber, addr.StreetNumber, addr.StreetName = splitStreet(segs[0])

	rest := segs[1:]
	switch {
	case len(rest) == 1:
		addr.City = rest[0]
	case len(rest) >= 2:
		addr.City = strings.Join(rest[:len(rest)-1], ", ")
		last := rest[len(rest)-1]
		addr.Province, addr.PostalCode, _ = strings.Cut(last, " ")
	}

	addr.FormattedAddress = Format(addr, country)
	return addr
}

// splitStreet parses the first segment of a formatted address. The unit form
// is recognised only when both markers appear in order after a non-empty unit.
func splitStreet(seg string) (unit, number, name string) {
	if before, after, ok := strings.Cut(seg, unitMarker); ok {
		u := strings.TrimSpace(before)
		if num, street, ok := strings.Cut(after, streetMarker); ok && u != "" {
			return u, strings.TrimSpace(num), strings.TrimSpace(street)
		}
	}
	number, name, _ = strings.Cut(seg, " ")
	return "", number, name
}

// Reformat re-derives a formatted address from its own sub-fields.
func Reformat(formatted, country string) string {
	return Format(Decompose(formatted, country), country)
}
