// Package normalize converts raw upload rows into canonical addresses and
// contacts. Everything here is a pure function of its input: malformed data
// degrades the output but never produces an error.
package normalize

import (
	"strconv"
	"strings"

	"github.com/sells-group/pin-ingest/internal/model"
)

// Placeholder names used when a row identifies no person at all.
const (
	PlaceholderFirstName = "Unknown"
	PlaceholderLastName  = "Reporter"
)

// Normalizer holds the alias table and rule list. It is safe for concurrent
// use; nothing in it changes after New returns.
type Normalizer struct {
	index   aliasIndex
	rules   []Rule
	country string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithAliases replaces the default column aliases.
func WithAliases(a Aliases) Option {
	return func(n *Normalizer) {
		n.index = buildIndex(a)
	}
}

// WithRules replaces the default rule list.
func WithRules(rules ...Rule) Option {
	return func(n *Normalizer) {
		n.rules = rules
	}
}

// WithCountry sets the country literal ending every formatted address.
func WithCountry(country string) Option {
	return func(n *Normalizer) {
		if country != "" {
			n.country = country
		}
	}
}

// New creates a Normalizer with default aliases and rules.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		index:   buildIndex(DefaultAliases()),
		rules:   DefaultRules(),
		country: DefaultCountry,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Country returns the configured country literal.
func (n *Normalizer) Country() string { return n.country }

// fields resolves a record's columns to canonical fields. Exact alias matches
// win over fuzzy ones; within each pass the leftmost column wins.
func (n *Normalizer) fields(rec model.RawRecord) map[Field]string {
	out := make(map[Field]string)
	keys := rec.Keys()

	var unmatched []string
	for _, k := range keys {
		f, ok := n.index[foldKey(k)]
		if !ok {
			unmatched = append(unmatched, k)
			continue
		}
		if _, taken := out[f]; !taken {
			v, _ := rec.Get(k)
			out[f] = v
		}
	}
	for _, k := range unmatched {
		f, ok := n.index.resolve(k)
		if !ok {
			continue
		}
		if _, taken := out[f]; !taken {
			v, _ := rec.Get(k)
			out[f] = v
		}
	}
	return out
}

// Normalize maps one record to a canonical address.
func (n *Normalizer) Normalize(rec model.RawRecord) model.NormalizedAddress {
	return n.normalizeFields(n.fields(rec))
}

func (n *Normalizer) normalizeFields(f map[Field]string) model.NormalizedAddress {
	addr := model.NormalizedAddress{
		UnitNumber:   CleanField(f[FieldUnit]),
		StreetNumber: CleanField(f[FieldStreetNumber]),
		StreetName:   CleanField(f[FieldStreetName]),
		City:         CleanField(f[FieldCity]),
		Province:     CleanField(f[FieldProvince]),
		PostalCode:   CleanField(f[FieldPostalCode]),
	}
	if addr.StreetNumber == "" && addr.StreetName == "" {
		addr.StreetName = CleanField(f[FieldAddress])
	}

	for _, r := range n.rules {
		addr = r.Apply(addr)
	}

	addr.FormattedAddress = Format(addr, n.country)
	return addr
}

// ContactFrom builds the reporter contact for a record, applying the name
// fallback: no names at all gives the placeholder pair, one missing name is
// synthesized from the other with a (first)/(last) marker. The markers are
// for display only.
func (n *Normalizer) ContactFrom(rec model.RawRecord) model.Contact {
	return n.contactFields(n.fields(rec))
}

func (n *Normalizer) contactFields(f map[Field]string) model.Contact {
	first := CleanField(f[FieldFirstName])
	last := CleanField(f[FieldLastName])
	full := CleanField(f[FieldFullName])

	var name string
	switch {
	case first == "" && last == "" && full != "":
		name = full
	default:
		first, last = FallbackNames(first, last)
		name = first + " " + last
	}

	return model.Contact{
		Name:  name,
		Email: strings.TrimSpace(f[FieldEmail]),
		Phone: CleanField(f[FieldPhone]),
	}
}

// FallbackNames fills in missing first/last names.
func FallbackNames(first, last string) (string, string) {
	switch {
	case first == "" && last == "":
		return PlaceholderFirstName, PlaceholderLastName
	case last == "":
		return first, first + " (first)"
	case first == "":
		return last + " (last)", last
	default:
		return first, last
	}
}

// Coordinate returns a coordinate already present in the record, e.g. from a
// point picked on a map. ok is false when the columns are missing,
// unparsable, out of range, or {0,0}.
func (n *Normalizer) Coordinate(rec model.RawRecord) (model.Coordinate, bool) {
	return coordinateFields(n.fields(rec))
}

func coordinateFields(f map[Field]string) (model.Coordinate, bool) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(f[FieldLatitude]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(f[FieldLongitude]), 64)
	if errLat != nil || errLng != nil {
		return model.Coordinate{}, false
	}
	c := model.Coordinate{Latitude: lat, Longitude: lng}
	if !c.Valid() || c.IsZero() {
		return model.Coordinate{}, false
	}
	return c, true
}

// Row is everything the pipeline needs from one record.
type Row struct {
	Address    model.NormalizedAddress
	Contact    model.Contact
	Coordinate model.Coordinate // zero when the record carries none
}

// NormalizeRow resolves columns once and returns address, contact, and any
// pre-known coordinate.
func (n *Normalizer) NormalizeRow(rec model.RawRecord) Row {
	f := n.fields(rec)
	c, _ := coordinateFields(f)
	return Row{
		Address:    n.normalizeFields(f),
		Contact:    n.contactFields(f),
		Coordinate: c,
	}
}
