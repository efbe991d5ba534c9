package normalize

import (
	"maps"
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/mozillazg/go-unidecode"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Field is a canonical input column.
type Field string

const (
	FieldStreetNumber Field = "street_number"
	FieldStreetName   Field = "street_name"
	FieldUnit         Field = "unit"
	FieldCity         Field = "city"
	FieldProvince     Field = "province"
	FieldPostalCode   Field = "postal_code"
	FieldAddress      Field = "address"
	FieldFirstName    Field = "first_name"
	FieldLastName     Field = "last_name"
	FieldFullName     Field = "name"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldLatitude     Field = "latitude"
	FieldLongitude    Field = "longitude"
)

// Aliases lists the column names accepted for each canonical field.
type Aliases map[Field][]string

// DefaultAliases covers the column names seen in the CSV, JSON, and Excel
// templates users upload.
func DefaultAliases() Aliases {
	return Aliases{
		FieldStreetNumber: {"St Num", "Street Number", "St No", "Street No", "House Number", "Civic Number", "Civic", "Number"},
		FieldStreetName:   {"St Name", "Street Name", "Street", "Road"},
		FieldUnit:         {"Unit", "Unit Number", "Apt", "Apartment", "Suite"},
		FieldCity:         {"City", "Town", "Municipality"},
		FieldProvince:     {"Province", "Prov", "State", "Region"},
		FieldPostalCode:   {"Postal Code", "Postal", "Postcode", "Zip", "Zip Code"},
		FieldAddress:      {"Address", "Full Address", "Street Address", "Location"},
		FieldFirstName:    {"First Name", "Firstname", "Given Name", "First"},
		FieldLastName:     {"Last Name", "Lastname", "Surname", "Family Name", "Last"},
		FieldFullName:     {"Name", "Full Name", "Contact Name", "Reporter"},
		FieldEmail:        {"Email", "E-mail", "Email Address"},
		FieldPhone:        {"Phone", "Phone Number", "Telephone", "Tel", "Mobile", "Cell"},
		FieldLatitude:     {"Latitude", "Lat"},
		FieldLongitude:    {"Longitude", "Lng", "Lon", "Long"},
	}
}

// LoadAliases reads a YAML file of field → alias lists and merges it over
// DefaultAliases. Unknown field names are rejected, as is an alias that
// folds to the same key as another field's.
func LoadAliases(path string) (Aliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: read aliases")
	}

	var extra map[string][]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, eris.Wrap(err, "normalize: parse aliases")
	}

	aliases := DefaultAliases()
	for name, list := range extra {
		f := Field(name)
		if _, ok := aliases[f]; !ok {
			return nil, eris.Errorf("normalize: unknown field %q in aliases", name)
		}
		aliases[f] = append(aliases[f], list...)
	}
	if err := aliases.Validate(); err != nil {
		return nil, err
	}
	return aliases, nil
}

// Validate rejects aliases that two fields would both claim once folded.
func (a Aliases) Validate() error {
	owner := make(map[string]Field)
	for _, f := range slices.Sorted(maps.Keys(a)) {
		for _, name := range append([]string{string(f)}, a[f]...) {
			key := foldKey(name)
			if key == "" {
				continue
			}
			if prev, ok := owner[key]; ok && prev != f {
				return eris.Errorf("normalize: alias %q claimed by both %s and %s", name, prev, f)
			}
			owner[key] = f
		}
	}
	return nil
}

// foldKey reduces a column name to lowercase ASCII letters and digits, so
// "Postal Code", "postal_code", and "Códe Postal" compare sensibly.
func foldKey(s string) string {
	s = unidecode.Unidecode(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// aliasIndex maps folded alias keys to fields.
type aliasIndex map[string]Field

// buildIndex walks fields in name order so that, for unvalidated aliases,
// the same field wins a collision on every run.
func buildIndex(a Aliases) aliasIndex {
	idx := make(aliasIndex)
	for _, f := range slices.Sorted(maps.Keys(a)) {
		idx[foldKey(string(f))] = f
		for _, alias := range a[f] {
			idx[foldKey(alias)] = f
		}
	}
	return idx
}

// minFuzzyLen keeps short keys like "lat" and "tel" from fuzzy-matching
// each other.
const minFuzzyLen = 5

// resolve finds the field for a column name: exact folded match first, then
// a unique alias one edit away.
func (idx aliasIndex) resolve(column string) (Field, bool) {
	key := foldKey(column)
	if key == "" {
		return "", false
	}
	if f, ok := idx[key]; ok {
		return f, true
	}
	if len(key) < minFuzzyLen {
		return "", false
	}

	var found Field
	for alias, f := range idx {
		if len(alias) < minFuzzyLen {
			continue
		}
		if levenshtein.ComputeDistance(key, alias) != 1 {
			continue
		}
		if found != "" && found != f {
			return "", false // ambiguous
		}
		found = f
	}
	return found, found != ""
}
