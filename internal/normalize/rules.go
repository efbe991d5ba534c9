package normalize

import (
	"regexp"
	"strings"

	"github.com/sells-group/pin-ingest/internal/model"
)

// Rule is one targeted rewrite of a partially normalized address. Rules run
// in order after field cleaning and before formatting; each must leave
// addresses it does not match untouched.
type Rule interface {
	Name() string
	Apply(addr model.NormalizedAddress) model.NormalizedAddress
}

// DefaultRules returns the rules applied to every row.
func DefaultRules() []Rule {
	return []Rule{UnitPrefixRule{}, FirstAvenueRule{}}
}

// unitPrefixRe matches "B-25 9" or "PH-3-120": a letter/hyphen prefix ending
// in -digits, then a space or hyphen and the street number.
var unitPrefixRe = regexp.MustCompile(`^([A-Za-z][A-Za-z-]*-\d+)[ -](\d+)$`)

// UnitPrefixRule splits a hyphenated unit prefix off the street number.
type UnitPrefixRule struct{}

// Name implements Rule.
func (UnitPrefixRule) Name() string { return "unit_prefix" }

// Apply implements Rule.
func (UnitPrefixRule) Apply(addr model.NormalizedAddress) model.NormalizedAddress {
	if addr.UnitNumber != "" {
		return addr
	}
	m := unitPrefixRe.FindStringSubmatch(addr.StreetNumber)
	if m == nil {
		return addr
	}
	addr.UnitNumber = m[1]
	addr.StreetNumber = m[2]
	return addr
}

// FirstAvenueRule rewrites street number "1st" on an avenue to "First".
// Source data encodes First Avenue this way; other ordinals are left alone.
type FirstAvenueRule struct{}

// Name implements Rule.
func (FirstAvenueRule) Name() string { return "first_avenue" }

// Apply implements Rule.
func (FirstAvenueRule) Apply(addr model.NormalizedAddress) model.NormalizedAddress {
	if strings.EqualFold(addr.StreetNumber, "1st") && strings.Contains(addr.StreetName, "Ave") {
		addr.StreetNumber = "First"
	}
	return addr
}
