package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pin-ingest/internal/model"
)

func TestUnitPrefixRule(t *testing.T) {
	tests := []struct {
		in       string
		wantUnit string
		wantNum  string
	}{
		{"B-25 9", "B-25", "9"},
		{"B-25-9", "B-25", "9"},
		{"PH-3 120", "PH-3", "120"},
		{"Suite-A-12 7", "Suite-A-12", "7"},
		{"25 9", "", "25 9"},
		{"B-25", "", "B-25"},
		{"B25 9", "", "B25 9"},
		{"9", "", "9"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := UnitPrefixRule{}.Apply(model.NormalizedAddress{StreetNumber: tt.in})
			assert.Equal(t, tt.wantUnit, got.UnitNumber)
			assert.Equal(t, tt.wantNum, got.StreetNumber)
		})
	}
}

func TestUnitPrefixRule_KeepsExplicitUnit(t *testing.T) {
	got := UnitPrefixRule{}.Apply(model.NormalizedAddress{UnitNumber: "4", StreetNumber: "B-25 9"})
	assert.Equal(t, "4", got.UnitNumber)
	assert.Equal(t, "B-25 9", got.StreetNumber)
}

func TestFirstAvenueRule(t *testing.T) {
	tests := []struct {
		num, street, want string
	}{
		{"1st", "Ave", "First"},
		{"1ST", "Ave S", "First"},
		{"1st", "Avenue Rd", "First"},
		{"1st", "St", "1st"},
		{"2nd", "Ave", "2nd"},
		{"3rd", "Ave", "3rd"},
		{"1", "Ave", "1"},
	}
	for _, tt := range tests {
		got := FirstAvenueRule{}.Apply(model.NormalizedAddress{StreetNumber: tt.num, StreetName: tt.street})
		assert.Equal(t, tt.want, got.StreetNumber, "%s %s", tt.num, tt.street)
	}
}

func TestDefaultRules_NamesAndOrder(t *testing.T) {
	rules := DefaultRules()
	var names []string
	for _, r := range rules {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"unit_prefix", "first_avenue"}, names)
}

func TestWithRules_NoRules(t *testing.T) {
	n := New(WithRules())
	addr := n.Normalize(model.RawRecordFromPairs("St Num", "B-25 9", "St Name", "Main St"))
	assert.Empty(t, addr.UnitNumber)
	assert.Equal(t, "B-25 9 Main St, Canada", addr.FormattedAddress)
}
