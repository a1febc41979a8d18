package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnit(t *testing.T) {
	cases := map[string]Unit{
		"":          UnitPieces,
		"Pcs":       UnitPieces,
		"pcs":       UnitPieces,
		"Piece":     UnitPieces,
		"KG":        UnitKg,
		"kilograms": UnitKg,
		"Hours":     UnitHours,
		"per hour":  UnitHours,
		"DAYS":      UnitDays,
		"1 day":     UnitDays,
		"litre":     UnitPieces,
		"  \t ":     UnitPieces,
		"\x00\xff":  UnitPieces,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeUnit(raw), "input %q", raw)
	}
}

func TestNormalizeUnitIsIdempotent(t *testing.T) {
	inputs := []string{"", "pc", "Kilogram", "hourly", "days", "box", "Pcs", "Kg", "Hours", "Days", "ünït"}
	for _, raw := range inputs {
		once := NormalizeUnit(raw)
		assert.Equal(t, once, NormalizeUnit(string(once)), "input %q", raw)
	}
}

func TestNormalizeBillingFrequency(t *testing.T) {
	valid := map[string]BillingFrequency{
		"Monthly":   FrequencyMonthly,
		"monthly":   FrequencyMonthly,
		"Month":     FrequencyMonthly,
		"QUARTERLY": FrequencyQuarterly,
		"quarter":   FrequencyQuarterly,
		"Yearly":    FrequencyYearly,
		" year ":    FrequencyYearly,
	}
	for raw, want := range valid {
		got := NormalizeBillingFrequency(raw)
		require.NotNil(t, got, "input %q", raw)
		assert.Equal(t, want, *got)
	}
	for _, raw := range []string{"", "Daily", "Weekly", "fortnightly", "Month(s)"} {
		assert.Nil(t, NormalizeBillingFrequency(raw), "input %q", raw)
	}
}

func TestNormalizeDiscountType(t *testing.T) {
	assert.Equal(t, DiscountFixed, NormalizeDiscountType("fixed"))
	assert.Equal(t, DiscountFixed, NormalizeDiscountType("Fixed"))
	assert.Equal(t, DiscountFixed, NormalizeDiscountType("amount"))
	assert.Equal(t, DiscountPercent, NormalizeDiscountType("%"))
	assert.Equal(t, DiscountPercent, NormalizeDiscountType("percent"))
	assert.Equal(t, DiscountPercent, NormalizeDiscountType(""))
	assert.Equal(t, DiscountPercent, NormalizeDiscountType("something else"))
}
