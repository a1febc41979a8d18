package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// Unit is the measurement unit of a line item.
type Unit string

const (
	UnitPieces Unit = "Pcs"
	UnitKg     Unit = "Kg"
	UnitHours  Unit = "Hours"
	UnitDays   Unit = "Days"
)

// BillingFrequency is the repeat interval of a recurring invoice.
type BillingFrequency string

const (
	FrequencyMonthly   BillingFrequency = "Monthly"
	FrequencyQuarterly BillingFrequency = "Quarterly"
	FrequencyYearly    BillingFrequency = "Yearly"
)

// DiscountType selects how a document discount is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// unitMatchers are checked in order; the first matching fragment wins.
var unitMatchers = []struct {
	fragments []string
	unit      Unit
}{
	{[]string{"pc", "piece"}, UnitPieces},
	{[]string{"kg", "kilogram"}, UnitKg},
	{[]string{"hour"}, UnitHours},
	{[]string{"day"}, UnitDays},
}

var frequencyAliases = map[string]BillingFrequency{
	"monthly":   FrequencyMonthly,
	"month":     FrequencyMonthly,
	"quarterly": FrequencyQuarterly,
	"quarter":   FrequencyQuarterly,
	"yearly":    FrequencyYearly,
	"year":      FrequencyYearly,
}

// NormalizeUnit maps free-form unit input onto the fixed vocabulary, defaulting to Pcs.
func NormalizeUnit(raw string) Unit {
	switch Unit(raw) {
	case UnitPieces, UnitKg, UnitHours, UnitDays:
		return Unit(raw)
	}
	lowered := foldString(raw)
	if lowered == "" {
		return UnitPieces
	}
	for _, m := range unitMatchers {
		for _, fragment := range m.fragments {
			if strings.Contains(lowered, fragment) {
				return m.unit
			}
		}
	}
	return UnitPieces
}

// NormalizeBillingFrequency returns nil for empty or unsupported input, including Daily and Weekly.
func NormalizeBillingFrequency(raw string) *BillingFrequency {
	switch BillingFrequency(raw) {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		freq := BillingFrequency(raw)
		return &freq
	}
	freq, ok := frequencyAliases[foldString(raw)]
	if !ok {
		return nil
	}
	return &freq
}

// NormalizeDiscountType maps fixed/Fixed/amount to fixed and everything else to percent.
func NormalizeDiscountType(raw string) DiscountType {
	switch foldString(raw) {
	case "fixed", "amount":
		return DiscountFixed
	}
	return DiscountPercent
}

// foldString lowercases for comparison. Casers carry state, so one is built per call.
func foldString(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
