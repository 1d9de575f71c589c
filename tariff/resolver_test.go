package tariff_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/landed-cost/tariff"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// =============================================================================
// SINGLE COMPONENT
// =============================================================================

func TestResolve_SingleComponent(t *testing.T) {
	trade := dec("1000")

	tests := []struct {
		name       string
		components tariff.RawComponents
		wantRate   string
		wantClass  tariff.Classification
		suspended  bool
	}{
		{"suspension", tariff.RawComponents{SuspensionRate: tariff.Percent("2.5")}, "2.5", tariff.ClassSuspended, true},
		{"preferential", tariff.RawComponents{PreferentialRate: tariff.Percent("3")}, "3", tariff.ClassPreferential, false},
		{"mfn", tariff.RawComponents{MFNRate: tariff.Percent("7.2")}, "7.2", tariff.ClassMFN, false},
		{"specific", tariff.RawComponents{SpecificRatePerKg: tariff.Percent("40")}, "4", tariff.ClassSpecificDuty, false},
		{"none", tariff.RawComponents{}, "0", tariff.ClassNoRate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tariff.Resolve(tt.components, trade, nil)
			decEqual(t, tt.wantRate, got.RatePercent)
			assert.Equal(t, tt.wantClass, got.Classification)
			assert.Equal(t, tt.suspended, got.IsSuspended)
		})
	}
}

// =============================================================================
// PRECEDENCE
// =============================================================================

func TestResolve_SuspensionBeatsPreferential(t *testing.T) {
	// GIVEN: Both a 5% suspension and a 10% preferential rate
	// WHEN: Resolving
	// THEN: The suspension wins, never the preferential rate

	got := tariff.Resolve(tariff.RawComponents{
		SuspensionRate:   tariff.Percent("5"),
		PreferentialRate: tariff.Percent("10"),
	}, dec("100"), nil)

	decEqual(t, "5", got.RatePercent)
	assert.Equal(t, tariff.ClassSuspended, got.Classification)
	assert.True(t, got.IsSuspended)
}

func TestResolve_PreferentialBeatsMFN(t *testing.T) {
	got := tariff.Resolve(tariff.RawComponents{
		PreferentialRate:  tariff.Percent("1"),
		MFNRate:           tariff.Percent("8"),
		SpecificRatePerKg: tariff.Percent("3"),
	}, dec("100"), nil)

	decEqual(t, "1", got.RatePercent)
	assert.Equal(t, tariff.ClassPreferential, got.Classification)
}

func TestResolve_CompoundUsesAdValoremOnly(t *testing.T) {
	// GIVEN: MFN 6% plus 2/kg specific on 50kg worth 1000
	// WHEN: Resolving
	// THEN: Only the 6% is reported; the specific part is not folded in

	weight := dec("50")
	got := tariff.Resolve(tariff.RawComponents{
		MFNRate:           tariff.Percent("6"),
		SpecificRatePerKg: tariff.Percent("2"),
	}, dec("1000"), &weight)

	decEqual(t, "6", got.RatePercent)
	assert.Equal(t, tariff.ClassCompound, got.Classification)
	assert.False(t, got.IsSuspended)
}

func TestResolve_PrecedenceIsStrictTotalOrder(t *testing.T) {
	order := []tariff.Classification{
		tariff.ClassSuspended,
		tariff.ClassPreferential,
		tariff.ClassCompound,
		tariff.ClassMFN,
		tariff.ClassSpecificDuty,
		tariff.ClassNoRate,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1].Precedence(), order[i].Precedence(), "%s before %s", order[i-1], order[i])
	}
}

// =============================================================================
// SPECIFIC DUTY CONVERSION
// =============================================================================

func TestResolve_SpecificDutyUsesNetWeight(t *testing.T) {
	// 2/kg * 50kg = 100 on a 1000 trade value -> 10%
	weight := dec("50")
	got := tariff.Resolve(tariff.RawComponents{SpecificRatePerKg: tariff.Percent("2")}, dec("1000"), &weight)

	decEqual(t, "10", got.RatePercent)
	assert.Equal(t, tariff.ClassSpecificDuty, got.Classification)
}

func TestResolve_SpecificDutyMissingWeightCountsOneKilo(t *testing.T) {
	got := tariff.Resolve(tariff.RawComponents{SpecificRatePerKg: tariff.Percent("5")}, dec("200"), nil)
	decEqual(t, "2.5", got.RatePercent)
}

func TestResolve_SpecificDutyZeroTradeValueIsZero(t *testing.T) {
	// GIVEN: A zero trade value
	// THEN: The conversion yields 0 instead of dividing by zero

	weight := dec("10")
	got := tariff.Resolve(tariff.RawComponents{SpecificRatePerKg: tariff.Percent("3")}, decimal.Zero, &weight)

	decEqual(t, "0", got.RatePercent)
	assert.Equal(t, tariff.ClassSpecificDuty, got.Classification)
}

// =============================================================================
// LABELS AND BOUNDS
// =============================================================================

func TestEffectiveRate_Label(t *testing.T) {
	zero := tariff.Resolve(tariff.RawComponents{SuspensionRate: tariff.Percent("0")}, dec("100"), nil)
	assert.Equal(t, "Suspended (0%)", zero.Label())

	partial := tariff.Resolve(tariff.RawComponents{SuspensionRate: tariff.Percent("1.5")}, dec("100"), nil)
	assert.Equal(t, "Suspended", partial.Label())

	mfn := tariff.Resolve(tariff.RawComponents{MFNRate: tariff.Percent("0")}, dec("100"), nil)
	assert.Equal(t, "MFN", mfn.Label())
}

func TestResolve_NeverNegative(t *testing.T) {
	got := tariff.Resolve(tariff.RawComponents{MFNRate: tariff.Percent("-3")}, dec("100"), nil)
	assert.False(t, got.RatePercent.IsNegative())

	specific := tariff.Resolve(tariff.RawComponents{SpecificRatePerKg: tariff.Percent("4")}, dec("-100"), nil)
	assert.False(t, specific.RatePercent.IsNegative())
}

func TestResolveVariant_MatchesRaw(t *testing.T) {
	raw := tariff.RawComponents{MFNRate: tariff.Percent("4"), SpecificRatePerKg: tariff.Percent("1")}

	v := raw.Variant()
	_, isCompound := v.(tariff.Compound)
	assert.True(t, isCompound)

	assert.Equal(t, tariff.Resolve(raw, dec("10"), nil), tariff.ResolveVariant(v, dec("10"), nil))
	assert.Equal(t, tariff.ClassNoRate, tariff.ResolveVariant(nil, dec("10"), nil).Classification)
}
