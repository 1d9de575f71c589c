package tariff

import "github.com/shopspring/decimal"

// =============================================================================
// RATE EFFECTIVENESS RESOLVER
// =============================================================================

// Resolve picks the single effective rate from the raw components.
//
// Precedence, first match wins:
//
//	Suspended > Preferential > Compound (MFN+Specific) > MFN > Specific Duty > No Rate
//
// Resolve is pure and total.
func Resolve(c RawComponents, tradeOriginal decimal.Decimal, netWeight *decimal.Decimal) EffectiveRate {
	return ResolveVariant(c.Variant(), tradeOriginal, netWeight)
}

// ResolveVariant resolves an already-classified component combination.
func ResolveVariant(v RateComponents, tradeOriginal decimal.Decimal, netWeight *decimal.Decimal) EffectiveRate {
	var rate decimal.Decimal
	suspended := false

	switch c := v.(type) {
	case Suspended:
		rate = c.Rate
		suspended = true
	case Preferential:
		rate = c.Rate
	case Compound:
		// Ad-valorem part only. The specific part is charged in money terms
		// by the oracle and shows up in the duty amount, not the percentage.
		rate = c.MFN
	case MFNOnly:
		rate = c.Rate
	case SpecificOnly:
		rate = specificAsPercent(c.PerKg, tradeOriginal, netWeight)
	case NoRate, nil:
		rate = decimal.Zero
	}

	if v == nil {
		v = NoRate{}
	}
	if rate.IsNegative() {
		rate = decimal.Zero
	}

	return EffectiveRate{
		RatePercent:    rate,
		Classification: v.Classification(),
		IsSuspended:    suspended,
	}
}

// specificAsPercent converts a per-kg duty into an ad-valorem equivalent.
// A missing weight counts as one kilogram; a zero trade value yields zero.
func specificAsPercent(perKg, tradeOriginal decimal.Decimal, netWeight *decimal.Decimal) decimal.Decimal {
	if tradeOriginal.IsZero() {
		return decimal.Zero
	}
	weight := decimal.NewFromInt(1)
	if netWeight != nil {
		weight = *netWeight
	}
	return perKg.Mul(weight).Div(tradeOriginal).Mul(hundred)
}
