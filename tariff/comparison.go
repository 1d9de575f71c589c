package tariff

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPARISON ENGINE - Rank already-resolved results by landed cost
// =============================================================================

// chartPalette colors chart bars by rank position.
var chartPalette = []string{
	"#2563eb", // blue
	"#16a34a", // green
	"#f59e0b", // amber
	"#dc2626", // red
	"#7c3aed", // violet
	"#0891b2", // cyan
	"#db2777", // pink
	"#65a30d", // lime
	"#ea580c", // orange
	"#475569", // slate
}

// ColorFor returns the chart color for a zero-based sorted position.
func ColorFor(position int) string {
	if position < 0 {
		position = -position
	}
	return chartPalette[position%len(chartPalette)]
}

// CompareResults ranks candidates by total landed cost, cheapest first.
//
// The sort is stable: candidates with equal cost keep their input order.
// Names come from countryNames when present, then the candidate, then the
// code itself. Empty input gives an empty, non-nil analysis.
func CompareResults(candidates []ComparisonCandidate, countryNames map[string]string) ComparisonAnalysis {
	analysis := ComparisonAnalysis{
		RankedResults: make([]RankedComparisonResult, 0, len(candidates)),
		ChartData:     make([]ChartPoint, 0, len(candidates)),
	}
	if len(candidates) == 0 {
		return analysis
	}

	type costed struct {
		candidate ComparisonCandidate
		cost      decimal.Decimal
	}
	sorted := make([]costed, len(candidates))
	for i, c := range candidates {
		sorted[i] = costed{candidate: c, cost: c.Result.TotalCost()}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].cost.LessThan(sorted[j].cost)
	})

	cheapest := sorted[0].cost
	for i, s := range sorted {
		previous := s.cost
		if i > 0 {
			previous = sorted[i-1].cost
		}
		name := countryName(s.candidate, countryNames)

		analysis.RankedResults = append(analysis.RankedResults, RankedComparisonResult{
			Rank:                    i + 1,
			CountryCode:             s.candidate.CountryCode,
			CountryName:             name,
			Result:                  s.candidate.Result,
			TotalCost:               s.cost,
			PercentDiffFromBest:     percentDiff(s.cost, cheapest),
			PercentDiffFromPrevious: percentDiff(s.cost, previous),
		})
		analysis.ChartData = append(analysis.ChartData, ChartPoint{
			CountryName: name,
			Cost:        s.cost,
			Color:       ColorFor(i),
		})
	}
	return analysis
}

// percentDiff is (cost - base) / base * 100, or zero when base is zero.
func percentDiff(cost, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return cost.Sub(base).Div(base).Mul(hundred)
}

func countryName(c ComparisonCandidate, names map[string]string) string {
	if n, ok := names[c.CountryCode]; ok && n != "" {
		return n
	}
	if c.CountryName != "" {
		return c.CountryName
	}
	return c.CountryCode
}
