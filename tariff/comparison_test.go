package tariff_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/landed-cost/tariff"
)

func candidate(code string, tradeFinal string) tariff.ComparisonCandidate {
	return tariff.ComparisonCandidate{
		CountryCode: code,
		Result:      tariff.RateQuoteResult{TradeOriginal: dec("100"), TradeFinal: dec(tradeFinal)},
	}
}

func codes(a tariff.ComparisonAnalysis) []string {
	out := make([]string, len(a.RankedResults))
	for i, r := range a.RankedResults {
		out[i] = r.CountryCode
	}
	return out
}

// =============================================================================
// RANKING
// =============================================================================

func TestCompareResults_RanksCheapestFirst(t *testing.T) {
	// GIVEN: Costs A=120, B=100, C=150
	// WHEN: Comparing
	// THEN: B (rank 1, 0%), A (rank 2, 20%), C (rank 3, 50% from best, 25% from A)

	got := tariff.CompareResults([]tariff.ComparisonCandidate{
		candidate("A", "120"),
		candidate("B", "100"),
		candidate("C", "150"),
	}, nil)

	require.Len(t, got.RankedResults, 3)
	assert.Equal(t, []string{"B", "A", "C"}, codes(got))

	b, a, c := got.RankedResults[0], got.RankedResults[1], got.RankedResults[2]
	assert.Equal(t, 1, b.Rank)
	decEqual(t, "0", b.PercentDiffFromBest)
	decEqual(t, "0", b.PercentDiffFromPrevious)

	assert.Equal(t, 2, a.Rank)
	decEqual(t, "20", a.PercentDiffFromBest)
	decEqual(t, "20", a.PercentDiffFromPrevious)

	assert.Equal(t, 3, c.Rank)
	decEqual(t, "50", c.PercentDiffFromBest)
	decEqual(t, "25", c.PercentDiffFromPrevious)
}

func TestCompareResults_PrefersTotalLandedCost(t *testing.T) {
	// A has the lower trade value but freight makes it dearer
	landed := dec("140")
	a := candidate("A", "110")
	a.Result.TotalLandedCost = &landed
	b := candidate("B", "130")

	got := tariff.CompareResults([]tariff.ComparisonCandidate{a, b}, nil)

	assert.Equal(t, []string{"B", "A"}, codes(got))
	decEqual(t, "140", got.RankedResults[1].TotalCost)
}

func TestCompareResults_StableOnTies(t *testing.T) {
	got := tariff.CompareResults([]tariff.ComparisonCandidate{
		candidate("X", "100"),
		candidate("Y", "90"),
		candidate("Z", "100"),
		candidate("W", "100"),
	}, nil)

	assert.Equal(t, []string{"Y", "X", "Z", "W"}, codes(got))
	for i, r := range got.RankedResults {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestCompareResults_PercentDiffMonotone(t *testing.T) {
	got := tariff.CompareResults([]tariff.ComparisonCandidate{
		candidate("A", "310"), candidate("B", "105"), candidate("C", "220"),
		candidate("D", "105.5"), candidate("E", "999"),
	}, nil)

	decEqual(t, "0", got.RankedResults[0].PercentDiffFromBest)
	for i := 1; i < len(got.RankedResults); i++ {
		prev, cur := got.RankedResults[i-1].PercentDiffFromBest, got.RankedResults[i].PercentDiffFromBest
		assert.True(t, cur.GreaterThanOrEqual(prev), "rank %d: %s < %s", i+1, cur, prev)
	}
}

// =============================================================================
// DEGENERATE INPUT
// =============================================================================

func TestCompareResults_Empty(t *testing.T) {
	got := tariff.CompareResults(nil, nil)

	assert.NotNil(t, got.RankedResults)
	assert.NotNil(t, got.ChartData)
	assert.Empty(t, got.RankedResults)
	assert.Empty(t, got.ChartData)
	assert.Nil(t, got.Best())

	// Serializes as empty arrays, not null
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ranked_results":[],"chart_data":[]}`, string(raw))
}

func TestCompareResults_ZeroCheapestCost(t *testing.T) {
	// GIVEN: The cheapest candidate costs nothing
	// THEN: Percent diffs are zero instead of non-finite

	got := tariff.CompareResults([]tariff.ComparisonCandidate{
		candidate("A", "0"), candidate("B", "50"),
	}, nil)

	for _, r := range got.RankedResults {
		assert.True(t, r.PercentDiffFromBest.IsZero())
	}
	assert.True(t, got.RankedResults[1].PercentDiffFromPrevious.IsZero())
}

// =============================================================================
// NAMES AND CHART DATA
// =============================================================================

func TestCompareResults_CountryNames(t *testing.T) {
	named := candidate("DE", "100")
	named.CountryName = "Deutschland"

	got := tariff.CompareResults([]tariff.ComparisonCandidate{
		named,
		candidate("VN", "120"),
		candidate("ZZ", "130"),
	}, map[string]string{"DE": "Germany", "VN": "Vietnam"})

	assert.Equal(t, "Germany", got.RankedResults[0].CountryName)
	assert.Equal(t, "Vietnam", got.RankedResults[1].CountryName)
	assert.Equal(t, "ZZ", got.RankedResults[2].CountryName)
}

func TestCompareResults_ChartDataPerCandidate(t *testing.T) {
	in := []tariff.ComparisonCandidate{candidate("A", "3"), candidate("B", "1"), candidate("C", "2")}

	got := tariff.CompareResults(in, nil)
	again := tariff.CompareResults(in, nil)

	require.Len(t, got.ChartData, 3)
	assert.Equal(t, "B", got.ChartData[0].CountryName)
	assert.True(t, decimal.NewFromInt(1).Equal(got.ChartData[0].Cost))
	assert.Equal(t, tariff.ColorFor(0), got.ChartData[0].Color)
	assert.NotEqual(t, got.ChartData[0].Color, got.ChartData[1].Color)

	for i := range got.ChartData {
		assert.Equal(t, got.ChartData[i].Color, again.ChartData[i].Color)
	}
}

func TestCompareResults_DoesNotMutateInput(t *testing.T) {
	in := []tariff.ComparisonCandidate{candidate("A", "3"), candidate("B", "1")}
	_ = tariff.CompareResults(in, nil)

	assert.Equal(t, "A", in[0].CountryCode)
	assert.Equal(t, "B", in[1].CountryCode)
}
