/*
Package tariff provides the landed-cost calculation core.

PURPOSE:
  This package contains the algorithms that turn raw tariff quotes into
  numbers an importer can act on. Whether the question is "what did this
  route cost over the last five years?" or "which source country is the
  cheapest today?", the same small set of types flows through every step.

KEY CONCEPTS IN THIS FILE (types.go):
  - RawComponents: Optional rate components as returned by the Rate Oracle
  - RateComponents: The same components as a closed tagged variant
  - QuoteRequest / RateQuoteResult: One oracle round trip
  - EffectiveRate: The single rate chosen by precedence
  - YearSeries / ComparisonAnalysis: Outputs of the two orchestrations

DESIGN PRINCIPLES:
  1. Transience: Every output is freshly built per call, never cached
  2. Precision: Uses decimal.Decimal for money and percentages
  3. Calendar dates: Uses civil.Date, so no time zone can shift a query date
  4. Totality: The pure functions never fail, degenerate inputs are guarded

USAGE:
  rate := tariff.Resolve(result.Components, result.TradeOriginal, result.NetWeight)
  fmt.Println(rate.Label(), rate.RatePercent)

SEE ALSO:
  - resolver.go: Precedence rules
  - suspension.go: Year to query-date mapping
  - series.go: Multi-year orchestration
  - comparison.go: Multi-country ranking
*/
package tariff

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE COMPONENTS - Raw optional encoding (wire format)
// =============================================================================

// RawComponents carries the rate components exactly as the Rate Oracle
// reports them. Any subset may be present.
type RawComponents struct {
	SuspensionRate    *decimal.Decimal `json:"suspension_rate,omitempty"`
	PreferentialRate  *decimal.Decimal `json:"preferential_rate,omitempty"`
	MFNRate           *decimal.Decimal `json:"mfn_rate,omitempty"`
	SpecificRatePerKg *decimal.Decimal `json:"specific_rate_per_kg,omitempty"`
}

// Variant collapses the optional fields into the single active component
// combination, applying the precedence order.
func (c RawComponents) Variant() RateComponents {
	switch {
	case c.SuspensionRate != nil:
		return Suspended{Rate: *c.SuspensionRate}
	case c.PreferentialRate != nil:
		return Preferential{Rate: *c.PreferentialRate}
	case c.MFNRate != nil && c.SpecificRatePerKg != nil:
		return Compound{MFN: *c.MFNRate, SpecificPerKg: *c.SpecificRatePerKg}
	case c.MFNRate != nil:
		return MFNOnly{Rate: *c.MFNRate}
	case c.SpecificRatePerKg != nil:
		return SpecificOnly{PerKg: *c.SpecificRatePerKg}
	default:
		return NoRate{}
	}
}

// =============================================================================
// RATE COMPONENTS - Tagged variant
// =============================================================================

// RateComponents is the closed set of active component combinations.
// Only types in this package implement it.
type RateComponents interface {
	Classification() Classification
	sealed()
}

type (
	Suspended    struct{ Rate decimal.Decimal }
	Preferential struct{ Rate decimal.Decimal }
	Compound     struct{ MFN, SpecificPerKg decimal.Decimal }
	MFNOnly      struct{ Rate decimal.Decimal }
	SpecificOnly struct{ PerKg decimal.Decimal }
	NoRate       struct{}
)

func (Suspended) Classification() Classification    { return ClassSuspended }
func (Preferential) Classification() Classification { return ClassPreferential }
func (Compound) Classification() Classification     { return ClassCompound }
func (MFNOnly) Classification() Classification      { return ClassMFN }
func (SpecificOnly) Classification() Classification { return ClassSpecificDuty }
func (NoRate) Classification() Classification       { return ClassNoRate }

func (Suspended) sealed()    {}
func (Preferential) sealed() {}
func (Compound) sealed()     {}
func (MFNOnly) sealed()      {}
func (SpecificOnly) sealed() {}
func (NoRate) sealed()       {}

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Classification string

const (
	ClassSuspended    Classification = "Suspended"
	ClassPreferential Classification = "Preferential"
	ClassCompound     Classification = "Compound (MFN+Specific)"
	ClassMFN          Classification = "MFN"
	ClassSpecificDuty Classification = "Specific Duty"
	ClassNoRate       Classification = "No Rate"
)

// Precedence returns the rank of the classification in the strict total
// order used by Resolve. Lower wins; unknown values sort last.
func (c Classification) Precedence() int {
	switch c {
	case ClassSuspended:
		return 0
	case ClassPreferential:
		return 1
	case ClassCompound:
		return 2
	case ClassMFN:
		return 3
	case ClassSpecificDuty:
		return 4
	case ClassNoRate:
		return 5
	default:
		return 6
	}
}

// =============================================================================
// EFFECTIVE RATE
// =============================================================================

type EffectiveRate struct {
	RatePercent    decimal.Decimal `json:"rate_percent"`
	Classification Classification  `json:"classification"`
	IsSuspended    bool            `json:"is_suspended"`
}

// Label is the display form of the classification.
func (r EffectiveRate) Label() string {
	if r.IsSuspended && r.RatePercent.IsZero() {
		return "Suspended (0%)"
	}
	return string(r.Classification)
}

// =============================================================================
// ORACLE ROUND TRIP
// =============================================================================

// QuoteRequest is one question to the Rate Oracle. ExporterCode nil means
// "any origin" (no preferential agreement applies).
type QuoteRequest struct {
	ImporterCode     string           `json:"importer_code"`
	ExporterCode     *string          `json:"exporter_code,omitempty"`
	HS6ProductCode   string           `json:"hs6_product_code"`
	TradeOriginal    decimal.Decimal  `json:"trade_original"`
	TransactionDate  civil.Date       `json:"transaction_date"`
	NetWeight        *decimal.Decimal `json:"net_weight,omitempty"`
	IncludeFreight   bool             `json:"include_freight"`
	IncludeInsurance bool             `json:"include_insurance"`
}

// Exporter returns the exporter code or "" when unset.
func (q QuoteRequest) Exporter() string {
	if q.ExporterCode == nil {
		return ""
	}
	return *q.ExporterCode
}

// WithDate returns a copy of the request for another transaction date.
func (q QuoteRequest) WithDate(d civil.Date) QuoteRequest {
	q.TransactionDate = d
	return q
}

// WithExporter returns a copy of the request for another source country.
func (q QuoteRequest) WithExporter(code string) QuoteRequest {
	q.ExporterCode = &code
	return q
}

// RateQuoteResult is one Rate Oracle response.
type RateQuoteResult struct {
	Request         QuoteRequest     `json:"request"`
	TradeOriginal   decimal.Decimal  `json:"trade_original"`
	NetWeight       *decimal.Decimal `json:"net_weight,omitempty"`
	Components      RawComponents    `json:"components"`
	TradeFinal      decimal.Decimal  `json:"trade_final"`
	Freight         *decimal.Decimal `json:"freight,omitempty"`
	Insurance       *decimal.Decimal `json:"insurance,omitempty"`
	TotalLandedCost *decimal.Decimal `json:"total_landed_cost,omitempty"`
}

// TotalCost is the landed cost when reported, else the final trade value.
func (r RateQuoteResult) TotalCost() decimal.Decimal {
	if r.TotalLandedCost != nil {
		return *r.TotalLandedCost
	}
	return r.TradeFinal
}

// Duty is the amount added on top of the original trade value.
func (r RateQuoteResult) Duty() decimal.Decimal {
	return r.TradeFinal.Sub(r.TradeOriginal)
}

// =============================================================================
// YEAR SERIES
// =============================================================================

type YearSeriesPoint struct {
	Year           int             `json:"year"`
	QueryDate      civil.Date      `json:"query_date"`
	RatePercent    decimal.Decimal `json:"rate_percent"`
	Classification Classification  `json:"classification"`
	DutyAmount     decimal.Decimal `json:"duty_amount"`
}

type YearSeries struct {
	Series       []YearSeriesPoint  `json:"series"`
	LastResult   *RateQuoteResult   `json:"last_result,omitempty"`
	MissingYears []MissingYearError `json:"missing_years"`
}

// Years lists the years that produced a point, ascending.
func (s *YearSeries) Years() []int {
	years := make([]int, len(s.Series))
	for i, p := range s.Series {
		years[i] = p.Year
	}
	return years
}

// =============================================================================
// COMPARISON
// =============================================================================

type ComparisonCandidate struct {
	CountryCode string          `json:"country_code"`
	CountryName string          `json:"country_name"`
	Result      RateQuoteResult `json:"result"`
}

type RankedComparisonResult struct {
	Rank                    int             `json:"rank"`
	CountryCode             string          `json:"country_code"`
	CountryName             string          `json:"country_name"`
	Result                  RateQuoteResult `json:"result"`
	TotalCost               decimal.Decimal `json:"total_cost"`
	PercentDiffFromBest     decimal.Decimal `json:"percent_diff_from_best"`
	PercentDiffFromPrevious decimal.Decimal `json:"percent_diff_from_previous"`
}

type ChartPoint struct {
	CountryName string          `json:"country_name"`
	Cost        decimal.Decimal `json:"cost"`
	Color       string          `json:"color"`
}

type ComparisonAnalysis struct {
	RankedResults []RankedComparisonResult `json:"ranked_results"`
	ChartData     []ChartPoint             `json:"chart_data"`
}

// Best returns the cheapest result, or nil for an empty analysis.
func (a ComparisonAnalysis) Best() *RankedComparisonResult {
	if len(a.RankedResults) == 0 {
		return nil
	}
	return &a.RankedResults[0]
}

// =============================================================================
// HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Percent returns a pointer to a decimal parsed from s, or nil when s is
// not a valid decimal. Handy for building RawComponents in code.
func Percent(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
