/*
series.go - Multi-year rate series for one route

PURPOSE:
  Answers "how did the duty on this route move over the years?" by asking
  the Rate Oracle once per calendar year and resolving each answer to an
  effective rate.

KEY INSIGHT:
  A year has many possible query dates. Asking on an arbitrary day can miss
  a temporary suspension entirely, so the query date for each year comes
  from BuildYearDateMap, which samples the suspension windows.

PROCESS:
  1. Build the year -> query date map
  2. For each year ascending, issue ONE oracle call with that date
  3. Success: resolve the rate, append a point, remember the result
  4. Failure: record a MissingYearError and move on

PARTIAL FAILURE:
  A failed year never aborts the batch. The loop is a fold over the year
  range producing (series, missingYears) with no early exit. Only the
  caller's context being cancelled stops it, and then nothing is returned.

ORDERING:
  Years run strictly one after another. There is no fan-out, so the series
  is chronological by construction and the oracle sees at most one request
  from this loop at a time.

EXAMPLE:
  calc := &Calculator{Oracle: oracle, RequestTimeout: 10 * time.Second}
  out, err := calc.ComputeYearSeries(ctx, base, intervals, 2020, 2024)
  for _, m := range out.MissingYears {
      fmt.Println("no data:", m.Year, m.Reason)
  }

SEE ALSO:
  - suspension.go: Query date selection
  - resolver.go: Effective rate
*/
package tariff

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// YEAR SERIES CALCULATOR
// =============================================================================

// Calculator drives one oracle call per year.
type Calculator struct {
	Oracle RateOracle

	// RequestTimeout bounds each oracle call. A timed-out year becomes a
	// MissingYearError instead of hanging the batch. Zero means no bound.
	RequestTimeout time.Duration

	Logger *zap.Logger
}

// ComputeYearSeries runs the sequential per-year batch.
//
// Guarantees on success:
//   - Series is strictly ascending by year
//   - len(Series) + len(MissingYears) == endYear - startYear + 1
//   - LastResult is the response of the latest successful year
func (c *Calculator) ComputeYearSeries(
	ctx context.Context,
	base QuoteRequest,
	intervals []SuspensionInterval,
	startYear, endYear int,
) (*YearSeries, error) {
	if startYear > endYear {
		return nil, ErrInvalidYearRange
	}
	if c.Oracle == nil {
		return nil, ErrOracleRequired
	}
	logger := c.logger()

	// 1. Query dates
	dates := BuildYearDateMap(intervals, startYear, endYear)

	out := &YearSeries{
		Series:       make([]YearSeriesPoint, 0, len(dates)),
		MissingYears: []MissingYearError{},
	}

	// 2. One call per year, ascending
	for year := startYear; year <= endYear; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := dates[year]

		result, err := c.quote(ctx, base.WithDate(date))
		if err != nil {
			// The caller gave up; the partial series is stale.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Debug("year missing",
				zap.Int("year", year),
				zap.Stringer("query_date", date),
				zap.Error(err))
			out.MissingYears = append(out.MissingYears, MissingYearError{Year: year, Reason: err.Error()})
			continue
		}

		// 3. Resolve and record
		rate := Resolve(result.Components, result.TradeOriginal, result.NetWeight)
		out.Series = append(out.Series, YearSeriesPoint{
			Year:           year,
			QueryDate:      date,
			RatePercent:    rate.RatePercent,
			Classification: rate.Classification,
			DutyAmount:     result.Duty(),
		})
		out.LastResult = result
	}

	logger.Info("year series computed",
		zap.String("importer", base.ImporterCode),
		zap.String("exporter", base.Exporter()),
		zap.String("hs6", base.HS6ProductCode),
		zap.Int("points", len(out.Series)),
		zap.Int("missing", len(out.MissingYears)))

	return out, nil
}

func (c *Calculator) quote(ctx context.Context, req QuoteRequest) (*RateQuoteResult, error) {
	if c.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
	}
	result, err := c.Oracle.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrRateNotFound
	}
	return result, nil
}

func (c *Calculator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
