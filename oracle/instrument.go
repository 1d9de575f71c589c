package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/warp/landed-cost/metrics"
	"github.com/warp/landed-cost/tariff"
	"go.uber.org/zap"
)

// Instrumented records latency and outcome of every quote.
type Instrumented struct {
	provider string
	next     tariff.RateOracle
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

var _ tariff.RateOracle = (*Instrumented)(nil)

func Instrument(provider string, next tariff.RateOracle, m *metrics.Metrics, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{provider: provider, next: next, metrics: m, logger: logger}
}

func (i *Instrumented) Quote(ctx context.Context, req tariff.QuoteRequest) (*tariff.RateQuoteResult, error) {
	start := time.Now()
	res, err := i.next.Quote(ctx, req)
	elapsed := time.Since(start)

	outcome := outcomeOf(err)
	i.metrics.ObserveOracle(i.provider, outcome, elapsed)

	if err != nil {
		i.logger.Debug("quote failed",
			zap.String("provider", i.provider),
			zap.String("importer", req.ImporterCode),
			zap.String("exporter", req.Exporter()),
			zap.String("hs6", req.HS6ProductCode),
			zap.Stringer("date", req.TransactionDate),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
	return res, err
}

// Provider returns the provider name used for labels.
func (i *Instrumented) Provider() string { return i.provider }

// Unwrap returns the wrapped oracle.
func (i *Instrumented) Unwrap() tariff.RateOracle { return i.next }

// TableOf finds the schedule table behind o, looking through
// instrumentation. It reports false for any other provider.
func TableOf(o tariff.RateOracle) (*Table, bool) {
	for {
		switch v := o.(type) {
		case *Table:
			return v, true
		case interface{ Unwrap() tariff.RateOracle }:
			o = v.Unwrap()
		default:
			return nil, false
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, tariff.ErrRateNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, tariff.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeError
	}
}
