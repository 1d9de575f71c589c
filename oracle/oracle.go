// Package oracle provides Rate Oracle implementations: a JSON-over-HTTP
// client for a remote quoting service and a schedule-driven table for
// development, demos and tests.
package oracle

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/warp/landed-cost/metrics"
	"github.com/warp/landed-cost/tariff"
	"go.uber.org/zap"
)

// Provider names accepted by NewByName.
const (
	ProviderTable = "table"
	ProviderHTTP  = "http"
)

// Options configures NewByName. Fields that do not apply to the selected
// provider are ignored.
type Options struct {
	// HTTP provider
	BaseURL    string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client

	// Table provider
	Schedules        []Schedule
	FreightPercent   string
	InsurancePercent string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewByName returns an instrumented RateOracle by provider name.
// An empty name selects the table provider.
func NewByName(name string, opts Options) (tariff.RateOracle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := strings.ToLower(strings.TrimSpace(name))
	var o tariff.RateOracle
	switch provider {
	case ProviderTable, "":
		provider = ProviderTable
		t, err := NewTable(opts.Schedules, opts.FreightPercent, opts.InsurancePercent)
		if err != nil {
			return nil, err
		}
		o = t
	case ProviderHTTP:
		if strings.TrimSpace(opts.BaseURL) == "" {
			return nil, fmt.Errorf("oracle provider %q requires a base URL", name)
		}
		o = NewHTTP(opts.BaseURL, HTTPOptions{
			Timeout: opts.Timeout,
			RPS:     opts.RPS,
			Burst:   opts.Burst,
			Client:  opts.HTTPClient,
			Logger:  logger.Named("http"),
		})
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", name)
	}

	return Instrument(provider, o, opts.Metrics, logger), nil
}
