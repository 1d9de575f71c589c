package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/warp/landed-cost/tariff"
)

// AnyExporter matches every exporter in a Schedule.
const AnyExporter = "*"

// =============================================================================
// SCHEDULE - Dated rate components for one route and product
// =============================================================================

// Schedule lists the rate windows for (importer, exporter, hs6).
// ExporterCode AnyExporter applies when no exporter-specific schedule exists.
type Schedule struct {
	ImporterCode   string
	ExporterCode   string
	HS6ProductCode string
	Windows        []RateWindow
}

// RateWindow is a set of components valid in [ValidFrom, ValidTo].
type RateWindow struct {
	ValidFrom  civil.Date
	ValidTo    *civil.Date
	Components tariff.RawComponents
}

func (w RateWindow) contains(d civil.Date) bool {
	return tariff.SuspensionInterval{ValidFrom: w.ValidFrom, ValidTo: w.ValidTo}.Contains(d)
}

type routeKey struct {
	importer, exporter, hs6 string
}

// =============================================================================
// TABLE ORACLE
// =============================================================================

// Table is a deterministic RateOracle backed by in-memory schedules.
//
// Duty on a quote:
//   - ad-valorem components: trade value x rate / 100
//   - specific components:   per-kg amount x net weight (1 kg if unknown)
//
// Freight and insurance are fixed percentages of the trade value, added
// only when the request asks for them.
type Table struct {
	mu               sync.RWMutex
	schedules        map[routeKey][]RateWindow
	freightPercent   decimal.Decimal
	insurancePercent decimal.Decimal
}

var _ tariff.RateOracle = (*Table)(nil)

// NewTable builds a table oracle. Percentages are decimal strings; empty
// strings mean zero.
func NewTable(schedules []Schedule, freightPercent, insurancePercent string) (*Table, error) {
	freight, err := parsePercent("freight", freightPercent)
	if err != nil {
		return nil, err
	}
	insurance, err := parsePercent("insurance", insurancePercent)
	if err != nil {
		return nil, err
	}

	t := &Table{
		schedules:        make(map[routeKey][]RateWindow),
		freightPercent:   freight,
		insurancePercent: insurance,
	}
	for _, s := range schedules {
		t.Add(s)
	}
	return t, nil
}

// Add merges a schedule into the table.
func (t *Table) Add(s Schedule) {
	k := keyOf(s)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedules[k] = append(t.schedules[k], s.Windows...)
}

// Replace swaps every schedule at once. Quotes see either the old set or
// the new one, never a partial table.
func (t *Table) Replace(schedules []Schedule) {
	next := make(map[routeKey][]RateWindow, len(schedules))
	for _, s := range schedules {
		k := keyOf(s)
		next[k] = append(next[k], s.Windows...)
	}

	t.mu.Lock()
	t.schedules = next
	t.mu.Unlock()
}

func keyOf(s Schedule) routeKey {
	exporter := strings.ToUpper(strings.TrimSpace(s.ExporterCode))
	if exporter == "" {
		exporter = AnyExporter
	}
	return routeKey{
		importer: strings.ToUpper(strings.TrimSpace(s.ImporterCode)),
		exporter: exporter,
		hs6:      strings.TrimSpace(s.HS6ProductCode),
	}
}

// Quote answers from the schedules.
func (t *Table) Quote(ctx context.Context, req tariff.QuoteRequest) (*tariff.RateQuoteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", tariff.ErrTransport, err)
	}

	window, ok := t.lookup(req)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s, hs6 %s on %s", tariff.ErrRateNotFound,
			orAny(req.Exporter()), req.ImporterCode, req.HS6ProductCode, req.TransactionDate)
	}

	trade := req.TradeOriginal
	duty := dutyFor(window.Components.Variant(), trade, req.NetWeight)

	res := &tariff.RateQuoteResult{
		Request:       req,
		TradeOriginal: trade,
		NetWeight:     req.NetWeight,
		Components:    window.Components,
		TradeFinal:    trade.Add(duty),
	}

	if req.IncludeFreight || req.IncludeInsurance {
		total := res.TradeFinal
		if req.IncludeFreight {
			f := percentOf(trade, t.freightPercent)
			res.Freight = &f
			total = total.Add(f)
		}
		if req.IncludeInsurance {
			i := percentOf(trade, t.insurancePercent)
			res.Insurance = &i
			total = total.Add(i)
		}
		res.TotalLandedCost = &total
	}
	return res, nil
}

// lookup prefers an exporter-specific schedule over the AnyExporter one.
// Within a schedule the window with the latest ValidFrom containing the
// date wins.
func (t *Table) lookup(req tariff.QuoteRequest) (RateWindow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	importer := strings.ToUpper(req.ImporterCode)
	exporters := []string{AnyExporter}
	if e := strings.ToUpper(req.Exporter()); e != "" {
		exporters = []string{e, AnyExporter}
	}

	for _, exporter := range exporters {
		windows := t.schedules[routeKey{importer: importer, exporter: exporter, hs6: req.HS6ProductCode}]
		var best *RateWindow
		for i := range windows {
			w := &windows[i]
			if !w.contains(req.TransactionDate) {
				continue
			}
			if best == nil || w.ValidFrom.After(best.ValidFrom) {
				best = w
			}
		}
		if best != nil {
			return *best, true
		}
	}
	return RateWindow{}, false
}

func dutyFor(v tariff.RateComponents, trade decimal.Decimal, netWeight *decimal.Decimal) decimal.Decimal {
	weight := decimal.NewFromInt(1)
	if netWeight != nil {
		weight = *netWeight
	}
	switch c := v.(type) {
	case tariff.Suspended:
		return percentOf(trade, c.Rate)
	case tariff.Preferential:
		return percentOf(trade, c.Rate)
	case tariff.Compound:
		return percentOf(trade, c.MFN).Add(c.SpecificPerKg.Mul(weight))
	case tariff.MFNOnly:
		return percentOf(trade, c.Rate)
	case tariff.SpecificOnly:
		return c.PerKg.Mul(weight)
	default:
		return decimal.Zero
	}
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100))
}

func parsePercent(name, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s percent %q: %w", name, s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s percent %q: negative", name, s)
	}
	return d, nil
}

func orAny(s string) string {
	if s == "" {
		return "any origin"
	}
	return s
}
