/*
Package landedcost wires the tariff core to its collaborators.

PURPOSE:
  The tariff package is pure: it knows how to resolve a rate, pick query
  dates, fold a year series and rank a comparison. This package supplies
  the oracle, the suspension directory, the history store and the
  reference table, and owns the run-level concerns around them.

RUN-LEVEL CONCERNS:
  - Generation tokens: one in-flight year series per session key. Starting
    a newer run cancels the older one; a superseded run never publishes.
  - Comparison fan-out: one oracle request per exporter, bounded, and
    all-or-nothing.
  - History: finalized quotes can be appended to the history store.

SEE ALSO:
  - tariff/series.go: the sequential year loop
  - tariff/comparison.go: ranking
*/
package landedcost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/landed-cost/metrics"
	"github.com/warp/landed-cost/refdata"
	"github.com/warp/landed-cost/tariff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrReadOnlyDirectory is returned when saving to a directory that cannot
// accept writes.
var ErrReadOnlyDirectory = errors.New("suspension directory is read-only")

// Options tunes the service.
type Options struct {
	// RequestTimeout bounds each oracle call. Zero means no bound.
	RequestTimeout time.Duration
	// CompareConcurrency caps in-flight oracle calls during a comparison.
	// Zero means 4.
	CompareConcurrency int

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Service is the application entry point used by the HTTP layer.
type Service struct {
	oracle    tariff.RateOracle
	directory tariff.SuspensionDirectory
	history   tariff.HistoryStore
	ref       *refdata.Table

	calc        *tariff.Calculator
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu   sync.Mutex
	gen  uint64
	runs map[string]run

	now func() time.Time
}

type run struct {
	gen    uint64
	cancel context.CancelCauseFunc
}

// New builds a Service. directory and history may be nil; the service then
// runs without suspensions and without saved quotes.
func New(oracle tariff.RateOracle, directory tariff.SuspensionDirectory, history tariff.HistoryStore, ref *refdata.Table, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ref == nil {
		ref = refdata.Default()
	}
	concurrency := opts.CompareConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Service{
		oracle:    oracle,
		directory: directory,
		history:   history,
		ref:       ref,
		calc: &tariff.Calculator{
			Oracle:         oracle,
			RequestTimeout: opts.RequestTimeout,
			Logger:         logger.Named("series"),
		},
		timeout:     opts.RequestTimeout,
		concurrency: concurrency,
		metrics:     opts.Metrics,
		logger:      logger,
		runs:        make(map[string]run),
		now:         time.Now,
	}
}

// RefData returns the reference table.
func (s *Service) RefData() *refdata.Table { return s.ref }

// =============================================================================
// YEAR SERIES
// =============================================================================

// SeriesRequest asks for a year series on one route.
type SeriesRequest struct {
	// SessionKey groups runs that supersede each other. Empty disables
	// supersession.
	SessionKey string
	Base       tariff.QuoteRequest
	StartYear  int
	EndYear    int
}

// SeriesResult is a year series plus the suspension windows it used.
type SeriesResult struct {
	CalculationID string                      `json:"calculation_id"`
	Suspensions   []tariff.SuspensionInterval `json:"suspensions"`
	*tariff.YearSeries
}

// ComputeYearSeries fetches suspensions and runs the per-year loop.
//
// Errors:
//   - tariff.ErrInvalidYearRange: startYear > endYear
//   - tariff.ErrDirectoryUnavailable: suspension lookup failed
//   - tariff.ErrSuperseded: a newer run for the same session started
//   - ctx.Err(): the caller gave up
func (s *Service) ComputeYearSeries(ctx context.Context, req SeriesRequest) (*SeriesResult, error) {
	if req.StartYear > req.EndYear {
		return nil, tariff.ErrInvalidYearRange
	}

	ctx, gen, done := s.begin(ctx, req.SessionKey)
	defer done()

	id := uuid.NewString()
	logger := s.logger.With(
		zap.String("calculation_id", id),
		zap.String("session", req.SessionKey))

	intervals, err := s.suspensions(ctx, req.Base.ImporterCode, req.Base.HS6ProductCode, req.StartYear, req.EndYear)
	if err != nil {
		if stale := s.staleErr(ctx); stale != nil {
			return nil, stale
		}
		logger.Warn("suspension lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", tariff.ErrDirectoryUnavailable, err)
	}

	series, err := s.calc.ComputeYearSeries(ctx, req.Base, intervals, req.StartYear, req.EndYear)
	if err != nil {
		if stale := s.staleErr(ctx); stale != nil {
			return nil, stale
		}
		return nil, err
	}

	// A newer run may have started after our last oracle call returned.
	if !s.current(req.SessionKey, gen) {
		logger.Debug("discarding superseded series")
		return nil, tariff.ErrSuperseded
	}

	s.metrics.AddMissingYears(len(series.MissingYears))
	if len(series.MissingYears) > 0 {
		logger.Info("series has missing years", zap.Int("missing", len(series.MissingYears)))
	}

	if intervals == nil {
		intervals = []tariff.SuspensionInterval{}
	}
	return &SeriesResult{CalculationID: id, Suspensions: intervals, YearSeries: series}, nil
}

func (s *Service) suspensions(ctx context.Context, importer, hs6 string, startYear, endYear int) ([]tariff.SuspensionInterval, error) {
	if s.directory == nil {
		return nil, nil
	}
	return s.directory.Suspensions(ctx, importer, hs6, startYear, endYear)
}

// begin registers a run for the session and cancels any older one.
func (s *Service) begin(parent context.Context, session string) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if session == "" {
		return ctx, 0, func() { cancel(nil) }
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if prev, ok := s.runs[session]; ok {
		prev.cancel(tariff.ErrSuperseded)
	}
	s.runs[session] = run{gen: gen, cancel: cancel}
	s.mu.Unlock()

	return ctx, gen, func() {
		s.mu.Lock()
		if r, ok := s.runs[session]; ok && r.gen == gen {
			delete(s.runs, session)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

func (s *Service) current(session string, gen uint64) bool {
	if session == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[session]
	return ok && r.gen == gen
}

// staleErr maps a cancelled run context to the error the caller sees.
func (s *Service) staleErr(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), tariff.ErrSuperseded) {
		return tariff.ErrSuperseded
	}
	return ctx.Err()
}

// =============================================================================
// COMPARISON
// =============================================================================

// ComparisonRequest compares one route across several exporters. Base
// carries everything except the exporter.
type ComparisonRequest struct {
	Base      tariff.QuoteRequest
	Exporters []string
}

// Compare quotes every exporter concurrently and ranks the results. Any
// single failure fails the whole batch with a *tariff.ComparisonError.
func (s *Service) Compare(ctx context.Context, req ComparisonRequest) (*tariff.ComparisonAnalysis, error) {
	exporters := dedupCodes(req.Exporters)
	if len(exporters) == 0 {
		return nil, tariff.ErrNoCandidates
	}

	candidates := make([]tariff.ComparisonCandidate, len(exporters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, code := range exporters {
		i, code := i, code
		g.Go(func() error {
			res, err := s.quote(gctx, req.Base.WithExporter(code))
			if err != nil {
				return &tariff.ComparisonError{CountryCode: code, Err: err}
			}
			candidates[i] = tariff.ComparisonCandidate{
				CountryCode: code,
				CountryName: s.ref.CountryName(code),
				Result:      *res,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.metrics.ObserveComparison(metrics.OutcomeError)
		s.logger.Warn("comparison failed",
			zap.String("importer", req.Base.ImporterCode),
			zap.String("hs6", req.Base.HS6ProductCode),
			zap.Strings("exporters", exporters),
			zap.Error(err))
		return nil, err
	}

	analysis := tariff.CompareResults(candidates, s.ref.CountryNames())
	s.metrics.ObserveComparison(metrics.OutcomeOK)
	s.logger.Info("comparison ranked",
		zap.String("importer", req.Base.ImporterCode),
		zap.String("hs6", req.Base.HS6ProductCode),
		zap.Int("candidates", len(candidates)))
	return &analysis, nil
}

func dedupCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// =============================================================================
// SINGLE QUOTE AND HISTORY
// =============================================================================

// QuoteOptions controls Quote.
type QuoteOptions struct {
	Save   bool
	UserID string
}

// QuoteResult is one oracle answer with its effective rate.
type QuoteResult struct {
	Result    tariff.RateQuoteResult `json:"result"`
	Effective tariff.EffectiveRate   `json:"effective"`
	HistoryID string                 `json:"history_id,omitempty"`
}

// Quote asks the oracle once and optionally records the answer.
func (s *Service) Quote(ctx context.Context, req tariff.QuoteRequest, opts QuoteOptions) (*QuoteResult, error) {
	res, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &QuoteResult{
		Result:    *res,
		Effective: tariff.Resolve(res.Components, res.TradeOriginal, res.NetWeight),
	}

	if opts.Save && s.history != nil {
		rec := tariff.HistoryRecord{
			ID:        uuid.NewString(),
			UserID:    opts.UserID,
			Result:    out.Result,
			Effective: out.Effective,
			CreatedAt: s.now().UTC(),
		}
		if err := s.history.AppendQuote(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save quote: %w", err)
		}
		out.HistoryID = rec.ID
	}
	return out, nil
}

// History lists saved quotes, newest first.
func (s *Service) History(ctx context.Context, filter tariff.HistoryFilter) ([]tariff.HistoryRecord, error) {
	if s.history == nil {
		return []tariff.HistoryRecord{}, nil
	}
	return s.history.ListQuotes(ctx, filter)
}

func (s *Service) quote(ctx context.Context, req tariff.QuoteRequest) (*tariff.RateQuoteResult, error) {
	if s.oracle == nil {
		return nil, tariff.ErrOracleRequired
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.oracle.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, tariff.ErrRateNotFound
	}
	return res, nil
}

// =============================================================================
// SUSPENSIONS
// =============================================================================

// Suspensions lists the windows touching a year range.
func (s *Service) Suspensions(ctx context.Context, importer, hs6 string, startYear, endYear int) ([]tariff.SuspensionInterval, error) {
	if startYear > endYear {
		return nil, tariff.ErrInvalidYearRange
	}
	out, err := s.suspensions(ctx, importer, hs6, startYear, endYear)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tariff.ErrDirectoryUnavailable, err)
	}
	if out == nil {
		out = []tariff.SuspensionInterval{}
	}
	return out, nil
}

// SaveSuspension adds a window to the directory, assigning an ID if needed.
func (s *Service) SaveSuspension(ctx context.Context, in tariff.SuspensionInterval) (tariff.SuspensionInterval, error) {
	w, ok := s.directory.(tariff.SuspensionWriter)
	if !ok {
		return tariff.SuspensionInterval{}, ErrReadOnlyDirectory
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if err := w.SaveSuspension(ctx, in); err != nil {
		return tariff.SuspensionInterval{}, err
	}
	s.logger.Info("suspension saved",
		zap.String("id", in.ID),
		zap.String("importer", in.ImporterCode),
		zap.String("hs6", in.HS6ProductCode),
		zap.Stringer("valid_from", in.ValidFrom))
	return in, nil
}

// DeleteSuspension removes a window from the directory.
func (s *Service) DeleteSuspension(ctx context.Context, id string) error {
	w, ok := s.directory.(tariff.SuspensionWriter)
	if !ok {
		return ErrReadOnlyDirectory
	}
	if err := w.DeleteSuspension(ctx, id); err != nil {
		return err
	}
	s.logger.Info("suspension deleted", zap.String("id", id))
	return nil
}
