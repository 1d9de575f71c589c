/*
store.go - Boundary interfaces for the external collaborators

PURPOSE:
  Defines the interfaces between the calculation core and the services it
  consumes. The core never knows whether a rate comes from a remote quoting
  service or an in-memory schedule, or whether history lands in SQLite or
  PostgreSQL.

KEY INTERFACES:
  RateOracle:          Opaque rate-quoting service (one quote per call)
  SuspensionDirectory: Suspension windows for an importer + product
  HistoryStore:        Append-only log of finalized quotes

IMPLEMENTATIONS:
  - oracle/http.go, oracle/table.go: RateOracle
  - tariff/store/memory.go: In-memory directory + history for testing
  - store/sqlite/sqlite.go: SQLite directory + history
  - store/postgres/postgres.go: PostgreSQL directory + history

SEE ALSO:
  - series.go: Consumes RateOracle
  - landedcost/service.go: Wires all three
*/
package tariff

import (
	"context"
	"time"
)

// =============================================================================
// RATE ORACLE
// =============================================================================

// RateOracle quotes a single (route, product, date). Failures should wrap
// ErrRateNotFound or ErrTransport so callers can tell them apart.
type RateOracle interface {
	Quote(ctx context.Context, req QuoteRequest) (*RateQuoteResult, error)
}

// OracleFunc adapts a function to the RateOracle interface.
type OracleFunc func(ctx context.Context, req QuoteRequest) (*RateQuoteResult, error)

func (f OracleFunc) Quote(ctx context.Context, req QuoteRequest) (*RateQuoteResult, error) {
	return f(ctx, req)
}

// =============================================================================
// SUSPENSION DIRECTORY
// =============================================================================

// SuspensionDirectory supplies the suspension windows that touch a year
// range for one importer and product.
type SuspensionDirectory interface {
	Suspensions(ctx context.Context, importerCode, hs6ProductCode string, startYear, endYear int) ([]SuspensionInterval, error)
}

// SuspensionWriter is implemented by directories that accept new windows.
// SaveSuspension upserts by ID. DeleteSuspension returns
// ErrSuspensionNotFound for an unknown ID.
type SuspensionWriter interface {
	SaveSuspension(ctx context.Context, s SuspensionInterval) error
	DeleteSuspension(ctx context.Context, id string) error
}

// =============================================================================
// HISTORY STORE - Append-only
// =============================================================================

// HistoryRecord is a finalized quote kept for later display.
type HistoryRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	Result    RateQuoteResult `json:"result"`
	Effective EffectiveRate   `json:"effective"`
	CreatedAt time.Time       `json:"created_at"`
}

// HistoryFilter narrows ListQuotes. Zero values match everything.
type HistoryFilter struct {
	ImporterCode   string
	HS6ProductCode string
	UserID         string
	Limit          int
}

// Matches returns true if the record passes the filter (limit aside).
func (f HistoryFilter) Matches(r HistoryRecord) bool {
	if f.ImporterCode != "" && r.Result.Request.ImporterCode != f.ImporterCode {
		return false
	}
	if f.HS6ProductCode != "" && r.Result.Request.HS6ProductCode != f.HS6ProductCode {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	return true
}

// HistoryStore persists finalized quotes. APPEND-ONLY: no update, no delete.
type HistoryStore interface {
	AppendQuote(ctx context.Context, rec HistoryRecord) error
	ListQuotes(ctx context.Context, filter HistoryFilter) ([]HistoryRecord, error)
}
