/*
Package sqlite provides a SQLite-backed suspension directory, quote history
and reference data store.

PURPOSE:
  Persists everything the landed cost service reads or appends between
  restarts. The PostgreSQL store in store/postgres implements the same
  contracts with the same table layout.

INTERFACES IMPLEMENTED:
  tariff.SuspensionDirectory: Suspension windows by importer and product
  tariff.SuspensionWriter:    New and corrected windows
  tariff.HistoryStore:        Finalized quotes

APPEND-ONLY ENFORCEMENT:
  quote_history is append-only:
  - No UPDATE statements on quote_history
  - Re-appending an existing ID is a no-op

KEY TABLES:
  suspensions:   Suspension windows, dates as ISO strings (YYYY-MM-DD)
  quote_history: Saved quotes with the full result as JSON
  countries:     Reference countries
  products:      Reference HS6 products

DATE STORAGE:
  Calendar dates are stored as ISO strings so that string comparison in SQL
  is date comparison. The year-range overlap query relies on it.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/landed-cost.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := landedcost.New(oracle, store, store, ref, opts)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - tariff/store.go: Interface definitions
  - tariff/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/landed-cost/refdata"
	"github.com/warp/landed-cost/tariff"
)

// historyTimeLayout has fixed-width fractional seconds so created_at sorts
// lexically.
const historyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ tariff.SuspensionDirectory = (*Store)(nil)
	_ tariff.SuspensionWriter    = (*Store)(nil)
	_ tariff.HistoryStore        = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Suspension windows
	CREATE TABLE IF NOT EXISTS suspensions (
		id TEXT PRIMARY KEY,
		importer_code TEXT NOT NULL,
		hs6_product_code TEXT NOT NULL,
		rate TEXT,
		note TEXT,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		created_at TEXT NOT NULL
	);

	-- Directory lookups (hot path of every series)
	CREATE INDEX IF NOT EXISTS idx_suspensions_route
		ON suspensions(importer_code, hs6_product_code, valid_from);

	-- Quote history (append-only)
	CREATE TABLE IF NOT EXISTS quote_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		importer_code TEXT NOT NULL,
		exporter_code TEXT,
		hs6_product_code TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		result_json TEXT NOT NULL,
		effective_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quote_history_created
		ON quote_history(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_quote_history_user
		ON quote_history(user_id) WHERE user_id IS NOT NULL;

	-- Reference data
	CREATE TABLE IF NOT EXISTS countries (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		region TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		hs6 TEXT PRIMARY KEY,
		description TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SUSPENSION DIRECTORY (tariff.SuspensionDirectory interface)
// =============================================================================

// SaveSuspension inserts a window or replaces the one with the same ID.
func (s *Store) SaveSuspension(ctx context.Context, susp tariff.SuspensionInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO suspensions (id, importer_code, hs6_product_code, rate, note, valid_from, valid_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			importer_code = excluded.importer_code,
			hs6_product_code = excluded.hs6_product_code,
			rate = excluded.rate,
			note = excluded.note,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to
	`

	_, err := s.db.ExecContext(ctx, query,
		susp.ID,
		susp.ImporterCode,
		susp.HS6ProductCode,
		nullDecimal(susp.Rate),
		nullString(susp.Note),
		susp.ValidFrom.String(),
		nullDate(susp.ValidTo),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save suspension: %w", err)
	}
	return nil
}

// Suspensions returns windows overlapping [startYear, endYear], ordered by
// ValidFrom.
func (s *Store) Suspensions(ctx context.Context, importerCode, hs6ProductCode string, startYear, endYear int) ([]tariff.SuspensionInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, importer_code, hs6_product_code, rate, note, valid_from, valid_to
		FROM suspensions
		WHERE importer_code = ? AND hs6_product_code = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY valid_from ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		importerCode, hs6ProductCode,
		tariff.EndOfYear(endYear).String(),
		tariff.StartOfYear(startYear).String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspensions: %w", err)
	}
	defer rows.Close()

	var out []tariff.SuspensionInterval
	for rows.Next() {
		susp, err := scanSuspension(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, susp)
	}
	return out, rows.Err()
}

// DeleteSuspension removes a window by ID.
func (s *Store) DeleteSuspension(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM suspensions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete suspension: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tariff.ErrSuspensionNotFound
	}
	return nil
}

func scanSuspension(rows *sql.Rows) (tariff.SuspensionInterval, error) {
	var (
		susp      tariff.SuspensionInterval
		rate      sql.NullString
		note      sql.NullString
		validFrom string
		validTo   sql.NullString
	)

	err := rows.Scan(&susp.ID, &susp.ImporterCode, &susp.HS6ProductCode, &rate, &note, &validFrom, &validTo)
	if err != nil {
		return susp, fmt.Errorf("failed to scan suspension: %w", err)
	}

	susp.ValidFrom, err = civil.ParseDate(validFrom)
	if err != nil {
		return susp, fmt.Errorf("suspension %s: bad valid_from %q: %w", susp.ID, validFrom, err)
	}
	if validTo.Valid {
		to, err := civil.ParseDate(validTo.String)
		if err != nil {
			return susp, fmt.Errorf("suspension %s: bad valid_to %q: %w", susp.ID, validTo.String, err)
		}
		susp.ValidTo = &to
	}
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return susp, fmt.Errorf("suspension %s: bad rate %q: %w", susp.ID, rate.String, err)
		}
		susp.Rate = &d
	}
	susp.Note = note.String
	return susp, nil
}

// =============================================================================
// QUOTE HISTORY (tariff.HistoryStore interface)
// =============================================================================

// AppendQuote adds a record. Re-appending an existing ID is a no-op.
func (s *Store) AppendQuote(ctx context.Context, rec tariff.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode quote result: %w", err)
	}
	effectiveJSON, err := json.Marshal(rec.Effective)
	if err != nil {
		return fmt.Errorf("failed to encode effective rate: %w", err)
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `
		INSERT INTO quote_history
		(id, user_id, importer_code, exporter_code, hs6_product_code, transaction_date,
		 result_json, effective_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	req := rec.Result.Request
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.UserID),
		req.ImporterCode,
		nullString(req.Exporter()),
		req.HS6ProductCode,
		req.TransactionDate.String(),
		string(resultJSON),
		string(effectiveJSON),
		created.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to append quote: %w", err)
	}
	return nil
}

// ListQuotes returns matching records, newest first.
func (s *Store) ListQuotes(ctx context.Context, filter tariff.HistoryFilter) ([]tariff.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.ImporterCode != "" {
		where = append(where, "importer_code = ?")
		args = append(args, filter.ImporterCode)
	}
	if filter.HS6ProductCode != "" {
		where = append(where, "hs6_product_code = ?")
		args = append(args, filter.HS6ProductCode)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := "SELECT id, user_id, result_json, effective_json, created_at FROM quote_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history: %w", err)
	}
	defer rows.Close()

	out := []tariff.HistoryRecord{}
	for rows.Next() {
		var (
			rec           tariff.HistoryRecord
			userID        sql.NullString
			resultJSON    string
			effectiveJSON string
			createdAt     string
		)
		if err := rows.Scan(&rec.ID, &userID, &resultJSON, &effectiveJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			return nil, fmt.Errorf("quote %s: bad result: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(effectiveJSON), &rec.Effective); err != nil {
			return nil, fmt.Errorf("quote %s: bad effective rate: %w", rec.ID, err)
		}
		rec.UserID = userID.String
		rec.CreatedAt, _ = time.Parse(historyTimeLayout, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// SaveRefData replaces the stored countries and products.
func (s *Store) SaveRefData(ctx context.Context, t *refdata.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM countries"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return err
	}
	for _, c := range t.Countries() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO countries (code, name, region) VALUES (?, ?, ?)",
			c.Code, c.Name, nullString(c.Region),
		); err != nil {
			return fmt.Errorf("failed to save country %s: %w", c.Code, err)
		}
	}
	for _, p := range t.Products() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO products (hs6, description) VALUES (?, ?)",
			p.HS6, p.Description,
		); err != nil {
			return fmt.Errorf("failed to save product %s: %w", p.HS6, err)
		}
	}
	return tx.Commit()
}

// LoadRefData builds a reference table from the stored rows. It returns
// nil when no countries are stored.
func (s *Store) LoadRefData(ctx context.Context) (*refdata.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var countries []refdata.Country
	rows, err := s.db.QueryContext(ctx, "SELECT code, name, region FROM countries")
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	for rows.Next() {
		var c refdata.Country
		var region sql.NullString
		if err := rows.Scan(&c.Code, &c.Name, &region); err != nil {
			rows.Close()
			return nil, err
		}
		c.Region = region.String
		countries = append(countries, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, nil
	}

	var products []refdata.Product
	rows, err = s.db.QueryContext(ctx, "SELECT hs6, description FROM products")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p refdata.Product
		if err := rows.Scan(&p.HS6, &p.Description); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refdata.New(countries, products)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears suspensions and history (for testing/demo). Reference data
// is kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"suspensions", "quote_history"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDate(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
