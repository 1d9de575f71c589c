/*
Package postgres provides a PostgreSQL-backed suspension directory and quote
history on a pgx connection pool.

It mirrors store/sqlite table for table. Dates are DATE columns, rates are
NUMERIC and quote results are JSONB. Values cross the wire as text so that
decimal and calendar-date precision is never routed through float64 or
time.Time.

USAGE:
  pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL, cfg.Storage.MaxConns)
  store, err := postgres.New(ctx, pool)

MIGRATION:
  Schema is auto-migrated on New().
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/landed-cost/refdata"
	"github.com/warp/landed-cost/tariff"
)

// NewPool opens a connection pool with conservative sizing.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.RuntimeParams["application_name"] = "landed-cost"
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	return pool, nil
}

// Store implements the storage interfaces using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ tariff.SuspensionDirectory = (*Store)(nil)
	_ tariff.SuspensionWriter    = (*Store)(nil)
	_ tariff.HistoryStore        = (*Store)(nil)
)

// New wraps pool and migrates the schema. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS suspensions (
		id TEXT PRIMARY KEY,
		importer_code TEXT NOT NULL,
		hs6_product_code TEXT NOT NULL,
		rate NUMERIC,
		note TEXT,
		valid_from DATE NOT NULL,
		valid_to DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_suspensions_route
		ON suspensions(importer_code, hs6_product_code, valid_from);

	CREATE TABLE IF NOT EXISTS quote_history (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		user_id TEXT,
		importer_code TEXT NOT NULL,
		exporter_code TEXT,
		hs6_product_code TEXT NOT NULL,
		transaction_date DATE NOT NULL,
		result_json JSONB NOT NULL,
		effective_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quote_history_created
		ON quote_history(created_at DESC);

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
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// SUSPENSION DIRECTORY
// =============================================================================

// SaveSuspension inserts a window or replaces the one with the same ID.
func (s *Store) SaveSuspension(ctx context.Context, susp tariff.SuspensionInterval) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suspensions (id, importer_code, hs6_product_code, rate, note, valid_from, valid_to)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::date, $7::date)
		ON CONFLICT (id) DO UPDATE SET
			importer_code = EXCLUDED.importer_code,
			hs6_product_code = EXCLUDED.hs6_product_code,
			rate = EXCLUDED.rate,
			note = EXCLUDED.note,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to
	`,
		susp.ID,
		susp.ImporterCode,
		susp.HS6ProductCode,
		decimalText(susp.Rate),
		nullIfEmpty(susp.Note),
		susp.ValidFrom.String(),
		dateText(susp.ValidTo),
	)
	if err != nil {
		return fmt.Errorf("failed to save suspension: %w", err)
	}
	return nil
}

// Suspensions returns windows overlapping [startYear, endYear], ordered by
// ValidFrom.
func (s *Store) Suspensions(ctx context.Context, importerCode, hs6ProductCode string, startYear, endYear int) ([]tariff.SuspensionInterval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, importer_code, hs6_product_code, rate::text, note, valid_from::text, valid_to::text
		FROM suspensions
		WHERE importer_code = $1 AND hs6_product_code = $2
		  AND valid_from <= $3::date
		  AND (valid_to IS NULL OR valid_to >= $4::date)
		ORDER BY valid_from ASC, id ASC
	`,
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
		var (
			susp      tariff.SuspensionInterval
			rate      *string
			note      *string
			validFrom string
			validTo   *string
		)
		if err := rows.Scan(&susp.ID, &susp.ImporterCode, &susp.HS6ProductCode, &rate, &note, &validFrom, &validTo); err != nil {
			return nil, fmt.Errorf("failed to scan suspension: %w", err)
		}
		if susp.ValidFrom, err = civil.ParseDate(validFrom); err != nil {
			return nil, fmt.Errorf("suspension %s: bad valid_from %q: %w", susp.ID, validFrom, err)
		}
		if validTo != nil {
			to, err := civil.ParseDate(*validTo)
			if err != nil {
				return nil, fmt.Errorf("suspension %s: bad valid_to %q: %w", susp.ID, *validTo, err)
			}
			susp.ValidTo = &to
		}
		if rate != nil {
			d, err := decimal.NewFromString(*rate)
			if err != nil {
				return nil, fmt.Errorf("suspension %s: bad rate %q: %w", susp.ID, *rate, err)
			}
			susp.Rate = &d
		}
		if note != nil {
			susp.Note = *note
		}
		out = append(out, susp)
	}
	return out, rows.Err()
}

// DeleteSuspension removes a window by ID.
func (s *Store) DeleteSuspension(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM suspensions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tariff.ErrSuspensionNotFound
	}
	return nil
}

// =============================================================================
// QUOTE HISTORY
// =============================================================================

// AppendQuote adds a record. Re-appending an existing ID is a no-op.
func (s *Store) AppendQuote(ctx context.Context, rec tariff.HistoryRecord) error {
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

	req := rec.Result.Request
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quote_history
		(id, user_id, importer_code, exporter_code, hs6_product_code, transaction_date,
		 result_json, effective_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID,
		nullIfEmpty(rec.UserID),
		req.ImporterCode,
		nullIfEmpty(req.Exporter()),
		req.HS6ProductCode,
		req.TransactionDate.String(),
		resultJSON,
		effectiveJSON,
		created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append quote: %w", err)
	}
	return nil
}

// ListQuotes returns matching records, newest first.
func (s *Store) ListQuotes(ctx context.Context, filter tariff.HistoryFilter) ([]tariff.HistoryRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ImporterCode != "" {
		add("importer_code = $%d", filter.ImporterCode)
	}
	if filter.HS6ProductCode != "" {
		add("hs6_product_code = $%d", filter.HS6ProductCode)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}

	query := "SELECT id, user_id, result_json, effective_json, created_at FROM quote_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history: %w", err)
	}
	defer rows.Close()

	out := []tariff.HistoryRecord{}
	for rows.Next() {
		var (
			rec           tariff.HistoryRecord
			userID        *string
			resultJSON    []byte
			effectiveJSON []byte
		)
		if err := rows.Scan(&rec.ID, &userID, &resultJSON, &effectiveJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("quote %s: bad result: %w", rec.ID, err)
		}
		if err := json.Unmarshal(effectiveJSON, &rec.Effective); err != nil {
			return nil, fmt.Errorf("quote %s: bad effective rate: %w", rec.ID, err)
		}
		if userID != nil {
			rec.UserID = *userID
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// SaveRefData replaces the stored countries and products.
func (s *Store) SaveRefData(ctx context.Context, t *refdata.Table) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM countries`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM products`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, c := range t.Countries() {
			batch.Queue(`INSERT INTO countries (code, name, region) VALUES ($1, $2, $3)`, c.Code, c.Name, nullIfEmpty(c.Region))
		}
		for _, p := range t.Products() {
			batch.Queue(`INSERT INTO products (hs6, description) VALUES ($1, $2)`, p.HS6, p.Description)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save reference data: %w", err)
		}
		return nil
	})
}

// LoadRefData builds a reference table from the stored rows. It returns
// nil when no countries are stored.
func (s *Store) LoadRefData(ctx context.Context) (*refdata.Table, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, name, COALESCE(region, '') FROM countries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	countries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (refdata.Country, error) {
		var c refdata.Country
		err := row.Scan(&c.Code, &c.Name, &c.Region)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, nil
	}

	rows, err = s.pool.Query(ctx, `SELECT hs6, description FROM products`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (refdata.Product, error) {
		var p refdata.Product
		err := row.Scan(&p.HS6, &p.Description)
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return refdata.New(countries, products)
}

// Reset clears suspensions and history. Reference data is kept.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE suspensions, quote_history`)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func dateText(d *civil.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
