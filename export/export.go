// Package export writes comparison tables and year series as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/landed-cost/tariff"
	"github.com/xuri/excelize/v2"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" (case-insensitive). Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Table is a header plus rows of string, int or decimal.Decimal cells.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]interface{}
}

// =============================================================================
// TABLE BUILDERS
// =============================================================================

// ComparisonTable lays out ranked results one row per country.
func ComparisonTable(a tariff.ComparisonAnalysis) Table {
	t := Table{
		Sheet: "Comparison",
		Header: []string{
			"Rank", "Country Code", "Country Name", "Total Cost",
			"% Diff From Best", "% Diff From Previous", "Classification", "Effective Rate %",
		},
		Rows: make([][]interface{}, 0, len(a.RankedResults)),
	}
	for _, r := range a.RankedResults {
		eff := tariff.Resolve(r.Result.Components, r.Result.TradeOriginal, r.Result.NetWeight)
		t.Rows = append(t.Rows, []interface{}{
			r.Rank,
			r.CountryCode,
			r.CountryName,
			r.TotalCost.Round(2),
			r.PercentDiffFromBest.Round(2),
			r.PercentDiffFromPrevious.Round(2),
			eff.Label(),
			eff.RatePercent.Round(4),
		})
	}
	return t
}

// SeriesTable lays out a year series one row per year, missing years
// included with their reason.
func SeriesTable(s tariff.YearSeries) Table {
	t := Table{
		Sheet:  "Series",
		Header: []string{"Year", "Query Date", "Rate %", "Classification", "Duty", "Note"},
	}

	missing := make(map[int]string, len(s.MissingYears))
	for _, m := range s.MissingYears {
		missing[m.Year] = m.Reason
	}
	points := make(map[int]tariff.YearSeriesPoint, len(s.Series))
	years := make([]int, 0, len(s.Series)+len(s.MissingYears))
	for _, p := range s.Series {
		points[p.Year] = p
		years = append(years, p.Year)
	}
	for y := range missing {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, y := range years {
		if p, ok := points[y]; ok {
			t.Rows = append(t.Rows, []interface{}{
				p.Year, p.QueryDate.String(), p.RatePercent.Round(4), string(p.Classification), p.DutyAmount.Round(2), "",
			})
			continue
		}
		t.Rows = append(t.Rows, []interface{}{y, "", "", "", "", missing[y]})
	}
	return t
}

// =============================================================================
// WRITERS
// =============================================================================

// Write serializes t in the given format.
func Write(w io.Writer, format Format, t Table) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, t)
	default:
		return WriteCSV(w, t)
	}
}

// WriteCSV writes a header row then one record per row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellString(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook. Decimals become numeric cells.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = xlsxValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func xlsxValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}
