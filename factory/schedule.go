/*
Package factory converts JSON and YAML rate schedule definitions into the
Go types used by the table oracle and the suspension directory.

PURPOSE:
  Rate schedules and suspension windows are data, not code. Trade analysts
  maintain them as documents; the factory validates a document and builds
  oracle.Schedule and tariff.SuspensionInterval values from it.

JSON SCHEMA:
  {
    "schedules": [
      {
        "importer": "US",
        "exporter": "*",
        "hs6": "850440",
        "windows": [
          {"valid_from": "2015-01-01", "mfn_rate": "3.4"},
          {"valid_from": "2021-03-15", "valid_to": "2021-12-31",
           "mfn_rate": "3.4", "suspension_rate": "0"}
        ]
      }
    ],
    "suspensions": [
      {"importer": "US", "hs6": "850440", "valid_from": "2021-03-15",
       "valid_to": "2021-12-31", "rate": "0", "note": "Section 301 exclusion"}
    ]
  }

  Rates are decimal strings in percent; "specific_rate_per_kg" is an amount
  per kilogram. An omitted "exporter" means any exporter. YAML documents use
  the same keys.

USAGE:
  f := factory.NewScheduleFactory()
  doc, err := f.ParseJSON(factory.DemoSchedulesJSON)
  table, err := oracle.NewTable(doc.Schedules, "", "")

SEE ALSO:
  - oracle/table.go: consumes Schedules
  - tariff/window.go: SuspensionInterval
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/landed-cost/oracle"
	"github.com/warp/landed-cost/tariff"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// DocumentJSON is the on-disk representation of schedules and suspensions.
type DocumentJSON struct {
	Schedules   []ScheduleJSON   `json:"schedules" yaml:"schedules"`
	Suspensions []SuspensionJSON `json:"suspensions,omitempty" yaml:"suspensions,omitempty"`
}

// ScheduleJSON is one route and product.
type ScheduleJSON struct {
	Importer string       `json:"importer" yaml:"importer"`
	Exporter string       `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	HS6      string       `json:"hs6" yaml:"hs6"`
	Windows  []WindowJSON `json:"windows" yaml:"windows"`
}

// WindowJSON is a dated set of rate components.
type WindowJSON struct {
	ValidFrom         string `json:"valid_from" yaml:"valid_from"`
	ValidTo           string `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	SuspensionRate    string `json:"suspension_rate,omitempty" yaml:"suspension_rate,omitempty"`
	PreferentialRate  string `json:"preferential_rate,omitempty" yaml:"preferential_rate,omitempty"`
	MFNRate           string `json:"mfn_rate,omitempty" yaml:"mfn_rate,omitempty"`
	SpecificRatePerKg string `json:"specific_rate_per_kg,omitempty" yaml:"specific_rate_per_kg,omitempty"`
}

// SuspensionJSON is one suspension window.
type SuspensionJSON struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Importer  string `json:"importer" yaml:"importer"`
	HS6       string `json:"hs6" yaml:"hs6"`
	ValidFrom string `json:"valid_from" yaml:"valid_from"`
	ValidTo   string `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	Rate      string `json:"rate,omitempty" yaml:"rate,omitempty"`
	Note      string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Document is a parsed and validated DocumentJSON.
type Document struct {
	Schedules   []oracle.Schedule
	Suspensions []tariff.SuspensionInterval
}

// =============================================================================
// SCHEDULE FACTORY
// =============================================================================

// ScheduleFactory converts schedule documents to Go structs.
type ScheduleFactory struct{}

func NewScheduleFactory() *ScheduleFactory {
	return &ScheduleFactory{}
}

// ParseJSON parses a JSON document.
func (f *ScheduleFactory) ParseJSON(jsonStr string) (*Document, error) {
	var dj DocumentJSON
	if err := json.Unmarshal([]byte(jsonStr), &dj); err != nil {
		return nil, fmt.Errorf("failed to parse schedule JSON: %w", err)
	}
	return f.FromJSON(dj)
}

// ParseYAML parses a YAML document.
func (f *ScheduleFactory) ParseYAML(data []byte) (*Document, error) {
	var dj DocumentJSON
	if err := yaml.Unmarshal(data, &dj); err != nil {
		return nil, fmt.Errorf("failed to parse schedule YAML: %w", err)
	}
	return f.FromJSON(dj)
}

// Parse picks the decoder from the file name extension.
func (f *ScheduleFactory) Parse(name string, data []byte) (*Document, error) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return f.ParseYAML(data)
	}
	return f.ParseJSON(string(data))
}

// FromJSON validates a DocumentJSON and converts it.
func (f *ScheduleFactory) FromJSON(dj DocumentJSON) (*Document, error) {
	doc := &Document{}

	for i, sj := range dj.Schedules {
		s, err := parseSchedule(sj)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		doc.Schedules = append(doc.Schedules, s)
	}

	for i, pj := range dj.Suspensions {
		s, err := parseSuspension(pj)
		if err != nil {
			return nil, fmt.Errorf("suspension %d: %w", i, err)
		}
		doc.Suspensions = append(doc.Suspensions, s)
	}

	return doc, nil
}

// SuspensionToJSON converts an interval back to its document form.
func (f *ScheduleFactory) SuspensionToJSON(s tariff.SuspensionInterval) SuspensionJSON {
	sj := SuspensionJSON{
		ID:        s.ID,
		Importer:  s.ImporterCode,
		HS6:       s.HS6ProductCode,
		ValidFrom: s.ValidFrom.String(),
		Note:      s.Note,
	}
	if s.ValidTo != nil {
		sj.ValidTo = s.ValidTo.String()
	}
	if s.Rate != nil {
		sj.Rate = s.Rate.String()
	}
	return sj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseSchedule(sj ScheduleJSON) (oracle.Schedule, error) {
	if err := requireCodes(sj.Importer, sj.HS6); err != nil {
		return oracle.Schedule{}, err
	}
	if len(sj.Windows) == 0 {
		return oracle.Schedule{}, fmt.Errorf("%s/%s has no windows", sj.Importer, sj.HS6)
	}

	s := oracle.Schedule{
		ImporterCode:   strings.ToUpper(sj.Importer),
		ExporterCode:   strings.ToUpper(sj.Exporter),
		HS6ProductCode: sj.HS6,
	}
	for i, wj := range sj.Windows {
		w, err := parseWindow(wj)
		if err != nil {
			return oracle.Schedule{}, fmt.Errorf("window %d: %w", i, err)
		}
		s.Windows = append(s.Windows, w)
	}
	return s, nil
}

func parseWindow(wj WindowJSON) (oracle.RateWindow, error) {
	from, to, err := parseRange(wj.ValidFrom, wj.ValidTo)
	if err != nil {
		return oracle.RateWindow{}, err
	}

	var c tariff.RawComponents
	fields := []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{
		{"suspension_rate", wj.SuspensionRate, &c.SuspensionRate},
		{"preferential_rate", wj.PreferentialRate, &c.PreferentialRate},
		{"mfn_rate", wj.MFNRate, &c.MFNRate},
		{"specific_rate_per_kg", wj.SpecificRatePerKg, &c.SpecificRatePerKg},
	}
	for _, fld := range fields {
		d, err := parseOptionalDecimal(fld.name, fld.raw)
		if err != nil {
			return oracle.RateWindow{}, err
		}
		*fld.dst = d
	}

	return oracle.RateWindow{ValidFrom: from, ValidTo: to, Components: c}, nil
}

func parseSuspension(pj SuspensionJSON) (tariff.SuspensionInterval, error) {
	if err := requireCodes(pj.Importer, pj.HS6); err != nil {
		return tariff.SuspensionInterval{}, err
	}
	from, to, err := parseRange(pj.ValidFrom, pj.ValidTo)
	if err != nil {
		return tariff.SuspensionInterval{}, err
	}
	rate, err := parseOptionalDecimal("rate", pj.Rate)
	if err != nil {
		return tariff.SuspensionInterval{}, err
	}

	importer := strings.ToUpper(pj.Importer)
	id := pj.ID
	if id == "" {
		id = SuspensionID(importer, pj.HS6, from, to)
	}
	return tariff.SuspensionInterval{
		ID:             id,
		ImporterCode:   importer,
		HS6ProductCode: pj.HS6,
		Rate:           rate,
		Note:           pj.Note,
		ValidFrom:      from,
		ValidTo:        to,
	}, nil
}

// SuspensionID derives the id of a window that has none. The same route
// and dates always give the same id, so reloading a document upserts its
// windows instead of adding copies.
func SuspensionID(importer, hs6 string, from civil.Date, to *civil.Date) string {
	end := ""
	if to != nil {
		end = to.String()
	}
	key := strings.Join([]string{strings.ToUpper(importer), hs6, from.String(), end}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("landed-cost/suspension/"+key)).String()
}

func parseRange(fromStr, toStr string) (civil.Date, *civil.Date, error) {
	from, err := civil.ParseDate(fromStr)
	if err != nil {
		return civil.Date{}, nil, fmt.Errorf("invalid valid_from %q: %w", fromStr, err)
	}
	if toStr == "" {
		return from, nil, nil
	}
	to, err := civil.ParseDate(toStr)
	if err != nil {
		return civil.Date{}, nil, fmt.Errorf("invalid valid_to %q: %w", toStr, err)
	}
	if to.Before(from) {
		return civil.Date{}, nil, fmt.Errorf("valid_to %s before valid_from %s", to, from)
	}
	return from, &to, nil
}

func parseOptionalDecimal(name, s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return &d, nil
}

func requireCodes(importer, hs6 string) error {
	if strings.TrimSpace(importer) == "" {
		return fmt.Errorf("importer is required")
	}
	if len(hs6) != 6 || strings.Trim(hs6, "0123456789") != "" {
		return fmt.Errorf("hs6 %q must be six digits", hs6)
	}
	return nil
}
