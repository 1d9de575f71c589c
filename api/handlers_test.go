/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Reference data and health endpoints
- Year series, comparison and quote round trips over the router
- Validation and error status mapping
- Scenario loading and suspension management
- CSV/XLSX export
*/
package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/landed-cost/factory"
	"github.com/warp/landed-cost/landedcost"
	"github.com/warp/landed-cost/metrics"
	"github.com/warp/landed-cost/oracle"
	"github.com/warp/landed-cost/refdata"
	"github.com/warp/landed-cost/store/sqlite"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	router  *chi.Mux
	handler *Handler
	store   *sqlite.Store
	metrics *metrics.Metrics
}

// newTestEnv wires a table oracle, an in-memory SQLite store and the
// router, then loads the given scenario through the API.
func newTestEnv(t *testing.T, scenarioID string) *testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	o, err := oracle.NewByName("table", oracle.Options{Metrics: m})
	require.NoError(t, err)
	table, ok := oracle.TableOf(o)
	require.True(t, ok)

	svc := landedcost.New(o, store, store, refdata.Default(), landedcost.Options{Metrics: m})
	h := NewHandler(svc, store, table, nil)
	env := &testEnv{
		router:  NewRouter(h, RouterOptions{Metrics: m.Handler()}),
		handler: h,
		store:   store,
		metrics: m,
	}

	if scenarioID != "" {
		rec := env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": scenarioID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func quoteBody(exporter, hs6 string) map[string]any {
	return map[string]any{
		"importer_code":    "US",
		"exporter_code":    exporter,
		"hs6_product_code": hs6,
		"trade_original":   "10000",
		"transaction_date": "2024-05-01",
	}
}

type seriesResponse struct {
	CalculationID string `json:"calculation_id"`
	Series        []struct {
		Year           int             `json:"year"`
		QueryDate      string          `json:"query_date"`
		RatePercent    decimal.Decimal `json:"rate_percent"`
		Classification string          `json:"classification"`
	} `json:"series"`
	MissingYears []struct {
		Year   int    `json:"year"`
		Reason string `json:"reason"`
	} `json:"missing_years"`
	Suspensions []any `json:"suspensions"`
}

type comparisonResponse struct {
	RankedResults []struct {
		Rank                int             `json:"rank"`
		CountryCode         string          `json:"country_code"`
		CountryName         string          `json:"country_name"`
		TotalCost           decimal.Decimal `json:"total_cost"`
		PercentDiffFromBest decimal.Decimal `json:"percent_diff_from_best"`
	} `json:"ranked_results"`
	ChartData []struct {
		Color string `json:"color"`
	} `json:"chart_data"`
}

// =============================================================================
// HEALTH AND REFERENCE DATA
// =============================================================================

func TestHealthAndReferenceData(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/countries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var countries []CountryDTO
	decodeBody(t, rec, &countries)
	assert.Len(t, countries, len(refdata.Default().Countries()))

	rec = env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []ProductDTO
	decodeBody(t, rec, &products)
	assert.Len(t, products, len(refdata.Default().Products()))
}

// =============================================================================
// YEAR SERIES
// =============================================================================

func TestComputeSeries_SuspensionWindow(t *testing.T) {
	// GIVEN: The section-301 scenario
	// WHEN: Requesting CN converters for 2019-2021
	// THEN: 2020 is queried on the suspension start and resolves as Suspended

	env := newTestEnv(t, "section-301")

	body := quoteBody("CN", "850440")
	body["start_year"] = 2019
	body["end_year"] = 2021
	rec := env.do(t, http.MethodPost, "/api/series", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out seriesResponse
	decodeBody(t, rec, &out)
	assert.NotEmpty(t, out.CalculationID)
	require.Len(t, out.Series, 3)
	assert.Len(t, out.Suspensions, 1)
	assert.Empty(t, out.MissingYears)

	assert.Equal(t, "2020-03-15", out.Series[1].QueryDate)
	assert.Equal(t, "Suspended", out.Series[1].Classification)
	assert.True(t, decimal.RequireFromString("26.5").Equal(out.Series[0].RatePercent))
}

func TestComputeSeries_MissingYearsAreNotAnError(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("VN", "610910")
	body["start_year"] = 2013
	body["end_year"] = 2016
	rec := env.do(t, http.MethodPost, "/api/series", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out seriesResponse
	decodeBody(t, rec, &out)
	assert.Len(t, out.Series, 2)
	require.Len(t, out.MissingYears, 2)
	assert.Equal(t, 2013, out.MissingYears[0].Year)
}

func TestComputeSeries_InvalidRange(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("", "850440")
	body["start_year"] = 2022
	body["end_year"] = 2020
	rec := env.do(t, http.MethodPost, "/api/series", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComputeSeries_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, "baseline")

	rec := env.do(t, http.MethodPost, "/api/series", map[string]any{
		"hs6_product_code": "85",
		"trade_original":   "100",
		"start_year":       2020,
		"end_year":         2021,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var out struct {
		Code    string       `json:"code"`
		Details []FieldError `json:"details"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, "validation_failed", out.Code)

	fields := map[string]string{}
	for _, d := range out.Details {
		fields[d.Field] = d.Rule
	}
	assert.Equal(t, "required", fields["importer_code"])
	assert.Equal(t, "len", fields["hs6_product_code"])
}

func TestComputeSeries_RejectsUnknownFieldsAndBadTrade(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("", "850440")
	body["start_year"] = 2020
	body["end_year"] = 2020
	body["surprise"] = true
	rec := env.do(t, http.MethodPost, "/api/series", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	delete(body, "surprise")
	body["trade_original"] = "-5"
	rec = env.do(t, http.MethodPost, "/api/series", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportSeries_CSV(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("", "850440")
	body["start_year"] = 2020
	body["end_year"] = 2022
	rec := env.do(t, http.MethodPost, "/api/series/export?format=csv", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "series.csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

// =============================================================================
// COMPARISON
// =============================================================================

func TestCompare_RanksExporters(t *testing.T) {
	// GIVEN: Baseline schedules with USMCA preferences on converters
	// WHEN: Comparing CN, MX and CA
	// THEN: CN ranks last, 1.5% above the best

	env := newTestEnv(t, "baseline")

	body := quoteBody("", "850440")
	body["exporters"] = []string{"CN", "mx", "CA", "MX"}
	rec := env.do(t, http.MethodPost, "/api/compare", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out comparisonResponse
	decodeBody(t, rec, &out)
	require.Len(t, out.RankedResults, 3)
	assert.Len(t, out.ChartData, 3)

	best := out.RankedResults[0]
	assert.Equal(t, 1, best.Rank)
	assert.True(t, decimal.NewFromInt(10000).Equal(best.TotalCost))

	last := out.RankedResults[2]
	assert.Equal(t, "CN", last.CountryCode)
	assert.Equal(t, "China", last.CountryName)
	assert.True(t, decimal.RequireFromString("1.5").Equal(last.PercentDiffFromBest))
}

func TestCompare_FailureReturnsNoPartialTable(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("", "999999")
	body["exporters"] = []string{"MX", "CA"}
	rec := env.do(t, http.MethodPost, "/api/compare", body)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var out struct {
		Code          string            `json:"code"`
		Details       map[string]string `json:"details"`
		RankedResults []any             `json:"ranked_results"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, "comparison_failed", out.Code)
	assert.NotEmpty(t, out.Details["country_code"])
	assert.Nil(t, out.RankedResults)
}

func TestCompare_RequiresExporters(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("", "850440")
	body["exporters"] = []string{}
	rec := env.do(t, http.MethodPost, "/api/compare", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportComparison(t *testing.T) {
	env := newTestEnv(t, "baseline")
	body := quoteBody("", "850440")
	body["exporters"] = []string{"CN", "MX"}

	t.Run("csv", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/compare/export?format=csv", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "MX", records[1][1])
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/compare/export?format=xlsx", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		f, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Comparison")
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("unsupported format", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/compare/export?format=pdf", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// QUOTES AND HISTORY
// =============================================================================

func TestCreateQuote_SaveAndHistory(t *testing.T) {
	env := newTestEnv(t, "baseline")

	body := quoteBody("CN", "850440")
	body["save"] = true
	body["user_id"] = "alice"
	rec := env.do(t, http.MethodPost, "/api/quotes", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		HistoryID string `json:"history_id"`
		Effective struct {
			RatePercent    decimal.Decimal `json:"rate_percent"`
			Classification string          `json:"classification"`
		} `json:"effective"`
	}
	decodeBody(t, rec, &out)
	assert.NotEmpty(t, out.HistoryID)
	assert.Equal(t, "MFN", out.Effective.Classification)
	assert.True(t, decimal.RequireFromString("1.5").Equal(out.Effective.RatePercent))

	rec = env.do(t, http.MethodGet, "/api/history?user_id=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, out.HistoryID, history[0].ID)

	rec = env.do(t, http.MethodGet, "/api/history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateQuote_NotFound(t *testing.T) {
	env := newTestEnv(t, "baseline")

	rec := env.do(t, http.MethodPost, "/api/quotes", quoteBody("CN", "999999"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unsaved quotes answer 200
	rec = env.do(t, http.MethodPost, "/api/quotes", quoteBody("CN", "850440"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// SUSPENSIONS
// =============================================================================

func TestSuspensions_CreateAndList(t *testing.T) {
	env := newTestEnv(t, "baseline")

	rec := env.do(t, http.MethodPost, "/api/suspensions", map[string]string{
		"importer":   "us",
		"hs6":        "850440",
		"valid_from": "2023-02-01",
		"rate":       "0",
		"note":       "temporary relief",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created factory.SuspensionJSON
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "US", created.Importer)

	rec = env.do(t, http.MethodGet, "/api/suspensions?importer=US&hs6=850440&start_year=2023&end_year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []factory.SuspensionJSON
	decodeBody(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	rec = env.do(t, http.MethodGet, "/api/suspensions?importer=US&hs6=850440&start_year=2010&end_year=2012", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSuspensions_Delete(t *testing.T) {
	// GIVEN: A window created through the API
	// WHEN: Deleting it, then deleting it again
	// THEN: 204 then 404, and the list is empty

	env := newTestEnv(t, "baseline")

	rec := env.do(t, http.MethodPost, "/api/suspensions", map[string]string{
		"importer": "US", "hs6": "850440", "valid_from": "2023-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created factory.SuspensionJSON
	decodeBody(t, rec, &created)

	rec = env.do(t, http.MethodDelete, "/api/suspensions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/suspensions?importer=US&hs6=850440", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/suspensions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuspensions_BadInput(t *testing.T) {
	env := newTestEnv(t, "baseline")

	rec := env.do(t, http.MethodPost, "/api/suspensions", map[string]string{
		"importer": "US", "hs6": "12", "valid_from": "2023-02-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/suspensions?importer=US", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/suspensions?importer=US&hs6=850440&start_year=2024&end_year=2020", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_ListLoadAndReset(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ScenarioDTO
	decodeBody(t, rec, &list)
	assert.Len(t, list, len(factory.Scenarios()))

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "rolling-exclusions"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Contains(t, rec.Body.String(), "rolling-exclusions")

	windows, err := env.store.Suspensions(context.Background(), "US", "850440", 2019, 2020)
	require.NoError(t, err)
	assert.Len(t, windows, 2)

	rec = env.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	windows, err = env.store.Suspensions(context.Background(), "US", "850440", 2019, 2020)
	require.NoError(t, err)
	assert.Empty(t, windows)

	rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.JSONEq(t, `{"scenario": null}`, rec.Body.String())
}

func TestLoadScenario_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.handler.Table = nil
	rec = env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "baseline"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// METRICS
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "baseline")
	env.do(t, http.MethodPost, "/api/quotes", quoteBody("CN", "850440"))

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "landedcost_oracle_requests_total")
}
