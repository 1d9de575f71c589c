/*
handlers.go - HTTP API handlers for the landed cost engine

PURPOSE:
  Exposes the landed cost service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to landedcost.Service.

ENDPOINTS:
  Reference data:
    GET    /api/countries              List countries
    GET    /api/products               List HS6 products

  Calculations:
    POST   /api/quotes                 One quote, optionally saved
    GET    /api/history                Saved quotes, newest first
    POST   /api/series                 One rate per year
    POST   /api/series/export          Same, as CSV or XLSX
    POST   /api/compare                Rank exporters by landed cost
    POST   /api/compare/export         Same, as CSV or XLSX

  Suspensions:
    GET    /api/suspensions            Windows for an importer and product
    POST   /api/suspensions            Add or correct a window
    DELETE /api/suspensions/{id}       Remove a window

REQUEST FLOW:
  1. Decode and validate the body (validator struct tags)
  2. Convert to tariff types
  3. Call the service
  4. Serialize response or map the error

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with status:
  - 400: Validation errors, invalid year range
  - 404: No applicable rate, unknown suspension
  - 409: Superseded by a newer calculation
  - 502: Rate oracle failed (a failed comparison returns no partial table)
  - 503: Suspension directory unavailable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/landed-cost/export"
	"github.com/warp/landed-cost/factory"
	"github.com/warp/landed-cost/landedcost"
	"github.com/warp/landed-cost/oracle"
	"github.com/warp/landed-cost/tariff"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears stored suspensions and history.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *landedcost.Service
	// Store is reset before a scenario loads. May be nil.
	Store Resetter
	// Table receives scenario schedules. Nil when the oracle is remote.
	Table   *oracle.Table
	Factory *factory.ScheduleFactory
	Logger  *zap.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *landedcost.Service, store Resetter, table *oracle.Table, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Store:    store,
		Table:    table,
		Factory:  factory.NewScheduleFactory(),
		Logger:   logger,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListCountries returns all countries sorted by name.
func (h *Handler) ListCountries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCountryDTOs(h.Service.RefData().Countries()))
}

// ListProducts returns all products sorted by HS6 code.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toProductDTOs(h.Service.RefData().Products()))
}

// =============================================================================
// QUOTE HANDLERS
// =============================================================================

// CreateQuote asks the oracle once.
func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := req.toQuoteRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quote request", err)
		return
	}

	res, err := h.Service.Quote(r.Context(), q, landedcost.QuoteOptions{Save: req.Save, UserID: req.UserID})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.HistoryID != "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// ListHistory returns saved quotes filtered by query parameters.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tariff.HistoryFilter{
		ImporterCode:   strings.ToUpper(q.Get("importer")),
		HS6ProductCode: q.Get("hs6"),
		UserID:         q.Get("user_id"),
		Limit:          100,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	records, err := h.Service.History(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// YEAR SERIES HANDLERS
// =============================================================================

// ComputeSeries returns one point per year. Years without a rate are
// listed in missing_years; they do not fail the request.
func (h *Handler) ComputeSeries(w http.ResponseWriter, r *http.Request) {
	res, ok := h.series(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportSeries returns the series as a file.
func (h *Handler) ExportSeries(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid export format", err)
		return
	}
	res, ok := h.series(w, r)
	if !ok {
		return
	}
	h.writeExport(w, format, "series", export.SeriesTable(*res.YearSeries))
}

func (h *Handler) series(w http.ResponseWriter, r *http.Request) (*landedcost.SeriesResult, bool) {
	var req SeriesRequest
	if !h.decode(w, r, &req) {
		return nil, false
	}
	base, err := req.toQuoteRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid series request", err)
		return nil, false
	}

	res, err := h.Service.ComputeYearSeries(r.Context(), landedcost.SeriesRequest{
		SessionKey: req.SessionKey,
		Base:       base,
		StartYear:  req.StartYear,
		EndYear:    req.EndYear,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}
	return res, true
}

// =============================================================================
// COMPARISON HANDLERS
// =============================================================================

// Compare ranks the exporters by total landed cost.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	analysis, ok := h.compare(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// ExportComparison returns the ranked table as a file.
func (h *Handler) ExportComparison(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid export format", err)
		return
	}
	analysis, ok := h.compare(w, r)
	if !ok {
		return
	}
	h.writeExport(w, format, "comparison", export.ComparisonTable(*analysis))
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request) (*tariff.ComparisonAnalysis, bool) {
	var req CompareRequest
	if !h.decode(w, r, &req) {
		return nil, false
	}
	req.ExporterCode = ""
	base, err := req.toQuoteRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid comparison request", err)
		return nil, false
	}

	analysis, err := h.Service.Compare(r.Context(), landedcost.ComparisonRequest{
		Base:      base,
		Exporters: req.Exporters,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}
	return analysis, true
}

func (h *Handler) writeExport(w http.ResponseWriter, format export.Format, name string, t export.Table) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, format))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, t); err != nil {
		// Headers are gone; all we can do is log.
		h.Logger.Error("export failed", zap.String("format", string(format)), zap.Error(err))
	}
}

// =============================================================================
// SUSPENSION HANDLERS
// =============================================================================

// ListSuspensions returns windows for ?importer=&hs6=, optionally limited
// to ?start_year=&end_year=.
func (h *Handler) ListSuspensions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	importer := strings.ToUpper(strings.TrimSpace(q.Get("importer")))
	hs6 := strings.TrimSpace(q.Get("hs6"))
	if importer == "" || hs6 == "" {
		writeError(w, http.StatusBadRequest, "importer and hs6 are required", nil)
		return
	}

	startYear, err := intParam(q.Get("start_year"), 1900)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_year", err)
		return
	}
	endYear, err := intParam(q.Get("end_year"), 2200)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_year", err)
		return
	}

	windows, err := h.Service.Suspensions(r.Context(), importer, hs6, startYear, endYear)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]factory.SuspensionJSON, len(windows))
	for i, s := range windows {
		dtos[i] = h.Factory.SuspensionToJSON(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSuspension adds a window, or replaces the one with the same id.
func (h *Handler) CreateSuspension(w http.ResponseWriter, r *http.Request) {
	var in factory.SuspensionJSON
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	keepID := in.ID
	doc, err := h.Factory.FromJSON(factory.DocumentJSON{Suspensions: []factory.SuspensionJSON{in}})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid suspension", err)
		return
	}
	susp := doc.Suspensions[0]
	// The service assigns missing ids.
	susp.ID = keepID

	saved, err := h.Service.SaveSuspension(r.Context(), susp)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.SuspensionToJSON(saved))
}

// DeleteSuspension removes the window named by {id}.
func (h *Handler) DeleteSuspension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.DeleteSuspension(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "Invalid request", err)
			return false
		}
		details := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			details[i] = FieldError{Field: fe.Field(), Rule: fe.Tag()}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation_failed",
			Details: details,
		})
		return false
	}
	return true
}

// writeServiceError maps service errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var cmpErr *tariff.ComparisonError

	switch {
	case errors.As(err, &cmpErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "Comparison failed",
			Code:    "comparison_failed",
			Details: map[string]string{"country_code": cmpErr.CountryCode, "error": cmpErr.Err.Error()},
		})
	case errors.Is(err, tariff.ErrSuspensionNotFound):
		writeError(w, http.StatusNotFound, "Suspension not found", err)
	case tariff.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case tariff.IsNotFound(err):
		writeError(w, http.StatusNotFound, "No applicable rate", err)
	case errors.Is(err, tariff.ErrSuperseded):
		writeError(w, http.StatusConflict, "Superseded by a newer calculation", err)
	case errors.Is(err, tariff.ErrDirectoryUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Suspension directory unavailable", err)
	case errors.Is(err, landedcost.ErrReadOnlyDirectory):
		writeError(w, http.StatusNotImplemented, "Suspensions are read-only", err)
	case tariff.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusBadGateway, "Rate oracle unavailable", err)
	default:
		h.Logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
