/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Requests carry codes
  and dates as strings and are validated with struct tags before they are
  turned into tariff types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Reference data:
    CountryDTO, ProductDTO

  Calculations:
    QuoteRequest, SeriesRequest, CompareRequest, QuoteResponseDTO

  Suspensions:
    factory.SuspensionJSON is used as-is for both directions

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Tags are checked by go-playground/validator in decodeAndValidate.
  Cross-field rules (start year after end year, positive trade value) are
  left to toQuoteRequest and the service so their errors keep their
  sentinel identity.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/schedule.go: SuspensionJSON
*/
package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/landed-cost/refdata"
	"github.com/warp/landed-cost/tariff"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// CountryDTO represents a country in API responses.
type CountryDTO struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// ProductDTO represents an HS6 product in API responses.
type ProductDTO struct {
	HS6         string `json:"hs6"`
	Description string `json:"description"`
}

// =============================================================================
// CALCULATION REQUESTS
// =============================================================================

// QuoteRequest is one route, product and shipment.
type QuoteRequest struct {
	ImporterCode     string           `json:"importer_code" validate:"required,len=2,alpha"`
	ExporterCode     string           `json:"exporter_code,omitempty" validate:"omitempty,len=2,alpha"`
	HS6ProductCode   string           `json:"hs6_product_code" validate:"required,len=6,numeric"`
	TradeOriginal    *decimal.Decimal `json:"trade_original" validate:"required"`
	TransactionDate  string           `json:"transaction_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	NetWeight        *decimal.Decimal `json:"net_weight,omitempty"`
	IncludeFreight   bool             `json:"include_freight"`
	IncludeInsurance bool             `json:"include_insurance"`
}

// CreateQuoteRequest asks for one quote, optionally saved to history.
type CreateQuoteRequest struct {
	QuoteRequest
	Save   bool   `json:"save"`
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

// SeriesRequest asks for one rate per year. TransactionDate is ignored;
// query dates come from the suspension windows.
type SeriesRequest struct {
	QuoteRequest
	SessionKey string `json:"session_key,omitempty" validate:"omitempty,max=128"`
	StartYear  int    `json:"start_year" validate:"required,min=1900,max=2200"`
	EndYear    int    `json:"end_year" validate:"required,min=1900,max=2200"`
}

// CompareRequest ranks one route across several exporters. ExporterCode
// on the embedded request is ignored.
type CompareRequest struct {
	QuoteRequest
	Exporters []string `json:"exporters" validate:"required,min=1,max=50,dive,len=2,alpha"`
}

// LoadScenarioRequest names a built-in scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

var errNonPositiveTrade = errors.New("trade_original must be positive")

// toQuoteRequest converts a validated request. An empty transaction date
// means today.
func (q QuoteRequest) toQuoteRequest() (tariff.QuoteRequest, error) {
	if q.TradeOriginal == nil || !q.TradeOriginal.IsPositive() {
		return tariff.QuoteRequest{}, errNonPositiveTrade
	}
	if q.NetWeight != nil && q.NetWeight.IsNegative() {
		return tariff.QuoteRequest{}, errors.New("net_weight must not be negative")
	}

	date := tariff.Today()
	if q.TransactionDate != "" {
		d, err := tariff.ParseDate(q.TransactionDate)
		if err != nil {
			return tariff.QuoteRequest{}, fmt.Errorf("invalid transaction_date: %w", err)
		}
		date = d
	}

	out := tariff.QuoteRequest{
		ImporterCode:     strings.ToUpper(q.ImporterCode),
		HS6ProductCode:   q.HS6ProductCode,
		TradeOriginal:    *q.TradeOriginal,
		TransactionDate:  date,
		NetWeight:        q.NetWeight,
		IncludeFreight:   q.IncludeFreight,
		IncludeInsurance: q.IncludeInsurance,
	}
	if q.ExporterCode != "" {
		out = out.WithExporter(strings.ToUpper(q.ExporterCode))
	}
	return out, nil
}

func toCountryDTOs(cs []refdata.Country) []CountryDTO {
	dtos := make([]CountryDTO, len(cs))
	for i, c := range cs {
		dtos[i] = CountryDTO{Code: c.Code, Name: c.Name, Region: c.Region}
	}
	return dtos
}

func toProductDTOs(ps []refdata.Product) []ProductDTO {
	dtos := make([]ProductDTO, len(ps))
	for i, p := range ps {
		dtos[i] = ProductDTO{HS6: p.HS6, Description: p.Description}
	}
	return dtos
}
