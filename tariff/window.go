package tariff

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SUSPENSION INTERVAL - A dated window of temporary rate override
// =============================================================================

// SuspensionInterval is a window [ValidFrom, ValidTo] during which a
// temporary rate overrides the otherwise applicable one. ValidTo nil means
// the suspension is open-ended.
//
// Only ValidFrom and ValidTo matter to the date mapper. The remaining
// fields are carried by the Suspension Directory for display and storage.
type SuspensionInterval struct {
	ID             string           `json:"id,omitempty"`
	ImporterCode   string           `json:"importer_code,omitempty"`
	HS6ProductCode string           `json:"hs6_product_code,omitempty"`
	Rate           *decimal.Decimal `json:"rate,omitempty"`
	Note           string           `json:"note,omitempty"`
	ValidFrom      civil.Date       `json:"valid_from"`
	ValidTo        *civil.Date      `json:"valid_to,omitempty"`
}

// IsOpenEnded returns true if the suspension has no end date.
func (s SuspensionInterval) IsOpenEnded() bool { return s.ValidTo == nil }

// IsValid returns false for intervals that end before they start.
func (s SuspensionInterval) IsValid() bool {
	return s.ValidFrom.IsValid() && (s.ValidTo == nil || onOrAfter(*s.ValidTo, s.ValidFrom))
}

// Contains returns true if the date is within [ValidFrom, ValidTo].
func (s SuspensionInterval) Contains(d civil.Date) bool {
	if d.Before(s.ValidFrom) {
		return false
	}
	return s.ValidTo == nil || onOrBefore(d, *s.ValidTo)
}

// StartsIn returns true if ValidFrom falls in the calendar year.
func (s SuspensionInterval) StartsIn(year int) bool {
	return s.ValidFrom.Year == year
}

// ActiveDuring returns true if the interval overlaps any day of the year:
// ValidFrom <= Dec-31 and (open-ended or ValidTo >= Jan-01).
func (s SuspensionInterval) ActiveDuring(year int) bool {
	if s.ValidFrom.After(EndOfYear(year)) {
		return false
	}
	return s.ValidTo == nil || onOrAfter(*s.ValidTo, StartOfYear(year))
}

// OverlapsRange returns true if the interval touches any year in
// [startYear, endYear]. Directories use it to pre-filter.
func (s SuspensionInterval) OverlapsRange(startYear, endYear int) bool {
	if s.ValidFrom.After(EndOfYear(endYear)) {
		return false
	}
	return s.ValidTo == nil || onOrAfter(*s.ValidTo, StartOfYear(startYear))
}
