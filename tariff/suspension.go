package tariff

import (
	"sort"

	"cloud.google.com/go/civil"
)

// =============================================================================
// SUSPENSION WINDOW MAPPER - One representative query date per year
// =============================================================================

// YearDateMap maps a calendar year to the date used to query it.
type YearDateMap map[int]civil.Date

// Years returns the mapped years ascending.
func (m YearDateMap) Years() []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// BuildYearDateMap picks one query date for every year in
// [startYear, endYear] so that temporary suspensions are sampled:
//
//	a. a suspension starts in the year  -> its start date
//	b. a suspension is active that year -> max(start, Jan-01)
//	c. otherwise                        -> Jul-01
//
// When several intervals qualify, the one with the earliest ValidFrom wins.
// Intervals that end before they start are ignored. An inverted range
// yields an empty map.
func BuildYearDateMap(intervals []SuspensionInterval, startYear, endYear int) YearDateMap {
	if startYear > endYear {
		return YearDateMap{}
	}

	ordered := make([]SuspensionInterval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.IsValid() {
			ordered = append(ordered, iv)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ValidFrom.Before(ordered[j].ValidFrom)
	})

	m := make(YearDateMap, endYear-startYear+1)
	for year := startYear; year <= endYear; year++ {
		m[year] = queryDateFor(ordered, year)
	}
	return m
}

// queryDateFor expects intervals sorted by ValidFrom.
func queryDateFor(ordered []SuspensionInterval, year int) civil.Date {
	for _, iv := range ordered {
		if iv.StartsIn(year) {
			return iv.ValidFrom
		}
	}
	for _, iv := range ordered {
		if iv.ActiveDuring(year) {
			return laterOf(iv.ValidFrom, StartOfYear(year))
		}
	}
	return MidYear(year)
}
