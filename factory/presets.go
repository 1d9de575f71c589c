package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/landed-cost/oracle"
)

// ParseSchedules parses a JSON document and returns only its schedules.
func ParseSchedules(jsonStr string) ([]oracle.Schedule, error) {
	doc, err := NewScheduleFactory().ParseJSON(jsonStr)
	if err != nil {
		return nil, err
	}
	return doc.Schedules, nil
}

// =============================================================================
// PRESET BUILDERS
// =============================================================================

// MFNScheduleJSON returns a single open-ended MFN schedule for any exporter.
func MFNScheduleJSON(importer, hs6, mfnRate, validFrom string) map[string]interface{} {
	return map[string]interface{}{
		"importer": importer,
		"exporter": "*",
		"hs6":      hs6,
		"windows": []map[string]interface{}{
			{"valid_from": validFrom, "mfn_rate": mfnRate},
		},
	}
}

// PreferentialScheduleJSON returns an exporter-specific schedule that keeps
// the MFN rate and layers a preferential rate from validFrom.
func PreferentialScheduleJSON(importer, exporter, hs6, mfnRate, prefRate, validFrom string) map[string]interface{} {
	return map[string]interface{}{
		"importer": importer,
		"exporter": exporter,
		"hs6":      hs6,
		"windows": []map[string]interface{}{
			{"valid_from": validFrom, "mfn_rate": mfnRate, "preferential_rate": prefRate},
		},
	}
}

// CompoundScheduleJSON returns an MFN plus per-kg schedule.
func CompoundScheduleJSON(importer, hs6, mfnRate, perKg, validFrom string) map[string]interface{} {
	return map[string]interface{}{
		"importer": importer,
		"exporter": "*",
		"hs6":      hs6,
		"windows": []map[string]interface{}{
			{"valid_from": validFrom, "mfn_rate": mfnRate, "specific_rate_per_kg": perKg},
		},
	}
}

// SuspendedScheduleJSON returns an exporter schedule with a surcharge MFN
// window and a suspended window inside it.
func SuspendedScheduleJSON(importer, exporter, hs6, mfnRate, suspendedRate, from, suspFrom, suspTo string) map[string]interface{} {
	susp := map[string]interface{}{
		"valid_from": suspFrom, "mfn_rate": mfnRate, "suspension_rate": suspendedRate,
	}
	if suspTo != "" {
		susp["valid_to"] = suspTo
	}
	return map[string]interface{}{
		"importer": importer,
		"exporter": exporter,
		"hs6":      hs6,
		"windows": []map[string]interface{}{
			{"valid_from": from, "mfn_rate": mfnRate},
			susp,
		},
	}
}

// SuspensionWindowJSON returns a suspension directory entry.
func SuspensionWindowJSON(importer, hs6, rate, from, to, note string) map[string]interface{} {
	s := map[string]interface{}{
		"importer":   importer,
		"hs6":        hs6,
		"valid_from": from,
		"rate":       rate,
		"note":       note,
	}
	if to != "" {
		s["valid_to"] = to
	}
	return s
}

// DocumentJSONString assembles schedules and suspensions into a document.
func DocumentJSONString(schedules, suspensions []map[string]interface{}) string {
	doc := map[string]interface{}{"schedules": schedules}
	if len(suspensions) > 0 {
		doc["suspensions"] = suspensions
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return string(b)
}

// =============================================================================
// DEMO DATA
// =============================================================================

// baselineSchedules are MFN rates for the reference products into the US.
func baselineSchedules() []map[string]interface{} {
	return []map[string]interface{}{
		MFNScheduleJSON("US", "850440", "1.5", "2015-01-01"),
		MFNScheduleJSON("US", "610910", "16.5", "2015-01-01"),
		MFNScheduleJSON("US", "940360", "0", "2015-01-01"),
		MFNScheduleJSON("US", "870380", "2.5", "2015-01-01"),
		CompoundScheduleJSON("US", "020130", "10", "0.264", "2015-01-01"),
		PreferentialScheduleJSON("US", "MX", "850440", "1.5", "0", "2020-07-01"),
		PreferentialScheduleJSON("US", "CA", "850440", "1.5", "0", "2020-07-01"),
		PreferentialScheduleJSON("US", "KR", "610910", "16.5", "0", "2012-03-15"),
		PreferentialScheduleJSON("US", "VN", "610910", "16.5", "16.5", "2015-01-01"),
	}
}

// DemoSchedulesJSON is the default table oracle configuration.
var DemoSchedulesJSON = DocumentJSONString(baselineSchedules(), nil)

// Scenario is a named document that can be loaded into a running system.
type Scenario struct {
	ID          string
	Name        string
	Description string
	JSON        string
}

// Scenarios returns the built-in demo scenarios.
func Scenarios() []Scenario {
	return []Scenario{
		{
			ID:          "baseline",
			Name:        "MFN Baseline",
			Description: "MFN rates only, with USMCA and KORUS preferences",
			JSON:        DemoSchedulesJSON,
		},
		{
			ID:          "section-301",
			Name:        "Section 301 Exclusions",
			Description: "25% surcharge on CN converters with a suspended exclusion window",
			JSON:        section301JSON(),
		},
		{
			ID:          "rolling-exclusions",
			Name:        "Rolling Exclusions",
			Description: "Overlapping and open-ended suspensions across several years",
			JSON:        rollingExclusionsJSON(),
		},
	}
}

// ScenarioByID finds a built-in scenario.
func ScenarioByID(id string) (Scenario, error) {
	for _, s := range Scenarios() {
		if s.ID == id {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario: %s", id)
}

func section301JSON() string {
	schedules := append(baselineSchedules(),
		SuspendedScheduleJSON("US", "CN", "850440", "26.5", "1.5", "2018-07-06", "2020-03-15", "2020-12-31"),
	)
	suspensions := []map[string]interface{}{
		SuspensionWindowJSON("US", "850440", "1.5", "2020-03-15", "2020-12-31", "Section 301 exclusion"),
	}
	return DocumentJSONString(schedules, suspensions)
}

func rollingExclusionsJSON() string {
	schedules := append(baselineSchedules(),
		SuspendedScheduleJSON("US", "CN", "850440", "26.5", "1.5", "2018-07-06", "2019-08-01", "2020-05-31"),
		SuspendedScheduleJSON("US", "CN", "610910", "24", "16.5", "2019-09-01", "2022-04-01", ""),
	)
	suspensions := []map[string]interface{}{
		SuspensionWindowJSON("US", "850440", "1.5", "2019-08-01", "2020-05-31", "Exclusion 1"),
		SuspensionWindowJSON("US", "850440", "1.5", "2020-03-01", "2020-09-30", "Exclusion 1 extension"),
		SuspensionWindowJSON("US", "610910", "16.5", "2022-04-01", "", "Open-ended exclusion"),
	}
	return DocumentJSONString(schedules, suspensions)
}
