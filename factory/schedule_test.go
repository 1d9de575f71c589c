package factory_test

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/landed-cost/factory"
	"github.com/warp/landed-cost/oracle"
	"github.com/warp/landed-cost/tariff"
)

const sampleJSON = `{
  "schedules": [
    {
      "importer": "us",
      "hs6": "850440",
      "windows": [
        {"valid_from": "2015-01-01", "mfn_rate": "3.4"},
        {"valid_from": "2021-03-15", "valid_to": "2021-12-31", "mfn_rate": "3.4", "suspension_rate": "0"}
      ]
    }
  ],
  "suspensions": [
    {"importer": "US", "hs6": "850440", "valid_from": "2021-03-15", "valid_to": "2021-12-31", "rate": "0", "note": "exclusion"}
  ]
}`

const sampleYAML = `
schedules:
  - importer: US
    exporter: MX
    hs6: "850440"
    windows:
      - valid_from: "2020-07-01"
        mfn_rate: "3.4"
        preferential_rate: "0"
`

func TestParseJSON(t *testing.T) {
	doc, err := factory.NewScheduleFactory().ParseJSON(sampleJSON)
	require.NoError(t, err)

	require.Len(t, doc.Schedules, 1)
	s := doc.Schedules[0]
	assert.Equal(t, "US", s.ImporterCode)
	assert.Equal(t, "", s.ExporterCode)
	require.Len(t, s.Windows, 2)
	assert.Nil(t, s.Windows[0].ValidTo)
	require.NotNil(t, s.Windows[1].ValidTo)
	assert.Equal(t, "2021-12-31", s.Windows[1].ValidTo.String())
	assert.Equal(t, tariff.ClassSuspended, s.Windows[1].Components.Variant().Classification())

	require.Len(t, doc.Suspensions, 1)
	susp := doc.Suspensions[0]
	assert.NotEmpty(t, susp.ID)
	assert.Equal(t, "exclusion", susp.Note)
	require.NotNil(t, susp.Rate)
	assert.True(t, susp.Rate.IsZero())
}

func TestParseYAML(t *testing.T) {
	doc, err := factory.NewScheduleFactory().Parse("rates.yml", []byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, doc.Schedules, 1)
	assert.Equal(t, "MX", doc.Schedules[0].ExporterCode)
	assert.Equal(t, tariff.ClassPreferential, doc.Schedules[0].Windows[0].Components.Variant().Classification())
}

func TestParseJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"schedules": [`},
		{"missing importer", `{"schedules":[{"hs6":"850440","windows":[{"valid_from":"2020-01-01"}]}]}`},
		{"short hs6", `{"schedules":[{"importer":"US","hs6":"8504","windows":[{"valid_from":"2020-01-01"}]}]}`},
		{"no windows", `{"schedules":[{"importer":"US","hs6":"850440","windows":[]}]}`},
		{"bad date", `{"schedules":[{"importer":"US","hs6":"850440","windows":[{"valid_from":"2020-13-01"}]}]}`},
		{"inverted window", `{"schedules":[{"importer":"US","hs6":"850440","windows":[{"valid_from":"2021-01-01","valid_to":"2020-01-01"}]}]}`},
		{"bad rate", `{"schedules":[{"importer":"US","hs6":"850440","windows":[{"valid_from":"2020-01-01","mfn_rate":"lots"}]}]}`},
		{"bad suspension", `{"schedules":[],"suspensions":[{"importer":"US","hs6":"850440","valid_from":"soon"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewScheduleFactory().ParseJSON(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestSuspensionToJSON_RoundTrip(t *testing.T) {
	f := factory.NewScheduleFactory()
	to := civil.Date{Year: 2021, Month: 12, Day: 31}
	rate := decimal.RequireFromString("1.5")
	in := tariff.SuspensionInterval{
		ID: "s-1", ImporterCode: "US", HS6ProductCode: "850440",
		ValidFrom: civil.Date{Year: 2021, Month: 3, Day: 15}, ValidTo: &to, Rate: &rate, Note: "n",
	}

	doc, err := f.FromJSON(factory.DocumentJSON{Suspensions: []factory.SuspensionJSON{f.SuspensionToJSON(in)}})
	require.NoError(t, err)
	require.Len(t, doc.Suspensions, 1)

	out := doc.Suspensions[0]
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.ValidFrom, out.ValidFrom)
	assert.Equal(t, *in.ValidTo, *out.ValidTo)
	assert.True(t, in.Rate.Equal(*out.Rate))
}

// =============================================================================
// PRESETS
// =============================================================================

func TestDemoSchedulesDriveTheTableOracle(t *testing.T) {
	schedules, err := factory.ParseSchedules(factory.DemoSchedulesJSON)
	require.NoError(t, err)
	require.NotEmpty(t, schedules)

	tbl, err := oracle.NewTable(schedules, "", "")
	require.NoError(t, err)

	req := tariff.QuoteRequest{
		ImporterCode:    "US",
		HS6ProductCode:  "850440",
		TradeOriginal:   decimal.NewFromInt(1000),
		TransactionDate: civil.Date{Year: 2022, Month: 6, Day: 1},
	}

	res, err := tbl.Quote(context.Background(), req.WithExporter("MX"))
	require.NoError(t, err)
	assert.Equal(t, tariff.ClassPreferential, res.Components.Variant().Classification())

	res, err = tbl.Quote(context.Background(), req.WithExporter("DE"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1015).Equal(res.TradeFinal))
}

func TestScenariosParse(t *testing.T) {
	f := factory.NewScheduleFactory()
	for _, s := range factory.Scenarios() {
		t.Run(s.ID, func(t *testing.T) {
			doc, err := f.ParseJSON(s.JSON)
			require.NoError(t, err)
			assert.NotEmpty(t, doc.Schedules)
		})
	}

	_, err := factory.ScenarioByID("nope")
	assert.Error(t, err)

	s, err := factory.ScenarioByID("section-301")
	require.NoError(t, err)
	doc, err := f.ParseJSON(s.JSON)
	require.NoError(t, err)
	assert.Len(t, doc.Suspensions, 1)
}

func TestFromJSON_SuspensionWithoutIDGetsStableID(t *testing.T) {
	// GIVEN: The same id-less window parsed twice, and a window on other dates
	// WHEN: Building the documents
	// THEN: The same window gets the same id; different dates get another

	f := factory.NewScheduleFactory()
	window := factory.SuspensionJSON{Importer: "us", HS6: "850440", ValidFrom: "2021-03-15", ValidTo: "2021-12-31", Rate: "0"}
	other := window
	other.ValidTo = ""

	first, err := f.FromJSON(factory.DocumentJSON{Suspensions: []factory.SuspensionJSON{window}})
	require.NoError(t, err)
	second, err := f.FromJSON(factory.DocumentJSON{Suspensions: []factory.SuspensionJSON{window, other}})
	require.NoError(t, err)

	assert.NotEmpty(t, first.Suspensions[0].ID)
	assert.Equal(t, first.Suspensions[0].ID, second.Suspensions[0].ID)
	assert.NotEqual(t, second.Suspensions[0].ID, second.Suspensions[1].ID)
}
