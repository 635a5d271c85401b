package signals

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "report_date": "2022-01-03",
  "regime": {"state": "LOW_VOL_GRIND", "confidence": 0.8},
  "candidates": [
    {
      "symbol": "SPY",
      "recommendation": "TRADE",
      "edge": {"type": "skew_extreme", "strength": 0.82, "metrics": {"iv_percentile": 65}},
      "structure": {
        "type": "put_credit_spread",
        "spread_type": "credit",
        "expiry": "2022-01-21",
        "legs": [
          {"strike": 440, "right": "P", "side": "SELL", "expiry": "2022-01-21"},
          {"strike": 435, "right": "P", "side": "BUY", "expiry": "2022-01-21"}
        ],
        "max_loss_dollars": 454,
        "max_profit_dollars": 46
      }
    },
    {
      "symbol": "SPY",
      "recommendation": "WATCH",
      "edge": {"type": "skew_extreme", "strength": 0.90},
      "structure": {"spread_type": "credit", "legs": []}
    },
    {
      "symbol": "QQQ",
      "recommendation": "TRADE",
      "edge": {"type": "skew_extreme", "strength": 0.30},
      "structure": {"spread_type": "credit", "legs": []}
    },
    {
      "symbol": "TLT",
      "recommendation": "TRADE",
      "edge": {"type": "skew_extreme", "strength": 0.75},
      "structure": {"type": "call_debit_spread", "spread_type": "debit", "legs": []}
    }
  ]
}`

func writeReport(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testFilter() Filter {
	return Filter{
		Symbols:         []string{"SPY", "QQQ", "IWM", "TLT"},
		MinEdgeStrength: 0.50,
		TradeOnly:       true,
		AllowCredit:     true,
		AllowDebit:      true,
	}
}

func dateRange(t *testing.T, start, end string) (time.Time, time.Time) {
	t.Helper()
	s, err := time.Parse(dateLayout, start)
	require.NoError(t, err)
	e, err := time.Parse(dateLayout, end)
	require.NoError(t, err)
	return s, e
}

func TestLoadSignals_FiltersAndDropCounts(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "2022-01-03.json", sampleReport)

	loader := NewLoader(dir, testFilter())
	start, end := dateRange(t, "2022-01-03", "2022-01-03")

	sigs, drops, err := loader.LoadSignals(start, end)
	require.NoError(t, err)

	// Pasan SPY TRADE (0.82) y TLT debit (0.75); caen el WATCH y el 0.30.
	require.Len(t, sigs, 2)
	assert.Equal(t, "SPY", sigs[0].Candidate.Symbol)
	assert.Equal(t, "TLT", sigs[1].Candidate.Symbol)
	assert.Equal(t, "2022-01-03", sigs[0].SignalDate)
	assert.Equal(t, "LOW_VOL_GRIND", sigs[0].Regime)
	assert.Equal(t, 0.82, sigs[0].Candidate.Edge.Strength)
	require.Len(t, sigs[0].Candidate.Structure.Legs, 2)
	assert.Equal(t, "SELL", sigs[0].Candidate.Structure.Legs[0].Side)

	assert.Equal(t, 1, drops.FilesFound)
	assert.Equal(t, 4, drops.CandidatesParsed)
	assert.Equal(t, 1, drops.RecommendationNotTrade)
	assert.Equal(t, 1, drops.StrengthBelowMin)
	assert.Equal(t, 2, drops.PassedFilters)
}

func TestLoadSignals_DisabledSymbol(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "2022-01-03.json", sampleReport)

	filter := testFilter()
	filter.DisabledSymbols = []string{"SPY"}

	loader := NewLoader(dir, filter)
	start, end := dateRange(t, "2022-01-03", "2022-01-03")

	sigs, drops, err := loader.LoadSignals(start, end)
	require.NoError(t, err)

	require.Len(t, sigs, 1)
	assert.Equal(t, "TLT", sigs[0].Candidate.Symbol)
	assert.Equal(t, 2, drops.DisabledSymbol)
}

func TestLoadSignals_DebitToggle(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "2022-01-03.json", sampleReport)

	filter := testFilter()
	filter.AllowDebit = false

	loader := NewLoader(dir, filter)
	start, end := dateRange(t, "2022-01-03", "2022-01-03")

	sigs, drops, err := loader.LoadSignals(start, end)
	require.NoError(t, err)

	require.Len(t, sigs, 1)
	assert.Equal(t, "SPY", sigs[0].Candidate.Symbol)
	assert.Equal(t, 1, drops.DebitFiltered)
}

func TestLoadSignals_BackfillNamePatterns(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "2022-01-03_open.json", sampleReport)
	writeReport(t, dir, "2022-01-04__SPY__backfill.json", sampleReport)

	loader := NewLoader(dir, testFilter())
	start, end := dateRange(t, "2022-01-03", "2022-01-05")

	sigs, drops, err := loader.LoadSignals(start, end)
	require.NoError(t, err)

	assert.Equal(t, 2, drops.FilesFound)
	require.Len(t, sigs, 4)
	assert.Equal(t, "2022-01-03", sigs[0].SignalDate)
	assert.Equal(t, "2022-01-04", sigs[2].SignalDate)
}

func TestLoadSignals_MalformedReportIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "2022-01-03.json", "{not json")
	writeReport(t, dir, "2022-01-04.json", sampleReport)

	loader := NewLoader(dir, testFilter())
	start, end := dateRange(t, "2022-01-03", "2022-01-04")

	sigs, drops, err := loader.LoadSignals(start, end)
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	assert.Equal(t, 2, drops.FilesFound)
}

func TestLoadSignals_InvertedRangeFails(t *testing.T) {
	loader := NewLoader(t.TempDir(), testFilter())
	start, end := dateRange(t, "2022-01-10", "2022-01-03")

	_, _, err := loader.LoadSignals(end, start)
	require.NoError(t, err) // rango válido al derecho

	_, _, err = loader.LoadSignals(start, end)
	assert.Error(t, err)
}

func TestRegimeLabel_Variants(t *testing.T) {
	// Forma actual del productor: objeto con state y confidence.
	assert.Equal(t, "LOW_VOL_GRIND", regimeLabel([]byte(`{"state": "LOW_VOL_GRIND", "confidence": 0.8}`)))
	// Formas históricas.
	assert.Equal(t, "normal", regimeLabel([]byte(`"normal"`)))
	assert.Equal(t, "stressed", regimeLabel([]byte(`{"label": "stressed"}`)))
	assert.Equal(t, "calm", regimeLabel([]byte(`{"regime": "calm"}`)))
	// state tiene prioridad sobre los alias antiguos.
	assert.Equal(t, "HIGH_VOL", regimeLabel([]byte(`{"state": "HIGH_VOL", "label": "old"}`)))
	assert.Equal(t, "unknown", regimeLabel(nil))
	assert.Equal(t, "unknown", regimeLabel([]byte(`42`)))
}
