package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// memBars es un BarSource en memoria para tests.
type memBars struct {
	days map[string]map[string]domain.OptionBar
}

func newMemBars() *memBars {
	return &memBars{days: make(map[string]map[string]domain.OptionBar)}
}

func (m *memBars) set(date, ticker string, close float64) {
	if m.days[date] == nil {
		m.days[date] = make(map[string]domain.OptionBar)
	}
	m.days[date][ticker] = domain.OptionBar{Close: close, Volume: 100}
}

func (m *memBars) Load(date time.Time) (int, error) {
	return len(m.days[date.Format(dateLayout)]), nil
}

func (m *memBars) Lookup(date time.Time, ticker string) (domain.OptionBar, bool) {
	bar, ok := m.days[date.Format(dateLayout)][ticker]
	return bar, ok
}

func (m *memBars) Evict(date time.Time) {
	delete(m.days, date.Format(dateLayout))
}

func (m *memBars) EvictBefore(date time.Time) {
	cutoff := date.Format(dateLayout)
	for key := range m.days {
		if key < cutoff {
			delete(m.days, key)
		}
	}
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		Fill: baseFillConfig(),
		Rules: ExitRules{
			Credit: CreditExit{TakeProfitPct: 50, StopLossMult: 2.0, TimeStopDTE: 5},
			Debit:  DebitExit{TakeProfitPct: 200, StopLossPct: 50, TimeStopDTE: 5},
		},
		MaxPositionsPerSymbol: 1,
		CooldownAfterSLDays:   10,
	}
}

func creditPutSpreadSignal(signalDate, expiry string) domain.Signal {
	return domain.Signal{
		SignalDate: signalDate,
		ReportDate: signalDate,
		Regime:     "normal",
		Candidate: domain.Candidate{
			Symbol:         "SPY",
			Recommendation: "TRADE",
			Edge: domain.Edge{
				Type:     "skew_extreme",
				Strength: 0.80,
				Metrics:  map[string]float64{"iv_percentile": 50, "history_mode": 1},
			},
			Structure: domain.Structure{
				Type:             "put_credit_spread",
				SpreadType:       "credit",
				Expiry:           expiry,
				MaxLossDollars:   454,
				MaxProfitDollars: 46,
				Legs: []domain.CandidateLeg{
					{Strike: 440, Right: "P", Side: "SELL", Expiry: expiry},
					{Strike: 435, Right: "P", Side: "BUY", Expiry: expiry},
				},
			},
		},
	}
}

func debitCallSpreadSignal(signalDate, expiry string) domain.Signal {
	return domain.Signal{
		SignalDate: signalDate,
		ReportDate: signalDate,
		Regime:     "normal",
		Candidate: domain.Candidate{
			Symbol:         "SPY",
			Recommendation: "TRADE",
			Edge: domain.Edge{
				Type:     "skew_extreme",
				Strength: 0.80,
				Metrics:  map[string]float64{"iv_percentile": 50, "history_mode": 1},
			},
			Structure: domain.Structure{
				Type:             "call_debit_spread",
				SpreadType:       "debit",
				Expiry:           expiry,
				MaxLossDollars:   100,
				MaxProfitDollars: 400,
				Legs: []domain.CandidateLeg{
					{Strike: 450, Right: "C", Side: "BUY", Expiry: expiry},
					{Strike: 455, Right: "C", Side: "SELL", Expiry: expiry},
				},
			},
		},
	}
}

func setCreditBars(bars *memBars, date string, sellClose, buyClose float64) {
	expiry, _ := time.Parse(dateLayout, "2022-01-13")
	bars.set(date, domain.FormatTicker("SPY", expiry, domain.Put, 440), sellClose)
	bars.set(date, domain.FormatTicker("SPY", expiry, domain.Put, 435), buyClose)
}

func TestEngine_MissingLegSkipsCandidate(t *testing.T) {
	bars := newMemBars()
	expiry, _ := time.Parse(dateLayout, "2022-01-13")
	// Solo la pata vendida tiene barra en la fecha de señal.
	bars.set("2022-01-03", domain.FormatTicker("SPY", expiry, domain.Put, 440), 1.00)

	engine := NewEngine(testEngineConfig(), bars)
	trades, skips := engine.Run([]domain.Signal{creditPutSpreadSignal("2022-01-03", "2022-01-13")})

	assert.Empty(t, trades)
	assert.Equal(t, 1, skips["no_data"])
}

func TestEngine_TimeStopExit(t *testing.T) {
	bars := newMemBars()
	// Marcas planas todos los días: TP/SL nunca disparan.
	for d := 3; d <= 13; d++ {
		setCreditBars(bars, time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC).Format(dateLayout), 1.00, 0.50)
	}

	engine := NewEngine(testEngineConfig(), bars)
	trades, skips := engine.Run([]domain.Signal{creditPutSpreadSignal("2022-01-03", "2022-01-13")})

	require.Len(t, trades, 1)
	assert.Empty(t, skips)

	trade := trades[0]
	assert.Equal(t, domain.ExitTimeStop, trade.ExitReason)
	// DTE llega a 5 el 2022-01-08.
	assert.Equal(t, "2022-01-08", trade.ExitDate)
	assert.Equal(t, 5, trade.HoldDays)
	assert.Equal(t, 10, trade.DTEAtEntry)
	assert.Equal(t, domain.CreditSpread, trade.SpreadType)
	assert.InDelta(t, 0.46, trade.EntryPrice, 1e-9)
	// gross = (0.46 − 0.54) × 100 = −8; net = −8 − 2.60
	assert.InDelta(t, -10.60, trade.NetPnL, 1e-9)
	assert.Equal(t, "2022-01-03_SPY_put_credit_spread", trade.TradeID)
}

func TestEngine_DebitTakeProfitBeforeTimeStop(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Fill.SlippagePerLeg = 0 // débito de entrada exacto de $1.00

	bars := newMemBars()
	expiry, _ := time.Parse(dateLayout, "2022-03-31")
	long := domain.FormatTicker("SPY", expiry, domain.Call, 450)
	short := domain.FormatTicker("SPY", expiry, domain.Call, 455)

	for d := 1; d <= 20; d++ {
		date := time.Date(2022, 3, d, 0, 0, 0, 0, time.UTC).Format(dateLayout)
		bars.set(date, long, 3.00)
		bars.set(date, short, 2.00)
	}
	// Día 20: el spread se ensancha hasta el 50% del beneficio máximo.
	bars.set("2022-03-21", long, 5.00)
	bars.set("2022-03-21", short, 2.00)

	engine := NewEngine(cfg, bars)
	trades, skips := engine.Run([]domain.Signal{debitCallSpreadSignal("2022-03-01", "2022-03-31")})

	require.Len(t, trades, 1)
	assert.Empty(t, skips)

	trade := trades[0]
	assert.Equal(t, domain.ExitTakeProfit, trade.ExitReason)
	assert.Equal(t, "2022-03-21", trade.ExitDate)
	assert.Equal(t, domain.DebitSpread, trade.SpreadType)
	assert.InDelta(t, -1.00, trade.EntryPrice, 1e-9)
	// gross = (−1.00 + 3.00) × 100 = 200
	assert.InDelta(t, 200.0, trade.GrossPnL, 1e-9)
}

func TestEngine_StopLossThenCooldown(t *testing.T) {
	bars := newMemBars()
	expiry, _ := time.Parse(dateLayout, "2022-02-25")
	sell := domain.FormatTicker("SPY", expiry, domain.Put, 440)
	buy := domain.FormatTicker("SPY", expiry, domain.Put, 435)

	bars.set("2022-02-01", sell, 1.00)
	bars.set("2022-02-01", buy, 0.50)
	// Día siguiente: la pata vendida se dispara → mtm −108 < −92 (SL).
	bars.set("2022-02-02", sell, 2.00)
	bars.set("2022-02-02", buy, 0.50)

	sig1 := creditPutSpreadSignal("2022-02-01", "2022-02-25")
	sig2 := creditPutSpreadSignal("2022-02-07", "2022-02-25") // dentro del cooldown de 10 días

	engine := NewEngine(testEngineConfig(), bars)
	trades, skips := engine.Run([]domain.Signal{sig1, sig2})

	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitStopLoss, trades[0].ExitReason)
	assert.Equal(t, "2022-02-02", trades[0].ExitDate)
	assert.Equal(t, 1, skips["stop_loss_cooldown"])
}

func TestEngine_PositionOverlapSkipsSecondSignal(t *testing.T) {
	bars := newMemBars()
	for d := 3; d <= 13; d++ {
		setCreditBars(bars, time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC).Format(dateLayout), 1.00, 0.50)
	}

	sig := creditPutSpreadSignal("2022-01-03", "2022-01-13")
	engine := NewEngine(testEngineConfig(), bars)
	trades, skips := engine.Run([]domain.Signal{sig, sig})

	require.Len(t, trades, 1)
	assert.Equal(t, 1, skips["position_overlap"])
}

func TestEngine_ExpiryFallbackToLastAvailableDay(t *testing.T) {
	bars := newMemBars()
	expiry, _ := time.Parse(dateLayout, "2022-04-15")
	sell := domain.FormatTicker("SPY", expiry, domain.Put, 440)
	buy := domain.FormatTicker("SPY", expiry, domain.Put, 435)

	// Barras solo hasta el 8 de abril: los días restantes hasta expiry
	// no tienen datos, así que nada dispara y la salida cae al último
	// día con marca.
	for d := 1; d <= 8; d++ {
		date := time.Date(2022, 4, d, 0, 0, 0, 0, time.UTC).Format(dateLayout)
		bars.set(date, sell, 1.00)
		bars.set(date, buy, 0.50)
	}

	sig := creditPutSpreadSignal("2022-04-01", "2022-04-15")
	engine := NewEngine(testEngineConfig(), bars)
	trades, _ := engine.Run([]domain.Signal{sig})

	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitExpiry, trades[0].ExitReason)
	assert.Equal(t, "2022-04-08", trades[0].ExitDate)
}

func TestEngine_IlliquidLegsSettleAtEntryClose(t *testing.T) {
	bars := newMemBars()
	// Contratos ilíquidos: las patas solo imprimen el día de la señal.
	// El trade llega a expiry sin marcas y liquida al close de entrada.
	setCreditBars(bars, "2022-01-03", 1.00, 0.50)

	engine := NewEngine(testEngineConfig(), bars)
	trades, skips := engine.Run([]domain.Signal{creditPutSpreadSignal("2022-01-03", "2022-01-13")})

	require.Len(t, trades, 1)
	assert.Empty(t, skips)

	trade := trades[0]
	assert.Equal(t, domain.ExitExpiry, trade.ExitReason)
	assert.Equal(t, "2022-01-13", trade.ExitDate)
	assert.Equal(t, 10, trade.HoldDays)
	assert.InDelta(t, 0.46, trade.EntryPrice, 1e-9)
	// Liquidación a los closes de entrada: exit = −1.02 + 0.48 = −0.54.
	assert.InDelta(t, -0.54, trade.ExitPrice, 1e-9)
	assert.InDelta(t, -10.60, trade.NetPnL, 1e-9)
}

func TestEngine_StrictFillsRejectMissingSide(t *testing.T) {
	cfg := testEngineConfig()
	cfg.StrictFills = true

	bars := newMemBars()
	expiry, _ := time.Parse(dateLayout, "2022-01-13")
	// La pata vendida tiene barra pero sin precio: inejecutable en estricto.
	bars.set("2022-01-03", domain.FormatTicker("SPY", expiry, domain.Put, 440), 0)
	bars.set("2022-01-03", domain.FormatTicker("SPY", expiry, domain.Put, 435), 0.50)

	engine := NewEngine(cfg, bars)
	trades, skips := engine.Run([]domain.Signal{creditPutSpreadSignal("2022-01-03", "2022-01-13")})

	assert.Empty(t, trades)
	assert.Equal(t, 1, skips["unexecutable_fill"])
}

func TestEngine_CreditSignViolationSkips(t *testing.T) {
	bars := newMemBars()
	expiry, _ := time.Parse(dateLayout, "2022-01-13")
	// Estructura declarada credit pero la pata vendida vale menos que la
	// comprada: la prima neta sale negativa (débito).
	bars.set("2022-01-03", domain.FormatTicker("SPY", expiry, domain.Put, 440), 0.50)
	bars.set("2022-01-03", domain.FormatTicker("SPY", expiry, domain.Put, 435), 1.00)

	sig := creditPutSpreadSignal("2022-01-03", "2022-01-13")

	engine := NewEngine(testEngineConfig(), bars)
	trades, skips := engine.Run([]domain.Signal{sig})

	assert.Empty(t, trades)
	assert.Equal(t, 1, skips["unresolvable_structure"])
}

func TestEngine_Deterministic(t *testing.T) {
	build := func() ([]domain.Trade, map[string]int) {
		bars := newMemBars()
		for d := 3; d <= 13; d++ {
			setCreditBars(bars, time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC).Format(dateLayout), 1.00, 0.50)
		}
		engine := NewEngine(testEngineConfig(), bars)
		return engine.Run([]domain.Signal{creditPutSpreadSignal("2022-01-03", "2022-01-13")})
	}

	trades1, skips1 := build()
	trades2, skips2 := build()

	assert.Equal(t, trades1, trades2)
	assert.Equal(t, skips1, skips2)
}
