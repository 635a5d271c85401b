package backtest

// engine.go — la máquina de estados de simulación de trades:
// AWAITING_ENTRY → OPEN → CLOSED{take_profit|stop_loss|time_stop|expiry}.
//
// Política de fallos: cualquier dato requerido ausente aborta el
// candidato individual (skip con motivo), nunca el batch. La precedencia
// de salidas el mismo día es un contrato congelado: time stop primero,
// después take profit, después stop loss.

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
	"github.com/alejandrodnm/volmachine/internal/ports"
)

const dateLayout = "2006-01-02"

// CreditExit son las reglas de salida de un credit spread.
type CreditExit struct {
	TakeProfitPct float64 // % del crédito capturado
	StopLossMult  float64 // múltiplo del crédito perdido
	TimeStopDTE   int
}

// DebitExit son las reglas de salida de un debit spread.
type DebitExit struct {
	TakeProfitPct float64 // % del débito ganado
	StopLossPct   float64 // % del débito perdido
	TimeStopDTE   int
}

// ExitRules agrupa las reglas por tipo de spread.
type ExitRules struct {
	Credit CreditExit
	Debit  DebitExit
}

// EngineConfig parametriza un run de simulación.
type EngineConfig struct {
	Fill        FillConfig
	Rules       ExitRules
	StrictFills bool

	// Gates de posición por símbolo (réplica del runner de producción).
	MaxPositionsPerSymbol int
	CooldownAfterSLDays   int

	DataSource string
}

// withDefaults completa los campos opcionales. El Runner y el Engine
// normalizan con la misma función para que result.DataSource y
// Trade.DataSource nunca diverjan.
func (c EngineConfig) withDefaults() EngineConfig {
	if c.DataSource == "" {
		c.DataSource = "flatfiles"
	}
	if c.MaxPositionsPerSymbol <= 0 {
		c.MaxPositionsPerSymbol = 1
	}
	return c
}

// Engine simula candidatos contra el archivo de barras. Secuencial y
// síncrono: un candidato se simula completo antes de empezar el
// siguiente; no hay estado de trade parcial ni reanudable.
type Engine struct {
	cfg  EngineConfig
	bars ports.BarSource
}

// NewEngine construye el motor sobre un BarSource inyectado por el
// caller — los tests sustituyen un fixture en memoria.
func NewEngine(cfg EngineConfig, bars ports.BarSource) *Engine {
	return &Engine{cfg: cfg.withDefaults(), bars: bars}
}

// Run simula todas las señales en orden de fecha y devuelve los trades
// completados junto con el histograma de candidatos descartados.
func (e *Engine) Run(signals []domain.Signal) ([]domain.Trade, map[string]int) {
	ordered := make([]domain.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SignalDate != ordered[j].SignalDate {
			return ordered[i].SignalDate < ordered[j].SignalDate
		}
		return ordered[i].Candidate.Symbol < ordered[j].Candidate.Symbol
	})

	var trades []domain.Trade
	skips := make(map[string]int)

	// Una posición abierta por símbolo; cooldown tras stop-loss.
	openUntil := make(map[string]time.Time)
	cooldownUntil := make(map[string]time.Time)

	for _, sig := range ordered {
		symbol := sig.Candidate.Symbol

		execDate, err := time.Parse(dateLayout, sig.SignalDate)
		if err != nil {
			skips[domain.SkipUnresolvable.String()]++
			slog.Debug("engine: skipping candidate", "symbol", symbol,
				"reason", domain.SkipUnresolvable.String(), "date", sig.SignalDate)
			continue
		}

		// Las señales vienen ordenadas por fecha: los días anteriores a
		// esta señal ya no se revisitarán, así que se pueden liberar.
		e.bars.EvictBefore(execDate)

		if until, ok := openUntil[symbol]; ok && execDate.Before(until) {
			skips[domain.SkipPositionOverlap.String()]++
			continue
		}
		if until, ok := cooldownUntil[symbol]; ok && execDate.Before(until) {
			skips[domain.SkipCooldown.String()]++
			continue
		}

		trade, skip := e.simulate(sig, execDate)
		if skip != domain.SkipNone {
			skips[skip.String()]++
			slog.Debug("engine: skipping candidate", "symbol", symbol,
				"date", sig.SignalDate, "reason", skip.String())
			continue
		}

		trades = append(trades, trade)
		slog.Info("engine: trade completed",
			"date", trade.SignalDate,
			"symbol", trade.Symbol,
			"structure", trade.StructureType,
			"net_pnl", fmt.Sprintf("$%.2f", trade.NetPnL),
			"exit", trade.ExitReason.String(),
		)

		exitDate, _ := time.Parse(dateLayout, trade.ExitDate)
		openUntil[symbol] = exitDate
		if trade.ExitReason == domain.ExitStopLoss && e.cfg.CooldownAfterSLDays > 0 {
			cooldownUntil[symbol] = exitDate.AddDate(0, 0, e.cfg.CooldownAfterSLDays)
		}
	}

	return trades, skips
}

// legState es una pata resuelta a su ticker canónico del archivo.
type legState struct {
	ticker string
	side   domain.Side
	strike float64
	right  domain.Right
}

// simulate recorre un candidato de la entrada a la salida.
// Devuelve el trade inmutable o el motivo de descarte.
func (e *Engine) simulate(sig domain.Signal, entryDate time.Time) (domain.Trade, domain.SkipReason) {
	cand := sig.Candidate
	structure := cand.Structure

	if len(structure.Legs) == 0 {
		return domain.Trade{}, domain.SkipUnresolvable
	}

	spreadType, ok := effectiveSpreadType(structure)
	if !ok {
		return domain.Trade{}, domain.SkipUnresolvable
	}

	expiry, ok := resolveExpiry(structure)
	if !ok {
		return domain.Trade{}, domain.SkipUnresolvable
	}
	dteAtEntry := daysBetween(entryDate, expiry)
	if dteAtEntry <= 0 {
		return domain.Trade{}, domain.SkipUnresolvable
	}

	legs := make([]legState, 0, len(structure.Legs))
	for _, raw := range structure.Legs {
		right, err := domain.ParseRight(raw.Right)
		if err != nil {
			return domain.Trade{}, domain.SkipUnresolvable
		}
		side, err := domain.ParseSide(raw.Side)
		if err != nil {
			return domain.Trade{}, domain.SkipUnresolvable
		}
		if raw.Strike <= 0 {
			return domain.Trade{}, domain.SkipUnresolvable
		}
		legs = append(legs, legState{
			ticker: domain.FormatTicker(cand.Symbol, expiry, right, raw.Strike),
			side:   side,
			strike: raw.Strike,
			right:  right,
		})
	}

	// Entrada: el close de CADA pata en la fecha de señal. Sin datos de
	// una pata no hay trade — nunca se sustituye ni interpola.
	entryQuotes, ok := e.quotesAt(entryDate, legs)
	if !ok {
		return domain.Trade{}, domain.SkipNoData
	}

	highVol := cand.Edge.Metrics["iv_percentile"] >= e.cfg.Fill.HighVolThreshold

	var entryFill Fill
	if e.cfg.StrictFills {
		entryFill = StrictEntryFill(entryQuotes, e.cfg.Fill, highVol)
		if entryFill.Unexecutable {
			return domain.Trade{}, domain.SkipUnexecutable
		}
	} else {
		entryFill = EntryFill(entryQuotes, e.cfg.Fill)
	}

	// La prima debe tener el signo del tipo de spread declarado.
	if spreadType == domain.CreditSpread && entryFill.NetPremium <= 0 {
		return domain.Trade{}, domain.SkipUnresolvable
	}
	if spreadType == domain.DebitSpread && entryFill.NetPremium >= 0 {
		return domain.Trade{}, domain.SkipUnresolvable
	}

	tpDollars, slDollars, timeStopDTE := e.thresholds(spreadType, entryFill.NetPremium)

	// Paseo diario: entry+1 hasta expiry. Un día sin barra de alguna
	// pata se salta entero — gap normal, no fallo de datos.
	var (
		exitDate   time.Time
		exitReason = domain.ExitExpiry
		mfe, mae   float64
		lastMark   time.Time
		exited     bool
	)

	for day := entryDate.AddDate(0, 0, 1); !day.After(expiry); day = day.AddDate(0, 0, 1) {
		quotes, ok := e.quotesAt(day, legs)
		if !ok {
			continue
		}
		lastMark = day

		mark := ExitFill(quotes, e.cfg.Fill)
		mtm := (entryFill.NetPremium + mark.NetPremium) * 100

		if mtm > mfe {
			mfe = mtm
		}
		if mtm < mae {
			mae = mtm
		}

		// Precedencia congelada: time stop, take profit, stop loss.
		dte := daysBetween(day, expiry)
		switch {
		case dte <= timeStopDTE:
			exitDate, exitReason, exited = day, domain.ExitTimeStop, true
		case mtm >= tpDollars:
			exitDate, exitReason, exited = day, domain.ExitTakeProfit, true
		case mtm <= slDollars:
			exitDate, exitReason, exited = day, domain.ExitStopLoss, true
		}
		if exited {
			break
		}
	}

	// Sin salida disparada: min(expiry, último día con datos), EXPIRY.
	if !exited {
		exitDate = expiry
		if !lastMark.IsZero() && lastMark.Before(expiry) {
			exitDate = lastMark
		}
		exitReason = domain.ExitExpiry
	}

	// Liquidación final: mejor barra disponible en o antes de la fecha
	// de salida para cada pata, sin mirar nunca antes de la entrada.
	exitQuotes, ok := e.settlementQuotes(entryDate, exitDate, legs)
	if !ok {
		return domain.Trade{}, domain.SkipNoData
	}
	exitFill := ExitFill(exitQuotes, e.cfg.Fill)

	pnl := RealizedPnL(entryFill.NetPremium, exitFill.NetPremium,
		entryFill.Commissions, exitFill.Commissions, 1)

	pnlPct := 0.0
	if structure.MaxLossDollars != 0 {
		pnlPct = pnl.Net / absFloat(structure.MaxLossDollars) * 100
	}

	tradeLegs := make([]domain.TradeLeg, 0, len(legs))
	for _, leg := range legs {
		tradeLegs = append(tradeLegs, domain.TradeLeg{
			Ticker: leg.ticker,
			Side:   leg.side,
			Strike: leg.strike,
			Right:  leg.right.String(),
		})
	}

	return domain.Trade{
		TradeID:              fmt.Sprintf("%s_%s_%s", sig.SignalDate, cand.Symbol, structureLabel(structure)),
		Symbol:               cand.Symbol,
		EdgeType:             cand.Edge.Type,
		EdgeStrength:         cand.Edge.Strength,
		EdgeMetrics:          cand.Edge.Metrics,
		Regime:               sig.Regime,
		StructureType:        structureLabel(structure),
		SpreadType:           spreadType,
		DTEAtEntry:           dteAtEntry,
		SignalDate:           sig.SignalDate,
		EntryDate:            entryDate.Format(dateLayout),
		ExitDate:             exitDate.Format(dateLayout),
		EntryPrice:           entryFill.NetPremium,
		ExitPrice:            exitFill.NetPremium,
		MaxLossTheoretical:   absFloat(structure.MaxLossDollars),
		MaxProfitTheoretical: absFloat(structure.MaxProfitDollars),
		GrossPnL:             pnl.Gross,
		Commissions:          pnl.Commissions,
		NetPnL:               pnl.Net,
		PnLPct:               pnlPct,
		MFE:                  mfe,
		MAE:                  mae,
		ExitReason:           exitReason,
		HoldDays:             daysBetween(entryDate, exitDate),
		Contracts:            1,
		Legs:                 tradeLegs,
		DataSource:           e.cfg.DataSource,
	}, domain.SkipNone
}

// thresholds deriva los umbrales de salida en dólares desde la prima.
func (e *Engine) thresholds(spread domain.SpreadType, entryNet float64) (tp, sl float64, timeStopDTE int) {
	if spread == domain.CreditSpread {
		credit := entryNet
		tp = credit * e.cfg.Rules.Credit.TakeProfitPct / 100 * 100
		sl = -credit * e.cfg.Rules.Credit.StopLossMult * 100
		return tp, sl, e.cfg.Rules.Credit.TimeStopDTE
	}
	debit := -entryNet
	tp = debit * e.cfg.Rules.Debit.TakeProfitPct / 100 * 100
	sl = -debit * e.cfg.Rules.Debit.StopLossPct / 100 * 100
	return tp, sl, e.cfg.Rules.Debit.TimeStopDTE
}

// quotesAt resuelve los closes de todas las patas en una fecha.
// ok=false si a cualquier pata le falta la barra.
func (e *Engine) quotesAt(date time.Time, legs []legState) ([]LegQuote, bool) {
	quotes := make([]LegQuote, 0, len(legs))
	for _, leg := range legs {
		bar, ok := e.bars.Lookup(date, leg.ticker)
		if !ok {
			return nil, false
		}
		quotes = append(quotes, LegQuote{Close: bar.Close, Side: leg.side})
	}
	return quotes, true
}

// settlementQuotes busca por pata la mejor barra en o antes de exitDate,
// retrocediendo como máximo hasta el día de entrada inclusive: una pata
// que nunca vuelve a imprimir se liquida a su close de entrada.
func (e *Engine) settlementQuotes(entryDate, exitDate time.Time, legs []legState) ([]LegQuote, bool) {
	quotes := make([]LegQuote, 0, len(legs))
	for _, leg := range legs {
		found := false
		for day := exitDate; !day.Before(entryDate); day = day.AddDate(0, 0, -1) {
			if bar, ok := e.bars.Lookup(day, leg.ticker); ok {
				quotes = append(quotes, LegQuote{Close: bar.Close, Side: leg.side})
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return quotes, true
}

// effectiveSpreadType resuelve el tipo de spread declarado por el
// candidato; sin declaración explícita asume credit (default del
// productor de señales).
func effectiveSpreadType(s domain.Structure) (domain.SpreadType, bool) {
	for _, raw := range []string{s.SpreadType, s.Type} {
		if raw == "" {
			continue
		}
		if st, err := domain.ParseSpreadType(raw); err == nil {
			return st, true
		}
	}
	if s.SpreadType == "" && s.Type == "" {
		return domain.CreditSpread, true
	}
	// Type puede ser una etiqueta libre ("put_credit_spread"); solo es
	// irresoluble si spread_type tampoco se reconoce.
	if s.SpreadType == "" {
		return domain.CreditSpread, true
	}
	return 0, false
}

// resolveExpiry toma el expiry de la estructura o de la primera pata.
func resolveExpiry(s domain.Structure) (time.Time, bool) {
	raw := s.Expiry
	if raw == "" && len(s.Legs) > 0 {
		raw = s.Legs[0].Expiry
	}
	return parseExpiry(raw)
}

// parseExpiry acepta ISO (con o sin hora) y el formato compacto YYMMDD.
func parseExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if len(raw) >= 10 {
		if t, err := time.Parse(dateLayout, raw[:10]); err == nil {
			return t, true
		}
	}
	if len(raw) == 6 {
		if t, err := time.Parse("060102", raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// structureLabel es la etiqueta de estructura para IDs y breakdowns.
func structureLabel(s domain.Structure) string {
	if s.Type != "" {
		return s.Type
	}
	if s.SpreadType != "" {
		return s.SpreadType + "_spread"
	}
	return "spread"
}

func daysBetween(from, to time.Time) int {
	return int(to.Truncate(24*time.Hour).Sub(from.Truncate(24*time.Hour)).Hours() / 24)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
