package backtest

// metrics.go — agregación de métricas sobre un conjunto cerrado de
// trades. Puro y determinista: mismos trades ⇒ mismas métricas.

import (
	"math"
	"sort"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// Aggregate calcula las métricas agregadas de los trades completados.
// Con cero trades devuelve la estructura en ceros (ProfitFactor 0).
func Aggregate(trades []domain.Trade) domain.Metrics {
	var m domain.Metrics
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return m
	}

	var grossProfit, grossLoss, sumWin, sumLoss, sumHold float64
	for _, t := range trades {
		m.TotalPnL += t.NetPnL
		m.TotalCommissions += t.Commissions
		sumHold += float64(t.HoldDays)
		m.TotalExposureDays += t.HoldDays

		if t.IsWinner() {
			m.Winners++
			grossProfit += t.NetPnL
			sumWin += t.NetPnL
		} else {
			m.Losers++
			grossLoss += -t.NetPnL
			sumLoss += t.NetPnL
		}
	}

	m.WinRate = float64(m.Winners) / float64(m.TotalTrades) * 100
	m.AvgPnL = m.TotalPnL / float64(m.TotalTrades)
	m.AvgHoldDays = sumHold / float64(m.TotalTrades)

	if m.Winners > 0 {
		m.AvgWin = sumWin / float64(m.Winners)
	}
	if m.Losers > 0 {
		m.AvgLoss = sumLoss / float64(m.Losers)
	}

	// Profit factor: +Inf con ganancias y sin pérdidas.
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	// Expectancy = win% × avgWin − loss% × |avgLoss|
	winFrac := float64(m.Winners) / float64(m.TotalTrades)
	m.Expectancy = winFrac*m.AvgWin - (1-winFrac)*math.Abs(m.AvgLoss)

	m.MaxDrawdown = maxDrawdown(trades)

	m.ByEdgeType = bucketBy(trades, func(t domain.Trade) string { return t.EdgeType })
	m.ByRegime = bucketBy(trades, func(t domain.Trade) string { return t.Regime })
	m.ByStructure = bucketBy(trades, func(t domain.Trade) string { return t.StructureType })
	m.BySymbol = bucketBy(trades, func(t domain.Trade) string { return t.Symbol })

	return m
}

// maxDrawdown es la máxima caída pico-a-valle de la curva acumulada de
// NetPnL, con los trades en orden de fecha de señal. Valor ≥ 0.
func maxDrawdown(trades []domain.Trade) float64 {
	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SignalDate < ordered[j].SignalDate
	})

	var equity, peak, maxDD float64
	for _, t := range ordered {
		equity += t.NetPnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// bucketBy agrupa trades por una dimensión y calcula su BucketStats.
// Keys vacías se agrupan bajo "unknown".
func bucketBy(trades []domain.Trade, key func(domain.Trade) string) map[string]domain.BucketStats {
	buckets := make(map[string]domain.BucketStats)
	for _, t := range trades {
		k := key(t)
		if k == "" {
			k = "unknown"
		}
		b := buckets[k]
		b.Trades++
		b.PnL += t.NetPnL
		if t.IsWinner() {
			b.Winners++
		}
		buckets[k] = b
	}
	for k, b := range buckets {
		b.WinRate = float64(b.Winners) / float64(b.Trades) * 100
		buckets[k] = b
	}
	return buckets
}
