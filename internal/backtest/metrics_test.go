package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

func TestAggregate_Empty(t *testing.T) {
	m := Aggregate(nil)

	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.ProfitFactor)
	assert.Equal(t, 0.0, m.WinRate)
}

func TestAggregate_Basic(t *testing.T) {
	trades := []domain.Trade{
		{SignalDate: "2022-01-03", Symbol: "SPY", NetPnL: 100, Commissions: 2.60, HoldDays: 5, Regime: "normal", StructureType: "put_credit_spread", EdgeType: "skew_extreme"},
		{SignalDate: "2022-01-10", Symbol: "SPY", NetPnL: -50, Commissions: 2.60, HoldDays: 3, Regime: "normal", StructureType: "put_credit_spread", EdgeType: "skew_extreme"},
		{SignalDate: "2022-01-17", Symbol: "QQQ", NetPnL: 25, Commissions: 2.60, HoldDays: 4, Regime: "stressed", StructureType: "call_debit_spread", EdgeType: "skew_extreme"},
	}
	m := Aggregate(trades)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.Winners)
	assert.Equal(t, 1, m.Losers)
	assert.InDelta(t, 66.67, m.WinRate, 0.01)
	assert.InDelta(t, 75.0, m.TotalPnL, 1e-9)
	assert.InDelta(t, 7.80, m.TotalCommissions, 1e-9)
	assert.InDelta(t, 25.0, m.AvgPnL, 1e-9)
	assert.InDelta(t, 62.5, m.AvgWin, 1e-9)
	assert.InDelta(t, -50.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 2.5, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 4.0, m.AvgHoldDays, 1e-9)
	assert.Equal(t, 12, m.TotalExposureDays)

	assert.Equal(t, 2, m.BySymbol["SPY"].Trades)
	assert.Equal(t, 1, m.BySymbol["QQQ"].Trades)
	assert.InDelta(t, 50.0, m.BySymbol["SPY"].WinRate, 1e-9)
	assert.Equal(t, 1, m.ByRegime["stressed"].Trades)
	assert.Equal(t, 2, m.ByStructure["put_credit_spread"].Trades)
}

func TestAggregate_ProfitFactorInfWithoutLosers(t *testing.T) {
	trades := []domain.Trade{
		{SignalDate: "2022-01-03", NetPnL: 10},
		{SignalDate: "2022-01-04", NetPnL: 20},
	}
	m := Aggregate(trades)
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
}

func TestAggregate_Expectancy(t *testing.T) {
	// 50% × 100 − 50% × 40 = 30
	trades := []domain.Trade{
		{SignalDate: "2022-01-03", NetPnL: 100},
		{SignalDate: "2022-01-04", NetPnL: -40},
	}
	m := Aggregate(trades)
	assert.InDelta(t, 30.0, m.Expectancy, 1e-9)
}

func TestMaxDrawdown_SignalDateOrder(t *testing.T) {
	// En orden de señal: +100, −80, −50, +200 → pico 100, valle −30 → DD 130.
	// Los trades llegan desordenados a propósito.
	trades := []domain.Trade{
		{SignalDate: "2022-01-20", NetPnL: 200},
		{SignalDate: "2022-01-03", NetPnL: 100},
		{SignalDate: "2022-01-14", NetPnL: -50},
		{SignalDate: "2022-01-07", NetPnL: -80},
	}
	m := Aggregate(trades)
	assert.InDelta(t, 130.0, m.MaxDrawdown, 1e-9)
}

func TestMaxDrawdown_MonotonicEquityIsZero(t *testing.T) {
	trades := []domain.Trade{
		{SignalDate: "2022-01-03", NetPnL: 10},
		{SignalDate: "2022-01-04", NetPnL: 15},
	}
	m := Aggregate(trades)
	assert.Equal(t, 0.0, m.MaxDrawdown)
}

func TestBucketBy_EmptyKeyGroupsAsUnknown(t *testing.T) {
	trades := []domain.Trade{{SignalDate: "2022-01-03", NetPnL: 10}}
	m := Aggregate(trades)
	assert.Equal(t, 1, m.ByRegime["unknown"].Trades)
}
