package backtest

// integrity.go — auditoría de calidad del run: valida que los trades son
// internamente consistentes antes de interpretar su P&L. Consultivo:
// nunca detiene la generación del resultado, solo la califica.

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// AuditConfig controla la severidad de la auditoría.
type AuditConfig struct {
	// RequireHistoryMode exige al menos un trade con percentil completo.
	RequireHistoryMode bool
	// FailOnFallback convierte cualquier trade en modo fallback en error.
	FailOnFallback bool
}

// Audit genera el report de integridad de un resultado completo.
func Audit(result *domain.BacktestResult, cfg AuditConfig) domain.IntegrityReport {
	report := domain.IntegrityReport{Passed: true}
	trades := result.Trades

	if len(trades) == 0 {
		report.AddWarning("No trades to validate")
		return report
	}

	var (
		creditEntries, debitEntries []float64
		maxLosses, dtes             []float64
	)

	for _, t := range trades {
		switch t.SpreadType {
		case domain.CreditSpread:
			report.CreditSpreadCount++
			if t.EntryPrice > 0 {
				creditEntries = append(creditEntries, t.EntryPrice)
			} else {
				report.AddError(fmt.Sprintf(
					"Trade %s: credit spread with non-positive entry price %.2f", t.TradeID, t.EntryPrice))
			}
		case domain.DebitSpread:
			report.DebitSpreadCount++
			if t.EntryPrice < 0 {
				debitEntries = append(debitEntries, -t.EntryPrice)
			} else {
				report.AddError(fmt.Sprintf(
					"Trade %s: debit spread with non-negative entry price %.2f", t.TradeID, t.EntryPrice))
			}
		}

		// Flags steep/flat de la señal origen; sin flag explícito se
		// infieren del tipo de estructura.
		switch {
		case t.EdgeMetrics["is_steep"] == 1.0:
			report.SteepCount++
		case t.EdgeMetrics["is_flat"] == 1.0:
			report.FlatCount++
		case t.SpreadType == domain.CreditSpread:
			report.SteepCount++
		case t.SpreadType == domain.DebitSpread:
			report.FlatCount++
		}

		// history_mode ausente cuenta como percentil completo.
		if mode, ok := t.EdgeMetrics["history_mode"]; !ok || mode == 1.0 {
			report.HistoryModeCount++
		} else {
			report.FallbackModeCount++
		}

		maxLosses = append(maxLosses, t.MaxLossTheoretical)
		dtes = append(dtes, float64(t.DTEAtEntry))

		switch t.ExitReason {
		case domain.ExitTakeProfit:
			report.TakeProfitCount++
		case domain.ExitStopLoss:
			report.StopLossCount++
		case domain.ExitTimeStop:
			report.TimeStopCount++
		case domain.ExitExpiry:
			report.ExpiryCount++
		}

		// gross − commissions == net, con tolerancia de redondeo.
		if diff := math.Abs(t.GrossPnL - t.Commissions - t.NetPnL); diff > 0.01 {
			report.AddError(fmt.Sprintf(
				"Trade %s: pnl inconsistency gross %.2f − comm %.2f != net %.2f", t.TradeID, t.GrossPnL, t.Commissions, t.NetPnL))
		}
		if t.ExitDate <= t.EntryDate {
			report.AddError(fmt.Sprintf(
				"Trade %s: exit date %s not after entry date %s", t.TradeID, t.ExitDate, t.EntryDate))
		}
	}

	report.AvgEntryCredit = mean(creditEntries)
	report.AvgEntryDebit = mean(debitEntries)
	report.AvgMaxLoss = mean(maxLosses)
	report.AvgDTEAtEntry = mean(dtes)

	if cfg.FailOnFallback && report.FallbackModeCount > 0 {
		report.AddError(fmt.Sprintf(
			"Found %d trades using fallback mode (history_mode=0). "+
				"These signals lack sufficient history for valid percentile calculation.",
			report.FallbackModeCount))
	}
	if cfg.RequireHistoryMode && report.HistoryModeCount == 0 {
		report.AddError("No trades with history_mode=1. All signals used fallback thresholds.")
	}

	if report.CreditSpreadCount > 0 && report.DebitSpreadCount > 0 {
		pctCredit := float64(report.CreditSpreadCount) / float64(len(trades)) * 100
		pctDebit := float64(report.DebitSpreadCount) / float64(len(trades)) * 100
		report.AddWarning(fmt.Sprintf(
			"Mixed structure types: %.0f%% credit, %.0f%% debit. "+
				"This is expected for skew_extreme edge.", pctCredit, pctDebit))
	}
	if report.SteepCount != report.CreditSpreadCount {
		report.AddWarning(fmt.Sprintf(
			"is_steep count (%d) != credit_spread count (%d). "+
				"Signal-structure mapping may be inconsistent.",
			report.SteepCount, report.CreditSpreadCount))
	}
	if report.FlatCount != report.DebitSpreadCount {
		report.AddWarning(fmt.Sprintf(
			"is_flat count (%d) != debit_spread count (%d). "+
				"Signal-structure mapping may be inconsistent.",
			report.FlatCount, report.DebitSpreadCount))
	}

	return report
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
