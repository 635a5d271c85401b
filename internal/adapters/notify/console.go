package notify

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool // tabla completa de trades vs resumen compacto
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PrintResult imprime los trades y las métricas agregadas del run.
func (c *Console) PrintResult(result domain.BacktestResult) {
	m := result.Metrics

	fmt.Fprintf(c.out, "\n[%s] backtest %s — %s to %s (config %s)\n",
		time.Now().Format("15:04:05"), result.RunID,
		result.StartDate, result.EndDate, result.ConfigHash)

	if m.TotalTrades == 0 {
		fmt.Fprintln(c.out, "  No trades completed.")
		c.printSkips(result.SkipCounts)
		return
	}

	if c.table {
		c.printTradeTable(result.Trades)
	}

	c.printMetrics(m)
	c.printSkips(result.SkipCounts)
}

// printTradeTable imprime un trade por fila, en orden de fecha de señal.
func (c *Console) printTradeTable(trades []domain.Trade) {
	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SignalDate < ordered[j].SignalDate
	})

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Signal", "Sym", "Structure", "DTE", "Entry$", "Exit$", "Net PnL", "Hold", "Exit")

	for i, t := range ordered {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.SignalDate,
			t.Symbol,
			truncate(t.StructureType, 22),
			fmt.Sprintf("%d", t.DTEAtEntry),
			fmt.Sprintf("%.2f", t.EntryPrice),
			fmt.Sprintf("%.2f", t.ExitPrice),
			fmt.Sprintf("$%.2f", t.NetPnL),
			fmt.Sprintf("%dd", t.HoldDays),
			t.ExitReason.String(),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Entry$/Exit$ = prima neta con signo (positivo = crédito)")
}

// printMetrics imprime el resumen agregado con desgloses.
func (c *Console) printMetrics(m domain.Metrics) {
	pf := fmt.Sprintf("%.2f", m.ProfitFactor)
	if math.IsInf(m.ProfitFactor, 1) {
		pf = "INF"
	}

	fmt.Fprintf(c.out, "\n=== METRICS ===\n")
	fmt.Fprintf(c.out, "  Trades:        %d (%d W / %d L, %.1f%% win rate)\n",
		m.TotalTrades, m.Winners, m.Losers, m.WinRate)
	fmt.Fprintf(c.out, "  Total PnL:     $%.2f (commissions $%.2f)\n", m.TotalPnL, m.TotalCommissions)
	fmt.Fprintf(c.out, "  Avg PnL:       $%.2f (win $%.2f / loss $%.2f)\n", m.AvgPnL, m.AvgWin, m.AvgLoss)
	fmt.Fprintf(c.out, "  Profit factor: %s   Expectancy: $%.2f\n", pf, m.Expectancy)
	fmt.Fprintf(c.out, "  Max drawdown:  $%.2f\n", m.MaxDrawdown)
	fmt.Fprintf(c.out, "  Avg hold:      %.1f days (%d exposure days)\n", m.AvgHoldDays, m.TotalExposureDays)

	c.printBuckets("BY SYMBOL", m.BySymbol)
	c.printBuckets("BY STRUCTURE", m.ByStructure)
	c.printBuckets("BY REGIME", m.ByRegime)
	c.printBuckets("BY EDGE", m.ByEdgeType)
}

// printBuckets imprime un desglose con keys en orden estable.
func (c *Console) printBuckets(title string, buckets map[string]domain.BucketStats) {
	if len(buckets) == 0 {
		return
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(c.out, "\n  %s:\n", title)
	for _, k := range keys {
		b := buckets[k]
		fmt.Fprintf(c.out, "    %-24s %3d trades  $%9.2f  %.0f%% win\n", k, b.Trades, b.PnL, b.WinRate)
	}
}

// printSkips imprime el histograma de candidatos descartados.
func (c *Console) printSkips(skips map[string]int) {
	if len(skips) == 0 {
		return
	}
	keys := make([]string, 0, len(skips))
	for k := range skips {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(c.out, "\n  SKIPPED CANDIDATES:\n")
	for _, k := range keys {
		fmt.Fprintf(c.out, "    %-24s %d\n", k, skips[k])
	}
}

// PrintIntegrity imprime el report de integridad con su veredicto.
func (c *Console) PrintIntegrity(report domain.IntegrityReport) {
	line := strings.Repeat("=", 60)

	fmt.Fprintf(c.out, "\n%s\n", line)
	fmt.Fprintln(c.out, "BACKTEST INTEGRITY REPORT")
	fmt.Fprintf(c.out, "%s\n\n", line)

	status := "PASSED"
	if !report.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(c.out, "Status: %s\n\n", status)

	if len(report.Errors) > 0 {
		fmt.Fprintln(c.out, "ERRORS:")
		for _, err := range report.Errors {
			fmt.Fprintf(c.out, "  [!] %s\n", err)
		}
		fmt.Fprintln(c.out)
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintln(c.out, "WARNINGS:")
		for _, warn := range report.Warnings {
			fmt.Fprintf(c.out, "  [~] %s\n", warn)
		}
		fmt.Fprintln(c.out)
	}

	fmt.Fprintln(c.out, "STRUCTURE TYPES:")
	fmt.Fprintf(c.out, "  credit_spread: %d\n", report.CreditSpreadCount)
	fmt.Fprintf(c.out, "  debit_spread: %d\n\n", report.DebitSpreadCount)

	fmt.Fprintln(c.out, "SIGNAL FLAGS:")
	fmt.Fprintf(c.out, "  is_steep: %d\n", report.SteepCount)
	fmt.Fprintf(c.out, "  is_flat: %d\n", report.FlatCount)
	if total := report.HistoryModeCount + report.FallbackModeCount; total > 0 {
		pctHistory := float64(report.HistoryModeCount) / float64(total) * 100
		fmt.Fprintf(c.out, "  history_mode=1: %d (%.0f%%)\n", report.HistoryModeCount, pctHistory)
		fmt.Fprintf(c.out, "  history_mode=0 (fallback): %d <- should be 0\n", report.FallbackModeCount)
	}
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "ENTRY STATISTICS:")
	fmt.Fprintf(c.out, "  Avg entry credit: $%.2f\n", report.AvgEntryCredit)
	fmt.Fprintf(c.out, "  Avg entry debit: $%.2f\n", report.AvgEntryDebit)
	fmt.Fprintf(c.out, "  Avg max loss: $%.2f\n", report.AvgMaxLoss)
	fmt.Fprintf(c.out, "  Avg DTE at entry: %.1f days\n\n", report.AvgDTEAtEntry)

	fmt.Fprintln(c.out, "EXIT BREAKDOWN:")
	totalExits := report.TakeProfitCount + report.StopLossCount +
		report.TimeStopCount + report.ExpiryCount
	if totalExits > 0 {
		exitLine := func(label string, n int) {
			fmt.Fprintf(c.out, "  %s: %d (%.0f%%)\n", label, n, float64(n)/float64(totalExits)*100)
		}
		exitLine("take_profit", report.TakeProfitCount)
		exitLine("stop_loss", report.StopLossCount)
		exitLine("time_stop", report.TimeStopCount)
		exitLine("expiry", report.ExpiryCount)
	}
	fmt.Fprintf(c.out, "\n%s\n", line)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
