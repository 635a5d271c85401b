package backtest

// runner.go — orquestación de un run completo: cargar señales, simular,
// agregar métricas, auditar, persistir y presentar. El Runner solo
// conoce los ports; los adapters concretos se inyectan desde main.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/volmachine/internal/domain"
	"github.com/alejandrodnm/volmachine/internal/ports"
)

// RunnerConfig parametriza el run completo.
type RunnerConfig struct {
	Engine EngineConfig
	Audit  AuditConfig

	ConfigHash string
	ConfigUsed any

	SignalsSource string
}

// Runner ejecuta backtests de principio a fin.
type Runner struct {
	cfg      RunnerConfig
	signals  ports.SignalProvider
	bars     ports.BarSource
	store    ports.ResultStore
	notifier ports.Notifier
}

// NewRunner construye el Runner. store y notifier pueden ser nil:
// un run sin persistencia ni salida por consola sigue siendo válido
// (el caller se queda con el BacktestResult).
func NewRunner(cfg RunnerConfig, signals ports.SignalProvider, bars ports.BarSource, store ports.ResultStore, notifier ports.Notifier) *Runner {
	cfg.Engine = cfg.Engine.withDefaults()
	return &Runner{
		cfg:      cfg,
		signals:  signals,
		bars:     bars,
		store:    store,
		notifier: notifier,
	}
}

// Run ejecuta el backtest del rango [start, end] y devuelve el
// resultado junto con su report de integridad.
func (r *Runner) Run(ctx context.Context, start, end time.Time) (*domain.BacktestResult, *domain.IntegrityReport, error) {
	loaded, drops, err := r.signals.LoadSignals(start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("backtest.Run: load signals: %w", err)
	}

	slog.Info("backtest: starting run",
		"start", start.Format(dateLayout),
		"end", end.Format(dateLayout),
		"signals", len(loaded),
		"dropped", drops.CandidatesParsed-drops.PassedFilters,
	)

	engine := NewEngine(r.cfg.Engine, r.bars)
	trades, skips := engine.Run(loaded)

	result := &domain.BacktestResult{
		RunID:         uuid.NewString(),
		StartDate:     start.Format(dateLayout),
		EndDate:       end.Format(dateLayout),
		ConfigHash:    r.cfg.ConfigHash,
		Trades:        trades,
		Metrics:       Aggregate(trades),
		SkipCounts:    skips,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		SignalsSource: r.cfg.SignalsSource,
		DataSource:    r.cfg.Engine.DataSource,
		ConfigUsed:    r.cfg.ConfigUsed,
	}

	report := Audit(result, r.cfg.Audit)

	if r.store != nil {
		if err := r.store.SaveResult(ctx, *result); err != nil {
			// La persistencia es secundaria: el resultado ya existe.
			slog.Warn("backtest: failed to persist run", "run_id", result.RunID, "err", err)
		}
	}
	if r.notifier != nil {
		r.notifier.PrintResult(*result)
		r.notifier.PrintIntegrity(report)
	}

	slog.Info("backtest: run complete",
		"run_id", result.RunID,
		"trades", result.Metrics.TotalTrades,
		"total_pnl", fmt.Sprintf("$%.2f", result.Metrics.TotalPnL),
		"integrity", report.Passed,
	)
	return result, &report, nil
}
