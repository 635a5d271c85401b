package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alejandrodnm/volmachine/config"
	"github.com/alejandrodnm/volmachine/internal/adapters/flatfiles"
	"github.com/alejandrodnm/volmachine/internal/adapters/notify"
	"github.com/alejandrodnm/volmachine/internal/adapters/polygon"
	"github.com/alejandrodnm/volmachine/internal/adapters/signals"
	"github.com/alejandrodnm/volmachine/internal/adapters/storage"
	"github.com/alejandrodnm/volmachine/internal/backtest"
	"github.com/alejandrodnm/volmachine/internal/domain"
	"github.com/alejandrodnm/volmachine/internal/ports"
)

const dateLayout = "2006-01-02"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	startStr := flag.String("start", "", "start date YYYY-MM-DD (required)")
	endStr := flag.String("end", "", "end date YYYY-MM-DD (required)")
	table := flag.Bool("table", false, "print full trade table (default: summary only)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	download := flag.Bool("download", false, "download missing flat files for the range before running")
	noStore := flag.Bool("no-store", false, "skip persisting the run to SQLite")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	start, end, err := parseRange(*startStr, *endStr)
	if err != nil {
		slog.Error("invalid date range", "err", err)
		os.Exit(1)
	}

	slog.Info("volmachine backtest starting",
		"config", *configPath,
		"start", *startStr,
		"end", *endStr,
		"config_hash", cfg.Hash(),
		"download", *download,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *download {
		client := polygon.NewClient("", "", cfg.Data.ArchiveDir)
		n, err := client.DownloadRange(ctx, start, end)
		if err != nil {
			slog.Error("flat file download failed", "err", err, "downloaded", n)
			os.Exit(1)
		}
	}

	archive := flatfiles.New(cfg.Data.ArchiveDir, flatfiles.ModeThin)

	loader := signals.NewLoader(cfg.Data.ReportsDir, signals.Filter{
		Symbols:         cfg.Backtest.Symbols,
		EnabledSymbols:  cfg.Strategy.EnabledSymbols,
		DisabledSymbols: cfg.Strategy.DisabledSymbols,
		MinEdgeStrength: cfg.Backtest.MinEdgeStrength,
		TradeOnly:       !cfg.Backtest.IncludeNonTrade,
		AllowCredit:     !cfg.Strategy.DisableCreditSpreads,
		AllowDebit:      !cfg.Strategy.DisableDebitSpreads,
	})

	var store *storage.SQLiteStore
	if !*noStore {
		store, err = storage.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
	}

	notifier := notify.NewConsole(*table)

	runnerCfg := backtest.RunnerConfig{
		Engine: backtest.EngineConfig{
			Fill: backtest.FillConfig{
				SlippagePerLeg:        cfg.Fill.SlippagePerLeg,
				CommissionPerContract: cfg.Fill.CommissionPerContract,
				MinCommission:         cfg.Fill.MinCommission,
				BidAskSpreadPct:       cfg.Fill.BidAskSpreadPct,
				LiquidityStressMult:   cfg.Fill.LiquidityStressMult,
				HighVolThreshold:      cfg.Fill.HighVolThreshold,
			},
			Rules: backtest.ExitRules{
				Credit: backtest.CreditExit{
					TakeProfitPct: cfg.Exits.CreditSpread.TakeProfitPct,
					StopLossMult:  cfg.Exits.CreditSpread.StopLossMult,
					TimeStopDTE:   cfg.Exits.CreditSpread.TimeStopDTE,
				},
				Debit: backtest.DebitExit{
					TakeProfitPct: cfg.Exits.DebitSpread.TakeProfitPct,
					StopLossPct:   cfg.Exits.DebitSpread.StopLossPct,
					TimeStopDTE:   cfg.Exits.DebitSpread.TimeStopDTE,
				},
			},
			StrictFills:           !cfg.Fill.RelaxedFills,
			MaxPositionsPerSymbol: cfg.Strategy.MaxPositionsPerSymbol,
			CooldownAfterSLDays:   cfg.Strategy.CooldownAfterSLDays,
			DataSource:            "flatfiles",
		},
		Audit: backtest.AuditConfig{
			RequireHistoryMode: true,
			FailOnFallback:     true,
		},
		ConfigHash:    cfg.Hash(),
		ConfigUsed:    cfg,
		SignalsSource: cfg.Data.ReportsDir,
	}

	var resultStore ports.ResultStore
	if store != nil {
		resultStore = store
	}
	runner := backtest.NewRunner(runnerCfg, loader, archive, resultStore, notifier)

	result, report, err := runner.Run(ctx, start, end)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	path, err := writeResultJSON(cfg.Data.ResultsDir, result)
	if err != nil {
		slog.Warn("failed to write result file", "err", err)
	} else {
		slog.Info("result written", "path", path)
	}

	if !report.Passed {
		os.Exit(2)
	}
}

// parseRange valida las fechas de los flags.
func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("both -start and -end are required")
	}
	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -start: %w", err)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse -end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s before start %s", endStr, startStr)
	}
	return start, end, nil
}

// writeResultJSON guarda el resultado completo como JSON con nombre
// {start}_{end}_{run_id8}.json en el directorio de resultados.
func writeResultJSON(dir string, result *domain.BacktestResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	runID := result.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", result.StartDate, result.EndDate, runID))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
