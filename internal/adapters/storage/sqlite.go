package storage

// sqlite.go — persistencia de runs de backtest para comparación entre
// ejecuciones.
//
// Estrategia:
//   - `runs`: UNA fila por ejecución, con config_hash y métricas resumen.
//     El JSON completo del resultado vive en disco; la DB guarda lo que
//     hace falta para comparar runs sin re-parsear archivos.
//   - `trades`: una fila por trade completado, FK al run. Las patas se
//     guardan como JSON embebido — nunca se consultan por separado.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por ejecución de backtest
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    start_date   TEXT     NOT NULL,
    end_date     TEXT     NOT NULL,
    config_hash  TEXT     NOT NULL,
    total_trades INTEGER  NOT NULL DEFAULT 0,
    win_rate     REAL     NOT NULL DEFAULT 0,
    total_pnl    REAL     NOT NULL DEFAULT 0,
    max_drawdown REAL     NOT NULL DEFAULT 0,
    generated_at DATETIME NOT NULL
);

-- Una fila por trade completado del run
CREATE TABLE IF NOT EXISTS trades (
    trade_id       TEXT NOT NULL,
    run_id         TEXT NOT NULL REFERENCES runs(run_id),
    symbol         TEXT NOT NULL,
    structure_type TEXT NOT NULL,
    spread_type    TEXT NOT NULL,
    signal_date    TEXT NOT NULL,
    entry_date     TEXT NOT NULL,
    exit_date      TEXT NOT NULL,
    entry_price    REAL NOT NULL DEFAULT 0,
    exit_price     REAL NOT NULL DEFAULT 0,
    gross_pnl      REAL NOT NULL DEFAULT 0,
    commissions    REAL NOT NULL DEFAULT 0,
    net_pnl        REAL NOT NULL DEFAULT 0,
    exit_reason    TEXT NOT NULL,
    hold_days      INTEGER NOT NULL DEFAULT 0,
    legs           TEXT,
    PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_hash     ON runs(config_hash);
CREATE INDEX IF NOT EXISTS idx_runs_at       ON runs(generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_signal ON trades(signal_date);
`

// SQLiteStore implementa ports.ResultStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y
// aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveResult persiste el resumen del run y todos sus trades en una
// única transacción: o se guarda el run completo o no se guarda nada.
func (s *SQLiteStore) SaveResult(ctx context.Context, result domain.BacktestResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveResult: begin tx: %w", err)
	}
	defer tx.Rollback()

	generatedAt := result.GeneratedAt
	if generatedAt == "" {
		generatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, start_date, end_date, config_hash,
			 total_trades, win_rate, total_pnl, max_drawdown, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID,
		result.StartDate,
		result.EndDate,
		result.ConfigHash,
		result.Metrics.TotalTrades,
		result.Metrics.WinRate,
		result.Metrics.TotalPnL,
		result.Metrics.MaxDrawdown,
		generatedAt,
	); err != nil {
		return fmt.Errorf("storage.SaveResult: insert run %s: %w", result.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
			(trade_id, run_id, symbol, structure_type, spread_type,
			 signal_date, entry_date, exit_date, entry_price, exit_price,
			 gross_pnl, commissions, net_pnl, exit_reason, hold_days, legs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveResult: prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range result.Trades {
		legs, err := json.Marshal(t.Legs)
		if err != nil {
			return fmt.Errorf("storage.SaveResult: marshal legs %s: %w", t.TradeID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			t.TradeID,
			result.RunID,
			t.Symbol,
			t.StructureType,
			t.SpreadType.String(),
			t.SignalDate,
			t.EntryDate,
			t.ExitDate,
			t.EntryPrice,
			t.ExitPrice,
			t.GrossPnL,
			t.Commissions,
			t.NetPnL,
			t.ExitReason.String(),
			t.HoldDays,
			string(legs),
		); err != nil {
			return fmt.Errorf("storage.SaveResult: insert trade %s: %w", t.TradeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveResult: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
