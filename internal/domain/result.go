package domain

import "fmt"

// SkipReason clasifica por qué un candidato no produjo trade.
// Un skip nunca es un error del batch: se agrega al histograma
// del resultado y la simulación continúa con el siguiente.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipNoData
	SkipUnresolvable
	SkipUnexecutable
	SkipPositionOverlap
	SkipCooldown
)

var skipReasonTokens = [...]string{
	"none", "no_data", "unresolvable_structure", "unexecutable_fill",
	"position_overlap", "stop_loss_cooldown",
}

func (r SkipReason) String() string {
	if int(r) < 0 || int(r) >= len(skipReasonTokens) {
		return fmt.Sprintf("invalid(%d)", int(r))
	}
	return skipReasonTokens[r]
}

// BucketStats es el desglose de una dimensión (edge, régimen, estructura, símbolo).
type BucketStats struct {
	Trades  int     `json:"trades"`
	PnL     float64 `json:"pnl"`
	Winners int     `json:"winners"`
	WinRate float64 `json:"win_rate"`
}

// Metrics son las estadísticas agregadas de un conjunto de trades.
type Metrics struct {
	TotalTrades int `json:"total_trades"`
	Winners     int `json:"winners"`
	Losers      int `json:"losers"`

	WinRate float64 `json:"win_rate"` // porcentaje 0-100

	TotalPnL         float64 `json:"total_pnl"`
	TotalCommissions float64 `json:"total_commissions"`
	AvgPnL           float64 `json:"avg_pnl"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`

	// ProfitFactor es +Inf con ganadores y sin perdedores; 0 sin trades.
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`

	MaxDrawdown float64 `json:"max_drawdown"`

	AvgHoldDays       float64 `json:"avg_hold_days"`
	TotalExposureDays int     `json:"total_exposure_days"`

	ByEdgeType  map[string]BucketStats `json:"by_edge_type,omitempty"`
	ByRegime    map[string]BucketStats `json:"by_regime,omitempty"`
	ByStructure map[string]BucketStats `json:"by_structure,omitempty"`
	BySymbol    map[string]BucketStats `json:"by_symbol,omitempty"`
}

// BacktestResult es el resultado completo y reproducible de un run.
// ConfigHash es el contrato de reproducibilidad: misma config ⇒ mismo
// hash ⇒ (con los mismos datos de entrada) mismo conjunto de trades.
type BacktestResult struct {
	RunID     string `json:"run_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	ConfigHash string `json:"config_hash"`

	Trades  []Trade `json:"trades"`
	Metrics Metrics `json:"metrics"`

	// Histograma de candidatos descartados, por motivo.
	SkipCounts map[string]int `json:"skip_counts,omitempty"`

	GeneratedAt   string `json:"generated_at"`
	SignalsSource string `json:"signals_source"`
	DataSource    string `json:"data_source"`
	ConfigUsed    any    `json:"config_used,omitempty"`
}
