package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de un run de backtest.
// Se carga una vez al arrancar; una config malformada es fatal —
// el proceso no puede simular nada con parámetros inválidos.
type Config struct {
	Backtest BacktestConfig  `yaml:"backtest" json:"backtest"`
	Exits    ExitRulesConfig `yaml:"exit_rules" json:"exit_rules"`
	Fill     FillConfig      `yaml:"fill" json:"fill"`
	Strategy StrategyConfig  `yaml:"strategy" json:"strategy"`
	Data     DataConfig      `yaml:"data" json:"data"`
	Storage  StorageConfig   `yaml:"storage" json:"storage"`
	Log      LogConfig       `yaml:"log" json:"log"`
}

// BacktestConfig controla la selección de señales.
type BacktestConfig struct {
	Symbols         []string `yaml:"symbols" json:"symbols"`
	MinEdgeStrength float64  `yaml:"min_edge_strength" json:"min_edge_strength"`
	// IncludeNonTrade simula también candidatos con recommendation != TRADE.
	// El default (false) replica el comportamiento de producción.
	IncludeNonTrade bool `yaml:"include_non_trade" json:"include_non_trade"`
}

// ExitRulesConfig define las reglas de salida por tipo de spread.
type ExitRulesConfig struct {
	CreditSpread CreditExitConfig `yaml:"credit_spread" json:"credit_spread"`
	DebitSpread  DebitExitConfig  `yaml:"debit_spread" json:"debit_spread"`
}

// CreditExitConfig: TP como % del crédito capturado, SL como múltiplo del crédito.
type CreditExitConfig struct {
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossMult  float64 `yaml:"stop_loss_mult" json:"stop_loss_mult"`
	TimeStopDTE   int     `yaml:"time_stop_dte" json:"time_stop_dte"`
}

// DebitExitConfig: TP y SL como % del débito pagado.
type DebitExitConfig struct {
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TimeStopDTE   int     `yaml:"time_stop_dte" json:"time_stop_dte"`
}

// FillConfig parametriza el modelo de ejecución.
type FillConfig struct {
	SlippagePerLeg        float64 `yaml:"slippage_per_leg" json:"slippage_per_leg"`
	CommissionPerContract float64 `yaml:"commission_per_contract" json:"commission_per_contract"`
	MinCommission         float64 `yaml:"min_commission" json:"min_commission"`
	BidAskSpreadPct       float64 `yaml:"bid_ask_spread_pct" json:"bid_ask_spread_pct"`
	LiquidityStressMult   float64 `yaml:"liquidity_stress_mult" json:"liquidity_stress_mult"`
	HighVolThreshold      float64 `yaml:"high_vol_threshold" json:"high_vol_threshold"`
	// RelaxedFills desactiva el modelo estricto de bid/ask sintético.
	// El default (false) usa fills estrictos, como producción.
	RelaxedFills bool `yaml:"relaxed_fills" json:"relaxed_fills"`
}

// StrategyConfig son los gates por símbolo y los toggles de estructura.
type StrategyConfig struct {
	EnabledSymbols        []string `yaml:"enabled_symbols" json:"enabled_symbols"`
	DisabledSymbols       []string `yaml:"disabled_symbols" json:"disabled_symbols"`
	DisableCreditSpreads  bool     `yaml:"disable_credit_spreads" json:"disable_credit_spreads"`
	DisableDebitSpreads   bool     `yaml:"disable_debit_spreads" json:"disable_debit_spreads"`
	MaxPositionsPerSymbol int      `yaml:"max_positions_per_symbol" json:"max_positions_per_symbol"`
	CooldownAfterSLDays   int      `yaml:"cooldown_after_sl_days" json:"cooldown_after_sl_days"`
}

// DataConfig controla dónde viven los datos locales.
type DataConfig struct {
	ArchiveDir string `yaml:"archive_dir" json:"archive_dir"` // flat files {date}.csv.gz
	ReportsDir string `yaml:"reports_dir" json:"reports_dir"` // reports diarios de candidatos
	ResultsDir string `yaml:"results_dir" json:"results_dir"` // resultados JSON del backtest
}

// StorageConfig controla la persistencia de runs.
type StorageConfig struct {
	DSN string `yaml:"dsn" json:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug | info | warn | error
	Format string `yaml:"format" json:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

// Default devuelve la configuración con todos los valores por defecto,
// sin tocar disco. Útil para tests y para runs exploratorios.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Hash es la huella de reproducibilidad del run: sha256 del JSON con
// orden de campos estable. Config idéntica ⇒ hash idéntico ⇒ (con los
// mismos datos de entrada) trades idénticos.
func (c *Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("VOLMACHINE_ARCHIVE_DIR"); v != "" {
		cfg.Data.ArchiveDir = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if len(cfg.Backtest.Symbols) == 0 {
		cfg.Backtest.Symbols = []string{"SPY", "QQQ", "IWM", "TLT"}
	}
	if cfg.Backtest.MinEdgeStrength <= 0 {
		cfg.Backtest.MinEdgeStrength = 0.50
	}

	if cfg.Exits.CreditSpread.TakeProfitPct <= 0 {
		cfg.Exits.CreditSpread.TakeProfitPct = 50
	}
	if cfg.Exits.CreditSpread.StopLossMult <= 0 {
		cfg.Exits.CreditSpread.StopLossMult = 2.0
	}
	if cfg.Exits.CreditSpread.TimeStopDTE <= 0 {
		cfg.Exits.CreditSpread.TimeStopDTE = 5
	}
	if cfg.Exits.DebitSpread.TakeProfitPct <= 0 {
		cfg.Exits.DebitSpread.TakeProfitPct = 100
	}
	if cfg.Exits.DebitSpread.StopLossPct <= 0 {
		cfg.Exits.DebitSpread.StopLossPct = 50
	}
	if cfg.Exits.DebitSpread.TimeStopDTE <= 0 {
		cfg.Exits.DebitSpread.TimeStopDTE = 5
	}

	if cfg.Fill.SlippagePerLeg <= 0 {
		cfg.Fill.SlippagePerLeg = 0.02
	}
	if cfg.Fill.CommissionPerContract <= 0 {
		cfg.Fill.CommissionPerContract = 0.65
	}
	if cfg.Fill.BidAskSpreadPct <= 0 {
		cfg.Fill.BidAskSpreadPct = 0.04
	}
	if cfg.Fill.LiquidityStressMult <= 0 {
		cfg.Fill.LiquidityStressMult = 1.5
	}
	if cfg.Fill.HighVolThreshold <= 0 {
		cfg.Fill.HighVolThreshold = 80
	}

	if cfg.Strategy.MaxPositionsPerSymbol <= 0 {
		cfg.Strategy.MaxPositionsPerSymbol = 1
	}
	if cfg.Strategy.CooldownAfterSLDays <= 0 {
		cfg.Strategy.CooldownAfterSLDays = 10
	}

	if cfg.Data.ArchiveDir == "" {
		cfg.Data.ArchiveDir = "cache/flatfiles/options_aggs"
	}
	if cfg.Data.ReportsDir == "" {
		cfg.Data.ReportsDir = "logs/reports"
	}
	if cfg.Data.ResultsDir == "" {
		cfg.Data.ResultsDir = "logs/backtests"
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "volmachine.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza combinaciones que producirían simulaciones sin sentido.
func validate(cfg *Config) error {
	if cfg.Exits.CreditSpread.TakeProfitPct > 100 {
		return fmt.Errorf("credit take_profit_pct %.1f > 100", cfg.Exits.CreditSpread.TakeProfitPct)
	}
	if cfg.Strategy.DisableCreditSpreads && cfg.Strategy.DisableDebitSpreads {
		return fmt.Errorf("both structure types disabled — nothing to simulate")
	}
	return nil
}
