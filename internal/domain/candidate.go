package domain

// candidate.go — entrada externa del backtester: candidatos de trade
// generados por los detectores de edge y guardados en reports diarios.
// El motor solo lee los campos que necesita y falla cerrado (skip) si
// faltan campos requeridos.

// CandidateLeg es una pata tal y como la serializa el productor de señales.
type CandidateLeg struct {
	Strike float64 `json:"strike"`
	Right  string  `json:"right"`  // "C" | "P"
	Side   string  `json:"side"`   // "BUY" | "SELL"
	Expiry string  `json:"expiry"` // ISO o YYMMDD
}

// Edge describe la señal que originó el candidato.
type Edge struct {
	Type     string             `json:"type"`
	Strength float64            `json:"strength"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// Structure es el spread propuesto por el candidato.
type Structure struct {
	Type             string         `json:"type"`
	SpreadType       string         `json:"spread_type"`
	Expiry           string         `json:"expiry,omitempty"`
	Legs             []CandidateLeg `json:"legs"`
	MaxLossDollars   float64        `json:"max_loss_dollars"`
	MaxProfitDollars float64        `json:"max_profit_dollars"`
}

// Candidate es un candidato de trade de un report diario.
type Candidate struct {
	Symbol         string    `json:"symbol"`
	Recommendation string    `json:"recommendation"` // el motor solo actúa sobre "TRADE"
	Edge           Edge      `json:"edge"`
	Structure      Structure `json:"structure"`
}

// Signal es un candidato anclado a su fecha de señal y régimen.
type Signal struct {
	SignalDate string `json:"signal_date"` // ISO YYYY-MM-DD
	ReportDate string `json:"report_date"`
	Candidate  Candidate
	Regime     string `json:"regime"`
}

// DropCounts contabiliza por qué se descartaron candidatos al cargar
// señales. Hace observable la tasa de filtrado sin parar el batch.
type DropCounts struct {
	FilesFound             int `json:"files_found"`
	CandidatesParsed       int `json:"candidates_parsed"`
	DisabledSymbol         int `json:"disabled_symbol"`
	NotEnabledSymbol       int `json:"not_in_enabled_symbols"`
	NotBacktestSymbol      int `json:"not_in_backtest_symbols"`
	RecommendationNotTrade int `json:"recommendation_filtered"`
	StrengthBelowMin       int `json:"strength_below_threshold"`
	CreditFiltered         int `json:"credit_filtered"`
	DebitFiltered          int `json:"debit_filtered"`
	PassedFilters          int `json:"passed_filters"`
}
