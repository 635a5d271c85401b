package domain

import (
	"encoding/json"
	"fmt"
)

// Side es la dirección de una pata al entrar: BUY o SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide valida un side serializado.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	}
	return "", fmt.Errorf("domain.ParseSide: invalid side %q", s)
}

// SpreadType distingue estructuras que cobran o pagan prima neta al entrar.
type SpreadType int

const (
	CreditSpread SpreadType = iota
	DebitSpread
)

func (s SpreadType) String() string {
	if s == DebitSpread {
		return "debit"
	}
	return "credit"
}

// ParseSpreadType acepta los tokens del productor de señales
// ("credit"/"debit" y las variantes "credit_spread"/"debit_spread").
func ParseSpreadType(s string) (SpreadType, error) {
	switch s {
	case "credit", "credit_spread":
		return CreditSpread, nil
	case "debit", "debit_spread":
		return DebitSpread, nil
	}
	return 0, fmt.Errorf("domain.ParseSpreadType: invalid spread type %q", s)
}

func (s SpreadType) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *SpreadType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseSpreadType(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ExitReason es el conjunto cerrado de motivos de salida de un trade.
type ExitReason int

const (
	ExitTakeProfit ExitReason = iota
	ExitStopLoss
	ExitTimeStop
	ExitExpiry
)

var exitReasonTokens = [...]string{"take_profit", "stop_loss", "time_stop", "expiry"}

func (r ExitReason) String() string {
	if int(r) < 0 || int(r) >= len(exitReasonTokens) {
		return fmt.Sprintf("invalid(%d)", int(r))
	}
	return exitReasonTokens[r]
}

func (r ExitReason) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *ExitReason) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for i, tok := range exitReasonTokens {
		if tok == raw {
			*r = ExitReason(i)
			return nil
		}
	}
	return fmt.Errorf("domain.ExitReason: invalid token %q", raw)
}

// TradeLeg es el detalle de una pata, conservado para replay de auditoría.
type TradeLeg struct {
	Ticker string  `json:"ticker"`
	Side   Side    `json:"side"`
	Strike float64 `json:"strike"`
	Right  string  `json:"right"`
}

// Trade es el resultado inmutable de simular un candidato hasta su salida.
// Se construye una vez por candidato y no se modifica después.
type Trade struct {
	// Identificación
	TradeID string `json:"trade_id"`
	Symbol  string `json:"symbol"`

	// Procedencia de la señal
	EdgeType     string             `json:"edge_type"`
	EdgeStrength float64            `json:"edge_strength"`
	EdgeMetrics  map[string]float64 `json:"edge_metrics,omitempty"`
	Regime       string             `json:"regime"`

	// Estructura
	StructureType string     `json:"structure_type"`
	SpreadType    SpreadType `json:"spread_type"`
	DTEAtEntry    int        `json:"dte_at_entry"`

	// Fechas ISO-8601 (YYYY-MM-DD)
	SignalDate string `json:"signal_date"`
	EntryDate  string `json:"entry_date"`
	ExitDate   string `json:"exit_date"`

	// Precios: prima neta (+ crédito, − débito)
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`

	// Límites teóricos de la estructura
	MaxLossTheoretical   float64 `json:"max_loss_theoretical"`
	MaxProfitTheoretical float64 `json:"max_profit_theoretical"`

	// Resultado realizado
	GrossPnL    float64 `json:"gross_pnl"`
	Commissions float64 `json:"commissions"`
	NetPnL      float64 `json:"net_pnl"`
	PnLPct      float64 `json:"pnl_pct"` // % del riesgo máximo

	// Excursión durante la vida del trade
	MFE float64 `json:"mfe"`
	MAE float64 `json:"mae"`

	// Terminación
	ExitReason ExitReason `json:"exit_reason"`
	HoldDays   int        `json:"hold_days"`

	Contracts  int        `json:"contracts"`
	Legs       []TradeLeg `json:"legs"`
	DataSource string     `json:"data_source"`
}

// IsWinner indica si el trade fue rentable neto.
func (t Trade) IsWinner() bool { return t.NetPnL > 0 }
