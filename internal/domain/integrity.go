package domain

// IntegrityReport valida la calidad de un run completo antes de
// interpretar su P&L. Los errores son condiciones duras (ponen
// Passed=false); los warnings son anomalías blandas para revisión
// humana. El report es consultivo: nunca detiene la generación.
type IntegrityReport struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	// Conteos por estructura
	CreditSpreadCount int `json:"credit_spread_count"`
	DebitSpreadCount  int `json:"debit_spread_count"`

	// Flags de la señal origen
	SteepCount        int `json:"is_steep_count"`
	FlatCount         int `json:"is_flat_count"`
	HistoryModeCount  int `json:"history_mode_count"`  // percentil completo
	FallbackModeCount int `json:"fallback_mode_count"` // histórico insuficiente

	// Estadísticas descriptivas de entrada
	AvgEntryCredit float64 `json:"avg_entry_credit"`
	AvgEntryDebit  float64 `json:"avg_entry_debit"`
	AvgMaxLoss     float64 `json:"avg_max_loss"`
	AvgDTEAtEntry  float64 `json:"avg_dte_at_entry"`

	// Desglose de salidas
	TakeProfitCount int `json:"take_profit_count"`
	StopLossCount   int `json:"stop_loss_count"`
	TimeStopCount   int `json:"time_stop_count"`
	ExpiryCount     int `json:"expiry_count"`
}

// AddError registra una condición dura y marca el report como fallido.
func (r *IntegrityReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Passed = false
}

// AddWarning registra una anomalía blanda sin afectar al veredicto.
func (r *IntegrityReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
