package ports

import (
	"github.com/alejandrodnm/volmachine/internal/domain"
)

// Notifier presenta los resultados del backtest al usuario.
type Notifier interface {
	// PrintResult muestra los trades y las métricas agregadas del run.
	PrintResult(result domain.BacktestResult)

	// PrintIntegrity muestra el report de integridad con su veredicto.
	PrintIntegrity(report domain.IntegrityReport)
}
