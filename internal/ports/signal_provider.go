package ports

import (
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// SignalProvider carga candidatos de trade generados externamente.
type SignalProvider interface {
	// LoadSignals devuelve las señales del rango [start, end] que pasan
	// los filtros configurados, junto con la contabilidad de descartes.
	LoadSignals(start, end time.Time) ([]domain.Signal, domain.DropCounts, error)
}
