package ports

import (
	"context"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// ResultStore persiste runs completos para comparación entre ejecuciones.
type ResultStore interface {
	// SaveResult persiste el run y todos sus trades.
	SaveResult(ctx context.Context, result domain.BacktestResult) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
