package ports

import (
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// BarSource da acceso indexado por día a barras diarias de opciones.
// El contrato estructural anti-lookahead: solo expone "cargar el día N",
// nunca "cargar todos los días" — una decisión fechada en D no puede ver
// barras posteriores a D porque el motor nunca las pide.
//
// Single-writer: un BarSource pertenece a un único run; runs concurrentes
// usan instancias independientes.
type BarSource interface {
	// Load carga la tabla del día en memoria. Idempotente; un día sin
	// archivo es un resultado normal (count 0, sin error).
	Load(date time.Time) (int, error)

	// Lookup devuelve la barra de un ticker en un día. O(1) tras Load;
	// dispara una carga implícita si el día nunca se cargó.
	Lookup(date time.Time, ticker string) (domain.OptionBar, bool)

	// Evict libera la tabla de un día que no se volverá a visitar.
	Evict(date time.Time)

	// EvictBefore libera todos los días estrictamente anteriores a date.
	// Con candidatos ordenados por fecha de señal, acota la memoria del run.
	EvictBefore(date time.Time)
}
