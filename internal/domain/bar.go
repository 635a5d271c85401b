package domain

// OptionBar es la barra diaria de un contrato de opciones.
// En modo thin solo se cargan close y volume (~50% de memoria).
type OptionBar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Tradable indica si la barra tiene datos operables.
// Operable = close > 0 O volume > 0 — una barra con ambos a cero
// es un contrato listado pero sin mercado ese día.
func (b OptionBar) Tradable() bool {
	return b.Close > 0 || b.Volume > 0
}
