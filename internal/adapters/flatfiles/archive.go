package flatfiles

// archive.go — archivo local de barras diarias de opciones, particionado
// por fecha ({YYYY-MM-DD}.csv.gz, un archivo por día de trading).
//
// Patrón de uso (el mismo que el backfill de producción):
//   1. Load(día): parsea el flat file completo a una tabla en memoria
//   2. ...todos los Lookup() de ese día son accesos O(1) a mapa...
//   3. Evict(día): libera la tabla cuando el día no se revisitará
//
// El caller es dueño de la disciplina load/evict; el archivo nunca
// retiene más días de los que se le pidieron explícitamente.

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// Mode controla cuántos campos se materializan por barra.
type Mode int

const (
	// ModeThin solo carga close y volume (~50% de memoria).
	ModeThin Mode = iota
	// ModeFull carga OHLCV completo.
	ModeFull
)

const dateLayout = "2006-01-02"

// Archive es el acceso day-at-a-time al archivo de flat files.
// Single-writer: una instancia pertenece a un único run de backtest;
// runs concurrentes construyen instancias independientes.
type Archive struct {
	dir  string
	mode Mode
	days map[string]map[string]domain.OptionBar // fecha ISO → ticker → barra
}

// New crea un Archive sobre el directorio de flat files dado.
func New(dir string, mode Mode) *Archive {
	return &Archive{
		dir:  dir,
		mode: mode,
		days: make(map[string]map[string]domain.OptionBar),
	}
}

// Load carga todos los tickers de un día en memoria. Idempotente: si el
// día ya estaba cargado devuelve el conteo existente. Un archivo ausente
// (finde, festivo, gap) es un resultado normal: tabla vacía, count 0.
func (a *Archive) Load(date time.Time) (int, error) {
	key := date.Format(dateLayout)
	if table, ok := a.days[key]; ok {
		return len(table), nil
	}

	path := filepath.Join(a.dir, key+".csv.gz")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			a.days[key] = map[string]domain.OptionBar{}
			return 0, nil
		}
		return 0, fmt.Errorf("flatfiles.Load: open %q: %w", path, err)
	}
	defer f.Close()

	table, err := a.parseDay(f)
	if err != nil {
		// Un archivo corrupto se trata como día vacío para no parar el
		// batch, pero se deja constancia: el auditor debe poder verlo.
		slog.Warn("archive: failed to parse flat file", "path", path, "err", err)
		a.days[key] = map[string]domain.OptionBar{}
		return 0, nil
	}

	a.days[key] = table
	slog.Debug("archive: loaded day", "date", key, "options", len(table))
	return len(table), nil
}

// Lookup devuelve la barra de un ticker en una fecha. O(1) tras Load;
// si el día nunca se cargó dispara una carga implícita (camino lento,
// solo defensivo).
func (a *Archive) Lookup(date time.Time, ticker string) (domain.OptionBar, bool) {
	key := date.Format(dateLayout)
	table, ok := a.days[key]
	if !ok {
		if _, err := a.Load(date); err != nil {
			return domain.OptionBar{}, false
		}
		table = a.days[key]
	}
	bar, ok := table[ticker]
	return bar, ok
}

// Evict libera la tabla de un día para acotar la memoria del run.
func (a *Archive) Evict(date time.Time) {
	delete(a.days, date.Format(dateLayout))
}

// EvictBefore libera todos los días estrictamente anteriores a la fecha.
// Las keys ISO ordenan lexicográficamente igual que cronológicamente.
func (a *Archive) EvictBefore(date time.Time) {
	cutoff := date.Format(dateLayout)
	for key := range a.days {
		if key < cutoff {
			delete(a.days, key)
		}
	}
}

// Has indica si existe flat file para la fecha, sin cargarlo.
func (a *Archive) Has(date time.Time) bool {
	path := filepath.Join(a.dir, date.Format(dateLayout)+".csv.gz")
	_, err := os.Stat(path)
	return err == nil
}

// Stats devuelve el estado de la cache para diagnóstico.
func (a *Archive) Stats() (daysLoaded, totalBars int) {
	for _, table := range a.days {
		totalBars += len(table)
	}
	return len(a.days), totalBars
}

// parseDay parsea un flat file gzip+CSV a la tabla del día.
// Las cabeceras son case-insensitive (ticker/Ticker, close/Close...).
func (a *Archive) parseDay(f io.Reader) (map[string]domain.OptionBar, error) {
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tickerIdx, ok := col["ticker"]
	if !ok {
		return nil, fmt.Errorf("missing ticker column")
	}

	table := make(map[string]domain.OptionBar)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Una fila malformada no invalida el día entero.
			continue
		}
		if tickerIdx >= len(row) || row[tickerIdx] == "" {
			continue
		}

		bar := domain.OptionBar{
			Close:  field(row, col, "close"),
			Volume: int64(field(row, col, "volume")),
		}
		if a.mode == ModeFull {
			bar.Open = field(row, col, "open")
			bar.High = field(row, col, "high")
			bar.Low = field(row, col, "low")
		}
		table[row[tickerIdx]] = bar
	}
	return table, nil
}

// field lee una columna numérica con default 0 si falta o no parsea.
func field(row []string, col map[string]int, name string) float64 {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0
	}
	return v
}
