package signals

// reports.go — carga de candidatos desde los reports diarios JSON del
// productor de señales. Un report ilegible se loguea y se salta; la
// carga nunca aborta el batch por un archivo malo.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

const dateLayout = "2006-01-02"

// Filter son los gates que un candidato debe pasar para convertirse en señal.
type Filter struct {
	Symbols         []string // universo del backtest
	EnabledSymbols  []string // gate por estrategia; vacío = todos
	DisabledSymbols []string
	MinEdgeStrength float64
	TradeOnly       bool // solo recommendation == "TRADE"
	AllowCredit     bool
	AllowDebit      bool
}

// Loader lee reports diarios de un directorio. Reconoce los cuatro
// nombres históricos por fecha más el patrón de backfill por símbolo.
type Loader struct {
	dir    string
	filter Filter
}

// NewLoader construye un Loader sobre el directorio de reports.
func NewLoader(dir string, filter Filter) *Loader {
	return &Loader{dir: dir, filter: filter}
}

// reportFile es el subconjunto del report diario que consume el motor.
type reportFile struct {
	ReportDate string             `json:"report_date"`
	Regime     json.RawMessage    `json:"regime"`
	Candidates []domain.Candidate `json:"candidates"`
}

// LoadSignals recorre [start, end] día a día, carga cada report
// existente y devuelve las señales que pasan todos los filtros.
func (l *Loader) LoadSignals(start, end time.Time) ([]domain.Signal, domain.DropCounts, error) {
	if end.Before(start) {
		return nil, domain.DropCounts{}, fmt.Errorf("signals.LoadSignals: end %s before start %s",
			end.Format(dateLayout), start.Format(dateLayout))
	}

	var (
		out   []domain.Signal
		drops domain.DropCounts
	)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dateStr := day.Format(dateLayout)

		paths := []string{
			filepath.Join(l.dir, dateStr+".json"),
			filepath.Join(l.dir, dateStr+"_open.json"),
			filepath.Join(l.dir, dateStr+"_close.json"),
			filepath.Join(l.dir, dateStr+"_backfill.json"),
		}
		// Formato nuevo de backfill por símbolo: {date}__{SYMBOL}__backfill.json
		if matches, err := filepath.Glob(filepath.Join(l.dir, dateStr+"__*__backfill.json")); err == nil {
			paths = append(paths, matches...)
		}

		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				slog.Warn("signals: failed to read report", "path", path, "err", err)
				continue
			}
			drops.FilesFound++

			var report reportFile
			if err := json.Unmarshal(data, &report); err != nil {
				slog.Warn("signals: failed to parse report", "path", path, "err", err)
				continue
			}

			reportDate := report.ReportDate
			if reportDate == "" {
				reportDate = dateStr
			}
			regime := regimeLabel(report.Regime)

			for _, cand := range report.Candidates {
				drops.CandidatesParsed++
				if !l.accept(cand, &drops) {
					continue
				}
				drops.PassedFilters++
				out = append(out, domain.Signal{
					SignalDate: dateStr,
					ReportDate: reportDate,
					Candidate:  cand,
					Regime:     regime,
				})
			}
		}
	}

	slog.Info("signals: loaded",
		"files", drops.FilesFound,
		"parsed", drops.CandidatesParsed,
		"passed", drops.PassedFilters,
	)
	return out, drops, nil
}

// accept aplica los gates en el mismo orden que la contabilidad de
// descartes: cada candidato incrementa exactamente un contador.
func (l *Loader) accept(cand domain.Candidate, drops *domain.DropCounts) bool {
	if contains(l.filter.DisabledSymbols, cand.Symbol) {
		drops.DisabledSymbol++
		return false
	}
	if len(l.filter.EnabledSymbols) > 0 && !contains(l.filter.EnabledSymbols, cand.Symbol) {
		drops.NotEnabledSymbol++
		return false
	}
	if len(l.filter.Symbols) > 0 && !contains(l.filter.Symbols, cand.Symbol) {
		drops.NotBacktestSymbol++
		return false
	}

	if l.filter.TradeOnly && cand.Recommendation != "TRADE" {
		drops.RecommendationNotTrade++
		return false
	}
	if cand.Edge.Strength < l.filter.MinEdgeStrength {
		drops.StrengthBelowMin++
		return false
	}

	// Toggle por tipo de spread: mira spread_type y, como fallback, la
	// etiqueta libre de structure.type ("put_credit_spread"...).
	spreadType := cand.Structure.SpreadType
	if spreadType == "" {
		spreadType = cand.Structure.Type
	}
	if !l.filter.AllowCredit && (spreadType == "credit" || strings.Contains(cand.Structure.Type, "credit")) {
		drops.CreditFiltered++
		return false
	}
	if !l.filter.AllowDebit && (spreadType == "debit" || strings.Contains(cand.Structure.Type, "debit")) {
		drops.DebitFiltered++
		return false
	}

	return true
}

// regimeLabel extrae la etiqueta de régimen del report. El productor
// actual serializa {"state": ..., "confidence": ...}; versiones
// anteriores usaron string plano, {"label": ...} y {"regime": ...}.
func regimeLabel(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		State  string `json:"state"`
		Label  string `json:"label"`
		Regime string `json:"regime"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.State != "":
			return obj.State
		case obj.Label != "":
			return obj.Label
		case obj.Regime != "":
			return obj.Regime
		}
	}
	return "unknown"
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
