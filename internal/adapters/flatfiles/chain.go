package flatfiles

// chain.go — queries chain-aware sobre los días cargados: expiries
// disponibles, strikes por expiry, resolución de strike ATM e inferencia
// del incremento de strikes. Todas operan solo sobre datos ya cargados:
// el archivo nunca inventa una chain que no está en el flat file.

import (
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// ExpiryDTE es un expiry disponible con sus días a vencimiento.
type ExpiryDTE struct {
	Expiry time.Time
	DTE    int
}

// validIncrements son los pasos de strike reales de las chains US.
var validIncrements = [...]float64{0.5, 1.0, 2.5, 5.0}

// AvailableExpiries escanea los tickers cargados del día con prefijo del
// símbolo y devuelve los expiries únicos ordenados por DTE ascendente.
// Devuelve nil si el día no está cargado.
func (a *Archive) AvailableExpiries(date time.Time, symbol string) []ExpiryDTE {
	table, ok := a.days[date.Format(dateLayout)]
	if !ok {
		return nil
	}

	seen := make(map[string]time.Time)
	for ticker := range table {
		t, err := domain.ParseTicker(ticker)
		if err != nil || t.Root != symbol {
			continue
		}
		seen[t.Expiry.Format(dateLayout)] = t.Expiry
	}

	out := make([]ExpiryDTE, 0, len(seen))
	for _, exp := range seen {
		out = append(out, ExpiryDTE{Expiry: exp, DTE: daysBetween(date, exp)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DTE < out[j].DTE })
	return out
}

// AvailableStrikes devuelve las barras por strike para un símbolo y
// expiry. right == 0 incluye calls y puts; domain.Call o domain.Put
// filtran a un solo lado.
func (a *Archive) AvailableStrikes(date time.Time, symbol string, expiry time.Time, right domain.Right) map[float64]map[domain.Right]domain.OptionBar {
	table, ok := a.days[date.Format(dateLayout)]
	if !ok {
		return nil
	}

	expKey := expiry.Format(dateLayout)
	strikes := make(map[float64]map[domain.Right]domain.OptionBar)
	for ticker, bar := range table {
		t, err := domain.ParseTicker(ticker)
		if err != nil || t.Root != symbol || t.Expiry.Format(dateLayout) != expKey {
			continue
		}
		if right != 0 && t.Right != right {
			continue
		}
		if strikes[t.Strike] == nil {
			strikes[t.Strike] = make(map[domain.Right]domain.OptionBar, 2)
		}
		strikes[t.Strike][t.Right] = bar
	}
	return strikes
}

// FindATMStrike busca el strike más cercano a spot donde AMBAS patas
// (call y put) tienen datos operables. Devuelve ok=false cuando ningún
// strike tiene datos a dos lados — la garantía de honestidad central:
// el archivo nunca inventa una chain.
func (a *Archive) FindATMStrike(date time.Time, symbol string, expiry time.Time, spot float64) (strike float64, call, put domain.OptionBar, ok bool) {
	strikes := a.AvailableStrikes(date, symbol, expiry, 0)

	type atm struct {
		strike    float64
		call, put domain.OptionBar
	}
	var valid []atm
	for s, sides := range strikes {
		c, hasCall := sides[domain.Call]
		p, hasPut := sides[domain.Put]
		if hasCall && hasPut && c.Tradable() && p.Tradable() {
			valid = append(valid, atm{strike: s, call: c, put: p})
		}
	}
	if len(valid) == 0 {
		return 0, domain.OptionBar{}, domain.OptionBar{}, false
	}

	// Más cercano a spot; empate resuelto por strike para determinismo.
	sort.Slice(valid, func(i, j int) bool {
		di, dj := math.Abs(valid[i].strike-spot), math.Abs(valid[j].strike-spot)
		if di != dj {
			return di < dj
		}
		return valid[i].strike < valid[j].strike
	})
	best := valid[0]
	return best.strike, best.call, best.put, true
}

// FindBestExpiry busca el expiry usable más cercano al DTE objetivo.
// Usable = su par ATM queda a max(2% de spot, $3) o menos del spot.
// Prefiere candidatos dentro de la tolerancia; si no hay, el usable más
// cercano al objetivo; si no hay ninguno usable, ok=false.
func (a *Archive) FindBestExpiry(date time.Time, symbol string, targetDTE, tolerance int, spot float64) (time.Time, int, bool) {
	if spot <= 0 {
		return time.Time{}, 0, false
	}

	expiries := a.AvailableExpiries(date, symbol)
	if len(expiries) == 0 {
		return time.Time{}, 0, false
	}

	// Banda operativa 7 < DTE ≤ 60; fallback a cualquier DTE > 7.
	var candidates []ExpiryDTE
	for _, e := range expiries {
		if e.DTE > 7 && e.DTE <= 60 {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		for _, e := range expiries {
			if e.DTE > 7 {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, 0, false
	}

	maxATMDistance := math.Max(spot*0.02, 3.0)

	var usable []ExpiryDTE
	for _, e := range candidates {
		strike, _, _, ok := a.FindATMStrike(date, symbol, e.Expiry, spot)
		if ok && math.Abs(strike-spot) <= maxATMDistance {
			usable = append(usable, e)
		}
	}
	if len(usable) == 0 {
		return time.Time{}, 0, false
	}

	byTarget := func(list []ExpiryDTE) ExpiryDTE {
		sort.Slice(list, func(i, j int) bool {
			di := abs(list[i].DTE - targetDTE)
			dj := abs(list[j].DTE - targetDTE)
			if di != dj {
				return di < dj
			}
			return list[i].DTE < list[j].DTE
		})
		return list[0]
	}

	var within []ExpiryDTE
	for _, e := range usable {
		if abs(e.DTE-targetDTE) <= tolerance {
			within = append(within, e)
		}
	}
	if len(within) > 0 {
		best := byTarget(within)
		return best.Expiry, best.DTE, true
	}
	best := byTarget(usable)
	return best.Expiry, best.DTE, true
}

// DeriveStrikeIncrement infiere el paso de strikes de la chain a partir
// del gap modal entre strikes cercanos a spot (ventana windowPct),
// clamped a los incrementos válidos. Default 1.0 con datos insuficientes.
func (a *Archive) DeriveStrikeIncrement(date time.Time, symbol string, expiry time.Time, spot, windowPct float64) float64 {
	strikes := a.AvailableStrikes(date, symbol, expiry, 0)

	window := spot * windowPct
	var nearby []float64
	for s := range strikes {
		if math.Abs(s-spot) <= window {
			nearby = append(nearby, s)
		}
	}
	if len(nearby) < 2 {
		return 1.0
	}
	sort.Float64s(nearby)

	counts := make(map[float64]int)
	for i := 1; i < len(nearby); i++ {
		diff := math.Round((nearby[i]-nearby[i-1])*100) / 100
		if diff > 0 {
			counts[diff]++
		}
	}
	if len(counts) == 0 {
		return 1.0
	}

	// Moda; empate resuelto por el gap menor para determinismo.
	var modal float64
	best := -1
	for diff, n := range counts {
		if n > best || (n == best && diff < modal) {
			modal, best = diff, n
		}
	}

	clamped := validIncrements[0]
	for _, v := range validIncrements[1:] {
		if math.Abs(v-modal) < math.Abs(clamped-modal) {
			clamped = v
		}
	}
	return clamped
}

func daysBetween(from, to time.Time) int {
	return int(to.Truncate(24*time.Hour).Sub(from.Truncate(24*time.Hour)).Hours() / 24)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
