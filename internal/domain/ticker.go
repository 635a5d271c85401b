package domain

// ticker.go — codec del ticker de opciones de los flat files:
//
//	O:{SYMBOL}{YYMMDD}{C|P}{strike*1000 en 8 dígitos}
//
// Campos de ancho fijo sin separadores. El parseo indexa por offsets
// exactos desde el final del string (los últimos 15 caracteres son
// siempre expiry+right+strike), nunca por búsqueda de delimitadores.

import (
	"fmt"
	"time"
)

// Right es el tipo de opción: call o put.
type Right byte

const (
	Call Right = 'C'
	Put  Right = 'P'
)

func (r Right) String() string { return string(r) }

// ParseRight valida un right serializado ("C" o "P").
func ParseRight(s string) (Right, error) {
	switch s {
	case "C":
		return Call, nil
	case "P":
		return Put, nil
	}
	return 0, fmt.Errorf("domain.ParseRight: invalid right %q", s)
}

// OptionTicker es el resultado validado de parsear un ticker de opción.
type OptionTicker struct {
	Root   string
	Expiry time.Time
	Right  Right
	Strike float64
}

const (
	tickerPrefix   = "O:"
	tickerTailLen  = 15 // YYMMDD(6) + right(1) + strike(8)
	tickerDateForm = "060102"
)

// ParseTicker descompone un ticker O:SPY220121C00420000 en sus campos.
// El símbolo es todo lo que queda entre el prefijo y la cola fija.
func ParseTicker(ticker string) (OptionTicker, error) {
	if len(ticker) < len(tickerPrefix)+tickerTailLen+1 {
		return OptionTicker{}, fmt.Errorf("domain.ParseTicker: ticker %q too short", ticker)
	}
	if ticker[:len(tickerPrefix)] != tickerPrefix {
		return OptionTicker{}, fmt.Errorf("domain.ParseTicker: ticker %q missing O: prefix", ticker)
	}

	tail := ticker[len(ticker)-tickerTailLen:]
	root := ticker[len(tickerPrefix) : len(ticker)-tickerTailLen]

	expiry, err := time.Parse(tickerDateForm, tail[:6])
	if err != nil {
		return OptionTicker{}, fmt.Errorf("domain.ParseTicker: expiry in %q: %w", ticker, err)
	}

	right := Right(tail[6])
	if right != Call && right != Put {
		return OptionTicker{}, fmt.Errorf("domain.ParseTicker: invalid right %q in %q", tail[6], ticker)
	}

	var milli int64
	for i := 7; i < tickerTailLen; i++ {
		c := tail[i]
		if c < '0' || c > '9' {
			return OptionTicker{}, fmt.Errorf("domain.ParseTicker: invalid strike digits in %q", ticker)
		}
		milli = milli*10 + int64(c-'0')
	}

	return OptionTicker{
		Root:   root,
		Expiry: expiry,
		Right:  right,
		Strike: float64(milli) / 1000,
	}, nil
}

// FormatTicker construye el ticker canónico para un contrato.
func FormatTicker(symbol string, expiry time.Time, right Right, strike float64) string {
	return fmt.Sprintf("%s%s%s%c%08d",
		tickerPrefix, symbol, expiry.Format(tickerDateForm), right, int64(strike*1000+0.5))
}
