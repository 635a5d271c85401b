package backtest

// fill.go — modelo de ejecución: convierte closes teóricos en precios
// de fill realistas con slippage, y bajo el modo estricto en bid/ask
// sintéticos. Funciones puras: todo el estado vive en FillConfig.

import (
	"math"

	"github.com/alejandrodnm/volmachine/internal/domain"
)

// FillConfig parametriza el modelo de fills. Inmutable durante el run.
type FillConfig struct {
	SlippagePerLeg        float64
	CommissionPerContract float64
	MinCommission         float64
	BidAskSpreadPct       float64
	LiquidityStressMult   float64
	HighVolThreshold      float64
}

// LegQuote es el close de una pata junto con su dirección de ENTRADA.
// Para fills de salida el Side sigue siendo el de la entrada original.
type LegQuote struct {
	Close float64
	Side  domain.Side
}

// Fill es el resultado de ejecutar todas las patas de una estructura.
// NetPremium es la suma con signo: positivo = crédito neto recibido,
// negativo = débito neto pagado.
type Fill struct {
	NetPremium   float64
	Commissions  float64
	FillPrices   []float64
	Unexecutable bool
}

// PnL es el resultado realizado de un round-trip completo.
type PnL struct {
	Gross       float64
	Commissions float64
	Net         float64
}

// EntryFill calcula los fills de entrada con slippage fijo por pata.
// Una pata SELL llena a close−slippage (peor para el vendedor); una BUY
// a close+slippage (peor para el comprador). El precio reportado tiene
// suelo en $0.01; la prima neta suma los fills sin suelo.
func EntryFill(legs []LegQuote, cfg FillConfig) Fill {
	var f Fill
	f.FillPrices = make([]float64, 0, len(legs))

	for _, leg := range legs {
		var fill float64
		if leg.Side == domain.Sell {
			fill = leg.Close - cfg.SlippagePerLeg
			f.NetPremium += fill
		} else {
			fill = leg.Close + cfg.SlippagePerLeg
			f.NetPremium -= fill
		}
		f.FillPrices = append(f.FillPrices, math.Max(0.01, fill))
	}

	f.Commissions = commissions(len(legs), cfg)
	return f
}

// ExitFill es el espejo de la entrada: una pata vendida al entrar se
// recompra a close+slippage; una comprada se vende a close−slippage.
func ExitFill(legs []LegQuote, cfg FillConfig) Fill {
	var f Fill
	f.FillPrices = make([]float64, 0, len(legs))

	for _, leg := range legs {
		var fill float64
		if leg.Side == domain.Sell {
			fill = leg.Close + cfg.SlippagePerLeg
			f.NetPremium -= fill
		} else {
			fill = leg.Close - cfg.SlippagePerLeg
			f.NetPremium += fill
		}
		f.FillPrices = append(f.FillPrices, math.Max(0.01, fill))
	}

	f.Commissions = commissions(len(legs), cfg)
	return f
}

// StrictEntryFill modela un bid/ask sintético desde el close: half-spread
// = close × BidAskSpreadPct / 2, ensanchado por LiquidityStressMult bajo
// el flag de alta volatilidad. Marca Unexecutable cuando a una pata le
// falta un lado (close ≤ 0) o la estructura no produce crédito/débito —
// el caller debe rechazar esos fills, nunca contabilizarlos.
func StrictEntryFill(legs []LegQuote, cfg FillConfig, highVol bool) Fill {
	var f Fill
	f.FillPrices = make([]float64, 0, len(legs))

	for _, leg := range legs {
		if leg.Close <= 0 {
			f.Unexecutable = true
		}
		half := syntheticHalfSpread(leg.Close, cfg, highVol)

		var fill float64
		if leg.Side == domain.Sell {
			fill = leg.Close - half // vendemos al bid
			f.NetPremium += fill
		} else {
			fill = leg.Close + half // compramos al ask
			f.NetPremium -= fill
		}
		f.FillPrices = append(f.FillPrices, math.Max(0.01, fill))
	}

	if f.NetPremium == 0 {
		f.Unexecutable = true
	}

	f.Commissions = commissions(len(legs), cfg)
	return f
}

// StrictExitFill es el espejo estricto: recompra al ask, venta al bid.
func StrictExitFill(legs []LegQuote, cfg FillConfig, highVol bool) Fill {
	var f Fill
	f.FillPrices = make([]float64, 0, len(legs))

	for _, leg := range legs {
		if leg.Close <= 0 {
			f.Unexecutable = true
		}
		half := syntheticHalfSpread(leg.Close, cfg, highVol)

		var fill float64
		if leg.Side == domain.Sell {
			fill = leg.Close + half
			f.NetPremium -= fill
		} else {
			fill = leg.Close - half
			f.NetPremium += fill
		}
		f.FillPrices = append(f.FillPrices, math.Max(0.01, fill))
	}

	f.Commissions = commissions(len(legs), cfg)
	return f
}

// RealizedPnL calcula el resultado de un round-trip. El ×100 es el
// multiplicador del contrato de opciones.
//
//	gross = (entryNet + exitNet) × 100 × contracts
//	net   = gross − (entryComm + exitComm) × contracts
func RealizedPnL(entryNet, exitNet, entryComm, exitComm float64, contracts int) PnL {
	gross := (entryNet + exitNet) * 100 * float64(contracts)
	comm := (entryComm + exitComm) * float64(contracts)
	return PnL{
		Gross:       gross,
		Commissions: comm,
		Net:         gross - comm,
	}
}

func syntheticHalfSpread(close float64, cfg FillConfig, highVol bool) float64 {
	half := close * cfg.BidAskSpreadPct / 2
	if highVol {
		half *= cfg.LiquidityStressMult
	}
	return half
}

func commissions(numLegs int, cfg FillConfig) float64 {
	return math.Max(float64(numLegs)*cfg.CommissionPerContract, cfg.MinCommission)
}
