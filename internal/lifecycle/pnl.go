package lifecycle

import "github.com/ordinalkernel/tradekernel/internal/signal"

// computePnL: gross is the raw percentage
// move in the position's favor, net deducts two sides of fee plus one
// slippage application, percent is net expressed as a percentage.
func computePnL(pos signal.Position, priceOpenActual, priceClose, feePercent, slippagePercent float64) signal.PnL {
	gross := (priceClose - priceOpenActual) / priceOpenActual
	if pos == signal.Short {
		gross = -gross
	}
	fee := feePercent / 100
	slippage := slippagePercent / 100
	net := gross - 2*fee - slippage
	return signal.PnL{
		Percent: net * 100,
		Gross:   gross,
		Net:     net,
	}
}
