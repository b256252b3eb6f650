package strategy

import (
	"context"
	"fmt"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// MeanReversionConfig parameterizes NewMeanReversion.
type MeanReversionConfig struct {
	Interval            candle.Interval
	LookbackCandles     int
	EntryDeviationPct   float64 // fraction below/above the lookback mean that triggers a signal
	TakeProfitPct       float64
	StopLossPct         float64
	MinuteEstimatedTime int
}

// NewMeanReversion builds the mean-reversion reference strategy: it
// reads the last LookbackCandles closes on Interval, and when the
// current close deviates from their mean by at least EntryDeviationPct
// it bets on reversion back toward the mean.
func NewMeanReversion(name string, gw *gateway.Gateway, cfg MeanReversionConfig) Registration {
	return Registration{
		Name:     name,
		Interval: cfg.Interval,
		GetSignal: func(tc kernelctx.TemporalContext) (*signal.Draft, error) {
			candles, err := gw.GetCandles(context.Background(), tc, cfg.Interval, cfg.LookbackCandles)
			if err != nil {
				return nil, err
			}
			if len(candles) < cfg.LookbackCandles {
				return nil, nil
			}
			mean := meanClose(candles)
			last := candles[len(candles)-1].Close
			deviation := (last - mean) / mean

			switch {
			case deviation <= -cfg.EntryDeviationPct:
				return &signal.Draft{
					Position:            signal.Long,
					PriceTakeProfit:     last * (1 + cfg.TakeProfitPct),
					PriceStopLoss:       last * (1 - cfg.StopLossPct),
					MinuteEstimatedTime: cfg.MinuteEstimatedTime,
					Note:                fmt.Sprintf("mean-reversion long: price %.4f below mean %.4f", last, mean),
				}, nil
			case deviation >= cfg.EntryDeviationPct:
				return &signal.Draft{
					Position:            signal.Short,
					PriceTakeProfit:     last * (1 - cfg.TakeProfitPct),
					PriceStopLoss:       last * (1 + cfg.StopLossPct),
					MinuteEstimatedTime: cfg.MinuteEstimatedTime,
					Note:                fmt.Sprintf("mean-reversion short: price %.4f above mean %.4f", last, mean),
				}, nil
			default:
				return nil, nil
			}
		},
	}
}

// BreakoutConfig parameterizes NewBreakout.
type BreakoutConfig struct {
	Interval            candle.Interval
	LookbackCandles     int
	BreakoutPct         float64 // fraction past the lookback high/low that confirms a breakout
	TakeProfitPct       float64
	StopLossPct         float64
	MinuteEstimatedTime int
}

// NewBreakout builds the breakout reference strategy: it bets on
// continuation when the current close clears the lookback range high or
// low by BreakoutPct.
func NewBreakout(name string, gw *gateway.Gateway, cfg BreakoutConfig) Registration {
	return Registration{
		Name:     name,
		Interval: cfg.Interval,
		GetSignal: func(tc kernelctx.TemporalContext) (*signal.Draft, error) {
			candles, err := gw.GetCandles(context.Background(), tc, cfg.Interval, cfg.LookbackCandles+1)
			if err != nil {
				return nil, err
			}
			if len(candles) < cfg.LookbackCandles+1 {
				return nil, nil
			}

			// Range over everything except the most recent candle, so
			// the candle being judged does not define its own breakout.
			window := candles[:len(candles)-1]
			high, low := rangeHighLow(window)
			last := candles[len(candles)-1].Close

			switch {
			case last >= high*(1+cfg.BreakoutPct):
				return &signal.Draft{
					Position:            signal.Long,
					PriceTakeProfit:     last * (1 + cfg.TakeProfitPct),
					PriceStopLoss:       last * (1 - cfg.StopLossPct),
					MinuteEstimatedTime: cfg.MinuteEstimatedTime,
					Note:                fmt.Sprintf("breakout long: price %.4f above range high %.4f", last, high),
				}, nil
			case last <= low*(1-cfg.BreakoutPct):
				return &signal.Draft{
					Position:            signal.Short,
					PriceTakeProfit:     last * (1 - cfg.TakeProfitPct),
					PriceStopLoss:       last * (1 + cfg.StopLossPct),
					MinuteEstimatedTime: cfg.MinuteEstimatedTime,
					Note:                fmt.Sprintf("breakout short: price %.4f below range low %.4f", last, low),
				}, nil
			default:
				return nil, nil
			}
		},
	}
}

func meanClose(candles []candle.Candle) float64 {
	var sum float64
	for _, c := range candles {
		sum += c.Close
	}
	return sum / float64(len(candles))
}

func rangeHighLow(candles []candle.Candle) (high, low float64) {
	high, low = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

// DefaultMeanReversionConfig is a reasonable starting point for the
// reference strategy.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		Interval:            candle.Interval5m,
		LookbackCandles:     20,
		EntryDeviationPct:   0.01,
		TakeProfitPct:       0.02,
		StopLossPct:         0.01,
		MinuteEstimatedTime: 240,
	}
}
