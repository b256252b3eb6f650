package signal

import (
	"fmt"

	"github.com/ordinalkernel/tradekernel/internal/config"
)

// maxMinuteEstimatedTime caps a signal's lifetime.
const maxMinuteEstimatedTime = 360

// ValidateDraft enforces the draft contract: positive finite prices,
// priceTakeProfit/priceStopLoss on the correct sides of priceOpen for
// position, and minuteEstimatedTime within bounds. It returns a
// *config.KernelError of KindContract describing the first violation
// found.
func ValidateDraft(d Draft) error {
	op := "signal.ValidateDraft"
	if d.Position != Long && d.Position != Short {
		return invalid(op, fmt.Errorf("position must be %q or %q, got %q", Long, Short, d.Position))
	}
	if d.PriceOpen < 0 || isNonFinite(d.PriceOpen) {
		return invalid(op, fmt.Errorf("priceOpen must be a non-negative finite number"))
	}
	if !isPositiveFinite(d.PriceTakeProfit) {
		return invalid(op, fmt.Errorf("priceTakeProfit must be a positive finite number"))
	}
	if !isPositiveFinite(d.PriceStopLoss) {
		return invalid(op, fmt.Errorf("priceStopLoss must be a positive finite number"))
	}
	if d.MinuteEstimatedTime <= 0 || d.MinuteEstimatedTime > maxMinuteEstimatedTime {
		return invalid(op, fmt.Errorf("minuteEstimatedTime must be in (0, %d], got %d", maxMinuteEstimatedTime, d.MinuteEstimatedTime))
	}
	// The priceOpen-relative checks only apply once priceOpen is known;
	// callers that defaulted priceOpen to the current VWAP re-validate
	// after the default is applied (see ValidateAgainstOpen).
	if d.HasExplicitPriceOpen() {
		if err := ValidateAgainstOpen(d.Position, d.PriceOpen, d.PriceTakeProfit, d.PriceStopLoss); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAgainstOpen checks the side constraints once priceOpen is known
// (either explicit or defaulted to VWAP): priceTakeProfit strictly on the
// correct side of priceOpen for position, priceStopLoss strictly on the
// other.
func ValidateAgainstOpen(pos Position, priceOpen, tp, sl float64) error {
	op := "signal.ValidateAgainstOpen"
	switch pos {
	case Long:
		if tp <= priceOpen {
			return invalid(op, fmt.Errorf("priceTakeProfit (%v) must be strictly above priceOpen (%v) for a long", tp, priceOpen))
		}
		if sl >= priceOpen {
			return invalid(op, fmt.Errorf("priceStopLoss (%v) must be strictly below priceOpen (%v) for a long", sl, priceOpen))
		}
	case Short:
		if tp >= priceOpen {
			return invalid(op, fmt.Errorf("priceTakeProfit (%v) must be strictly below priceOpen (%v) for a short", tp, priceOpen))
		}
		if sl <= priceOpen {
			return invalid(op, fmt.Errorf("priceStopLoss (%v) must be strictly above priceOpen (%v) for a short", sl, priceOpen))
		}
	default:
		return invalid(op, fmt.Errorf("unknown position %q", pos))
	}
	return nil
}

func isPositiveFinite(f float64) bool {
	return f > 0 && !isNonFinite(f)
}

func isNonFinite(f float64) bool {
	return f != f || f > maxFinite || f < -maxFinite
}

const maxFinite = 1e308

func invalid(op string, err error) error {
	return config.NewKernelError(config.KindContract, op, err)
}
