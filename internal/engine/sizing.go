package engine

import (
	"errors"
	"fmt"
	"math"
)

// Guardrail skips. None of them falls back to a smaller order.
var (
	SkipLowLiquidity     = errors.New("low liquidity")
	SkipVolatility       = errors.New("atr above volatility ceiling")
	SkipBelowMinQty      = errors.New("quantity below minimum")
	SkipBelowMinValue    = errors.New("order value below minimum")
	SkipInsufficientCash = errors.New("insufficient free cash")
)

// SkipLabel is the metrics label of a guardrail skip.
func SkipLabel(err error) string {
	switch {
	case errors.Is(err, SkipLowLiquidity):
		return "low_liquidity"
	case errors.Is(err, SkipVolatility):
		return "volatility"
	case errors.Is(err, SkipBelowMinQty):
		return "min_qty"
	case errors.Is(err, SkipBelowMinValue):
		return "min_value"
	case errors.Is(err, SkipInsufficientCash):
		return "cash"
	}
	return "other"
}

// SizeInput is everything the sizer needs for one entry.
type SizeInput struct {
	Price      float64
	ATR        float64
	AvgVolume  float64
	Confidence float64
	Free       float64
	Total      float64
	Kelly      float64
	// SizeMult is the per-ticker regime x volatility multiplier.
	SizeMult float64
}

// Sizing is the chosen order.
type Sizing struct {
	Quantity   float64 `json:"quantity"`
	Cost       float64 `json:"cost"`
	Budget     float64 `json:"budget"`
	Multiplier float64 `json:"multiplier"`
	Fractional bool    `json:"fractional"`
}

// Size turns a budget into a share quantity, or returns one of the Skip errors.
func (c Config) Size(in SizeInput) (Sizing, error) {
	if in.Price <= 0 {
		return Sizing{}, fmt.Errorf("price %.4f: %w", in.Price, SkipBelowMinValue)
	}
	if in.AvgVolume < c.MinAvgVolume {
		return Sizing{}, fmt.Errorf("avg volume %.0f < %.0f: %w", in.AvgVolume, c.MinAvgVolume, SkipLowLiquidity)
	}
	if atrPct := in.ATR / in.Price; atrPct > c.MaxATRPct {
		return Sizing{}, fmt.Errorf("atr %.1f%% > %.1f%%: %w", atrPct*100, c.MaxATRPct*100, SkipVolatility)
	}

	var s Sizing
	if in.Free < in.Total*c.TightCashFrac {
		s.Budget = in.Free * c.CashBuffer
	} else {
		s.Budget = in.Total * in.Kelly
	}

	floor := math.Max(c.ConfidenceThreshold, 0.4)
	norm := 0.0
	if floor < 1 {
		norm = math.Max(0, math.Min(1, (in.Confidence-floor)/(1-floor)))
	}
	sizeMult := in.SizeMult
	if sizeMult <= 0 {
		sizeMult = 1
	}
	s.Multiplier = math.Max(0.5, math.Min(1.5, (0.6+0.8*norm)*sizeMult))
	s.Budget *= s.Multiplier

	if in.Free < c.FractionalBelow {
		qty := math.Min(s.Budget, in.Free*c.CashBuffer) / in.Price
		qty = math.Round(qty*10) / 10
		if qty < 0.1 || qty*in.Price < 0.10 {
			return s, fmt.Errorf("fractional qty %.1f with $%.2f free: %w", qty, in.Free, SkipBelowMinQty)
		}
		s.Quantity, s.Fractional = qty, true
	} else {
		qty := math.Max(1, math.Round(s.Budget/in.Price))
		if c.MaxQuantity > 0 {
			qty = math.Min(qty, c.MaxQuantity)
		}
		s.Quantity = qty
	}

	s.Cost = s.Quantity * in.Price
	if s.Quantity < c.MinQuantity {
		return s, fmt.Errorf("qty %.3f < %.3f: %w", s.Quantity, c.MinQuantity, SkipBelowMinQty)
	}
	if s.Cost < c.MinOrderValue {
		return s, fmt.Errorf("$%.2f < $%.2f: %w", s.Cost, c.MinOrderValue, SkipBelowMinValue)
	}
	if s.Cost > in.Free {
		s.Quantity = math.Floor(in.Free / in.Price)
		s.Cost = s.Quantity * in.Price
		if s.Quantity <= 0 || s.Cost > in.Free || s.Quantity < c.MinQuantity {
			return s, fmt.Errorf("$%.2f free: %w", in.Free, SkipInsufficientCash)
		}
		// the reduced order must still clear the value floor
		if s.Cost < c.MinOrderValue {
			return s, fmt.Errorf("$%.2f after cash cap < $%.2f: %w", s.Cost, c.MinOrderValue, SkipBelowMinValue)
		}
	}
	return s, nil
}
