package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

var decimalZero = decimal.Zero

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }

// atrOffset returns entry + mult*atr computed in decimal space.
func atrOffset(entry, atr, mult float64) float64 {
	return decToFloat(decFromFloat(entry).Add(decFromFloat(atr).Mul(decFromFloat(mult))))
}

// pctChange is (price-entry)/entry in percent.
func pctChange(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	d := decFromFloat(price).Sub(decFromFloat(entry)).Div(decFromFloat(entry)).Mul(decimal.NewFromInt(100))
	return decToFloat(d)
}

// priceBreachedStop reports price <= stop for a long position.
func priceBreachedStop(price, stop float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	return decimalLTE(price, stop)
}

func targetHit(price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	return decimalGTE(price, target)
}

// tighterStop keeps the higher of two long stops.
func tighterStop(candidate, current float64) float64 {
	if candidate <= 0 {
		return current
	}
	if current <= 0 || decimalCompare(candidate, current) > 0 {
		return candidate
	}
	return current
}
