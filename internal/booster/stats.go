package booster

import (
	"sort"

	"smartbot/internal/analysis/indicator"
)

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func validSorted(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if indicator.Valid(v) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func meanLast(xs []float64, n int) float64 {
	if n > len(xs) {
		n = len(xs)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs[len(xs)-n:] {
		sum += v
	}
	return sum / float64(n)
}
