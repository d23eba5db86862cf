package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	cfg := DefaultConfig()
	base := SizeInput{Price: 50, ATR: 1, AvgVolume: 1e6, Confidence: 0.7, Free: 1000, Total: 1000, Kelly: 0.15}

	tests := []struct {
		name    string
		mutate  func(*SizeInput)
		wantErr error
		qty     float64
		mult    float64
		frac    bool
	}{
		{name: "kelly budget", qty: 3, mult: 1.0},
		{name: "thin volume", mutate: func(in *SizeInput) { in.AvgVolume = 1000 }, wantErr: SkipLowLiquidity},
		{name: "wide atr", mutate: func(in *SizeInput) { in.ATR = 3 }, wantErr: SkipVolatility},
		{
			name: "tight cash uses free balance",
			mutate: func(in *SizeInput) {
				in.Free, in.Price, in.ATR, in.Confidence = 50, 10, 0.1, 0.4
			},
			qty: 3, mult: 0.6,
		},
		{
			name: "fractional below minimum value",
			mutate: func(in *SizeInput) {
				in.Free, in.Price, in.ATR, in.Confidence = 8, 20, 0.2, 0.4
			},
			wantErr: SkipBelowMinValue,
		},
		{
			name: "fractional fill",
			mutate: func(in *SizeInput) {
				in.Free, in.Price, in.ATR, in.Confidence = 8, 5, 0.05, 1
			},
			qty: 1.5, mult: 1.4, frac: true,
		},
		{
			name: "cannot afford one share",
			mutate: func(in *SizeInput) {
				in.Free, in.Price, in.ATR, in.Confidence = 150, 300, 3, 1
			},
			wantErr: SkipInsufficientCash,
		},
		{
			name: "quantity capped",
			mutate: func(in *SizeInput) {
				in.Free, in.Total, in.Price, in.ATR = 100000, 100000, 1, 0.01
			},
			qty: 100, mult: 1.0,
		},
		{name: "booster multiplier clamped", mutate: func(in *SizeInput) { in.SizeMult = 3 }, qty: 5, mult: 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			got, err := cfg.Size(in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.qty, got.Quantity)
			assert.InDelta(t, tt.mult, got.Multiplier, 1e-6)
			assert.Equal(t, tt.frac, got.Fractional)
			assert.InDelta(t, got.Quantity*in.Price, got.Cost, 1e-9)
		})
	}
}

func TestSizeCashCapKeepsValueFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinOrderValue = 50
	in := SizeInput{Price: 30, ATR: 0.3, AvgVolume: 1e6, Confidence: 0.7, Free: 40, Total: 400, Kelly: 0.2}

	_, err := cfg.Size(in)
	require.ErrorIs(t, err, SkipBelowMinValue)

	in.Free = 70
	got, err := cfg.Size(in)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Quantity)
	assert.InDelta(t, 60.0, got.Cost, 1e-9)
}

func TestSkipLabel(t *testing.T) {
	assert.Equal(t, "low_liquidity", SkipLabel(fmt.Errorf("x: %w", SkipLowLiquidity)))
	assert.Equal(t, "cash", SkipLabel(SkipInsufficientCash))
	assert.Equal(t, "other", SkipLabel(errors.New("boom")))
}
