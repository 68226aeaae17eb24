package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBSPricePutCallParity(t *testing.T) {
	s, k, r, sigma, tau := 100.0, 95.0, 0.02, 0.25, 0.5
	call := BSPrice(OptionCall, s, k, r, sigma, tau)
	put := BSPrice(OptionPut, s, k, r, sigma, tau)
	// C - P = S - K·e^{-rτ}
	assert.InDelta(t, s-k*math.Exp(-r*tau), call-put, 1e-9)
}

func TestBSPriceIntrinsicAtExpiry(t *testing.T) {
	assert.InDelta(t, 5.0, BSPrice(OptionCall, 105, 100, 0.0, 0.2, 0), 1e-12)
	assert.InDelta(t, 0.0, BSPrice(OptionCall, 95, 100, 0.0, 0.2, 0), 1e-12)
	assert.InDelta(t, 5.0, BSPrice(OptionPut, 95, 100, 0.0, 0.2, 0), 1e-12)
}

func TestBSPriceZeroVolDegenerates(t *testing.T) {
	got := BSPrice(OptionCall, 110, 100, 0.0, 0, 1.0)
	assert.InDelta(t, 10.0, got, 1e-12)
}

func TestBSGreeksRanges(t *testing.T) {
	g := BSGreeks(OptionCall, 100, 100, 0.01, 0.2, 0.25)
	assert.Greater(t, g.Delta, 0.0)
	assert.Less(t, g.Delta, 1.0)
	assert.Greater(t, g.Gamma, 0.0)
	assert.Greater(t, g.Vega, 0.0)
	assert.Less(t, g.Theta, 0.0)

	p := BSGreeks(OptionPut, 100, 100, 0.01, 0.2, 0.25)
	assert.InDelta(t, g.Delta-1, p.Delta, 1e-12)
	assert.InDelta(t, g.Gamma, p.Gamma, 1e-12)
}

func TestBSGreeksAtExpiry(t *testing.T) {
	assert.Equal(t, 1.0, BSGreeks(OptionCall, 105, 100, 0, 0.2, 0).Delta)
	assert.Equal(t, 0.0, BSGreeks(OptionCall, 95, 100, 0, 0.2, 0).Delta)
	assert.Equal(t, -1.0, BSGreeks(OptionPut, 95, 100, 0, 0.2, 0).Delta)
}

func TestBSDeltaMonotonicInSpot(t *testing.T) {
	prev := -1.0
	for s := 60.0; s <= 140; s += 5 {
		d := BSGreeks(OptionCall, s, 100, 0.0, 0.2, 0.5).Delta
		assert.GreaterOrEqual(t, d, prev, "delta 应随标的价单调不减 (s=%v)", s)
		prev = d
	}
}
