package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hedgesim/internal/rollout"
)

func resultsFromPnLs(pnls ...float64) []rollout.Result {
	out := make([]rollout.Result, len(pnls))
	for i, p := range pnls {
		out[i] = rollout.Result{TerminalPnL: p, TotalReward: p}
	}
	return out
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil, 0.95)
	assert.Zero(t, m.Episodes)
	assert.Zero(t, m.MeanPnL)
}

func TestComputeBasicStats(t *testing.T) {
	m := Compute(resultsFromPnLs(1, 2, 3, 4, 5), 0.95)
	assert.Equal(t, 5, m.Episodes)
	assert.InDelta(t, 3.0, m.MeanPnL, 1e-12)
	assert.InDelta(t, 3.0, m.MeanReward, 1e-12)
	assert.Greater(t, m.StdPnL, 0.0)
}

func TestComputeVaRCVaR(t *testing.T) {
	// 损失为 1..10，90% VaR 落在 9，CVaR 为尾部 {9,10} 的均值
	pnls := make([]float64, 10)
	for i := range pnls {
		pnls[i] = -float64(i + 1)
	}
	m := Compute(resultsFromPnLs(pnls...), 0.9)
	assert.InDelta(t, 9.0, m.VaR, 1e-12)
	assert.InDelta(t, 9.5, m.CVaR, 1e-12)
	assert.GreaterOrEqual(t, m.CVaR, m.VaR)
}

func TestComputeDrawdownAndKnockouts(t *testing.T) {
	results := []rollout.Result{
		{TerminalPnL: 1, MaxDrawdown: 2, KnockedOut: true},
		{TerminalPnL: -1, MaxDrawdown: 6},
		{TerminalPnL: 0, MaxDrawdown: 1},
	}
	m := Compute(results, 0.95)
	assert.InDelta(t, 3.0, m.MeanDrawdown, 1e-12)
	assert.InDelta(t, 6.0, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 1, m.Knockouts)
}

func TestComputeCostAverages(t *testing.T) {
	results := []rollout.Result{
		{TotalCost: 2},
		{TotalCost: 4},
	}
	m := Compute(results, 0.95)
	assert.InDelta(t, 3.0, m.MeanCost, 1e-12)
}
