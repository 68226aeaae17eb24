package eval

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hedgesim/internal/rollout"
)

// Metrics 一组 episode 的风险汇总。VaR/CVaR 以损失（-P&L）的正数报告，
// 置信水平由 evaluation.confidence 给定。
type Metrics struct {
	Episodes     int     `json:"episodes"`
	MeanPnL      float64 `json:"mean_pnl"`
	StdPnL       float64 `json:"std_pnl"`
	MeanReward   float64 `json:"mean_reward"`
	MeanCost     float64 `json:"mean_cost"`
	MeanDrawdown float64 `json:"mean_drawdown"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	VaR          float64 `json:"var"`
	CVaR         float64 `json:"cvar"`
	Knockouts    int     `json:"knockouts"`
}

// Compute 从 episode 结果计算指标。confidence 如 0.95 表示 95% VaR。
func Compute(results []rollout.Result, confidence float64) Metrics {
	m := Metrics{Episodes: len(results)}
	if len(results) == 0 {
		return m
	}

	pnls := make([]float64, len(results))
	losses := make([]float64, len(results))
	for i, r := range results {
		pnls[i] = r.TerminalPnL
		losses[i] = -r.TerminalPnL
		m.MeanReward += r.TotalReward
		m.MeanCost += r.TotalCost
		m.MeanDrawdown += r.MaxDrawdown
		if r.MaxDrawdown > m.MaxDrawdown {
			m.MaxDrawdown = r.MaxDrawdown
		}
		if r.KnockedOut {
			m.Knockouts++
		}
	}
	n := float64(len(results))
	m.MeanReward /= n
	m.MeanCost /= n
	m.MeanDrawdown /= n

	m.MeanPnL = stat.Mean(pnls, nil)
	if len(pnls) > 1 {
		m.StdPnL = stat.StdDev(pnls, nil)
	}

	sort.Float64s(losses)
	m.VaR = stat.Quantile(confidence, stat.Empirical, losses, nil)

	// CVaR: 超过 VaR 分位的尾部损失均值
	var tailSum float64
	tailN := 0
	for i := len(losses) - 1; i >= 0; i-- {
		if losses[i] < m.VaR {
			break
		}
		tailSum += losses[i]
		tailN++
	}
	if tailN > 0 {
		m.CVaR = tailSum / float64(tailN)
	} else {
		m.CVaR = m.VaR
	}
	if math.IsNaN(m.CVaR) {
		m.CVaR = m.VaR
	}
	return m
}
