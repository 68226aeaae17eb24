package env

import (
	"math"

	"hedgesim/internal/sim"
)

// 可选奖励函数。具体函数形式是配置层策略，不在环境内写死：
// 所有函数都是 (步内 P&L, 更新后 Position) 的确定性函数。
const (
	RewardPnL          = "pnl"           // 原始步内 P&L
	RewardMeanVariance = "mean_variance" // pnl - λ·pnl²（均值-方差代理，惩罚对冲误差平方）
	RewardDownside     = "downside"      // 亏损按 (1+κ) 放大
	RewardLogUtility   = "log_utility"   // Δlog(名义财富)
)

type rewardFn func(stepPnL float64, pos Position) float64

func newRewardFn(cfg Config, simCfg sim.Config) (rewardFn, error) {
	switch cfg.Reward {
	case "", RewardPnL:
		return func(pnl float64, _ Position) float64 { return pnl }, nil
	case RewardMeanVariance:
		lambda := cfg.RiskLambda
		return func(pnl float64, _ Position) float64 { return pnl - lambda*pnl*pnl }, nil
	case RewardDownside:
		kappa := cfg.DownsideKappa
		return func(pnl float64, _ Position) float64 {
			if pnl < 0 {
				return pnl * (1 + kappa)
			}
			return pnl
		}, nil
	case RewardLogUtility:
		base := simCfg.InitialPrice
		return func(pnl float64, pos Position) float64 {
			wealth := base + pos.CumPnL
			prev := wealth - pnl
			if wealth <= 0 || prev <= 0 {
				return math.Inf(-1) // 名义财富破产，由发散检查兜底
			}
			return math.Log(wealth / prev)
		}, nil
	default:
		return nil, &sim.ConfigError{Field: "environment.reward", Reason: "未知奖励函数 " + cfg.Reward}
	}
}
