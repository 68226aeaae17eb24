// Package policy 定义对冲策略接口与注册表：基线策略给出可解析的参照，
// 可学习策略通过 Update 从转移批次中改进。
package policy

import (
	"math/rand/v2"

	"hedgesim/internal/sim"
)

const (
	NameDelta     = "delta"     // 跟随 BS delta 的复制策略
	NameNoHedge   = "none"      // 裸空头，不做任何对冲
	NameVolTarget = "voltarget" // delta 按目标波动率缩放
	NameReinforce = "reinforce" // 线性高斯策略梯度
)

// Transition 单步转移，训练器按批喂给 Update。
type Transition struct {
	Obs    []float64 `json:"obs"`
	Action float64   `json:"action"`
	Reward float64   `json:"reward"`
	Done   bool      `json:"done"`
}

// UpdateMetrics 一次参数更新的诊断量，训练日志用。
type UpdateMetrics struct {
	Loss     float64 `json:"loss"`
	Baseline float64 `json:"baseline"`
	GradNorm float64 `json:"grad_norm"`
}

// Policy 对冲策略。Act 在 rng 为 nil 时必须返回确定性动作（评估模式），
// 否则可用 rng 做探索。实现不要求并发安全，Update 与 Act 的互斥由调用方保证。
type Policy interface {
	Name() string
	Act(obs []float64, rng *rand.Rand) float64
	Update(batch []Transition) (UpdateMetrics, error)
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Config 策略参数（policy 配置段）。
type Config struct {
	Name         string  `mapstructure:"name" json:"name"`
	LearningRate float64 `mapstructure:"learning_rate" json:"learning_rate"`
	Sigma        float64 `mapstructure:"sigma" json:"sigma"`                 // 高斯探索标准差
	BaselineBeta float64 `mapstructure:"baseline_beta" json:"baseline_beta"` // 奖励基线 EMA 系数
	VolTarget    float64 `mapstructure:"vol_target" json:"vol_target"`
}

// Validate 只校验所选策略真正用到的参数。
func (c Config) Validate() error {
	switch c.Name {
	case NameDelta, NameNoHedge:
		return nil
	case NameVolTarget:
		if c.VolTarget <= 0 {
			return &sim.ConfigError{Field: "policy.vol_target", Reason: "需 > 0"}
		}
		return nil
	case NameReinforce:
		if c.LearningRate <= 0 {
			return &sim.ConfigError{Field: "policy.learning_rate", Reason: "需 > 0"}
		}
		if c.Sigma <= 0 {
			return &sim.ConfigError{Field: "policy.sigma", Reason: "需 > 0"}
		}
		if c.BaselineBeta < 0 || c.BaselineBeta > 1 {
			return &sim.ConfigError{Field: "policy.baseline_beta", Reason: "需在 [0, 1]"}
		}
		return nil
	case "":
		return &sim.ConfigError{Field: "policy.name", Reason: "不能为空"}
	default:
		return &sim.ConfigError{Field: "policy.name", Reason: "未知策略 " + c.Name}
	}
}

// New 按名称构建策略实例。
func New(cfg Config) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Name {
	case NameDelta:
		return &deltaPolicy{}, nil
	case NameNoHedge:
		return &noHedgePolicy{}, nil
	case NameVolTarget:
		return &volTargetPolicy{target: cfg.VolTarget}, nil
	case NameReinforce:
		return newReinforce(cfg), nil
	default:
		return nil, &sim.ConfigError{Field: "policy.name", Reason: "未知策略 " + cfg.Name}
	}
}
