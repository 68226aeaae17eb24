package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"hedgesim/internal/env"
)

const maxGradNorm = 10.0

// reinforce 线性高斯策略：动作 ~ N(w·obs + b, σ²)。
// 更新用带 EMA 基线的似然比梯度，梯度范数超限时整体缩放。
type reinforce struct {
	weights  []float64
	bias     float64
	sigma    float64
	alpha    float64
	beta     float64
	baseline float64
	inited   bool
}

type reinforceState struct {
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Sigma    float64   `json:"sigma"`
	Baseline float64   `json:"baseline"`
}

func newReinforce(cfg Config) *reinforce {
	return &reinforce{
		weights: make([]float64, env.ObsDim),
		sigma:   cfg.Sigma,
		alpha:   cfg.LearningRate,
		beta:    cfg.BaselineBeta,
	}
}

func (p *reinforce) Name() string { return NameReinforce }

func (p *reinforce) mean(obs []float64) float64 {
	return floats.Dot(p.weights, obs) + p.bias
}

// Act 评估时（rng 为 nil）返回均值动作，训练时加高斯噪声探索。
func (p *reinforce) Act(obs []float64, rng *rand.Rand) float64 {
	mu := p.mean(obs)
	if rng == nil {
		return mu
	}
	return mu + p.sigma*rng.NormFloat64()
}

// Update 对批次做一次梯度上升。奖励基线用 EMA 跟踪，
// 单样本梯度 ∇logπ = (a-μ)/σ² · [obs, 1]。
func (p *reinforce) Update(batch []Transition) (UpdateMetrics, error) {
	if len(batch) == 0 {
		return UpdateMetrics{Baseline: p.baseline}, nil
	}

	gw := make([]float64, len(p.weights))
	var gb, loss float64
	inv2 := 1 / (p.sigma * p.sigma)
	for _, tr := range batch {
		if len(tr.Obs) != len(p.weights) {
			return UpdateMetrics{}, fmt.Errorf("观测维度 %d 与参数 %d 不符", len(tr.Obs), len(p.weights))
		}
		if !p.inited && p.beta > 0 {
			p.baseline = tr.Reward
			p.inited = true
		}
		p.baseline += p.beta * (tr.Reward - p.baseline)
		adv := tr.Reward - p.baseline

		score := (tr.Action - p.mean(tr.Obs)) * inv2
		g := adv * score
		floats.AddScaled(gw, g, tr.Obs)
		gb += g
		loss -= adv
	}
	n := float64(len(batch))
	floats.Scale(1/n, gw)
	gb /= n

	norm := math.Sqrt(floats.Dot(gw, gw) + gb*gb)
	if norm > maxGradNorm {
		scale := maxGradNorm / norm
		floats.Scale(scale, gw)
		gb *= scale
	}
	floats.AddScaled(p.weights, p.alpha, gw)
	p.bias += p.alpha * gb

	return UpdateMetrics{Loss: loss / n, Baseline: p.baseline, GradNorm: norm}, nil
}

func (p *reinforce) Snapshot() ([]byte, error) {
	w := make([]float64, len(p.weights))
	copy(w, p.weights)
	return json.Marshal(reinforceState{Weights: w, Bias: p.bias, Sigma: p.sigma, Baseline: p.baseline})
}

func (p *reinforce) Restore(data []byte) error {
	var st reinforceState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("解析策略快照失败: %w", err)
	}
	if len(st.Weights) != len(p.weights) {
		return fmt.Errorf("快照参数维度 %d 与当前 %d 不符", len(st.Weights), len(p.weights))
	}
	copy(p.weights, st.Weights)
	p.bias = st.Bias
	if st.Sigma > 0 {
		p.sigma = st.Sigma
	}
	p.baseline = st.Baseline
	p.inited = true
	return nil
}
