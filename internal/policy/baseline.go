package policy

import (
	"math"
	"math/rand/v2"

	"hedgesim/internal/env"
)

// 基线策略不学习：Update 为空操作，Snapshot 返回空字节。
// 它们在评估中作为参照组，与可学习策略跑同一组 seed。

type deltaPolicy struct{}

func (deltaPolicy) Name() string { return NameDelta }

func (deltaPolicy) Act(obs []float64, _ *rand.Rand) float64 {
	return obs[env.ObsDelta]
}

func (deltaPolicy) Update([]Transition) (UpdateMetrics, error) { return UpdateMetrics{}, nil }
func (deltaPolicy) Snapshot() ([]byte, error)                  { return nil, nil }
func (deltaPolicy) Restore([]byte) error                       { return nil }

type noHedgePolicy struct{}

func (noHedgePolicy) Name() string { return NameNoHedge }

func (noHedgePolicy) Act([]float64, *rand.Rand) float64 { return 0 }

func (noHedgePolicy) Update([]Transition) (UpdateMetrics, error) { return UpdateMetrics{}, nil }
func (noHedgePolicy) Snapshot() ([]byte, error)                  { return nil, nil }
func (noHedgePolicy) Restore([]byte) error                       { return nil }

// volTargetPolicy 在波动率高企时压缩 delta 仓位，缩放系数封顶为 1。
type volTargetPolicy struct {
	target float64
}

func (p *volTargetPolicy) Name() string { return NameVolTarget }

func (p *volTargetPolicy) Act(obs []float64, _ *rand.Rand) float64 {
	vol := obs[env.ObsVol]
	scale := 1.0
	if vol > p.target {
		scale = p.target / vol
	}
	return obs[env.ObsDelta] * math.Min(scale, 1)
}

func (p *volTargetPolicy) Update([]Transition) (UpdateMetrics, error) { return UpdateMetrics{}, nil }
func (p *volTargetPolicy) Snapshot() ([]byte, error)                  { return nil, nil }
func (p *volTargetPolicy) Restore([]byte) error                       { return nil }
