package sim

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// hestonSimulator 随机波动率模型，方差过程取 full truncation Euler：
//
//	v' = v + κ(θ - v⁺)dt + ξ√(v⁺ dt)·Z₂,  corr(Z₁,Z₂) = ρ
type hestonSimulator struct {
	cfg Config
}

func (h *hestonSimulator) Name() string { return ModelHeston }

func (h *hestonSimulator) Generate(_ context.Context, seed uint64) (Path, error) {
	cfg := h.cfg
	p := cfg.Heston
	normal := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewPCG(seed, seed^seedMix),
	}
	dt := cfg.Dt()
	sqDt := math.Sqrt(dt)
	rhoC := math.Sqrt(1 - p.Rho*p.Rho)

	steps := make([]PathStep, cfg.PathLen())
	price := cfg.InitialPrice
	v := p.V0
	for i := range steps {
		vPos := math.Max(v, 0)
		steps[i] = PathStep{
			Price:          price,
			Vol:            math.Sqrt(vPos),
			TimeToMaturity: cfg.Maturity - float64(i)*dt,
		}
		z1 := normal.Rand()
		z2 := p.Rho*z1 + rhoC*normal.Rand()
		price *= math.Exp((cfg.Rate-0.5*vPos)*dt + math.Sqrt(vPos)*sqDt*z1)
		v = v + p.Kappa*(p.Theta-vPos)*dt + p.Xi*math.Sqrt(vPos)*sqDt*z2
	}
	steps[len(steps)-1].TimeToMaturity = 0
	return Path{Model: ModelHeston, Seed: seed, Steps: steps}, nil
}
