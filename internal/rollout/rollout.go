// Package rollout 执行单个 episode：驱动 env 与 policy 交互，
// 汇总逐步诊断量为训练/评估共用的结果。
package rollout

import (
	"context"
	"math/rand/v2"

	"hedgesim/internal/env"
	"hedgesim/internal/policy"
)

// 探索 rng 与路径 rng 相互独立，混入不同常数避免流重叠。
const exploreMix = 0x2545f4914f6cdd1d

// Options 控制单次 episode 的执行方式。
type Options struct {
	Explore     bool // 开启策略探索噪声（训练模式）
	Transitions bool // 收集转移批次
	Equity      bool // 记录逐步权益曲线（评估报表用）
}

// Result 一个 episode 的汇总。TerminalPnL 即终局 cash + 持仓市值。
type Result struct {
	Seed        uint64              `json:"seed"`
	Steps       int                 `json:"steps"`
	TotalReward float64             `json:"total_reward"`
	TerminalPnL float64             `json:"terminal_pnl"`
	TotalCost   float64             `json:"total_cost"`
	MaxDrawdown float64             `json:"max_drawdown"`
	KnockedOut  bool                `json:"knocked_out"`
	Transitions []policy.Transition `json:"-"`
	Equity      []float64           `json:"-"`
}

// Run 跑完一个 episode。env 非并发安全，调用方保证独占。
// seed 同时决定路径与探索噪声，相同 seed 与策略参数下结果逐位可复现。
func Run(ctx context.Context, e *env.Env, p policy.Policy, seed uint64, opts Options) (Result, error) {
	obs, err := e.Reset(ctx, seed, nil)
	if err != nil {
		return Result{}, err
	}

	var rng *rand.Rand
	if opts.Explore {
		rng = rand.New(rand.NewPCG(seed, seed^exploreMix))
	}

	res := Result{Seed: seed}
	peak := 0.0 // 初始权益为 0
	if opts.Equity {
		res.Equity = append(res.Equity, 0)
	}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		action := p.Act(obs, rng)
		step, err := e.Step(action)
		if err != nil {
			return Result{}, err
		}
		res.Steps++
		res.TotalReward += step.Reward
		res.TotalCost += step.Info[env.InfoCost]

		equity := step.Info[env.InfoEquity]
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
		if opts.Equity {
			res.Equity = append(res.Equity, equity)
		}
		if opts.Transitions {
			res.Transitions = append(res.Transitions, policy.Transition{
				Obs:    obs,
				Action: action,
				Reward: step.Reward,
				Done:   step.Done,
			})
		}
		obs = step.Obs
		if step.Done {
			break
		}
	}
	pos := e.Position()
	res.TerminalPnL = pos.CumPnL
	res.KnockedOut = e.KnockedOut()
	return res, nil
}
