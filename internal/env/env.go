// Package env 实现对冲 MDP 环境：包装 sim.Simulator，按 reset/step 协议
// 维护持仓、计提交易成本并在到期/敲出时结算。
package env

import (
	"context"
	"fmt"
	"math"

	"hedgesim/internal/sim"
)

type envState int

const (
	stateUnstarted envState = iota
	stateRunning
	stateTerminated
)

func (s envState) String() string {
	switch s {
	case stateUnstarted:
		return "unstarted"
	case stateRunning:
		return "running"
	case stateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observation 向量布局。顺序与维度对固定配置保持稳定，agent 依赖该不变量。
const (
	ObsMoneyness = iota // 标的价 / 行权价
	ObsTimeFrac         // 剩余期限 / 总期限
	ObsVol              // 当步波动率
	ObsDelta            // 期权 delta（复制组合的目标持仓）
	ObsInventory        // 当前持仓（标的份数）
	ObsCash             // 现金 / 初始标的价
	ObsCumCost          // 累计成本 / 初始标的价
	ObsDim
)

// Info 的稳定键名，诊断字段不参与学习。
const (
	InfoPnL         = "pnl"
	InfoCost        = "cost"
	InfoTrade       = "trade"
	InfoPrice       = "price"
	InfoOptionValue = "option_value"
	InfoDelta       = "delta"
	InfoCash        = "cash"
	InfoInventory   = "inventory"
	InfoEquity      = "equity"
	InfoClamped     = "clamped"
)

// Config 环境参数（environment 配置段）。
type Config struct {
	ActionMin     float64 `mapstructure:"action_min" json:"action_min"`
	ActionMax     float64 `mapstructure:"action_max" json:"action_max"`
	AllowClamping bool    `mapstructure:"allow_clamping" json:"allow_clamping"`
	Reward        string  `mapstructure:"reward" json:"reward"`
	RiskLambda    float64 `mapstructure:"risk_lambda" json:"risk_lambda"`
	DownsideKappa float64 `mapstructure:"downside_kappa" json:"downside_kappa"`
}

// Validate 校验动作边界与奖励参数。零动作必须始终合法，因此边界需覆盖 0。
func (c Config) Validate() error {
	if c.ActionMin >= c.ActionMax {
		return &sim.ConfigError{Field: "environment.action", Reason: fmt.Sprintf("边界非法: [%v, %v]", c.ActionMin, c.ActionMax)}
	}
	if c.ActionMin > 0 || c.ActionMax < 0 {
		return &sim.ConfigError{Field: "environment.action", Reason: "边界必须覆盖 0（零动作始终合法）"}
	}
	if c.RiskLambda < 0 {
		return &sim.ConfigError{Field: "environment.risk_lambda", Reason: "不能为负"}
	}
	if c.DownsideKappa < 0 {
		return &sim.ConfigError{Field: "environment.downside_kappa", Reason: "不能为负"}
	}
	return nil
}

// Position 对冲组合状态，只通过 Step 变更；episode 开始时重置。
type Position struct {
	Inventory float64 `json:"inventory"`
	Cash      float64 `json:"cash"`
	CumCost   float64 `json:"cum_cost"`
	CumPnL    float64 `json:"cum_pnl"`
	Premium   float64 `json:"premium"` // reset 时收到的期权权利金
}

// StepResult 单步输出。Info 携带诊断字段，键名见 Info* 常量。
type StepResult struct {
	Obs    []float64
	Reward float64
	Done   bool
	Info   map[string]float64
}

// Env 单个对冲 episode 的状态机：Unstarted → Running → Terminated。
// 非并发安全；并行 rollout 下每个 worker 持有独立实例。
type Env struct {
	simCfg    sim.Config
	cfg       Config
	simulator sim.Simulator
	reward    rewardFn

	path       sim.Path
	pos        Position
	idx        int
	state      envState
	knockedOut bool
	seed       uint64
}

// New 构建环境。卖出一张期权（收权利金）是固定的任务设定，agent 学习的是复制端。
func New(simulator sim.Simulator, simCfg sim.Config, cfg Config) (*Env, error) {
	if simulator == nil {
		return nil, fmt.Errorf("simulator 不能为空")
	}
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fn, err := newRewardFn(cfg, simCfg)
	if err != nil {
		return nil, err
	}
	return &Env{simCfg: simCfg, cfg: cfg, simulator: simulator, reward: fn}, nil
}

// Reset 开始新 episode：取一条 Path（或使用 override），持仓清零、现金记入权利金。
// Running 状态下调用视为主动放弃当前 episode，不算协议误用。
func (e *Env) Reset(ctx context.Context, seed uint64, override *sim.Path) ([]float64, error) {
	var p sim.Path
	if override != nil {
		if override.Len() != e.simCfg.PathLen() {
			return nil, &sim.ConfigError{Field: "path", Reason: fmt.Sprintf("长度 %d 与配置 %d 不符", override.Len(), e.simCfg.PathLen())}
		}
		p = *override
	} else {
		var err error
		p, err = e.simulator.Generate(ctx, seed)
		if err != nil {
			return nil, err
		}
	}
	ms0 := sim.StateAt(e.simCfg, p, 0)
	e.path = p
	e.seed = seed
	e.idx = 0
	e.knockedOut = false
	e.pos = Position{Cash: ms0.OptionValue, Premium: ms0.OptionValue}
	e.state = stateRunning
	return e.observation(ms0), nil
}

// Step 应用对冲调仓并推进一步。动作为目标持仓（标的份数）。
func (e *Env) Step(action float64) (StepResult, error) {
	if e.state != stateRunning {
		return StepResult{}, &InvalidStateError{Op: "step", State: e.state.String()}
	}
	target, clamped, err := e.validateAction(action)
	if err != nil {
		return StepResult{}, err
	}

	cur := sim.StateAt(e.simCfg, e.path, e.idx)
	preEquity := e.equity(cur)

	trade := target - e.pos.Inventory
	cost := 0.0
	if trade != 0 {
		cost = e.simCfg.Cost.Fixed + e.simCfg.Cost.Rate*math.Abs(trade)*cur.Price
	}
	e.pos.Cash -= trade*cur.Price + cost
	e.pos.CumCost += cost
	e.pos.Inventory = target

	e.idx++
	next := sim.StateAt(e.simCfg, e.path, e.idx)

	done := e.idx == e.path.Len()-1
	if b := e.simCfg.Option.Barrier; b > 0 && next.Price >= b {
		e.knockedOut = true
		done = true
	}

	var equity float64
	if done {
		e.settle(next)
		equity = e.pos.Cash + e.pos.Inventory*next.Price
		e.state = stateTerminated
	} else {
		equity = e.equity(next)
	}

	stepPnL := equity - preEquity
	e.pos.CumPnL += stepPnL

	if err := e.checkFinite(next, stepPnL, equity); err != nil {
		e.state = stateTerminated
		return StepResult{}, err
	}
	reward := e.reward(stepPnL, e.pos)
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		e.state = stateTerminated
		return StepResult{}, &DivergenceError{Step: e.idx, Field: "reward", Value: reward}
	}

	info := map[string]float64{
		InfoPnL:         stepPnL,
		InfoCost:        cost,
		InfoTrade:       trade,
		InfoPrice:       next.Price,
		InfoOptionValue: next.OptionValue,
		InfoDelta:       next.Greeks.Delta,
		InfoCash:        e.pos.Cash,
		InfoInventory:   e.pos.Inventory,
		InfoEquity:      equity,
		InfoClamped:     clamped,
	}
	return StepResult{Obs: e.observation(next), Reward: reward, Done: done, Info: info}, nil
}

// Position 返回当前持仓快照（评估/日志用）。
func (e *Env) Position() Position { return e.pos }

// Seed 返回当前 episode 的路径 seed。
func (e *Env) Seed() uint64 { return e.seed }

// KnockedOut 返回当前 episode 是否因障碍敲出提前终止。
func (e *Env) KnockedOut() bool { return e.knockedOut }

func (e *Env) validateAction(action float64) (target, clamped float64, err error) {
	if math.IsNaN(action) || math.IsInf(action, 0) {
		return 0, 0, &InvalidActionError{Action: action, Reason: "非法数值"}
	}
	if action < e.cfg.ActionMin || action > e.cfg.ActionMax {
		if !e.cfg.AllowClamping {
			return 0, 0, &InvalidActionError{
				Action: action,
				Reason: fmt.Sprintf("超出范围 [%v, %v]", e.cfg.ActionMin, e.cfg.ActionMax),
			}
		}
		return math.Min(math.Max(action, e.cfg.ActionMin), e.cfg.ActionMax), 1, nil
	}
	return action, 0, nil
}

// equity 按公允价值计提空头期权负债：cash + 持仓市值 - 期权价值。
func (e *Env) equity(ms sim.MarketState) float64 {
	return e.pos.Cash + e.pos.Inventory*ms.Price - ms.OptionValue
}

// settle 到期/敲出结算：支付 payoff 折进现金，此后组合只剩现金与标的。
func (e *Env) settle(ms sim.MarketState) {
	if e.knockedOut {
		return // 敲出后期权作废，无支付
	}
	e.pos.Cash -= sim.Payoff(e.simCfg.Option.Type, ms.Price, e.simCfg.Option.Strike)
}

func (e *Env) checkFinite(ms sim.MarketState, stepPnL, equity float64) error {
	checks := []struct {
		field string
		value float64
	}{
		{"price", ms.Price},
		{"option_value", ms.OptionValue},
		{"delta", ms.Greeks.Delta},
		{"pnl", stepPnL},
		{"equity", equity},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &DivergenceError{Step: e.idx, Field: c.field, Value: c.value}
		}
	}
	return nil
}

func (e *Env) observation(ms sim.MarketState) []float64 {
	obs := make([]float64, ObsDim)
	obs[ObsMoneyness] = ms.Price / e.simCfg.Option.Strike
	obs[ObsTimeFrac] = ms.TimeToMaturity / e.simCfg.Maturity
	obs[ObsVol] = ms.Vol
	obs[ObsDelta] = ms.Greeks.Delta
	obs[ObsInventory] = e.pos.Inventory
	obs[ObsCash] = e.pos.Cash / e.simCfg.InitialPrice
	obs[ObsCumCost] = e.pos.CumCost / e.simCfg.InitialPrice
	return obs
}
