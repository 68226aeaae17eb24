package env

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgesim/internal/sim"
)

func baseSimConfig() sim.Config {
	return sim.Config{
		Model:        sim.ModelGBM,
		InitialPrice: 100,
		Vol:          0.2,
		Rate:         0,
		Steps:        30,
		Maturity:     30.0 / 252.0,
		Option:       sim.OptionConfig{Type: sim.OptionCall, Strike: 100},
	}
}

func baseEnvConfig() Config {
	return Config{ActionMin: -1.5, ActionMax: 1.5, Reward: RewardPnL}
}

func newTestEnv(t *testing.T, simCfg sim.Config, cfg Config) *Env {
	t.Helper()
	simulator, err := sim.New(simCfg, nil)
	require.NoError(t, err)
	e, err := New(simulator, simCfg, cfg)
	require.NoError(t, err)
	return e
}

// flatPath 构造一条常数价格路径，便于精确断言记账。
func flatPath(cfg sim.Config, price float64) sim.Path {
	steps := make([]sim.PathStep, cfg.PathLen())
	for i := range steps {
		steps[i] = sim.PathStep{
			Price:          price,
			Vol:            cfg.Vol,
			TimeToMaturity: cfg.Maturity - float64(i)*cfg.Dt(),
		}
	}
	steps[len(steps)-1].TimeToMaturity = 0
	return sim.Path{Model: cfg.Model, Steps: steps}
}

func TestStepBeforeResetFails(t *testing.T) {
	e := newTestEnv(t, baseSimConfig(), baseEnvConfig())

	_, err := e.Step(0)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "step", stateErr.Op)
}

func TestStepAfterDoneFails(t *testing.T) {
	e := newTestEnv(t, baseSimConfig(), baseEnvConfig())
	_, err := e.Reset(context.Background(), 1, nil)
	require.NoError(t, err)

	for {
		res, err := e.Step(0)
		require.NoError(t, err)
		if res.Done {
			break
		}
	}
	_, err = e.Step(0)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestResetWhileRunningAbandonsEpisode(t *testing.T) {
	e := newTestEnv(t, baseSimConfig(), baseEnvConfig())
	ctx := context.Background()

	_, err := e.Reset(ctx, 1, nil)
	require.NoError(t, err)
	_, err = e.Step(0.5)
	require.NoError(t, err)

	obs, err := e.Reset(ctx, 2, nil)
	require.NoError(t, err)
	assert.Zero(t, e.Position().Inventory)
	assert.Zero(t, e.Position().CumCost)
	require.Len(t, obs, ObsDim)
}

func TestActionValidation(t *testing.T) {
	tests := []struct {
		name    string
		action  float64
		clamp   bool
		wantErr bool
	}{
		{"合法动作", 0.5, false, false},
		{"边界值", 1.5, false, false},
		{"NaN", math.NaN(), false, true},
		{"NaN 开启 clamping 仍拒绝", math.NaN(), true, true},
		{"Inf", math.Inf(1), true, true},
		{"越界拒绝", 2.0, false, true},
		{"越界截断", 2.0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseEnvConfig()
			cfg.AllowClamping = tt.clamp
			e := newTestEnv(t, baseSimConfig(), cfg)
			_, err := e.Reset(context.Background(), 1, nil)
			require.NoError(t, err)

			res, err := e.Step(tt.action)
			if tt.wantErr {
				var actErr *InvalidActionError
				require.ErrorAs(t, err, &actErr)
				return
			}
			require.NoError(t, err)
			if tt.action > cfg.ActionMax {
				assert.Equal(t, 1.0, res.Info[InfoClamped])
				assert.Equal(t, cfg.ActionMax, e.Position().Inventory)
			} else {
				assert.Zero(t, res.Info[InfoClamped])
			}
		})
	}
}

func TestRejectedActionLeavesStateIntact(t *testing.T) {
	e := newTestEnv(t, baseSimConfig(), baseEnvConfig())
	_, err := e.Reset(context.Background(), 1, nil)
	require.NoError(t, err)
	before := e.Position()

	_, err = e.Step(99)
	require.Error(t, err)
	assert.Equal(t, before, e.Position())

	// episode 仍可继续
	_, err = e.Step(0.3)
	require.NoError(t, err)
}

func TestTerminatesAfterExactStepCount(t *testing.T) {
	simCfg := baseSimConfig()
	e := newTestEnv(t, simCfg, baseEnvConfig())
	_, err := e.Reset(context.Background(), 7, nil)
	require.NoError(t, err)

	steps := 0
	for {
		res, err := e.Step(0)
		require.NoError(t, err)
		steps++
		if res.Done {
			break
		}
		require.Less(t, steps, simCfg.Steps+1, "未在预期步数内终止")
	}
	assert.Equal(t, simCfg.Steps, steps)
}

func TestDeterministicEpisodes(t *testing.T) {
	run := func() ([]float64, Position) {
		e := newTestEnv(t, baseSimConfig(), baseEnvConfig())
		_, err := e.Reset(context.Background(), 42, nil)
		require.NoError(t, err)
		rewards := []float64{}
		for {
			res, err := e.Step(0.5)
			require.NoError(t, err)
			rewards = append(rewards, res.Reward)
			if res.Done {
				break
			}
		}
		return rewards, e.Position()
	}
	r1, p1 := run()
	r2, p2 := run()
	assert.Equal(t, r1, r2)
	assert.Equal(t, p1, p2)
}

// 记账恒等式：初始权益为 0（权利金按公允价值入账），
// 终局 cash + 持仓市值 = 累计 P&L。
func TestValueConservation(t *testing.T) {
	simCfg := baseSimConfig()
	simCfg.Cost = sim.CostSchedule{Fixed: 0.01, Rate: 0.001}
	e := newTestEnv(t, simCfg, baseEnvConfig())
	_, err := e.Reset(context.Background(), 11, nil)
	require.NoError(t, err)

	var lastPrice, rewardSum float64
	for {
		res, err := e.Step(0.7)
		require.NoError(t, err)
		rewardSum += res.Info[InfoPnL]
		lastPrice = res.Info[InfoPrice]
		if res.Done {
			break
		}
	}
	pos := e.Position()
	terminalEquity := pos.Cash + pos.Inventory*lastPrice
	assert.InDelta(t, pos.CumPnL, terminalEquity, 1e-9)
	assert.InDelta(t, pos.CumPnL, rewardSum, 1e-9)
}

func TestFlatPathPnLEqualsTimeValue(t *testing.T) {
	simCfg := baseSimConfig()
	simCfg.Option.Strike = 90
	e := newTestEnv(t, simCfg, baseEnvConfig())
	p := flatPath(simCfg, 100)

	_, err := e.Reset(context.Background(), 0, &p)
	require.NoError(t, err)
	premium := e.Position().Premium

	// 常数路径、零成本下标的持仓不贡献 P&L，
	// 总 P&L 应精确等于权利金减去到期支付（时间价值）。
	var total float64
	for {
		res, err := e.Step(1)
		require.NoError(t, err)
		total += res.Info[InfoPnL]
		if res.Done {
			break
		}
	}
	payoff := sim.Payoff(simCfg.Option.Type, 100, simCfg.Option.Strike)
	assert.InDelta(t, premium-payoff, total, 1e-9)
	assert.Positive(t, total) // 平值上方的 call 仍有时间价值
}

func TestTradingCostAccounting(t *testing.T) {
	simCfg := baseSimConfig()
	simCfg.Cost = sim.CostSchedule{Fixed: 0.5, Rate: 0.01}
	e := newTestEnv(t, simCfg, baseEnvConfig())
	p := flatPath(simCfg, 100)
	_, err := e.Reset(context.Background(), 0, &p)
	require.NoError(t, err)

	res, err := e.Step(0.5)
	require.NoError(t, err)
	// cost = fixed + rate·|trade|·price = 0.5 + 0.01·0.5·100
	assert.InDelta(t, 1.0, res.Info[InfoCost], 1e-12)
	assert.InDelta(t, 1.0, e.Position().CumCost, 1e-12)

	// 目标持仓不变则无成交、无成本
	res, err = e.Step(0.5)
	require.NoError(t, err)
	assert.Zero(t, res.Info[InfoCost])
	assert.InDelta(t, 1.0, e.Position().CumCost, 1e-12)
}

func TestBarrierKnockout(t *testing.T) {
	simCfg := baseSimConfig()
	simCfg.Option.Barrier = 120

	steps := make([]sim.PathStep, simCfg.PathLen())
	for i := range steps {
		price := 100.0
		if i >= 3 {
			price = 125 // 第 3 步触及障碍
		}
		steps[i] = sim.PathStep{
			Price:          price,
			Vol:            simCfg.Vol,
			TimeToMaturity: simCfg.Maturity - float64(i)*simCfg.Dt(),
		}
	}
	steps[len(steps)-1].TimeToMaturity = 0
	p := sim.Path{Model: simCfg.Model, Steps: steps}

	e := newTestEnv(t, simCfg, baseEnvConfig())
	_, err := e.Reset(context.Background(), 0, &p)
	require.NoError(t, err)

	count := 0
	for {
		res, err := e.Step(0)
		require.NoError(t, err)
		count++
		if res.Done {
			break
		}
	}
	assert.Equal(t, 3, count)
	assert.True(t, e.KnockedOut())
	// 敲出后无 payoff，现金只剩权利金（零成交）
	pos := e.Position()
	assert.InDelta(t, pos.Premium, pos.Cash, 1e-12)
}

func TestResetWithMismatchedOverridePath(t *testing.T) {
	simCfg := baseSimConfig()
	e := newTestEnv(t, simCfg, baseEnvConfig())

	short := flatPath(simCfg, 100)
	short.Steps = short.Steps[:5]
	_, err := e.Reset(context.Background(), 0, &short)
	var cfgErr *sim.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "path", cfgErr.Field)
}

func TestObservationLayout(t *testing.T) {
	simCfg := baseSimConfig()
	e := newTestEnv(t, simCfg, baseEnvConfig())
	p := flatPath(simCfg, 110)
	obs, err := e.Reset(context.Background(), 0, &p)
	require.NoError(t, err)

	require.Len(t, obs, ObsDim)
	assert.InDelta(t, 1.1, obs[ObsMoneyness], 1e-12)
	assert.InDelta(t, 1.0, obs[ObsTimeFrac], 1e-12)
	assert.InDelta(t, simCfg.Vol, obs[ObsVol], 1e-12)
	assert.Zero(t, obs[ObsInventory])
	assert.Zero(t, obs[ObsCumCost])
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"边界反转", func(c *Config) { c.ActionMin, c.ActionMax = 1, -1 }, "environment.action"},
		{"边界不含零", func(c *Config) { c.ActionMin, c.ActionMax = 0.5, 1.5 }, "environment.action"},
		{"负 lambda", func(c *Config) { c.RiskLambda = -0.1 }, "environment.risk_lambda"},
		{"负 kappa", func(c *Config) { c.DownsideKappa = -1 }, "environment.downside_kappa"},
		{"未知奖励", func(c *Config) { c.Reward = "sharpe" }, "environment.reward"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseEnvConfig()
			tt.mutate(&cfg)
			simCfg := baseSimConfig()
			simulator, err := sim.New(simCfg, nil)
			require.NoError(t, err)
			_, err = New(simulator, simCfg, cfg)
			var cfgErr *sim.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
