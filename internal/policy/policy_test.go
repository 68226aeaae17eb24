package policy

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgesim/internal/env"
	"hedgesim/internal/sim"
)

func testObs(delta, vol float64) []float64 {
	obs := make([]float64, env.ObsDim)
	obs[env.ObsMoneyness] = 1.0
	obs[env.ObsTimeFrac] = 0.5
	obs[env.ObsVol] = vol
	obs[env.ObsDelta] = delta
	return obs
}

func TestRegistry(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Name: NameDelta}, NameDelta},
		{Config{Name: NameNoHedge}, NameNoHedge},
		{Config{Name: NameVolTarget, VolTarget: 0.2}, NameVolTarget},
		{Config{Name: NameReinforce, LearningRate: 0.01, Sigma: 0.1, BaselineBeta: 0.1}, NameReinforce},
	}
	for _, tt := range tests {
		p, err := New(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Name())
	}
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"空名称", Config{}},
		{"未知名称", Config{Name: "dqn"}},
		{"voltarget 缺目标", Config{Name: NameVolTarget}},
		{"reinforce 零学习率", Config{Name: NameReinforce, Sigma: 0.1}},
		{"reinforce 零 sigma", Config{Name: NameReinforce, LearningRate: 0.01}},
		{"beta 越界", Config{Name: NameReinforce, LearningRate: 0.01, Sigma: 0.1, BaselineBeta: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var cfgErr *sim.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestDeltaPolicyTracksDelta(t *testing.T) {
	p, err := New(Config{Name: NameDelta})
	require.NoError(t, err)
	assert.Equal(t, 0.63, p.Act(testObs(0.63, 0.2), nil))
}

func TestNoHedgeAlwaysZero(t *testing.T) {
	p, err := New(Config{Name: NameNoHedge})
	require.NoError(t, err)
	assert.Zero(t, p.Act(testObs(0.9, 0.5), nil))
}

func TestVolTargetScaling(t *testing.T) {
	p, err := New(Config{Name: NameVolTarget, VolTarget: 0.2})
	require.NoError(t, err)
	// 低波动率不缩放
	assert.InDelta(t, 0.6, p.Act(testObs(0.6, 0.1), nil), 1e-12)
	// 高波动率按 target/vol 缩放
	assert.InDelta(t, 0.3, p.Act(testObs(0.6, 0.4), nil), 1e-12)
}

func newTestReinforce(t *testing.T) Policy {
	t.Helper()
	p, err := New(Config{Name: NameReinforce, LearningRate: 0.05, Sigma: 0.2, BaselineBeta: 0.1})
	require.NoError(t, err)
	return p
}

func TestReinforceDeterministicWithoutRng(t *testing.T) {
	p := newTestReinforce(t)
	obs := testObs(0.5, 0.2)
	assert.Equal(t, p.Act(obs, nil), p.Act(obs, nil))

	rng := rand.New(rand.NewPCG(1, 2))
	a1 := p.Act(obs, rng)
	a2 := p.Act(obs, rng)
	assert.NotEqual(t, a1, a2, "探索模式应有噪声")
}

func TestReinforceUpdateMovesTowardRewardedActions(t *testing.T) {
	p := newTestReinforce(t)
	obs := testObs(0.5, 0.2)
	before := p.Act(obs, nil)

	// 均值之上的动作获得高奖励，均值之下获得低奖励
	batch := []Transition{
		{Obs: obs, Action: before + 0.3, Reward: 1.0},
		{Obs: obs, Action: before - 0.3, Reward: -1.0},
	}
	for i := 0; i < 20; i++ {
		_, err := p.Update(batch)
		require.NoError(t, err)
	}
	assert.Greater(t, p.Act(obs, nil), before)
}

func TestReinforceGradientClipping(t *testing.T) {
	p := newTestReinforce(t)
	obs := testObs(0.5, 0.2)
	m, err := p.Update([]Transition{{Obs: obs, Action: 100, Reward: 1e6}})
	require.NoError(t, err)
	assert.Greater(t, m.GradNorm, maxGradNorm)
	// 截断后单步参数位移有界
	assert.Less(t, p.Act(obs, nil), 100.0)
}

func TestReinforceEmptyBatchIsNoop(t *testing.T) {
	p := newTestReinforce(t)
	obs := testObs(0.5, 0.2)
	before := p.Act(obs, nil)
	_, err := p.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, before, p.Act(obs, nil))
}

func TestReinforceSnapshotRoundTrip(t *testing.T) {
	p := newTestReinforce(t)
	obs := testObs(0.5, 0.2)
	_, err := p.Update([]Transition{
		{Obs: obs, Action: 0.8, Reward: 0.5},
		{Obs: testObs(0.3, 0.25), Action: 0.1, Reward: -0.2},
	})
	require.NoError(t, err)

	snap, err := p.Snapshot()
	require.NoError(t, err)

	restored := newTestReinforce(t)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, p.Act(obs, nil), restored.Act(obs, nil))
}

func TestReinforceRestoreRejectsBadSnapshot(t *testing.T) {
	p := newTestReinforce(t)
	assert.Error(t, p.Restore([]byte("{")))
	assert.Error(t, p.Restore([]byte(`{"weights":[1,2]}`)))
}

func TestReinforceRejectsDimensionMismatch(t *testing.T) {
	p := newTestReinforce(t)
	_, err := p.Update([]Transition{{Obs: []float64{1, 2}, Action: 0, Reward: 0}})
	assert.Error(t, err)
}
