// Package train 实现并行训练循环：worker 负责跑 episode，
// 单一 collector 负责经验回放与参数更新，进度按检查点持久化。
package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hedgesim/internal/env"
	"hedgesim/internal/logger"
	"hedgesim/internal/policy"
	"hedgesim/internal/rollout"
	"hedgesim/internal/sim"
)

// Config 训练参数（training 配置段）。
type Config struct {
	Episodes               int    `mapstructure:"episodes" json:"episodes"`
	Workers                int    `mapstructure:"workers" json:"workers"`
	BatchSize              int    `mapstructure:"batch_size" json:"batch_size"`
	UpdateEvery            int    `mapstructure:"update_every" json:"update_every"` // 每收集多少 episode 更新一次
	BufferCapacity         int    `mapstructure:"buffer_capacity" json:"buffer_capacity"`
	BufferEviction         string `mapstructure:"buffer_eviction" json:"buffer_eviction"`
	BufferSampling         string `mapstructure:"buffer_sampling" json:"buffer_sampling"`
	CheckpointEvery        int    `mapstructure:"checkpoint_every" json:"checkpoint_every"` // 0 关闭周期检查点
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures" json:"max_consecutive_failures"`
}

func (c Config) Validate() error {
	if c.Episodes <= 0 {
		return &sim.ConfigError{Field: "training.episodes", Reason: "需 > 0"}
	}
	if c.Workers <= 0 {
		return &sim.ConfigError{Field: "training.workers", Reason: "需 > 0"}
	}
	if c.BatchSize <= 0 {
		return &sim.ConfigError{Field: "training.batch_size", Reason: "需 > 0"}
	}
	if c.UpdateEvery <= 0 {
		return &sim.ConfigError{Field: "training.update_every", Reason: "需 > 0"}
	}
	if c.CheckpointEvery < 0 {
		return &sim.ConfigError{Field: "training.checkpoint_every", Reason: "不能为负"}
	}
	if c.MaxConsecutiveFailures < 1 {
		return &sim.ConfigError{Field: "training.max_consecutive_failures", Reason: "需 >= 1"}
	}
	return nil
}

// guardedPolicy 以读写锁保证 Act/Snapshot 与 Update/Restore 互斥，
// worker 并发执行 episode 时参数读取始终看到完整的一次更新。
type guardedPolicy struct {
	mu sync.RWMutex
	p  policy.Policy
}

func (g *guardedPolicy) Name() string {
	return g.p.Name()
}

func (g *guardedPolicy) Act(obs []float64, rng *rand.Rand) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.p.Act(obs, rng)
}

func (g *guardedPolicy) Update(batch []policy.Transition) (policy.UpdateMetrics, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Update(batch)
}

func (g *guardedPolicy) Snapshot() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.p.Snapshot()
}

func (g *guardedPolicy) Restore(data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Restore(data)
}

// Recorder 接收训练过程指标，供外部实验跟踪消费；为 nil 时仅记日志。
type Recorder interface {
	Record(event string, fields map[string]float64)
}

// Result 一次训练 run 的汇总。
type Result struct {
	RunID      string               `json:"run_id"`
	Episodes   int                  `json:"episodes"`
	Steps      int64                `json:"steps"`
	Failures   int                  `json:"failures"`
	MeanReward float64              `json:"mean_reward"`
	LastUpdate policy.UpdateMetrics `json:"last_update"`
}

// Trainer 驱动完整训练 run。store 可为 nil（不落检查点）。
type Trainer struct {
	cfg      Config
	simCfg   sim.Config
	envCfg   env.Config
	guard    *guardedPolicy
	store    *CheckpointStore
	src      sim.RecordSource
	rec      Recorder
	runID    string
	baseSeed uint64
	start    int
	steps    int64
}

func New(cfg Config, simCfg sim.Config, envCfg env.Config, pol policy.Policy, store *CheckpointStore, src sim.RecordSource) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}
	if err := envCfg.Validate(); err != nil {
		return nil, err
	}
	if pol == nil {
		return nil, fmt.Errorf("policy 不能为空")
	}
	return &Trainer{
		cfg:      cfg,
		simCfg:   simCfg,
		envCfg:   envCfg,
		guard:    &guardedPolicy{p: pol},
		store:    store,
		src:      src,
		runID:    uuid.NewString(),
		baseSeed: simCfg.Seed,
	}, nil
}

// RunID 返回本次训练的标识，检查点与评估报告据此关联。
func (t *Trainer) RunID() string { return t.runID }

// SetRecorder 注入指标接收器。须在 Run 之前调用。
func (t *Trainer) SetRecorder(r Recorder) { t.rec = r }

func (t *Trainer) record(event string, fields map[string]float64) {
	if t.rec != nil {
		t.rec.Record(event, fields)
	}
}

// Resume 从指定 run 的最新检查点恢复：还原策略参数与 episode 进度，
// 后续 seed 序列与中断前一致。
func (t *Trainer) Resume(ctx context.Context, runID string) error {
	if t.store == nil {
		return fmt.Errorf("未配置检查点存储，无法恢复")
	}
	cp, err := t.store.Latest(ctx, runID)
	if err != nil {
		return err
	}
	if cp.PolicyName != t.guard.Name() {
		return fmt.Errorf("检查点策略 %q 与当前 %q 不符", cp.PolicyName, t.guard.Name())
	}
	if len(cp.PolicyState) > 0 {
		if err := t.guard.Restore(cp.PolicyState); err != nil {
			return err
		}
	}
	t.runID = runID
	t.baseSeed = cp.BaseSeed
	t.start = cp.Episode
	t.steps = cp.Steps
	logger.Infof("从检查点恢复: run=%s episode=%d steps=%d", runID, cp.Episode, cp.Steps)
	return nil
}

// outcome 携带 episode seed，失败路径上同样保留，便于按 seed 复现。
type outcome struct {
	seed uint64
	res  rollout.Result
	err  error
}

// Run 执行训练直到 episode 数达标、失败预算耗尽或 ctx 取消。
// 取消属于正常停机：已完成的进度会落一次最终检查点后返回。
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	log := logger.WithRun(t.runID)
	buf, err := newReplayBuffer(t.cfg.BufferCapacity, t.cfg.BufferEviction, t.cfg.BufferSampling, t.baseSeed)
	if err != nil {
		return Result{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan uint64)
	outcomes := make(chan outcome, t.cfg.Workers)

	g.Go(func() error {
		defer close(jobs)
		for i := t.start; i < t.cfg.Episodes; i++ {
			select {
			case jobs <- t.baseSeed + uint64(i):
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	var workerWG sync.WaitGroup
	for w := 0; w < t.cfg.Workers; w++ {
		workerWG.Add(1)
		g.Go(func() error {
			defer workerWG.Done()
			simulator, err := sim.New(t.simCfg, t.src)
			if err != nil {
				return err
			}
			e, err := env.New(simulator, t.simCfg, t.envCfg)
			if err != nil {
				return err
			}
			for seed := range jobs {
				res, err := rollout.Run(gctx, e, t.guard, seed, rollout.Options{Explore: true, Transitions: true})
				select {
				case outcomes <- outcome{seed: seed, res: res, err: err}:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		workerWG.Wait()
		close(outcomes)
	}()

	var (
		done, failures, consecFails int
		rewardSum                   float64
		lastUpdate                  policy.UpdateMetrics
	)
	g.Go(func() error {
		for o := range outcomes {
			if o.err != nil {
				if errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded) {
					return nil
				}
				if !episodeScoped(o.err) {
					return o.err
				}
				failures++
				consecFails++
				episode := int(o.seed - t.baseSeed)
				log.Warn("episode 失败", "err", o.err, "episode", episode, "seed", o.seed, "consecutive", consecFails)
				if consecFails >= t.cfg.MaxConsecutiveFailures {
					return fmt.Errorf("连续失败 %d 次，超出预算 (episode=%d seed=%d): %w",
						consecFails, episode, o.seed, o.err)
				}
				continue
			}
			consecFails = 0
			done++
			t.steps += int64(o.res.Steps)
			rewardSum += o.res.TotalReward
			buf.Add(o.res.Transitions...)
			t.record("episode", map[string]float64{
				"reward": o.res.TotalReward,
				"pnl":    o.res.TerminalPnL,
				"cost":   o.res.TotalCost,
			})

			if done%t.cfg.UpdateEvery == 0 {
				m, err := t.guard.Update(buf.Sample(t.cfg.BatchSize))
				if err != nil {
					return err
				}
				lastUpdate = m
				log.Debug("参数更新", "episodes", t.start+done, "loss", m.Loss, "grad_norm", m.GradNorm)
				t.record("update", map[string]float64{
					"loss":      m.Loss,
					"baseline":  m.Baseline,
					"grad_norm": m.GradNorm,
				})
			}
			if t.store != nil && t.cfg.CheckpointEvery > 0 && done%t.cfg.CheckpointEvery == 0 {
				if err := t.checkpointAsync(g, gctx, t.start+done); err != nil {
					return err
				}
			}
		}
		return nil
	})

	runErr := g.Wait()

	// 停机时无论成败都落一次最终检查点，已完成进度不丢失。
	if t.store != nil && done > 0 {
		if err := t.checkpoint(context.Background(), t.start+done); err != nil {
			log.Error("最终检查点写入失败", "err", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	res := Result{
		RunID:      t.runID,
		Episodes:   done,
		Steps:      t.steps,
		Failures:   failures,
		LastUpdate: lastUpdate,
	}
	if done > 0 {
		res.MeanReward = rewardSum / float64(done)
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	log.Info("训练结束", "episodes", res.Episodes, "failures", res.Failures, "mean_reward", res.MeanReward)
	return res, runErr
}

// checkpointAsync 同步取参数快照，写库放到独立 goroutine。
func (t *Trainer) checkpointAsync(g *errgroup.Group, ctx context.Context, episode int) error {
	cp, err := t.snapshot(episode)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return t.store.Save(ctx, cp)
	})
	return nil
}

func (t *Trainer) checkpoint(ctx context.Context, episode int) error {
	cp, err := t.snapshot(episode)
	if err != nil {
		return err
	}
	return t.store.Save(ctx, cp)
}

func (t *Trainer) snapshot(episode int) (Checkpoint, error) {
	state, err := t.guard.Snapshot()
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{
		RunID:       t.runID,
		Episode:     episode,
		Steps:       t.steps,
		BaseSeed:    t.baseSeed,
		PolicyName:  t.guard.Name(),
		PolicyState: state,
	}, nil
}

// episodeScoped 判断错误是否只影响单个 episode（计入失败预算而非终止 run）。
func episodeScoped(err error) bool {
	var divErr *env.DivergenceError
	var actErr *env.InvalidActionError
	var cfgErr *sim.ConfigError
	return errors.As(err, &divErr) || errors.As(err, &actErr) || errors.As(err, &cfgErr)
}
