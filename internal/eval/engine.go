// Package eval 在冻结参数下评估对冲策略：所有策略跑同一组 seed，
// 指标差异只来自策略本身。
package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hedgesim/internal/env"
	"hedgesim/internal/logger"
	"hedgesim/internal/policy"
	"hedgesim/internal/rollout"
	"hedgesim/internal/sim"
)

// Config 评估参数（evaluation 配置段）。
type Config struct {
	Episodes   int     `mapstructure:"episodes" json:"episodes"`
	Workers    int     `mapstructure:"workers" json:"workers"`
	Seed       uint64  `mapstructure:"seed" json:"seed"`
	Confidence float64 `mapstructure:"confidence" json:"confidence"`
	CurveCount int     `mapstructure:"curve_count" json:"curve_count"` // 报表收录的权益曲线条数
}

func (c Config) Validate() error {
	if c.Episodes <= 0 {
		return &sim.ConfigError{Field: "evaluation.episodes", Reason: "需 > 0"}
	}
	if c.Workers <= 0 {
		return &sim.ConfigError{Field: "evaluation.workers", Reason: "需 > 0"}
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return &sim.ConfigError{Field: "evaluation.confidence", Reason: "需在 (0, 1)"}
	}
	if c.CurveCount < 0 {
		return &sim.ConfigError{Field: "evaluation.curve_count", Reason: "不能为负"}
	}
	return nil
}

// PolicyReport 单个策略的评估结果。
type PolicyReport struct {
	Policy  string      `json:"policy"`
	Metrics Metrics     `json:"metrics"`
	PnLs    []float64   `json:"pnls"`
	Curves  [][]float64 `json:"curves,omitempty"`
}

// Report 一次评估的完整产出，ID 唯一、内容可 JSON 序列化。
type Report struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id,omitempty"` // 关联的训练 run（如有）
	CreatedAt int64          `json:"created_at"`
	SimConfig sim.Config     `json:"sim_config"`
	EnvConfig env.Config     `json:"env_config"`
	Episodes  int            `json:"episodes"`
	Seed      uint64         `json:"seed"`
	Policies  []PolicyReport `json:"policies"`
}

// Recorder 接收评估指标，供外部实验跟踪消费；为 nil 时仅记日志。
type Recorder interface {
	Record(event string, fields map[string]float64)
}

// Engine 评估引擎。不修改任何策略参数，Act 一律以确定性模式调用。
type Engine struct {
	cfg    Config
	simCfg sim.Config
	envCfg env.Config
	src    sim.RecordSource
	rec    Recorder
}

// SetRecorder 注入指标接收器。须在 Evaluate 之前调用。
func (e *Engine) SetRecorder(r Recorder) { e.rec = r }

func NewEngine(cfg Config, simCfg sim.Config, envCfg env.Config, src sim.RecordSource) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}
	if err := envCfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, simCfg: simCfg, envCfg: envCfg, src: src}, nil
}

// Evaluate 对每个策略跑完整的 seed 组并汇总指标。
// episode i 的 seed 恒为 cfg.Seed + i，与 worker 数和调度无关。
func (e *Engine) Evaluate(ctx context.Context, policies []policy.Policy) (Report, error) {
	if len(policies) == 0 {
		return Report{}, fmt.Errorf("至少需要一个待评估策略")
	}
	rep := Report{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Unix(),
		SimConfig: e.simCfg,
		EnvConfig: e.envCfg,
		Episodes:  e.cfg.Episodes,
		Seed:      e.cfg.Seed,
	}
	for _, p := range policies {
		start := time.Now()
		results, err := e.runPolicy(ctx, p)
		if err != nil {
			return Report{}, fmt.Errorf("评估策略 %s 失败: %w", p.Name(), err)
		}
		pr := PolicyReport{
			Policy:  p.Name(),
			Metrics: Compute(results, e.cfg.Confidence),
			PnLs:    make([]float64, len(results)),
		}
		for i, r := range results {
			pr.PnLs[i] = r.TerminalPnL
			if i < e.cfg.CurveCount {
				pr.Curves = append(pr.Curves, r.Equity)
			}
		}
		rep.Policies = append(rep.Policies, pr)
		if e.rec != nil {
			e.rec.Record("policy", map[string]float64{
				"mean_pnl": pr.Metrics.MeanPnL,
				"std_pnl":  pr.Metrics.StdPnL,
				"var":      pr.Metrics.VaR,
				"cvar":     pr.Metrics.CVaR,
				"cost":     pr.Metrics.MeanCost,
			})
		}
		logger.Infof("策略 %s 评估完成: episodes=%d mean_pnl=%.4f cvar=%.4f elapsed=%s",
			p.Name(), pr.Metrics.Episodes, pr.Metrics.MeanPnL, pr.Metrics.CVaR, time.Since(start).Round(time.Millisecond))
	}
	return rep, nil
}

func (e *Engine) runPolicy(ctx context.Context, p policy.Policy) ([]rollout.Result, error) {
	results := make([]rollout.Result, e.cfg.Episodes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i := 0; i < e.cfg.Episodes; i++ {
		g.Go(func() error {
			simulator, err := sim.New(e.simCfg, e.src)
			if err != nil {
				return err
			}
			he, err := env.New(simulator, e.simCfg, e.envCfg)
			if err != nil {
				return err
			}
			res, err := rollout.Run(gctx, he, p, e.cfg.Seed+uint64(i), rollout.Options{Equity: true})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// 槽位按 episode 序号写入，结果与调度顺序无关
	return results, nil
}
