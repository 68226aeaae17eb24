// Package app 负责应用级编排：加载配置→初始化依赖→执行训练/评估/导入。
package app

import (
	"context"
	"fmt"
	"os"

	"hedgesim/internal/config"
	"hedgesim/internal/dataset"
	"hedgesim/internal/eval"
	"hedgesim/internal/logger"
	"hedgesim/internal/policy"
	"hedgesim/internal/sim"
	"hedgesim/internal/train"
)

// App 持有一次实验的全部依赖。按模式执行后应调用 Close 释放存储句柄。
type App struct {
	cfg     *config.Config
	pol     policy.Policy
	src     sim.RecordSource
	data    *dataset.Store
	ckpts   *train.CheckpointStore
	reports *eval.ReportStore
}

// NewApp 根据配置构建应用对象（不执行）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetJSON(cfg.App.LogJSON)
	return buildAppWithWire(context.Background(), cfg)
}

// RunTrain 执行训练。resumeRunID 非空时先从该 run 的最新检查点恢复。
func (a *App) RunTrain(ctx context.Context, resumeRunID string) (train.Result, error) {
	trainer, err := train.New(a.cfg.Training, a.cfg.Simulation, a.cfg.Environment, a.pol, a.ckpts, a.src)
	if err != nil {
		return train.Result{}, err
	}
	if resumeRunID != "" {
		if err := trainer.Resume(ctx, resumeRunID); err != nil {
			return train.Result{}, err
		}
	}
	logger.Infof("开始训练: run=%s policy=%s episodes=%d workers=%d",
		trainer.RunID(), a.pol.Name(), a.cfg.Training.Episodes, a.cfg.Training.Workers)
	return trainer.Run(ctx)
}

// RunEval 评估配置的策略并与基线对比，报告入库并渲染图表。
// runID 非空时先把策略参数恢复到该 run 的最新检查点。
func (a *App) RunEval(ctx context.Context, runID string) (eval.Report, error) {
	if runID != "" {
		cp, err := a.ckpts.Latest(ctx, runID)
		if err != nil {
			return eval.Report{}, err
		}
		if cp.PolicyName != a.pol.Name() {
			return eval.Report{}, fmt.Errorf("检查点策略 %q 与配置 %q 不符", cp.PolicyName, a.pol.Name())
		}
		if len(cp.PolicyState) > 0 {
			if err := a.pol.Restore(cp.PolicyState); err != nil {
				return eval.Report{}, err
			}
		}
	}

	engine, err := eval.NewEngine(a.cfg.Evaluation, a.cfg.Simulation, a.cfg.Environment, a.src)
	if err != nil {
		return eval.Report{}, err
	}
	policies, err := a.evalPolicies()
	if err != nil {
		return eval.Report{}, err
	}
	rep, err := engine.Evaluate(ctx, policies)
	if err != nil {
		return eval.Report{}, err
	}
	rep.RunID = runID
	if err := a.reports.Save(ctx, rep); err != nil {
		return eval.Report{}, err
	}
	if a.cfg.App.ChartPath != "" {
		if err := eval.WriteHTMLFile(rep, a.cfg.App.ChartPath); err != nil {
			return eval.Report{}, err
		}
	}
	logger.Infof("评估报告已保存: id=%s", rep.ID)
	return rep, nil
}

// evalPolicies 返回被评估策略加上缺失的基线参照。
func (a *App) evalPolicies() ([]policy.Policy, error) {
	policies := []policy.Policy{a.pol}
	for _, name := range []string{policy.NameDelta, policy.NameNoHedge} {
		if a.pol.Name() == name {
			continue
		}
		base, err := policy.New(policy.Config{Name: name})
		if err != nil {
			return nil, err
		}
		policies = append(policies, base)
	}
	return policies, nil
}

// RunImport 把 JSON 观测数组导入数据集库，供 replay 模型使用。
func (a *App) RunImport(ctx context.Context, path string) (int, error) {
	store := a.data
	if store == nil {
		var err error
		store, err = dataset.NewStore(a.cfg.App.DatasetPath)
		if err != nil {
			return 0, err
		}
		defer store.Close()
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()
	return dataset.ImportJSON(ctx, store, f)
}

// Close 释放所有存储句柄。
func (a *App) Close() error {
	var firstErr error
	closers := []func() error{}
	if a.data != nil {
		closers = append(closers, a.data.Close)
	}
	if a.ckpts != nil {
		closers = append(closers, a.ckpts.Close)
	}
	if a.reports != nil {
		closers = append(closers, a.reports.Close)
	}
	for _, c := range closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
