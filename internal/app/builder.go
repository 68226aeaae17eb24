package app

import (
	"context"

	"hedgesim/internal/config"
	"hedgesim/internal/dataset"
	"hedgesim/internal/eval"
	"hedgesim/internal/policy"
	"hedgesim/internal/sim"
	"hedgesim/internal/train"
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

// AppBuilder 按依赖顺序组装 App：存储 → 策略 → 应用对象。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	a := &App{cfg: b.cfg}

	// replay 模型需要数据集库作为路径来源，其余模型不打开
	if b.cfg.Simulation.Model == sim.ModelReplay {
		store, err := dataset.NewStore(b.cfg.App.DatasetPath)
		if err != nil {
			return nil, err
		}
		a.data = store
		a.src = store
	}

	ckpts, err := train.NewCheckpointStore(b.cfg.App.CheckpointPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ckpts = ckpts

	reports, err := eval.NewReportStore(b.cfg.App.ReportPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.reports = reports

	pol, err := policy.New(b.cfg.Policy)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pol = pol
	return a, nil
}
