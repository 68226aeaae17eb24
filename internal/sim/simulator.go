package sim

import (
	"context"
	"strings"
)

// Simulator 统一各行情模型的生成行为：同一 (配置, seed) 必须逐位复现同一 Path。
type Simulator interface {
	Generate(ctx context.Context, seed uint64) (Path, error)
	Name() string
}

// New 按配置选择模型实现；replay 需要注入数据源。
func New(cfg Config, src RecordSource) (Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Model)) {
	case ModelGBM:
		return &gbmSimulator{cfg: cfg}, nil
	case ModelHeston:
		return &hestonSimulator{cfg: cfg}, nil
	case ModelReplay:
		if src == nil {
			return nil, configErrf("replay", "未配置历史数据源")
		}
		return &replaySimulator{cfg: cfg, src: src}, nil
	default:
		return nil, configErrf("model", "未知模型 %q", cfg.Model)
	}
}
