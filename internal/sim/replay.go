package sim

import (
	"context"
	"math/rand/v2"

	"hedgesim/internal/dataset"
)

// RecordSource 抽象整理后的观测序列来源（通常是 dataset.Store）。
type RecordSource interface {
	All(ctx context.Context) ([]dataset.Record, error)
}

// replaySimulator 从历史观测序列取窗生成 Path。
// 窗口起点由 seed 决定（或 replay.start_ts 固定），同一 seed 永远取同一窗口。
// 价格会整体缩放到 initial_price，使 strike 等合约条款在不同窗口下可比。
type replaySimulator struct {
	cfg Config
	src RecordSource
}

func (r *replaySimulator) Name() string { return ModelReplay }

func (r *replaySimulator) Generate(ctx context.Context, seed uint64) (Path, error) {
	cfg := r.cfg
	records, err := r.src.All(ctx)
	if err != nil {
		return Path{}, err
	}
	need := cfg.PathLen()
	if len(records) < need {
		return Path{}, configErrf("replay", "数据不足：需要 %d 条观测，仅有 %d", need, len(records))
	}

	offset := 0
	if cfg.Replay.StartTS > 0 {
		for offset < len(records) && records[offset].TS < cfg.Replay.StartTS {
			offset++
		}
		if offset+need > len(records) {
			return Path{}, configErrf("replay.start_ts", "窗口超出数据范围：起点 %d 之后不足 %d 条", cfg.Replay.StartTS, need)
		}
	} else {
		rng := rand.New(rand.NewPCG(seed, seed^seedMix))
		offset = rng.IntN(len(records) - need + 1)
	}
	window := records[offset : offset+need]

	if report := dataset.CheckGaps(window, cfg.Replay.GapToleranceMs); !report.Ok() {
		return Path{}, configErrf("replay", "窗口内缺口超过容忍度 %dms：%d 段，最大 %dms",
			cfg.Replay.GapToleranceMs, len(report.Gaps), report.MaxGapMs)
	}

	scale := cfg.InitialPrice / window[0].Price
	dt := cfg.Dt()
	steps := make([]PathStep, need)
	for i, rec := range window {
		vol := rec.IV
		if vol <= 0 {
			vol = cfg.Vol
		}
		steps[i] = PathStep{
			Price:          rec.Price * scale,
			Vol:            vol,
			TimeToMaturity: cfg.Maturity - float64(i)*dt,
		}
	}
	steps[need-1].TimeToMaturity = 0
	return Path{Model: ModelReplay, Seed: seed, Steps: steps}, nil
}
