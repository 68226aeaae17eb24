package sim

import (
	"fmt"
	"math"
	"strings"
)

const (
	ModelGBM    = "gbm"
	ModelHeston = "heston"
	ModelReplay = "replay"
)

const (
	OptionCall = "call"
	OptionPut  = "put"
)

// ConfigError 表示配置不一致，在任何模拟开始前即失败。
// 各组件的配置校验统一复用该类型，Field 带上段前缀（如 environment.reward）。
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置无效: %s: %s", e.Field, e.Reason)
}

func configErrf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// OptionConfig 描述被对冲的期权合约条款。
type OptionConfig struct {
	Type    string  `mapstructure:"type" json:"type"`       // call/put
	Strike  float64 `mapstructure:"strike" json:"strike"`
	Barrier float64 `mapstructure:"barrier" json:"barrier"` // >0 时为向上敲出障碍
}

// CostSchedule 交易成本：固定费用 + 成交额比例费率。
type CostSchedule struct {
	Fixed float64 `mapstructure:"fixed" json:"fixed"`
	Rate  float64 `mapstructure:"rate" json:"rate"`
}

// HestonParams 随机波动率模型参数（full truncation Euler 离散）。
type HestonParams struct {
	Kappa float64 `mapstructure:"kappa" json:"kappa"`
	Theta float64 `mapstructure:"theta" json:"theta"`
	Xi    float64 `mapstructure:"xi" json:"xi"`
	Rho   float64 `mapstructure:"rho" json:"rho"`
	V0    float64 `mapstructure:"v0" json:"v0"`
}

// ReplayConfig 历史重放窗口参数。数据本身来自外部清洗管道写入的 dataset 库。
type ReplayConfig struct {
	StartTS        int64 `mapstructure:"start_ts" json:"start_ts"` // 0 表示按 seed 随机取窗
	GapToleranceMs int64 `mapstructure:"gap_tolerance_ms" json:"gap_tolerance_ms"`
}

// Config 是一次实验的模拟参数快照，构造后不再修改。
type Config struct {
	Model        string       `mapstructure:"model" json:"model"`
	InitialPrice float64      `mapstructure:"initial_price" json:"initial_price"`
	Vol          float64      `mapstructure:"vol" json:"vol"`
	Rate         float64      `mapstructure:"rate" json:"rate"`
	Steps        int          `mapstructure:"steps" json:"steps"`
	Maturity     float64      `mapstructure:"maturity" json:"maturity"` // 年化
	Seed         uint64       `mapstructure:"seed" json:"seed"`
	Option       OptionConfig `mapstructure:"option" json:"option"`
	Cost         CostSchedule `mapstructure:"cost" json:"cost"`
	Heston       HestonParams `mapstructure:"heston" json:"heston"`
	Replay       ReplayConfig `mapstructure:"replay" json:"replay"`
}

// Dt 返回单步时间长度（年）。
func (c Config) Dt() float64 {
	if c.Steps <= 0 {
		return 0
	}
	return c.Maturity / float64(c.Steps)
}

// PathLen 返回路径点数：Steps 次对冲决策对应 Steps+1 个观测点。
func (c Config) PathLen() int {
	return c.Steps + 1
}

// Validate 做 fail-fast 校验，任何不一致立即返回 ConfigError。
func (c Config) Validate() error {
	model := strings.ToLower(strings.TrimSpace(c.Model))
	switch model {
	case ModelGBM, ModelHeston, ModelReplay:
	case "":
		return configErrf("model", "不能为空")
	default:
		return configErrf("model", "未知模型 %q", c.Model)
	}
	if c.InitialPrice <= 0 {
		return configErrf("initial_price", "需 > 0，当前 %v", c.InitialPrice)
	}
	if model != ModelReplay && c.Vol <= 0 {
		return configErrf("vol", "需 > 0，当前 %v", c.Vol)
	}
	if c.Maturity <= 0 {
		return configErrf("maturity", "需 > 0，当前 %v", c.Maturity)
	}
	if c.Steps <= 0 {
		return configErrf("steps", "需 > 0，当前 %d", c.Steps)
	}
	switch c.Option.Type {
	case OptionCall, OptionPut:
	default:
		return configErrf("option.type", "需为 call 或 put，当前 %q", c.Option.Type)
	}
	if c.Option.Strike <= 0 {
		return configErrf("option.strike", "需 > 0，当前 %v", c.Option.Strike)
	}
	if c.Option.Barrier < 0 {
		return configErrf("option.barrier", "不能为负，当前 %v", c.Option.Barrier)
	}
	if c.Option.Barrier > 0 && c.Option.Type != OptionCall {
		return configErrf("option.barrier", "敲出障碍目前仅支持 call")
	}
	if c.Cost.Fixed < 0 || c.Cost.Rate < 0 {
		return configErrf("cost", "费用不能为负: fixed=%v rate=%v", c.Cost.Fixed, c.Cost.Rate)
	}
	if math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) {
		return configErrf("rate", "非法数值")
	}
	if model == ModelHeston {
		h := c.Heston
		if h.Kappa <= 0 || h.Theta <= 0 || h.Xi <= 0 || h.V0 <= 0 {
			return configErrf("heston", "kappa/theta/xi/v0 均需 > 0")
		}
		if h.Rho < -1 || h.Rho > 1 {
			return configErrf("heston.rho", "需在 [-1, 1]，当前 %v", h.Rho)
		}
	}
	if model == ModelReplay && c.Replay.GapToleranceMs < 0 {
		return configErrf("replay.gap_tolerance_ms", "不能为负")
	}
	return nil
}
