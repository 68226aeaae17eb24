package sim

// PathStep 单个观测点：标的价、波动率、剩余期限（年）。
type PathStep struct {
	Price          float64 `json:"price"`
	Vol            float64 `json:"vol"`
	TimeToMaturity float64 `json:"time_to_maturity"`
}

// Path 一个 episode 的完整行情序列，生成后不可变。
// 长度固定为 Config.PathLen()；持有方为请求它的环境实例。
type Path struct {
	Model string     `json:"model"`
	Seed  uint64     `json:"seed"`
	Steps []PathStep `json:"steps"`
}

func (p Path) Len() int { return len(p.Steps) }

// MarketState 某一步的可观测切片及定价模型推导量。
// 瞬态结构，每步按需重算。
type MarketState struct {
	Index          int
	Price          float64
	Vol            float64
	TimeToMaturity float64
	OptionValue    float64
	Greeks         Greeks
}

// StateAt 从 Path 切出第 i 步并补齐期权公允价值与希腊字母。
// heston/replay 路径用当步波动率作为定价波动率代理。
func StateAt(cfg Config, p Path, i int) MarketState {
	st := p.Steps[i]
	sigma := st.Vol
	return MarketState{
		Index:          i,
		Price:          st.Price,
		Vol:            st.Vol,
		TimeToMaturity: st.TimeToMaturity,
		OptionValue:    BSPrice(cfg.Option.Type, st.Price, cfg.Option.Strike, cfg.Rate, sigma, st.TimeToMaturity),
		Greeks:         BSGreeks(cfg.Option.Type, st.Price, cfg.Option.Strike, cfg.Rate, sigma, st.TimeToMaturity),
	}
}
