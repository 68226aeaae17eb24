package sim

import "math"

// Greeks 期权敏感度（per BS 定价模型）。
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

const tauFloor = 1e-10

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func d1d2(s, k, r, sigma, tau float64) (float64, float64) {
	sq := sigma * math.Sqrt(tau)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*tau) / sq
	return d1, d1 - sq
}

// BSPrice 返回欧式期权 Black-Scholes 公允价值。
// tau<=0 或 sigma<=0 时退化为贴现内在价值。
func BSPrice(typ string, s, k, r, sigma, tau float64) float64 {
	if tau <= tauFloor || sigma <= tauFloor {
		return intrinsic(typ, s, k)
	}
	d1, d2 := d1d2(s, k, r, sigma, tau)
	disc := math.Exp(-r * tau)
	if typ == OptionPut {
		return k*disc*normCDF(-d2) - s*normCDF(-d1)
	}
	return s*normCDF(d1) - k*disc*normCDF(d2)
}

// BSGreeks 返回 delta/gamma/vega/theta。到期时 delta 按内在价值分段取 0/±1。
func BSGreeks(typ string, s, k, r, sigma, tau float64) Greeks {
	if tau <= tauFloor || sigma <= tauFloor {
		var delta float64
		switch {
		case typ == OptionPut && s < k:
			delta = -1
		case typ != OptionPut && s > k:
			delta = 1
		}
		return Greeks{Delta: delta}
	}
	d1, d2 := d1d2(s, k, r, sigma, tau)
	sq := math.Sqrt(tau)
	disc := math.Exp(-r * tau)
	g := Greeks{
		Gamma: normPDF(d1) / (s * sigma * sq),
		Vega:  s * normPDF(d1) * sq,
	}
	if typ == OptionPut {
		g.Delta = normCDF(d1) - 1
		g.Theta = -s*normPDF(d1)*sigma/(2*sq) + r*k*disc*normCDF(-d2)
	} else {
		g.Delta = normCDF(d1)
		g.Theta = -s*normPDF(d1)*sigma/(2*sq) - r*k*disc*normCDF(d2)
	}
	return g
}

func intrinsic(typ string, s, k float64) float64 {
	if typ == OptionPut {
		return math.Max(k-s, 0)
	}
	return math.Max(s-k, 0)
}

// Payoff 返回到期结算额；敲出后的障碍期权结算为 0（由调用方判定敲出）。
func Payoff(typ string, s, k float64) float64 {
	return intrinsic(typ, s, k)
}
