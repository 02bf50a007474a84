package audit

import (
	"math"
	"sort"
)

// =============================================================================
// Risk Summary
// =============================================================================

// RiskSummary 일별 수익률 기반 과거 시뮬레이션 리스크 요약
type RiskSummary struct {
	SampleCount int     `json:"sample_count"`
	VaR95       float64 `json:"var_95"` // 손실을 양수로 표시
	VaR99       float64 `json:"var_99"`
	CVaR95      float64 `json:"cvar_95"`
	CVaR99      float64 `json:"cvar_99"`
	MeanReturn  float64 `json:"mean_return"`
	StdDev      float64 `json:"std_dev"`
	Volatility  float64 `json:"volatility"` // 연율화
}

// NewRiskSummary computes historical VaR/CVaR over daily returns
func NewRiskSummary(dailyReturns []float64) RiskSummary {
	rs := RiskSummary{SampleCount: len(dailyReturns)}
	if len(dailyReturns) == 0 {
		return rs
	}

	rs.MeanReturn, rs.StdDev = meanStd(dailyReturns)
	rs.Volatility = rs.StdDev * math.Sqrt(TradingDaysPerYear)

	sorted := append([]float64(nil), dailyReturns...)
	sort.Float64s(sorted)

	rs.VaR95, rs.CVaR95 = historicalVaR(sorted, 0.95)
	rs.VaR99, rs.CVaR99 = historicalVaR(sorted, 0.99)
	return rs
}

// historicalVaR returns (VaR, CVaR) at confidence from ascending returns.
// Tail index = floor((1−confidence)·n); CVaR averages the tail through it.
func historicalVaR(sorted []float64, confidence float64) (float64, float64) {
	n := len(sorted)
	idx := int(math.Floor((1 - confidence) * float64(n)))
	if idx >= n {
		idx = n - 1
	}

	tail := 0.0
	for i := 0; i <= idx; i++ {
		tail += sorted[i]
	}

	return lossOf(sorted[idx]), lossOf(tail / float64(idx+1))
}

// lossOf flips a return into a non-negative loss
func lossOf(r float64) float64 {
	if r >= 0 {
		return 0
	}
	return -r
}
