package quality

import (
	"fmt"
	"math"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/s0_data"
)

// Gate validates loaded bars before they drive a simulated market
type Gate struct {
	config Config
}

// Config holds quality gate thresholds
type Config struct {
	MinCoverage float64 // 심볼 중 유효 일봉이 하나라도 있는 비율 (default 0.8)
}

// Report summarizes a gate run
type Report struct {
	TotalSymbols int                `json:"total_symbols"`
	ValidSymbols int                `json:"valid_symbols"`
	DroppedBars  int                `json:"dropped_bars"`
	Coverage     map[string]float64 `json:"coverage"`
	QualityScore float64            `json:"quality_score"`
	Passed       bool               `json:"passed"`
}

// NewGate creates a new Gate
func NewGate(config Config) *Gate {
	if config.MinCoverage <= 0 {
		config.MinCoverage = 0.8
	}
	return &Gate{config: config}
}

// Check drops malformed bars from set in place and reports coverage
// ⭐ SSOT: 로딩된 일봉 → 시뮬레이터 품질 검증
func (g *Gate) Check(set *s0_data.BarSet) *Report {
	report := &Report{
		TotalSymbols: len(set.Bars),
		Coverage:     make(map[string]float64),
	}

	totalBars, volumeBars := 0, 0
	for sym, bars := range set.Bars {
		kept := bars[:0]
		for _, b := range bars {
			if err := ValidateBar(b); err != nil {
				report.DroppedBars++
				continue
			}
			if b.Volume > 0 {
				volumeBars++
			}
			kept = append(kept, b)
		}
		totalBars += len(kept)
		if len(kept) == 0 {
			delete(set.Bars, sym)
			continue
		}
		set.Bars[sym] = kept
		report.ValidSymbols++
	}

	if report.TotalSymbols > 0 {
		report.Coverage["price"] = float64(report.ValidSymbols) / float64(report.TotalSymbols)
	}
	if totalBars > 0 {
		report.Coverage["volume"] = float64(volumeBars) / float64(totalBars)
	}

	report.QualityScore = report.Coverage["price"]*0.7 + report.Coverage["volume"]*0.3
	report.Passed = report.Coverage["price"] >= g.config.MinCoverage
	return report
}

// ValidateBar checks price positivity and OHLC consistency
func ValidateBar(b contracts.Bar) error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value at %s", b.Time.Format("2006-01-02"))
		}
	}
	if b.Close <= 0 || b.Open <= 0 {
		return fmt.Errorf("non-positive price at %s", b.Time.Format("2006-01-02"))
	}
	if b.High < b.Low {
		return fmt.Errorf("high < low at %s", b.Time.Format("2006-01-02"))
	}
	if b.Volume < 0 || b.Amount < 0 {
		return fmt.Errorf("negative volume at %s", b.Time.Format("2006-01-02"))
	}
	return nil
}
