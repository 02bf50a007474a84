package s2_signals

import (
	"context"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// MovingAverage buys on a bullish SMA stack: ma5 > ma10 > ma20 and price > ma5
type MovingAverage struct {
	timingBase
}

// Name implements Policy
func (p *MovingAverage) Name() string { return TypeMovingAverage }

// Signal implements Policy (20-bar fetch, ≥10 bars)
func (p *MovingAverage) Signal(ctx context.Context, symbol string) contracts.Signal {
	closes, ok := p.closes(ctx, symbol, 20, 10)
	if !ok {
		return contracts.NeutralSignal
	}

	ma5, err := SMA(closes, 5)
	if err != nil {
		return p.fail(symbol, err)
	}
	ma10, _ := SMA(closes, 10)
	ma20, _ := SMA(closes, 20) // 20 개 미만이면 전체 평균

	price := closes[len(closes)-1]
	return contracts.Signal{Buy: ma5 > ma10 && ma10 > ma20 && price > ma5}
}
