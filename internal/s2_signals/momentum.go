package s2_signals

import (
	"context"
	"errors"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// Momentum buys when every computable 5/10-bar momentum is positive
type Momentum struct {
	timingBase
}

// Name implements Policy
func (p *Momentum) Name() string { return TypeMomentum }

// Signal implements Policy (11-bar fetch, ≥6 bars)
func (p *Momentum) Signal(ctx context.Context, symbol string) contracts.Signal {
	closes, ok := p.closes(ctx, symbol, 11, 6)
	if !ok {
		return contracts.NeutralSignal
	}

	buy := true
	for _, k := range []int{5, 10} {
		m, err := Return(closes, k)
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return p.fail(symbol, err)
		}
		buy = buy && m > 0
	}
	return contracts.Signal{Buy: buy}
}
