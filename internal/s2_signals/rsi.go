package s2_signals

import (
	"context"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// RSI thresholds
const (
	DefaultRSIPeriod = 14
	RSIOversold      = 30.0
	RSIOverbought    = 70.0
)

// RSI buys when oversold and sells when overbought
type RSI struct {
	timingBase
	Period int
}

// Name implements Policy
func (p *RSI) Name() string { return TypeRSI }

// Signal implements Policy (period+1 bars fetched and required)
func (p *RSI) Signal(ctx context.Context, symbol string) contracts.Signal {
	n := p.Period + 1
	closes, ok := p.closes(ctx, symbol, n, n)
	if !ok {
		return contracts.NeutralSignal
	}

	rsi, err := WilderRSI(closes, p.Period)
	if err != nil {
		return p.fail(symbol, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"rsi":    rsi,
	}).Debug("RSI computed")

	return contracts.Signal{
		Buy:  rsi < RSIOversold,
		Sell: rsi > RSIOverbought,
	}
}
