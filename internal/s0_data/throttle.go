package s0_data

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// ThrottledMarket wraps a market and rate-limits its data calls.
// Account and order calls pass through untouched.
type ThrottledMarket struct {
	contracts.Market
	limiter *rate.Limiter
}

// NewThrottledMarket limits history/quote calls to rps with burst.
// rps <= 0 returns the market unchanged.
func NewThrottledMarket(m contracts.Market, rps float64, burst int) contracts.Market {
	if rps <= 0 {
		return m
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledMarket{
		Market:  m,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// History waits for a token then delegates
func (t *ThrottledMarket) History(ctx context.Context, symbol string, freq contracts.Frequency, start, end time.Time) ([]contracts.Bar, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.Market.History(ctx, symbol, freq, start, end)
}

// Quotes waits for a token then delegates
func (t *ThrottledMarket) Quotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.Market.Quotes(ctx, symbols)
}
