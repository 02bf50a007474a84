package s0_data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// ErrNoData is returned when the market has no usable series or quote
var ErrNoData = errors.New("no market data")

// Source is the part of the market the data manager reads from
type Source interface {
	contracts.HistoryProvider
	contracts.QuoteProvider
}

// Manager fetches recent bars and quotes through the series cache
// ⭐ SSOT: 정책들은 시장 데이터를 이 Manager 로만 조회
type Manager struct {
	source Source
	clock  contracts.Clock
	cache  *SeriesCache
	logger *logger.Logger
}

// NewManager creates a data manager
func NewManager(source Source, clock contracts.Clock, cache *SeriesCache, log *logger.Logger) *Manager {
	if cache == nil {
		cache = NewSeriesCache(DefaultCacheSize)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		source: source,
		clock:  clock,
		cache:  cache,
		logger: log.Component("data"),
	}
}

// Now returns the engine clock
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// History returns at most count daily bars ending now, oldest first.
// The lookup window is count×2 calendar days to cover weekends and holidays.
func (m *Manager) History(ctx context.Context, symbol string, count int) ([]contracts.Bar, error) {
	if symbol == "" || count <= 0 {
		return nil, fmt.Errorf("%w: invalid request %q/%d", ErrNoData, symbol, count)
	}

	key := SeriesKey{Symbol: symbol, Freq: contracts.FrequencyDaily, Count: count}
	if bars, ok := m.cache.Get(key); ok {
		return bars, nil
	}

	end := m.clock.Now()
	start := end.AddDate(0, 0, -count*2)

	bars, err := m.source.History(ctx, symbol, contracts.FrequencyDaily, start, end)
	if err != nil {
		m.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"count":  count,
		}).WithError(err).Warn("history fetch failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrNoData, symbol, err)
	}
	if len(bars) == 0 {
		// 정지/상장폐지 종목: 빈 결과는 캐시하지 않음
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	sorted := make([]contracts.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	if len(sorted) > count {
		sorted = sorted[len(sorted)-count:]
	}

	m.cache.Set(key, sorted)
	return sorted, nil
}

// Quote returns the current quote of symbol
func (m *Manager) Quote(ctx context.Context, symbol string) (contracts.Quote, error) {
	quotes, err := m.source.Quotes(ctx, []string{symbol})
	if err != nil {
		return contracts.Quote{}, fmt.Errorf("%w: quote %s: %v", ErrNoData, symbol, err)
	}
	q, ok := quotes[symbol]
	if !ok || q.Price <= 0 {
		return contracts.Quote{}, fmt.Errorf("%w: quote %s", ErrNoData, symbol)
	}
	return q, nil
}

// LastPrice returns the quote price, falling back to the last cached close
func (m *Manager) LastPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := m.Quote(ctx, symbol)
	if err == nil {
		return q.Price, nil
	}
	bars, herr := m.History(ctx, symbol, 1)
	if herr != nil || bars[len(bars)-1].Close <= 0 {
		return 0, err
	}
	return bars[len(bars)-1].Close, nil
}

// ClearCache is called at market open
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

// CacheStats returns series cache statistics
func (m *Manager) CacheStats() CacheStats {
	return m.cache.Stats()
}
