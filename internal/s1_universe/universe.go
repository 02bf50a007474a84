package s1_universe

import (
	"context"
	"fmt"
	"strings"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
	"github.com/wangshuile/jb-quant/pkg/redis"
)

// Provider returns up to size candidate symbols for today's selection
type Provider interface {
	Symbols(ctx context.Context, size int) ([]string, error)
	Name() string
}

const (
	TypeFixed = "fixed"
	TypeIndex = "index"

	// DefaultIndex is the CSI 300
	DefaultIndex = "SHSE.000300"
)

// DefaultFixedSymbols is the curated large-cap list
var DefaultFixedSymbols = []string{
	"SHSE.600519",
	"SHSE.601318",
	"SZSE.000858",
	"SZSE.000333",
	"SHSE.600036",
}

// Config selects and parameterizes a provider
type Config struct {
	Type      string
	Index     string
	Symbols   []string // fixed 전용, 비어 있으면 DefaultFixedSymbols
	BlackList []string
}

// New builds the provider named by cfg.Type (unknown → fixed)
func New(cfg Config, ref contracts.ReferenceData, clock contracts.Clock, cache *redis.Cache, log *logger.Logger) Provider {
	if log == nil {
		log = logger.Nop()
	}
	black := newBlackList(cfg.BlackList)

	switch strings.ToLower(cfg.Type) {
	case TypeIndex:
		index := cfg.Index
		if index == "" {
			index = DefaultIndex
		}
		return &IndexProvider{
			index:     index,
			ref:       ref,
			clock:     clock,
			cache:     cache,
			blackList: black,
			logger:    log.Component("universe"),
		}
	default:
		symbols := cfg.Symbols
		if len(symbols) == 0 {
			symbols = DefaultFixedSymbols
		}
		return &FixedProvider{symbols: symbols, blackList: black}
	}
}

// ============================================================================
// Fixed
// ============================================================================

// FixedProvider serves a curated list
type FixedProvider struct {
	symbols   []string
	blackList blackList
}

// NewFixedProvider creates a fixed provider
func NewFixedProvider(symbols []string, blackList []string) *FixedProvider {
	if len(symbols) == 0 {
		symbols = DefaultFixedSymbols
	}
	return &FixedProvider{symbols: symbols, blackList: newBlackList(blackList)}
}

// Name implements Provider
func (p *FixedProvider) Name() string { return TypeFixed }

// Symbols implements Provider
func (p *FixedProvider) Symbols(ctx context.Context, size int) ([]string, error) {
	out := make([]string, 0, len(p.symbols))
	for _, sym := range p.symbols {
		if size > 0 && len(out) >= size {
			break
		}
		if p.blackList.contains(sym) {
			continue
		}
		out = append(out, sym)
	}
	return out, nil
}

// ============================================================================
// Index
// ============================================================================

// IndexProvider serves index constituents, filtered
// ⭐ SSOT: 지수 구성종목 유니버스 필터 (ST / 北交所 / 블랙리스트)
type IndexProvider struct {
	index     string
	ref       contracts.ReferenceData
	clock     contracts.Clock
	cache     *redis.Cache
	blackList blackList
	logger    *logger.Logger
}

// Name implements Provider
func (p *IndexProvider) Name() string { return TypeIndex }

// Symbols scans at most size×3 constituents, dropping special-treatment
// names ("ST") and Beijing listings ("BJ" prefix), and stops at size
func (p *IndexProvider) Symbols(ctx context.Context, size int) ([]string, error) {
	if size <= 0 {
		return nil, nil
	}

	members, err := p.constituents(ctx)
	if err != nil {
		return nil, err
	}

	scan := members
	if len(scan) > size*3 {
		scan = scan[:size*3]
	}

	names := make(map[string]string, len(scan))
	instruments, err := p.ref.Instruments(ctx, scan)
	if err != nil {
		// 이름 없이 진행: ST 필터만 생략됨
		p.logger.WithError(err).Warn("instrument lookup failed")
	}
	for _, inst := range instruments {
		names[inst.Symbol] = inst.Name
	}

	out := make([]string, 0, size)
	excluded := make(map[string]string)
	for _, sym := range scan {
		if len(out) >= size {
			break
		}
		switch {
		case strings.HasPrefix(sym, "BJ"):
			excluded[sym] = "bj"
		case strings.Contains(names[sym], "ST"):
			excluded[sym] = "st"
		case p.blackList.contains(sym):
			excluded[sym] = "black_list"
		default:
			out = append(out, sym)
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"index":    p.index,
		"members":  len(members),
		"scanned":  len(scan),
		"selected": len(out),
		"excluded": len(excluded),
	}).Debug("index universe built")

	return out, nil
}

// constituents returns today's members, memoized per date in Redis
func (p *IndexProvider) constituents(ctx context.Context) ([]string, error) {
	now := p.clock.Now()
	key := redis.UniverseKey(p.index, now.Format("2006-01-02"))

	members, err := redis.GetOrSet(ctx, p.cache, key, redis.TTLDaily, func() ([]string, error) {
		return p.ref.IndexConstituents(ctx, p.index, now)
	})
	if err != nil {
		return nil, fmt.Errorf("index constituents %s: %w", p.index, err)
	}
	return members, nil
}

// ============================================================================
// Black list
// ============================================================================

type blackList map[string]struct{}

func newBlackList(symbols []string) blackList {
	b := make(blackList, len(symbols))
	for _, s := range symbols {
		b[strings.TrimSpace(s)] = struct{}{}
	}
	return b
}

func (b blackList) contains(symbol string) bool {
	_, ok := b[symbol]
	return ok
}
