package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/s1_universe"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// ErrInsufficientData is returned by score functions when the series is too short
var ErrInsufficientData = errors.New("insufficient history")

// NeutralScore is used when a score cannot be computed
const NeutralScore = 0.5

// Score bounds
const (
	MinScore = 0.1
	MaxScore = 1.0
)

// Policy selects and ranks today's candidates
type Policy interface {
	Select(ctx context.Context, poolSize int) ([]contracts.InstrumentInfo, error)
	Name() string
}

// SeriesSource is the data manager as seen by scoring
type SeriesSource interface {
	History(ctx context.Context, symbol string, count int) ([]contracts.Bar, error)
}

// Scorer computes one instrument score from its closes
type Scorer interface {
	Name() string
	Lookback() int // 조회할 일봉 수
	Score(closes []float64) (float64, error)
}

// Selector is the shared select-score-rank loop; the Scorer decides the score
// ⭐ SSOT: 종목 선정/랭킹 루프는 여기서만
type Selector struct {
	scorer   Scorer
	universe s1_universe.Provider
	data     SeriesSource
	logger   *logger.Logger
}

// NewSelector creates a selector around scorer
func NewSelector(scorer Scorer, universe s1_universe.Provider, data SeriesSource, log *logger.Logger) *Selector {
	if log == nil {
		log = logger.Nop()
	}
	return &Selector{
		scorer:   scorer,
		universe: universe,
		data:     data,
		logger:   log.Component("selection").WithField("policy", scorer.Name()),
	}
}

// Name implements Policy
func (s *Selector) Name() string {
	return s.scorer.Name()
}

// Select requests 2×poolSize symbols, scores them, sorts descending
// (stable) and keeps poolSize. A symbol that cannot be scored stays in
// the pool at the neutral score; only blank symbols are dropped.
func (s *Selector) Select(ctx context.Context, poolSize int) ([]contracts.InstrumentInfo, error) {
	if poolSize <= 0 {
		return nil, nil
	}

	pool, err := s.universe.Symbols(ctx, poolSize*2)
	if err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}
	if len(pool) == 0 {
		s.logger.Warn("empty universe, nothing to select")
		return nil, nil
	}

	s.logger.WithField("candidates", len(pool)).Info("Scoring started")

	selected := make([]contracts.InstrumentInfo, 0, len(pool))
	for _, raw := range pool {
		symbol := strings.TrimSpace(raw)
		if symbol == "" {
			continue
		}
		selected = append(selected, s.scoreOne(ctx, symbol))
	}

	if len(selected) == 0 {
		s.logger.Warn("universe returned only blank symbols")
		return nil, nil
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Score > selected[j].Score
	})
	if len(selected) > poolSize {
		selected = selected[:poolSize]
	}

	fields := map[string]interface{}{"selected": len(selected)}
	if len(selected) > 0 {
		fields["top_symbol"] = selected[0].Symbol
		fields["top_score"] = selected[0].Score
	}
	s.logger.WithFields(fields).Info("Selection completed")

	return selected, nil
}

func (s *Selector) scoreOne(ctx context.Context, symbol string) contracts.InstrumentInfo {
	info := contracts.InstrumentInfo{Symbol: symbol, Score: NeutralScore}

	bars, err := s.data.History(ctx, symbol, s.scorer.Lookback())
	if err != nil || len(bars) == 0 {
		return info
	}
	info.History = bars
	info.CurrentPrice = bars[len(bars)-1].Close

	score, err := s.scorer.Score(contracts.Closes(bars))
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"bars":   len(bars),
		}).WithError(err).Debug("score fell back to neutral")
		return info
	}
	info.Score = clamp(score)
	return info
}

func clamp(score float64) float64 {
	if score != score { // NaN
		return NeutralScore
	}
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
