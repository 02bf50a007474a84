package selection

import (
	"fmt"
	"strings"

	"github.com/wangshuile/jb-quant/internal/s1_universe"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// Scoring policy tags
const (
	TypeMomentum      = "momentum"
	TypeMeanReversion = "mean_reversion"
	TypeVolatility    = "volatility"
)

// Types lists the registered scoring tags
var Types = []string{TypeMomentum, TypeMeanReversion, TypeVolatility}

// NewScorer maps a tag to its scorer
func NewScorer(kind string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TypeMomentum:
		return Momentum{}, nil
	case TypeMeanReversion:
		return MeanReversion{}, nil
	case TypeVolatility:
		return Volatility{}, nil
	default:
		return nil, fmt.Errorf("unknown selection type %q (want one of %v)", kind, Types)
	}
}

// New builds the scoring policy named by kind
func New(kind string, universe s1_universe.Provider, data SeriesSource, log *logger.Logger) (Policy, error) {
	scorer, err := NewScorer(kind)
	if err != nil {
		return nil, err
	}
	return NewSelector(scorer, universe, data, log), nil
}
