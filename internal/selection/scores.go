package selection

import (
	"fmt"
	"math"
)

// ============================================================================
// Momentum
// ============================================================================

// Momentum favors recent k-day gains, k ∈ {5, 10, 20}
type Momentum struct{}

func (Momentum) Name() string  { return TypeMomentum }
func (Momentum) Lookback() int { return 20 }

// Score = 0.5 + 3·mean(k-day returns), clamped
func (Momentum) Score(closes []float64) (float64, error) {
	if len(closes) < 10 {
		return NeutralScore, ErrInsufficientData
	}

	n := len(closes)
	current := closes[n-1]
	var returns []float64
	for _, k := range []int{5, 10, 20} {
		if n < k+1 {
			continue
		}
		base := closes[n-1-k]
		if base == 0 {
			return NeutralScore, fmt.Errorf("zero close %d bars back", k)
		}
		returns = append(returns, (current-base)/base)
	}
	if len(returns) == 0 {
		return NeutralScore, ErrInsufficientData
	}

	return clamp(0.5 + mean(returns)*3), nil
}

// ============================================================================
// Mean reversion
// ============================================================================

// MeanReversion favors prices below their moving averages
type MeanReversion struct{}

func (MeanReversion) Name() string  { return TypeMeanReversion }
func (MeanReversion) Lookback() int { return 30 }

// Score = 0.5 − 2·mean(deviation from SMA5/10/20), clamped
func (MeanReversion) Score(closes []float64) (float64, error) {
	if len(closes) < 20 {
		return NeutralScore, ErrInsufficientData
	}

	current := closes[len(closes)-1]
	deviations := make([]float64, 0, 3)
	for _, p := range []int{5, 10, 20} {
		ma := mean(closes[len(closes)-p:])
		if ma == 0 {
			return NeutralScore, fmt.Errorf("zero SMA%d", p)
		}
		deviations = append(deviations, (current-ma)/ma)
	}

	return clamp(0.5 - mean(deviations)*2), nil
}

// ============================================================================
// Volatility
// ============================================================================

// IdealVolatility is the annualized volatility that scores highest
const IdealVolatility = 0.30

// Volatility favors annualized volatility near IdealVolatility
type Volatility struct{}

func (Volatility) Name() string  { return TypeVolatility }
func (Volatility) Lookback() int { return 20 }

// Score = 1 − min(|σ·√252 − 0.30| / 0.30, 1), σ = population stdev of simple returns
func (Volatility) Score(closes []float64) (float64, error) {
	if len(closes) < 10 {
		return NeutralScore, ErrInsufficientData
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			return NeutralScore, fmt.Errorf("zero close at %d", i-1)
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}

	vol := AnnualizedVolatility(returns)
	return clamp(1 - math.Min(math.Abs(vol-IdealVolatility)/IdealVolatility, 1)), nil
}

// AnnualizedVolatility is the population stdev (ddof=0) × √252
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	m := mean(returns)
	sq := 0.0
	for _, r := range returns {
		sq += (r - m) * (r - m)
	}
	return math.Sqrt(sq/float64(len(returns))) * math.Sqrt(252)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
