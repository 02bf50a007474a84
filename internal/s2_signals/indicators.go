package s2_signals

import "fmt"

// SMA returns the mean of the last period values (all values when fewer)
func SMA(values []float64, period int) (float64, error) {
	if len(values) == 0 || period <= 0 {
		return 0, ErrInsufficientData
	}
	if period > len(values) {
		period = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// Return is the k-bar simple return of the last value
func Return(values []float64, k int) (float64, error) {
	if k <= 0 || len(values) < k+1 {
		return 0, ErrInsufficientData
	}
	base := values[len(values)-1-k]
	if base == 0 {
		return 0, fmt.Errorf("zero base %d bars back", k)
	}
	return (values[len(values)-1] - base) / base, nil
}

// WilderRSI computes the RSI of the last value with Wilder smoothing.
// The averages are seeded with the simple mean of the first period
// deltas, then updated as (prev·(period−1) + x) / period.
// Needs at least period+1 values.
func WilderRSI(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period+1 {
		return 0, ErrInsufficientData
	}

	gain := func(d float64) float64 {
		if d > 0 {
			return d
		}
		return 0
	}
	loss := func(d float64) float64 {
		if d < 0 {
			return -d
		}
		return 0
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		avgGain += gain(d)
		avgLoss += loss(d)
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		avgGain = (avgGain*(p-1) + gain(d)) / p
		avgLoss = (avgLoss*(p-1) + loss(d)) / p
	}

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50, nil // 변동 없음
	case avgLoss == 0:
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
