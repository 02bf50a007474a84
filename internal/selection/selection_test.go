package selection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s1_universe"
)

// fakeUniverse records the requested size
type fakeUniverse struct {
	symbols   []string
	requested int
	err       error
}

func (f *fakeUniverse) Name() string { return "fake" }

func (f *fakeUniverse) Symbols(ctx context.Context, size int) ([]string, error) {
	f.requested = size
	if f.err != nil {
		return nil, f.err
	}
	if len(f.symbols) > size {
		return f.symbols[:size], nil
	}
	return f.symbols, nil
}

// fakeSeries serves closes per symbol
type fakeSeries map[string][]float64

func (f fakeSeries) History(ctx context.Context, symbol string, count int) ([]contracts.Bar, error) {
	closes, ok := f[symbol]
	if !ok {
		return nil, s0_data.ErrNoData
	}
	if len(closes) > count {
		closes = closes[len(closes)-count:]
	}
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.Bar{Time: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), Close: c}
	}
	return bars, nil
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func geometric(n int, start, rate float64) []float64 {
	out := make([]float64, n)
	out[0] = start
	for i := 1; i < n; i++ {
		out[i] = out[i-1] * (1 + rate)
	}
	return out
}

func TestScorers_Bounds(t *testing.T) {
	series := map[string][]float64{
		"flat":       linear(30, 10, 0),
		"rally":      geometric(30, 10, 0.10),
		"crash":      geometric(30, 100, -0.10),
		"gentle":     linear(30, 100, 0.1),
		"choppy":     {10, 12, 9, 13, 8, 14, 7, 15, 6, 16, 5, 17, 4, 18, 3, 19, 2, 20, 1, 21, 10, 12, 9, 13, 8, 14, 7, 15, 6, 16},
		"short_tail": linear(10, 50, -1),
	}

	for _, scorer := range []Scorer{Momentum{}, MeanReversion{}, Volatility{}} {
		for name, closes := range series {
			t.Run(scorer.Name()+"/"+name, func(t *testing.T) {
				score, err := scorer.Score(closes)
				if err != nil {
					assert.ErrorIs(t, err, ErrInsufficientData)
					assert.Equal(t, NeutralScore, score)
					return
				}
				assert.GreaterOrEqual(t, score, MinScore)
				assert.LessOrEqual(t, score, MaxScore)
			})
		}
	}
}

func TestMomentum_Score(t *testing.T) {
	// 10 bars: 5 일 수익률만 계산 가능
	score, err := Momentum{}.Score(linear(10, 100, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.5+3*(5.0/104.0), score, 1e-9)

	// 11 bars: 5/10 일 평균
	score, err = Momentum{}.Score(linear(11, 100, 1))
	require.NoError(t, err)
	want := 0.5 + 3*((110.0-105.0)/105.0+(110.0-100.0)/100.0)/2
	assert.InDelta(t, want, score, 1e-9)

	_, err = Momentum{}.Score(linear(9, 100, 1))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMeanReversion_Score(t *testing.T) {
	score, err := MeanReversion{}.Score(linear(20, 10, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)

	// 하락 추세 → 이동평균 아래 → 0.5 이상
	score, err = MeanReversion{}.Score(linear(25, 100, -1))
	require.NoError(t, err)
	assert.Greater(t, score, 0.5)

	_, err = MeanReversion{}.Score(linear(19, 10, 0))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestVolatility_Score(t *testing.T) {
	// ±a 교대 수익률 20 개: 평균 0, 모표준편차 a
	a := IdealVolatility / math.Sqrt(252)
	closes := []float64{100}
	for i := 0; i < 20; i++ {
		r := a
		if i%2 == 1 {
			r = -a
		}
		closes = append(closes, closes[len(closes)-1]*(1+r))
	}

	score, err := Volatility{}.Score(closes)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)

	// 변동성 0 → 하한
	score, err = Volatility{}.Score(linear(20, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, MinScore, score)
}

func TestAnnualizedVolatility_Population(t *testing.T) {
	// [1, -1]: ddof=0 → std 1
	assert.InDelta(t, math.Sqrt(252), AnnualizedVolatility([]float64{1, -1}), 1e-9)
	assert.Zero(t, AnnualizedVolatility(nil))
}

func TestSelector_RanksAndTruncates(t *testing.T) {
	universe := &fakeUniverse{symbols: []string{"A", "B", "C", "D", "E"}}
	data := fakeSeries{
		"A": linear(20, 100, -1),
		"B": geometric(20, 10, 0.02),
		"C": linear(20, 100, 0),
		"D": geometric(20, 10, 0.01),
	}

	policy := NewSelector(Momentum{}, universe, data, nil)
	got, err := policy.Select(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 6, universe.requested, "2×poolSize requested")
	require.Len(t, got, 3)
	assert.Equal(t, "B", got[0].Symbol)
	assert.Equal(t, "D", got[1].Symbol)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	assert.NotZero(t, got[0].CurrentPrice)
	assert.Len(t, got[0].History, 20)
}

func TestSelector_StableTies(t *testing.T) {
	universe := &fakeUniverse{symbols: []string{"X", "Y", "Z"}}
	// 데이터 없음 → 모두 0.5, 입력 순서 유지
	policy := NewSelector(Volatility{}, universe, fakeSeries{}, nil)

	got, err := policy.Select(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"X", "Y", "Z"}, []string{got[0].Symbol, got[1].Symbol, got[2].Symbol})
	for _, info := range got {
		assert.Equal(t, NeutralScore, info.Score)
	}
}

func TestSelector_UnscorableSymbols(t *testing.T) {
	t.Run("blank symbols dropped", func(t *testing.T) {
		universe := &fakeUniverse{symbols: []string{" ", "", "\t"}}
		policy := NewSelector(Momentum{}, universe, fakeSeries{}, nil)

		got, err := policy.Select(context.Background(), 2)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing history kept at neutral", func(t *testing.T) {
		universe := &fakeUniverse{symbols: []string{" A ", "", "B"}}
		data := fakeSeries{"B": linear(3, 10, 1)} // 모멘텀 lookback 부족 → 중립

		got, err := NewSelector(Momentum{}, universe, data, nil).Select(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"A", "B"}, []string{got[0].Symbol, got[1].Symbol})
		for _, info := range got {
			assert.Equal(t, NeutralScore, info.Score)
		}
		assert.Zero(t, got[0].CurrentPrice)
		assert.Equal(t, 12.0, got[1].CurrentPrice)
	})
}

func TestSelector_EmptyUniverse(t *testing.T) {
	policy := NewSelector(Momentum{}, &fakeUniverse{}, fakeSeries{}, nil)
	got, err := policy.Select(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	boom := errors.New("boom")
	policy = NewSelector(Momentum{}, &fakeUniverse{err: boom}, fakeSeries{}, nil)
	_, err = policy.Select(context.Background(), 10)
	assert.ErrorIs(t, err, boom)
}

func TestNew_Factory(t *testing.T) {
	for _, kind := range Types {
		t.Run(kind, func(t *testing.T) {
			p, err := New(kind, &fakeUniverse{}, fakeSeries{}, nil)
			require.NoError(t, err)
			assert.Equal(t, kind, p.Name())
		})
	}

	_, err := New("alpha", &fakeUniverse{}, fakeSeries{}, nil)
	assert.Error(t, err)
}

func TestSelector_WithDataManager(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	m := contracts.NewMockMarket(now, 0)
	for _, sym := range s1_universe.DefaultFixedSymbols {
		m.SetCloses(sym, geometric(25, 50, 0.005))
	}
	m.SetCloses("SHSE.600036", geometric(25, 50, 0.03))

	mgr := s0_data.NewManager(m, m, nil, nil)
	policy, err := New(TypeMomentum, s1_universe.NewFixedProvider(nil, nil), mgr, nil)
	require.NoError(t, err)

	got, err := policy.Select(context.Background(), 300)
	require.NoError(t, err)
	require.Len(t, got, len(s1_universe.DefaultFixedSymbols))
	assert.Equal(t, "SHSE.600036", got[0].Symbol)
}
