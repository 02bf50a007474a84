package s0_data

import (
	"context"
	"sort"
	"time"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// BarSet is a loaded block of daily bars plus reference data, used to
// drive the paper/backtest market
type BarSet struct {
	Bars         map[string][]contracts.Bar      // symbol → bars, oldest first
	Instruments  map[string]contracts.Instrument // symbol → instrument
	Constituents map[string][]string             // index → member symbols
}

// NewBarSet creates an empty set
func NewBarSet() *BarSet {
	return &BarSet{
		Bars:         make(map[string][]contracts.Bar),
		Instruments:  make(map[string]contracts.Instrument),
		Constituents: make(map[string][]string),
	}
}

// Symbols returns the symbols that have bars, sorted
func (s *BarSet) Symbols() []string {
	out := make([]string, 0, len(s.Bars))
	for sym := range s.Bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// TradingDays returns the distinct bar dates within [from, to], ascending
func (s *BarSet) TradingDays(from, to time.Time) []time.Time {
	seen := make(map[string]time.Time)
	for _, bars := range s.Bars {
		for _, b := range bars {
			if b.Time.Before(from) || b.Time.After(to) {
				continue
			}
			seen[b.Time.Format("2006-01-02")] = b.Time
		}
	}
	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Sort orders every series by time
func (s *BarSet) Sort() {
	for sym := range s.Bars {
		bars := s.Bars[sym]
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	}
}

// BarSource loads a BarSet for [from, to]
type BarSource interface {
	Load(ctx context.Context, from, to time.Time) (*BarSet, error)
}

// dateIn re-anchors a calendar date at midnight in loc
func dateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
