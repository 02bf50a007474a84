package s2_signals

import (
	"context"
	"errors"
	"strings"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// ErrInsufficientData is returned by indicators when the series is too short
var ErrInsufficientData = errors.New("insufficient history")

// Timing policy tags
const (
	TypeDisabled      = "disabled"
	TypeMovingAverage = "ma"
	TypeMomentum      = "momentum"
	TypeRSI           = "rsi"
)

// Policy maps a symbol's recent history to a buy/sell/reduce signal.
// Any shortfall or failure yields contracts.NeutralSignal (buy allowed).
type Policy interface {
	Signal(ctx context.Context, symbol string) contracts.Signal
	Name() string
}

// SeriesSource is the data manager as seen by timing
type SeriesSource interface {
	History(ctx context.Context, symbol string, count int) ([]contracts.Bar, error)
}

// New builds the policy named by kind. enabled=false or an unknown tag
// selects Disabled.
// ⭐ SSOT: 타이밍 정책 선택은 여기서만
func New(kind string, enabled bool, data SeriesSource, log *logger.Logger) Policy {
	if log == nil {
		log = logger.Nop()
	}
	if !enabled {
		return Disabled{}
	}

	base := timingBase{data: data}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TypeMovingAverage, "moving_average":
		base.logger = log.Component("timing").WithField("policy", TypeMovingAverage)
		return &MovingAverage{timingBase: base}
	case TypeMomentum:
		base.logger = log.Component("timing").WithField("policy", TypeMomentum)
		return &Momentum{timingBase: base}
	case TypeRSI:
		base.logger = log.Component("timing").WithField("policy", TypeRSI)
		return &RSI{timingBase: base, Period: DefaultRSIPeriod}
	default:
		log.Component("timing").WithField("type", kind).Warn("unknown timing type, timing disabled")
		return Disabled{}
	}
}

// Disabled always allows buying
type Disabled struct{}

// Name implements Policy
func (Disabled) Name() string { return TypeDisabled }

// Signal implements Policy
func (Disabled) Signal(ctx context.Context, symbol string) contracts.Signal {
	return contracts.NeutralSignal
}

// timingBase fetches closes and logs failures
type timingBase struct {
	data   SeriesSource
	logger *logger.Logger
}

// closes returns at most count closes, or ok=false when fewer than min
func (b timingBase) closes(ctx context.Context, symbol string, count, min int) ([]float64, bool) {
	bars, err := b.data.History(ctx, symbol, count)
	if err != nil || len(bars) < min {
		return nil, false
	}
	return contracts.Closes(bars), true
}

func (b timingBase) fail(symbol string, err error) contracts.Signal {
	b.logger.Symbol(symbol).WithError(err).Debug("timing fell back to neutral")
	return contracts.NeutralSignal
}
