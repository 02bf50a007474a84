package audit

import (
	"context"
	"errors"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// SnapshotRecorder receives end-of-day snapshots
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error
}

// TradeRecorder receives completed trades
type TradeRecorder interface {
	RecordTrade(ctx context.Context, trade contracts.TradeRecord) error
}

// SelectionRecorder receives the daily selection
type SelectionRecorder interface {
	RecordSelection(ctx context.Context, date string, selected []contracts.InstrumentInfo) error
}

// Recorder fans every event out to all targets that accept it.
// A failing target is logged and does not stop the others.
type Recorder struct {
	targets []interface{}
	logger  *logger.Logger
}

// NewRecorder creates a fan-out recorder; nil targets are skipped
func NewRecorder(log *logger.Logger, targets ...interface{}) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	r := &Recorder{logger: log.Component("recorder")}
	for _, t := range targets {
		r.Add(t)
	}
	return r
}

// Add registers one more target
func (r *Recorder) Add(target interface{}) {
	switch t := target.(type) {
	case nil:
		return
	case *Repository:
		if t == nil {
			return
		}
	case *Publisher:
		if t == nil {
			return
		}
	case *Analyzer:
		if t == nil {
			return
		}
	}
	r.targets = append(r.targets, target)
}

// RecordSnapshot forwards to every snapshot target
func (r *Recorder) RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	var errs []error
	for _, t := range r.targets {
		if s, ok := t.(SnapshotRecorder); ok {
			if err := s.RecordSnapshot(ctx, snap); err != nil {
				r.logger.WithError(err).WithField("date", snap.Date).Warn("Snapshot target failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordTrade forwards to every trade target
func (r *Recorder) RecordTrade(ctx context.Context, trade contracts.TradeRecord) error {
	var errs []error
	for _, t := range r.targets {
		if s, ok := t.(TradeRecorder); ok {
			if err := s.RecordTrade(ctx, trade); err != nil {
				r.logger.WithError(err).Symbol(trade.Symbol).Warn("Trade target failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordSelection forwards to every selection target
func (r *Recorder) RecordSelection(ctx context.Context, date string, selected []contracts.InstrumentInfo) error {
	var errs []error
	for _, t := range r.targets {
		if s, ok := t.(SelectionRecorder); ok {
			if err := s.RecordSelection(ctx, date, selected); err != nil {
				r.logger.WithError(err).WithField("date", date).Warn("Selection target failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
