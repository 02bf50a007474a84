package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s0_data/quality"
	"github.com/wangshuile/jb-quant/internal/scheduler"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// BarReceiver accepts a freshly loaded bar set
type BarReceiver interface {
	Replace(set *s0_data.BarSet)
}

// BarRefreshJob reloads daily bars into the paper market before the open
// ⭐ SSOT: 페이퍼 시장 일봉 갱신 스케줄은 이 Job에서만
type BarRefreshJob struct {
	source   s0_data.BarSource
	receiver BarReceiver
	gate     *quality.Gate
	lookback int // 일 (calendar days)
	schedule string
	now      func() time.Time
	logger   *logger.Logger

	mu          sync.Mutex
	failures    int // 연속 실패 횟수
	maxFailures int // 0 = 무제한
	onExhausted func(err error)
}

// NewBarRefreshJob creates a refresh job on the given cron schedule
func NewBarRefreshJob(source s0_data.BarSource, receiver BarReceiver, lookbackDays int, schedule string, now func() time.Time, log *logger.Logger) *BarRefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &BarRefreshJob{
		source:   source,
		receiver: receiver,
		gate:     quality.NewGate(quality.Config{}),
		lookback: lookbackDays,
		schedule: schedule,
		now:      now,
		logger:   log.Component("bar_refresh"),
	}
}

// OnExhausted calls fn once maxFailures consecutive runs have failed.
// Later runs return a permanent error until one succeeds.
func (j *BarRefreshJob) OnExhausted(maxFailures int, fn func(err error)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.maxFailures = maxFailures
	j.onExhausted = fn
}

// Name returns the job name
func (j *BarRefreshJob) Name() string {
	return "bar_refresh"
}

// Schedule returns the cron schedule
func (j *BarRefreshJob) Schedule() string {
	return j.schedule
}

// Run loads [now−lookback, now], validates it and hands it over
func (j *BarRefreshJob) Run(ctx context.Context) error {
	err := j.refresh(ctx)
	if ctx.Err() != nil {
		return err
	}

	j.mu.Lock()
	if err == nil {
		j.failures = 0
		j.mu.Unlock()
		return nil
	}
	j.failures++
	failures := j.failures
	exhausted := j.maxFailures > 0 && failures >= j.maxFailures
	fire := exhausted && failures == j.maxFailures
	fn := j.onExhausted
	j.mu.Unlock()

	if !exhausted {
		return err
	}
	if fire {
		j.logger.WithError(err).WithField("failures", failures).Error("Bar refresh exhausted")
		if fn != nil {
			fn(err)
		}
	}
	return scheduler.Permanent(err)
}

func (j *BarRefreshJob) refresh(ctx context.Context) error {
	to := j.now()
	from := to.AddDate(0, 0, -j.lookback)

	set, err := j.source.Load(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	report := j.gate.Check(set)
	if report.ValidSymbols == 0 {
		return fmt.Errorf("no valid bars between %s and %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	j.receiver.Replace(set)

	j.logger.WithFields(map[string]interface{}{
		"symbols":       report.ValidSymbols,
		"dropped_bars":  report.DroppedBars,
		"quality_score": report.QualityScore,
	}).Info("Bars refreshed")
	return nil
}
