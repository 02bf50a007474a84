package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wangshuile/jb-quant/internal/brain"
	"github.com/wangshuile/jb-quant/internal/scheduler"
	"github.com/wangshuile/jb-quant/internal/strategyconfig"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// PhaseRunner runs one orchestrator phase by name
type PhaseRunner interface {
	RunPhase(ctx context.Context, name string) error
}

// PhaseJob triggers one orchestrator phase at a wall-clock time on weekdays
// ⭐ SSOT: 일중 단계 트리거는 이 Job에서만
type PhaseJob struct {
	runner PhaseRunner
	phase  string
	at     time.Time
	logger *logger.Logger
}

// NewPhaseJob creates a phase job firing at HH:MM:SS
func NewPhaseJob(runner PhaseRunner, phase, at string, log *logger.Logger) (*PhaseJob, error) {
	t, err := time.Parse(strategyconfig.ClockLayout, at)
	if err != nil {
		return nil, fmt.Errorf("phase %s: invalid clock %q: %w", phase, at, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PhaseJob{
		runner: runner,
		phase:  phase,
		at:     t,
		logger: log.Component("phase_job").WithField("phase", phase),
	}, nil
}

// PhaseJobs builds the four daily phase jobs from the schedule section
func PhaseJobs(runner PhaseRunner, schedule strategyconfig.Schedule, log *logger.Logger) ([]*PhaseJob, error) {
	out := make([]*PhaseJob, 0, 4)
	for _, p := range schedule.Phases() {
		job, err := NewPhaseJob(runner, p.Phase, p.At, log)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Name returns the job name
func (j *PhaseJob) Name() string {
	return "phase_" + j.phase
}

// Schedule returns the cron schedule (weekdays at the configured second)
func (j *PhaseJob) Schedule() string {
	return fmt.Sprintf("%d %d %d * * MON-FRI", j.at.Second(), j.at.Minute(), j.at.Hour())
}

// Run executes the phase. A halted or uninitialized orchestrator is not retried.
func (j *PhaseJob) Run(ctx context.Context) error {
	err := j.runner.RunPhase(ctx, j.phase)
	if errors.Is(err, brain.ErrHalted) || errors.Is(err, brain.ErrNotInitialized) {
		j.logger.WithError(err).Error("Phase skipped")
		return scheduler.Permanent(err)
	}
	return err
}
