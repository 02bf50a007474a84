package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wangshuile/jb-quant/internal/api"
	"github.com/wangshuile/jb-quant/internal/api/handlers"
	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/backtest"
	"github.com/wangshuile/jb-quant/internal/brain"
	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/scheduler"
	"github.com/wangshuile/jb-quant/internal/scheduler/jobs"
)

// runCmd hosts the daily phases on cron over the paper market
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "페이퍼 시장 위에서 일중 4구간 스케줄 구동",
	Long: `전략 설정의 스케줄대로 market_open / midday / afternoon / market_close
구간을 평일 cron 으로 실행합니다.

시장은 일봉 기반 페이퍼 시뮬레이터이며 실시간 시계를 따릅니다.
일봉은 MARKET_DATA_DIR(CSV) 또는 DATABASE_URL 에서 읽고, 매일 장 시작 전
bar_refresh 잡이 다시 적재합니다.

Endpoints (METRICS_PORT):
  GET /healthz            - 엔진 상태 (halt 시 503)
  GET /metrics            - Prometheus
  GET /api/performance    - 누적 성과
  GET /api/account        - 페이퍼 계좌
  GET /api/jobs           - 스케줄 잡 통계

Example:
  go run ./cmd/quant run
  go run ./cmd/quant run --data testdata/market --retries 2`,
	RunE: runPaper,
}

var (
	runDataDir         string
	runRetries         int
	runRetryDelay      time.Duration
	runRefreshSchedule string
	runRefreshFailures int
	runShutdownTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDataDir, "data", "", "CSV bar directory (default $MARKET_DATA_DIR)")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "phase retry count on transient errors")
	runCmd.Flags().DurationVar(&runRetryDelay, "retry-delay", 30*time.Second, "delay between retries")
	runCmd.Flags().StringVar(&runRefreshSchedule, "refresh", "0 15 9 * * MON-FRI", "bar refresh cron (with seconds)")
	runCmd.Flags().IntVar(&runRefreshFailures, "refresh-failures", 3, "consecutive bar refresh failures before halting (0 = never)")
	runCmd.Flags().DurationVar(&runShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
}

func runPaper(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Bootstrap (config, logger, strategy, stores)
	a, err := bootstrap(ctx, storesOptional)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log.Component("run")

	// 2. Paper market over recent bars
	source, err := a.barSource(runDataDir)
	if err != nil {
		return err
	}
	clock := contracts.SystemClock{Location: a.loc}
	now := clock.Now()
	set, err := source.Load(ctx, now.AddDate(0, 0, -backtest.WarmupDays), now)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	bt := a.strategy.Backtest
	sim := backtest.NewSimulator(set, backtest.SimConfig{
		InitialCash:      bt.InitialCash,
		CommissionRatio:  bt.CommissionRatio,
		SlippageRatio:    bt.SlippageRatio,
		TransactionRatio: bt.TransactionRatio,
	}, a.loc, a.log)
	sim.FollowClock(clock)

	// 3. Orchestrator
	orch, err := brain.Build(a.strategy, brain.Deps{
		Market:    sim,
		Clock:     sim,
		Cache:     a.cache,
		Metrics:   a.metrics,
		Logger:    a.log,
		RateLimit: a.cfg.Market.RateLimit,
		Burst:     a.cfg.Market.Burst,
	})
	if err != nil {
		return err
	}
	sim.OnOrder(func(ctx context.Context, ev contracts.OrderEvent) {
		_ = orch.OnOrderStatus(ctx, ev)
	})

	analyzer := audit.NewAnalyzer(a.log)
	orch.AddSink(analyzer)
	orch.AddSink(a.recorder())

	if err := orch.Init(ctx); err != nil {
		return err
	}

	// 4. Scheduler
	sched := scheduler.New(scheduler.Options{
		Location:   a.loc,
		MaxRetries: runRetries,
		RetryDelay: runRetryDelay,
	}, a.log)

	phaseJobs, err := jobs.PhaseJobs(orch, a.strategy.Schedule, a.log)
	if err != nil {
		return err
	}
	for _, job := range phaseJobs {
		if err := sched.AddJob(job); err != nil {
			return err
		}
	}
	refresh := jobs.NewBarRefreshJob(source, sim, backtest.WarmupDays, runRefreshSchedule, clock.Now, a.log)
	// 오래된 일봉으로 매매하지 않도록 연속 실패 시 엔진 정지
	refresh.OnExhausted(runRefreshFailures, func(err error) {
		orch.OnError(brain.CodeBarRefresh, err.Error())
	})
	if err := sched.AddJob(refresh); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	// 5. HTTP (health, metrics, status)
	var metricsHandler http.Handler
	if a.cfg.MetricsEnabled {
		metricsHandler = a.metrics.Handler()
	}
	status := handlers.NewStatusHandler(orch, analyzer, sched, sim, a.log)
	server := api.New(a.cfg.MetricsPort, a.log, api.NewRouter(status, metricsHandler, a.log))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.WithFields(map[string]interface{}{
		"strategy_id": a.strategy.Meta.StrategyID,
		"symbols":     len(set.Symbols()),
		"jobs":        sched.GetAllJobs(),
		"port":        a.cfg.MetricsPort,
	}).Info("Paper trading started")

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			orch.OnError(brain.CodeServer, err.Error())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown failed")
	}

	perf := orch.Performance()
	log.WithFields(map[string]interface{}{
		"trades":       perf.TradeCount,
		"win_rate":     perf.WinRate,
		"total_return": perf.TotalReturn,
		"halted":       orch.Halted(),
	}).Info("Paper trading stopped")
	return nil
}
