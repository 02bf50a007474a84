package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/strategyconfig"
	"github.com/wangshuile/jb-quant/pkg/config"
	"github.com/wangshuile/jb-quant/pkg/database"
	"github.com/wangshuile/jb-quant/pkg/logger"
	"github.com/wangshuile/jb-quant/pkg/metrics"
	"github.com/wangshuile/jb-quant/pkg/redis"
)

// app bundles the process-level collaborators every command starts from
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	strategy *strategyconfig.Config
	yaml     []byte
	loc      *time.Location

	db      *database.DB // DATABASE_URL 미설정 시 nil
	redis   *redis.Client
	cache   *redis.Cache
	metrics *metrics.Recorder
}

// storeMode selects which optional stores bootstrap connects
type storeMode int

const (
	storesNone storeMode = iota
	storesOptional
)

// bootstrap loads env config, logger and strategy YAML, then connects the
// optional stores. A store that is configured but unreachable is an error.
func bootstrap(ctx context.Context, mode storeMode) (*app, error) {
	if env != "" {
		if err := os.Setenv("ENV", env); err != nil {
			return nil, fmt.Errorf("set ENV: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if configFile != "" {
		cfg.StrategyFile = configFile
	}

	log := logger.New(cfg)

	strategy, data, err := strategyconfig.Load(cfg.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", cfg.StrategyFile, err)
	}
	loc, err := strategy.Location()
	if err != nil {
		return nil, err
	}
	log = log.Strategy(strategy.Meta.StrategyID)
	for _, w := range strategyconfig.Warn(strategy) {
		log.WithFields(map[string]interface{}{
			"code":    w.Code,
			"message": w.Message,
		}).Warn("Strategy config warning")
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		strategy: strategy,
		yaml:     data,
		loc:      loc,
		metrics:  metrics.New(),
	}

	if mode == storesNone {
		return a, nil
	}

	if cfg.Database.Enabled() {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.db = db
		log.Info("Connected to database")
	}

	rc, err := redis.New(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rc
	a.cache = redis.NewCache(rc)
	if rc.Enabled() {
		log.WithField("prefix", rc.Prefix()).Info("Connected to redis")
	}

	return a, nil
}

// close releases the stores opened by bootstrap
func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// barSource prefers the database when configured, else the CSV directory
func (a *app) barSource(dir string) (s0_data.BarSource, error) {
	if dir == "" {
		dir = a.cfg.Market.DataDir
	}
	if dir != "" {
		return s0_data.NewCSVSource(dir, a.loc), nil
	}
	if a.db != nil {
		return s0_data.NewPriceRepository(a.db.Pool, a.loc), nil
	}
	return nil, fmt.Errorf("no bar source: set MARKET_DATA_DIR, --data or DATABASE_URL")
}

// repository returns the report repository, nil without a database
func (a *app) repository() *audit.Repository {
	if a.db == nil {
		return nil
	}
	return audit.NewRepository(a.db.Pool, a.strategy.Meta.StrategyID)
}

// publisher returns the redis state publisher, nil when redis is disabled
func (a *app) publisher() *audit.Publisher {
	if !a.cache.Enabled() {
		return nil
	}
	return audit.NewPublisher(a.cache, a.strategy.Meta.StrategyID)
}

// recorder fans snapshots out to the configured stores
func (a *app) recorder() *audit.Recorder {
	return audit.NewRecorder(a.log, a.repository(), a.publisher())
}
