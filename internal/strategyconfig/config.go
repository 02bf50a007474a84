package strategyconfig

import (
	"fmt"
	"time"
)

// Layouts used by the schedule and backtest sections
const (
	ClockLayout    = "15:04:05"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Config는 일간 매매 전략의 전체 설정
// ⭐ SSOT: 정책 선택과 파라미터는 이 구조체에서만 읽음
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Selection Selection `yaml:"selection" json:"selection"`
	Timing    Timing    `yaml:"timing" json:"timing"`
	Risk      Risk      `yaml:"risk" json:"risk"`
	Execution Execution `yaml:"execution" json:"execution"`
	Schedule  Schedule  `yaml:"schedule" json:"schedule"`
	Backtest  Backtest  `yaml:"backtest" json:"backtest"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id" default:"jb_quant_daily" validate:"required"`
	Name       string `yaml:"name" json:"name"`
	Mode       string `yaml:"mode" json:"mode" default:"BACKTEST" validate:"oneof=BACKTEST LIVE"`
	Timezone   string `yaml:"timezone" json:"timezone" default:"Asia/Shanghai" validate:"required"`
	Benchmark  string `yaml:"benchmark" json:"benchmark" default:"SHSE.000300"`
}

// Universe S1: 후보 종목 풀
type Universe struct {
	Type      string   `yaml:"type" json:"type" default:"fixed" validate:"oneof=fixed index"`
	Index     string   `yaml:"index" json:"index" default:"SHSE.000300"`
	Symbols   []string `yaml:"symbols" json:"symbols"` // fixed 전용
	BlackList []string `yaml:"black_list" json:"black_list"`
}

// Selection 점수화 정책
type Selection struct {
	Type         string `yaml:"type" json:"type" default:"momentum" validate:"oneof=momentum mean_reversion volatility"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size" default:"300" validate:"gte=1"`
	MaxPositions int    `yaml:"max_positions" json:"max_positions" default:"3" validate:"gte=1"`
}

// Timing S2: 매수 타이밍
// 알 수 없는 type 은 disabled 로 처리되므로 oneof 검사를 하지 않음
type Timing struct {
	Enabled bool   `yaml:"enabled" json:"enabled" default:"true"`
	Type    string `yaml:"type" json:"type" default:"ma"`
}

// Risk 포지션 한도와 청산 규칙
type Risk struct {
	Type               string  `yaml:"type" json:"type" default:"base" validate:"oneof=base conservative aggressive"`
	MaxPositionRatio   float64 `yaml:"max_position_ratio" json:"max_position_ratio" default:"0.34" validate:"gt=0,lte=1"`
	TotalPositionRatio float64 `yaml:"total_position_ratio" json:"total_position_ratio" default:"1" validate:"gt=0,lte=1"`
	StopLossRate       float64 `yaml:"stop_loss_rate" json:"stop_loss_rate" default:"-0.08" validate:"lt=0,gt=-1"`
	StopProfitRate     float64 `yaml:"stop_profit_rate" json:"stop_profit_rate" default:"0.15" validate:"gt=0"`
	TrailingStopRate   float64 `yaml:"trailing_stop_rate" json:"trailing_stop_rate" default:"0.05" validate:"gt=0,lt=1"`
}

// Execution 주문 집행
type Execution struct {
	Type         string  `yaml:"type" json:"type" default:"base" validate:"oneof=base market limit vwap"`
	LotSize      int64   `yaml:"lot_size" json:"lot_size" default:"100" validate:"gte=1"`
	CashReserve  float64 `yaml:"cash_reserve" json:"cash_reserve" default:"0.05" validate:"gte=0,lt=1"`
	LimitMarkup  float64 `yaml:"limit_markup" json:"limit_markup" default:"0.002" validate:"gte=0"`
	VWAPSessions int     `yaml:"vwap_sessions" json:"vwap_sessions" default:"5" validate:"gte=1"`
	TickSize     float64 `yaml:"tick_size" json:"tick_size" default:"0.01" validate:"gt=0"`
}

// Schedule 일중 단계 실행 시각 (HH:MM:SS, 전략 타임존)
type Schedule struct {
	MarketOpen   string `yaml:"market_open" json:"market_open" default:"09:30:00"`
	Midday       string `yaml:"midday" json:"midday" default:"11:00:00"`
	Afternoon    string `yaml:"afternoon" json:"afternoon" default:"13:30:00"`
	MarketClose  string `yaml:"market_close" json:"market_close" default:"14:55:00"`
	TradingStart string `yaml:"trading_start" json:"trading_start" default:"09:30:00"`
	TradingEnd   string `yaml:"trading_end" json:"trading_end" default:"14:55:00"`
}

// Backtest 백테스트 설정
type Backtest struct {
	Start            string  `yaml:"start" json:"start" default:"2019-01-01 08:00:00"`
	End              string  `yaml:"end" json:"end" default:"2025-12-23 16:00:00"`
	InitialCash      float64 `yaml:"initial_cash" json:"initial_cash" default:"1000000" validate:"gt=0"`
	CommissionRatio  float64 `yaml:"commission_ratio" json:"commission_ratio" default:"0.0003" validate:"gte=0,lt=1"`
	SlippageRatio    float64 `yaml:"slippage_ratio" json:"slippage_ratio" default:"0.0001" validate:"gte=0,lt=1"`
	TransactionRatio float64 `yaml:"transaction_ratio" json:"transaction_ratio" default:"1" validate:"gt=0,lte=1"`
}

// Location resolves Meta.Timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Meta.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Meta.Timezone, err)
	}
	return loc, nil
}

// Phases returns the four phase triggers in execution order
func (s Schedule) Phases() []PhaseTime {
	return []PhaseTime{
		{Phase: "market_open", At: s.MarketOpen},
		{Phase: "midday", At: s.Midday},
		{Phase: "afternoon", At: s.Afternoon},
		{Phase: "market_close", At: s.MarketClose},
	}
}

// PhaseTime binds a phase name to a wall-clock trigger
type PhaseTime struct {
	Phase string
	At    string // HH:MM:SS
}

// InWindow reports whether now's wall-clock time lies in [TradingStart, TradingEnd]
func (s Schedule) InWindow(now time.Time) bool {
	clock := now.Format(ClockLayout)
	// HH:MM:SS 는 사전순 비교가 시간순과 동일
	return s.TradingStart <= clock && clock <= s.TradingEnd
}

// Range parses the backtest range in loc
// 형식 오류나 start >= end 는 FatalInitError
func (b Backtest) Range(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	start, err := time.ParseInLocation(DateTimeLayout, b.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, &FatalInitError{Op: "backtest.start", Err: err}
	}
	end, err := time.ParseInLocation(DateTimeLayout, b.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, &FatalInitError{Op: "backtest.end", Err: err}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, &FatalInitError{
			Op:  "backtest",
			Err: fmt.Errorf("start %s must be before end %s", b.Start, b.End),
		}
	}
	return start, end, nil
}

// DecisionSnapshot 설정 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	CreatedAt  time.Time `json:"created_at"`
}
