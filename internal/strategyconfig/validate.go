package strategyconfig

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FatalInitError aborts startup (malformed backtest range, unloadable timezone)
type FatalInitError struct {
	Op  string
	Err error
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("fatal init %s: %v", e.Op, e.Err)
}

func (e *FatalInitError) Unwrap() error {
	return e.Err
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var (
	validate = newValidator()
	clockRe  = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
)

// newValidator reports fields by their yaml names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === 태그 규칙 ===
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return toValidationError(fieldErrs[0])
		}
		return err
	}

	// === Meta ===
	loc, err := cfg.Location()
	if err != nil {
		return &FatalInitError{Op: "meta.timezone", Err: err}
	}

	// === Universe ===
	if cfg.Universe.Type == "index" && cfg.Universe.Index == "" {
		return ValidationError{"universe.index", "required when type is index"}
	}

	// === Schedule ===
	s := cfg.Schedule
	clocks := []struct {
		field string
		value string
	}{
		{"schedule.market_open", s.MarketOpen},
		{"schedule.midday", s.Midday},
		{"schedule.afternoon", s.Afternoon},
		{"schedule.market_close", s.MarketClose},
		{"schedule.trading_start", s.TradingStart},
		{"schedule.trading_end", s.TradingEnd},
	}
	for _, c := range clocks {
		if err := validateClock(c.value); err != nil {
			return ValidationError{c.field, err.Error()}
		}
	}
	if s.TradingStart >= s.TradingEnd {
		return ValidationError{"schedule", "trading_start must be before trading_end"}
	}

	// === Backtest ===
	if _, _, err := cfg.Backtest.Range(loc); err != nil {
		return err
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 단일 종목 상한 × 최대 보유 수가 전체 상한에 못 미침
	if cfg.Risk.MaxPositionRatio*float64(cfg.Selection.MaxPositions) < cfg.Risk.TotalPositionRatio {
		warnings = append(warnings, Warning{
			Code:    "IDLE_CASH",
			Message: "max_position_ratio × max_positions < total_position_ratio: 현금이 남음",
		})
	}

	// 익절이 트레일링보다 먼저 걸림
	if cfg.Risk.StopProfitRate <= cfg.Risk.TrailingStopRate {
		warnings = append(warnings, Warning{
			Code:    "TRAILING_UNREACHABLE",
			Message: "stop_profit_rate <= trailing_stop_rate: 트레일링 스톱이 거의 발동하지 않음",
		})
	}

	// 후보 수가 보유 한도보다 작음
	if cfg.Selection.PoolSize < cfg.Selection.MaxPositions {
		warnings = append(warnings, Warning{
			Code:    "SMALL_POOL",
			Message: "pool_size < max_positions",
		})
	}

	// 장중 단계가 매매 구간 밖
	for _, p := range []PhaseTime{{"midday", cfg.Schedule.Midday}, {"afternoon", cfg.Schedule.Afternoon}} {
		if p.At < cfg.Schedule.TradingStart || p.At > cfg.Schedule.TradingEnd {
			warnings = append(warnings, Warning{
				Code:    "PHASE_OUTSIDE_WINDOW",
				Message: fmt.Sprintf("%s (%s) 는 매매 구간 밖이라 건너뜀", p.Phase, p.At),
			})
		}
	}

	return warnings
}

// === Helper Functions ===

func validateClock(s string) error {
	if !clockRe.MatchString(s) {
		return errors.New("must be HH:MM:SS format")
	}
	_, err := time.Parse(ClockLayout, s)
	return err
}

func toValidationError(fe validator.FieldError) ValidationError {
	// "Config.risk.stop_loss_rate" → "risk.stop_loss_rate"
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "required"
	case "oneof":
		msg = fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		msg = fmt.Sprintf("must be > %s", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be >= %s", fe.Param())
	case "lt":
		msg = fmt.Sprintf("must be < %s", fe.Param())
	case "lte":
		msg = fmt.Sprintf("must be <= %s", fe.Param())
	default:
		msg = fmt.Sprintf("failed %s", fe.Tag())
	}
	return ValidationError{Field: field, Message: msg}
}
