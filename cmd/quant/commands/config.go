package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wangshuile/jb-quant/internal/strategyconfig"
)

// configCmd groups strategy configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "전략 설정(YAML) 검증 및 조회",
	Long:  `전략 설정 파일을 검증하거나 기본값이 채워진 최종 설정을 출력합니다.`,
}

// configValidateCmd validates the strategy YAML
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "전략 설정 검증 (오류 시 종료 코드 1)",
	Long: `전략 설정을 기본값 위에 디코드하고 검증합니다.

알 수 없는 필드, 허용되지 않은 정책 타입, 잘못된 시각/타임존은 오류입니다.
위험하지만 허용되는 조합은 경고로 출력됩니다.

Example:
  go run ./cmd/quant config validate
  go run ./cmd/quant config validate --config config/strategy.yaml`,
	RunE: runConfigValidate,
}

// configShowCmd prints the effective strategy config
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "기본값이 적용된 최종 전략 설정 출력",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(context.Background(), storesNone)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	snap, err := strategyconfig.NewDecisionSnapshot(a.strategy, a.yaml, time.Now().In(a.loc))
	if err != nil {
		return err
	}

	PrintHeader("Strategy Config")
	PrintKeyValue("File", a.cfg.StrategyFile, 12)
	PrintKeyValue("Strategy", snap.StrategyID, 12)
	PrintKeyValue("Mode", a.strategy.Meta.Mode, 12)
	PrintKeyValue("Timezone", a.loc.String(), 12)
	PrintKeyValue("Hash", snap.ConfigHash, 12)
	PrintSeparator()
	PrintKeyValue("Universe", a.strategy.Universe.Type, 12)
	PrintKeyValue("Scoring", a.strategy.Selection.Type, 12)
	PrintKeyValue("Timing", timingLabel(a.strategy), 12)
	PrintKeyValue("Risk", a.strategy.Risk.Type, 12)
	PrintKeyValue("Execution", a.strategy.Execution.Type, 12)

	phases := make([]string, 0, 4)
	for _, p := range a.strategy.Schedule.Phases() {
		phases = append(phases, fmt.Sprintf("%-13s %s", p.Phase, p.At))
	}
	PrintSeparator()
	PrintList(phases)

	warnings := strategyconfig.Warn(a.strategy)
	if len(warnings) > 0 {
		items := make([]string, 0, len(warnings))
		for _, w := range warnings {
			items = append(items, fmt.Sprintf("[%s] %s", w.Code, w.Message))
		}
		PrintWarning(fmt.Sprintf("%d warning(s)", len(warnings)))
		PrintList(items)
	}

	PrintDoubleSeparator()
	PrintSuccess("Strategy config is valid")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(context.Background(), storesNone)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(a.strategy)
}

func timingLabel(cfg *strategyconfig.Config) string {
	if !cfg.Timing.Enabled {
		return "disabled"
	}
	return cfg.Timing.Type
}
