package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/pkg/logger"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "등록된 규칙 설명",
	Long: `등록된 모든 규칙의 조건, 파라미터, 임계값을 출력합니다.
--rules-file 로 YAML 오버라이드를 적용한 결과를 확인할 수 있습니다.

Example:
  go run ./cmd/screener rules
  go run ./cmd/screener rules --rules-file rules.yaml --format json`,
	RunE: runRules,
}

var (
	rulesFile   string
	rulesFormat string
)

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVar(&rulesFile, "rules-file", "", "규칙 설정 YAML")
	rulesCmd.Flags().StringVar(&rulesFormat, "format", formatTable, "출력 형식: table|json")
}

func runRules(cmd *cobra.Command, args []string) error {
	var overrides map[string]rules.Override
	if rulesFile != "" {
		var err error
		if overrides, err = rules.LoadOverrides(rulesFile); err != nil {
			return err
		}
	}

	registry, err := rules.NewDefaultRegistry(logger.NewNop(), overrides)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rulesFormat == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(registry.Describe())
	}
	PrintRules(out, registry.Describe(), registry.Statistics())
	return nil
}
