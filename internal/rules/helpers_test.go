package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
	"github.com/wonny/screener/pkg/logger"
)

// computeFor builds the indicator table a rule needs for a history
func computeFor(t *testing.T, rule Rule, history *contracts.PriceHistory) *indicators.Table {
	t.Helper()
	spec := indicators.DefaultSpec().Merge(rule.Requirements())
	table, err := indicators.NewCalculator(spec, logger.NewNop()).Compute(history)
	require.NoError(t, err)
	return table
}

func boolPtr(b bool) *bool          { return &b }
func floatPtr(f float64) *float64 { return &f }
