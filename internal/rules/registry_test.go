package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/pkg/logger"
)

func TestNewDefaultRegistry(t *testing.T) {
	reg, err := NewDefaultRegistry(logger.NewNop(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{GoldenPitName, TrendBreakoutName}, reg.Names())
	assert.Equal(t, []string{GoldenPitName, TrendBreakoutName}, reg.Enabled())

	descs := reg.Describe()
	require.Len(t, descs, 2)
	assert.Equal(t, GoldenPitName, descs[0].Name)
	assert.Equal(t, 0.20, descs[0].Params[ParamDrawdownThreshold])
	assert.Equal(t, []int{5, 10, 20, 60}, descs[1].ListParams[ParamMAPeriods])
}

func TestNewDefaultRegistry_Overrides(t *testing.T) {
	reg, err := NewDefaultRegistry(logger.NewNop(), map[string]Override{
		GoldenPitName: {Enabled: boolPtr(false), Weight: floatPtr(2)},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{TrendBreakoutName}, reg.Enabled())
	w, ok := reg.Get(GoldenPitName)
	require.True(t, ok)
	assert.Equal(t, 2.0, w.Config().Weight)

	stats := reg.Statistics()
	assert.Equal(t, 2, stats.TotalRules)
	assert.Equal(t, 1, stats.EnabledRules)
}

func TestNewDefaultRegistry_Errors(t *testing.T) {
	_, err := NewDefaultRegistry(logger.NewNop(), map[string]Override{"MoonShot": {}})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "MoonShot", cfgErr.Rule)

	_, err = NewDefaultRegistry(logger.NewNop(), map[string]Override{
		TrendBreakoutName: {HighScore: floatPtr(10)},
	})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "thresholds", cfgErr.Field)
}

func TestRegistry_RegisterRemoveClear(t *testing.T) {
	reg := NewRegistry(logger.NewNop())
	reg.Register(&stubRule{name: "B", enabled: true})
	reg.Register(&stubRule{name: "A", enabled: false})
	reg.Register(&stubRule{name: "B", enabled: true}) // replaces

	assert.Equal(t, []string{"A", "B"}, reg.Names())
	assert.Equal(t, []string{"B"}, reg.Enabled())

	assert.True(t, reg.Remove("A"))
	assert.False(t, reg.Remove("A"))
	_, ok := reg.Get("A")
	assert.False(t, ok)

	reg.Clear()
	assert.Empty(t, reg.Names())
}

func TestRegistry_Resolve(t *testing.T) {
	reg, err := NewDefaultRegistry(logger.NewNop(), nil)
	require.NoError(t, err)

	names, err := reg.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{GoldenPitName, TrendBreakoutName}, names)

	names, err = reg.Resolve([]string{TrendBreakoutName})
	require.NoError(t, err)
	assert.Equal(t, []string{TrendBreakoutName}, names)

	names, err = reg.Resolve([]string{"Nope", TrendBreakoutName, "Typo", GoldenPitName})
	require.NoError(t, err)
	assert.Equal(t, []string{TrendBreakoutName, GoldenPitName}, names)
	assert.Equal(t, []string{"Nope", "Typo"}, reg.Unknown([]string{"Nope", TrendBreakoutName, "Typo"}))

	_, err = reg.Resolve([]string{"Nope"})
	assert.ErrorIs(t, err, ErrNoKnownRules)
	assert.Empty(t, reg.Unknown([]string{GoldenPitName}))
}

func TestRegistry_Requirements(t *testing.T) {
	reg, err := NewDefaultRegistry(logger.NewNop(), nil)
	require.NoError(t, err)

	reqs := reg.Requirements([]string{GoldenPitName, "Missing", TrendBreakoutName})
	require.Len(t, reqs, 2)
	assert.Equal(t, []int{60}, reqs[0].DrawdownWindows)
	assert.Equal(t, []int{240}, reqs[1].HighWindows)
}

func TestRegistry_ResetStatistics(t *testing.T) {
	h, table := sampleInput(t)
	reg := NewRegistry(logger.NewNop())
	reg.Register(&stubRule{name: "A", enabled: true})

	w, _ := reg.Get("A")
	w.Apply("S", h, table)
	assert.Equal(t, int64(1), reg.Statistics().Rules[0].Executions)

	reg.ResetStatistics()
	assert.Equal(t, int64(0), reg.Statistics().Rules[0].Executions)
}
