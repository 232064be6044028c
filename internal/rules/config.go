package rules

import (
	"fmt"
	"math"
	"sort"
)

// ConfigError is an invalid rule configuration. It is fatal at
// construction time and never raised mid-scan.
type ConfigError struct {
	Rule    string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %s: %s: %s", e.Rule, e.Field, e.Message)
}

// Thresholds is the (min_score, high_score) classification pair
type Thresholds struct {
	MinScore  float64 `json:"min_score" yaml:"min_score"`
	HighScore float64 `json:"high_score" yaml:"high_score"`
}

// Config is the per-rule configuration. Immutable once the rule is built.
// ⭐ SSOT: 규칙 설정 (가중치, 파라미터, 임계값)
type Config struct {
	Enabled    bool               `json:"enabled"`
	Weight     float64            `json:"weight"`
	Params     map[string]float64 `json:"params"`
	ListParams map[string][]int   `json:"list_params,omitempty"`
	Thresholds Thresholds         `json:"thresholds"`
}

// Override is a partial Config merged on top of a rule's defaults.
// Nil fields keep the default.
type Override struct {
	Enabled    *bool              `json:"enabled,omitempty" yaml:"enabled"`
	Weight     *float64           `json:"weight,omitempty" yaml:"weight"`
	Params     map[string]float64 `json:"params,omitempty" yaml:"params"`
	ListParams map[string][]int   `json:"list_params,omitempty" yaml:"list_params"`
	MinScore   *float64           `json:"min_score,omitempty" yaml:"min_score"`
	HighScore  *float64           `json:"high_score,omitempty" yaml:"high_score"`
}

// Param returns a numeric parameter
func (c Config) Param(key string) float64 {
	return c.Params[key]
}

// IntParam returns a numeric parameter truncated to int
func (c Config) IntParam(key string) int {
	return int(c.Params[key])
}

// ListParam returns a copy of a list parameter
func (c Config) ListParam(key string) []int {
	return append([]int(nil), c.ListParams[key]...)
}

// ParamNames returns the numeric parameter names sorted
func (c Config) ParamNames() []string {
	names := make([]string, 0, len(c.Params))
	for k := range c.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// clone deep-copies the maps so a rule never shares them with callers
func (c Config) clone() Config {
	out := c
	out.Params = make(map[string]float64, len(c.Params))
	for k, v := range c.Params {
		out.Params[k] = v
	}
	out.ListParams = make(map[string][]int, len(c.ListParams))
	for k, v := range c.ListParams {
		out.ListParams[k] = append([]int(nil), v...)
	}
	return out
}

// Merge applies overrides in order on top of c. Unknown parameter names
// are rejected so typos fail at startup.
func (c Config) Merge(rule string, overrides ...Override) (Config, error) {
	out := c.clone()
	for _, o := range overrides {
		if o.Enabled != nil {
			out.Enabled = *o.Enabled
		}
		if o.Weight != nil {
			out.Weight = *o.Weight
		}
		if o.MinScore != nil {
			out.Thresholds.MinScore = *o.MinScore
		}
		if o.HighScore != nil {
			out.Thresholds.HighScore = *o.HighScore
		}
		for k, v := range o.Params {
			if _, ok := out.Params[k]; !ok {
				return Config{}, &ConfigError{Rule: rule, Field: "params." + k, Message: "unknown parameter"}
			}
			out.Params[k] = v
		}
		for k, v := range o.ListParams {
			if _, ok := out.ListParams[k]; !ok {
				return Config{}, &ConfigError{Rule: rule, Field: "list_params." + k, Message: "unknown parameter"}
			}
			out.ListParams[k] = append([]int(nil), v...)
		}
	}
	return out, nil
}

// Validate checks the fields shared by every rule
func (c Config) Validate(rule string) error {
	if math.IsNaN(c.Weight) || c.Weight < 0 {
		return &ConfigError{Rule: rule, Field: "weight", Message: fmt.Sprintf("must be >= 0, got %v", c.Weight)}
	}
	if !inScoreRange(c.Thresholds.MinScore) {
		return &ConfigError{Rule: rule, Field: "thresholds.min_score", Message: "must be in [0, 100]"}
	}
	if !inScoreRange(c.Thresholds.HighScore) {
		return &ConfigError{Rule: rule, Field: "thresholds.high_score", Message: "must be in [0, 100]"}
	}
	if c.Thresholds.MinScore > c.Thresholds.HighScore {
		return &ConfigError{Rule: rule, Field: "thresholds", Message: "min_score must not exceed high_score"}
	}
	for k, v := range c.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigError{Rule: rule, Field: "params." + k, Message: "must be finite"}
		}
	}
	return nil
}

func inScoreRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// requirePositive checks numeric params that must be > 0
func requirePositive(rule string, c Config, keys ...string) error {
	for _, k := range keys {
		if c.Params[k] <= 0 {
			return &ConfigError{Rule: rule, Field: "params." + k, Message: fmt.Sprintf("must be > 0, got %v", c.Params[k])}
		}
	}
	return nil
}

// requireWindow checks integer window params that must be >= 1
func requireWindow(rule string, c Config, keys ...string) error {
	for _, k := range keys {
		v := c.Params[k]
		if v < 1 || v != math.Trunc(v) {
			return &ConfigError{Rule: rule, Field: "params." + k, Message: fmt.Sprintf("must be a positive integer, got %v", v)}
		}
	}
	return nil
}
