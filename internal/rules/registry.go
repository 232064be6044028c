package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/screener/internal/indicators"
	"github.com/wonny/screener/pkg/logger"
)

// Factory builds a rule from overrides
type Factory func(overrides ...Override) (Rule, error)

// Builtin lists the rules shipped with the screener by name
var Builtin = map[string]Factory{
	GoldenPitName:     func(o ...Override) (Rule, error) { return NewGoldenPit(o...) },
	TrendBreakoutName: func(o ...Override) (Rule, error) { return NewTrendBreakout(o...) },
}

// ErrNoKnownRules is returned when a rule selection names no registered rule
var ErrNoKnownRules = errors.New("no known rules")

// Registry maps rule names to wrapped rules. It is read-only during a scan.
// ⭐ SSOT: 규칙 등록/조회는 여기서만
type Registry struct {
	mu     sync.RWMutex
	rules  map[string]*Wrapped
	logger *logger.Logger
}

// RegistryStats aggregates per-rule statistics
type RegistryStats struct {
	TotalRules   int     `json:"total_rules"`
	EnabledRules int     `json:"enabled_rules"`
	Rules        []Stats `json:"rules_stats"`
}

// NewRegistry creates an empty registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		rules:  make(map[string]*Wrapped),
		logger: log,
	}
}

// NewDefaultRegistry registers every builtin rule with its overrides.
// Overrides for unknown rule names are a ConfigError.
func NewDefaultRegistry(log *logger.Logger, overrides map[string]Override) (*Registry, error) {
	for name := range overrides {
		if _, ok := Builtin[name]; !ok {
			return nil, &ConfigError{Rule: name, Field: "name", Message: "unknown rule"}
		}
	}

	reg := NewRegistry(log)
	for _, name := range sortedKeys(Builtin) {
		var opts []Override
		if o, ok := overrides[name]; ok {
			opts = append(opts, o)
		}
		rule, err := Builtin[name](opts...)
		if err != nil {
			return nil, err
		}
		reg.Register(rule)
	}
	return reg, nil
}

// Register adds a rule, replacing any rule with the same name
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := rule.Name()
	if _, exists := r.rules[name]; exists {
		r.logger.WithRule(name).Warn("Replacing registered rule")
	}
	r.rules[name] = Wrap(rule, r.logger)
}

// Get returns the wrapped rule registered under name
func (r *Registry) Get(name string) (*Wrapped, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.rules[name]
	return w, ok
}

// Names returns all registered rule names sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rules)
}

// Enabled returns the names of enabled rules sorted
func (r *Registry) Enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, name := range sortedKeys(r.rules) {
		if r.rules[name].Config().Enabled {
			names = append(names, name)
		}
	}
	return names
}

// Remove deletes a rule, reporting whether it existed
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[name]; !ok {
		return false
	}
	delete(r.rules, name)
	return true
}

// Clear removes every rule
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = make(map[string]*Wrapped)
}

// Describe returns the description of every rule sorted by name
func (r *Registry) Describe() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Description, 0, len(r.rules))
	for _, name := range sortedKeys(r.rules) {
		out = append(out, r.rules[name].Describe())
	}
	return out
}

// Statistics returns counters for every rule
func (r *Registry) Statistics() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{TotalRules: len(r.rules)}
	for _, name := range sortedKeys(r.rules) {
		w := r.rules[name]
		if w.Config().Enabled {
			stats.EnabledRules++
		}
		stats.Rules = append(stats.Rules, w.Statistics())
	}
	return stats
}

// ResetStatistics zeroes every rule's counters
func (r *Registry) ResetStatistics() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.rules {
		w.ResetStatistics()
	}
}

// Resolve filters a name list down to registered rules, keeping request
// order. Unknown names are logged and dropped; only a list with no known
// name fails. Empty input means all enabled rules.
func (r *Registry) Resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return r.Enabled(), nil
	}

	known := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := r.Get(name); ok {
			known = append(known, name)
		}
	}
	if unknown := r.Unknown(names); len(unknown) > 0 {
		r.logger.WithField("unknown", unknown).Warn("Skipping unknown rules")
	}
	if len(known) == 0 {
		return nil, fmt.Errorf("%w in %v (registered: %v)", ErrNoKnownRules, names, r.Names())
	}
	return known, nil
}

// Unknown returns the names that are not registered
func (r *Registry) Unknown(names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := r.Get(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Requirements merges the indicator needs of the named rules
func (r *Registry) Requirements(names []string) []indicators.Requirements {
	var out []indicators.Requirements
	for _, name := range names {
		if w, ok := r.Get(name); ok {
			out = append(out, w.Requirements())
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
