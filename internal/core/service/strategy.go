package service

import "github.com/devgrid/agent-orchestrator/internal/core/domain"

// StrategyTable routes hybrid tasks to an ordered phase list by task type.
// Immutable after construction.
type StrategyTable struct {
	strategies map[string]domain.Strategy
}

// NewStrategyTable merges configured strategies onto the built-in table.
func NewStrategyTable(overrides map[string]domain.Strategy) *StrategyTable {
	strategies := domain.DefaultStrategies()
	for k, v := range overrides {
		strategies[k] = v
	}
	return &StrategyTable{strategies: strategies}
}

// For returns the strategy for a task type. Unknown types fall back to a
// single parallel phase over the requested agents.
func (t *StrategyTable) For(taskType string, agents []string) domain.Strategy {
	if s, ok := t.strategies[taskType]; ok {
		return s
	}
	return domain.Strategy{{Name: "default", Agents: agents, Parallel: true}}
}
