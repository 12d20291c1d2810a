package domain

// Phase names a subset of agents and whether they run concurrently.
type Phase struct {
	Name     string   `json:"name" mapstructure:"name"`
	Agents   []string `json:"agents" mapstructure:"agents"`
	Parallel bool     `json:"parallel" mapstructure:"parallel"`
}

// Strategy is the ordered phase list a hybrid task walks through.
type Strategy []Phase

// DefaultStrategies returns the built-in task-type routing table. Entries can
// be overridden or extended through configuration.
func DefaultStrategies() map[string]Strategy {
	return map[string]Strategy{
		"feature_development": {
			{Name: "analysis", Agents: []string{"claude-architect", "gemini-developer"}, Parallel: true},
			{Name: "implementation", Agents: []string{"gemini-developer"}},
			{Name: "testing", Agents: []string{"claude-tester"}},
			{Name: "review", Agents: []string{"claude-architect"}},
		},
		"code_review": {
			{Name: "review", Agents: []string{"claude-architect", "gemini-developer", "claude-tester"}, Parallel: true},
		},
		"bug_fix": {
			{Name: "reproduce", Agents: []string{"claude-tester"}},
			{Name: "analyze", Agents: []string{"claude-architect"}},
			{Name: "fix", Agents: []string{"gemini-developer"}},
			{Name: "verify", Agents: []string{"claude-tester"}},
		},
	}
}

// DefaultPriorities returns the built-in container-name-substring priority
// table. Higher is more important; unmatched names resolve to 5.
func DefaultPriorities() map[string]int {
	return map[string]int{
		"orchestrator":       10,
		"redis":              10,
		"resource-manager":   9,
		"claude-architect":   8,
		"gemini-developer":   7,
		"claude-tester":      6,
		"codeium-refactorer": 5,
		"prometheus":         4,
		"grafana":            3,
	}
}

// DefaultPriority is assigned to containers matching no table entry.
const DefaultPriority = 5
