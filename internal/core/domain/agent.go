package domain

type AgentRole string

const (
	RoleArchitect  AgentRole = "architect"
	RoleDeveloper  AgentRole = "developer"
	RoleTester     AgentRole = "tester"
	RoleReviewer   AgentRole = "reviewer"
	RoleAnalyzer   AgentRole = "analyzer"
	RoleDocumenter AgentRole = "documenter"
)

// ResourceSpec is an agent's declared resource request.
type ResourceSpec struct {
	Memory string  `json:"memory" mapstructure:"memory"` // K/M/G suffixed, e.g. "2G"
	CPUs   float64 `json:"cpus" mapstructure:"cpus"`     // number of cores
}

// AgentConfig is the static descriptor of one agent. Loaded once at startup,
// read-only afterwards.
type AgentConfig struct {
	Name         string            `json:"name" mapstructure:"name"`
	Image        string            `json:"image" mapstructure:"image"`
	Role         AgentRole         `json:"role" mapstructure:"role"`
	Environment  map[string]string `json:"environment" mapstructure:"environment"`
	Resources    ResourceSpec      `json:"resources" mapstructure:"resources"`
	Dependencies []string          `json:"dependencies,omitempty" mapstructure:"dependencies"`
}

// DefaultAgents returns the built-in agent fleet, used when the config file
// declares none.
func DefaultAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		"claude-architect": {
			Name:        "claude-architect",
			Image:       "claude-agent:latest",
			Role:        RoleArchitect,
			Environment: map[string]string{"MODEL": "claude-3-opus", "FOCUS": "architecture"},
			Resources:   ResourceSpec{Memory: "2G", CPUs: 1.0},
		},
		"gemini-developer": {
			Name:        "gemini-developer",
			Image:       "gemini-agent:latest",
			Role:        RoleDeveloper,
			Environment: map[string]string{"MODEL": "gemini-2.5-pro", "FOCUS": "implementation"},
			Resources:   ResourceSpec{Memory: "2G", CPUs: 1.0},
		},
		"claude-tester": {
			Name:        "claude-tester",
			Image:       "claude-agent:latest",
			Role:        RoleTester,
			Environment: map[string]string{"MODEL": "claude-3-sonnet", "FOCUS": "testing"},
			Resources:   ResourceSpec{Memory: "1G", CPUs: 0.5},
		},
	}
}
