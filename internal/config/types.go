package config

// Config represents the complete recurse configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Agent     AgentConfig     `yaml:"agent"`
	Limits    LimitsConfig    `yaml:"limits"`
	Routing   RoutingConfig   `yaml:"routing"`
	Isolation IsolationConfig `yaml:"isolation"`
	Trace     TraceConfig     `yaml:"trace,omitempty"`
	RunLog    RunLogConfig    `yaml:"runlog,omitempty"`
	Bridge    BridgeConfig    `yaml:"bridge,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// AgentConfig describes the wrapped agent executable.
type AgentConfig struct {
	// Command is the argv prefix of the agent binary; the dispatcher
	// appends routing flags and runs it as a child process.
	Command []string `yaml:"command"`

	// WorkDir is the shared working tree used when isolation does not
	// apply. Empty means the dispatcher's own working directory.
	WorkDir string `yaml:"work_dir,omitempty"`

	// ProviderFlag / ModelFlag are the agent's CLI flags for routing.
	ProviderFlag string `yaml:"provider_flag,omitempty"`
	ModelFlag    string `yaml:"model_flag,omitempty"`
}

// LimitsConfig defines the guardrail ceilings inherited by a call tree.
type LimitsConfig struct {
	MaxDepth int `yaml:"max_depth"`

	// MaxCalls caps the whole tree's call count; nil means unlimited.
	MaxCalls *int `yaml:"max_calls,omitempty"`

	// TimeoutSeconds is the tree-wide wall-clock budget; nil means none.
	TimeoutSeconds *int `yaml:"timeout_seconds,omitempty"`
}

// RoutingConfig selects the backend and model for root calls, plus optional
// overrides for every level below the root.
type RoutingConfig struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	ChildProvider string `yaml:"child_provider,omitempty"`
	ChildModel    string `yaml:"child_model,omitempty"`
}

// IsolationConfig controls workspace isolation for non-leaf calls.
type IsolationConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	RepoRoot string `yaml:"repo_root,omitempty"`
	BaseDir  string `yaml:"base_dir,omitempty"`
}

// TraceConfig points at the optional append-only completion ledger.
type TraceConfig struct {
	LedgerPath string `yaml:"ledger_path,omitempty"`
}

// RunLogConfig points at the optional SQLite index of completed root calls.
type RunLogConfig struct {
	Path string `yaml:"path,omitempty"`
}

// BridgeConfig defines the HTTP bridge server.
type BridgeConfig struct {
	Listen   string `yaml:"listen,omitempty"`
	LockPath string `yaml:"lock_path,omitempty"`
}

// IsolationEnabled reports the effective isolation toggle (default on).
func (c *Config) IsolationEnabled() bool {
	if c.Isolation.Enabled == nil {
		return true
	}
	return *c.Isolation.Enabled
}
