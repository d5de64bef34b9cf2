package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the original bridge's environment-backed fallbacks.
const (
	DefaultProvider = "openrouter"
	DefaultModel    = "google/gemini-3-flash-preview"
	DefaultMaxDepth = 10
	DefaultListen   = "127.0.0.1:8377"
)

// Default returns a usable configuration with no file present.
func Default() *Config {
	return applyDefaults(&Config{})
}

// Load reads and parses configuration from a file. A directory path is
// resolved to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	cfg = applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) *Config {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "recurse"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Routing.Provider == "" {
		cfg.Routing.Provider = DefaultProvider
	}
	if cfg.Routing.Model == "" {
		cfg.Routing.Model = DefaultModel
	}
	if cfg.Limits.MaxDepth == 0 {
		cfg.Limits.MaxDepth = DefaultMaxDepth
	}
	if cfg.Agent.ProviderFlag == "" {
		cfg.Agent.ProviderFlag = "--provider"
	}
	if cfg.Agent.ModelFlag == "" {
		cfg.Agent.ModelFlag = "--model"
	}
	if cfg.Bridge.Listen == "" {
		cfg.Bridge.Listen = DefaultListen
	}
	return cfg
}

func validate(cfg *Config) error {
	if len(cfg.Agent.Command) == 0 {
		return fmt.Errorf("agent.command is empty")
	}
	if cfg.Limits.MaxDepth < 0 {
		return fmt.Errorf("limits.max_depth is negative")
	}
	if cfg.Limits.MaxCalls != nil && *cfg.Limits.MaxCalls < 1 {
		return fmt.Errorf("limits.max_calls must be at least 1")
	}
	if cfg.Limits.TimeoutSeconds != nil && *cfg.Limits.TimeoutSeconds < 0 {
		return fmt.Errorf("limits.timeout_seconds is negative")
	}
	if cfg.Agent.WorkDir != "" {
		if info, err := os.Stat(cfg.Agent.WorkDir); err != nil || !info.IsDir() {
			return fmt.Errorf("agent.work_dir %q is not a directory", cfg.Agent.WorkDir)
		}
	}
	return nil
}
