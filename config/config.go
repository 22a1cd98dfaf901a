// Package config loads process configuration from a repo-local TOML or
// YAML file plus environment overrides, grounded on
// common/repo_config.go and common/config_overrides.go in the teacher
// (RepoConfig's command-permission, iteration-limit and agent-use-case
// shape) but loaded with github.com/knadh/koanf/v2 rather than the
// teacher's own hand-rolled discovery/merge code in
// common/config_discovery.go, since koanf is the config library the
// rest of the retrieved example pack converges on for layered
// file+env config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sidecore/agentcore/tool/builtin"
)

// Config is process-wide configuration: provider defaults, plan-mode
// mutating-tool list overrides, command-permission patterns for bash,
// and event-loop tunables.
type Config struct {
	DefaultModel       string                         `koanf:"default_model"`
	DefaultProvider    string                          `koanf:"default_provider"`
	MaxIterations      int                             `koanf:"max_iterations"`
	InactivityTimeoutS int                             `koanf:"inactivity_timeout_seconds"`
	ToolParallelism    int                             `koanf:"tool_parallelism"`
	SandboxRoot        string                          `koanf:"sandbox_root"`
	CommandPermissions builtin.CommandPermissionConfig `koanf:"command_permissions"`
	ApprovalRequired   []string                        `koanf:"approval_required_tools"`
}

// Default returns the baseline configuration used when no config file
// is present: conservative command permissions, the spec's 120s
// inactivity timeout, and tool_parallelism of 1 for determinism
// (spec.md §4.4, §5).
func Default() Config {
	return Config{
		DefaultModel:       "claude-opus-4-5",
		DefaultProvider:    "anthropic",
		MaxIterations:      50,
		InactivityTimeoutS: 120,
		ToolParallelism:    1,
		CommandPermissions: builtin.DefaultCommandPermissions(),
		ApprovalRequired:   []string{"bash", "apply_patch"},
	}
}

// Load reads .env (if present) then layers a config file (agentcore.toml
// or agentcore.yaml, tried in that order) over Default(). A missing
// config file is not an error; a malformed one is.
func Load(dir string) (Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	k := koanf.New(".")

	for _, candidate := range []struct {
		name   string
		parser koanf.Parser
	}{
		{"agentcore.toml", toml.Parser()},
		{"agentcore.yaml", yaml.Parser()},
		{"agentcore.yml", yaml.Parser()},
	} {
		path := filepath.Join(dir, candidate.name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), candidate.parser); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", candidate.name, err)
		}
		break
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// MutatingTools is the fixed set spec.md §4.3 blocks in plan mode.
func MutatingTools() map[string]bool {
	return map[string]bool{
		"write":       true,
		"edit":        true,
		"multiedit":   true,
		"bash":        true,
		"apply_patch": true,
		"build":       true,
	}
}
