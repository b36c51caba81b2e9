// Package config loads target and autonomy configuration (§6), with the
// autonomy file hot-reloaded via fsnotify.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target is the per-target configuration required to operate against one
// governed repository.
type Target struct {
	Name          string `yaml:"name"`
	RepoURL       string `yaml:"repo_url"`
	DefaultBranch string `yaml:"default_branch"`
	LocalCacheDir string `yaml:"local_cache_dir"`
	BacklogPath   string `yaml:"backlog_path,omitempty"`
	ContractPath  string `yaml:"contract_path,omitempty"`
	PolicyPath    string `yaml:"policy_path,omitempty"`
}

// LoadTarget reads and validates a target configuration file, resolving
// default sub-paths and a leading "~" against the user home.
func LoadTarget(path string) (Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Target{}, fmt.Errorf("read target config: %w", err)
	}

	var t Target
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Target{}, fmt.Errorf("parse target config: %w", err)
	}

	for _, required := range []struct {
		name, value string
	}{
		{"name", t.Name}, {"repo_url", t.RepoURL}, {"default_branch", t.DefaultBranch}, {"local_cache_dir", t.LocalCacheDir},
	} {
		if required.value == "" {
			return Target{}, fmt.Errorf("target config missing required field %q", required.name)
		}
	}

	t.LocalCacheDir = expandHome(t.LocalCacheDir)
	t.BacklogPath = resolveUnder(t.LocalCacheDir, t.BacklogPath, ".leviathan/backlog.yaml")
	t.ContractPath = resolveUnder(t.LocalCacheDir, t.ContractPath, ".leviathan/contract.yaml")
	t.PolicyPath = resolveUnder(t.LocalCacheDir, t.PolicyPath, ".leviathan/policy.yaml")

	return t, nil
}

func resolveUnder(base, configured, def string) string {
	p := configured
	if p == "" {
		p = def
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Autonomy is the optional mounted autonomy configuration.
type Autonomy struct {
	AutonomyEnabled        bool     `yaml:"autonomy_enabled"`
	TargetID               string   `yaml:"target_id"`
	AllowedPathPrefixes    []string `yaml:"allowed_path_prefixes"`
	MaxOpenPRs             int      `yaml:"max_open_prs"`
	MaxAttemptsPerTask     int      `yaml:"max_attempts_per_task"`
	CircuitBreakerFailures int      `yaml:"circuit_breaker_failures"`
	ControlPlaneURL        string   `yaml:"control_plane_url"`
	WorkerImage            string   `yaml:"worker_image"`
	WorkerNamespace        string   `yaml:"worker_namespace"`
	WorkspaceDir           string   `yaml:"workspace_dir"`
}

// LoadAutonomy parses the autonomy configuration file, applying defaults.
func LoadAutonomy(path string) (Autonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Autonomy{}, fmt.Errorf("read autonomy config: %w", err)
	}
	var a Autonomy
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Autonomy{}, fmt.Errorf("parse autonomy config: %w", err)
	}
	if a.MaxAttemptsPerTask == 0 {
		a.MaxAttemptsPerTask = 3
	}
	if a.MaxOpenPRs == 0 {
		a.MaxOpenPRs = 1
	}
	return a, nil
}
