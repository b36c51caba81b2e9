// Package backlog parses the target repository's declarative task list
// (.leviathan/backlog.yaml, §6) and normalizes both accepted shapes.
package backlog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Task is one declarative unit of work as declared by the backlog.
type Task struct {
	ID                 string   `yaml:"id"`
	LegacyTaskID        string   `yaml:"task_id,omitempty"`
	Title               string   `yaml:"title"`
	Scope               string   `yaml:"scope"`
	Priority            string   `yaml:"priority"`
	EstimatedSize       string   `yaml:"estimated_size"`
	AllowedPaths        []string `yaml:"allowed_paths"`
	AcceptanceCriteria  []string `yaml:"acceptance_criteria"`
	Ready               bool     `yaml:"ready"`
	Dependencies        []string `yaml:"dependencies"`
	Status              string   `yaml:"status,omitempty"`
	BranchName          string   `yaml:"branch_name,omitempty"`
	PRNumber            int      `yaml:"pr_number,omitempty"`
	LastAttemptID       string   `yaml:"last_attempt_id,omitempty"`
	CompletedAt         string   `yaml:"completed_at,omitempty"`
}

// Backlog is the normalized task list plus optional top-level settings.
type Backlog struct {
	Version    string `yaml:"version,omitempty"`
	MaxOpenPRs int    `yaml:"max_open_prs,omitempty"`
	Tasks      []Task `yaml:"tasks"`
}

// wrapped models shape (a): a mapping with a tasks: sequence.
type wrapped struct {
	Version    string `yaml:"version"`
	MaxOpenPRs int    `yaml:"max_open_prs"`
	Tasks      []Task `yaml:"tasks"`
}

// Parse accepts either shape (a), a mapping with `tasks:`, or shape (b), a
// bare top-level sequence of task records, and normalizes legacy
// `task_id` fields into `id`.
func Parse(data []byte) (Backlog, error) {
	var w wrapped
	if err := yaml.Unmarshal(data, &w); err == nil && w.Tasks != nil {
		normalize(w.Tasks)
		if err := validateIDs(w.Tasks); err != nil {
			return Backlog{}, err
		}
		return Backlog{Version: w.Version, MaxOpenPRs: w.MaxOpenPRs, Tasks: w.Tasks}, nil
	}

	var tasks []Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return Backlog{}, fmt.Errorf("parse backlog: not a tasks-mapping or a task sequence: %w", err)
	}
	normalize(tasks)
	if err := validateIDs(tasks); err != nil {
		return Backlog{}, err
	}
	return Backlog{Tasks: tasks}, nil
}

func normalize(tasks []Task) {
	for i := range tasks {
		if tasks[i].ID == "" && tasks[i].LegacyTaskID != "" {
			tasks[i].ID = tasks[i].LegacyTaskID
		}
	}
}

func validateIDs(tasks []Task) error {
	for i, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("backlog task at index %d is missing id", i)
		}
	}
	return nil
}
