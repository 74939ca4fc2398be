// Package plan defines the task graph model, its integrity validation, and
// plan generation from a free-text generator.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusBlocked Status = "blocked"
)

// Terminal reports whether a task in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusBlocked
}

// TaskNode is one computational step in a plan.
type TaskNode struct {
	ID              string         `json:"id" yaml:"id"`
	Kind            string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Objective       string         `json:"objective,omitempty" yaml:"objective,omitempty"`
	InputVariables  []string       `json:"input_variables,omitempty" yaml:"input_variables,omitempty"`
	OutputVariables []string       `json:"output_variables,omitempty" yaml:"output_variables,omitempty"`
	Dependencies    []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Config          map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// ColumnsToLoad returns the schema columns the task declares under the
// well-known "columns_to_load" config key. Missing or malformed entries
// yield an empty slice.
func (t *TaskNode) ColumnsToLoad() []string {
	raw, ok := t.Config["columns_to_load"]
	if !ok {
		return nil
	}
	var cols []string
	switch v := raw.(type) {
	case []string:
		cols = append(cols, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				cols = append(cols, s)
			}
		}
	}
	return cols
}

// TaskGraph is an ordered collection of tasks keyed by id.
type TaskGraph struct {
	Tasks []TaskNode `json:"tasks" yaml:"tasks"`
}

// Node returns the task with the given id, or nil.
func (g *TaskGraph) Node(id string) *TaskNode {
	for i := range g.Tasks {
		if g.Tasks[i].ID == id {
			return &g.Tasks[i]
		}
	}
	return nil
}

// Parse decodes a plan from JSON bytes.
func Parse(data []byte) (*TaskGraph, error) {
	var g TaskGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &g, nil
}

// LoadFile reads a plan from a JSON or YAML file, chosen by extension.
func LoadFile(path string) (*TaskGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		var g TaskGraph
		if err := yaml.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("parse plan file %s: %w", path, err)
		}
		return &g, nil
	default:
		g, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse plan file %s: %w", path, err)
		}
		return g, nil
	}
}

// ArtifactPath is the deterministic location a task writes a named output to.
// Task and variable name both appear so concurrent branches can never
// collide.
func ArtifactPath(taskID, variable string) string {
	return filepath.Join("outputs", taskID+"_"+variable+".json")
}
