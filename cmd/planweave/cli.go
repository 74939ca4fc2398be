// Package main defines the CLI structure using kong.
package main

import "fmt"

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Execute a plan or plan-and-execute an objective"`
	Validate ValidateCmd `cmd:"" help:"Validate a plan file without executing it"`
	Inspect  InspectCmd  `cmd:"" help:"Show a plan's tasks, variables, and execution order"`
	Replay   ReplayCmd   `cmd:"" help:"Replay a recorded run for forensic analysis"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd executes a task graph.
type RunCmd struct {
	Plan      string   `short:"p" help:"Plan file (JSON or YAML)"`
	Objective string   `short:"o" help:"Free-text objective; a plan is generated and validated"`
	Columns   []string `short:"c" help:"Known schema columns (repeatable)"`
	Config    string   `help:"Config file path (default: planweave.toml)"`
	Verbose   bool     `short:"v" help:"Debug logging"`
}

// ValidateCmd statically checks a plan file.
type ValidateCmd struct {
	Plan    string   `arg:"" help:"Plan file (JSON or YAML)"`
	Columns []string `short:"c" help:"Known schema columns (repeatable)"`
	Watch   bool     `short:"w" help:"Re-validate whenever the file changes"`
}

// InspectCmd prints plan structure without running anything.
type InspectCmd struct {
	Plan string `arg:"" help:"Plan file (JSON or YAML)"`
}

// ReplayCmd renders a recorded run.
type ReplayCmd struct {
	RunID   string `arg:"" optional:"" help:"Run id (default: most recent run)"`
	Config  string `help:"Config file path (default: planweave.toml)"`
	Verbose bool   `short:"v" help:"Include full error histories"`
	NoPager bool   `help:"Print to stdout instead of the pager"`
	Follow  bool   `short:"f" help:"Live mode: re-render as the run progresses"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run prints the version.
func (c *VersionCmd) Run() error {
	fmt.Println("planweave " + version)
	return nil
}
