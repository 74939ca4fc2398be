// Package sandbox executes candidate programs in isolation and returns their
// outcome as data.
//
// Code failures (syntax errors, exceptions, timeouts) are captured in the
// Result and never surface as Go errors. An error return means the sandbox
// itself could not run (temp file or spawn failure) and is fatal to the run.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/planweave/internal/config"
)

// DefaultTimeout is the per-call wall clock limit when none is configured.
const DefaultTimeout = 30 * time.Second

// ExitStatus describes how an execution ended.
type ExitStatus string

const (
	ExitOK      ExitStatus = "ok"
	ExitError   ExitStatus = "error"
	ExitTimeout ExitStatus = "timeout"
)

// Result is the structured outcome of one execution.
type Result struct {
	Success    bool       `json:"success"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	ExitStatus ExitStatus `json:"exit_status"`
}

// Executor runs one candidate program. bindings maps variable names to
// artifact paths; the sandbox makes them visible to the program as ordinary
// variables before the candidate code runs.
type Executor interface {
	Execute(ctx context.Context, code string, bindings map[string]string) (Result, error)
}

// Resettable is implemented by executors that keep state between calls. Reset
// clears that state; it must be called between tasks so no variable leaks
// from one task's loop into another's.
type Resettable interface {
	Reset() error
}

// New builds the executor selected by the configuration.
func New(cfg config.SandboxConfig) (Executor, error) {
	interpreter := cfg.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	switch cfg.Strategy {
	case "", "session":
		return NewSession(interpreter, timeout, cfg.Workdir), nil
	case "process":
		return NewProcess(interpreter, timeout, cfg.Workdir), nil
	default:
		return nil, fmt.Errorf("unknown sandbox strategy %q", cfg.Strategy)
	}
}
