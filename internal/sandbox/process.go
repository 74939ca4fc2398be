package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// envAllowList names the only parent environment variables a child process
// inherits. Everything else, secrets included, is withheld.
var envAllowList = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "PYTHONPATH"}

// processPrelude loads the serialized bindings file into plain variables
// before the candidate code runs. The bindings path is substituted in.
const processPrelude = `import json as _json
with open(%s) as _f:
    globals().update(_json.load(_f))
del _json, _f
`

// Process is the isolated execution strategy: every call spawns a fresh
// interpreter child with no shared memory. Code and bindings go through temp
// files, the environment is allow-listed, and a hard wall clock timeout kills
// the child. All artifacts cross the boundary via the filesystem.
type Process struct {
	interpreter string
	timeout     time.Duration
	workdir     string
}

// NewProcess creates a process executor. workdir is the child's working
// directory; empty means the orchestrator's own.
func NewProcess(interpreter string, timeout time.Duration, workdir string) *Process {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Process{interpreter: interpreter, timeout: timeout, workdir: workdir}
}

// Execute runs code in a fresh child process. Temp files are removed on every
// exit path.
func (p *Process) Execute(ctx context.Context, code string, bindings map[string]string) (Result, error) {
	dir, err := os.MkdirTemp("", "planweave-exec-")
	if err != nil {
		return Result{}, fmt.Errorf("create sandbox temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := code
	if len(bindings) > 0 {
		data, err := json.Marshal(bindings)
		if err != nil {
			return Result{}, fmt.Errorf("encode bindings: %w", err)
		}
		bindingsPath := filepath.Join(dir, "bindings.json")
		if err := os.WriteFile(bindingsPath, data, 0o600); err != nil {
			return Result{}, fmt.Errorf("write bindings file: %w", err)
		}
		quoted, _ := json.Marshal(bindingsPath)
		script = fmt.Sprintf(processPrelude, quoted) + code
	}

	scriptPath := filepath.Join(dir, "candidate.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return Result{}, fmt.Errorf("write script file: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.interpreter, scriptPath)
	cmd.Dir = p.workdir
	cmd.Env = allowedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return Result{
			Success:    false,
			Stdout:     stdout.String(),
			Stderr:     fmt.Sprintf("execution timed out after %s", p.timeout),
			ExitStatus: ExitTimeout,
		}, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// the program ran and failed; that is data, not an error
			return Result{
				Success:    false,
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
				ExitStatus: ExitError,
			}, nil
		}
		return Result{}, fmt.Errorf("spawn %s: %w", p.interpreter, runErr)
	}

	return Result{
		Success:    true,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitStatus: ExitOK,
	}, nil
}

func allowedEnv() []string {
	var env []string
	for _, name := range envAllowList {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}
