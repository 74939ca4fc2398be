package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// sessionRunner is the bootstrap program fed to the interpreter. It keeps one
// namespace alive across requests, frames requests and replies as JSON lines,
// and renders every uncaught exception into stderr text.
const sessionRunner = `
import sys, json, io, contextlib, traceback
ns = {}
for line in sys.stdin:
    try:
        req = json.loads(line)
    except ValueError:
        continue
    if req.get("op") == "reset":
        ns.clear()
        sys.stdout.write(json.dumps({"ok": True, "stdout": "", "stderr": ""}) + "\n")
        sys.stdout.flush()
        continue
    out = io.StringIO()
    err = io.StringIO()
    ok = True
    try:
        with contextlib.redirect_stdout(out), contextlib.redirect_stderr(err):
            exec(req.get("code", ""), ns)
    except BaseException:
        ok = False
        err.write(traceback.format_exc())
    reply = {"ok": ok, "stdout": out.getvalue(), "stderr": err.getvalue()}
    sys.stdout.write(json.dumps(reply) + "\n")
    sys.stdout.flush()
`

type sessionRequest struct {
	Op   string `json:"op,omitempty"`
	Code string `json:"code,omitempty"`
}

type sessionReply struct {
	OK     bool   `json:"ok"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Session is the stateful execution strategy: one long-lived interpreter
// child whose namespace persists across Execute calls. Variables defined by
// one call remain visible to the next, which is what lets a repair attempt
// build on state the previous attempt already computed. A Session must never
// be shared across tasks; call Reset between them.
type Session struct {
	interpreter string
	timeout     time.Duration
	workdir     string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewSession creates a session executor. workdir is the child's working
// directory, where relative artifact paths resolve; empty means the
// orchestrator's own. The interpreter child is started lazily on first use.
func NewSession(interpreter string, timeout time.Duration, workdir string) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{interpreter: interpreter, timeout: timeout, workdir: workdir}
}

// start spawns the interpreter child. Caller holds s.mu.
func (s *Session) start() error {
	cmd := exec.Command(s.interpreter, "-c", sessionRunner)
	cmd.Dir = s.workdir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("session stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("session stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start session interpreter %s: %w", s.interpreter, err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	return nil
}

// stop kills the child and forgets it. Caller holds s.mu.
func (s *Session) stop() {
	if s.cmd == nil {
		return
	}
	s.stdin.Close()
	s.cmd.Process.Kill()
	s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
}

// Execute runs code in the persistent namespace. Bindings are assigned as
// plain variables before the candidate code runs.
func (s *Session) Execute(ctx context.Context, code string, bindings map[string]string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		if err := s.start(); err != nil {
			return Result{}, err
		}
	}

	full := bindingPrelude(bindings) + code
	reply, err := s.roundTrip(ctx, sessionRequest{Code: full})
	if err != nil {
		return Result{}, err
	}
	if reply == nil {
		// timed out; the child was killed
		return Result{
			Success:    false,
			Stderr:     fmt.Sprintf("execution timed out after %s", s.timeout),
			ExitStatus: ExitTimeout,
		}, nil
	}

	status := ExitOK
	if !reply.OK {
		status = ExitError
	}
	return Result{
		Success:    reply.OK,
		Stdout:     reply.Stdout,
		Stderr:     reply.Stderr,
		ExitStatus: status,
	}, nil
}

// roundTrip sends one request and waits for its reply, bounded by the
// session timeout and ctx. A nil reply with nil error means the call timed
// out and the child was killed. Caller holds s.mu.
func (s *Session) roundTrip(ctx context.Context, req sessionRequest) (*sessionReply, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}
	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		s.stop()
		return nil, fmt.Errorf("write to session interpreter: %w", err)
	}

	type lineResult struct {
		line []byte
		err  error
	}
	ch := make(chan lineResult, 1)
	stdout := s.stdout
	go func() {
		line, err := stdout.ReadBytes('\n')
		ch <- lineResult{line, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			s.stop()
			return nil, fmt.Errorf("read from session interpreter: %w", res.err)
		}
		var reply sessionReply
		if err := json.Unmarshal(res.line, &reply); err != nil {
			s.stop()
			return nil, fmt.Errorf("decode session reply: %w", err)
		}
		return &reply, nil
	case <-timer.C:
		s.stop()
		return nil, nil
	case <-ctx.Done():
		s.stop()
		return nil, ctx.Err()
	}
}

// Reset clears the namespace. The warm child handles it in place; a dead or
// wedged child is simply discarded, and the next Execute starts a fresh one.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	reply, err := s.roundTrip(context.Background(), sessionRequest{Op: "reset"})
	if err != nil || reply == nil {
		s.stop()
	}
	return nil
}

// Close terminates the interpreter child.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
	return nil
}

// bindingPrelude renders bindings as variable assignments prepended to the
// candidate code. Paths are JSON-quoted so arbitrary characters survive.
func bindingPrelude(bindings map[string]string) string {
	if len(bindings) == 0 {
		return ""
	}
	names := sortedKeys(bindings)
	var b []byte
	for _, name := range names {
		quoted, _ := json.Marshal(bindings[name])
		b = append(b, name...)
		b = append(b, " = "...)
		b = append(b, quoted...)
		b = append(b, '\n')
	}
	return string(b)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
