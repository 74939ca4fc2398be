package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// syntaxProbe compiles source read from stdin without executing it.
const syntaxProbe = `
import sys
src = sys.stdin.read()
try:
    compile(src, "<candidate>", "exec")
except SyntaxError as e:
    sys.stderr.write("SyntaxError: %s (line %s)" % (e.msg, e.lineno))
    sys.exit(1)
`

const syntaxProbeTimeout = 10 * time.Second

// CheckSyntax asks the interpreter to compile code without running it. The
// returned detail is empty when the code parses; otherwise it describes the
// syntax error. A non-nil error means the probe itself could not run.
func CheckSyntax(ctx context.Context, interpreter, code string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, syntaxProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, interpreter, "-c", syntaxProbe)
	cmd.Stdin = strings.NewReader(code)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return "", nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "SyntaxError: code does not compile"
		}
		return detail, nil
	}
	return "", fmt.Errorf("run syntax probe with %s: %w", interpreter, err)
}
