// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	runID     string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		runID:     l.runID,
	}
}

// WithRunID returns a new logger tagged with a run identifier.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		runID:     runID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs in stable order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.runID != "" {
		fieldStr = " run=" + l.runID + fieldStr
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// ExecutionStart logs the start of a plan run.
func (l *Logger) ExecutionStart(plan string, tasks int) {
	l.Info("execution_start", map[string]interface{}{
		"plan":  plan,
		"tasks": tasks,
	})
}

// ExecutionComplete logs the completion of a plan run.
func (l *Logger) ExecutionComplete(plan string, duration time.Duration, status string) {
	l.Info("execution_complete", map[string]interface{}{
		"plan":     plan,
		"duration": duration.String(),
		"status":   status,
	})
}

// TaskStart logs the start of a task's synthesis loop.
func (l *Logger) TaskStart(task string) {
	l.Info("task_start", map[string]interface{}{
		"task": task,
	})
}

// TaskComplete logs a task reaching a terminal state.
func (l *Logger) TaskComplete(task, status string, iterations int, duration time.Duration) {
	l.Info("task_complete", map[string]interface{}{
		"task":       task,
		"status":     status,
		"iterations": iterations,
		"duration":   duration.String(),
	})
}

// AttemptResult logs the outcome of one synthesis attempt.
func (l *Logger) AttemptResult(task string, iteration int, errKind string, err error) {
	fields := map[string]interface{}{
		"task":      task,
		"iteration": iteration,
	}
	if errKind != "" {
		fields["kind"] = errKind
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("attempt_failed", fields)
	} else {
		l.Debug("attempt_ok", fields)
	}
}

// ValidationFailed logs a plan validation failure.
func (l *Logger) ValidationFailed(diagnostics []string) {
	l.Warn("plan_invalid", map[string]interface{}{
		"diagnostics": strings.Join(diagnostics, "; "),
	})
}

// SandboxResult logs a sandbox execution result.
func (l *Logger) SandboxResult(task string, exit string, duration time.Duration) {
	l.Debug("sandbox_result", map[string]interface{}{
		"task":     task,
		"exit":     exit,
		"duration": duration.String(),
	})
}
