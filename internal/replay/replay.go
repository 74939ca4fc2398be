// Package replay renders a run ledger as a forensic timeline, either to a
// writer or inside an interactive pager.
package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/openclaw/planweave/internal/ledger"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	blockStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Replayer formats run ledgers for reading.
type Replayer struct {
	output  io.Writer
	verbose bool
}

// New creates a replayer writing to output. verbose includes full error
// histories and advice.
func New(output io.Writer, verbose bool) *Replayer {
	return &Replayer{output: output, verbose: verbose}
}

// Replay writes a formatted timeline of the run.
func (r *Replayer) Replay(run *ledger.Run) error {
	_, err := fmt.Fprint(r.output, Render(run, r.verbose))
	return err
}

// Render produces the full timeline as a string.
func Render(run *ledger.Run, verbose bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "RUN %s\n", run.ID)
	fmt.Fprintf(&b, "  status:  %s\n", styleStatus(run.Status))
	if run.Objective != "" {
		fmt.Fprintf(&b, "  objective: %s\n", run.Objective)
	}
	if run.PlanFile != "" {
		fmt.Fprintf(&b, "  plan:    %s\n", run.PlanFile)
	}
	fmt.Fprintf(&b, "  created: %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.Error != "" {
		fmt.Fprintf(&b, "  error:   %s\n", failStyle.Render(run.Error))
	}

	fmt.Fprintf(&b, "\nTIMELINE (%d events)\n", len(run.Events))
	b.WriteString(strings.Repeat("─", 74) + "\n")

	var lastTask string
	for i, event := range run.Events {
		formatEvent(&b, i+1, &event, &lastTask, verbose)
	}

	b.WriteString("\nTASKS\n")
	b.WriteString(strings.Repeat("─", 74) + "\n")
	for _, rec := range run.Tasks {
		formatTask(&b, &rec, verbose)
	}

	if len(run.Variables) > 0 {
		b.WriteString("\nARTIFACTS\n")
		b.WriteString(strings.Repeat("─", 74) + "\n")
		for name, path := range run.Variables {
			fmt.Fprintf(&b, "  %s → %s\n", name, path)
		}
	}

	return b.String()
}

func formatEvent(b *strings.Builder, seq int, event *ledger.Event, lastTask *string, verbose bool) {
	if event.Task != "" && event.Task != *lastTask {
		fmt.Fprintf(b, "\n▶ TASK: %s\n", event.Task)
		*lastTask = event.Task
	}

	ts := event.Timestamp.Format("15:04:05.000")

	switch event.Type {
	case ledger.EventPlan:
		fmt.Fprintf(b, "%4d │ %s │ PLAN: %s\n", seq, ts, event.Content)
	case ledger.EventValidation:
		fmt.Fprintf(b, "%4d │ %s │ %s %s\n", seq, ts, failStyle.Render("INVALID"), event.Content)
	case ledger.EventTaskStart:
		fmt.Fprintf(b, "%4d │ %s │ ┌─ start\n", seq, ts)
	case ledger.EventAttempt:
		fmt.Fprintf(b, "%4d │ %s │ │  attempt %d", seq, ts, event.Iteration)
		if event.Kind != "" {
			fmt.Fprintf(b, " %s", failStyle.Render(event.Kind))
		}
		b.WriteString("\n")
		if verbose && event.Error != "" {
			fmt.Fprintf(b, "     │ %s\n", dimStyle.Render(event.Error))
		}
	case ledger.EventTaskEnd:
		fmt.Fprintf(b, "%4d │ %s │ └─ %s (%dms)\n", seq, ts, event.Content, event.DurationMs)
	case ledger.EventRunEnd:
		fmt.Fprintf(b, "%4d │ %s │ ◼ RUN END: %s (%dms)\n", seq, ts, event.Content, event.DurationMs)
	default:
		fmt.Fprintf(b, "%4d │ %s │ %s %s\n", seq, ts, event.Type, event.Content)
	}
}

func formatTask(b *strings.Builder, rec *ledger.TaskRecord, verbose bool) {
	fmt.Fprintf(b, "  %-20s %s  iterations=%d", rec.TaskID, styleStatus(string(rec.Status)), rec.Iterations)
	if rec.Reason != "" {
		fmt.Fprintf(b, "  (%s)", rec.Reason)
	}
	b.WriteString("\n")

	if verbose {
		for i, errRec := range rec.History {
			fmt.Fprintf(b, "      %d. %s: %s\n", i+1, errRec.Kind, errRec.Detail)
		}
		if rec.Advice != "" {
			fmt.Fprintf(b, "      advice: %s\n", rec.Advice)
		}
	}
}

func styleStatus(status string) string {
	switch status {
	case ledger.StatusComplete, "success":
		return successStyle.Render(status)
	case ledger.StatusFailed:
		return failStyle.Render(status)
	case "blocked":
		return blockStyle.Render(status)
	default:
		return status
	}
}
