package replay

import (
	"strings"
	"testing"
	"time"

	"github.com/openclaw/planweave/internal/classify"
	"github.com/openclaw/planweave/internal/ledger"
	"github.com/openclaw/planweave/internal/plan"
)

func sampleRun() *ledger.Run {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &ledger.Run{
		ID:        "abc-123",
		Objective: "score the customers",
		Status:    ledger.StatusComplete,
		CreatedAt: ts,
		Variables: map[string]string{"scores": "outputs/calc_scores.json"},
		Tasks: []ledger.TaskRecord{
			{TaskID: "load", Status: plan.StatusSuccess, Iterations: 1},
			{TaskID: "calc", Status: plan.StatusSuccess, Iterations: 2, History: []classify.Record{
				{Kind: classify.KindKeyError, Detail: "KeyError: 'revenue'"},
			}},
		},
		Events: []ledger.Event{
			{Type: ledger.EventPlan, Content: "load -> calc", Timestamp: ts},
			{Type: ledger.EventTaskStart, Task: "load", Timestamp: ts},
			{Type: ledger.EventTaskEnd, Task: "load", Content: "success", DurationMs: 812, Timestamp: ts},
			{Type: ledger.EventRunEnd, Content: "complete", DurationMs: 4301, Timestamp: ts},
		},
	}
}

func TestRender_ContainsTimelineAndTasks(t *testing.T) {
	out := Render(sampleRun(), false)

	for _, want := range []string{
		"RUN abc-123",
		"score the customers",
		"TIMELINE (4 events)",
		"▶ TASK: load",
		"PLAN: load -> calc",
		"RUN END: complete",
		"iterations=2",
		"outputs/calc_scores.json",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q", want)
		}
	}

	if strings.Contains(out, "KeyError: 'revenue'") {
		t.Error("history detail should need verbose mode")
	}
}

func TestRender_VerboseIncludesHistory(t *testing.T) {
	out := Render(sampleRun(), true)
	if !strings.Contains(out, "KeyError: 'revenue'") {
		t.Error("verbose output missing error history")
	}
}

func TestReplayer_WritesToOutput(t *testing.T) {
	var sb strings.Builder
	if err := New(&sb, false).Replay(sampleRun()); err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if !strings.Contains(sb.String(), "RUN abc-123") {
		t.Error("nothing written to output")
	}
}

func TestWrapContent_IndentsTableRows(t *testing.T) {
	long := "   1 │ 09:30:00.000 │ " + strings.Repeat("word ", 40)
	out := wrapContent(long, 60)
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected wrapping, got %q", out)
	}
	if !strings.HasPrefix(lines[1], " ") {
		t.Errorf("continuation line not indented: %q", lines[1])
	}
}
