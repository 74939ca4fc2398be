package plan

import (
	"context"
	"strings"
	"testing"

	"github.com/openclaw/planweave/internal/llm"
)

const validPlanJSON = "```json\n" + `{
	"tasks": [
		{"id": "load", "output_variables": ["df"]},
		{"id": "calc", "input_variables": ["df"], "dependencies": ["load"]}
	]
}` + "\n```"

func TestPlanner_FirstAttemptSucceeds(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(validPlanJSON)
	gen := llm.NewChatGenerator(provider, "")

	p := NewPlanner(gen, 3, nil)
	graph, res, err := p.GeneratePlan(context.Background(), "compute scores", nil)
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if !res.OK || len(graph.Tasks) != 2 {
		t.Errorf("unexpected result: ok=%v tasks=%d", res.OK, len(graph.Tasks))
	}
	if provider.CallCount() != 1 {
		t.Errorf("expected 1 generation, got %d", provider.CallCount())
	}
}

func TestPlanner_RegeneratesWithDiagnosticFeedback(t *testing.T) {
	invalid := "```json\n" + `{"tasks": [
		{"id": "calc", "input_variables": ["df"]}
	]}` + "\n```"

	provider := llm.NewMockProvider()
	provider.QueueResponses(invalid, validPlanJSON)
	gen := llm.NewChatGenerator(provider, "")

	p := NewPlanner(gen, 3, nil)
	graph, _, err := p.GeneratePlan(context.Background(), "compute scores", nil)
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if graph.Node("load") == nil {
		t.Error("expected regenerated plan")
	}

	req := provider.LastRequest()
	last := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(last, "failed validation") || !strings.Contains(last, "df") {
		t.Errorf("second prompt should carry diagnostics, got %q", last)
	}
}

func TestPlanner_UnparsableOutputExhaustsBudget(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("I cannot produce a plan right now.")
	gen := llm.NewChatGenerator(provider, "")

	p := NewPlanner(gen, 3, nil)
	_, res, err := p.GeneratePlan(context.Background(), "compute scores", nil)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if provider.CallCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", provider.CallCount())
	}
	if len(res.Diagnostics) == 0 {
		t.Error("expected final diagnostics")
	}
}

func TestPlanner_PromptCarriesSchemaColumns(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(validPlanJSON)
	gen := llm.NewChatGenerator(provider, "")

	p := NewPlanner(gen, 1, nil)
	if _, _, err := p.GeneratePlan(context.Background(), "compute scores", []string{"age", "income"}); err != nil {
		t.Fatalf("plan error: %v", err)
	}

	req := provider.LastRequest()
	prompt := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(prompt, "age, income") {
		t.Errorf("prompt should list known columns, got %q", prompt)
	}
}
