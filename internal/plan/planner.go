package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/planweave/internal/extract"
	"github.com/openclaw/planweave/internal/llm"
	"github.com/openclaw/planweave/internal/logging"
)

// DefaultPlanAttempts bounds plan regeneration before planning fails.
const DefaultPlanAttempts = 3

const planInstructions = `You are a planning engine. Produce a plan as a single JSON object:
{
  "tasks": [
    {
      "id": "unique_task_id",
      "kind": "short label for the kind of step",
      "objective": "what this step must accomplish",
      "input_variables": ["variables consumed, produced by earlier tasks"],
      "output_variables": ["variables this task produces"],
      "dependencies": ["ids of tasks that must succeed first"],
      "config": {"columns_to_load": ["only columns from the known schema"]}
    }
  ]
}
Every input variable must appear in the output_variables of a declared dependency.
The dependency graph must be acyclic. Respond with the JSON object only.`

// Planner obtains a validated task graph from a free-text generator,
// regenerating with diagnostic feedback until the plan passes validation or
// the attempt budget runs out.
type Planner struct {
	gen      llm.Generator
	attempts int
	log      *logging.Logger
}

// NewPlanner creates a planner. attempts <= 0 uses DefaultPlanAttempts.
func NewPlanner(gen llm.Generator, attempts int, log *logging.Logger) *Planner {
	if attempts <= 0 {
		attempts = DefaultPlanAttempts
	}
	if log == nil {
		log = logging.New().WithComponent("planner")
	}
	return &Planner{gen: gen, attempts: attempts, log: log}
}

// GeneratePlan produces a plan for the objective and validates it. On a parse
// failure or validation diagnostics it regenerates with the failure folded
// into the next prompt, up to the attempt budget. The returned
// ValidationResult is from the final attempt.
func (p *Planner) GeneratePlan(ctx context.Context, objective string, knownColumns []string) (*TaskGraph, ValidationResult, error) {
	var feedback string
	var lastResult ValidationResult

	for attempt := 1; attempt <= p.attempts; attempt++ {
		prompt := p.buildPrompt(objective, knownColumns, feedback)

		raw, err := p.gen.Generate(ctx, prompt)
		if err != nil {
			return nil, lastResult, fmt.Errorf("plan generation: %w", err)
		}

		res, err := extract.JSON(raw)
		if err != nil {
			feedback = "your previous response contained no recognizable JSON object"
			p.log.Warn("plan_parse_failed", map[string]interface{}{"attempt": attempt})
			lastResult = ValidationResult{Diagnostics: []string{"generation parse error: no JSON object in response"}}
			continue
		}

		graph, err := Parse([]byte(res.Value))
		if err != nil {
			feedback = fmt.Sprintf("your previous JSON did not decode: %v", err)
			p.log.Warn("plan_decode_failed", map[string]interface{}{"attempt": attempt})
			lastResult = ValidationResult{Diagnostics: []string{fmt.Sprintf("generation parse error: %v", err)}}
			continue
		}

		lastResult = Validate(graph, knownColumns)
		if lastResult.OK {
			return graph, lastResult, nil
		}

		feedback = "your previous plan failed validation:\n- " + strings.Join(lastResult.Diagnostics, "\n- ")
		p.log.ValidationFailed(lastResult.Diagnostics)
	}

	return nil, lastResult, fmt.Errorf("no valid plan after %d attempts: %s",
		p.attempts, strings.Join(lastResult.Diagnostics, "; "))
}

func (p *Planner) buildPrompt(objective string, knownColumns []string, feedback string) string {
	var b strings.Builder
	b.WriteString(planInstructions)
	b.WriteString("\n\nObjective:\n")
	b.WriteString(objective)
	if len(knownColumns) > 0 {
		b.WriteString("\n\nKnown schema columns: ")
		b.WriteString(strings.Join(knownColumns, ", "))
	}
	if feedback != "" {
		b.WriteString("\n\nCorrection required. ")
		b.WriteString(feedback)
	}
	return b.String()
}
