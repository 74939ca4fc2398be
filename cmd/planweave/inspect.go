package main

import (
	"fmt"
	"strings"

	"github.com/openclaw/planweave/internal/plan"
)

// Run prints the structure of a plan file: tasks, variable flow, and the
// order execution would take. Nothing runs.
func (c *InspectCmd) Run() error {
	graph, err := plan.LoadFile(c.Plan)
	if err != nil {
		return err
	}

	fmt.Printf("plan: %s (%d tasks)\n\n", c.Plan, len(graph.Tasks))
	for _, task := range graph.Tasks {
		fmt.Printf("%s [%s]\n", task.ID, task.Kind)
		fmt.Printf("  objective: %s\n", task.Objective)
		if len(task.Dependencies) > 0 {
			fmt.Printf("  depends on: %s\n", strings.Join(task.Dependencies, ", "))
		}
		if len(task.InputVariables) > 0 {
			fmt.Printf("  consumes: %s\n", strings.Join(task.InputVariables, ", "))
		}
		if len(task.OutputVariables) > 0 {
			fmt.Printf("  produces: %s\n", strings.Join(task.OutputVariables, ", "))
		}
		fmt.Println()
	}

	res := plan.Validate(graph, nil)
	if !res.OK {
		fmt.Printf("plan is invalid:\n")
		for _, d := range res.Diagnostics {
			fmt.Printf("  - %s\n", d)
		}
		return fmt.Errorf("plan validation failed")
	}
	fmt.Printf("execution order: %s\n", strings.Join(res.Order, " -> "))
	return nil
}
