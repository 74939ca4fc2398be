package plan

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationResult is the outcome of a static plan check. Plan defects are
// diagnostics, never errors; an invalid plan is data the caller can feed back
// into regeneration.
type ValidationResult struct {
	OK          bool
	Order       []string // complete topological order when acyclic
	Diagnostics []string
}

// Validate checks a task graph for structural integrity before anything runs:
// duplicate or unresolved task ids, dependency cycles, that every consumed
// variable is produced by a declared dependency, and optionally that every
// declared schema column is known. knownColumns may be nil to skip the
// schema check.
func Validate(g *TaskGraph, knownColumns []string) ValidationResult {
	var diags []string

	seen := make(map[string]bool, len(g.Tasks))
	for _, t := range g.Tasks {
		if t.ID == "" {
			diags = append(diags, "task with empty id")
			continue
		}
		if seen[t.ID] {
			diags = append(diags, fmt.Sprintf("duplicate task id %q", t.ID))
		}
		seen[t.ID] = true
	}

	for _, t := range g.Tasks {
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				diags = append(diags, fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep))
			}
		}
	}

	order, cycleDiags := topologicalOrder(g)
	diags = append(diags, cycleDiags...)

	// Variable-flow replay only makes sense over a complete order.
	if len(cycleDiags) == 0 && len(order) == len(g.Tasks) {
		diags = append(diags, replayVariableFlow(g, order)...)
	}

	if knownColumns != nil {
		diags = append(diags, checkColumns(g, knownColumns)...)
	}

	return ValidationResult{
		OK:          len(diags) == 0,
		Order:       order,
		Diagnostics: diags,
	}
}

// topologicalOrder runs Kahn's in-degree reduction, keeping the plan's
// declared task order among ready nodes so results are deterministic. When a
// cycle exists the returned order is partial and the diagnostics name every
// node with unresolved in-degree.
func topologicalOrder(g *TaskGraph) ([]string, []string) {
	indegree := make(map[string]int, len(g.Tasks))
	dependents := make(map[string][]string, len(g.Tasks))

	for _, t := range g.Tasks {
		if _, ok := indegree[t.ID]; !ok {
			indegree[t.ID] = 0
		}
		for _, dep := range t.Dependencies {
			if g.Node(dep) == nil {
				continue // unresolved deps reported separately
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var queue []string
	for _, t := range g.Tasks {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) == len(g.Tasks) {
		return order, nil
	}

	var stuck []string
	for _, t := range g.Tasks {
		if indegree[t.ID] > 0 {
			stuck = append(stuck, t.ID)
		}
	}
	sort.Strings(stuck)
	return order, []string{fmt.Sprintf("dependency cycle involving: %s", strings.Join(stuck, ", "))}
}

// replayVariableFlow checks that every input variable a task consumes is in
// the output set of a declared dependency, directly or transitively. A
// producer that merely happens to run earlier in the order does not count;
// the dependency edge must exist, otherwise the plan only works by accident
// of tie-breaking.
func replayVariableFlow(g *TaskGraph, order []string) []string {
	var diags []string

	// provided[id] is everything id's transitive dependencies produce.
	// Walking the order guarantees every dependency is resolved first.
	provided := make(map[string]map[string]bool, len(g.Tasks))

	for _, id := range order {
		t := g.Node(id)
		available := make(map[string]bool)
		for _, dep := range t.Dependencies {
			d := g.Node(dep)
			if d == nil {
				continue
			}
			for name := range provided[dep] {
				available[name] = true
			}
			for _, out := range d.OutputVariables {
				available[out] = true
			}
		}
		provided[id] = available

		var missing []string
		for _, in := range t.InputVariables {
			if !available[in] {
				missing = append(missing, in)
			}
		}
		if len(missing) > 0 {
			diags = append(diags, fmt.Sprintf(
				"task %q requires variables not produced by its dependencies: %s (available: %s)",
				id, strings.Join(missing, ", "), availableList(available)))
		}
	}
	return diags
}

func availableList(available map[string]bool) string {
	if len(available) == 0 {
		return "none"
	}
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// checkColumns verifies every column a task declares under "columns_to_load"
// is a member of the known schema.
func checkColumns(g *TaskGraph, knownColumns []string) []string {
	known := make(map[string]bool, len(knownColumns))
	for _, c := range knownColumns {
		known[c] = true
	}

	var diags []string
	for _, t := range g.Tasks {
		for _, col := range t.ColumnsToLoad() {
			if !known[col] {
				diags = append(diags, fmt.Sprintf("task %q references unknown column %q", t.ID, col))
			}
		}
	}
	return diags
}
