package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw/planweave/internal/plan"
)

// Run checks a plan file without executing anything. With --watch the file is
// re-validated on every save until interrupted.
func (c *ValidateCmd) Run() error {
	if err := validateOnce(c.Plan, c.Columns); err != nil && !c.Watch {
		return err
	}
	if !c.Watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory: editors replace files on save, which drops a
	// watch placed on the file itself
	dir := filepath.Dir(c.Plan)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target, _ := filepath.Abs(c.Plan)
	fmt.Printf("watching %s (ctrl-c to stop)\n", c.Plan)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			changed, _ := filepath.Abs(event.Name)
			if changed != target {
				continue
			}
			// editors often fire while the write is still in flight
			time.Sleep(50 * time.Millisecond)
			fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
			if err := validateOnce(c.Plan, c.Columns); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func validateOnce(path string, columns []string) error {
	graph, err := plan.LoadFile(path)
	if err != nil {
		return err
	}

	res := plan.Validate(graph, columnsOrNil(columns))
	if !res.OK {
		fmt.Printf("INVALID: %d problem(s)\n", len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			fmt.Printf("  - %s\n", d)
		}
		return fmt.Errorf("plan validation failed")
	}

	fmt.Printf("VALID: %d task(s)\n", len(graph.Tasks))
	for i, id := range res.Order {
		fmt.Printf("  %d. %s\n", i+1, id)
	}
	return nil
}
