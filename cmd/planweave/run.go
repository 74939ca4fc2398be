package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/openclaw/planweave/internal/config"
	"github.com/openclaw/planweave/internal/eventbus"
	"github.com/openclaw/planweave/internal/ledger"
	"github.com/openclaw/planweave/internal/llm"
	"github.com/openclaw/planweave/internal/logging"
	"github.com/openclaw/planweave/internal/orchestrator"
	"github.com/openclaw/planweave/internal/plan"
	"github.com/openclaw/planweave/internal/sandbox"
	"github.com/openclaw/planweave/internal/synth"
)

const codeSystemPrompt = "You write small, correct python programs for data-processing steps. " +
	"Respond with a single fenced python code block and nothing else."

const planSystemPrompt = "You decompose objectives into executable task graphs. " +
	"Respond with a single JSON object and nothing else."

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// Run executes a plan file or plans from an objective, then drives every
// task to a terminal state.
func (c *RunCmd) Run() error {
	if c.Plan == "" && c.Objective == "" {
		return fmt.Errorf("either --plan or --objective is required")
	}

	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	log := logging.New()
	if c.Verbose {
		log.SetLevel(logging.LevelDebug)
	}

	provider, err := llm.NewProvider(cfg.LLM, cfg.GetAPIKey())
	if err != nil {
		return fmt.Errorf("configure provider: %w", err)
	}

	exec, err := sandbox.New(cfg.Sandbox)
	if err != nil {
		return err
	}
	if closer, ok := exec.(io.Closer); ok {
		defer closer.Close()
	}

	bus, err := eventbus.New(cfg.Events)
	if err != nil {
		return err
	}
	defer bus.Close()

	loop := synth.NewLoop(llm.NewChatGenerator(provider, codeSystemPrompt), exec, synth.Options{
		Interpreter:     cfg.Sandbox.Interpreter,
		MaxIterations:   cfg.Limits.MaxIterations,
		RepeatThreshold: cfg.Limits.RepeatThreshold,
		Logger:          log.WithComponent("synth"),
	})

	planner := plan.NewPlanner(
		llm.NewChatGenerator(provider, planSystemPrompt),
		cfg.Limits.PlanAttempts,
		log.WithComponent("planner"),
	)

	lm := ledger.NewManager(ledger.NewFileStore(cfg.Ledger.Dir))
	o := orchestrator.New(loop, exec, lm, orchestrator.Options{
		Planner: planner,
		Bus:     bus,
		Logger:  log.WithComponent("orchestrator"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var run *ledger.Run
	if c.Plan != "" {
		graph, err := plan.LoadFile(c.Plan)
		if err != nil {
			return err
		}
		run, err = o.Run(ctx, graph, columnsOrNil(c.Columns), orchestrator.RunInfo{PlanFile: c.Plan})
		if err != nil {
			return err
		}
	} else {
		run, err = o.RunObjective(ctx, c.Objective, columnsOrNil(c.Columns))
		if err != nil {
			return err
		}
	}

	printSummary(run)
	if run.Status != ledger.StatusComplete {
		return fmt.Errorf("run %s did not complete: %s", run.ID, run.Error)
	}
	return nil
}

// columnsOrNil keeps the schema check off when no columns were given.
func columnsOrNil(columns []string) []string {
	if len(columns) == 0 {
		return nil
	}
	return columns
}

func printSummary(run *ledger.Run) {
	fmt.Printf("\nrun %s: %s\n", run.ID, run.Status)
	for _, rec := range run.Tasks {
		fmt.Printf("  %-20s %-8s iterations=%d", rec.TaskID, rec.Status, rec.Iterations)
		if rec.Reason != "" {
			fmt.Printf("  (%s)", rec.Reason)
		}
		fmt.Println()
	}
	if len(run.Variables) > 0 {
		fmt.Println("artifacts:")
		for name, path := range run.Variables {
			fmt.Printf("  %s → %s\n", name, path)
		}
	}
}
