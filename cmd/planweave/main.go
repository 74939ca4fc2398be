// Command planweave plans, validates, and executes task graphs whose steps
// are synthesized, sandboxed programs.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	// .env is optional; API keys usually live there during development
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("planweave"),
		kong.Description("Task-graph planner with sandboxed, iterative code synthesis."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run())
}
