package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw/planweave/internal/ledger"
	"github.com/openclaw/planweave/internal/replay"
)

// Run renders a recorded run. With no run id the most recent run is shown.
// --follow keeps the view live while the run is still being written.
func (c *ReplayCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	store := ledger.NewFileStore(cfg.Ledger.Dir)

	id := c.RunID
	if id == "" {
		id, err = store.Latest()
		if err != nil {
			return err
		}
	}

	run, err := store.Load(id)
	if err != nil {
		return err
	}

	if c.NoPager {
		fmt.Fprint(os.Stdout, replay.Render(run, c.Verbose))
		return nil
	}

	pager := replay.NewPager("planweave replay: " + id)
	if c.Follow {
		path := filepath.Join(cfg.Ledger.Dir, id+".json")
		return pager.RunLive(path, func() (string, error) {
			current, err := store.Load(id)
			if err != nil {
				return "", err
			}
			return replay.Render(current, c.Verbose), nil
		})
	}
	return pager.Run(replay.Render(run, c.Verbose))
}
