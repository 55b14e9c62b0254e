// Command walbctl is the control-plane CLI for walb (§6): format and
// open devices, drive checkpoints/resize/freeze/melt, manage the
// snapshot engine, force a redo pass, and archive log packs to a walblog
// stream (cat); there is no command that replays a walblog stream. Mirrors the teacher's single flag-parsing entry point
// (cmd/ublk-mem/main.go) generalized to a multi-subcommand tool in the
// style of github.com/urfave/cli/v2, as used for command dispatch in
// the mendersoftware-mender retrieval-pack repo's cli package.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/cybozu-go/walb/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "walbctl",
		Usage: "control-plane CLI for walb block-level write-ahead logging",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			cfg := logging.DefaultConfig()
			if c.Bool("verbose") {
				cfg.Level = logging.LevelDebug
			}
			logging.SetDefault(logging.NewLogger(cfg))
			return nil
		},
		Commands: []*cli.Command{
			formatCommand,
			createCommand,
			checkpointCommand,
			getLsidCommand,
			setOldestLsidCommand,
			resizeCommand,
			freezeCommand,
			meltCommand,
			redoCommand,
			catCommand,
			snapshotCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "walbctl: %s\n", errors.Cause(err))
		os.Exit(1)
	}
}
