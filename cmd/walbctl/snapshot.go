package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var snapshotCommand = &cli.Command{
	Name:  "snapshot",
	Usage: "snapshot_*: manage the on-device snapshot record engine",
	Subcommands: []*cli.Command{
		snapshotAddCommand,
		snapshotDelCommand,
		snapshotListCommand,
		snapshotGetCommand,
	},
}

var snapshotAddCommand = &cli.Command{
	Name:  "add",
	Usage: "snapshot_add: record a named checkpoint at an lsid",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.StringFlag{Name: "name", Required: true},
		&cli.Uint64Flag{Name: "lsid", Required: true},
		&cli.Int64Flag{Name: "timestamp", Usage: "unix seconds; defaults to 0 if unset"},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		id, err := d.Snapshots().Add(c.String("name"), c.Uint64("lsid"), c.Int64("timestamp"))
		if err != nil {
			return errors.Wrap(err, "snapshot_add")
		}
		fmt.Printf("added snapshot %q id=%d\n", c.String("name"), id)
		return nil
	},
}

var snapshotDelCommand = &cli.Command{
	Name:  "del",
	Usage: "snapshot_del: remove a snapshot by name, or by lsid range",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.StringFlag{Name: "name"},
		&cli.Uint64Flag{Name: "lsid0"},
		&cli.Uint64Flag{Name: "lsid1"},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()

		if name := c.String("name"); name != "" {
			if err := d.Snapshots().DelByName(name); err != nil {
				return errors.Wrap(err, "snapshot_del")
			}
			fmt.Printf("deleted snapshot %q\n", name)
			return nil
		}
		if lsid0, lsid1, ok := parseLsidRange(c); ok {
			n, err := d.Snapshots().DelRange(lsid0, lsid1)
			if err != nil {
				return errors.Wrap(err, "snapshot_del")
			}
			fmt.Printf("deleted %d snapshots in [%d, %d)\n", n, lsid0, lsid1)
			return nil
		}
		return errors.New("snapshot del requires either --name or --lsid0/--lsid1")
	},
}

var snapshotListCommand = &cli.Command{
	Name:  "list",
	Usage: "snapshot_list: list snapshots, optionally restricted to an lsid range",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.Uint64Flag{Name: "lsid0"},
		&cli.Uint64Flag{Name: "lsid1"},
		&cli.IntFlag{Name: "max", Value: 1000},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()

		if lsid0, lsid1, ok := parseLsidRange(c); ok {
			got, _ := d.Snapshots().ListRange(lsid0, lsid1, c.Int("max"))
			for _, r := range got {
				fmt.Printf("%-20s id=%-8d lsid=%-12d timestamp=%d\n", r.Name, r.SnapshotID, r.Lsid, r.Timestamp)
			}
			return nil
		}
		got, _ := d.Snapshots().ListFrom(0, c.Int("max"))
		for _, r := range got {
			fmt.Printf("%-20s id=%-8d lsid=%-12d timestamp=%d\n", r.Name, r.SnapshotID, r.Lsid, r.Timestamp)
		}
		return nil
	},
}

var snapshotGetCommand = &cli.Command{
	Name:  "get",
	Usage: "snapshot_get: look up one snapshot by name",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.StringFlag{Name: "name", Required: true},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		r, err := d.Snapshots().GetByName(c.String("name"))
		if err != nil {
			return errors.Wrap(err, "snapshot_get")
		}
		fmt.Printf("%-20s id=%-8d lsid=%-12d timestamp=%d\n", r.Name, r.SnapshotID, r.Lsid, r.Timestamp)
		return nil
	},
}
