package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/cybozu-go/walb"
	"github.com/cybozu-go/walb/internal/logging"
)

func openDevice(c *cli.Context) (*walb.Device, func(), error) {
	logDev, dataDev, err := openDevices(c)
	if err != nil {
		return nil, nil, err
	}
	d, err := walb.CreateDev(logDev, dataDev, walb.DefaultDeviceParams(), logging.Default())
	if err != nil {
		logDev.Close()
		dataDev.Close()
		return nil, nil, errors.Wrap(err, "create_dev")
	}
	cleanup := func() {
		d.Close()
		logDev.Close()
		dataDev.Close()
	}
	return d, cleanup, nil
}

var createCommand = &cli.Command{
	Name:  "create",
	Usage: "create_dev: run redo and report the resulting device state",
	Flags: []cli.Flag{logDevFlag, dataDevFlag},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		fmt.Printf("opened device: written_lsid=%d oldest_lsid=%d\n", d.GetWrittenLsid(), d.GetOldestLsid())
		return nil
	},
}

var checkpointCommand = &cli.Command{
	Name:  "checkpoint",
	Usage: "take_checkpoint: flush the log device and persist written_lsid",
	Flags: []cli.Flag{logDevFlag, dataDevFlag},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := d.TakeCheckpoint(); err != nil {
			return errors.Wrap(err, "take_checkpoint")
		}
		fmt.Println("checkpoint taken")
		return nil
	},
}

var getLsidCommand = &cli.Command{
	Name:  "get-lsid",
	Usage: "get_{oldest,written}_lsid, get_log_{usage,capacity}: report the device's lsid state",
	Flags: []cli.Flag{logDevFlag, dataDevFlag},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		fmt.Printf("oldest_lsid=%d\n", d.GetOldestLsid())
		fmt.Printf("written_lsid=%d\n", d.GetWrittenLsid())
		fmt.Printf("log_usage=%d\n", d.GetLogUsage())
		fmt.Printf("log_capacity=%d\n", d.GetLogCapacity())
		fmt.Printf("log_overflow=%t\n", d.IsLogOverflow())
		return nil
	},
}

var setOldestLsidCommand = &cli.Command{
	Name:  "set-oldest-lsid",
	Usage: "set_oldest_lsid: set oldest_lsid, the left edge of the live log",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.Uint64Flag{Name: "lsid", Required: true},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := d.SetOldestLsid(c.Uint64("lsid")); err != nil {
			return errors.Wrap(err, "set_oldest_lsid")
		}
		return nil
	},
}

var resizeCommand = &cli.Command{
	Name:  "resize",
	Usage: "resize: grow the reported data device size (0 = autodetect)",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.Uint64Flag{Name: "size-lb", Value: 0, Usage: "new size in logical blocks, 0 autodetects"},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := d.Resize(c.Uint64("size-lb")); err != nil {
			return errors.Wrap(err, "resize")
		}
		return nil
	},
}

var freezeCommand = &cli.Command{
	Name:  "freeze",
	Usage: "freeze: quiesce the device for up to timeout-sec",
	Flags: []cli.Flag{
		logDevFlag, dataDevFlag,
		&cli.IntFlag{Name: "timeout-sec", Value: 0},
	},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := d.Freeze(time.Duration(c.Int("timeout-sec")) * time.Second); err != nil {
			return errors.Wrap(err, "freeze")
		}
		return nil
	},
}

var meltCommand = &cli.Command{
	Name:  "melt",
	Usage: "melt: resume I/O after freeze",
	Flags: []cli.Flag{logDevFlag, dataDevFlag},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := d.Melt(); err != nil {
			return errors.Wrap(err, "melt")
		}
		return nil
	},
}

var redoCommand = &cli.Command{
	Name:  "redo",
	Usage: "redo: force a redo pass against the current super sector",
	Flags: []cli.Flag{logDevFlag, dataDevFlag},
	Action: func(c *cli.Context) error {
		d, cleanup, err := openDevice(c)
		if err != nil {
			return err
		}
		defer cleanup()
		result, err := d.Redo()
		if err != nil {
			return errors.Wrap(err, "redo")
		}
		fmt.Printf("redo: begin_lsid=%d end_lsid=%d packs_replayed=%d\n", result.BeginLsid, result.EndLsid, result.NPacksReplayed)
		return nil
	},
}
