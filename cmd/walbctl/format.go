package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/cybozu-go/walb"
	"github.com/cybozu-go/walb/internal/constants"
)

var formatCommand = &cli.Command{
	Name:  "format",
	Usage: "format_ldev: initialize a log device's super sectors and snapshot region",
	Flags: []cli.Flag{
		logDevFlag,
		dataDevFlag,
		&cli.StringFlag{Name: "name", Required: true, Usage: "device name stored in the super sector"},
		&cli.UintFlag{Name: "n-snapshots", Value: constants.DefaultNSnapshots, Usage: "number of snapshot record slots to reserve"},
		&cli.UintFlag{Name: "lbs", Value: constants.LogicalBlockSize, Usage: "logical block size"},
		&cli.UintFlag{Name: "pbs", Value: constants.DefaultPhysicalBlockSize, Usage: "physical block size"},
		&cli.BoolFlag{Name: "nodiscard", Usage: "inhibit whole-device discard during format"},
	},
	Action: func(c *cli.Context) error {
		logDev, dataDev, err := openDevices(c)
		if err != nil {
			return err
		}
		defer logDev.Close()
		defer dataDev.Close()

		sup, err := walb.FormatLdev(logDev, dataDev,
			uint32(c.Uint("lbs")), uint32(c.Uint("pbs")),
			uint32(c.Uint("n-snapshots")), c.String("name"), c.Bool("nodiscard"))
		if err != nil {
			return errors.Wrap(err, "format_ldev")
		}
		fmt.Printf("formatted %q: ring_buffer_size=%d metadata_size=%d\n", c.String("name"), sup.RingBufferSize, sup.MetadataSize)
		return nil
	},
}
