package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/cybozu-go/walb/internal/device"
)

var (
	logDevFlag  = &cli.StringFlag{Name: "log-dev", Required: true, Usage: "path to the log device"}
	dataDevFlag = &cli.StringFlag{Name: "data-dev", Required: true, Usage: "path to the data device"}
)

// openDevices opens the log and data device paths given on the command
// line via internal/device.OpenFileDevice, the same positional-I/O path
// walbctl's callers would use against a real block device.
func openDevices(c *cli.Context) (*device.FileDevice, *device.FileDevice, error) {
	logDev, err := device.OpenFileDevice(c.String("log-dev"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log device")
	}
	dataDev, err := device.OpenFileDevice(c.String("data-dev"))
	if err != nil {
		logDev.Close()
		return nil, nil, errors.Wrap(err, "open data device")
	}
	return logDev, dataDev, nil
}

// openLogDevOnly opens just the log device, for read-only commands
// (e.g. cat) that never touch the data device.
func openLogDevOnly(c *cli.Context) (*device.FileDevice, error) {
	logDev, err := device.OpenFileDevice(c.String("log-dev"))
	if err != nil {
		return nil, errors.Wrap(err, "open log device")
	}
	return logDev, nil
}

// parseLsidRange reads --lsid0/--lsid1 into a range, per the §6 CLI
// convention, and reports false unless both are set. Only the lsid form
// is parsed; no command resolves a range given by snapshot names.
func parseLsidRange(c *cli.Context) (uint64, uint64, bool) {
	if !c.IsSet("lsid0") || !c.IsSet("lsid1") {
		return 0, 0, false
	}
	return c.Uint64("lsid0"), c.Uint64("lsid1"), true
}
