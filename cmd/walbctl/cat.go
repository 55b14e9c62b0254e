package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/cybozu-go/walb/internal/logpack"
	"github.com/cybozu-go/walb/internal/ringbuf"
	"github.com/cybozu-go/walb/internal/super"
	"github.com/cybozu-go/walb/internal/walblog"
)

var catCommand = &cli.Command{
	Name:  "cat",
	Usage: "archive [lsid0, lsid1) from the log device to a walblog stream on stdout",
	Flags: []cli.Flag{
		logDevFlag,
		&cli.Uint64Flag{Name: "lsid0", Required: true},
		&cli.Uint64Flag{Name: "lsid1", Required: true},
		&cli.UintFlag{Name: "pbs", Value: 4096},
	},
	Action: func(c *cli.Context) error {
		logDev, err := openLogDevOnly(c)
		if err != nil {
			return err
		}
		defer logDev.Close()

		pbs := uint32(c.Uint("pbs"))
		sup, err := super.ReadPair(logDev, pbs, 0)
		if err != nil {
			return errors.Wrap(err, "read super sector")
		}
		ring := ringbuf.Map{RingBufferOffset: super.RingBufferOffsetBlocks(pbs, sup.MetadataSize), RingBufferSize: sup.RingBufferSize}

		w := walblog.NewWriter(os.Stdout, sup.LogicalBS, pbs, sup.LogChecksumSalt, sup.UUID, c.Uint64("lsid0"))

		lsid := c.Uint64("lsid0")
		lsid1 := c.Uint64("lsid1")
		for lsid < lsid1 {
			offsetPb := ring.OffsetOfLsid(lsid)
			h, err := logpack.ReadHeaderFromDevice(logDev, pbs, sup.LogChecksumSalt, offsetPb, lsid)
			if err != nil {
				return errors.Wrapf(err, "read header at lsid %d", lsid)
			}
			if h.IsEndMarker() {
				break
			}
			payload, nValid, err := logpack.ReadDataFromDevice(logDev, h, pbs, sup.LogChecksumSalt, offsetPb)
			if err != nil {
				return errors.Wrapf(err, "read payload at lsid %d", lsid)
			}
			if nValid < len(h.Records) {
				break
			}
			if err := w.WritePack(&logpack.Pack{Header: h, Payload: payload}); err != nil {
				return errors.Wrap(err, "write walblog pack")
			}
			lsid = h.GetNextLsid()
		}
		return nil
	},
}
