// Package redo implements the redo engine (C9): replaying the valid
// pack prefix from written_lsid forward onto the data device and
// advancing written_lsid.
package redo

import (
	"github.com/cybozu-go/walb/internal/blocksize"
	"github.com/cybozu-go/walb/internal/device"
	"github.com/cybozu-go/walb/internal/logging"
	"github.com/cybozu-go/walb/internal/logpack"
	"github.com/cybozu-go/walb/internal/ringbuf"
	"github.com/cybozu-go/walb/internal/sector"
	"github.com/cybozu-go/walb/internal/super"
)

// Result reports what a redo run accomplished, for CLI/control-plane
// reporting (§6 get_completed_lsid and similar).
type Result struct {
	BeginLsid      uint64
	EndLsid        uint64
	NPacksReplayed int
}

// Run replays packs from sup.WrittenLsid forward onto dataDev, following
// §4.8, then advances and rewrites the super sector via logDev. It
// returns the updated super sector and a summary of what was replayed.
// Redo is restartable: running it again with the updated super is a
// no-op, since sup.WrittenLsid already points past everything replayed
// (the idempotence law of §8).
func Run(logDev, dataDev device.Device, sup *super.Super, log *logging.Logger) (*super.Super, Result, error) {
	if log == nil {
		log = logging.Default()
	}
	pbs := sup.PhysicalBS
	salt := sup.LogChecksumSalt
	ringMap := ringbuf.Map{
		RingBufferOffset: super.RingBufferOffsetBlocks(pbs, sup.MetadataSize),
		RingBufferSize:   sup.RingBufferSize,
	}

	lsid := sup.WrittenLsid
	begin := lsid
	replayed := 0

	for {
		offsetPb := ringMap.OffsetOfLsid(lsid)
		header, err := logpack.ReadHeaderFromDevice(logDev, pbs, salt, offsetPb, lsid)
		if err != nil {
			log.Debug("redo: stopping at header read/validation failure", "lsid", lsid, "err", err)
			break
		}

		arr, nValid, err := logpack.ReadDataFromDevice(logDev, header, pbs, salt, offsetPb)
		if err != nil {
			log.Debug("redo: stopping at payload read failure", "lsid", lsid, "err", err)
			break
		}
		if nValid == 0 {
			break
		}

		shrunk := nValid < len(header.Records)
		if shrunk {
			header = header.Shrink(nValid, pbs, salt)
		}

		if err := applyToDataDevice(dataDev, header, arr, pbs); err != nil {
			// A data-device I/O error during redo is fatal to assembly
			// (§7 propagation policy).
			return nil, Result{}, err
		}

		replayed++
		if shrunk {
			break
		}
		lsid = header.GetNextLsid()
	}

	sup.WrittenLsid = lsid
	if err := super.WritePair(logDev, sup); err != nil {
		return nil, Result{}, err
	}

	return sup, Result{BeginLsid: begin, EndLsid: lsid, NPacksReplayed: replayed}, nil
}

// applyToDataDevice writes every non-padding record's payload to the
// data device (§4.8 step 5); discard records are translated to a real
// discard when the data device supports it, otherwise silently skipped.
func applyToDataDevice(dataDev device.Device, header *logpack.Header, arr *sector.Array, pbs uint32) error {
	blockOff := 0
	for _, rec := range header.Records {
		blocks := logpack.RecordBlocks(pbs, rec)
		switch rec.Kind {
		case logpack.KindPadding:
			// No data-device effect; padding exists only to keep pack
			// layout contiguous.
		case logpack.KindDiscard:
			if dd, ok := dataDev.(device.DiscardDevice); ok {
				if err := dd.Discard(int64(rec.Offset)*blocksize.LogicalBlockSize, int64(rec.IOSize)*blocksize.LogicalBlockSize); err != nil {
					return err
				}
			}
		default:
			payload := make([]byte, int64(rec.IOSize)*blocksize.LogicalBlockSize)
			if err := arr.CopyTo(int64(blockOff)*int64(pbs), payload); err != nil {
				return err
			}
			if _, err := dataDev.WriteAt(payload, int64(rec.Offset)*blocksize.LogicalBlockSize); err != nil {
				return err
			}
		}
		blockOff += blocks
	}
	return nil
}
