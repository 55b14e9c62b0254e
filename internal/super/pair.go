package super

import (
	"fmt"
	"io"

	"github.com/cybozu-go/walb/internal/blocksize"
	"github.com/cybozu-go/walb/internal/constants"
)

// Offsets returns the physical-block offsets of super0 and super1 within
// the log device, per §6: super0 at page/pbs (skipping the reserved
// first page), super1 at super0 + 1 + metadataSize.
func Offsets(pbs uint32, metadataSize uint32) (super0, super1 uint64) {
	super0 = uint64(constants.PageSize / pbs)
	super1 = super0 + 1 + uint64(metadataSize)
	return
}

// ReadPair reads both super-sector replicas from dev (pbs-sized reads at
// the offsets computed by Offsets) and returns the one that validates
// with the larger written_lsid, per §4.4. If both replicas fail
// validation, the device is declared unrecoverable.
func ReadPair(dev io.ReaderAt, pbs uint32, metadataSize uint32) (*Super, error) {
	off0, off1 := Offsets(pbs, metadataSize)

	s0, buf0, err0 := readOne(dev, pbs, off0)
	s1, _, err1 := readOne(dev, pbs, off1)

	switch {
	case err0 != nil && err1 != nil:
		return nil, fmt.Errorf("super: both replicas invalid: super0: %v; super1: %v", err0, err1)
	case err0 != nil:
		return s1, nil
	case err1 != nil:
		return s0, nil
	default:
		if s1.WrittenLsid > s0.WrittenLsid {
			return s1, nil
		}
		_ = buf0
		return s0, nil
	}
}

func readOne(dev io.ReaderAt, pbs uint32, sectorOff uint64) (*Super, []byte, error) {
	buf := make([]byte, pbs)
	if _, err := dev.ReadAt(buf, int64(sectorOff)*int64(pbs)); err != nil && err != io.EOF {
		return nil, nil, err
	}
	s, err := Decode(buf)
	if err != nil {
		return nil, nil, err
	}
	if err := Validate(buf, s); err != nil {
		return nil, nil, err
	}
	return s, buf, nil
}

// ReadPairAuto reads super0 alone first — its offset only depends on pbs,
// never on metadata_size — to learn metadata_size, then re-reads the full
// pair at the offsets that value implies. This is the primary open path:
// callers don't need to already know metadata_size (e.g. create_dev),
// unlike ReadPair which requires it up front.
func ReadPairAuto(dev io.ReaderAt, pbs uint32) (*Super, error) {
	off0, _ := Offsets(pbs, 0)
	s0, _, err := readOne(dev, pbs, off0)
	if err != nil {
		return nil, fmt.Errorf("super: read super0 to learn metadata_size: %w", err)
	}
	return ReadPair(dev, pbs, s0.MetadataSize)
}

// WritePair serializes s, finalizes the checksum once, and writes the
// same sector to both replica offsets on dev (§4.4 writer steps).
func WritePair(dev io.WriterAt, s *Super) error {
	off0, off1 := Offsets(s.PhysicalBS, s.MetadataSize)
	buf := make([]byte, s.PhysicalBS)
	if err := s.Encode(buf); err != nil {
		return err
	}
	Finalize(buf)

	if _, err := dev.WriteAt(buf, int64(off0)*int64(s.PhysicalBS)); err != nil {
		return fmt.Errorf("super: write super0: %w", err)
	}
	if _, err := dev.WriteAt(buf, int64(off1)*int64(s.PhysicalBS)); err != nil {
		return fmt.Errorf("super: write super1: %w", err)
	}
	return nil
}

// RingBufferOffsetBlocks returns the physical-block offset of the start
// of the ring buffer: super1_offset + 1 (metadata already folded into
// super1's offset).
func RingBufferOffsetBlocks(pbs uint32, metadataSize uint32) uint64 {
	_, super1 := Offsets(pbs, metadataSize)
	return super1 + 1
}

// RingBufferSizeFor computes the ring capacity in physical blocks for a
// log device of ldevLb logical blocks, given pbs and metadataSize — used
// by format_ldev (§4.4, Scenario 1).
func RingBufferSizeFor(pbs uint32, metadataSize uint32, ldevLb uint64) uint64 {
	totalPb := blocksize.AddrPb(pbs, ldevLb)
	ringOff := RingBufferOffsetBlocks(pbs, metadataSize)
	if totalPb <= ringOff {
		return 0
	}
	return totalPb - ringOff
}
