// Package super implements the super-sector codec (C5): encode, decode
// and validate the two-replica super sector described in spec §3/§4.4.
package super

import (
	"encoding/binary"
	"fmt"

	"github.com/cybozu-go/walb/internal/checksum"
	"github.com/cybozu-go/walb/internal/constants"
)

// SectorType tags the first two bytes of the sector.
const SectorType = 0x0001

// Version is the current on-disk super-sector format version.
const Version = 2

// InvalidLsid and MaxLsid are the reserved lsid sentinels (spec §3).
const (
	InvalidLsid uint64 = ^uint64(0)
	MaxLsid     uint64 = InvalidLsid - 1
)

// Size is the encoded super-sector length in bytes. It is always less
// than any legal pbs (the minimum pbs equals lbs = 512).
const Size = 136

// Super is the in-memory representation of one logical super-sector
// object (stored redundantly as super0/super1, see ReadPair/WritePair).
type Super struct {
	Checksum        uint32
	LogicalBS       uint32
	PhysicalBS      uint32
	MetadataSize    uint32
	LogChecksumSalt uint32
	UUID            [16]byte
	Name            string
	RingBufferSize  uint64
	OldestLsid      uint64
	WrittenLsid     uint64
	DeviceSize      uint64
}

// Encode serializes s into buf, which must be at least Size bytes (and is
// typically a whole pbs-sized sector, zero-padded beyond Size). The
// checksum field is NOT computed here — callers finish the checksum and
// write it back themselves (§4.4 step (i)-(iii)), matching the codec/
// writer split used throughout this module.
func (s *Super) Encode(buf []byte) error {
	if len(buf) < Size {
		return fmt.Errorf("super: buffer too small: %d < %d", len(buf), Size)
	}
	binary.LittleEndian.PutUint16(buf[0:2], SectorType)
	binary.LittleEndian.PutUint16(buf[2:4], Version)
	binary.LittleEndian.PutUint32(buf[4:8], s.Checksum)
	binary.LittleEndian.PutUint32(buf[8:12], s.LogicalBS)
	binary.LittleEndian.PutUint32(buf[12:16], s.PhysicalBS)
	binary.LittleEndian.PutUint32(buf[16:20], s.MetadataSize)
	binary.LittleEndian.PutUint32(buf[20:24], s.LogChecksumSalt)
	copy(buf[24:40], s.UUID[:])
	nameBuf := buf[40 : 40+constants.DeviceNameMax]
	for i := range nameBuf {
		nameBuf[i] = 0
	}
	copy(nameBuf, s.Name)
	off := 40 + constants.DeviceNameMax
	binary.LittleEndian.PutUint64(buf[off:off+8], s.RingBufferSize)
	binary.LittleEndian.PutUint64(buf[off+8:off+16], s.OldestLsid)
	binary.LittleEndian.PutUint64(buf[off+16:off+24], s.WrittenLsid)
	binary.LittleEndian.PutUint64(buf[off+24:off+32], s.DeviceSize)
	return nil
}

// Decode parses a super sector from buf (must be at least Size bytes).
// It performs only the parse, not validation — callers should call
// Validate afterward.
func Decode(buf []byte) (*Super, error) {
	if len(buf) < Size {
		return nil, fmt.Errorf("super: buffer too small: %d < %d", len(buf), Size)
	}
	s := &Super{}
	s.Checksum = binary.LittleEndian.Uint32(buf[4:8])
	s.LogicalBS = binary.LittleEndian.Uint32(buf[8:12])
	s.PhysicalBS = binary.LittleEndian.Uint32(buf[12:16])
	s.MetadataSize = binary.LittleEndian.Uint32(buf[16:20])
	s.LogChecksumSalt = binary.LittleEndian.Uint32(buf[20:24])
	copy(s.UUID[:], buf[24:40])
	off := 40 + constants.DeviceNameMax
	s.Name = cStr(buf[40:off])
	s.RingBufferSize = binary.LittleEndian.Uint64(buf[off : off+8])
	s.OldestLsid = binary.LittleEndian.Uint64(buf[off+8 : off+16])
	s.WrittenLsid = binary.LittleEndian.Uint64(buf[off+16 : off+24])
	s.DeviceSize = binary.LittleEndian.Uint64(buf[off+24 : off+32])
	return s, nil
}

func cStr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func sectorType(buf []byte) uint16 { return binary.LittleEndian.Uint16(buf[0:2]) }

// Validate checks the parse-level and arithmetic invariants of §3/§4.4
// against the decoded struct and the raw buffer (needed for the
// zero-sum checksum check).
func Validate(buf []byte, s *Super) error {
	if len(buf) < Size {
		return fmt.Errorf("super: buffer too small")
	}
	if sectorType(buf) != SectorType {
		return fmt.Errorf("super: sector_type mismatch: %#x", sectorType(buf))
	}
	if binary.LittleEndian.Uint16(buf[2:4]) != Version {
		return fmt.Errorf("super: version mismatch: %d", binary.LittleEndian.Uint16(buf[2:4]))
	}
	if !checksum.IsZero(buf, 0) {
		return fmt.Errorf("super: checksum non-zero")
	}
	if s.PhysicalBS < s.LogicalBS || s.PhysicalBS%s.LogicalBS != 0 {
		return fmt.Errorf("super: invalid block sizes: pbs=%d lbs=%d", s.PhysicalBS, s.LogicalBS)
	}
	if s.OldestLsid == InvalidLsid || s.WrittenLsid == InvalidLsid {
		return fmt.Errorf("super: lsid must not be INVALID_LSID")
	}
	if s.OldestLsid > s.WrittenLsid {
		return fmt.Errorf("super: oldest_lsid %d > written_lsid %d", s.OldestLsid, s.WrittenLsid)
	}
	// Supplemented bound (original_source/include/walb/super.h
	// __is_valid_super_sector): the live ring contents must fit the ring.
	if s.WrittenLsid-s.OldestLsid > s.RingBufferSize {
		return fmt.Errorf("super: written_lsid - oldest_lsid (%d) exceeds ring_buffer_size (%d)",
			s.WrittenLsid-s.OldestLsid, s.RingBufferSize)
	}
	return nil
}

// Finalize computes and writes back the super sector's own checksum
// (§4.4 step i-iii): zero the checksum field, compute the salt=0
// checksum over the whole pbs buffer, write it back.
func Finalize(buf []byte) {
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	sum := checksum.Checksum(buf, 0)
	binary.LittleEndian.PutUint32(buf[4:8], sum)
}
