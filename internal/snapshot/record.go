// Package snapshot implements the snapshot sector cache (C10) and
// snapshot record engine (C11): a paginated, bitmap-allocated record
// store with three secondary indices (by id, by name, by lsid) and a
// clean/dirty/free sector-cache state machine.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"regexp"

	"github.com/cybozu-go/walb/internal/checksum"
)

// InvalidLsid mirrors super.InvalidLsid for snapshot lsid fields that
// are unused.
const InvalidLsid uint64 = ^uint64(0)

// InvalidSnapshotID is the sentinel for an unallocated record.
const InvalidSnapshotID uint32 = ^uint32(0)

// RecordSize is the fixed, packed on-disk size of one snapshot record.
const RecordSize = 84

// NameMax is the maximum snapshot name length (name[64], null
// terminated, 1..63 usable characters).
const NameMax = 63

var nameRE = regexp.MustCompile(`^[-_0-9a-zA-Z]{1,63}$`)

// ValidateName enforces the §3 character class and length rule.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("snapshot: invalid name %q: must be 1-63 chars from [-_0-9a-zA-Z]", name)
	}
	return nil
}

// Record is one snapshot checkpoint: an lsid, a timestamp, an ephemeral
// id, and a name.
type Record struct {
	Lsid       uint64
	Timestamp  int64
	SnapshotID uint32
	Name       string
}

// Encode serializes the record into buf (RecordSize bytes).
func (r Record) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Lsid)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(buf[16:20], r.SnapshotID)
	nameBuf := buf[20:84]
	for i := range nameBuf {
		nameBuf[i] = 0
	}
	copy(nameBuf, r.Name)
}

// DecodeRecord parses one record from buf (RecordSize bytes).
func DecodeRecord(buf []byte) Record {
	var r Record
	r.Lsid = binary.LittleEndian.Uint64(buf[0:8])
	r.Timestamp = int64(binary.LittleEndian.Uint64(buf[8:16]))
	r.SnapshotID = binary.LittleEndian.Uint32(buf[16:20])
	r.Name = cStr(buf[20:84])
	return r
}

func cStr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// IsValid checks the name and id invariants of a record claimed to be
// allocated (bitmap bit set).
func (r Record) IsValid() bool {
	if r.SnapshotID == InvalidSnapshotID {
		return false
	}
	return ValidateName(r.Name) == nil
}

// SectorHeaderSize is the fixed portion of a snapshot sector, before its
// records array: checksum(4) + sector_type(2) + reserved(2) + bitmap(8).
const SectorHeaderSize = 16

// SectorType tags a snapshot sector.
const SectorType = 0x0003

// CapacityFor returns the number of record slots a pbs-sized snapshot
// sector holds: min(64, (pbs-header)/84) per §8 boundary behaviors (the
// bitmap is 64 bits wide, so capacity can never exceed 64 regardless of
// how large pbs is).
func CapacityFor(pbs uint32) int {
	n := (int(pbs) - SectorHeaderSize) / RecordSize
	if n > 64 {
		n = 64
	}
	return n
}

// EncodeSector serializes bitmap and records into buf (a whole
// pbs-sized sector), zeroing the checksum field (callers finalize it
// afterward, the same two-step discipline as internal/super).
func EncodeSector(buf []byte, pbs uint32, bitmap uint64, records []Record) error {
	cap := CapacityFor(pbs)
	if len(records) != cap {
		return fmt.Errorf("snapshot: EncodeSector expects %d records, got %d", cap, len(records))
	}
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint16(buf[4:6], SectorType)
	binary.LittleEndian.PutUint64(buf[8:16], bitmap)
	off := SectorHeaderSize
	for _, r := range records {
		r.Encode(buf[off : off+RecordSize])
		off += RecordSize
	}
	return nil
}

// DecodeSector parses bitmap and records from a pbs-sized sector.
func DecodeSector(buf []byte, pbs uint32) (bitmap uint64, records []Record, err error) {
	if binary.LittleEndian.Uint16(buf[4:6]) != SectorType {
		return 0, nil, fmt.Errorf("snapshot: sector_type mismatch")
	}
	bitmap = binary.LittleEndian.Uint64(buf[8:16])
	cap := CapacityFor(pbs)
	records = make([]Record, cap)
	off := SectorHeaderSize
	for i := range records {
		records[i] = DecodeRecord(buf[off : off+RecordSize])
		off += RecordSize
	}
	return bitmap, records, nil
}

// FinalizeSector computes and writes back the sector's unsalted
// checksum (§4.2: "super sector and snapshot sectors use salt=0").
func FinalizeSector(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], 0)
	sum := checksum.Checksum(buf, 0)
	binary.LittleEndian.PutUint32(buf[0:4], sum)
}

// ValidateSector checks sector_type and the unsalted checksum.
func ValidateSector(buf []byte) error {
	if binary.LittleEndian.Uint16(buf[4:6]) != SectorType {
		return fmt.Errorf("snapshot: sector_type mismatch")
	}
	if !checksum.IsZero(buf, 0) {
		return fmt.Errorf("snapshot: checksum non-zero")
	}
	return nil
}

// Bitmap helpers (C10/C11), reimplemented from
// original_source/include/bitmap.h's walb_bitmap_on/off/get primitives
// as plain inline uint64 bit-twiddling: no separate generic bitmap
// package is warranted for a single fixed-width 64-bit word.

func bitOn(bitmap uint64, i int) uint64  { return bitmap | (1 << uint(i)) }
func bitOff(bitmap uint64, i int) uint64 { return bitmap &^ (1 << uint(i)) }
func bitGet(bitmap uint64, i int) bool   { return bitmap&(1<<uint(i)) != 0 }

// firstZeroBit returns the lowest-index clear bit in the low `n` bits of
// bitmap, or -1 if none is free.
func firstZeroBit(bitmap uint64, n int) int {
	for i := 0; i < n; i++ {
		if !bitGet(bitmap, i) {
			return i
		}
	}
	return -1
}

func popcount(bitmap uint64, n int) int {
	count := 0
	for i := 0; i < n; i++ {
		if bitGet(bitmap, i) {
			count++
		}
	}
	return count
}
