// Package logpack implements the log-record / log-pack-header codec
// (C6) and the log-pack reader/writer (C8).
package logpack

import "encoding/binary"

// RecordKind is the walb design-notes "flag fields → tagged variant"
// realization (spec §9): EXIST is tracked separately since it is
// universal in this format, and PADDING/DISCARD collapse into one enum
// rather than an independent bitset, matching how the teacher's
// internal/uapi package keeps wire bitsets out of the in-memory struct
// and reconstructs them only in marshal code.
type RecordKind uint8

const (
	KindNormal RecordKind = iota
	KindPadding
	KindDiscard
)

// On-disk flag bits (walb_log_record.flags).
const (
	flagExist   uint8 = 1 << 0
	flagPadding uint8 = 1 << 1
	flagDiscard uint8 = 1 << 2
)

// RecordSize is the fixed, 8-byte-aligned on-disk size of one log
// record.
const RecordSize = 32

// Record is one fixed-size descriptor inside a pack header, describing
// one write, a padding, or a discard.
type Record struct {
	Checksum  uint32
	Exist     bool
	Kind      RecordKind
	Lsid      uint64
	LsidLocal uint64 // position within the pack, counted in physical blocks; >=1
	IOSize    uint64 // logical blocks; <=UINT16_MAX unless Kind==KindDiscard
	Offset    uint64 // target offset into the data device, logical blocks
}

func encodeFlags(exist bool, kind RecordKind) uint8 {
	var f uint8
	if exist {
		f |= flagExist
	}
	switch kind {
	case KindPadding:
		f |= flagPadding
	case KindDiscard:
		f |= flagDiscard
	}
	return f
}

func decodeFlags(f uint8) (exist bool, kind RecordKind) {
	exist = f&flagExist != 0
	switch {
	case f&flagPadding != 0:
		kind = KindPadding
	case f&flagDiscard != 0:
		kind = KindDiscard
	default:
		kind = KindNormal
	}
	return
}

// Encode serializes the record into buf (must be RecordSize bytes).
func (r Record) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], r.Checksum)
	buf[4] = encodeFlags(r.Exist, r.Kind)
	buf[5], buf[6], buf[7] = 0, 0, 0
	binary.LittleEndian.PutUint64(buf[8:16], r.Lsid)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(r.LsidLocal))
	binary.LittleEndian.PutUint16(buf[18:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(r.IOSize))
	binary.LittleEndian.PutUint64(buf[24:32], r.Offset)
}

// DecodeRecord parses one record from buf (must be RecordSize bytes).
func DecodeRecord(buf []byte) Record {
	var r Record
	r.Checksum = binary.LittleEndian.Uint32(buf[0:4])
	r.Exist, r.Kind = decodeFlags(buf[4])
	r.Lsid = binary.LittleEndian.Uint64(buf[8:16])
	r.LsidLocal = uint64(binary.LittleEndian.Uint16(buf[16:18]))
	r.IOSize = uint64(binary.LittleEndian.Uint32(buf[20:24]))
	r.Offset = binary.LittleEndian.Uint64(buf[24:32])
	return r
}

// IsValid checks the per-record invariants of §4.5 step 3 (excluding the
// lsid/logpack_lsid cross-check, which the header validator performs
// since it needs the header's logpack_lsid).
func (r Record) IsValid() bool {
	if !r.Exist {
		return false
	}
	if r.Kind != KindPadding && r.IOSize == 0 {
		return false
	}
	if r.Kind != KindDiscard && r.IOSize > 0xFFFF {
		return false
	}
	if r.LsidLocal < 1 {
		return false
	}
	return true
}
