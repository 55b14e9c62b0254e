package logpack

import (
	"encoding/binary"
	"fmt"

	"github.com/cybozu-go/walb/internal/checksum"
)

// SectorType tags a log-pack header sector.
const SectorType = 0x0002

// InvalidLsid mirrors super.InvalidLsid; duplicated here (rather than
// imported) to keep this package's public surface self-contained for
// callers that only deal in log packs.
const InvalidLsid uint64 = ^uint64(0)

// HeaderSize is the fixed portion of a log-pack header sector, before
// the records array.
const HeaderSize = 24

// Header is a log-pack header: one physical block holding pack-level
// metadata followed by a contiguous array of Records.
type Header struct {
	Checksum    uint32
	TotalIOSize uint32
	LogpackLsid uint64
	NPadding    uint16
	Records     []Record
}

// NRecords returns the number of records in the pack.
func (h *Header) NRecords() int { return len(h.Records) }

// MaxNLogRecordInSector returns the capacity of a pbs-sized header
// sector (§4.5).
func MaxNLogRecordInSector(pbs uint32) int {
	return int((pbs - HeaderSize) / RecordSize)
}

// IsEndMarker reports whether h is the zero-record, INVALID_LSID
// end-of-log sentinel (§8 boundary behaviors).
func (h *Header) IsEndMarker() bool {
	return len(h.Records) == 0 && h.LogpackLsid == InvalidLsid
}

// GetNextLsid returns the lsid the next pack would start at (§4.5).
func (h *Header) GetNextLsid() uint64 {
	if h.TotalIOSize == 0 && len(h.Records) == 0 {
		return h.LogpackLsid
	}
	return h.LogpackLsid + 1 + uint64(h.TotalIOSize)
}

// Encode serializes the header and its records into buf (a whole
// pbs-sized sector). The checksum field is written as-is (zero it
// first, then call Finalize once the buffer is otherwise complete, the
// same two-step discipline as internal/super).
func (h *Header) Encode(buf []byte, pbs uint32) error {
	if uint32(len(buf)) < pbs {
		return fmt.Errorf("logpack: buffer smaller than pbs")
	}
	if len(h.Records) > MaxNLogRecordInSector(pbs) {
		return fmt.Errorf("logpack: %d records exceeds sector capacity %d", len(h.Records), MaxNLogRecordInSector(pbs))
	}
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], h.Checksum)
	binary.LittleEndian.PutUint16(buf[4:6], SectorType)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(h.Records)))
	binary.LittleEndian.PutUint16(buf[8:10], h.NPadding)
	binary.LittleEndian.PutUint16(buf[10:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], h.TotalIOSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.LogpackLsid)

	off := HeaderSize
	for _, r := range h.Records {
		r.Encode(buf[off : off+RecordSize])
		off += RecordSize
	}
	return nil
}

// DecodeHeader parses a header and its n_records records from buf (a
// whole pbs-sized sector).
func DecodeHeader(buf []byte, pbs uint32) (*Header, error) {
	if uint32(len(buf)) < pbs || pbs < HeaderSize {
		return nil, fmt.Errorf("logpack: buffer too small")
	}
	h := &Header{}
	h.Checksum = binary.LittleEndian.Uint32(buf[0:4])
	st := binary.LittleEndian.Uint16(buf[4:6])
	if st != SectorType {
		return nil, fmt.Errorf("logpack: sector_type mismatch: %#x", st)
	}
	nRecords := binary.LittleEndian.Uint16(buf[6:8])
	h.NPadding = binary.LittleEndian.Uint16(buf[8:10])
	h.TotalIOSize = binary.LittleEndian.Uint32(buf[12:16])
	h.LogpackLsid = binary.LittleEndian.Uint64(buf[16:24])

	if int(nRecords) > MaxNLogRecordInSector(pbs) {
		return nil, fmt.Errorf("logpack: n_records %d exceeds sector capacity", nRecords)
	}
	h.Records = make([]Record, nRecords)
	off := HeaderSize
	for i := range h.Records {
		h.Records[i] = DecodeRecord(buf[off : off+RecordSize])
		off += RecordSize
	}
	return h, nil
}

// Shrink builds the "shrunken header" the redo engine uses when fewer
// than NRecords() payloads validated (§4.8 step 4): records
// [0, nValid) are kept, total_io_size and n_padding are recomputed from
// the surviving records, and the checksum is refinalized.
func (h *Header) Shrink(nValid int, pbs uint32, salt uint32) *Header {
	out := &Header{LogpackLsid: h.LogpackLsid, Records: append([]Record(nil), h.Records[:nValid]...)}
	var total uint32
	var padding uint16
	for _, r := range out.Records {
		total += uint32(RecordBlocks(pbs, r))
		if r.Kind == KindPadding {
			padding++
		}
	}
	out.TotalIOSize = total
	out.NPadding = padding
	if len(out.Records) > 0 {
		buf := make([]byte, pbs)
		_ = out.Encode(buf, pbs)
		Finalize(buf, salt)
		out.Checksum = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	}
	return out
}

// Finalize computes and writes back the header's salted checksum, the
// same zero-then-compute discipline as internal/super.Finalize, but over
// the device's log_checksum_salt rather than salt=0 (§4.2).
func Finalize(buf []byte, salt uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], 0)
	sum := checksum.Checksum(buf, salt)
	binary.LittleEndian.PutUint32(buf[0:4], sum)
}

// Validate runs the §4.5 validation pipeline against a decoded header
// and its raw buffer.
func Validate(buf []byte, h *Header, pbs uint32, salt uint32) error {
	if h.IsEndMarker() {
		return nil
	}
	if len(h.Records) == 0 {
		if h.TotalIOSize != 0 || h.NPadding != 0 {
			return fmt.Errorf("logpack: zero-record header must have total_io_size=0 and n_padding=0")
		}
	} else {
		if h.NPadding > 1 || int(h.NPadding) > len(h.Records) {
			return fmt.Errorf("logpack: n_padding %d invalid for %d records", h.NPadding, len(h.Records))
		}
		if h.LogpackLsid+1+uint64(h.TotalIOSize) < h.LogpackLsid {
			return fmt.Errorf("logpack: logpack_lsid + 1 + total_io_size wraps")
		}
		if !checksum.IsZero(buf[:pbs], salt) {
			return fmt.Errorf("logpack: checksum non-zero")
		}
	}
	for i, r := range h.Records {
		if !r.IsValid() {
			return fmt.Errorf("logpack: record %d fails validation", i)
		}
		if r.Lsid-r.LsidLocal != h.LogpackLsid {
			return fmt.Errorf("logpack: record %d lsid-lsid_local %d != logpack_lsid %d", i, r.Lsid-r.LsidLocal, h.LogpackLsid)
		}
	}
	return nil
}
