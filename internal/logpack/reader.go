package logpack

import (
	"fmt"
	"io"

	"github.com/cybozu-go/walb/internal/checksum"
	"github.com/cybozu-go/walb/internal/sector"
)

// ReadHeaderFromDevice reads one pbs-sized header sector at offsetPb and
// validates it as a device-backed header (§4.7): it must decode, satisfy
// header.LogpackLsid == lsid, and pass Validate (checksum included,
// unless it is the end marker).
func ReadHeaderFromDevice(r io.ReaderAt, pbs uint32, salt uint32, offsetPb uint64, lsid uint64) (*Header, error) {
	buf := make([]byte, pbs)
	if _, err := r.ReadAt(buf, int64(offsetPb)*int64(pbs)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("logpack: read header: %w", err)
	}
	h, err := DecodeHeader(buf, pbs)
	if err != nil {
		return nil, err
	}
	if !h.IsEndMarker() && h.LogpackLsid != lsid {
		return nil, fmt.Errorf("logpack: header logpack_lsid %d != expected %d", h.LogpackLsid, lsid)
	}
	if err := Validate(buf, h, pbs, salt); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadDataFromDevice reads each record's payload from the device into a
// freshly allocated sector.Array contiguously starting at offsetPb+1,
// then verifies each non-discard, non-padding record's checksum against
// what was read. It returns the index of the first record that fails to
// validate (== len(h.Records) when all pass), matching
// read_logpack_data_from_wldev's partial_count contract (§4.7): padding
// payload bytes are read (to keep offsets contiguous) but not
// checksummed.
func ReadDataFromDevice(r io.ReaderAt, h *Header, pbs uint32, salt uint32, offsetPb uint64) (*sector.Array, int, error) {
	total := int(h.TotalIOSize)
	arr := sector.NewArray(pbs, total)
	if total > 0 {
		if err := arr.PReadAt(r, int64(offsetPb)+1); err != nil {
			return nil, 0, fmt.Errorf("logpack: read payload: %w", err)
		}
	}

	blockOff := 0
	for i, rec := range h.Records {
		blocks := recordBlocks(pbs, rec)
		if rec.Kind == KindDiscard || rec.Kind == KindPadding {
			blockOff += blocks
			continue
		}
		payload := make([]byte, blocks*int(pbs))
		if err := arr.CopyTo(int64(blockOff)*int64(pbs), payload); err != nil {
			return arr, i, nil
		}
		if checksum.Checksum(payload, salt) != rec.Checksum {
			return arr, i, nil
		}
		blockOff += blocks
	}
	return arr, len(h.Records), nil
}

// RecordBlocks returns the number of physical blocks a record's payload
// occupies within the pack (0 for discard records).
func RecordBlocks(pbs uint32, r Record) int {
	return recordBlocks(pbs, r)
}

func recordBlocks(pbs uint32, r Record) int {
	if r.Kind == KindDiscard {
		return 0
	}
	n := pbs / 512
	blocks := (uint32(r.IOSize) + n - 1) / n
	return int(blocks)
}

// ReadHeaderFromStream reads a header sequentially from a non-seekable
// stream (e.g. a walblog file) and checks it with Validate (§4.7). The
// header checksum is verified only for headers that carry records: an
// end marker or a zero-record (flush) header is accepted without a
// checksum check.
func ReadHeaderFromStream(r io.Reader, pbs uint32, salt uint32) (*Header, error) {
	buf := make([]byte, pbs)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	h, err := DecodeHeader(buf, pbs)
	if err != nil {
		return nil, err
	}
	if !h.IsEndMarker() {
		if err := Validate(buf, h, pbs, salt); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// ReadDataFromStream reads exactly TotalIOSize physical blocks
// sequentially and validates each non-discard, non-padding record's
// checksum,
// returning an error on the first mismatch (a stream has no fallback
// "partial count" semantics — callers treat any failure as EOF of the
// usable stream).
func ReadDataFromStream(r io.Reader, h *Header, pbs uint32, salt uint32) (*sector.Array, error) {
	total := int(h.TotalIOSize)
	arr := sector.NewArray(pbs, total)
	for i := 0; i < total; i++ {
		if _, err := io.ReadFull(r, arr.At(i).Bytes()); err != nil {
			return nil, err
		}
	}

	blockOff := 0
	for _, rec := range h.Records {
		blocks := recordBlocks(pbs, rec)
		if rec.Kind == KindDiscard || rec.Kind == KindPadding {
			blockOff += blocks
			continue
		}
		payload := make([]byte, blocks*int(pbs))
		if err := arr.CopyTo(int64(blockOff)*int64(pbs), payload); err != nil {
			return nil, err
		}
		if checksum.Checksum(payload, salt) != rec.Checksum {
			return nil, fmt.Errorf("logpack: record checksum mismatch in stream")
		}
		blockOff += blocks
	}
	return arr, nil
}
