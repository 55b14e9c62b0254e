package logpack

import (
	"fmt"
	"io"

	"github.com/cybozu-go/walb/internal/blocksize"
	"github.com/cybozu-go/walb/internal/checksum"
	"github.com/cybozu-go/walb/internal/sector"
)

// WriteRequest describes one I/O request arriving at the walb device,
// the writer's unit of input (§4.6).
type WriteRequest struct {
	OffsetLb uint64 // target offset into the data device, logical blocks
	IOSizeLb uint64 // > 0 unless Discard; a flush-only pack is built from an empty request list
	Discard  bool
	Payload  []byte // io_size_lb * 512 bytes; empty for Discard
}

// Pack is a fully built, checksum-finalized log pack ready to write to
// the log device: one header sector plus its payload sectors.
type Pack struct {
	Header  *Header
	Payload *sector.Array // Len() == TotalIOSize physical blocks
}

// BuildPack constructs a pack from a batch of write requests at
// logpackLsid, following the §4.6 writer algorithm: one record per
// request, capacity_pb block accounting, a single padding record
// inserted after a discard immediately followed by a non-discard record
// (see DESIGN.md's Open Question decision), per-record and header
// checksums.
func BuildPack(pbs uint32, salt uint32, logpackLsid uint64, reqs []WriteRequest) (*Pack, error) {
	if len(reqs) > MaxNLogRecordInSector(pbs) {
		return nil, fmt.Errorf("logpack: %d requests exceeds header capacity %d", len(reqs), MaxNLogRecordInSector(pbs))
	}

	h := &Header{LogpackLsid: logpackLsid}
	var payloadBlocks []byte // concatenated physical-block payload, built incrementally
	var nextLsidLocal uint64 = 1
	paddingUsed := false

	appendRecord := func(r Record, payload []byte) {
		h.Records = append(h.Records, r)
		payloadBlocks = append(payloadBlocks, payload...)
	}

	for i, req := range reqs {
		if req.Discard {
			// A discard contributes no data blocks, so per §4.2's lsid_local
			// formula (sum of capacity_pb over preceding non-discard records)
			// it must not advance nextLsidLocal.
			rec := Record{
				Exist:     true,
				Kind:      KindDiscard,
				Lsid:      logpackLsid + nextLsidLocal,
				LsidLocal: nextLsidLocal,
				IOSize:    req.IOSizeLb,
				Offset:    req.OffsetLb,
			}
			appendRecord(rec, nil)

			nextIsNonDiscard := i+1 < len(reqs) && !reqs[i+1].Discard
			if nextIsNonDiscard && !paddingUsed {
				padBlocks := blocksize.CapacityPb(pbs, 1)
				padLb := uint64(padBlocks) * uint64(blocksize.NLbInPb(pbs))
				padRec := Record{
					Exist:     true,
					Kind:      KindPadding,
					Lsid:      logpackLsid + nextLsidLocal,
					LsidLocal: nextLsidLocal,
					IOSize:    padLb,
					Offset:    0,
				}
				appendRecord(padRec, make([]byte, int(padBlocks)*int(pbs)))
				nextLsidLocal += uint64(padBlocks)
				h.NPadding = 1
				paddingUsed = true
			}
			continue
		}

		if req.IOSizeLb == 0 {
			return nil, fmt.Errorf("logpack: non-discard request %d has zero io_size", i)
		}
		blocks := blocksize.CapacityPb(pbs, uint32(req.IOSizeLb))
		expected := int(blocks) * int(pbs)
		payload := make([]byte, expected)
		copy(payload, req.Payload)

		rec := Record{
			Exist:     true,
			Kind:      KindNormal,
			Lsid:      logpackLsid + nextLsidLocal,
			LsidLocal: nextLsidLocal,
			IOSize:    req.IOSizeLb,
			Offset:    req.OffsetLb,
			Checksum:  checksum.Checksum(payload, salt),
		}
		appendRecord(rec, payload)
		nextLsidLocal += uint64(blocks)
	}

	totalBlocks := len(payloadBlocks) / int(pbs)
	h.TotalIOSize = uint32(totalBlocks)

	payloadArray := sector.NewArray(pbs, totalBlocks)
	if totalBlocks > 0 {
		if err := payloadArray.CopyFrom(0, payloadBlocks); err != nil {
			return nil, err
		}
	}

	headerBuf := make([]byte, pbs)
	if err := h.Encode(headerBuf, pbs); err != nil {
		return nil, err
	}
	if len(h.Records) > 0 {
		Finalize(headerBuf, salt)
		h.Checksum = decodeChecksumField(headerBuf)
	}

	return &Pack{Header: h, Payload: payloadArray}, nil
}

func decodeChecksumField(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

// WriteTo writes the pack's header and payload to the log device at the
// physical-block offset computed by the caller (internal/ringbuf),
// contiguously and in order (§4.6 step 6).
func (p *Pack) WriteTo(w io.WriterAt, pbs uint32, offsetPb uint64) error {
	headerBuf := make([]byte, pbs)
	if err := p.Header.Encode(headerBuf, pbs); err != nil {
		return err
	}
	if _, err := w.WriteAt(headerBuf, int64(offsetPb)*int64(pbs)); err != nil {
		return fmt.Errorf("logpack: write header: %w", err)
	}
	if p.Payload.Len() > 0 {
		if err := p.Payload.PWriteAt(w, int64(offsetPb)+1); err != nil {
			return fmt.Errorf("logpack: write payload: %w", err)
		}
	}
	return nil
}

// EndMarker builds the zero-record, INVALID_LSID end-of-log sentinel
// used by format_ldev to terminate a freshly formatted log (§8 boundary
// behaviors).
func EndMarker() *Header {
	return &Header{LogpackLsid: InvalidLsid}
}
