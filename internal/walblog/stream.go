package walblog

import (
	"fmt"
	"io"

	"github.com/cybozu-go/walb/internal/logpack"
)

// Writer appends log packs (header + payload) to an archival walblog
// stream, writing the 4096-byte header first, the way `tool/logpack.c`'s
// stream dump path builds the same container at the CLI level (§6).
// The header is written before the first pack, so the end_lsid it
// carries equals begin_lsid; EndLsid advances in memory as packs are
// appended but is not written back to the stream. A Writer that is given
// no pack writes nothing, not even the header.
type Writer struct {
	w      io.Writer
	pbs    uint32
	header Header
	wrote  bool
}

// NewWriter creates a Writer that will archive packs in
// [beginLsid, beginLsid) — EndLsid grows with each WritePack call.
func NewWriter(w io.Writer, logicalBS, physicalBS uint32, salt uint32, uuid [16]byte, beginLsid uint64) *Writer {
	return &Writer{
		w:   w,
		pbs: physicalBS,
		header: Header{
			LogChecksumSalt: salt,
			LogicalBS:       logicalBS,
			PhysicalBS:      physicalBS,
			UUID:            uuid,
			BeginLsid:       beginLsid,
			EndLsid:         beginLsid,
		},
	}
}

// WritePack appends one pack to the stream. The header line is written
// lazily on the first call, once BeginLsid is fixed.
func (wr *Writer) WritePack(pack *logpack.Pack) error {
	if !wr.wrote {
		buf := make([]byte, HeaderSize)
		if err := wr.header.Encode(buf); err != nil {
			return err
		}
		Finalize(buf)
		if _, err := wr.w.Write(buf); err != nil {
			return fmt.Errorf("walblog: write header: %w", err)
		}
		wr.wrote = true
	}

	headerBuf := make([]byte, wr.pbs)
	if err := pack.Header.Encode(headerBuf, wr.pbs); err != nil {
		return err
	}
	if _, err := wr.w.Write(headerBuf); err != nil {
		return fmt.Errorf("walblog: write pack header: %w", err)
	}
	if pack.Payload.Len() > 0 {
		payload := make([]byte, pack.Payload.Len()*int(wr.pbs))
		if err := pack.Payload.CopyTo(0, payload); err != nil {
			return err
		}
		if _, err := wr.w.Write(payload); err != nil {
			return fmt.Errorf("walblog: write pack payload: %w", err)
		}
	}

	wr.header.EndLsid = pack.Header.GetNextLsid()
	return nil
}

// Reader replays a walblog stream pack by pack.
type Reader struct {
	r      io.Reader
	Header *Header
}

// NewReader reads and validates the stream header, then returns a
// Reader positioned at the first pack.
func NewReader(r io.Reader) (*Reader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("walblog: read header: %w", err)
	}
	h, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, Header: h}, nil
}

// NextPack reads and validates the next pack header and, if its
// total_io_size is nonzero, reads its payload; the records' payload
// checksums are not checked here. It returns io.EOF once the stream is
// exhausted (the stream's length IS the end of its last pack; unlike
// the ring buffer, walblog carries no trailing end-marker sentinel).
func (rd *Reader) NextPack() (*logpack.Header, []byte, error) {
	headerBuf := make([]byte, rd.Header.PhysicalBS)
	if _, err := io.ReadFull(rd.r, headerBuf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, nil, fmt.Errorf("walblog: truncated pack header")
		}
		return nil, nil, err
	}
	h, err := logpack.DecodeHeader(headerBuf, rd.Header.PhysicalBS)
	if err != nil {
		return nil, nil, err
	}
	if err := logpack.Validate(headerBuf, h, rd.Header.PhysicalBS, rd.Header.LogChecksumSalt); err != nil {
		return nil, nil, err
	}

	if h.TotalIOSize == 0 {
		return h, nil, nil
	}
	payload := make([]byte, int(h.TotalIOSize)*int(rd.Header.PhysicalBS))
	if _, err := io.ReadFull(rd.r, payload); err != nil {
		return nil, nil, fmt.Errorf("walblog: truncated pack payload: %w", err)
	}
	return h, payload, nil
}
