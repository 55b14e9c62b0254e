package sector

import (
	"fmt"
	"io"

	"github.com/cybozu-go/walb/internal/checksum"
)

// Array owns an ordered sequence of Buffers of identical pbs.
type Array struct {
	pbs     uint32
	buffers []*Buffer
}

// NewArray allocates an Array of n zero-filled buffers.
func NewArray(pbs uint32, n int) *Array {
	a := &Array{pbs: pbs, buffers: make([]*Buffer, n)}
	for i := range a.buffers {
		a.buffers[i] = NewBuffer(pbs)
	}
	return a
}

// Len returns the number of sectors in the array.
func (a *Array) Len() int { return len(a.buffers) }

// PBS returns the array's physical block size.
func (a *Array) PBS() uint32 { return a.pbs }

// At returns the buffer at index i.
func (a *Array) At(i int) *Buffer { return a.buffers[i] }

// Resize grows or shrinks the array to n sectors. On grow, existing
// entries are preserved and new entries are freshly (zero) allocated; on
// shrink, trailing entries are dropped. The resize is atomic in the
// sense that the array is left unmodified if n is never reached because
// of a panic during allocation — Go allocation failure is a fatal OOM,
// not a recoverable error, so there is no partial-grow state to unwind.
func (a *Array) Resize(n int) {
	if n <= len(a.buffers) {
		a.buffers = a.buffers[:n]
		return
	}
	grown := make([]*Buffer, n)
	copy(grown, a.buffers)
	for i := len(a.buffers); i < n; i++ {
		grown[i] = NewBuffer(a.pbs)
	}
	a.buffers = grown
}

func (a *Array) totalBytes() int64 {
	return int64(len(a.buffers)) * int64(a.pbs)
}

// CopyFrom copies len(src) bytes from src into the array starting at
// byteOffset, crossing sector boundaries as needed.
func (a *Array) CopyFrom(byteOffset int64, src []byte) error {
	if byteOffset < 0 || byteOffset+int64(len(src)) > a.totalBytes() {
		return fmt.Errorf("sector: CopyFrom out of range: offset=%d len=%d total=%d", byteOffset, len(src), a.totalBytes())
	}
	pbs := int64(a.pbs)
	remaining := src
	pos := byteOffset
	for len(remaining) > 0 {
		idx := pos / pbs
		within := pos % pbs
		n := int64(len(remaining))
		if within+n > pbs {
			n = pbs - within
		}
		copy(a.buffers[idx].data[within:within+n], remaining[:n])
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

// CopyTo copies len(dst) bytes out of the array starting at byteOffset,
// crossing sector boundaries as needed.
func (a *Array) CopyTo(byteOffset int64, dst []byte) error {
	if byteOffset < 0 || byteOffset+int64(len(dst)) > a.totalBytes() {
		return fmt.Errorf("sector: CopyTo out of range: offset=%d len=%d total=%d", byteOffset, len(dst), a.totalBytes())
	}
	pbs := int64(a.pbs)
	remaining := dst
	pos := byteOffset
	for len(remaining) > 0 {
		idx := pos / pbs
		within := pos % pbs
		n := int64(len(remaining))
		if within+n > pbs {
			n = pbs - within
		}
		copy(remaining[:n], a.buffers[idx].data[within:within+n])
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

// Checksum computes the salted checksum over [byteOffset, byteOffset+ln),
// invariant under how the range happens to be split across sector
// buffers provided ln is a multiple of 4.
func (a *Array) Checksum(byteOffset, ln int64, salt uint32) (uint32, error) {
	buf := make([]byte, ln)
	if err := a.CopyTo(byteOffset, buf); err != nil {
		return 0, err
	}
	return checksum.Checksum(buf, salt), nil
}

// PReadAt fills the array (sectorOffset..sectorOffset+a.Len()) with data
// read positionally from r, looping until the full range is served or an
// error occurs.
func (a *Array) PReadAt(r io.ReaderAt, sectorOffset int64) error {
	off := sectorOffset * int64(a.pbs)
	for _, buf := range a.buffers {
		if err := preadFull(r, buf.data, off); err != nil {
			return err
		}
		off += int64(a.pbs)
	}
	return nil
}

// PWriteAt writes the array to w positionally at sectorOffset, looping
// until the full range is served or an error occurs.
func (a *Array) PWriteAt(w io.WriterAt, sectorOffset int64) error {
	off := sectorOffset * int64(a.pbs)
	for _, buf := range a.buffers {
		if err := pwriteFull(w, buf.data, off); err != nil {
			return err
		}
		off += int64(a.pbs)
	}
	return nil
}

func preadFull(r io.ReaderAt, p []byte, off int64) error {
	for len(p) > 0 {
		n, err := r.ReadAt(p, off)
		if n > 0 {
			p = p[n:]
			off += int64(n)
		}
		if err != nil {
			if err == io.EOF && len(p) == 0 {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

func pwriteFull(w io.WriterAt, p []byte, off int64) error {
	for len(p) > 0 {
		n, err := w.WriteAt(p, off)
		if n > 0 {
			p = p[n:]
			off += int64(n)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}
