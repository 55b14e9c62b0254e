// Package ringbuf implements the ring-buffer address map (C7): lsid to
// physical-block offset within the log device.
package ringbuf

// Map converts lsid to physical-block offsets within the log device's
// ring-buffer region.
type Map struct {
	// RingBufferOffset is the physical-block offset of the start of the
	// ring: super1_offset + 1, as computed by
	// super.RingBufferOffsetBlocks (metadata_size is already part of
	// super1_offset).
	RingBufferOffset uint64
	// RingBufferSize is the ring capacity in physical blocks.
	RingBufferSize uint64
}

// OffsetOfLsid returns the physical-block offset the given lsid maps to.
// Wrap-around is allowed; the caller (the redo engine) detects
// wrap-induced corruption only via checksum, never via this mapping.
func (m Map) OffsetOfLsid(lsid uint64) uint64 {
	return m.RingBufferOffset + (lsid % m.RingBufferSize)
}
