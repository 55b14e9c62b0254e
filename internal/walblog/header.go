// Package walblog implements the walblog stream container (§6): a
// 4096-byte header describing the [begin_lsid, end_lsid) range archived
// in the stream, followed by a sequence of log packs in lsid order.
package walblog

import (
	"encoding/binary"
	"fmt"

	"github.com/cybozu-go/walb/internal/checksum"
)

// SectorType tags the header, distinguishing it from super/snapshot
// sectors sharing the same leading-u16 convention.
const SectorType = 0x0004

// Version is the current walblog header format version.
const Version = 1

// HeaderSize is the fixed, page-aligned header size.
const HeaderSize = 4096

// Header is the in-memory representation of a walblog stream header.
type Header struct {
	Checksum        uint32
	LogChecksumSalt uint32
	LogicalBS       uint32
	PhysicalBS      uint32
	UUID            [16]byte
	BeginLsid       uint64
	EndLsid         uint64
}

// Encode serializes h into buf, which must be exactly HeaderSize bytes.
// Like the super-sector codec, Encode does not compute the checksum;
// callers zero it, encode, finish the checksum over the whole buffer
// with salt 0, and write it back (mirroring super.Encode/Finalize).
func (h *Header) Encode(buf []byte) error {
	if len(buf) != HeaderSize {
		return fmt.Errorf("walblog: buffer must be exactly %d bytes, got %d", HeaderSize, len(buf))
	}
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint16(buf[0:2], SectorType)
	binary.LittleEndian.PutUint16(buf[2:4], Version)
	binary.LittleEndian.PutUint16(buf[4:6], HeaderSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.Checksum)
	binary.LittleEndian.PutUint32(buf[12:16], h.LogChecksumSalt)
	binary.LittleEndian.PutUint32(buf[16:20], h.LogicalBS)
	binary.LittleEndian.PutUint32(buf[20:24], h.PhysicalBS)
	copy(buf[24:40], h.UUID[:])
	binary.LittleEndian.PutUint64(buf[40:48], h.BeginLsid)
	binary.LittleEndian.PutUint64(buf[48:56], h.EndLsid)
	return nil
}

// Finalize computes and writes back the whole-header checksum (salt=0),
// matching the super sector's finalize convention.
func Finalize(buf []byte) {
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	sum := checksum.Checksum(buf, 0)
	binary.LittleEndian.PutUint32(buf[8:12], sum)
}

// Decode parses and validates a walblog header from buf.
func Decode(buf []byte) (*Header, error) {
	if len(buf) != HeaderSize {
		return nil, fmt.Errorf("walblog: buffer must be exactly %d bytes, got %d", HeaderSize, len(buf))
	}
	sectorType := binary.LittleEndian.Uint16(buf[0:2])
	if sectorType != SectorType {
		return nil, fmt.Errorf("walblog: bad sector_type: got 0x%04x, want 0x%04x", sectorType, SectorType)
	}
	version := binary.LittleEndian.Uint16(buf[2:4])
	if version != Version {
		return nil, fmt.Errorf("walblog: unsupported version: %d", version)
	}
	headerSize := binary.LittleEndian.Uint16(buf[4:6])
	if headerSize != HeaderSize {
		return nil, fmt.Errorf("walblog: bad header_size field: %d", headerSize)
	}
	if !checksum.IsZero(buf, 0) {
		return nil, fmt.Errorf("walblog: header checksum mismatch")
	}

	h := &Header{
		Checksum:        binary.LittleEndian.Uint32(buf[8:12]),
		LogChecksumSalt: binary.LittleEndian.Uint32(buf[12:16]),
		LogicalBS:       binary.LittleEndian.Uint32(buf[16:20]),
		PhysicalBS:      binary.LittleEndian.Uint32(buf[20:24]),
		BeginLsid:       binary.LittleEndian.Uint64(buf[40:48]),
		EndLsid:         binary.LittleEndian.Uint64(buf[48:56]),
	}
	copy(h.UUID[:], buf[24:40])
	return h, nil
}
