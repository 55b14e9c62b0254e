// Package device provides the positional-I/O abstraction shared by the
// log device and the data device: a thin ReadAt/WriteAt/Sync/Size
// surface, generalized from the teacher's ublk storage-backend
// interface (internal/interfaces/backend.go, backend/mem.go) from
// "backend a ublk device serves reads/writes from" to "block device
// walb wraps or reads/writes".
package device

import "io"

// Device is the minimal interface the log-pack codec and redo engine
// need from an underlying block device.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Sync() error
	Close() error
}

// DiscardDevice is an optional interface a Device may additionally
// implement to support translating a walb DISCARD log record into a
// real device discard/TRIM, per §4.8 step 5 ("MAY be translated into a
// device discard operation if supported").
type DiscardDevice interface {
	Device
	Discard(offset, length int64) error
}
