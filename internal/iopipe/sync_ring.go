package iopipe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// syncRing is the always-available fallback ring: every SubmitWrite
// issues an immediate pwrite via golang.org/x/sys/unix and records its
// outcome for the next Reap. It plays the same role the teacher's
// internal/uring/minimal.go does for the default build — a direct
// syscall path usable without io_uring — but does not need minimal.go's
// hand-rolled SQ/CQ ring plumbing, because a plain positional write
// needs no completion polling of its own.
type syncRing struct {
	fd      int
	pending []Result
}

func newSyncRing(cfg RingConfig) *syncRing {
	return &syncRing{fd: cfg.FD}
}

func (r *syncRing) SubmitWrite(data []byte, offset int64, userData uint64) error {
	if len(data) == 0 {
		r.pending = append(r.pending, Result{UserData: userData})
		return nil
	}
	n, err := unix.Pwrite(r.fd, data, offset)
	res := Result{UserData: userData, Res: int32(n)}
	if err != nil {
		res.Err = fmt.Errorf("iopipe: pwrite: %w", err)
	}
	r.pending = append(r.pending, res)
	return res.Err
}

func (r *syncRing) Reap(n int) ([]Result, error) {
	if n > len(r.pending) {
		n = len(r.pending)
	}
	out := r.pending[:n]
	r.pending = r.pending[n:]
	return out, nil
}

func (r *syncRing) Close() error { return nil }

var _ Ring = (*syncRing)(nil)
