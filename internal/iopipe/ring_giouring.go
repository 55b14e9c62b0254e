//go:build giouring
// +build giouring

package iopipe

import (
	"fmt"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// giouringRing submits writes through a real io_uring submission queue
// instead of blocking the caller on one pwrite per sector.
type giouringRing struct {
	ring *giouring.Ring
	fd   int
}

func NewRealRing(cfg RingConfig) (Ring, error) {
	entries := cfg.Entries
	if entries == 0 {
		entries = 64
	}
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("iopipe: giouring.CreateRing: %w", err)
	}
	return &giouringRing{ring: ring, fd: cfg.FD}, nil
}

func (r *giouringRing) SubmitWrite(data []byte, offset int64, userData uint64) error {
	if len(data) == 0 {
		return nil
	}
	sqe := r.ring.GetSQE()
	if sqe == nil {
		if _, err := r.ring.Submit(); err != nil {
			return fmt.Errorf("iopipe: submit to drain SQ: %w", err)
		}
		sqe = r.ring.GetSQE()
		if sqe == nil {
			return fmt.Errorf("iopipe: submission queue full")
		}
	}
	sqe.PrepareWrite(r.fd, uintptr(unsafe.Pointer(&data[0])), uint32(len(data)), uint64(offset))
	sqe.UserData = userData
	return nil
}

func (r *giouringRing) Reap(n int) ([]Result, error) {
	if n == 0 {
		return nil, nil
	}
	if _, err := r.ring.SubmitAndWait(uint32(n)); err != nil {
		return nil, fmt.Errorf("iopipe: submit_and_wait: %w", err)
	}
	results := make([]Result, 0, n)
	for len(results) < n {
		cqe, err := r.ring.WaitCQE()
		if err != nil {
			return results, fmt.Errorf("iopipe: wait_cqe: %w", err)
		}
		res := Result{UserData: cqe.UserData, Res: cqe.Res}
		if cqe.Res < 0 {
			res.Err = fmt.Errorf("iopipe: io_uring completion failed: res=%d", cqe.Res)
		}
		results = append(results, res)
		r.ring.CQESeen(cqe)
	}
	return results, nil
}

func (r *giouringRing) Close() error {
	r.ring.QueueExit()
	return nil
}
