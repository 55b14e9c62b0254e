//go:build !giouring
// +build !giouring

package iopipe

import "fmt"

// NewRealRing is available when built with -tags giouring; the default
// build falls back to the synchronous ring in sync_ring.go.
func NewRealRing(cfg RingConfig) (Ring, error) {
	return nil, fmt.Errorf("iopipe: giouring not enabled; build with -tags giouring")
}
