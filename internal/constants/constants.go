// Package constants holds default configuration values shared across the
// walb control plane and its CLI.
package constants

import "time"

// Block sizes and format defaults.
const (
	// LogicalBlockSize is the fixed logical block size (lbs) in bytes.
	LogicalBlockSize = 512

	// DefaultPhysicalBlockSize is the physical block size (pbs) used when
	// the wrapped device does not report one.
	DefaultPhysicalBlockSize = 4096

	// PageSize is the reserved-first-page convention used to place super0
	// (page/pbs must be an integer; page mod pbs = 0).
	PageSize = 4096

	// DefaultNSnapshots is the default number of snapshot-record slots
	// reserved by format_ldev when the caller does not specify one.
	DefaultNSnapshots = 10000
)

// Control-plane start-param defaults (create_dev, §6).
const (
	DefaultMaxLogpackKB          = 1024
	DefaultMaxPendingMB          = 64
	DefaultMinPendingMB          = 8
	DefaultQueueStopTimeoutMs    = 1000
	DefaultLogFlushIntervalMB    = 16
	DefaultLogFlushIntervalMs    = 100
	DefaultNPackBulk             = 32
	DefaultNIOBulk               = 128
	DefaultCheckpointIntervalMs  = 1000
)

// DeviceNameMax is the DISK_NAME_LEN analogue used for super.name.
const DeviceNameMax = 64

// Timing constants for control-plane operations that poll device state.
const (
	// FreezeTimeoutDefault is a 30-second freeze bound. No code reads
	// it: Device.Freeze with a zero timeout stays frozen until Melt.
	FreezeTimeoutDefault = 30 * time.Second

	// PollInterval is a 10 ms wake interval. The module runs no
	// background checkpoint/flush loop, and no code reads it.
	PollInterval = 10 * time.Millisecond
)

// IOBufferSizePerTag is a 64 KiB per-job scratch-buffer size. The
// internal/iopipe pipelines size their buffers from each job instead, and
// no code reads it.
const IOBufferSizePerTag = 64 * 1024
