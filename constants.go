package walb

import "github.com/cybozu-go/walb/internal/constants"

// Re-export constants for public API.
const (
	LogicalBlockSize         = constants.LogicalBlockSize
	DefaultPhysicalBlockSize = constants.DefaultPhysicalBlockSize
	PageSize                 = constants.PageSize
	DefaultNSnapshots        = constants.DefaultNSnapshots

	DefaultMaxLogpackKB         = constants.DefaultMaxLogpackKB
	DefaultMaxPendingMB         = constants.DefaultMaxPendingMB
	DefaultMinPendingMB         = constants.DefaultMinPendingMB
	DefaultQueueStopTimeoutMs   = constants.DefaultQueueStopTimeoutMs
	DefaultLogFlushIntervalMB   = constants.DefaultLogFlushIntervalMB
	DefaultLogFlushIntervalMs   = constants.DefaultLogFlushIntervalMs
	DefaultNPackBulk            = constants.DefaultNPackBulk
	DefaultNIOBulk              = constants.DefaultNIOBulk
	DefaultCheckpointIntervalMs = constants.DefaultCheckpointIntervalMs

	DeviceNameMax = constants.DeviceNameMax
)
