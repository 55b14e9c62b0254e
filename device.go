// Package walb implements a block-level write-ahead log overlay: every
// write to a virtual device is first appended as a log pack to a ring
// buffer on a log device, then asynchronously applied to a data device;
// a redo engine replays the durable log prefix after a crash, and a
// bounded on-device snapshot engine records lsid checkpoints.
package walb

import (
	"sync"
	"time"

	"github.com/cybozu-go/walb/internal/constants"
	"github.com/cybozu-go/walb/internal/device"
	"github.com/cybozu-go/walb/internal/logging"
	"github.com/cybozu-go/walb/internal/logpack"
	"github.com/cybozu-go/walb/internal/redo"
	"github.com/cybozu-go/walb/internal/ringbuf"
	"github.com/cybozu-go/walb/internal/snapshot"
	"github.com/cybozu-go/walb/internal/super"
)

// DeviceParams mirrors the create_dev start-params of spec.md §6.
type DeviceParams struct {
	Name                 string
	MaxLogpackKB         int
	MaxPendingMB         int
	MinPendingMB         int
	QueueStopTimeoutMs   int
	LogFlushIntervalMB   int
	LogFlushIntervalMs   int
	NPackBulk            int
	NIOBulk              int
	CheckpointIntervalMs int
}

// DefaultDeviceParams returns the §6 defaults (also re-exported from
// internal/constants as the root package's public constants).
func DefaultDeviceParams() DeviceParams {
	return DeviceParams{
		MaxLogpackKB:         constants.DefaultMaxLogpackKB,
		MaxPendingMB:         constants.DefaultMaxPendingMB,
		MinPendingMB:         constants.DefaultMinPendingMB,
		QueueStopTimeoutMs:   constants.DefaultQueueStopTimeoutMs,
		LogFlushIntervalMB:   constants.DefaultLogFlushIntervalMB,
		LogFlushIntervalMs:   constants.DefaultLogFlushIntervalMs,
		NPackBulk:            constants.DefaultNPackBulk,
		NIOBulk:              constants.DefaultNIOBulk,
		CheckpointIntervalMs: constants.DefaultCheckpointIntervalMs,
	}
}

// FormatLdev implements format_ldev (§6): writes both super-sector
// replicas, zeroes the snapshot metadata region, and writes an
// end-marker log-pack header at lsid 0.
func FormatLdev(logDev, dataDev device.Device, lbs, pbs uint32, nSnapshots uint32, name string, noDiscard bool) (*super.Super, error) {
	if pbs < lbs || pbs%lbs != 0 {
		return nil, NewError("format_ldev", "super", CodeFormat, "physical_bs must be a multiple of logical_bs")
	}
	if len(name) >= int(constants.DeviceNameMax) {
		return nil, NewError("format_ldev", "super", CodeRange, "device name too long")
	}

	perSect := snapshot.CapacityFor(pbs)
	metadataSize := uint32(0)
	if nSnapshots > 0 {
		metadataSize = (nSnapshots + uint32(perSect) - 1) / uint32(perSect)
	}

	ldevLb := uint64(logDev.Size()) / uint64(lbs)
	ringSize := super.RingBufferSizeFor(pbs, metadataSize, ldevLb)
	if ringSize == 0 {
		return nil, NewError("format_ldev", "super", CodeRange, "log device too small for requested metadata_size")
	}

	s := &super.Super{
		LogicalBS:       lbs,
		PhysicalBS:      pbs,
		MetadataSize:    metadataSize,
		LogChecksumSalt: 0,
		Name:            name,
		RingBufferSize:  ringSize,
		OldestLsid:      0,
		WrittenLsid:     0,
		DeviceSize:      uint64(dataDev.Size()) / uint64(lbs),
	}

	if err := WrapSuperWrite(logDev, s); err != nil {
		return nil, err
	}

	base, _ := super.Offsets(pbs, metadataSize)
	base += 1 // first snapshot sector follows super0, per §6 layout
	if err := writeEmptyMetadataRegion(logDev, pbs, base, uint64(metadataSize)); err != nil {
		return nil, WrapError("format_ldev", "snapshot", err)
	}

	endOff := ringbuf.Map{RingBufferOffset: super.RingBufferOffsetBlocks(pbs, metadataSize), RingBufferSize: ringSize}.OffsetOfLsid(0)
	end := logpack.EndMarker()
	buf := make([]byte, pbs)
	if err := end.Encode(buf, pbs); err != nil {
		return nil, WrapError("format_ldev", "logpack", err)
	}
	if _, err := logDev.WriteAt(buf, int64(endOff)*int64(pbs)); err != nil {
		return nil, WrapError("format_ldev", "logpack", err)
	}

	if !noDiscard {
		if dd, ok := dataDev.(device.DiscardDevice); ok {
			_ = dd.Discard(0, dataDev.Size())
		}
	}

	return s, nil
}

// WrapSuperWrite writes both super-sector replicas, translating any
// failure into a walb.Error with CodeIO.
func WrapSuperWrite(logDev device.Device, s *super.Super) error {
	if err := super.WritePair(logDev, s); err != nil {
		return WrapError("format_ldev", "super", err)
	}
	return nil
}

// writeEmptyMetadataRegion writes nSect validated, empty snapshot
// sectors starting at sector offset base, so a subsequent
// snapshot.Store.Initialize reads real (bitmap=0, sector_type-correct)
// sectors rather than relying on Control.Load's corrupt-sector fallback.
func writeEmptyMetadataRegion(logDev device.Device, pbs uint32, base, nSect uint64) error {
	cap := snapshot.CapacityFor(pbs)
	empty := make([]snapshot.Record, cap)
	for i := range empty {
		empty[i] = snapshot.Record{SnapshotID: snapshot.InvalidSnapshotID}
	}
	buf := make([]byte, pbs)
	for i := uint64(0); i < nSect; i++ {
		if err := snapshot.EncodeSector(buf, pbs, 0, empty); err != nil {
			return err
		}
		snapshot.FinalizeSector(buf)
		if _, err := logDev.WriteAt(buf, int64(base+i)*int64(pbs)); err != nil {
			return err
		}
	}
	return nil
}

// Device is a running walb-wrapped block device: a log device, a data
// device, the current super sector, and the snapshot engine bound to the
// metadata region between the two super-sector replicas.
type Device struct {
	mu sync.Mutex

	logDev  device.Device
	dataDev device.Device

	super *super.Super
	store *snapshot.Store

	params DeviceParams
	logger *logging.Logger

	metrics  *Metrics
	observer Observer

	frozen bool
}

// CreateDev implements create_dev (§6): runs redo to reconcile the data
// device with the log's durable prefix, then opens the device for use.
func CreateDev(logDev, dataDev device.Device, params DeviceParams, log *logging.Logger) (*Device, error) {
	if log == nil {
		log = logging.Default()
	}

	sup, err := super.ReadPairAuto(logDev, constants.DefaultPhysicalBlockSize)
	if err != nil {
		// pbs itself isn't known without reading the super sector first;
		// callers that formatted with a non-default pbs pass it via
		// ReopenDev instead.
		return nil, WrapError("create_dev", "super", err)
	}

	return openWithSuper(logDev, dataDev, sup, params, log)
}

// ReopenDev re-derives the super sector using a known physical block
// size and metadata size (needed when the caller didn't format with
// constants.DefaultPhysicalBlockSize), then proceeds as CreateDev.
func ReopenDev(logDev, dataDev device.Device, pbs, metadataSize uint32, params DeviceParams, log *logging.Logger) (*Device, error) {
	if log == nil {
		log = logging.Default()
	}
	sup, err := super.ReadPair(logDev, pbs, metadataSize)
	if err != nil {
		return nil, WrapError("create_dev", "super", err)
	}
	return openWithSuper(logDev, dataDev, sup, params, log)
}

func openWithSuper(logDev, dataDev device.Device, sup *super.Super, params DeviceParams, log *logging.Logger) (*Device, error) {
	metrics := NewMetrics()
	observer := Observer(NewMetricsObserver(metrics))

	start := time.Now()
	newSup, result, err := redo.Run(logDev, dataDev, sup, log)
	observer.ObserveRedoRun(uint64(result.NPacksReplayed), uint64(time.Since(start).Nanoseconds()), err)
	if err != nil {
		return nil, WrapError("create_dev", "redo", err)
	}

	base, _ := super.Offsets(newSup.PhysicalBS, newSup.MetadataSize)
	base += 1
	store := snapshot.NewStore(logDev, newSup.PhysicalBS, base, uint64(newSup.MetadataSize))
	if err := store.Initialize(); err != nil {
		return nil, WrapError("create_dev", "snapshot", err)
	}

	d := &Device{
		logDev:   logDev,
		dataDev:  dataDev,
		super:    newSup,
		store:    store,
		params:   params,
		logger:   log,
		metrics:  metrics,
		observer: observer,
	}
	log.Info("device opened", "written_lsid", newSup.WrittenLsid, "packs_replayed", result.NPacksReplayed)
	return d, nil
}

// Close finalizes the snapshot engine, syncing any dirty sector back to
// the log device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Finalize(); err != nil {
		return WrapError("close", "snapshot", err)
	}
	return nil
}

// Metrics returns the device's metrics.
func (d *Device) Metrics() *Metrics { return d.metrics }

// Snapshots returns the snapshot record engine bound to this device.
func (d *Device) Snapshots() *snapshot.Store { return d.store }

// GetWrittenLsid returns the super sector's current written_lsid.
func (d *Device) GetWrittenLsid() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.super.WrittenLsid
}

// GetOldestLsid returns the super sector's current oldest_lsid.
func (d *Device) GetOldestLsid() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.super.OldestLsid
}

// SetOldestLsid implements set_oldest_lsid (§6): new must not exceed
// written_lsid, and written_lsid - new must not exceed ring_buffer_size.
func (d *Device) SetOldestLsid(lsid uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lsid > d.super.WrittenLsid {
		return NewError("set_oldest_lsid", "super", CodeRange, "new oldest_lsid exceeds written_lsid")
	}
	if d.super.WrittenLsid-lsid > d.super.RingBufferSize {
		return NewError("set_oldest_lsid", "super", CodeRange, "written_lsid - oldest_lsid exceeds ring_buffer_size")
	}
	d.super.OldestLsid = lsid
	return WrapSuperWrite(d.logDev, d.super)
}

// TakeCheckpoint implements take_checkpoint (§6): flushes the log device
// and rewrites both super-sector replicas with the current written_lsid.
func (d *Device) TakeCheckpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.logDev.Sync(); err != nil {
		return WrapError("take_checkpoint", "device", err)
	}
	return WrapSuperWrite(d.logDev, d.super)
}

// Resize implements resize (§6): growth only, newSizeLb=0 autodetects
// from the underlying data device.
func (d *Device) Resize(newSizeLb uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if newSizeLb == 0 {
		newSizeLb = uint64(d.dataDev.Size()) / uint64(d.super.LogicalBS)
	}
	if newSizeLb < d.super.DeviceSize {
		return NewError("resize", "super", CodeRange, "shrink not supported")
	}
	d.super.DeviceSize = newSizeLb
	return WrapSuperWrite(d.logDev, d.super)
}

// Freeze implements freeze (§6): sets the frozen flag reported by
// IsFrozen. A positive timeout clears the flag again after that long; a
// zero timeout leaves it set until Melt. Nothing else in the module
// reads the flag (internal/iopipe accepts jobs regardless of it).
func (d *Device) Freeze(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return NewError("freeze", "device", CodeInvariant, "already frozen")
	}
	d.frozen = true
	if timeout > 0 {
		t := time.AfterFunc(timeout, func() {
			d.mu.Lock()
			d.frozen = false
			d.mu.Unlock()
		})
		_ = t
	}
	return nil
}

// Melt implements melt (§6): resumes I/O after Freeze.
func (d *Device) Melt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = false
	return nil
}

// IsFrozen reports whether the device is currently quiesced.
func (d *Device) IsFrozen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frozen
}

// GetLogUsage implements get_log_usage (§6): the number of physical
// blocks currently occupied in the ring buffer.
func (d *Device) GetLogUsage() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.super.WrittenLsid - d.super.OldestLsid
}

// GetLogCapacity implements get_log_capacity (§6): the ring buffer's
// total size in physical blocks.
func (d *Device) GetLogCapacity() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.super.RingBufferSize
}

// IsLogOverflow implements is_log_overflow (§6): whether the unconsumed
// log already occupies the entire ring buffer.
func (d *Device) IsLogOverflow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.super.WrittenLsid-d.super.OldestLsid >= d.super.RingBufferSize
}

// Redo re-runs the redo engine against the device's current super
// sector, for callers that want to force a resync without reopening.
func (d *Device) Redo() (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := time.Now()
	newSup, result, err := redo.Run(d.logDev, d.dataDev, d.super, d.logger)
	d.observer.ObserveRedoRun(uint64(result.NPacksReplayed), uint64(time.Since(start).Nanoseconds()), err)
	if err != nil {
		return Result{}, WrapError("redo", "redo", err)
	}
	d.super = newSup
	return Result{BeginLsid: result.BeginLsid, EndLsid: result.EndLsid, NPacksReplayed: result.NPacksReplayed}, nil
}

// Result reports the outcome of a redo pass, re-exported from
// internal/redo for callers of the public API.
type Result struct {
	BeginLsid      uint64
	EndLsid        uint64
	NPacksReplayed int
}
