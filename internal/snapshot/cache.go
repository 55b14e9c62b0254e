package snapshot

import (
	"fmt"

	"github.com/cybozu-go/walb/internal/device"
	"github.com/cybozu-go/walb/internal/sector"
)

// CtrlState is the per-sector-control state (§4.9). Go has no algebraic
// sum types to collapse this into Free | Allocated(buf) | Clean(buf) |
// Dirty(buf) the way the design notes' Rust sketch does (§9); instead
// the buffer field is nil iff State == Free, and illegal transitions
// (such as Evict on Dirty) panic as an InvariantViolation, checked at
// run time rather than by the compiler.
type CtrlState int

const (
	Free CtrlState = iota
	Alloc
	Clean
	Dirty
)

// Control is the in-memory cache entry for one snapshot sector.
type Control struct {
	Offset       uint64 // sector offset in log device
	State        CtrlState
	NFreeRecords int // -1 until loaded
	buf          *sector.Buffer
	bitmap       uint64
	records      []Record
}

func newControl(offset uint64) *Control {
	return &Control{Offset: offset, State: Free, NFreeRecords: -1}
}

// Load performs the FREE->ALLOC->CLEAN transitions of §4.9: on FREE,
// allocate a sector buffer; on ALLOC, read the sector from the log
// device. CLEAN/DIRTY are no-ops.
func (c *Control) Load(dev device.Device, pbs uint32) error {
	switch c.State {
	case Free:
		c.buf = sector.NewBuffer(pbs)
		c.State = Alloc
		fallthrough
	case Alloc:
		if _, err := dev.ReadAt(c.buf.Bytes(), int64(c.Offset)*int64(pbs)); err != nil {
			return fmt.Errorf("snapshot: load sector at %d: %w", c.Offset, err)
		}
		if err := ValidateSector(c.buf.Bytes()); err != nil {
			// format_ldev writes valid empty snapshot sectors, so a
			// failure here means the sector is unformatted (e.g. all
			// zero, whose sector_type is wrong) or corrupt. The
			// in-memory state is reset to an empty CLEAN sector and the
			// error is returned; the store uses such a sector as an
			// empty page (see store.go).
			c.bitmap, c.records = 0, make([]Record, CapacityFor(pbs))
			c.NFreeRecords = CapacityFor(pbs)
			c.State = Clean
			return err
		}
		bitmap, records, err := DecodeSector(c.buf.Bytes(), pbs)
		if err != nil {
			return err
		}
		c.bitmap, c.records = bitmap, records
		c.NFreeRecords = len(records) - popcount(bitmap, len(records))
		c.State = Clean
	case Clean, Dirty:
		// no-op
	}
	return nil
}

// MarkDirty transitions CLEAN -> DIRTY after an in-memory mutation.
func (c *Control) MarkDirty() {
	if c.State == Clean {
		c.State = Dirty
	}
}

// Sync performs the DIRTY->CLEAN transition of §4.9: recompute the
// unsalted checksum and write the sector back.
func (c *Control) Sync(dev device.Device, pbs uint32) error {
	if c.State != Dirty {
		return nil
	}
	if err := EncodeSector(c.buf.Bytes(), pbs, c.bitmap, c.records); err != nil {
		return err
	}
	FinalizeSector(c.buf.Bytes())
	if _, err := dev.WriteAt(c.buf.Bytes(), int64(c.Offset)*int64(pbs)); err != nil {
		return fmt.Errorf("snapshot: sync sector at %d: %w", c.Offset, err)
	}
	c.State = Clean
	return nil
}

// Evict performs the CLEAN/FREE->FREE transition of §4.9. Evicting a
// DIRTY sector is an InvariantViolation: a contract violation by the
// caller, signaled as a panic rather than an error return (mirrors the
// design notes' "evict is only exposed on Free/Clean variants", §9).
func (c *Control) Evict() {
	switch c.State {
	case Free:
		return
	case Clean:
		c.buf = nil
		c.bitmap = 0
		c.records = nil
		c.State = Free
	case Dirty:
		panic("snapshot: InvariantViolation: evict called on a DIRTY sector control")
	case Alloc:
		c.buf = nil
		c.State = Free
	}
}
