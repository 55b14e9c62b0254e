package snapshot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cybozu-go/walb/internal/device"
)

// Store is the snapshot record engine (C11): a paginated, bitmap-
// allocated record store spanning one or more fixed-size sectors on the
// log device, indexed by id and name (maps) and by lsid (an id slice
// sorted by lsid, which the range queries scan linearly).
//
// At most one Control is held DIRTY at a time across calls (§4.10): each
// mutating method loads the sector(s) it touches, mutates in memory,
// then syncs and evicts before returning, so no two mutations can race
// on a half-written sector.
type Store struct {
	mu      sync.RWMutex
	dev     device.Device
	pbs     uint32
	base    uint64 // first sector offset of the metadata region
	nSect   uint64 // number of sectors in the metadata region
	perSect int    // capacity per sector

	ctrls []*Control

	byID   map[uint32]*slot
	byName map[string]uint32
	byLsid []uint32 // snapshot ids sorted by Lsid, rebuilt on load

	nextID uint32
}

type slot struct {
	ctrlIdx int
	recIdx  int
	rec     Record
}

// NewStore constructs a Store over nSect consecutive pbs-sized sectors
// on dev, starting at sector offset base (§6: the metadata region sits
// between the two super sector replicas and the ring buffer).
func NewStore(dev device.Device, pbs uint32, base, nSect uint64) *Store {
	s := &Store{
		dev:     dev,
		pbs:     pbs,
		base:    base,
		nSect:   nSect,
		perSect: CapacityFor(pbs),
		byID:    make(map[uint32]*slot),
		byName:  make(map[string]uint32),
	}
	s.ctrls = make([]*Control, nSect)
	for i := range s.ctrls {
		s.ctrls[i] = newControl(base + uint64(i))
	}
	return s
}

// Initialize loads every sector and rebuilds the three secondary
// indices from the allocation bitmaps (§4.10). It is idempotent: calling
// it again on an already-loaded, unmutated store rebuilds the same
// indices from the same on-disk state.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[uint32]*slot)
	s.byName = make(map[string]uint32)
	s.byLsid = nil
	s.nextID = 0

	for ci, c := range s.ctrls {
		if err := c.Load(s.dev, s.pbs); err != nil {
			// A sector that fails validation (bad checksum/sector_type)
			// is treated as an empty page: Load already reset it to a
			// zeroed, CLEAN in-memory state in that case.
		}
		for ri, r := range c.records {
			if !bitGet(c.bitmap, ri) {
				continue
			}
			if !r.IsValid() {
				return fmt.Errorf("snapshot: sector %d slot %d: allocated bit set but record invalid", c.Offset, ri)
			}
			if _, dup := s.byID[r.SnapshotID]; dup {
				return fmt.Errorf("snapshot: duplicate snapshot id %d", r.SnapshotID)
			}
			sl := &slot{ctrlIdx: ci, recIdx: ri, rec: r}
			s.byID[r.SnapshotID] = sl
			s.byName[r.Name] = r.SnapshotID
			s.byLsid = append(s.byLsid, r.SnapshotID)
			if r.SnapshotID >= s.nextID {
				s.nextID = r.SnapshotID + 1
			}
		}
		c.Evict()
	}
	s.sortByLsid()
	return nil
}

func (s *Store) sortByLsid() {
	sort.Slice(s.byLsid, func(i, j int) bool {
		return s.byID[s.byLsid[i]].rec.Lsid < s.byID[s.byLsid[j]].rec.Lsid
	})
}

// Finalize syncs and evicts every sector, leaving the store clean
// (§4.10's "sync_all then evict_all" discipline, called explicitly here
// rather than only after each mutation, for orderly shutdown).
func (s *Store) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncAndEvictAll()
}

func (s *Store) syncAndEvictAll() error {
	for _, c := range s.ctrls {
		if err := c.Sync(s.dev, s.pbs); err != nil {
			return err
		}
	}
	for _, c := range s.ctrls {
		c.Evict()
	}
	return nil
}

// allocRecord finds a free (ctrlIdx, recIdx) slot, loading sectors as
// needed (C11 alloc_record). Returns ErrNoSpace if every sector's bitmap
// is full.
func (s *Store) allocRecord() (ctrlIdx, recIdx int, err error) {
	for i, c := range s.ctrls {
		if err := c.Load(s.dev, s.pbs); err != nil && c.State != Clean {
			// A sector that fails validation comes back CLEAN and empty
			// (see Control.Load) and is used as an empty page, as in
			// Initialize; only a sector that could not be read is skipped.
			continue
		}
		if bi := firstZeroBit(c.bitmap, s.perSect); bi >= 0 {
			c.NFreeRecords--
			return i, bi, nil
		}
		c.Evict()
	}
	return 0, 0, ErrNoSpace
}

// freeRecord clears the allocation bit for (ctrlIdx, recIdx) (C11
// free_record).
func (s *Store) freeRecord(ctrlIdx, recIdx int) {
	c := s.ctrls[ctrlIdx]
	c.bitmap = bitOff(c.bitmap, recIdx)
	c.records[recIdx] = Record{SnapshotID: InvalidSnapshotID}
	c.NFreeRecords++
	c.MarkDirty()
}

// ErrNoSpace is returned when every metadata sector's bitmap is full.
var ErrNoSpace = fmt.Errorf("snapshot: no free record slot")

// ErrNameInUse is returned by Add when the name already has a record.
var ErrNameInUse = fmt.Errorf("snapshot: name already in use")

// ErrNotFound is returned by GetByName/DelByName when no record matches.
var ErrNotFound = fmt.Errorf("snapshot: record not found")

// Add allocates a new record for name at lsid with the given timestamp
// (C11 add). Fails with ErrNameInUse if the name is already indexed.
func (s *Store) Add(name string, lsid uint64, timestamp int64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateName(name); err != nil {
		return 0, err
	}
	if _, exists := s.byName[name]; exists {
		return 0, ErrNameInUse
	}

	ctrlIdx, recIdx, err := s.allocRecord()
	if err != nil {
		return 0, err
	}

	id := s.nextID
	s.nextID++
	rec := Record{Lsid: lsid, Timestamp: timestamp, SnapshotID: id, Name: name}

	c := s.ctrls[ctrlIdx]
	c.bitmap = bitOn(c.bitmap, recIdx)
	c.records[recIdx] = rec
	c.MarkDirty()

	if err := s.syncAndEvictAll(); err != nil {
		// Roll back the in-memory allocation; the on-disk bitmap was
		// never made visible since the sync itself failed.
		s.freeRecord(ctrlIdx, recIdx)
		return 0, err
	}

	sl := &slot{ctrlIdx: ctrlIdx, recIdx: recIdx, rec: rec}
	s.byID[id] = sl
	s.byName[name] = id
	s.byLsid = append(s.byLsid, id)
	s.sortByLsid()
	return id, nil
}

// DelByName frees the record named name (C11 del, by-name form).
func (s *Store) DelByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[name]
	if !ok {
		return ErrNotFound
	}
	return s.deleteID(id)
}

func (s *Store) deleteID(id uint32) error {
	sl := s.byID[id]
	if err := s.ctrls[sl.ctrlIdx].Load(s.dev, s.pbs); err != nil {
		return err
	}
	s.freeRecord(sl.ctrlIdx, sl.recIdx)
	if err := s.syncAndEvictAll(); err != nil {
		return err
	}
	delete(s.byID, id)
	delete(s.byName, sl.rec.Name)
	for i, v := range s.byLsid {
		if v == id {
			s.byLsid = append(s.byLsid[:i], s.byLsid[i+1:]...)
			break
		}
	}
	return nil
}

// DelRange frees every record whose lsid falls in [lsid0, lsid1) (C11
// del, range form), returning the count removed.
func (s *Store) DelRange(lsid0, lsid1 uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint32
	for _, id := range s.byLsid {
		l := s.byID[id].rec.Lsid
		if l >= lsid0 && l < lsid1 {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if err := s.deleteID(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// GetByName returns the record named name (C11 get_by_name).
func (s *Store) GetByName(name string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return s.byID[id].rec, nil
}

// ListFrom returns up to max records with SnapshotID >= idLowerBound, in
// ascending id order, and the id to resume from on the next call (0 if
// exhausted) (C11 list_from, §6 iteration contract).
func (s *Store) ListFrom(idLowerBound uint32, max int) ([]Record, uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint32, 0, len(s.byID))
	for id := range s.byID {
		if id >= idLowerBound {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Record, 0, max)
	for i, id := range ids {
		if i >= max {
			return out, id
		}
		out = append(out, s.byID[id].rec)
	}
	return out, 0
}

// ListRange returns up to max records with Lsid in [lsid0, lsid1), in
// ascending lsid order, and the lsid to resume from on the next call (0
// if exhausted) (C11 list_range).
func (s *Store) ListRange(lsid0, lsid1 uint64, max int) ([]Record, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, max)
	for _, id := range s.byLsid {
		r := s.byID[id].rec
		if r.Lsid < lsid0 || r.Lsid >= lsid1 {
			continue
		}
		if len(out) >= max {
			return out, r.Lsid
		}
		out = append(out, r)
	}
	return out, 0
}

// NRecordsRange counts records with Lsid in [lsid0, lsid1) (C11
// n_records_range).
func (s *Store) NRecordsRange(lsid0, lsid1 uint64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.byLsid {
		l := s.byID[id].rec.Lsid
		if l >= lsid0 && l < lsid1 {
			n++
		}
	}
	return n
}
