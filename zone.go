package zbd

import (
	"math/bits"
	"sync"

	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// ZoneType classifies how a zone accepts writes.
type ZoneType uint8

const (
	ZoneTypeConventional ZoneType = iota
	ZoneTypeSeqWriteReq
)

// ZoneCondition mirrors the kernel's zone condition enum (§3).
type ZoneCondition uint8

const (
	ZoneCondNotWP ZoneCondition = iota
	ZoneCondEmpty
	ZoneCondImpOpen
	ZoneCondExpOpen
	ZoneCondClosed
	ZoneCondReadonly
	ZoneCondFull
	ZoneCondOffline
)

// Model classifies a device's zoned behavior.
type Model uint8

const (
	ModelNone Model = iota
	ModelHostAware
	ModelHostManaged
)

func modelFromString(s string) Model {
	switch s {
	case uapi.ModelHostAware:
		return ModelHostAware
	case uapi.ModelHostManaged:
		return ModelHostManaged
	default:
		return ModelNone
	}
}

// Zone describes one device zone. All sector-valued fields are in
// 512-byte units. The mutex guards wp, cond, resetZone, and verifyBlock;
// start, len and zoneType are immutable for the table's lifetime.
type Zone struct {
	mu sync.Mutex

	start uint64
	len   uint64

	wp        uint64
	zoneType  ZoneType
	cond      ZoneCondition
	resetZone bool
	// verifyBlock is the ordinal of the next verification read in this
	// zone, consumed and incremented by the Adjuster's replay path.
	verifyBlock uint64
}

// Lock acquires the zone's mutex. Locking order across zones must be
// strictly ascending by index (§5); callers holding more than one zone
// lock are responsible for observing that order.
func (z *Zone) Lock() { z.mu.Lock() }

// Unlock releases the zone's mutex.
func (z *Zone) Unlock() { z.mu.Unlock() }

// TryLock attempts to acquire the zone's mutex without blocking.
func (z *Zone) TryLock() bool { return z.mu.TryLock() }

// Start returns the zone's starting sector.
func (z *Zone) Start() uint64 { return z.start }

// Len returns the zone's length in sectors.
func (z *Zone) Len() uint64 { return z.len }

// Type returns the zone's write discipline. Safe to call without holding
// the lock: immutable for the table's lifetime.
func (z *Zone) Type() ZoneType { return z.zoneType }

// WP returns the current write pointer. Caller must hold the zone lock.
func (z *Zone) WP() uint64 { return z.wp }

// Condition returns the zone's tracked operational condition. Caller
// must hold the zone lock.
func (z *Zone) Condition() ZoneCondition { return z.cond }

// VerifyBlock returns the next verify-replay ordinal. Caller must hold
// the zone lock.
func (z *Zone) VerifyBlock() uint64 { return z.verifyBlock }

// peekCondition reads the zone condition without acquiring the lock. Used
// only by the Adjuster's read-beyond-wp fast path (§4.5), which the
// source takes without locking; mirrored here rather than silently
// fixed (§9 open questions).
func (z *Zone) peekCondition() ZoneCondition { return z.cond }

// NeedsReset reports whether this zone has a deferred reset pending.
// Caller must hold the zone lock.
func (z *Zone) NeedsReset() bool { return z.resetZone }

// MarkForReset raises the deferred-reset flag; consumed and cleared by
// the Adjuster's write path (§4.5 step 2).
func (z *Zone) MarkForReset() {
	z.mu.Lock()
	z.resetZone = true
	z.mu.Unlock()
}

// setWP updates the write pointer and derives the observable condition
// transition (§3 SUPPLEMENTED FEATURES: EMPTY -> IMP_OPEN -> FULL).
// Caller must hold the zone lock.
func (z *Zone) setWP(wp, zoneEnd uint64) {
	z.wp = wp
	if z.zoneType != ZoneTypeSeqWriteReq {
		return
	}
	switch {
	case wp >= zoneEnd:
		z.cond = ZoneCondFull
	case wp == z.start:
		z.cond = ZoneCondEmpty
	default:
		z.cond = ZoneCondImpOpen
	}
}

// notPowerOfTwo is a sentinel value meaning "not a power of two",
// stored in ZoneTable's zoneSizeLog2 field when shift-based indexing
// cannot be used.
const notPowerOfTwo = -1

// ZoneTable is the in-memory, lock-protected zone layout for one device
// or loop file. A trailing sentinel zone at index nrZones has only its
// start field meaningful (§3, §9 "Sentinel zone").
type ZoneTable struct {
	mu sync.Mutex

	zoneSize     uint64 // sectors
	zoneSizeLog2 int    // log2(zoneSize << 9) in bytes, or notPowerOfTwo
	nrZones      int
	zones        []Zone // len == nrZones+1, last entry is the sentinel

	model    Model
	refcount int
}

// newZoneTable allocates a table with nrZones real zones plus a
// sentinel, and computes zoneSizeLog2 for shift-based indexing when
// possible (§9 "zbd_zone_idx shift-vs-divide dual path").
func newZoneTable(zoneSizeSectors uint64, nrZones int, model Model) *ZoneTable {
	t := &ZoneTable{
		zoneSize: zoneSizeSectors,
		nrZones:  nrZones,
		zones:    make([]Zone, nrZones+1),
		model:    model,
		refcount: 1,
	}
	zoneSizeBytes := zoneSizeSectors << constants.SectorShift
	if zoneSizeBytes != 0 && zoneSizeBytes&(zoneSizeBytes-1) == 0 {
		t.zoneSizeLog2 = bits.TrailingZeros64(zoneSizeBytes)
	} else {
		t.zoneSizeLog2 = notPowerOfTwo
	}
	return t
}

// NrZones returns the count of real (non-sentinel) zones.
func (t *ZoneTable) NrZones() int { return t.nrZones }

// ZoneSize returns the uniform zone length in sectors.
func (t *ZoneTable) ZoneSize() uint64 { return t.zoneSize }

// Model returns the device's zoned model.
func (t *ZoneTable) Model() Model { return t.model }

// Zone returns a pointer to the zone at index i, where i may equal
// NrZones() to address the sentinel.
func (t *ZoneTable) Zone(i int) *Zone { return &t.zones[i] }

// ZoneIndexOf implements zone_index_of (§4.2): the index of the zone
// containing offsetBytes, clamped to the sentinel index.
func (t *ZoneTable) ZoneIndexOf(offsetBytes uint64) int {
	var idx uint64
	if t.zoneSizeLog2 != notPowerOfTwo {
		idx = offsetBytes >> uint(t.zoneSizeLog2)
	} else {
		idx = (offsetBytes >> constants.SectorShift) / t.zoneSize
	}
	if idx > uint64(t.nrZones) {
		return t.nrZones
	}
	return int(idx)
}

// RefIncrement increments the table's sharing refcount.
func (t *ZoneTable) RefIncrement() {
	t.mu.Lock()
	t.refcount++
	t.mu.Unlock()
}

// RefDecrement decrements the table's refcount and reports whether this
// was the last reference (caller should then drop it from any registry).
func (t *ZoneTable) RefDecrement() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refcount--
	return t.refcount <= 0
}

// CountOpenZones returns how many real zones are currently IMP_OPEN or
// EXP_OPEN, for the Adjuster's MaxOpenZones budget check (§3 SUPPLEMENTED
// FEATURES). Callers must not hold any zone lock when calling this, since
// it locks each zone briefly in turn.
func (t *ZoneTable) CountOpenZones() int {
	return t.countOpenZonesExcept(-1)
}

// countOpenZonesExcept counts open zones while skipping index except,
// which the caller already holds locked and has inspected directly.
func (t *ZoneTable) countOpenZonesExcept(except int) int {
	n := 0
	for i := 0; i < t.nrZones; i++ {
		if i == except {
			continue
		}
		z := &t.zones[i]
		z.Lock()
		if z.cond == ZoneCondImpOpen || z.cond == ZoneCondExpOpen {
			n++
		}
		z.Unlock()
	}
	return n
}

// checkGeometry validates invariant 1 (§3): each zone's start plus
// zone_size equals the next zone's start, sentinel included.
func (t *ZoneTable) checkGeometry() error {
	for i := 0; i < t.nrZones; i++ {
		if t.zones[i].start+t.zoneSize != t.zones[i+1].start {
			return NewError("checkGeometry", ErrCodeGeometryError,
				"zone layout is not uniformly spaced")
		}
	}
	return nil
}
