package zbd

import (
	"time"

	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/interfaces"
)

// Direction classifies a candidate I/O unit.
type Direction uint8

const (
	DirRead Direction = iota
	DirWrite
	DirTrim
)

// IOUnit is a candidate request submitted to the Adjuster. Offset and
// Buflen are in bytes; Adjust may rewrite both on ACCEPT.
type IOUnit struct {
	Offset uint64
	Buflen uint64
	Dir    Direction
	Random bool
}

// AdjustOutcome is the tagged result of Adjust (§9 design notes): a
// ConventionalAccept carries no reservation, a SequentialReservation
// owns the target zone's mutex until the Completion Hook releases it,
// and Eof signals the caller to treat the request as end-of-file.
type AdjustOutcome uint8

const (
	ConventionalAccept AdjustOutcome = iota
	SequentialReservation
	Eof
)

// Reservation is the capability produced by a SequentialReservation
// outcome: it owns the target zone's mutex. Exactly one of
// Complete (via CompletionHook) must consume it.
type Reservation struct {
	zone *Zone
}

// Zone returns the reserved zone.
func (r *Reservation) Zone() *Zone { return r.zone }

// AdjustResult is returned by Adjust.
type AdjustResult struct {
	Outcome     AdjustOutcome
	Offset      uint64
	Buflen      uint64
	Reservation *Reservation
}

// AdjustConfig carries the per-job knobs the Adjuster consults.
type AdjustConfig struct {
	ReadBeyondWP  bool
	Verifying     bool
	MinBlockBytes uint64
	MaxOpenZones  int // 0 means unlimited
}

// Adjuster implements the Request Adjuster (§4.5), the central
// per-request policy.
type Adjuster struct {
	reset   *ResetEngine
	quiesce func()
	obs     interfaces.Observer
}

// NewAdjuster builds an Adjuster. quiesce is invoked before a
// synchronous single-zone reset on the write path (§5); obs may be nil.
func NewAdjuster(reset *ResetEngine, quiesce func(), obs interfaces.Observer) *Adjuster {
	if quiesce == nil {
		quiesce = func() {}
	}
	return &Adjuster{reset: reset, quiesce: quiesce, obs: obs}
}

// Adjust runs the full decision tree of §4.5 for one candidate I/O unit
// against one file's zone range.
func (a *Adjuster) Adjust(f *FileRange, io *IOUnit, cfg AdjustConfig) *AdjustResult {
	started := time.Now()
	res := a.adjust(f, io, cfg)
	if a.obs != nil {
		a.obs.ObserveAdjust(uint8(io.Dir), res.Outcome != Eof, uint64(time.Since(started).Nanoseconds()))
	}
	return res
}

func (a *Adjuster) adjust(f *FileRange, io *IOUnit, cfg AdjustConfig) *AdjustResult {
	table := f.Table
	zb := table.ZoneIndexOf(io.Offset)
	if zb >= table.NrZones() {
		return &AdjustResult{Outcome: Eof}
	}
	z := table.Zone(zb)

	if z.Type() == ZoneTypeConventional {
		return &AdjustResult{Outcome: ConventionalAccept, Offset: io.Offset, Buflen: io.Buflen}
	}

	if io.Dir == DirRead && cfg.ReadBeyondWP && z.peekCondition() != ZoneCondOffline {
		return &AdjustResult{Outcome: ConventionalAccept, Offset: io.Offset, Buflen: io.Buflen}
	}

	z.Lock()

	switch io.Dir {
	case DirRead:
		return a.adjustRead(f, z, zb, io, cfg)
	case DirWrite:
		return a.adjustWrite(f, z, zb, io, cfg)
	default:
		return &AdjustResult{
			Outcome:     SequentialReservation,
			Offset:      io.Offset,
			Buflen:      io.Buflen,
			Reservation: &Reservation{zone: z},
		}
	}
}

// adjustRead implements §4.5's read algorithm. Called with z already
// locked; every return path either keeps the lock (via a Reservation)
// or releases it before returning Eof/a substitute-zone Reservation.
func (a *Adjuster) adjustRead(f *FileRange, z *Zone, zb int, io *IOUnit, cfg AdjustConfig) *AdjustResult {
	zoneStartBytes := z.Start() << constants.SectorShift

	if cfg.Verifying {
		offset := zoneStartBytes + z.verifyBlock*cfg.MinBlockBytes
		z.verifyBlock++
		return &AdjustResult{
			Outcome:     SequentialReservation,
			Offset:      offset,
			Buflen:      io.Buflen,
			Reservation: &Reservation{zone: z},
		}
	}

	wpBytes := z.WP() << constants.SectorShift
	avail := wpBytes - zoneStartBytes

	if io.Random && avail >= io.Buflen {
		rangeAvail := avail - io.Buflen
		offset := quantizeOffset(zoneStartBytes, io.Offset, rangeAvail, cfg.MinBlockBytes)
		return &AdjustResult{
			Outcome:     SequentialReservation,
			Offset:      offset,
			Buflen:      io.Buflen,
			Reservation: &Reservation{zone: z},
		}
	}

	crossesWP := io.Offset+io.Buflen > wpBytes
	if z.Condition() == ZoneCondOffline || crossesWP {
		z.Unlock()

		minBlockSectors := cfg.MinBlockBytes >> constants.SectorShift
		sub := a.findZone(f, zb, io.Random, minBlockSectors)
		if sub == nil {
			return &AdjustResult{Outcome: Eof}
		}

		subStart := sub.Start() << constants.SectorShift
		subWP := sub.WP() << constants.SectorShift
		if subStart+io.Buflen > subWP {
			sub.Unlock()
			return &AdjustResult{Outcome: Eof}
		}
		return &AdjustResult{
			Outcome:     SequentialReservation,
			Offset:      subStart,
			Buflen:      io.Buflen,
			Reservation: &Reservation{zone: sub},
		}
	}

	return &AdjustResult{
		Outcome:     SequentialReservation,
		Offset:      io.Offset,
		Buflen:      io.Buflen,
		Reservation: &Reservation{zone: z},
	}
}

// adjustWrite implements §4.5's write algorithm. Called with z already
// locked.
func (a *Adjuster) adjustWrite(f *FileRange, z *Zone, zb int, io *IOUnit, cfg AdjustConfig) *AdjustResult {
	table := f.Table
	zoneSizeBytes := table.ZoneSize() << constants.SectorShift

	if io.Buflen > zoneSizeBytes {
		z.Unlock()
		return &AdjustResult{Outcome: Eof}
	}

	nextZone := table.Zone(zb + 1)
	zoneEndSectors := nextZone.Start()

	if z.resetZone || z.wp >= zoneEndSectors {
		quiesceStart := time.Now()
		a.quiesce()
		if a.obs != nil {
			a.obs.ObserveQuiesce(uint64(time.Since(quiesceStart).Nanoseconds()))
		}
		z.resetZone = false
		startSector := z.Start()
		nrSectors := z.Len()
		z.Unlock()

		if err := a.reset.ResetRange(startSector, nrSectors); err != nil {
			return &AdjustResult{Outcome: Eof}
		}
		z.Lock()
	}

	offset := z.WP() << constants.SectorShift
	if offset < f.Offset || offset >= f.Offset+f.Size {
		z.Unlock()
		return &AdjustResult{Outcome: Eof}
	}

	zoneEndBytes := zoneEndSectors << constants.SectorShift
	newLen := io.Buflen
	if zoneEndBytes-offset < newLen {
		newLen = zoneEndBytes - offset
	}
	if cfg.MinBlockBytes != 0 {
		newLen -= newLen % cfg.MinBlockBytes
	}
	if newLen < cfg.MinBlockBytes {
		z.Unlock()
		return &AdjustResult{Outcome: Eof}
	}

	if cfg.MaxOpenZones > 0 {
		alreadyOpen := z.cond == ZoneCondImpOpen || z.cond == ZoneCondExpOpen
		if !alreadyOpen && table.countOpenZonesExcept(zb) >= cfg.MaxOpenZones {
			z.Unlock()
			return &AdjustResult{Outcome: Eof}
		}
	}

	return &AdjustResult{
		Outcome:     SequentialReservation,
		Offset:      offset,
		Buflen:      newLen,
		Reservation: &Reservation{zone: z},
	}
}

// quantizeOffset maps an out-of-range random read candidate into the
// readable window [zoneStartBytes, zoneStartBytes+rangeAvail] aligned
// down to minBlockBytes (§4.5 step "quantize the candidate offset").
func quantizeOffset(zoneStartBytes, candidateOffsetBytes, rangeAvail, minBlockBytes uint64) uint64 {
	if minBlockBytes == 0 || rangeAvail == 0 {
		return zoneStartBytes
	}
	var relative uint64
	if candidateOffsetBytes >= zoneStartBytes {
		relative = candidateOffsetBytes - zoneStartBytes
	}
	window := rangeAvail + minBlockBytes
	q := relative % window
	q -= q % minBlockBytes
	return zoneStartBytes + q
}

// findZone implements Find-Zone (§4.5): walks outward from zb, locking
// the first candidate zone that is not OFFLINE and has at least one
// full block below its write pointer. For sequential (non-random)
// workloads the downward search is abandoned after the first upward
// miss (§9 open question: preserved, not silently fixed).
func (a *Adjuster) findZone(f *FileRange, zb int, random bool, minBlockSectors uint64) *Zone {
	zf := f.Table.ZoneIndexOf(f.Offset)
	zl := f.Table.ZoneIndexOf(f.Offset + f.Size)
	if zl > f.Table.NrZones() {
		zl = f.Table.NrZones()
	}

	z1 := zb + 1
	z2 := zb - 1
	downwardEnabled := true

	for z1 <= zl || (downwardEnabled && z2 >= zf) {
		if z1 <= zl {
			if z, ok := tryCandidateZone(f.Table, z1, minBlockSectors); ok {
				return z
			}
			if !random {
				downwardEnabled = false
			}
			z1++
		}
		if downwardEnabled && z2 >= zf {
			if z, ok := tryCandidateZone(f.Table, z2, minBlockSectors); ok {
				return z
			}
			z2--
		}
	}
	return nil
}

func tryCandidateZone(table *ZoneTable, idx int, minBlockSectors uint64) (*Zone, bool) {
	if idx < 0 || idx >= table.NrZones() {
		return nil, false
	}
	z := table.Zone(idx)
	z.Lock()
	if z.Condition() == ZoneCondOffline || z.Start()+minBlockSectors > z.WP() {
		z.Unlock()
		return nil, false
	}
	return z, true
}
