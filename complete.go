package zbd

import (
	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/interfaces"
	"github.com/zbdcore/zbdadapt/internal/logging"
)

// CompletionHook finishes the lock-handoff contract started by Adjust
// (§4.6): it is the unique releaser of a Reservation's zone mutex,
// whether the I/O succeeded or failed.
type CompletionHook struct {
	obs interfaces.Observer
}

// NewCompletionHook builds a CompletionHook. obs may be nil.
func NewCompletionHook(obs interfaces.Observer) *CompletionHook {
	return &CompletionHook{obs: obs}
}

// Complete consumes r, updating the zone's write pointer on a
// successful WRITE (a successful TRIM leaves it as is and only logs a
// warning if it is not at the zone start) and releasing the zone mutex
// unconditionally.
// Calling Complete a second time on the same Reservation is a caller
// bug (double release); this is not guarded against, matching the
// "exactly one completion per submission" contract the Adjuster hands
// off under.
func (h *CompletionHook) Complete(table *ZoneTable, r *Reservation, dir Direction, offset, buflen uint64, success bool) {
	z := r.Zone()
	defer z.Unlock()

	if h.obs != nil {
		h.obs.ObserveComplete(uint8(dir), success)
	}

	if z.Type() != ZoneTypeSeqWriteReq {
		return
	}
	if !success {
		return
	}

	zb := table.ZoneIndexOf(offset)
	nextZone := table.Zone(zb + 1)

	switch dir {
	case DirWrite:
		newWP := (offset + buflen) >> constants.SectorShift
		if newWP > nextZone.Start() {
			newWP = nextZone.Start()
		}
		z.setWP(newWP, nextZone.Start())
	case DirTrim:
		if z.WP() != z.Start() {
			logging.Warn("trim completion left wp != start", "zone_start", z.Start(), "wp", z.WP())
		}
	}
}
