// Package loopfile provides an interfaces.Device implementation backed
// by a regular file: a host-managed zoned device simulated entirely in
// a local file, for use without a real zoned block device.
package loopfile

import (
	"fmt"
	"os"
	"sync"

	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// ShardSize is the span of sectors one lock in the shard array guards.
// Chosen independently of zone size so a caller can configure zones
// larger or smaller than a shard without losing parallelism.
const ShardSize = 64 * 1024 / constants.SectorSize

// Device simulates a host-managed zoned block device over a regular
// file: REPORT_ZONES/RESET_ZONE are served from an in-memory zone
// table, while the file itself backs whatever payload bytes a caller
// chooses to read/write at the offsets the adaptation core returns.
type Device struct {
	f    *os.File
	size int64

	mu       sync.RWMutex // guards the zones slice and each zone's Wp/Cond
	zones    []uapi.BlkZone
	zoneSize uint64 // sectors

	shards []sync.Mutex
}

// Create builds a new loop file of sizeBytes, split into nrZones equal
// SEQWRITE_REQ zones, and returns a Device over it.
func Create(path string, sizeBytes int64, nrZones int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("loopfile: create %s: %w", path, err)
	}
	if err := f.Truncate(sizeBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("loopfile: truncate %s: %w", path, err)
	}
	return newDevice(f, sizeBytes, nrZones)
}

// Open reuses an existing loop file, re-deriving its zone table from
// its current size and the requested zone count. Its write pointers
// always start EMPTY; this package does not persist zone state across
// process restarts.
func Open(path string, nrZones int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("loopfile: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("loopfile: stat %s: %w", path, err)
	}
	return newDevice(f, info.Size(), nrZones)
}

func newDevice(f *os.File, sizeBytes int64, nrZones int) (*Device, error) {
	if nrZones <= 0 {
		f.Close()
		return nil, fmt.Errorf("loopfile: nrZones must be positive, got %d", nrZones)
	}
	sizeSectors := uint64(sizeBytes) >> constants.SectorShift
	if sizeSectors%uint64(nrZones) != 0 {
		f.Close()
		return nil, fmt.Errorf("loopfile: size %d sectors does not divide evenly into %d zones", sizeSectors, nrZones)
	}
	zoneSize := sizeSectors / uint64(nrZones)

	zones := make([]uapi.BlkZone, nrZones)
	for i := range zones {
		zones[i] = uapi.BlkZone{
			Start:    uint64(i) * zoneSize,
			Len:      zoneSize,
			Wp:       uint64(i) * zoneSize,
			Type:     uapi.ZoneTypeSeqWriteReq,
			Cond:     uapi.ZoneCondEmpty,
			Capacity: zoneSize,
		}
	}

	numShards := (sizeSectors + ShardSize - 1) / ShardSize
	if numShards == 0 {
		numShards = 1
	}

	return &Device{
		f:        f,
		size:     sizeBytes,
		zones:    zones,
		zoneSize: zoneSize,
		shards:   make([]sync.Mutex, numShards),
	}, nil
}

// Close releases the underlying file.
func (d *Device) Close() error { return d.f.Close() }

// ZonedModel implements interfaces.ModelReader: a loop file always
// reports host-managed, since it exists precisely to simulate one.
func (d *Device) ZonedModel() (string, error) {
	return uapi.ModelHostManaged, nil
}

// SizeBytes implements interfaces.Device.
func (d *Device) SizeBytes() (int64, error) {
	return d.size, nil
}

// ReportZones implements interfaces.ZoneReporter.
func (d *Device) ReportZones(startSector uint64, out []uapi.BlkZone) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := 0
	for start < len(d.zones) && d.zones[start].Start < startSector {
		start++
	}
	return copy(out, d.zones[start:]), nil
}

// ResetZones implements interfaces.ZoneResetter: every zone fully
// contained in [startSector, startSector+nrSectors) has its write
// pointer reset to its start and its backing bytes zeroed, sharded by
// the lock range it falls in so concurrent resets to disjoint ranges
// don't serialize on each other.
func (d *Device) ResetZones(startSector, nrSectors uint64) error {
	end := startSector + nrSectors

	d.mu.Lock()
	var zeroStart, zeroEnd uint64
	touched := false
	for i := range d.zones {
		z := &d.zones[i]
		if z.Start >= startSector && z.Start+z.Len <= end {
			if !touched {
				zeroStart = z.Start
				touched = true
			}
			zeroEnd = z.Start + z.Len
			z.Wp = z.Start
			z.Cond = uapi.ZoneCondEmpty
		}
	}
	d.mu.Unlock()

	if !touched {
		return nil
	}
	return d.zeroRange(zeroStart, zeroEnd)
}

func (d *Device) zeroRange(startSector, endSector uint64) error {
	startShard := int(startSector / ShardSize)
	endShard := int((endSector - 1) / ShardSize)
	if endShard >= len(d.shards) {
		endShard = len(d.shards) - 1
	}
	for i := startShard; i <= endShard; i++ {
		d.shards[i].Lock()
	}
	defer func() {
		for i := startShard; i <= endShard; i++ {
			d.shards[i].Unlock()
		}
	}()

	const chunkSectors = 4096
	zero := make([]byte, chunkSectors<<constants.SectorShift)
	offset := int64(startSector) << constants.SectorShift
	remaining := int64(endSector-startSector) << constants.SectorShift
	for remaining > 0 {
		n := int64(len(zero))
		if n > remaining {
			n = remaining
		}
		if _, err := d.f.WriteAt(zero[:n], offset); err != nil {
			return fmt.Errorf("loopfile: zero range: %w", err)
		}
		offset += n
		remaining -= n
	}
	return nil
}

// ReadAt reads the backing file directly, for callers that want to
// verify payload bytes after driving I/O through the adaptation core.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	startShard := int(uint64(off)>>constants.SectorShift) / ShardSize
	endShard := int(uint64(off+int64(len(p))-1)>>constants.SectorShift) / ShardSize
	if endShard >= len(d.shards) {
		endShard = len(d.shards) - 1
	}
	for i := startShard; i <= endShard && i >= 0; i++ {
		d.shards[i].Lock()
	}
	defer func() {
		for i := startShard; i <= endShard && i >= 0; i++ {
			d.shards[i].Unlock()
		}
	}()
	return d.f.ReadAt(p, off)
}

// WriteAt writes the backing file directly, sharded the same way
// ResetZones is.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	startShard := int(uint64(off)>>constants.SectorShift) / ShardSize
	endShard := int(uint64(off+int64(len(p))-1)>>constants.SectorShift) / ShardSize
	if endShard >= len(d.shards) {
		endShard = len(d.shards) - 1
	}
	for i := startShard; i <= endShard && i >= 0; i++ {
		d.shards[i].Lock()
	}
	defer func() {
		for i := startShard; i <= endShard && i >= 0; i++ {
			d.shards[i].Unlock()
		}
	}()
	return d.f.WriteAt(p, off)
}
