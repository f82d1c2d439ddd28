package zbd

import (
	"sync"

	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// MockZonedDevice is an in-memory interfaces.Device implementation for
// tests: it serves ReportZones/ResetZones/ZonedModel from a slice of
// zone records held entirely in process memory, mirroring the host
// project's own MockBackend helper.
type MockZonedDevice struct {
	mu sync.Mutex

	model    string
	sizeB    int64
	zones    []uapi.BlkZone
	zoneSize uint64 // sectors

	reportCalls int
	resetCalls  int
}

// NewMockZonedDevice creates a mock device with nrZones zones of
// zoneSizeSectors each, all SEQWRITE_REQ/EMPTY, under the given model.
func NewMockZonedDevice(model string, nrZones int, zoneSizeSectors uint64) *MockZonedDevice {
	zones := make([]uapi.BlkZone, nrZones)
	for i := range zones {
		zones[i] = uapi.BlkZone{
			Start:    uint64(i) * zoneSizeSectors,
			Len:      zoneSizeSectors,
			Wp:       uint64(i) * zoneSizeSectors,
			Type:     uapi.ZoneTypeSeqWriteReq,
			Cond:     uapi.ZoneCondEmpty,
			Capacity: zoneSizeSectors,
		}
	}
	return &MockZonedDevice{
		model:    model,
		sizeB:    int64(uint64(nrZones) * zoneSizeSectors * SectorSize),
		zones:    zones,
		zoneSize: zoneSizeSectors,
	}
}

// ZonedModel implements interfaces.ModelReader.
func (m *MockZonedDevice) ZonedModel() (string, error) {
	return m.model, nil
}

// SizeBytes implements interfaces.Device.
func (m *MockZonedDevice) SizeBytes() (int64, error) {
	return m.sizeB, nil
}

// ReportZones implements interfaces.ZoneReporter.
func (m *MockZonedDevice) ReportZones(startSector uint64, out []uapi.BlkZone) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportCalls++

	start := 0
	for start < len(m.zones) && m.zones[start].Start < startSector {
		start++
	}
	n := copy(out, m.zones[start:])
	return n, nil
}

// ResetZones implements interfaces.ZoneResetter: any zone fully
// contained in [startSector, startSector+nrSectors) has its write
// pointer reset to its start.
func (m *MockZonedDevice) ResetZones(startSector, nrSectors uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++

	end := startSector + nrSectors
	for i := range m.zones {
		z := &m.zones[i]
		if z.Start >= startSector && z.Start+z.Len <= end {
			z.Wp = z.Start
			z.Cond = uapi.ZoneCondEmpty
		}
	}
	return nil
}

// SetZoneWP forces a zone's write pointer directly, for test setup.
func (m *MockZonedDevice) SetZoneWP(zoneIdx int, wp uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[zoneIdx].Wp = wp
}

// SetZoneCondition forces a zone's condition directly, for test setup.
func (m *MockZonedDevice) SetZoneCondition(zoneIdx int, cond uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[zoneIdx].Cond = cond
}

// ReportCalls returns how many times ReportZones has been invoked.
func (m *MockZonedDevice) ReportCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportCalls
}

// ResetCalls returns how many times ResetZones has been invoked.
func (m *MockZonedDevice) ResetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCalls
}
