package zbd

import (
	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/interfaces"
	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// reportBatchSize is the number of zones requested per ReportZones call
// while discovering a zoned device's layout.
const reportBatchSize = 4096

// BuildZoneTable discovers dev's zoning model and materializes the
// in-memory ZoneTable (§4.1). zoneSizeBytes is the configured zone size;
// it must be nonzero for non-zoned devices, and is used only to validate
// agreement with the device for zoned ones.
func BuildZoneTable(dev interfaces.Device, zoneSizeBytes uint64) (*ZoneTable, error) {
	modelStr, err := dev.ZonedModel()
	if err != nil {
		return nil, WrapError("BuildZoneTable", ErrCodeIoctlError, err)
	}
	model := modelFromString(modelStr)

	if model == ModelNone {
		return buildSyntheticTable(dev, zoneSizeBytes)
	}
	return buildDiscoveredTable(dev, model, zoneSizeBytes)
}

// buildDiscoveredTable issues the zone-report ioctl iteratively from
// sector 0 until all zones are read, populating one Zone per record.
func buildDiscoveredTable(dev interfaces.Device, model Model, configuredZoneSize uint64) (*ZoneTable, error) {
	sizeBytes, err := dev.SizeBytes()
	if err != nil {
		return nil, WrapError("BuildZoneTable", ErrCodeIoctlError, err)
	}

	var records []uapi.BlkZone
	startSector := uint64(0)
	buf := make([]uapi.BlkZone, reportBatchSize)
	for {
		n, err := dev.ReportZones(startSector, buf)
		if err != nil {
			return nil, WrapError("BuildZoneTable", ErrCodeIoctlError, err)
		}
		if n == 0 {
			break
		}
		records = append(records, buf[:n]...)
		startSector = records[len(records)-1].Start + records[len(records)-1].Len
		if uint64(startSector<<constants.SectorShift) >= uint64(sizeBytes) {
			break
		}
	}
	if len(records) == 0 {
		return nil, NewError("BuildZoneTable", ErrCodeGeometryError, "device reported zero zones")
	}

	zoneSizeSectors := records[0].Len
	if configuredZoneSize != 0 {
		configuredSectors := configuredZoneSize >> constants.SectorShift
		if configuredSectors != zoneSizeSectors {
			return nil, NewError("BuildZoneTable", ErrCodeConfigError,
				"configured zone_size disagrees with device-reported zone size")
		}
	}

	table := newZoneTable(zoneSizeSectors, len(records), model)
	for i, rec := range records {
		z := &table.zones[i]
		z.start = rec.Start
		z.len = rec.Len
		z.zoneType = zoneTypeFromWire(rec.Type)
		z.cond = zoneCondFromWire(rec.Cond)

		switch z.cond {
		case ZoneCondNotWP:
			z.wp = z.start
		case ZoneCondFull:
			z.wp = z.start + z.len
		default:
			z.wp = rec.Wp
		}
		if z.wp < z.start || z.wp > z.start+z.len {
			return nil, NewError("BuildZoneTable", ErrCodeGeometryError,
				"reported write pointer outside zone bounds")
		}
	}
	table.zones[table.nrZones].start = uint64(table.nrZones) * zoneSizeSectors

	if err := table.checkGeometry(); err != nil {
		return nil, err
	}
	return table, nil
}

// buildSyntheticTable synthesizes a zone table for a non-zoned (NONE
// model) device: every zone is SEQWRITE_REQ and initially "full" (wp at
// zone end), so an up-front reset empties it before any write.
func buildSyntheticTable(dev interfaces.Device, zoneSizeBytes uint64) (*ZoneTable, error) {
	if zoneSizeBytes < constants.MinZoneSize {
		return nil, NewError("BuildZoneTable", ErrCodeConfigError,
			"zone_size must be configured and >= minimum for a non-zoned device")
	}
	sizeBytes, err := dev.SizeBytes()
	if err != nil {
		return nil, WrapError("BuildZoneTable", ErrCodeIoctlError, err)
	}

	zoneSizeSectors := zoneSizeBytes >> constants.SectorShift
	nrZones := int((uint64(sizeBytes) + zoneSizeBytes - 1) / zoneSizeBytes)

	table := newZoneTable(zoneSizeSectors, nrZones, ModelNone)
	for i := 0; i < nrZones; i++ {
		z := &table.zones[i]
		z.start = uint64(i) * zoneSizeSectors
		z.len = zoneSizeSectors
		z.zoneType = ZoneTypeSeqWriteReq
		z.cond = ZoneCondFull
		z.wp = z.start + z.len
	}
	table.zones[nrZones].start = uint64(nrZones) * zoneSizeSectors

	if err := table.checkGeometry(); err != nil {
		return nil, err
	}
	return table, nil
}

func zoneTypeFromWire(t uint8) ZoneType {
	if t == uapi.ZoneTypeConventional {
		return ZoneTypeConventional
	}
	return ZoneTypeSeqWriteReq
}

func zoneCondFromWire(c uint8) ZoneCondition {
	switch c {
	case uapi.ZoneCondNotWP:
		return ZoneCondNotWP
	case uapi.ZoneCondEmpty:
		return ZoneCondEmpty
	case uapi.ZoneCondImpOpen:
		return ZoneCondImpOpen
	case uapi.ZoneCondExpOpen:
		return ZoneCondExpOpen
	case uapi.ZoneCondClosed:
		return ZoneCondClosed
	case uapi.ZoneCondReadonly:
		return ZoneCondReadonly
	case uapi.ZoneCondFull:
		return ZoneCondFull
	case uapi.ZoneCondOffline:
		return ZoneCondOffline
	default:
		return ZoneCondNotWP
	}
}
