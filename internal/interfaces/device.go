// Package interfaces provides internal interface definitions for the zbd
// adaptation core. These are separate from the public zbd package to avoid
// import cycles between it and the internal ioctl/sysfs/generator packages.
package interfaces

import "github.com/zbdcore/zbdadapt/internal/uapi"

// ZoneReporter discovers a device's zone layout, in REPORT_ZONES order.
// Implementations read from sector 0 upward; ReportZones is called
// iteratively by the Zone Table Builder until nr_zones entries are read.
type ZoneReporter interface {
	// ReportZones returns up to len(out) zone descriptors starting at
	// startSector, and the count actually filled.
	ReportZones(startSector uint64, out []uapi.BlkZone) (int, error)
}

// ZoneResetter resets all zones fully contained in [startSector, startSector+nrSectors).
type ZoneResetter interface {
	ResetZones(startSector, nrSectors uint64) error
}

// ModelReader classifies a device's zoned model.
type ModelReader interface {
	// ZonedModel returns one of uapi.ModelHostAware, uapi.ModelHostManaged,
	// or uapi.ModelNone.
	ZonedModel() (string, error)
}

// Device bundles the three device-facing capabilities the Zone Table
// Builder and Reset Engine need. A real Linux block device and the
// in-memory loop-file backend both implement it.
type Device interface {
	ModelReader
	ZoneReporter
	ZoneResetter

	// SizeBytes returns the device's total addressable size in bytes.
	SizeBytes() (int64, error)
}

// Observer interface for metrics collection.
// Implementations must be thread-safe: methods are called from both the
// adjuster path and the completion path, potentially on different goroutines.
type Observer interface {
	ObserveAdjust(direction uint8, accepted bool, latencyNs uint64)
	ObserveComplete(direction uint8, success bool)
	ObserveReset(zones int, latencyNs uint64, success bool)
	ObserveQuiesce(latencyNs uint64)
}
