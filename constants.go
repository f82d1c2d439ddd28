package zbd

import "github.com/zbdcore/zbdadapt/internal/constants"

// Re-export internal constants for public API consumers.
const (
	DefaultMinBlockSize = constants.DefaultMinBlockSize
	DefaultMaxOpenZones = constants.DefaultMaxOpenZones
	SectorShift         = constants.SectorShift
	SectorSize          = constants.SectorSize
	MinZoneSize         = constants.MinZoneSize
)
