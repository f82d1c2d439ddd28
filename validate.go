package zbd

import "github.com/zbdcore/zbdadapt/internal/constants"

// FileRange describes one file's I/O range, in bytes, against a
// ZoneTable.
type FileRange struct {
	Table      *ZoneTable
	Offset     uint64
	Size       uint64
	Writes     bool
	HostMgd    bool // true if Table.Model() == ModelHostManaged
	ODirect    bool
	Verify     bool
	MinBlockSz uint64
}

// ValidateConfig runs the Configuration Validator (§4.3) once after all
// ZoneTables exist, before any I/O. It rounds each file's range to zone
// boundaries in place and enforces the direct-I/O and block-size rules.
func ValidateConfig(files []*FileRange) error {
	for i := range files {
		f := files[i]
		if f.Writes && f.HostMgd && !f.ODirect {
			return NewError("ValidateConfig", ErrCodeConfigError,
				"host-managed device writers must use direct I/O")
		}
		if err := roundRangeToZones(f); err != nil {
			return err
		}
		if f.Verify && f.MinBlockSz != 0 {
			if f.Table.ZoneSize()<<constants.SectorShift%f.MinBlockSz != 0 {
				return NewError("ValidateConfig", ErrCodeConfigError,
					"block size must divide zone size exactly when verify is enabled")
			}
		}
	}
	return nil
}

// roundRangeToZones implements §4.3's range-rounding rule, narrowing
// f.Offset/f.Size in place. It only applies when the range covers at
// least one SEQWRITE_REQ zone; conventional-only ranges pass through
// unmodified.
func roundRangeToZones(f *FileRange) error {
	if !rangeCoversSequentialZone(f) {
		return nil
	}

	zoneSizeBytes := f.Table.ZoneSize() << constants.SectorShift
	end := f.Offset + f.Size

	if f.Offset%zoneSizeBytes != 0 {
		f.Offset = ((f.Offset / zoneSizeBytes) + 1) * zoneSizeBytes
		if f.Offset >= end {
			return NewError("ValidateConfig", ErrCodeConfigError,
				"range too small after rounding offset up to the next zone boundary")
		}
	}

	if end%zoneSizeBytes != 0 {
		end = (end / zoneSizeBytes) * zoneSizeBytes
		if end <= f.Offset {
			return NewError("ValidateConfig", ErrCodeConfigError,
				"range too small after truncating size down to the previous zone boundary")
		}
	}

	f.Size = end - f.Offset
	return nil
}

func rangeCoversSequentialZone(f *FileRange) bool {
	if f.Size == 0 {
		return false
	}
	zb := f.Table.ZoneIndexOf(f.Offset)
	ze := f.Table.ZoneIndexOf(f.Offset + f.Size - 1)
	for i := zb; i <= ze && i < f.Table.NrZones(); i++ {
		if f.Table.Zone(i).Type() == ZoneTypeSeqWriteReq {
			return true
		}
	}
	return false
}
