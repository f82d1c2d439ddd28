package zbd

import "testing"

func buildTestTable(t *testing.T, nrZones int, zoneSizeSectors uint64) *ZoneTable {
	t.Helper()
	table := newZoneTable(zoneSizeSectors, nrZones, ModelHostManaged)
	for i := 0; i <= nrZones; i++ {
		table.zones[i].start = uint64(i) * zoneSizeSectors
	}
	for i := 0; i < nrZones; i++ {
		table.zones[i].len = zoneSizeSectors
		table.zones[i].zoneType = ZoneTypeSeqWriteReq
	}
	return table
}

func TestValidateConfigRejectsBufferedWriteOnHostManaged(t *testing.T) {
	table := buildTestTable(t, 4, 1024)
	files := []*FileRange{{
		Table: table, Offset: 0, Size: 4096 * SectorSize,
		Writes: true, HostMgd: true, ODirect: false,
	}}

	err := ValidateConfig(files)
	if err == nil || !IsCode(err, ErrCodeConfigError) {
		t.Fatalf("expected ErrCodeConfigError, got %v", err)
	}
}

func TestValidateConfigRoundsOffsetUp(t *testing.T) {
	table := buildTestTable(t, 4, 1024)
	zoneBytes := 1024 * SectorSize
	files := []*FileRange{{
		Table: table, Offset: zoneBytes + 512, Size: 3 * zoneBytes,
		Writes: true, HostMgd: true, ODirect: true,
	}}

	if err := ValidateConfig(files); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}
	if files[0].Offset != 2*zoneBytes {
		t.Errorf("Offset = %d, want %d (rounded up to next zone)", files[0].Offset, 2*zoneBytes)
	}
}

func TestValidateConfigTruncatesSizeDown(t *testing.T) {
	table := buildTestTable(t, 4, 1024)
	zoneBytes := 1024 * SectorSize
	files := []*FileRange{{
		Table: table, Offset: 0, Size: 2*zoneBytes + 512,
		Writes: true, HostMgd: true, ODirect: true,
	}}

	if err := ValidateConfig(files); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}
	if files[0].Size != 2*zoneBytes {
		t.Errorf("Size = %d, want %d (truncated down to zone boundary)", files[0].Size, 2*zoneBytes)
	}
}

func TestValidateConfigRangeTooSmallAfterRounding(t *testing.T) {
	table := buildTestTable(t, 4, 1024)
	zoneBytes := 1024 * SectorSize
	files := []*FileRange{{
		Table: table, Offset: zoneBytes + 512, Size: zoneBytes/2 - 512,
		Writes: true, HostMgd: true, ODirect: true,
	}}

	err := ValidateConfig(files)
	if err == nil || !IsCode(err, ErrCodeConfigError) {
		t.Fatalf("expected ErrCodeConfigError for a range too small, got %v", err)
	}
}

func TestValidateConfigBlockSizeMustDivideZoneSize(t *testing.T) {
	table := buildTestTable(t, 2, 1001) // zone size not a multiple of 4096
	files := []*FileRange{{
		Table: table, Offset: 0, Size: 2 * 1001 * SectorSize,
		Writes: true, HostMgd: true, ODirect: true,
		Verify: true, MinBlockSz: 4096,
	}}

	err := ValidateConfig(files)
	if err == nil || !IsCode(err, ErrCodeConfigError) {
		t.Fatalf("expected ErrCodeConfigError for non-dividing block size, got %v", err)
	}
}

func TestValidateConfigConventionalRangeUnrounded(t *testing.T) {
	table := buildTestTable(t, 2, 1024)
	table.zones[0].zoneType = ZoneTypeConventional
	table.zones[1].zoneType = ZoneTypeConventional

	files := []*FileRange{{
		Table: table, Offset: 17, Size: 123,
		Writes: true, HostMgd: true, ODirect: true,
	}}

	if err := ValidateConfig(files); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}
	if files[0].Offset != 17 || files[0].Size != 123 {
		t.Error("conventional-only ranges must not be rounded")
	}
}
