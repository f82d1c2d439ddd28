package zbd

import (
	"testing"

	"github.com/zbdcore/zbdadapt/internal/uapi"
)

func TestBuildZoneTableDiscoveredFromDevice(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 4, 1024)

	table, err := BuildZoneTable(dev, 0)
	if err != nil {
		t.Fatalf("BuildZoneTable failed: %v", err)
	}
	if table.NrZones() != 4 {
		t.Fatalf("NrZones = %d, want 4", table.NrZones())
	}
	if table.Model() != ModelHostManaged {
		t.Errorf("Model = %v, want ModelHostManaged", table.Model())
	}
	if table.Zone(4).Start() != 4*1024 {
		t.Errorf("sentinel start = %d, want %d", table.Zone(4).Start(), 4*1024)
	}
}

func TestBuildZoneTableRejectsZoneSizeMismatch(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 4, 1024)

	_, err := BuildZoneTable(dev, 2048<<SectorShift)
	if err == nil {
		t.Fatal("expected an error for mismatched configured zone_size")
	}
	if !IsCode(err, ErrCodeConfigError) {
		t.Errorf("expected ErrCodeConfigError, got %v", err)
	}
}

func TestBuildZoneTableWPFromConditionNotWP(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	dev.SetZoneCondition(0, uapi.ZoneCondNotWP)
	dev.SetZoneWP(0, 500) // should be ignored in favor of start

	table, err := BuildZoneTable(dev, 0)
	if err != nil {
		t.Fatalf("BuildZoneTable failed: %v", err)
	}
	if table.Zone(0).WP() != table.Zone(0).Start() {
		t.Errorf("NOT_WP zone wp = %d, want start %d", table.Zone(0).WP(), table.Zone(0).Start())
	}
}

func TestBuildZoneTableWPFromConditionFull(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	dev.SetZoneCondition(1, uapi.ZoneCondFull)
	dev.SetZoneWP(1, 1024*1+1) // should be overridden by start+len

	table, err := BuildZoneTable(dev, 0)
	if err != nil {
		t.Fatalf("BuildZoneTable failed: %v", err)
	}
	z := table.Zone(1)
	if z.WP() != z.Start()+z.Len() {
		t.Errorf("FULL zone wp = %d, want %d", z.WP(), z.Start()+z.Len())
	}
}

func TestBuildZoneTableSyntheticForNoneModel(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelNone, 0, 0)
	dev.sizeB = 4096 * 1024 // 4 MiB device

	table, err := BuildZoneTable(dev, 1024*1024) // 1 MiB zones
	if err != nil {
		t.Fatalf("BuildZoneTable failed: %v", err)
	}
	if table.NrZones() != 4 {
		t.Fatalf("NrZones = %d, want 4", table.NrZones())
	}
	for i := 0; i < table.NrZones(); i++ {
		z := table.Zone(i)
		if z.WP() != z.Start()+z.Len() {
			t.Errorf("synthetic zone %d should start full (wp=end), got wp=%d end=%d", i, z.WP(), z.Start()+z.Len())
		}
		if z.Type() != ZoneTypeSeqWriteReq {
			t.Errorf("synthetic zone %d should be SEQWRITE_REQ", i)
		}
	}
}

func TestBuildZoneTableSyntheticRequiresZoneSize(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelNone, 0, 0)
	dev.sizeB = 4096

	_, err := BuildZoneTable(dev, 0)
	if err == nil {
		t.Fatal("expected error when zone_size is unset for a non-zoned device")
	}
	if !IsCode(err, ErrCodeConfigError) {
		t.Errorf("expected ErrCodeConfigError, got %v", err)
	}
}
