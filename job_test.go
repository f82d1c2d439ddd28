package zbd

import (
	"testing"

	"github.com/zbdcore/zbdadapt/internal/uapi"
)

func TestJobInitSharesTableAcrossFilesOnSameDevice(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 4, 1024)
	cfg := JobConfig{
		ZoneMode: "zbd",
		Files: []FileConfig{
			{Path: "/dev/fake0", DeviceKey: "8:0", Device: dev, Offset: 0, Size: 2 * 1024 * SectorSize, Writes: true, ODirect: true},
			{Path: "/dev/fake0", DeviceKey: "8:0", Device: dev, Offset: 2 * 1024 * SectorSize, Size: 2 * 1024 * SectorSize, Writes: true, ODirect: true},
		},
	}
	job := NewJob(cfg, nil, nil)
	if err := job.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if job.Table(0) != job.Table(1) {
		t.Error("files sharing a device identity must share one ZoneTable")
	}
	if dev.ReportCalls() != 1 {
		t.Errorf("ReportZones should only be issued once across the shared table's construction, got %d calls", dev.ReportCalls())
	}
}

func TestJobInitIsIdempotent(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	cfg := JobConfig{
		ZoneMode: "zbd",
		Files:    []FileConfig{{Path: "/dev/fake0", Device: dev, Offset: 0, Size: 2 * 1024 * SectorSize, Writes: true, ODirect: true}},
	}
	job := NewJob(cfg, nil, nil)
	if err := job.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	firstTable := job.Table(0)
	if err := job.Init(); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if job.Table(0) != firstTable {
		t.Error("second Init must be a no-op, not rebuild the table")
	}
}

func TestJobInitDisabledWhenZoneModeNotZbd(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	cfg := JobConfig{
		ZoneMode: "",
		Files:    []FileConfig{{Path: "/dev/fake0", Device: dev, Offset: 0, Size: 2 * 1024 * SectorSize, Writes: true}},
	}
	job := NewJob(cfg, nil, nil)
	if err := job.Init(); err != nil {
		t.Fatalf("Init should be a silent no-op when zone_mode != zbd, got %v", err)
	}
	if job.files != nil {
		t.Error("Init must not build any files when the core is disabled")
	}
}

func TestJobInitRejectsBadConfig(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	cfg := JobConfig{
		ZoneMode: "zbd",
		Files:    []FileConfig{{Path: "/dev/fake0", Device: dev, Offset: 0, Size: 2 * 1024 * SectorSize, Writes: true, ODirect: false}},
	}
	job := NewJob(cfg, nil, nil)
	err := job.Init()
	if err == nil || !IsCode(err, ErrCodeConfigError) {
		t.Fatalf("expected ErrCodeConfigError for a buffered writer on a host-managed device, got %v", err)
	}
}

func TestJobEndToEndWriteThenComplete(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 524288)
	cfg := JobConfig{
		ZoneMode: "zbd",
		Files: []FileConfig{
			{Path: "/dev/fake0", Device: dev, Offset: 0, Size: 2 * 524288 * SectorSize, Writes: true, ODirect: true},
		},
	}
	job := NewJob(cfg, nil, nil)
	if err := job.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	res := job.AdjustBlock(0, &IOUnit{Offset: 0, Buflen: 1 << 20, Dir: DirWrite}, false)
	if res.Outcome != SequentialReservation {
		t.Fatalf("outcome = %v, want SequentialReservation", res.Outcome)
	}

	job.CompleteBlock(0, res.Reservation, DirWrite, res.Offset, res.Buflen, true)

	if job.Table(0).Zone(0).WP() != 2048 {
		t.Errorf("zone 0 wp = %d, want 2048", job.Table(0).Zone(0).WP())
	}
}

func TestJobFreeZoneInfoDropsLastReference(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	cfg := JobConfig{
		ZoneMode: "zbd",
		Files:    []FileConfig{{Path: "/dev/fake0", Device: dev, Offset: 0, Size: 2 * 1024 * SectorSize, Writes: true, ODirect: true}},
	}
	job := NewJob(cfg, nil, nil)
	if err := job.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	table := job.Table(0)
	job.FreeZoneInfo(0)

	if !table.RefDecrement() {
		t.Error("the only reference should already have been dropped by FreeZoneInfo")
	}
}

func TestJobFileResetPreResetsBeforeVerifyWrite(t *testing.T) {
	dev := NewMockZonedDevice(uapi.ModelHostManaged, 2, 1024)
	cfg := JobConfig{
		ZoneMode: "zbd",
		Files: []FileConfig{
			{Path: "/dev/fake0", Device: dev, Offset: 0, Size: 2 * 1024 * SectorSize,
				Writes: true, ODirect: true, Verify: true, MinBlockBytes: 512},
		},
	}
	job := NewJob(cfg, nil, nil)
	if err := job.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	job.Table(0).Zone(0).setWP(500, job.Table(0).Zone(1).Start())

	if err := job.FileReset(0, false); err != nil {
		t.Fatalf("FileReset failed: %v", err)
	}
	if job.Table(0).Zone(0).WP() != job.Table(0).Zone(0).Start() {
		t.Error("file reset while verifying+writing should reset the partially-written zone")
	}
}
