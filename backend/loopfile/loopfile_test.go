package loopfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/uapi"
)

func TestCreateReportsEvenlySpacedEmptyZones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.img")
	dev, err := Create(path, 4*1024*constants.SectorSize, 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer dev.Close()

	model, err := dev.ZonedModel()
	if err != nil || model != uapi.ModelHostManaged {
		t.Fatalf("ZonedModel = %q, %v; want host-managed, nil", model, err)
	}

	out := make([]uapi.BlkZone, 4)
	n, err := dev.ReportZones(0, out)
	if err != nil {
		t.Fatalf("ReportZones failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("got %d zones, want 4", n)
	}
	for i, z := range out[:n] {
		if z.Start != uint64(i)*1024 {
			t.Errorf("zone %d start = %d, want %d", i, z.Start, uint64(i)*1024)
		}
		if z.Wp != z.Start {
			t.Errorf("zone %d wp = %d, want %d (empty)", i, z.Wp, z.Start)
		}
		if z.Type != uapi.ZoneTypeSeqWriteReq {
			t.Errorf("zone %d type = %d, want SeqWriteReq", i, z.Type)
		}
	}
}

func TestCreateRejectsUnevenZoneSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.img")
	if _, err := Create(path, 1000*constants.SectorSize, 3); err == nil {
		t.Fatal("expected an error when size does not divide evenly by zone count")
	}
}

func TestResetZonesClearsWPAndZeroesBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.img")
	dev, err := Create(path, 2*1024*constants.SectorSize, 2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer dev.Close()

	payload := bytes.Repeat([]byte{0xAB}, 4096)
	if _, err := dev.WriteAt(payload, 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	if err := dev.ResetZones(0, 1024); err != nil {
		t.Fatalf("ResetZones failed: %v", err)
	}

	out := make([]uapi.BlkZone, 1)
	if _, err := dev.ReportZones(0, out); err != nil {
		t.Fatalf("ReportZones failed: %v", err)
	}
	if out[0].Wp != out[0].Start {
		t.Errorf("wp = %d, want reset to start %d", out[0].Wp, out[0].Start)
	}

	readBack := make([]byte, 4096)
	if _, err := dev.ReadAt(readBack, 0); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.Equal(readBack, make([]byte, 4096)) {
		t.Error("reset zone's payload bytes should have been zeroed")
	}
}

func TestResetZonesLeavesPartialOverlapUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.img")
	dev, err := Create(path, 2*1024*constants.SectorSize, 2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer dev.Close()

	// A range covering only half of zone 0 must not reset it.
	if err := dev.ResetZones(0, 512); err != nil {
		t.Fatalf("ResetZones failed: %v", err)
	}
	out := make([]uapi.BlkZone, 1)
	dev.ReportZones(0, out)
	if out[0].Cond != uapi.ZoneCondEmpty {
		t.Errorf("cond = %d, want unaffected ZoneCondEmpty", out[0].Cond)
	}
}

func TestOpenRederivesZoneTableFromExistingFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.img")
	dev, err := Create(path, 4*1024*constants.SectorSize, 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	dev.Close()

	reopened, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()

	size, err := reopened.SizeBytes()
	if err != nil || size != 4*1024*constants.SectorSize {
		t.Errorf("SizeBytes = %d, %v; want %d, nil", size, err, 4*1024*constants.SectorSize)
	}
}
