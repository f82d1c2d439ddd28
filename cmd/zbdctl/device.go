package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/zbdcore/zbdadapt/internal/ioctl"
	"github.com/zbdcore/zbdadapt/internal/sysfs"
	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// blockDeviceSize derives a block device's size by seeking to its end;
// the kernel reports the device's true byte length this way without
// needing the BLKGETSIZE64 ioctl.
func blockDeviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek to end: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek back to start: %w", err)
	}
	return size, nil
}

// blockDevice adapts a real Linux block device, opened by path, to
// interfaces.Device.
type blockDevice struct {
	f         *os.File
	major     uint32
	minor     uint32
	sizeBytes int64
}

func openBlockDevice(path string) (*blockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var st syscall.Stat_t
	if err := syscall.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	size, err := blockDeviceSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &blockDevice{
		f:         f,
		major:     uint32(st.Rdev >> 8 & 0xfff),
		minor:     uint32(st.Rdev&0xff | (st.Rdev>>12)&0xfff00),
		sizeBytes: size,
	}, nil
}

func (d *blockDevice) Close() error { return d.f.Close() }

func (d *blockDevice) ZonedModel() (string, error) {
	return sysfs.ZonedModel(d.major, d.minor)
}

func (d *blockDevice) SizeBytes() (int64, error) {
	return d.sizeBytes, nil
}

func (d *blockDevice) ReportZones(startSector uint64, out []uapi.BlkZone) (int, error) {
	return ioctl.ReportZones(d.f, startSector, out)
}

func (d *blockDevice) ResetZones(startSector, nrSectors uint64) error {
	return ioctl.ResetZones(d.f, startSector, nrSectors)
}
