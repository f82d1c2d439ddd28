//go:build linux

// Package ioctl submits the raw BLKREPORTZONE/BLKRESETZONE ioctl(2) calls
// against an open block-device file descriptor.
package ioctl

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// ioctlSyscall is overridden in tests to exercise callers without a real
// zoned block device.
var ioctlSyscall = func(fd, req, arg uintptr) (uintptr, uintptr, unix.Errno) {
	return unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
}

// ReportZones issues BLKREPORTZONE starting at startSector, filling at most
// len(out) records, and returns the number the kernel actually filled.
func ReportZones(f *os.File, startSector uint64, out []uapi.BlkZone) (int, error) {
	hdr := &uapi.BlkZoneReportHdr{
		Sector:  startSector,
		NrZones: uint32(len(out)),
	}

	buf := make([]byte, 20+64*len(out))
	copy(buf, uapi.MarshalReportHdr(hdr))

	if _, _, errno := ioctlSyscall(f.Fd(), uintptr(uapi.BlkReportZoneIoctl), uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		return 0, errno
	}

	got, err := uapi.UnmarshalReportHdr(buf[:20])
	if err != nil {
		return 0, err
	}

	n := int(got.NrZones)
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		off := 20 + i*64
		z, err := uapi.UnmarshalZone(buf[off : off+64])
		if err != nil {
			return i, err
		}
		out[i] = *z
	}
	return n, nil
}

// ResetZones issues BLKRESETZONE over [startSector, startSector+nrSectors).
func ResetZones(f *os.File, startSector, nrSectors uint64) error {
	r := &uapi.BlkZoneRange{Sector: startSector, NrSectors: nrSectors}
	buf := uapi.MarshalZoneRange(r)

	if _, _, errno := ioctlSyscall(f.Fd(), uintptr(uapi.BlkResetZoneIoctl), uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		return errno
	}
	return nil
}
