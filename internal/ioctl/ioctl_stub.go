//go:build !linux

package ioctl

import (
	"fmt"
	"os"

	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// ReportZones is unavailable off Linux; there, backend/loopfile (selected
// in zbdctl with --loopfile) is the only working Device.
func ReportZones(f *os.File, startSector uint64, out []uapi.BlkZone) (int, error) {
	return 0, fmt.Errorf("ioctl: BLKREPORTZONE unsupported on this platform")
}

// ResetZones is unavailable off Linux.
func ResetZones(f *os.File, startSector, nrSectors uint64) error {
	return fmt.Errorf("ioctl: BLKRESETZONE unsupported on this platform")
}
