package uapi

// ioctl encoding constants, mirroring <asm-generic/ioctl.h>.
const (
	iocWrite     = 1
	iocRead      = 2
	iocSizeBits  = 14
	iocDirBits   = 2
	iocTypeBits  = 8
	iocNRBits    = 8
	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// ioctlEncode creates an ioctl command number from direction, type, number,
// and argument size, the same way <asm-generic/ioctl.h>'s _IOWR et al do.
func ioctlEncode(dir, typ, nr, size uint32) uint32 {
	return (dir << iocDirShift) |
		(size << iocSizeShift) |
		(typ << iocTypeShift) |
		(nr << iocNRShift)
}

// Block-device ioctl type ("magic") and numbers, from <linux/fs.h>.
const (
	blockIoctlType = 0x12

	blkReportZoneNr = 130
	blkResetZoneNr  = 131
)

// BlkReportZoneIoctl is the BLKREPORTZONE ioctl request number.
// The buffer is a BlkZoneReportHdr immediately followed by NrZones BlkZone
// records; the kernel reads Sector/NrZones on entry and fills the records
// (and the final NrZones) on return.
var BlkReportZoneIoctl = ioctlEncode(iocRead|iocWrite, blockIoctlType, blkReportZoneNr, uint32(20))

// BlkResetZoneIoctl is the BLKRESETZONE ioctl request number.
var BlkResetZoneIoctl = ioctlEncode(iocWrite, blockIoctlType, blkResetZoneNr, uint32(16))
