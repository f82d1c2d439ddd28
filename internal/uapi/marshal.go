package uapi

import "encoding/binary"

// MarshalReportHdr serializes a BlkZoneReportHdr into its 20-byte wire form.
func MarshalReportHdr(hdr *BlkZoneReportHdr) []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint64(buf[0:8], hdr.Sector)
	binary.LittleEndian.PutUint32(buf[8:12], hdr.NrZones)
	buf[12] = hdr.Flags
	copy(buf[13:20], hdr.Reserved[:])
	return buf
}

// UnmarshalReportHdr reads the header back (used to see the kernel's updated NrZones).
func UnmarshalReportHdr(data []byte) (*BlkZoneReportHdr, error) {
	if len(data) < 20 {
		return nil, ErrInsufficientData
	}
	hdr := &BlkZoneReportHdr{
		Sector:  binary.LittleEndian.Uint64(data[0:8]),
		NrZones: binary.LittleEndian.Uint32(data[8:12]),
		Flags:   data[12],
	}
	copy(hdr.Reserved[:], data[13:20])
	return hdr, nil
}

// MarshalZone serializes a BlkZone into its 64-byte wire form.
func MarshalZone(z *BlkZone) []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint64(buf[0:8], z.Start)
	binary.LittleEndian.PutUint64(buf[8:16], z.Len)
	binary.LittleEndian.PutUint64(buf[16:24], z.Wp)
	buf[24] = z.Type
	buf[25] = z.Cond
	buf[26] = z.NonSeq
	buf[27] = z.Reset
	copy(buf[28:32], z.Resv[:])
	binary.LittleEndian.PutUint64(buf[32:40], z.Capacity)
	copy(buf[40:64], z.Reserved[:])
	return buf
}

// UnmarshalZone reads a 64-byte wire record back into a BlkZone.
func UnmarshalZone(data []byte) (*BlkZone, error) {
	if len(data) < 64 {
		return nil, ErrInsufficientData
	}
	z := &BlkZone{
		Start:    binary.LittleEndian.Uint64(data[0:8]),
		Len:      binary.LittleEndian.Uint64(data[8:16]),
		Wp:       binary.LittleEndian.Uint64(data[16:24]),
		Type:     data[24],
		Cond:     data[25],
		NonSeq:   data[26],
		Reset:    data[27],
		Capacity: binary.LittleEndian.Uint64(data[32:40]),
	}
	copy(z.Resv[:], data[28:32])
	copy(z.Reserved[:], data[40:64])
	return z, nil
}

// MarshalZoneRange serializes a BlkZoneRange into its 16-byte wire form.
func MarshalZoneRange(r *BlkZoneRange) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], r.Sector)
	binary.LittleEndian.PutUint64(buf[8:16], r.NrSectors)
	return buf
}

// MarshalError is the error type for malformed wire data.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
