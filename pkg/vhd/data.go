package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// On-disk layouts from the Virtual Hard Disk Image Format Specification.
// All multi-byte fields are big-endian.

const (
	footerCookie = uint64(0x636F6E6563746978) // "conectix"
	headerCookie = uint64(0x6378737061727365) // "cxsparse"

	fileFormatVersion = uint32(0x00010000)
	diskTypeFixed     = uint32(2)
	diskTypeDynamic   = uint32(3)
)

// Footer is the 512-byte hard disk footer. A copy of it also opens the
// file, ahead of the dynamic disk header.
type Footer struct { // 512 bytes
	Cookie             uint64
	Features           uint32
	FileFormatVersion  uint32
	DataOffset         uint64
	TimeStamp          uint32
	CreatorApplication uint32
	CreatorVersion     uint32
	CreatorHostOS      uint32
	OriginalSize       uint64
	CurrentSize        uint64
	DiskGeometry       uint32
	DiskType           uint32
	Checksum           uint32
	UniqueID           [16]byte
	SavedState         byte
	Reserved           [427]byte
}

// Header is the 1024-byte dynamic disk header, located immediately
// after the leading footer copy.
type Header struct { // 1024 bytes
	Cookie              uint64
	DataOffset          uint64
	TableOffset         uint64
	HeaderVersion       uint32
	MaxTableEntries     uint32
	BlockSize           uint32
	Checksum            uint32
	ParentUniqueID      [16]byte
	ParentTimeStamp     uint32
	Reserved            [4]byte
	ParentUnicodeName   [512]byte
	ParentLocatorEntry1 [24]byte
	ParentLocatorEntry2 [24]byte
	ParentLocatorEntry3 [24]byte
	ParentLocatorEntry4 [24]byte
	ParentLocatorEntry5 [24]byte
	ParentLocatorEntry6 [24]byte
	ParentLocatorEntry7 [24]byte
	ParentLocatorEntry8 [24]byte
	Reserved2           [256]byte
}

// checksum implements the format's one's complement byte sum. The
// structure's own checksum field must be zero when the bytes are
// summed.
func checksum(b []byte) uint32 {
	var sum uint32
	for _, x := range b {
		sum += uint32(x)
	}
	return ^sum
}
