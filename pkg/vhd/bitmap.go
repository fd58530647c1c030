package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"

	"github.com/bits-and-blooms/bitset"
	pkgerrors "github.com/pkg/errors"
)

// bitmapSectors returns the number of sectors occupied by a block's
// allocation bitmap: one bit per sector in the block, padded out to a
// sector boundary. For every legal block size this is a single sector.
func (hdr *Header) bitmapSectors() uint64 {
	bits := hdr.Density()
	bytes := (bits + 7) / 8
	return (bytes + SectorSize - 1) / SectorSize
}

// ReadBlockBitmap reads the sector allocation bitmap that precedes the
// data of the block referenced by the given table entry. Bit i is set
// when sector i of the block has been written. Bits are stored
// most-significant first within each byte.
func ReadBlockBitmap(r io.ReadSeeker, hdr *Header, entry uint32) (*bitset.BitSet, error) {

	_, err := r.Seek(int64(entry)<<SectorBits, io.SeekStart)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, hdr.bitmapSectors()<<SectorBits)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading block allocation bitmap")
	}

	bits := uint(hdr.Density())
	set := bitset.New(bits)
	for i := uint(0); i < bits; i++ {
		if buf[i/8]&(0x80>>(i%8)) != 0 {
			set.Set(i)
		}
	}

	return set, nil
}

// ReadBAT reads the entire block allocation table. Inspection tooling
// uses this to report allocation statistics; the translation path
// never loads the full table.
func ReadBAT(r io.ReadSeeker, hdr *Header) ([]uint32, error) {

	_, err := r.Seek(int64(hdr.TableOffset), io.SeekStart)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, uint64(hdr.MaxTableEntries)*BATEntrySize)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading block allocation table")
	}

	bat := make([]uint32, hdr.MaxTableEntries)
	for i := range bat {
		bat[i] = uint32(buf[4*i])<<24 | uint32(buf[4*i+1])<<16 |
			uint32(buf[4*i+2])<<8 | uint32(buf[4*i+3])
	}

	return bat, nil
}
