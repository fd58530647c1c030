package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
)

const (
	// SectorBits is the log2 of the sector size.
	SectorBits = 9

	// SectorSize is the fixed addressable unit of block-device IO.
	SectorSize = 512

	// HeaderOffset is the absolute byte offset of the dynamic disk
	// header within a VHD file. The first 512 bytes are a copy of
	// the hard disk footer.
	HeaderOffset = 512

	// HeaderSize is the encoded size of the dynamic disk header.
	HeaderSize = 1024

	// FooterSize is the encoded size of the hard disk footer.
	FooterSize = 512

	// BATEntrySize is the encoded size of one block allocation
	// table entry.
	BATEntrySize = 4

	// UnallocatedBlock is the table entry marking a block that has
	// never been written.
	UnallocatedBlock = uint32(0xFFFFFFFF)
)

var (
	ErrNotVHD       = errors.New("file is not a valid VHD")
	ErrNotDynamic   = errors.New("VHD is not a dynamic disk")
	ErrBadBlockSize = errors.New("dynamic header block size is not a positive multiple of the sector size")
)

// DecodeHeader reads and decodes the dynamic disk header. The cookie
// and checksum are decoded but deliberately not verified here; use
// Validate for stricter checking. The reader's cursor is left wherever
// the read finished.
func DecodeHeader(r io.ReadSeeker) (*Header, error) {

	_, err := r.Seek(HeaderOffset, io.SeekStart)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading dynamic disk header")
	}

	hdr := new(Header)
	err = binary.Read(bytes.NewReader(buf), binary.BigEndian, hdr)
	if err != nil {
		return nil, err
	}

	return hdr, nil
}

// DecodeFooter reads and decodes the leading copy of the hard disk
// footer at the start of the file.
func DecodeFooter(r io.ReadSeeker) (*Footer, error) {

	_, err := r.Seek(0, io.SeekStart)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, FooterSize)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading hard disk footer")
	}

	ftr := new(Footer)
	err = binary.Read(bytes.NewReader(buf), binary.BigEndian, ftr)
	if err != nil {
		return nil, err
	}

	return ftr, nil
}

// Density returns the number of sectors per block.
func (hdr *Header) Density() uint64 {
	return uint64(hdr.BlockSize) >> SectorBits
}

// Validate applies the structural checks the translation path skips:
// cookie match and block-size geometry. It is a hardening hook for
// inspection tooling, not part of the read path.
func (hdr *Header) Validate() error {
	if hdr.Cookie != headerCookie {
		return fmt.Errorf("%w: bad dynamic header cookie %#x", ErrNotDynamic, hdr.Cookie)
	}
	if hdr.BlockSize == 0 || hdr.BlockSize%SectorSize != 0 ||
		hdr.BlockSize&(hdr.BlockSize-1) != 0 {
		return fmt.Errorf("%w: %#x", ErrBadBlockSize, hdr.BlockSize)
	}
	return nil
}

// Validate checks the footer cookie, format version, and that the disk
// type is one this package can do anything with.
func (ftr *Footer) Validate() error {
	if ftr.Cookie != footerCookie {
		return fmt.Errorf("%w: bad footer cookie %#x", ErrNotVHD, ftr.Cookie)
	}
	if ftr.FileFormatVersion != fileFormatVersion {
		return fmt.Errorf("%w: unsupported format version %#x", ErrNotVHD, ftr.FileFormatVersion)
	}
	if ftr.DiskType != diskTypeDynamic {
		return fmt.Errorf("%w: disk type %d", ErrNotDynamic, ftr.DiskType)
	}
	return nil
}

// Translate computes the absolute byte offset within the backing file
// at which the data for the given virtual sector is stored. It costs
// one seek and one 4-byte read to fetch the relevant block allocation
// table entry.
//
// Neither the sector nor the derived table index is bounds-checked,
// and the unallocated-block marker receives no special treatment: the
// returned offset is whatever the arithmetic produces. Callers wanting
// stricter behavior must layer it on top.
func Translate(r io.ReadSeeker, hdr *Header, sector uint64) (int64, error) {

	density := hdr.Density()
	if density == 0 {
		return 0, ErrBadBlockSize
	}

	block := sector / density
	offset := sector % density

	_, err := r.Seek(int64(hdr.TableOffset+block*BATEntrySize), io.SeekStart)
	if err != nil {
		return 0, err
	}

	var entry uint32
	err = binary.Read(r, binary.BigEndian, &entry)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "reading block allocation table entry %d", block)
	}

	// One bitmap sector precedes each block's data on disk, hence
	// the +1.
	return int64((uint64(entry) + 1 + offset) << SectorBits), nil
}
