package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// DefaultBlockSize is the block size used for images built by this
// package: 2 MiB, the format's customary value.
const DefaultBlockSize = 0x200000

// vhdEpoch is the format's timestamp origin, 2000-01-01 00:00:00 UTC.
const vhdEpoch = 946684800

// HolePredictor reports where the raw content that is being written
// contains holes, so the writer can leave those blocks unallocated.
type HolePredictor interface {
	Size() int64
	RegionIsHole(begin, size int64) bool
}

// DynamicWriter builds a dynamic VHD image from a raw disk image
// streamed through it. The raw image's size must be a multiple of the
// block size.
type DynamicWriter struct {
	w             io.WriteSeeker
	h             HolePredictor
	hdr           *Header
	footer        []byte
	cursor        int64
	blockOffsets  []int64
	flushedBlocks int64
}

func NewDynamicWriter(w io.WriteSeeker, h HolePredictor) (*DynamicWriter, error) {

	dw := new(DynamicWriter)
	dw.w = w
	dw.h = h
	dw.blockOffsets = make([]int64, (dw.h.Size()+DefaultBlockSize-1)/DefaultBlockSize)

	err := dw.writeLeadingFooter()
	if err != nil {
		return nil, err
	}

	err = dw.writeHeader()
	if err != nil {
		return nil, err
	}

	err = dw.writeBAT()
	if err != nil {
		return nil, err
	}

	return dw, nil

}

// chs packs the cylinder/heads/sectors-per-track geometry field from
// the total sector count, following the algorithm in the format
// specification's appendix.
func chs(totalSectors int64) uint32 {

	var cylinders, heads, sectorsPerTrack int64
	var cylinderTimesHeads int64

	if totalSectors > 65535*16*255 {
		totalSectors = 65535 * 16 * 255
	}

	if totalSectors >= 65525*16*63 {
		sectorsPerTrack = 255
		heads = 16
		cylinderTimesHeads = totalSectors / sectorsPerTrack
	} else {
		sectorsPerTrack = 17
		cylinderTimesHeads = totalSectors / sectorsPerTrack
		heads = (cylinderTimesHeads + 1023) / 1024
		if heads < 4 {
			heads = 4
		}
		if cylinderTimesHeads >= (heads*1024) || heads > 16 {
			sectorsPerTrack = 31
			heads = 16
			cylinderTimesHeads = totalSectors / sectorsPerTrack
		}
		if cylinderTimesHeads >= heads*1024 {
			sectorsPerTrack = 63
			heads = 16
			cylinderTimesHeads = totalSectors / sectorsPerTrack
		}
	}
	cylinders = cylinderTimesHeads / heads

	return uint32(cylinders<<16 | heads<<8 | sectorsPerTrack)
}

// encodeChecksummed serializes v big-endian, computes the one's
// complement byte-sum checksum over the encoding (with the checksum
// field still zero), stores it through setSum, and serializes again.
func encodeChecksummed(v interface{}, setSum func(uint32)) ([]byte, error) {

	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.BigEndian, v)
	if err != nil {
		return nil, err
	}

	setSum(checksum(buf.Bytes()))

	buf.Reset()
	err = binary.Write(buf, binary.BigEndian, v)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (w *DynamicWriter) writeLeadingFooter() error {

	uid := uuid.New()

	ftr := &Footer{
		Cookie:             footerCookie,
		Features:           0x00000002,
		FileFormatVersion:  fileFormatVersion,
		DataOffset:         FooterSize,
		TimeStamp:          uint32(time.Now().Unix() - vhdEpoch),
		CreatorApplication: 0x76626C6B, // "vblk"
		CreatorVersion:     0x00010000,
		CreatorHostOS:      0x5769326B, // "Wi2k"
		OriginalSize:       uint64(w.h.Size()),
		CurrentSize:        uint64(w.h.Size()),
		DiskGeometry:       chs(w.h.Size() / SectorSize),
		DiskType:           diskTypeDynamic,
	}
	copy(ftr.UniqueID[:], uid[:])

	data, err := encodeChecksummed(ftr, func(sum uint32) { ftr.Checksum = sum })
	if err != nil {
		return err
	}

	// The footer is mirrored at the end of the file on Close.
	w.footer = data

	_, err = w.w.Write(data)
	return err
}

func (w *DynamicWriter) writeHeader() error {

	hdr := &Header{
		Cookie:          headerCookie,
		DataOffset:      0xFFFFFFFFFFFFFFFF,
		TableOffset:     FooterSize + HeaderSize,
		HeaderVersion:   0x00010000,
		MaxTableEntries: uint32(w.h.Size() / DefaultBlockSize),
		BlockSize:       DefaultBlockSize,
	}

	data, err := encodeChecksummed(hdr, func(sum uint32) { hdr.Checksum = sum })
	if err != nil {
		return err
	}

	_, err = w.w.Write(data)
	if err != nil {
		return err
	}

	w.hdr = hdr

	return nil
}

func (w *DynamicWriter) writeBAT() error {

	entries := w.hdr.MaxTableEntries
	batSize := ((BATEntrySize*entries + SectorSize - 1) / SectorSize) * SectorSize
	bat := bytes.Repeat([]byte{0xFF}, int(batSize))

	offset := int64(w.hdr.TableOffset) + int64(batSize)
	for i := 0; i < int(entries); i++ {
		w.blockOffsets[i] = offset
		if w.h.RegionIsHole(int64(i)*DefaultBlockSize, DefaultBlockSize) {
			continue
		}
		binary.BigEndian.PutUint32(bat[BATEntrySize*i:BATEntrySize*(i+1)], uint32(offset/SectorSize))
		offset += SectorSize + DefaultBlockSize
	}

	_, err := w.w.Write(bat)
	return err
}

// fullBitmap marks every sector of a block as written. Holes are
// skipped at block granularity, so any block that is stored at all is
// stored whole.
var fullBitmap = bytes.Repeat([]byte{0xFF}, SectorSize)

func (w *DynamicWriter) Write(p []byte) (n int, err error) {

	block := w.cursor / DefaultBlockSize
	delta := w.cursor % DefaultBlockSize

	endCursor := w.cursor + int64(len(p))
	lastBlock := endCursor / DefaultBlockSize
	if endCursor%DefaultBlockSize == 0 {
		lastBlock--
	}

	for block <= lastBlock {

		var k int64

		if delta == 0 {

			// check that offset matches the BAT
			k, err = w.w.Seek(0, io.SeekCurrent)
			if err != nil {
				return
			}

			if w.blockOffsets[block] == k {
				_, err = w.w.Write(fullBitmap)
				if err != nil {
					return
				}
			}
		}

		k, err = io.CopyN(w.w, bytes.NewReader(p), DefaultBlockSize-delta)
		n += int(k)
		w.cursor += k
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}

		err = nil
		p = p[k:]
		delta = 0
		block++
	}

	return

}

func (w *DynamicWriter) Seek(offset int64, whence int) (int64, error) {

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = w.cursor + offset
	case io.SeekEnd:
		abs = w.h.Size() + offset
	default:
		return 0, errors.New("invalid whence")
	}

	block := abs / DefaultBlockSize
	delta := abs % DefaultBlockSize
	var trueOffset int64
	l := int64(len(w.blockOffsets))

	if block > l || (block == l && delta > 0) {
		return l * DefaultBlockSize, io.EOF
	} else if block == l {
		trueOffset = l * DefaultBlockSize
	} else {
		trueOffset = w.blockOffsets[block] + SectorSize + delta
	}

	currentBlock := w.cursor / DefaultBlockSize

	// bitmaps still need to be laid down for every block skipped
	// over by the seek
	for {
		curr, err := w.w.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}

		if curr >= trueOffset {
			break
		}

		if currentBlock >= l {
			break
		}

		if curr <= w.blockOffsets[currentBlock] {
			_, err = w.w.Seek(w.blockOffsets[currentBlock], io.SeekStart)
			if err != nil {
				return 0, err
			}

			_, err = w.w.Write(fullBitmap)
			if err != nil {
				return 0, err
			}
		}

		currentBlock++
	}

	_, err := w.w.Seek(trueOffset, io.SeekStart)
	if err != nil {
		return 0, err
	}

	if w.cursor < abs {
		w.cursor = abs
	}

	return abs, nil

}

// Close writes the trailing footer. It does not close the underlying
// writer.
func (w *DynamicWriter) Close() error {

	if w.cursor < w.h.Size() {
		return errors.New("dynamic VHD writer expected more raw image data than was received")
	}

	_, err := w.w.Write(w.footer)
	if err != nil {
		return err
	}

	return nil
}
