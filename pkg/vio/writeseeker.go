package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"errors"
	"io"
)

type zeroesReader struct {
}

func (rdr *zeroesReader) Read(p []byte) (n int, err error) {

	if len(p) == 0 {
		return
	}
	p[0] = 0
	for bp := 1; bp < len(p); bp *= 2 {
		copy(p[bp:], p[:bp])
	}

	return len(p), nil
}

// Zeroes is an endless io.Reader producing zeroed bytes.
var Zeroes = io.Reader(&zeroesReader{})

type writeSeeker struct {
	w io.Writer
	s io.Seeker
	k int64
}

func (ws *writeSeeker) Write(p []byte) (n int, err error) {
	n, err = ws.w.Write(p)
	if ws.s == nil {
		ws.k += int64(n)
	}
	return
}

func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekCurrent:
		if ws.s == nil {
			if offset < 0 {
				return 0, errors.New("streamio cannot go backwards")
			}
			k, err := io.CopyN(ws.w, Zeroes, offset)
			ws.k += k
			return ws.k, err
		}
		return ws.s.Seek(offset, whence)
	case io.SeekStart:
		if ws.s == nil {
			whence = io.SeekCurrent
			offset = offset - ws.k
			return ws.Seek(offset, whence)
		}
		n, err := ws.s.Seek(offset+ws.k, whence)
		return n - ws.k, err
	case io.SeekEnd:
		return 0, errors.New("streamio doesn't support io.SeekEnd")
	default:
		return 0, errors.New("invalid whence")
	}
}

// WriteSeeker adapts a plain io.Writer into an io.WriteSeeker by
// zero-filling forward seeks. If w can already seek it is used
// directly, with offsets made relative to its position at the time of
// this call.
func WriteSeeker(w io.Writer) (io.WriteSeeker, error) {

	ws := new(writeSeeker)
	ws.w = w

	if s, ok := w.(io.Seeker); ok {
		ws.s = s
		k, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		ws.k = k
	}

	return ws, nil

}

// Buffer is an in-memory ReadWriteSeeker, mainly useful for building
// and dissecting disk images in tests without touching the filesystem.
type Buffer struct {
	data []byte
	k    int64
}

func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Read(p []byte) (n int, err error) {
	if b.k >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n = copy(p, b.data[b.k:])
	b.k += int64(n)
	return
}

func (b *Buffer) Write(p []byte) (n int, err error) {
	if need := b.k + int64(len(p)); need > int64(len(b.data)) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	n = copy(b.data[b.k:], p)
	b.k += int64(n)
	return
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.k + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	b.k = abs
	return abs, nil
}

func (b *Buffer) Close() error {
	return nil
}
