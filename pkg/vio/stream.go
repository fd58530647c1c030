package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
)

// Partial IO errors, for when attempting to perform an operation that
// would be legal on a file but impossible on a read-only stream.
var (
	ErrRewind = errors.New("underlying IO object does not support rewinding")
	ErrLength = errors.New("underlying IO object does not know how long it will be")
)

// streamSeeker adapts a forward-only stream into an io.ReadSeeker by
// discarding data to satisfy forward seeks. Rewinding is impossible and
// reported as an error.
type streamSeeker struct {
	name   string
	offset int64
	size   int64
	reader io.Reader
	closer io.Closer
}

func (ss *streamSeeker) Read(p []byte) (n int, err error) {
	n, err = ss.reader.Read(p)
	ss.offset += int64(n)
	return
}

func (ss *streamSeeker) Seek(offset int64, whence int) (int64, error) {

	var aim int64
	switch whence {
	case io.SeekStart:
		aim = offset
	case io.SeekCurrent:
		aim = ss.offset + offset
	case io.SeekEnd:
		if ss.size < 0 {
			return ss.offset, fmt.Errorf("seeking %s: %w", ss.name, ErrLength)
		}
		aim = ss.size + offset
	}

	if aim < ss.offset {
		return ss.offset, fmt.Errorf("seeking %s: %w", ss.name, ErrRewind)
	}

	k, err := io.CopyN(ioutil.Discard, ss.reader, aim-ss.offset)
	ss.offset += k
	if err == io.EOF {
		err = nil
	}
	return ss.offset, err
}

func (ss *streamSeeker) Close() error {
	if ss.closer == nil {
		return nil
	}
	return ss.closer.Close()
}

// StreamFile wraps a forward-only reader so that it satisfies the File
// interface. Seeks can only move forwards; size may be negative if
// unknown.
func StreamFile(name string, size int64, rc io.ReadCloser) File {
	return CustomFile(CustomFileArgs{
		Name: name,
		Size: size,
		ReadSeekCloser: &streamSeeker{
			name:   name,
			size:   size,
			reader: rc,
			closer: rc,
		},
	})
}
