package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// File represents random-access backing storage for a virtual device.
// It is usually a file on the local filesystem, but anything that can
// satisfy seeks and reads qualifies, including network files and
// decompressed streams.
type File interface {

	// Name returns the base name of the file, not a
	// full path (see filepath.Base).
	Name() string

	// Size returns the size of the file in bytes, or a
	// negative number if the size cannot be known in
	// advance.
	Size() int64

	// ModTime returns the time the file was most
	// recently modified.
	ModTime() time.Time

	// Read implements io.Reader to retrieve file
	// contents.
	Read(p []byte) (n int, err error)

	// Seek implements io.Seeker to reposition the read
	// cursor at an absolute or relative offset.
	Seek(offset int64, whence int) (int64, error)

	// Close implements io.Closer.
	Close() error
}

// Open mimics the os.Open function but returns an
// implementation of File.
func Open(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return CustomFile(CustomFileArgs{
		Name:           fi.Name(),
		Size:           fi.Size(),
		ModTime:        fi.ModTime(),
		ReadSeekCloser: f,
	}), nil
}

// ReadSeekCloser groups the io primitives a File implementation
// needs from its underlying object.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// CustomFileArgs takes all elements that need to be provided
// to the CustomFile function.
type CustomFileArgs struct {
	Name           string
	Size           int64
	ModTime        time.Time
	ReadSeekCloser ReadSeekCloser
}

// CustomFile makes it possible to construct a custom file
// that implements the File interface without necessarily
// being backed by an actual file on the filesystem.
func CustomFile(args CustomFileArgs) File {
	return &customFile{
		name:    args.Name,
		size:    args.Size,
		modTime: args.ModTime,
		rsc:     args.ReadSeekCloser,
	}
}

type customFile struct {
	name    string
	size    int64
	modTime time.Time
	rsc     ReadSeekCloser
}

func (f *customFile) Name() string {
	return f.name
}

func (f *customFile) Size() int64 {
	return f.size
}

func (f *customFile) ModTime() time.Time {
	return f.modTime
}

func (f *customFile) Read(p []byte) (n int, err error) {
	return f.rsc.Read(p)
}

func (f *customFile) Seek(offset int64, whence int) (int64, error) {
	return f.rsc.Seek(offset, whence)
}

func (f *customFile) Close() error {
	if f.rsc != nil {
		return f.rsc.Close()
	}
	return nil
}

// LazyOpen is an alternative implementation of Open that
// defers actually opening the file until the first
// attempted read or seek.
func LazyOpen(path string) (File, error) {

	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return CustomFile(CustomFileArgs{
		Name:    filepath.Base(path),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		ReadSeekCloser: &lazyFile{
			path: path,
		},
	}), nil
}

type lazyFile struct {
	path string
	f    *os.File
}

func (lf *lazyFile) load() error {
	if lf.f != nil {
		return nil
	}
	f, err := os.Open(lf.path)
	if err != nil {
		return err
	}
	lf.f = f
	return nil
}

func (lf *lazyFile) Read(p []byte) (n int, err error) {
	err = lf.load()
	if err != nil {
		return 0, err
	}
	return lf.f.Read(p)
}

func (lf *lazyFile) Seek(offset int64, whence int) (int64, error) {
	err := lf.load()
	if err != nil {
		return 0, err
	}
	return lf.f.Seek(offset, whence)
}

func (lf *lazyFile) Close() error {
	if lf.f == nil {
		return nil
	}
	return lf.f.Close()
}
