package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// OpenGzip opens a gzip-compressed file and exposes the decompressed
// contents as a File. The decompressed size is unknown in advance and
// seeks can only move forwards, which is enough for single-pass
// consumers.
func OpenGzip(path string) (File, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")

	return CustomFile(CustomFileArgs{
		Name: name,
		Size: -1,
		ReadSeekCloser: &streamSeeker{
			name:   name,
			size:   -1,
			reader: gz,
			closer: &gzipCloser{f: f, gz: gz},
		},
	}), nil
}

type gzipCloser struct {
	f  *os.File
	gz *gzip.Reader
}

func (gc *gzipCloser) Close() error {
	err := gc.gz.Close()
	if e := gc.f.Close(); err == nil {
		err = e
	}
	return err
}
