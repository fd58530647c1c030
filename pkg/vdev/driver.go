package vdev

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/vorteil/vblock/pkg/disk"
	"github.com/vorteil/vblock/pkg/elog"
	"github.com/vorteil/vblock/pkg/vhd"
)

// DriverName is the name the driver registers under with the dispatch
// layer.
const DriverName = "vhd"

// Driver exposes a Registry of dynamic-VHD backed devices to the
// generic disk dispatch layer.
type Driver struct {
	registry *Registry
	log      elog.View
}

// NewDriver wraps a registry in a disk.Driver. A nil log is replaced
// with a silent one.
func NewDriver(r *Registry, log elog.View) *Driver {
	if log == nil {
		log = elog.Discard
	}
	return &Driver{
		registry: r,
		log:      log,
	}
}

// Name implements disk.Driver.
func (drv *Driver) Name() string {
	return DriverName
}

// Iterate implements disk.Driver. Devices only surface during the
// initial pull phase.
func (drv *Driver) Iterate(fn func(name string) bool, pull disk.Pull) bool {
	if pull != disk.PullNone {
		return false
	}
	return drv.registry.ForEach(func(d *Device) bool {
		return fn(d.name)
	})
}

// Open implements disk.Driver. The dynamic format gives no cheap way
// to know the virtual disk's capacity from the read path's metadata,
// so the total sector count is reported as unknown.
func (drv *Driver) Open(name string, dev *disk.Device) error {

	d := drv.registry.Find(name)
	if d == nil {
		return fmt.Errorf("%w: can't open device '%s'", disk.ErrUnknownDevice, name)
	}

	dev.ID = d.id
	dev.TotalSectors = disk.SizeUnknown
	dev.MaxAggregate = disk.DefaultMaxAggregate
	dev.Data = d

	return nil
}

// Read implements disk.Driver. Every request re-reads the on-disk
// metadata: the dynamic header, then the one block allocation table
// entry the first requested sector lands in. The whole request is then
// satisfied with a single contiguous read from the first sector's
// physical offset; requests spanning a block boundary are not split
// per block.
func (drv *Driver) Read(dev *disk.Device, sector, count uint64, buf []byte) error {

	d, ok := dev.Data.(*Device)
	if !ok {
		return fmt.Errorf("%w: stale device handle '%s'", disk.ErrBadDevice, dev.Name)
	}
	f := d.file

	hdr, err := vhd.DecodeHeader(f)
	if err != nil {
		return err
	}

	pos, err := vhd.Translate(f, hdr, sector)
	if err != nil {
		return err
	}

	drv.log.Debugf("device '%s': sector %d translated to byte offset %#x", d.name, sector, pos)

	_, err = f.Seek(pos, io.SeekStart)
	if err != nil {
		return err
	}

	_, err = io.ReadFull(f, buf[:count<<disk.SectorBits])
	if err != nil {
		return pkgerrors.Wrapf(err, "reading %d sectors from device '%s'", count, d.name)
	}

	return nil
}

// Write implements disk.Driver. The backend is read-only and every
// write attempt fails without touching the backing file.
func (drv *Driver) Write(dev *disk.Device, sector, count uint64, buf []byte) error {
	return fmt.Errorf("%w: vhd write is not supported", disk.ErrNotImplemented)
}
