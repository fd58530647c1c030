package vdev

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/vorteil/vblock/pkg/disk"
	"github.com/vorteil/vblock/pkg/elog"
	"github.com/vorteil/vblock/pkg/vio"
)

// Device pairs a symbolic device name with the backing file its
// contents come from. The device owns the file exclusively and is the
// only thing that closes it.
type Device struct {
	name string
	file vio.File
	id   uint64
}

// Name returns the symbolic name the device was registered under.
func (d *Device) Name() string {
	return d.name
}

// ID returns the device's identity, assigned at creation and never
// reused, even after the device is deleted.
func (d *Device) ID() uint64 {
	return d.id
}

// File returns the device's backing file.
func (d *Device) File() vio.File {
	return d.file
}

// Registry is an ordered collection of named virtual devices. It is
// not safe for concurrent use; command dispatch is single-threaded and
// owns it outright.
type Registry struct {
	devices []*Device
	nextID  uint64
	log     elog.View
}

// NewRegistry returns an empty Registry. A nil log is replaced with a
// silent one.
func NewRegistry(log elog.View) *Registry {
	if log == nil {
		log = elog.Discard
	}
	return &Registry{
		log: log,
	}
}

// AddOrReplace registers f as the backing file for the named device.
// If the name is already registered the old backing file is closed and
// swapped out in place, keeping the device's identity. On failure the
// candidate file is closed and the registry is left untouched.
func (r *Registry) AddOrReplace(name string, f vio.File) error {

	if name == "" {
		if f != nil {
			f.Close()
		}
		return fmt.Errorf("%w: device name required", disk.ErrBadArgument)
	}
	if f == nil {
		return fmt.Errorf("%w: backing file required", disk.ErrBadArgument)
	}

	// replace in place if the name is taken
	if d := r.Find(name); d != nil {
		err := d.file.Close()
		if err != nil {
			r.log.Warnf("closing replaced backing file for device '%s': %v", name, err)
		}
		d.file = f
		r.log.Debugf("device '%s' backing file replaced (id %d)", name, d.id)
		return nil
	}

	d := &Device{
		name: name,
		file: f,
		id:   r.nextID,
	}
	r.nextID++

	r.devices = append([]*Device{d}, r.devices...)
	r.log.Debugf("device '%s' registered (id %d)", name, d.id)

	return nil
}

// Delete removes the named device and closes its backing file. The
// registry is unchanged if no such device exists.
func (r *Registry) Delete(name string) error {

	for i, d := range r.devices {
		if d.name != name {
			continue
		}
		r.devices = append(r.devices[:i], r.devices[i+1:]...)
		err := d.file.Close()
		if err != nil {
			return err
		}
		r.log.Debugf("device '%s' deleted (id %d)", name, d.id)
		return nil
	}

	return fmt.Errorf("%w: '%s'", disk.ErrBadDevice, name)
}

// Find returns the named device, or nil.
func (r *Registry) Find(name string) *Device {
	for _, d := range r.devices {
		if d.name == name {
			return d
		}
	}
	return nil
}

// ForEach visits every registered device exactly once in list order,
// stopping and returning true if fn returns true.
func (r *Registry) ForEach(fn func(d *Device) bool) bool {
	for _, d := range r.devices {
		if fn(d) {
			return true
		}
	}
	return false
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Close deletes every device, closing each backing file exactly once.
// The first close error is returned after all devices have been
// released.
func (r *Registry) Close() error {

	var first error
	for _, d := range r.devices {
		err := d.file.Close()
		if err != nil && first == nil {
			first = err
		}
	}
	r.devices = nil

	return first
}
