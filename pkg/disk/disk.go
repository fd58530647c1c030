package disk

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"errors"
	"fmt"
)

const (
	// SectorBits is the log2 of the sector size.
	SectorBits = 9

	// SectorSize is the fixed addressable unit of block-device IO.
	SectorSize = 512

	// cacheBits is the log2 of the transfer-cache granularity in
	// sectors, used when deriving aggregation limits.
	cacheBits = 6

	// aggregationCeilingBits caps any single aggregated transfer at
	// 512 MiB regardless of what a driver reports.
	aggregationCeilingBits = 29

	// SizeUnknown is reported as the total sector count by drivers
	// that cannot compute a device's capacity.
	SizeUnknown = ^uint64(0)
)

// DefaultMaxAggregate is the aggregation limit drivers report when
// nothing about their geometry suggests a better one.
const DefaultMaxAggregate = 1 << (aggregationCeilingBits - SectorBits - cacheBits)

// Errors shared across drivers so that callers can match on the kind
// of failure regardless of which driver produced it.
var (
	ErrBadArgument    = errors.New("bad argument")
	ErrBadDevice      = errors.New("device not found")
	ErrUnknownDevice  = errors.New("unknown device")
	ErrNotImplemented = errors.New("operation not implemented")
	ErrShortBuffer    = errors.New("buffer too small for requested transfer")
)

// Pull identifies an enumeration phase. Most drivers only surface
// devices during the initial phase; later phases exist for device
// classes that are expensive to probe.
type Pull int

const (
	PullNone Pull = iota
	PullRemovable
	PullResurrect
	pullMax
)

// Device is an open handle to a named virtual device, produced by Open
// and consumed by Read and Write.
type Device struct {
	Name string

	// ID is a stable identity for the device, preserved across
	// re-opens for as long as the device remains registered.
	ID uint64

	// TotalSectors is the device's capacity in sectors, or
	// SizeUnknown when the driver cannot compute it.
	TotalSectors uint64

	// MaxAggregate is the largest transfer, in sectors, that should
	// be aggregated into a single driver request.
	MaxAggregate uint64

	// Data is driver-private state.
	Data interface{}

	driver Driver
}

// Driver is the set of operations a block-device backend provides to
// the dispatch layer.
type Driver interface {

	// Name identifies the driver, e.g. "vhd".
	Name() string

	// Iterate calls fn once per device name available during the
	// given pull phase, stopping and returning true if fn returns
	// true.
	Iterate(fn func(name string) bool, pull Pull) bool

	// Open fills in dev for the named device, or fails with
	// ErrUnknownDevice.
	Open(name string, dev *Device) error

	// Read reads count sectors starting at sector into buf.
	Read(dev *Device, sector, count uint64, buf []byte) error

	// Write writes count sectors starting at sector from buf.
	Write(dev *Device, sector, count uint64, buf []byte) error
}

var registeredDrivers []Driver

// RegisterDriver adds a driver to the dispatch layer. Names must be
// unique.
func RegisterDriver(drv Driver) error {

	for _, d := range registeredDrivers {
		if d.Name() == drv.Name() {
			return fmt.Errorf("refusing to register disk driver '%s': already registered", drv.Name())
		}
	}

	registeredDrivers = append(registeredDrivers, drv)
	return nil
}

// UnregisterDriver removes a previously registered driver. Removing a
// driver that was never registered is a no-op.
func UnregisterDriver(drv Driver) {

	for i, d := range registeredDrivers {
		if d == drv {
			registeredDrivers = append(registeredDrivers[:i], registeredDrivers[i+1:]...)
			return
		}
	}
}

// Drivers returns the names of all registered drivers in registration
// order.
func Drivers() []string {
	names := make([]string, len(registeredDrivers))
	for i, d := range registeredDrivers {
		names[i] = d.Name()
	}
	return names
}

// Iterate visits every device name known to every registered driver,
// phase by phase, stopping early if fn returns true.
func Iterate(fn func(name string) bool) bool {
	for pull := PullNone; pull < pullMax; pull++ {
		for _, drv := range registeredDrivers {
			if drv.Iterate(fn, pull) {
				return true
			}
		}
	}
	return false
}

// Open resolves a device name against every registered driver in
// registration order and returns a handle from the first driver that
// recognises it.
func Open(name string) (*Device, error) {

	if name == "" {
		return nil, fmt.Errorf("%w: device name required", ErrBadArgument)
	}

	for _, drv := range registeredDrivers {
		dev := &Device{
			Name:   name,
			driver: drv,
		}
		err := drv.Open(name, dev)
		if err == nil {
			if dev.MaxAggregate > DefaultMaxAggregate || dev.MaxAggregate == 0 {
				dev.MaxAggregate = DefaultMaxAggregate
			}
			return dev, nil
		}
		if !errors.Is(err, ErrUnknownDevice) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: can't open device '%s'", ErrUnknownDevice, name)
}

// Read reads count sectors starting at sector into buf, which must
// hold at least count*SectorSize bytes.
func (dev *Device) Read(sector, count uint64, buf []byte) error {
	if uint64(len(buf)) < count<<SectorBits {
		return ErrShortBuffer
	}
	return dev.driver.Read(dev, sector, count, buf)
}

// Write writes count sectors starting at sector from buf.
func (dev *Device) Write(sector, count uint64, buf []byte) error {
	if uint64(len(buf)) < count<<SectorBits {
		return ErrShortBuffer
	}
	return dev.driver.Write(dev, sector, count, buf)
}
