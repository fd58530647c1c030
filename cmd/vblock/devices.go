package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"strings"

	"github.com/cloudfoundry/bytefmt"
	"github.com/spf13/cobra"

	"github.com/vorteil/vblock/pkg/vdev"
	"github.com/vorteil/vblock/pkg/vio"
)

var flagDelete bool

// openBacking resolves a path into backing storage for a device.
// Gzip-compressed images are transparently decompressed, though such
// devices only support a single pass of forward reads.
func openBacking(path string) (vio.File, error) {
	if strings.HasSuffix(path, ".gz") {
		return vio.OpenGzip(path)
	}
	return vio.LazyOpen(path)
}

var attachCmd = &cobra.Command{
	Use:   "attach [-d] DEVICENAME [FILE]",
	Short: "Make a virtual block device from a dynamic VHD file",
	Long: `Attach registers FILE as the backing image of a virtual block device
named DEVICENAME. Attaching to a name that is already registered swaps
the backing image in place, keeping the device's identity. The file
itself is never modified.

With --delete the named device is removed from the registry instead,
and no FILE argument is expected.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {

		if flagDelete {
			return registry.Delete(args[0])
		}

		if len(args) < 2 {
			return fmt.Errorf("filename expected")
		}

		f, err := openBacking(args[1])
		if err != nil {
			return err
		}

		return registry.AddOrReplace(args[0], f)
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach DEVICENAME",
	Short: "Remove a virtual block device",
	Long: `Detach removes the named device from the registry and releases its
backing image. The image file is left exactly as it was.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return registry.Delete(args[0])
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List attached virtual block devices",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {

		rows := [][]string{{"NAME", "ID", "BACKING", "SIZE"}}

		registry.ForEach(func(d *vdev.Device) bool {
			size := "unknown"
			if d.File().Size() >= 0 {
				size = bytefmt.ByteSize(uint64(d.File().Size()))
			}
			rows = append(rows, []string{
				d.Name(),
				fmt.Sprintf("%d", d.ID()),
				d.File().Name(),
				size,
			})
			return false
		})

		if len(rows) == 1 {
			log.Warnf("no devices attached")
			return nil
		}

		plainTable(rows)
		return nil
	},
}
