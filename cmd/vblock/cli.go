package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
)

var (
	flagJSON    bool
	flagVerbose bool
	flagDebug   bool
)

func commandInit() {

	// setup logging across all commands
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {

		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}

		if flagDebug {
			logger.DebugFlag = true
		}
		if flagVerbose {
			logger.VerboseFlag = true
		}

		attachConfiguredDevices()

		return nil
	}

	// Here is the visible command structure definition.
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(detachCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(convertCmd)

	attachCmd.Flags().BoolVarP(&flagDelete, "delete", "d", false, "detach the named device instead of attaching")
	readCmd.Flags().Uint64Var(&flagSector, "sector", 0, "first virtual sector to read")
	readCmd.Flags().Uint64Var(&flagCount, "count", 1, "number of sectors to read")
	readCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write sector data to a file instead of stdout")
	inspectCmd.Flags().BoolVar(&flagStrict, "strict", false, "validate cookies and geometry instead of just decoding")
	createCmd.Flags().StringVar(&flagSize, "size", "64M", "virtual disk size, e.g. 256M or 4G")
}

var rootCmd = &cobra.Command{
	Use:   "vblock",
	Short: "Expose dynamic VHD images as virtual block devices",
	Long: `vblock maintains a registry of virtual block devices, each backed by a
dynamic VHD disk image. Devices can be attached, detached, enumerated,
and read from at sector granularity; the registry itself never writes
through to an image. Additional helper commands inspect and create
dynamic VHD files.`,
}

// plainTable prints data in a grid, handling alignment automatically.
func plainTable(vals [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeader(vals[0])
	for i := 1; i < len(vals); i++ {
		table.Append(vals[i])
	}
	table.Render()
}
