package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloudfoundry/bytefmt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vorteil/vblock/pkg/disk"
	"github.com/vorteil/vblock/pkg/vhd"
	"github.com/vorteil/vblock/pkg/vio"
)

var (
	flagSector uint64
	flagCount  uint64
	flagOutput string
	flagStrict bool
	flagSize   string
)

// vhdEpoch is the format's timestamp origin, 2000-01-01 00:00:00 UTC.
const vhdEpoch = 946684800

var readCmd = &cobra.Command{
	Use:   "read DEVICENAME",
	Short: "Read sectors from an attached device",
	Long: `Read resolves DEVICENAME through the disk dispatch layer and reads
--count sectors starting at --sector, writing the raw bytes to stdout
or to the file named by --output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		dev, err := disk.Open(args[0])
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if flagOutput != "" {
			f, err := os.Create(flagOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		sector := flagSector
		remaining := flagCount
		for remaining > 0 {
			n := remaining
			if n > dev.MaxAggregate {
				n = dev.MaxAggregate
			}

			buf := make([]byte, n<<disk.SectorBits)
			err = dev.Read(sector, n, buf)
			if err != nil {
				return err
			}

			_, err = out.Write(buf)
			if err != nil {
				return err
			}

			sector += n
			remaining -= n
		}

		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Decode and display a dynamic VHD's metadata",
	Long: `Inspect decodes the hard disk footer and dynamic disk header of FILE
and prints their interesting fields. By default nothing is validated,
matching the read path's behavior; --strict additionally checks the
cookies, format version, disk type, and block-size geometry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		f, err := vio.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ftr, err := vhd.DecodeFooter(f)
		if err != nil {
			return err
		}

		hdr, err := vhd.DecodeHeader(f)
		if err != nil {
			return err
		}

		if flagStrict {
			err = ftr.Validate()
			if err != nil {
				return err
			}
			err = hdr.Validate()
			if err != nil {
				return err
			}
		}

		uid, err := uuid.FromBytes(ftr.UniqueID[:])
		if err != nil {
			return err
		}

		created := time.Unix(vhdEpoch+int64(ftr.TimeStamp), 0).UTC()

		plainTable([][]string{
			{"FIELD", "VALUE"},
			{"disk type", fmt.Sprintf("%d", ftr.DiskType)},
			{"virtual size", bytefmt.ByteSize(ftr.CurrentSize)},
			{"original size", bytefmt.ByteSize(ftr.OriginalSize)},
			{"created", created.Format(time.RFC3339)},
			{"unique id", uid.String()},
			{"block size", bytefmt.ByteSize(uint64(hdr.BlockSize))},
			{"table offset", fmt.Sprintf("%#x", hdr.TableOffset)},
			{"table entries", fmt.Sprintf("%d", hdr.MaxTableEntries)},
			{"header version", fmt.Sprintf("%#x", hdr.HeaderVersion)},
		})

		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat FILE",
	Short: "Summarise block and sector allocation in a dynamic VHD",
	Long: `Stat walks the block allocation table of FILE and, for every
allocated block, its sector bitmap, reporting how much of the virtual
disk is actually stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		f, err := vio.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		hdr, err := vhd.DecodeHeader(f)
		if err != nil {
			return err
		}

		err = hdr.Validate()
		if err != nil {
			return err
		}

		bat, err := vhd.ReadBAT(f, hdr)
		if err != nil {
			return err
		}

		var blocks, sectors uint64
		for _, entry := range bat {
			if entry == vhd.UnallocatedBlock {
				continue
			}
			blocks++

			bitmap, err := vhd.ReadBlockBitmap(f, hdr, entry)
			if err != nil {
				return err
			}
			sectors += uint64(bitmap.Count())
		}

		plainTable([][]string{
			{"FIELD", "VALUE"},
			{"blocks total", fmt.Sprintf("%d", hdr.MaxTableEntries)},
			{"blocks allocated", fmt.Sprintf("%d", blocks)},
			{"sectors written", fmt.Sprintf("%d", sectors)},
			{"data stored", bytefmt.ByteSize(sectors << disk.SectorBits)},
		})

		return nil
	},
}

// solid reports no holes at all, producing fully-allocated images.
type solid struct {
	size int64
}

func (s solid) Size() int64 {
	return s.size
}

func (s solid) RegionIsHole(begin, size int64) bool {
	return false
}

var createCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Create an empty dynamic VHD",
	Long: `Create builds a zero-filled dynamic VHD image of the given --size at
FILE. The size is rounded up to a whole number of blocks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		size, err := bytefmt.ToBytes(flagSize)
		if err != nil {
			return err
		}
		blocks := (size + vhd.DefaultBlockSize - 1) / vhd.DefaultBlockSize
		if blocks == 0 {
			blocks = 1
		}
		aligned := int64(blocks * vhd.DefaultBlockSize)

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		w, err := vhd.NewDynamicWriter(f, solid{size: aligned})
		if err != nil {
			return err
		}

		_, err = io.CopyN(w, vio.Zeroes, aligned)
		if err != nil {
			return err
		}

		err = w.Close()
		if err != nil {
			return err
		}

		log.Infof("created %s dynamic VHD at %s", bytefmt.ByteSize(uint64(aligned)), args[0])
		return nil
	},
}

// rawImage predicts holes in a raw disk image by scanning for runs of
// zeroes at block granularity. The final block is always treated as
// data so that the image's full length is represented.
type rawImage struct {
	f    *os.File
	size int64
}

func (r *rawImage) Size() int64 {
	return r.size
}

func (r *rawImage) RegionIsHole(begin, size int64) bool {
	if begin+size >= r.size {
		return false
	}
	buf := make([]byte, size)
	_, err := r.f.ReadAt(buf, begin)
	if err != nil {
		return false
	}
	for _, x := range buf {
		if x != 0 {
			return false
		}
	}
	return true
}

var convertCmd = &cobra.Command{
	Use:   "convert RAW FILE",
	Short: "Convert a raw disk image into a dynamic VHD",
	Long: `Convert packs the raw disk image RAW into a sparse dynamic VHD at
FILE, leaving blocks that contain only zeroes unallocated. The raw
image's size must be a multiple of the 2 MiB block size.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		fi, err := in.Stat()
		if err != nil {
			return err
		}
		if fi.Size() == 0 || fi.Size()%vhd.DefaultBlockSize != 0 {
			return fmt.Errorf("raw image size %d is not a positive multiple of the block size", fi.Size())
		}

		out, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer out.Close()

		pred := &rawImage{f: in, size: fi.Size()}
		w, err := vhd.NewDynamicWriter(out, pred)
		if err != nil {
			return err
		}

		buf := make([]byte, vhd.DefaultBlockSize)
		for begin := int64(0); begin < fi.Size(); begin += vhd.DefaultBlockSize {
			if pred.RegionIsHole(begin, vhd.DefaultBlockSize) {
				_, err = w.Seek(vhd.DefaultBlockSize, io.SeekCurrent)
				if err != nil {
					return err
				}
				continue
			}

			_, err = in.ReadAt(buf, begin)
			if err != nil {
				return err
			}
			_, err = w.Write(buf)
			if err != nil {
				return err
			}
		}

		err = w.Close()
		if err != nil {
			return err
		}

		log.Infof("converted %s to dynamic VHD at %s", args[0], args[1])
		return nil
	},
}
