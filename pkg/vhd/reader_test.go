package vhd

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/vblock/pkg/vio"
)

// encodeImageMeta lays out the first 1536 bytes of a synthetic dynamic
// VHD (footer copy + header) followed by the provided BAT entries.
func encodeImageMeta(t *testing.T, hdr *Header, bat []uint32) *vio.Buffer {
	t.Helper()

	buf := vio.NewBuffer(make([]byte, FooterSize))

	_, err := buf.Seek(HeaderOffset, io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, binary.Write(buf, binary.BigEndian, hdr))

	_, err = buf.Seek(int64(hdr.TableOffset), io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, binary.Write(buf, binary.BigEndian, bat))

	return buf
}

func TestDecodeHeader(t *testing.T) {

	in := &Header{
		Cookie:          headerCookie,
		DataOffset:      0xFFFFFFFFFFFFFFFF,
		TableOffset:     1536,
		HeaderVersion:   0x00010000,
		MaxTableEntries: 32,
		BlockSize:       DefaultBlockSize,
	}

	buf := encodeImageMeta(t, in, []uint32{})

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)

	assert.Equal(t, headerCookie, hdr.Cookie)
	assert.Equal(t, uint64(1536), hdr.TableOffset)
	assert.Equal(t, uint32(32), hdr.MaxTableEntries)
	assert.Equal(t, uint32(DefaultBlockSize), hdr.BlockSize)
	assert.Equal(t, uint64(DefaultBlockSize/SectorSize), hdr.Density())
}

func TestDecodeHeaderBogusCookieAccepted(t *testing.T) {

	// The decoder must not reject unrecognised cookies; only
	// Validate does.
	in := &Header{
		Cookie:    0xDEADBEEFDEADBEEF,
		BlockSize: DefaultBlockSize,
	}

	buf := encodeImageMeta(t, in, nil)

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEFDEADBEEF), hdr.Cookie)
	assert.Error(t, hdr.Validate())
}

func TestDecodeHeaderTruncated(t *testing.T) {

	buf := vio.NewBuffer(make([]byte, HeaderOffset+100))

	_, err := DecodeHeader(buf)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {

	hdr := &Header{
		Cookie:    headerCookie,
		BlockSize: DefaultBlockSize,
	}
	assert.NoError(t, hdr.Validate())

	hdr.BlockSize = 0
	assert.Error(t, hdr.Validate())

	hdr.BlockSize = 3 * SectorSize // multiple but not a power of two
	assert.Error(t, hdr.Validate())

	hdr.BlockSize = 0x200
	assert.NoError(t, hdr.Validate())
}

func TestTranslateArithmetic(t *testing.T) {

	const blockSize = 0x200000
	density := uint64(blockSize / SectorSize) // 4096

	bat := []uint32{10, 20000, UnallocatedBlock, 7}
	hdr := &Header{
		Cookie:          headerCookie,
		TableOffset:     1536,
		MaxTableEntries: uint32(len(bat)),
		BlockSize:       blockSize,
	}
	buf := encodeImageMeta(t, hdr, bat)

	for _, c := range []struct {
		sector uint64
	}{
		{0},
		{1},
		{density - 1},
		{density},
		{density + 17},
		{3*density + 5},
	} {
		block := c.sector / density
		within := c.sector % density
		want := int64((uint64(bat[block]) + 1 + within) << SectorBits)

		got, err := Translate(buf, hdr, c.sector)
		require.NoError(t, err)
		assert.Equal(t, want, got, "sector %d", c.sector)
	}
}

func TestTranslateUnallocatedSentinelArithmetic(t *testing.T) {

	// The translator does not special-case unallocated blocks; the
	// sentinel flows straight through the arithmetic.
	bat := []uint32{UnallocatedBlock}
	hdr := &Header{
		TableOffset:     1536,
		MaxTableEntries: 1,
		BlockSize:       DefaultBlockSize,
	}
	buf := encodeImageMeta(t, hdr, bat)

	got, err := Translate(buf, hdr, 5)
	require.NoError(t, err)
	assert.Equal(t, int64((uint64(UnallocatedBlock)+1+5)<<SectorBits), got)
}

func TestTranslateZeroBlockSize(t *testing.T) {

	hdr := &Header{TableOffset: 1536}
	buf := vio.NewBuffer(make([]byte, 4096))

	_, err := Translate(buf, hdr, 0)
	assert.Equal(t, ErrBadBlockSize, err)
}

func TestTranslateTableReadFailure(t *testing.T) {

	hdr := &Header{
		TableOffset: 1 << 30, // far beyond the file
		BlockSize:   DefaultBlockSize,
	}
	buf := vio.NewBuffer(make([]byte, 4096))

	_, err := Translate(buf, hdr, 0)
	assert.Error(t, err)
}

func TestDecodeFooter(t *testing.T) {

	ftr := &Footer{
		Cookie:            footerCookie,
		FileFormatVersion: fileFormatVersion,
		CurrentSize:       4 * DefaultBlockSize,
		DiskType:          diskTypeDynamic,
	}

	buf := vio.NewBuffer(nil)
	require.NoError(t, binary.Write(buf, binary.BigEndian, ftr))

	out, err := DecodeFooter(buf)
	require.NoError(t, err)
	assert.NoError(t, out.Validate())
	assert.Equal(t, uint64(4*DefaultBlockSize), out.CurrentSize)

	out.DiskType = diskTypeFixed
	assert.Error(t, out.Validate())
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, ^uint32(0), checksum(nil))
	assert.Equal(t, ^uint32(3), checksum([]byte{1, 1, 1}))
	assert.Equal(t, ^uint32(255+16), checksum(bytes.Repeat([]byte{0xFF, 0x10}, 1)[:2]))
}
