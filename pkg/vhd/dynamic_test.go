package vhd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/vblock/pkg/vio"
)

type solidPredictor struct {
	size int64
}

func (s solidPredictor) Size() int64 {
	return s.size
}

func (s solidPredictor) RegionIsHole(begin, size int64) bool {
	return false
}

type sparsePredictor struct {
	size  int64
	holes map[int64]bool // block index -> is hole
}

func (s sparsePredictor) Size() int64 {
	return s.size
}

func (s sparsePredictor) RegionIsHole(begin, size int64) bool {
	return s.holes[begin/DefaultBlockSize]
}

// patternImage produces raw image content where every sector is filled
// with a byte derived from its sector number, so any sector can be
// recognised on sight.
func patternImage(blocks int) []byte {
	raw := make([]byte, blocks*DefaultBlockSize)
	for s := 0; s < len(raw)/SectorSize; s++ {
		fill := byte(s%251 + 1)
		for i := 0; i < SectorSize; i++ {
			raw[s*SectorSize+i] = fill
		}
	}
	return raw
}

func buildImage(t *testing.T, raw []byte, h HolePredictor) *vio.Buffer {
	t.Helper()

	buf := vio.NewBuffer(nil)
	w, err := NewDynamicWriter(buf, h)
	require.NoError(t, err)

	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf
}

func TestDynamicWriterMetadata(t *testing.T) {

	raw := patternImage(4)
	buf := buildImage(t, raw, solidPredictor{size: int64(len(raw))})

	ftr, err := DecodeFooter(buf)
	require.NoError(t, err)
	require.NoError(t, ftr.Validate())
	assert.Equal(t, uint64(len(raw)), ftr.CurrentSize)
	assert.NotEqual(t, [16]byte{}, ftr.UniqueID)

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.NoError(t, hdr.Validate())
	assert.Equal(t, uint32(4), hdr.MaxTableEntries)
	assert.Equal(t, uint64(FooterSize+HeaderSize), hdr.TableOffset)
}

func TestDynamicWriterChecksums(t *testing.T) {

	raw := patternImage(1)
	buf := buildImage(t, raw, solidPredictor{size: int64(len(raw))})

	// re-summing the encoded footer with its checksum field zeroed
	// must reproduce the stored checksum
	data := buf.Bytes()[:FooterSize]
	ftr, err := DecodeFooter(buf)
	require.NoError(t, err)

	scratch := make([]byte, FooterSize)
	copy(scratch, data)
	for i := 64; i < 68; i++ { // checksum field offset within footer
		scratch[i] = 0
	}
	assert.Equal(t, ftr.Checksum, checksum(scratch))
}

func TestRoundTrip(t *testing.T) {

	const blocks = 3
	raw := patternImage(blocks)
	buf := buildImage(t, raw, solidPredictor{size: int64(len(raw))})

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)

	bat, err := ReadBAT(buf, hdr)
	require.NoError(t, err)
	require.Len(t, bat, blocks)

	density := hdr.Density()
	file := buf.Bytes()

	for sector := uint64(0); sector < blocks*density; sector += 97 {

		pos, err := Translate(buf, hdr, sector)
		require.NoError(t, err)

		// the translated offset must agree with the direct
		// formula over the BAT
		block := sector / density
		within := sector % density
		assert.Equal(t, int64((uint64(bat[block])+1+within)<<SectorBits), pos)

		got := file[pos : pos+SectorSize]
		want := raw[sector<<SectorBits : sector<<SectorBits+SectorSize]
		require.Equal(t, want, got, "sector %d", sector)
	}
}

func TestRoundTripSparse(t *testing.T) {

	const blocks = 4
	raw := patternImage(blocks)

	// zero the holes so the predictor is honest
	holes := map[int64]bool{1: true, 2: true}
	for b := range holes {
		for i := int64(0); i < DefaultBlockSize; i++ {
			raw[b*DefaultBlockSize+i] = 0
		}
	}

	pred := sparsePredictor{size: int64(len(raw)), holes: holes}

	buf := vio.NewBuffer(nil)
	w, err := NewDynamicWriter(buf, pred)
	require.NoError(t, err)

	for b := int64(0); b < blocks; b++ {
		if holes[b] {
			_, err = w.Seek(DefaultBlockSize, io.SeekCurrent)
			require.NoError(t, err)
			continue
		}
		_, err = w.Write(raw[b*DefaultBlockSize : (b+1)*DefaultBlockSize])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)

	bat, err := ReadBAT(buf, hdr)
	require.NoError(t, err)
	require.Len(t, bat, blocks)

	assert.Equal(t, UnallocatedBlock, bat[1])
	assert.Equal(t, UnallocatedBlock, bat[2])
	assert.NotEqual(t, UnallocatedBlock, bat[0])
	assert.NotEqual(t, UnallocatedBlock, bat[3])

	// allocated blocks must round-trip
	density := hdr.Density()
	file := buf.Bytes()
	for _, b := range []uint64{0, 3} {
		sector := b * density
		pos, err := Translate(buf, hdr, sector)
		require.NoError(t, err)
		assert.Equal(t, raw[sector<<SectorBits:sector<<SectorBits+SectorSize], file[pos:pos+SectorSize])
	}
}

func TestBlockBitmap(t *testing.T) {

	raw := patternImage(2)
	buf := buildImage(t, raw, solidPredictor{size: int64(len(raw))})

	hdr, err := DecodeHeader(buf)
	require.NoError(t, err)

	bat, err := ReadBAT(buf, hdr)
	require.NoError(t, err)

	for _, entry := range bat {
		require.NotEqual(t, UnallocatedBlock, entry)

		bitmap, err := ReadBlockBitmap(buf, hdr, entry)
		require.NoError(t, err)

		// the writer marks every sector of an allocated block
		assert.Equal(t, uint(hdr.Density()), bitmap.Count())
	}
}

func TestDynamicWriterShortInput(t *testing.T) {

	raw := patternImage(2)
	buf := vio.NewBuffer(nil)
	w, err := NewDynamicWriter(buf, solidPredictor{size: int64(len(raw))})
	require.NoError(t, err)

	_, err = w.Write(raw[:DefaultBlockSize])
	require.NoError(t, err)

	assert.Error(t, w.Close())
}
