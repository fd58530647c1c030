package vdev

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/vblock/pkg/disk"
	"github.com/vorteil/vblock/pkg/vio"
)

// fakeFile is backing storage that tracks how often it gets closed.
type fakeFile struct {
	name   string
	closed int
}

func (f *fakeFile) Name() string       { return f.name }
func (f *fakeFile) Size() int64        { return 0 }
func (f *fakeFile) ModTime() time.Time { return time.Time{} }
func (f *fakeFile) Read(p []byte) (int, error) {
	return 0, errors.New("not readable")
}
func (f *fakeFile) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("not seekable")
}
func (f *fakeFile) Close() error {
	f.closed++
	return nil
}

var _ vio.File = (*fakeFile)(nil)

func TestAddOrReplaceKeepsIdentity(t *testing.T) {

	r := NewRegistry(nil)

	first := &fakeFile{name: "first"}
	second := &fakeFile{name: "second"}

	require.NoError(t, r.AddOrReplace("d", first))
	id := r.Find("d").ID()

	require.NoError(t, r.AddOrReplace("d", second))

	assert.Equal(t, 1, r.Len())
	d := r.Find("d")
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID())
	assert.Same(t, second, d.File())
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)
}

func TestIdentitiesNeverReused(t *testing.T) {

	r := NewRegistry(nil)

	require.NoError(t, r.AddOrReplace("a", &fakeFile{}))
	require.NoError(t, r.AddOrReplace("b", &fakeFile{}))

	idB := r.Find("b").ID()

	require.NoError(t, r.Delete("b"))
	require.NoError(t, r.AddOrReplace("b", &fakeFile{}))

	assert.NotEqual(t, idB, r.Find("b").ID())
}

func TestAddBadArgumentClosesCandidate(t *testing.T) {

	r := NewRegistry(nil)

	f := &fakeFile{}
	err := r.AddOrReplace("", f)
	assert.True(t, errors.Is(err, disk.ErrBadArgument))
	assert.Equal(t, 1, f.closed)
	assert.Equal(t, 0, r.Len())
}

func TestDeleteMissing(t *testing.T) {

	r := NewRegistry(nil)
	require.NoError(t, r.AddOrReplace("a", &fakeFile{}))

	err := r.Delete("nope")
	assert.True(t, errors.Is(err, disk.ErrBadDevice))
	assert.Equal(t, 1, r.Len())
	assert.NotNil(t, r.Find("a"))
}

func TestDeleteReleasesFile(t *testing.T) {

	r := NewRegistry(nil)
	f := &fakeFile{}
	require.NoError(t, r.AddOrReplace("a", f))

	require.NoError(t, r.Delete("a"))
	assert.Equal(t, 1, f.closed)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Find("a"))
}

func TestEnumeration(t *testing.T) {

	r := NewRegistry(nil)
	require.NoError(t, r.AddOrReplace("a", &fakeFile{}))
	require.NoError(t, r.AddOrReplace("b", &fakeFile{}))
	require.NoError(t, r.AddOrReplace("c", &fakeFile{}))
	require.NoError(t, r.Delete("b"))

	visited := map[string]int{}
	stopped := r.ForEach(func(d *Device) bool {
		visited[d.Name()]++
		return false
	})

	assert.False(t, stopped)
	assert.Equal(t, map[string]int{"a": 1, "c": 1}, visited)
}

func TestEnumerationEarlyStop(t *testing.T) {

	r := NewRegistry(nil)
	require.NoError(t, r.AddOrReplace("a", &fakeFile{}))
	require.NoError(t, r.AddOrReplace("b", &fakeFile{}))

	count := 0
	stopped := r.ForEach(func(d *Device) bool {
		count++
		return true
	})

	assert.True(t, stopped)
	assert.Equal(t, 1, count)
}

func TestCloseReleasesEverythingOnce(t *testing.T) {

	r := NewRegistry(nil)
	files := []*fakeFile{{}, {}, {}}
	require.NoError(t, r.AddOrReplace("a", files[0]))
	require.NoError(t, r.AddOrReplace("b", files[1]))
	require.NoError(t, r.AddOrReplace("c", files[2]))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close()) // second teardown is a no-op

	for _, f := range files {
		assert.Equal(t, 1, f.closed)
	}
	assert.Equal(t, 0, r.Len())
}
