package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.couch")
	f, err := Open(path, CreateNew)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteSpanReadSpanSmall(t *testing.T) {
	f := newTestFile(t)

	data := []byte("hello, couchstore")
	offset, err := f.WriteSpan(TagData, data)
	require.NoError(t, err)
	require.Equal(t, uint64(0), offset)

	got, err := f.ReadSpan(offset, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteSpanSpansMultipleBlocks(t *testing.T) {
	f := newTestFile(t)

	data := make([]byte, ContentPerBlock*3+100)
	for i := range data {
		data[i] = byte(i % 251)
	}

	offset, err := f.WriteSpan(TagData, data)
	require.NoError(t, err)

	got, err := f.ReadSpan(offset, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteSpanSequentialAppends(t *testing.T) {
	f := newTestFile(t)

	first := []byte("first-chunk-payload")
	second := []byte("second-chunk-payload-that-is-a-bit-longer")

	off1, err := f.WriteSpan(TagData, first)
	require.NoError(t, err)
	off2, err := f.WriteSpan(TagData, second)
	require.NoError(t, err)

	got1, err := f.ReadSpan(off1, len(first))
	require.NoError(t, err)
	require.Equal(t, first, got1)

	got2, err := f.ReadSpan(off2, len(second))
	require.NoError(t, err)
	require.Equal(t, second, got2)
}

func TestWriteHeaderSpanAlignsToBlockBoundary(t *testing.T) {
	f := newTestFile(t)

	_, err := f.WriteSpan(TagData, []byte("not block aligned"))
	require.NoError(t, err)

	headerOffset, err := f.WriteHeaderSpan([]byte("header payload"))
	require.NoError(t, err)

	physical := LogicalToPhysical(headerOffset)
	require.Equal(t, uint64(1), physical%Size, "header content must start the byte after a block boundary")

	blockIndex := BlockIndexForPhysical(physical)
	tag, err := f.BlockTag(blockIndex)
	require.NoError(t, err)
	require.Equal(t, TagHeader, tag)
}

func TestBlockTagReflectsWrites(t *testing.T) {
	f := newTestFile(t)

	_, err := f.WriteSpan(TagData, []byte("x"))
	require.NoError(t, err)

	tag, err := f.BlockTag(0)
	require.NoError(t, err)
	require.Equal(t, TagData, tag)
}

func TestTruncateRollsBackPhysicalSize(t *testing.T) {
	f := newTestFile(t)

	_, err := f.WriteSpan(TagData, make([]byte, ContentPerBlock*2))
	require.NoError(t, err)

	sizeBefore := f.Size()
	require.NoError(t, f.Truncate(Size))
	require.Equal(t, uint64(Size), f.Size())
	require.Less(t, f.Size(), sizeBefore)
}

func TestOpenExistingReopensAtCurrentSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.couch")

	f, err := Open(path, CreateNew)
	require.NoError(t, err)
	data := []byte("persisted across reopen")
	_, err = f.WriteSpan(TagData, data)
	require.NoError(t, err)
	sizeBefore := f.Size()
	require.NoError(t, f.Close())

	reopened, err := Open(path, OpenExisting)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, sizeBefore, reopened.Size())

	got, err := reopened.ReadSpan(0, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestOpenReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdonly.couch")

	f, err := Open(path, CreateNew)
	require.NoError(t, err)
	_, err = f.WriteSpan(TagData, []byte("seed"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ro, err := Open(path, OpenReadOnly)
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.ReadSpan(0, len("seed"))
	require.NoError(t, err)
	require.Equal(t, []byte("seed"), got)

	_, err = ro.WriteSpan(TagData, []byte("more"))
	require.Error(t, err)
}

func TestCreateExclusiveFailsIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excl.couch")
	require.NoError(t, os.WriteFile(path, []byte{}, 0644))

	_, err := Open(path, CreateExclusive)
	require.Error(t, err)
}

func TestFdatasyncSucceeds(t *testing.T) {
	f := newTestFile(t)
	_, err := f.WriteSpan(TagData, []byte("durable"))
	require.NoError(t, err)
	require.NoError(t, f.Fdatasync())
}

func TestWriteSpanRejectsEmpty(t *testing.T) {
	f := newTestFile(t)
	_, err := f.WriteSpan(TagData, nil)
	require.Error(t, err)
}

func TestLogicalSizeTracksWrites(t *testing.T) {
	f := newTestFile(t)
	require.Equal(t, uint64(0), f.LogicalSize())

	data := make([]byte, 500)
	_, err := f.WriteSpan(TagData, data)
	require.NoError(t, err)
	require.Equal(t, uint64(500), f.LogicalSize())
}
