package couchstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveDocumentReadBack(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, DefaultOpenOptions())
	require.NoError(t, err)
	defer db.Close()

	body := []byte(`{"v":1}`)
	err = db.SaveDocument(&Document{ID: []byte("k"), Body: body}, &DocInfo{ID: []byte("k")}, SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	reopened, err := Open(path, OpenOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.DocInfoByID([]byte("k"))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, uint64(1), info.DBSeq)
	require.Equal(t, uint32(len(body)+8), info.PhysicalSize)
	require.False(t, info.Deleted)

	doc, err := reopened.OpenDocWithDocInfo(info, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, body, doc.Body)
}

func TestSaveDocumentOverwriteCollapsesSeqTree(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, DefaultOpenOptions())
	require.NoError(t, err)
	defer db.Close()

	for v := 1; v <= 3; v++ {
		body := []byte(fmt.Sprintf(`{"v":%d}`, v))
		err = db.SaveDocument(&Document{ID: []byte("k"), Body: body}, &DocInfo{ID: []byte("k")}, SaveOptions{})
		require.NoError(t, err)
		require.NoError(t, db.Commit())
	}

	reopened, err := Open(path, OpenOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	var seen []*DocInfo
	err = reopened.ChangesSince(0, func(info *DocInfo) error {
		seen = append(seen, info)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Equal(t, uint64(3), seen[0].DBSeq)
	require.Equal(t, "k", string(seen[0].ID))
}

func TestSaveDocumentDelete(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, DefaultOpenOptions())
	require.NoError(t, err)
	defer db.Close()

	err = db.SaveDocument(&Document{ID: []byte("k"), Body: []byte("v")}, &DocInfo{ID: []byte("k")}, SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	err = db.SaveDocument(nil, &DocInfo{ID: []byte("k")}, SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	reopened, err := Open(path, OpenOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.DocInfoByID([]byte("k"))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.True(t, info.Deleted)
	require.Equal(t, uint64(0), info.BP)
}

func TestSaveDocumentLargeBatchMultiLevelGrowth(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, OpenOptions{Create: true, KVChunkThreshold: 200, KPChunkThreshold: 200})
	require.NoError(t, err)
	defer db.Close()

	const n = 500
	for i := 0; i < n; i++ {
		id := []byte(fmt.Sprintf("doc-%05d", i))
		body := make([]byte, 64)
		for j := range body {
			body[j] = byte(i % 256)
		}
		err = db.SaveDocument(&Document{ID: id, Body: body}, &DocInfo{ID: id}, SaveOptions{})
		require.NoError(t, err)
	}
	require.NoError(t, db.Commit())

	reopened, err := Open(path, OpenOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	count := 0
	err = reopened.ChangesSince(0, func(info *DocInfo) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, n, count)

	for i := 0; i < n; i++ {
		id := []byte(fmt.Sprintf("doc-%05d", i))
		info, err := reopened.DocInfoByID(id)
		require.NoError(t, err)
		require.NotNil(t, info, "expected doc %s to be found", id)
	}
}

func TestSaveDocumentSequenceAsIsRejectsNonMonotone(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, DefaultOpenOptions())
	require.NoError(t, err)
	defer db.Close()

	err = db.SaveDocument(&Document{ID: []byte("k"), Body: []byte("v")}, &DocInfo{ID: []byte("k"), DBSeq: 5}, SaveOptions{SequenceAsIs: true})
	require.NoError(t, err)

	err = db.SaveDocument(&Document{ID: []byte("k2"), Body: []byte("v")}, &DocInfo{ID: []byte("k2"), DBSeq: 5}, SaveOptions{SequenceAsIs: true})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSaveDocumentCompression(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, DefaultOpenOptions())
	require.NoError(t, err)
	defer db.Close()

	body := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	info := &DocInfo{ID: []byte("k"), ContentMeta: ContentIsCompressed}
	err = db.SaveDocument(&Document{ID: []byte("k"), Body: body}, info, SaveOptions{CompressDocBodies: true})
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	stored, err := db.DocInfoByID([]byte("k"))
	require.NoError(t, err)
	require.True(t, stored.ContentMeta.IsCompressed())

	doc, err := db.OpenDocWithDocInfo(stored, ReadOptions{DecompressDocBodies: true})
	require.NoError(t, err)
	require.Equal(t, body, doc.Body)
}

func TestSaveLocalDocumentRoundTrip(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, DefaultOpenOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SaveLocalDocument([]byte("_local/vbstate"), []byte(`{"state":"active"}`)))
	require.NoError(t, db.Commit())

	got, err := db.OpenLocalDocument([]byte("_local/vbstate"))
	require.NoError(t, err)
	require.Equal(t, `{"state":"active"}`, string(got))

	missing, err := db.OpenLocalDocument([]byte("_local/nope"))
	require.NoError(t, err)
	require.Nil(t, missing)
}
