package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupFindsExistingKeys(t *testing.T) {
	bf := newTestFile(t)

	root, err := Modify(bf, nil, insertActions(
		[2]string{"a", "1"}, [2]string{"b", "2"}, [2]string{"c", "3"},
	), DefaultOptions(), nil)
	require.NoError(t, err)

	results := map[string]string{}
	err = Lookup(bf, root, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, func(key, value []byte, found bool) error {
		require.True(t, found)
		results[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, results)
}

func TestLookupReportsMisses(t *testing.T) {
	bf := newTestFile(t)

	root, err := Modify(bf, nil, insertActions([2]string{"b", "2"}), DefaultOptions(), nil)
	require.NoError(t, err)

	var found bool
	err = Lookup(bf, root, [][]byte{[]byte("a")}, func(key, value []byte, f bool) error {
		found = f
		return nil
	})
	require.NoError(t, err)
	require.False(t, found)
}

func TestLookupOnNilRootReportsAllMissing(t *testing.T) {
	bf := newTestFile(t)

	count := 0
	err := Lookup(bf, nil, [][]byte{[]byte("a"), []byte("b")}, func(key, value []byte, found bool) error {
		require.False(t, found)
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestLookupMultiLevelTree(t *testing.T) {
	bf := newTestFile(t)
	opts := Options{KVChunkThreshold: 80, KPChunkThreshold: 80}

	var root *Pointer
	expected := map[string]string{}
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("key-%04d", i)
		val := fmt.Sprintf("val-%04d", i)
		expected[key] = val
		var err error
		root, err = Modify(bf, root, insertActions([2]string{key, val}), opts, nil)
		require.NoError(t, err)
	}

	keys := [][]byte{[]byte("key-0000"), []byte("key-0075"), []byte("key-0149")}
	results := map[string]string{}
	err := Lookup(bf, root, keys, func(key, value []byte, found bool) error {
		require.True(t, found)
		results[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)

	for _, k := range keys {
		require.Equal(t, expected[string(k)], results[string(k)])
	}
}

func TestFoldScansInAscendingOrder(t *testing.T) {
	bf := newTestFile(t)

	root, err := Modify(bf, nil, insertActions(
		[2]string{"c", "3"}, [2]string{"a", "1"}, [2]string{"b", "2"},
	), DefaultOptions(), nil)
	require.NoError(t, err)

	var order []string
	err = Fold(bf, root, nil, func(key, value []byte) (bool, error) {
		order = append(order, string(key))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFoldRespectsStartKey(t *testing.T) {
	bf := newTestFile(t)

	root, err := Modify(bf, nil, insertActions(
		[2]string{"a", "1"}, [2]string{"b", "2"}, [2]string{"c", "3"}, [2]string{"d", "4"},
	), DefaultOptions(), nil)
	require.NoError(t, err)

	var order []string
	err = Fold(bf, root, []byte("c"), func(key, value []byte) (bool, error) {
		order = append(order, string(key))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, order)
}

func TestFoldStopsEarly(t *testing.T) {
	bf := newTestFile(t)

	root, err := Modify(bf, nil, insertActions(
		[2]string{"a", "1"}, [2]string{"b", "2"}, [2]string{"c", "3"},
	), DefaultOptions(), nil)
	require.NoError(t, err)

	var order []string
	err = Fold(bf, root, nil, func(key, value []byte) (bool, error) {
		order = append(order, string(key))
		return string(key) != "a", nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, order)
}

func TestFoldOnNilRootIsNoOp(t *testing.T) {
	bf := newTestFile(t)
	called := false
	err := Fold(bf, nil, nil, func(key, value []byte) (bool, error) {
		called = true
		return true, nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestFoldMultiLevelTree(t *testing.T) {
	bf := newTestFile(t)
	opts := Options{KVChunkThreshold: 80, KPChunkThreshold: 80}

	var root *Pointer
	var keysInOrder []string
	for i := 0; i < 120; i++ {
		key := fmt.Sprintf("key-%04d", i)
		keysInOrder = append(keysInOrder, key)
		var err error
		root, err = Modify(bf, root, insertActions([2]string{key, "v"}), opts, nil)
		require.NoError(t, err)
	}

	var got []string
	err := Fold(bf, root, nil, func(key, value []byte) (bool, error) {
		got = append(got, string(key))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, keysInOrder, got)
}
