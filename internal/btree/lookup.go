package btree

import (
	"bytes"

	"github.com/gouchstore/gouchstore/internal/block"
	"github.com/gouchstore/gouchstore/internal/chunk"
	"github.com/gouchstore/gouchstore/internal/util"
)

// FetchFunc is invoked once per requested key during Lookup, reporting
// its value if found.
type FetchFunc func(key, value []byte, found bool) error

// Lookup resolves a batch of keys (which must be sorted ascending, with
// no duplicates) against the tree rooted at root in a single descent,
// calling fn once per key in the same order they were given. A nil root
// reports every key as not found.
func Lookup(bf *block.File, root *Pointer, keys [][]byte, fn FetchFunc) error {
	if len(keys) == 0 {
		return nil
	}
	return lookupSubtree(bf, root, keys, fn)
}

func lookupSubtree(bf *block.File, pointer *Pointer, keys [][]byte, fn FetchFunc) error {
	if pointer == nil {
		for _, k := range keys {
			if err := fn(k, nil, false); err != nil {
				return err
			}
		}
		return nil
	}

	raw, err := chunk.ReadCompressedChunk(bf, pointer.Offset)
	if err != nil {
		return util.WrapError("reading btree node", err)
	}
	nodeType, entries, err := DecodeNode(raw)
	if err != nil {
		return err
	}

	switch nodeType {
	case KVNode:
		return lookupLeaf(entries, keys, fn)
	case KPNode:
		return lookupInterior(bf, entries, keys, fn)
	default:
		return ErrBadNodeType
	}
}

func lookupLeaf(entries []Entry, keys [][]byte, fn FetchFunc) error {
	i, j := 0, 0
	for j < len(keys) {
		for i < len(entries) && bytes.Compare(entries[i].Key, keys[j]) < 0 {
			i++
		}
		if i < len(entries) && bytes.Equal(entries[i].Key, keys[j]) {
			if err := fn(keys[j], entries[i].Value, true); err != nil {
				return err
			}
		} else {
			if err := fn(keys[j], nil, false); err != nil {
				return err
			}
		}
		j++
	}
	return nil
}

func lookupInterior(bf *block.File, entries []Entry, keys [][]byte, fn FetchFunc) error {
	j := 0
	n := len(entries)

	for i := 0; i < n; i++ {
		var subEnd int
		if i == n-1 {
			subEnd = len(keys)
		} else {
			subEnd = j
			for subEnd < len(keys) && bytes.Compare(keys[subEnd], entries[i].Key) <= 0 {
				subEnd++
			}
		}

		sub := keys[j:subEnd]
		j = subEnd
		if len(sub) == 0 {
			continue
		}

		childPtr, err := DecodePointerValue(entries[i].Value)
		if err != nil {
			return err
		}
		if err := lookupSubtree(bf, childPtr, sub, fn); err != nil {
			return err
		}
	}

	return nil
}

// FoldFunc is invoked once per entry during Fold, in ascending key
// order. Returning more=false stops the scan early.
type FoldFunc func(key, value []byte) (more bool, err error)

// Fold walks every entry in the tree rooted at root whose key is
// greater than or equal to startKey, in ascending order, calling fn
// until it returns false or the tree is exhausted. A nil startKey scans
// from the beginning. Fold drives ChangesSince's sequential scan over
// the by-seq tree.
func Fold(bf *block.File, root *Pointer, startKey []byte, fn FoldFunc) error {
	if root == nil {
		return nil
	}
	_, err := foldSubtree(bf, root, startKey, fn)
	return err
}

func foldSubtree(bf *block.File, pointer *Pointer, startKey []byte, fn FoldFunc) (bool, error) {
	if pointer == nil {
		return true, nil
	}

	raw, err := chunk.ReadCompressedChunk(bf, pointer.Offset)
	if err != nil {
		return false, util.WrapError("reading btree node", err)
	}
	nodeType, entries, err := DecodeNode(raw)
	if err != nil {
		return false, err
	}

	switch nodeType {
	case KVNode:
		for _, e := range entries {
			if startKey != nil && bytes.Compare(e.Key, startKey) < 0 {
				continue
			}
			more, err := fn(e.Key, e.Value)
			if err != nil {
				return false, err
			}
			if !more {
				return false, nil
			}
		}
		return true, nil
	case KPNode:
		for _, e := range entries {
			if startKey != nil && bytes.Compare(e.Key, startKey) < 0 {
				continue
			}
			childPtr, err := DecodePointerValue(e.Value)
			if err != nil {
				return false, err
			}
			more, err := foldSubtree(bf, childPtr, startKey, fn)
			if err != nil {
				return false, err
			}
			if !more {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, ErrBadNodeType
	}
}
