package btree

import (
	"bytes"
	"fmt"

	"github.com/gouchstore/gouchstore/internal/block"
	"github.com/gouchstore/gouchstore/internal/chunk"
	"github.com/gouchstore/gouchstore/internal/util"
)

// ActionType selects what Modify does with one Action's key.
type ActionType int

const (
	// ActionFetch reports the existing value (or its absence) through
	// OnFetchFunc without changing the tree.
	ActionFetch ActionType = iota
	// ActionRemove deletes the key if present; a miss is a silent no-op.
	ActionRemove
	// ActionInsert inserts or overwrites the key's value.
	ActionInsert
	// ActionFetchInsert reports the existing value (if any) through
	// OnFetchFunc, then inserts or overwrites it. This is how the by-id
	// tree notifies a caller of the old by-seq entry to remove when a
	// document is overwritten.
	ActionFetchInsert
)

// Action is one requested change to a tree, keyed by Key.
type Action struct {
	Key  []byte
	Data []byte
	Type ActionType
}

// OnFetchFunc is invoked once per Fetch or FetchInsert action, reporting
// whether the key was found and its value if so.
type OnFetchFunc func(key, value []byte, found bool) error

// Options bounds how large a node chunk is allowed to grow before it is
// flushed to disk. The thresholds are a per-engine construction
// parameter, not a package-wide constant, so different trees (or tests)
// can tune them independently.
type Options struct {
	KVChunkThreshold int
	KPChunkThreshold int
}

// DefaultChunkThreshold is the size, in packed bytes, at which both leaf
// and interior nodes are flushed by default.
const DefaultChunkThreshold = 1279

// DefaultOptions returns the thresholds the file format has historically
// used for both the KV and KP trees.
func DefaultOptions() Options {
	return Options{KVChunkThreshold: DefaultChunkThreshold, KPChunkThreshold: DefaultChunkThreshold}
}

// Modify applies actions (which must be sorted ascending by Key, with no
// duplicate keys) to the tree rooted at root, writing new chunks
// copy-on-write and returning the new root. A nil root is an empty tree.
// Modify never mutates or overwrites any existing chunk; only entirely
// new chunks are written, and the old root remains valid until the
// caller discards it.
func Modify(bf *block.File, root *Pointer, actions []Action, opts Options, onFetch OnFetchFunc) (*Pointer, error) {
	if len(actions) == 0 {
		return root, nil
	}

	entries, changed, err := modifySubtree(bf, root, actions, opts, onFetch)
	if err != nil {
		return nil, err
	}
	if !changed {
		return root, nil
	}

	for len(entries) > 1 {
		next, werr := flushAll(bf, KPNode, entries, opts.KPChunkThreshold)
		if werr != nil {
			return nil, werr
		}
		if len(next) == len(entries) {
			// Thresholding alone can't shrink further (every chunk held
			// exactly one entry); force a single wrapping node so the
			// loop terminates with one root pointer.
			single, serr := writeNode(bf, KPNode, entries)
			if serr != nil {
				return nil, serr
			}
			next = []Entry{single}
		}
		entries = next
	}

	if len(entries) == 0 {
		return nil, nil
	}
	return DecodePointerValue(entries[0].Value)
}

// modifySubtree merges actions into the subtree rooted at pointer (nil
// meaning an empty leaf) and returns the fully-flushed list of sibling
// pointer entries that should replace pointer in the parent, plus
// whether anything actually changed. A write that produces no changed
// bytes is a no-op: when changed is false the caller must keep
// whatever already represented this subtree rather than use entries,
// which is unset in that case. An empty, changed result means the
// subtree became empty.
func modifySubtree(bf *block.File, pointer *Pointer, actions []Action, opts Options, onFetch OnFetchFunc) ([]Entry, bool, error) {
	var nodeType NodeType
	var nodeEntries []Entry

	if pointer != nil {
		raw, err := chunk.ReadCompressedChunk(bf, pointer.Offset)
		if err != nil {
			return nil, false, util.WrapError("reading btree node", err)
		}
		nodeType, nodeEntries, err = DecodeNode(raw)
		if err != nil {
			return nil, false, err
		}
	} else {
		nodeType = KVNode
	}

	var merged []Entry
	var changed bool
	var threshold int

	switch nodeType {
	case KVNode:
		m, c, err := mergeLeaf(nodeEntries, actions, onFetch)
		if err != nil {
			return nil, false, err
		}
		merged, changed = m, c
		threshold = opts.KVChunkThreshold
	case KPNode:
		m, c, err := mergeInterior(bf, nodeEntries, actions, opts, onFetch)
		if err != nil {
			return nil, false, err
		}
		merged, changed = m, c
		threshold = opts.KPChunkThreshold
	default:
		return nil, false, ErrBadNodeType
	}

	if !changed {
		return nil, false, nil
	}
	if len(merged) == 0 {
		return nil, true, nil
	}

	flushed, err := flushAll(bf, nodeType, merged, threshold)
	if err != nil {
		return nil, false, err
	}
	return flushed, true, nil
}

// mergeLeaf merges a leaf's existing entries with actions, producing the
// new ascending entry list and whether anything changed. Removed keys
// are dropped; inserted keys replace or are added, unless the inserted
// value is byte-identical to what is already there; fetches report
// through onFetch without changing the list.
func mergeLeaf(nodeEntries []Entry, actions []Action, onFetch OnFetchFunc) ([]Entry, bool, error) {
	var out []Entry
	changed := false
	i, j := 0, 0

	appendMiss := func(a Action) error {
		if (a.Type == ActionFetch || a.Type == ActionFetchInsert) && onFetch != nil {
			if err := onFetch(a.Key, nil, false); err != nil {
				return err
			}
		}
		if a.Type == ActionInsert || a.Type == ActionFetchInsert {
			out = append(out, Entry{Key: a.Key, Value: a.Data})
			changed = true
		}
		return nil
	}

	for i < len(nodeEntries) && j < len(actions) {
		cmp := bytes.Compare(actions[j].Key, nodeEntries[i].Key)
		switch {
		case cmp < 0:
			if err := appendMiss(actions[j]); err != nil {
				return nil, false, err
			}
			j++
		case cmp == 0:
			existing := nodeEntries[i]
			a := actions[j]
			switch a.Type {
			case ActionFetch:
				if onFetch != nil {
					if err := onFetch(a.Key, existing.Value, true); err != nil {
						return nil, false, err
					}
				}
				out = append(out, existing)
			case ActionRemove:
				changed = true // dropped
			case ActionInsert:
				if bytes.Equal(a.Data, existing.Value) {
					out = append(out, existing)
				} else {
					out = append(out, Entry{Key: a.Key, Value: a.Data})
					changed = true
				}
			case ActionFetchInsert:
				if onFetch != nil {
					if err := onFetch(a.Key, existing.Value, true); err != nil {
						return nil, false, err
					}
				}
				if bytes.Equal(a.Data, existing.Value) {
					out = append(out, existing)
				} else {
					out = append(out, Entry{Key: a.Key, Value: a.Data})
					changed = true
				}
			default:
				return nil, false, fmt.Errorf("btree: unknown action type %d", a.Type)
			}
			i++
			j++
		default:
			out = append(out, nodeEntries[i])
			i++
		}
	}

	out = append(out, nodeEntries[i:]...)
	for ; j < len(actions); j++ {
		if err := appendMiss(actions[j]); err != nil {
			return nil, false, err
		}
	}

	return out, changed, nil
}

// mergeInterior partitions actions across an interior node's children by
// separator key, recursing only into children an action set actually
// touches and leaving every other entry untouched. The rightmost entry
// absorbs any actions greater than every separator key, since it has no
// upper bound.
func mergeInterior(bf *block.File, nodeEntries []Entry, actions []Action, opts Options, onFetch OnFetchFunc) ([]Entry, bool, error) {
	var out []Entry
	changedAny := false
	j := 0
	n := len(nodeEntries)

	for i := 0; i < n; i++ {
		var subEnd int
		if i == n-1 {
			subEnd = len(actions)
		} else {
			subEnd = j
			for subEnd < len(actions) && bytes.Compare(actions[subEnd].Key, nodeEntries[i].Key) <= 0 {
				subEnd++
			}
		}

		sub := actions[j:subEnd]
		j = subEnd

		if len(sub) == 0 {
			out = append(out, nodeEntries[i])
			continue
		}

		childPtr, err := DecodePointerValue(nodeEntries[i].Value)
		if err != nil {
			return nil, false, err
		}

		childResult, childChanged, err := modifySubtree(bf, childPtr, sub, opts, onFetch)
		if err != nil {
			return nil, false, err
		}
		if !childChanged {
			// Fetch-only (or no-op) actions against this child: keep
			// the separator entry exactly as it already was.
			out = append(out, nodeEntries[i])
			continue
		}
		changedAny = true
		out = append(out, childResult...)
	}

	if n == 0 && len(actions) > 0 {
		childResult, childChanged, err := modifySubtree(bf, nil, actions, opts, onFetch)
		if err != nil {
			return nil, false, err
		}
		if childChanged {
			changedAny = true
			out = append(out, childResult...)
		}
	}

	return out, changedAny, nil
}

// flushAll partitions entries into threshold-sized chunks and writes
// each as a new node, returning the resulting pointer entries in order.
func flushAll(bf *block.File, nodeType NodeType, entries []Entry, threshold int) ([]Entry, error) {
	chunks := partitionIntoChunks(entries, threshold)

	out := make([]Entry, 0, len(chunks))
	for _, c := range chunks {
		ptrEntry, err := writeNode(bf, nodeType, c)
		if err != nil {
			return nil, err
		}
		out = append(out, ptrEntry)
	}
	return out, nil
}

// partitionIntoChunks greedily groups entries into chunks sized around
// threshold. Once a chunk's running size exceeds threshold and it holds
// at least three entries, the oldest prefix whose size has reached
// two-thirds of threshold is split off as a finished chunk; the
// remainder seeds the next one. This keeps average fill well above 50%
// and bounds worst-case chunk size at roughly threshold plus the
// largest single entry.
func partitionIntoChunks(entries []Entry, threshold int) [][]Entry {
	var chunks [][]Entry
	var current []Entry
	currentSize := 0

	for _, e := range entries {
		current = append(current, e)
		currentSize += entrySize(e)

		if currentSize > threshold && len(current) >= 3 {
			quota := threshold * 2 / 3
			splitIdx, prefixSize := 0, 0
			for splitIdx < len(current) {
				prefixSize += entrySize(current[splitIdx])
				splitIdx++
				if prefixSize >= quota {
					break
				}
			}

			chunks = append(chunks, current[:splitIdx])
			remainder := make([]Entry, len(current)-splitIdx)
			copy(remainder, current[splitIdx:])
			current = remainder
			currentSize = 0
			for _, r := range current {
				currentSize += entrySize(r)
			}
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// writeNode compresses and writes entries as a single node chunk,
// returning the pointer entry (separator key = the chunk's max key,
// value = the encoded Pointer) that represents it to its parent.
func writeNode(bf *block.File, nodeType NodeType, entries []Entry) (Entry, error) {
	payload := EncodeNode(nodeType, entries)

	offset, diskSize, err := chunk.WriteCompressedDataChunk(bf, payload)
	if err != nil {
		return Entry{}, util.WrapError("writing btree node", err)
	}

	subtreeSize := uint64(diskSize)
	if nodeType == KPNode {
		for _, e := range entries {
			childPtr, derr := DecodePointerValue(e.Value)
			if derr != nil {
				return Entry{}, derr
			}
			subtreeSize, err = util.SafeAdd(subtreeSize, childPtr.SubtreeSize)
			if err != nil {
				return Entry{}, util.WrapError("accumulating subtree size", err)
			}
		}
	}

	ptr := &Pointer{Offset: offset, SubtreeSize: subtreeSize}
	maxKey := entries[len(entries)-1].Key

	return Entry{Key: maxKey, Value: EncodePointer(ptr)}, nil
}
