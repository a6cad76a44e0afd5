package couchstore

import "github.com/gouchstore/gouchstore/internal/btree"

// OpenOptions controls how Open creates or opens a couchstore file.
type OpenOptions struct {
	// Create creates a new empty file if path does not exist. Ignored
	// when ReadOnly is set.
	Create bool
	// ReadOnly opens the file without write access; Commit,
	// SaveDocument and SaveLocalDocument all fail against a read-only
	// Db.
	ReadOnly bool
	// KVChunkThreshold and KPChunkThreshold bound leaf and interior
	// node size respectively, in packed bytes, before a node is
	// flushed to a new chunk. Zero uses btree.DefaultChunkThreshold.
	// These are a per-engine construction parameter, not a package
	// constant: different files may tune them independently.
	KVChunkThreshold int
	KPChunkThreshold int
}

// DefaultOpenOptions returns the usual options to pass to Open: create if
// missing, read-write, default chunk thresholds.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{Create: true}
}

func (o OpenOptions) treeOptions() btree.Options {
	opts := btree.DefaultOptions()
	if o.KVChunkThreshold > 0 {
		opts.KVChunkThreshold = o.KVChunkThreshold
	}
	if o.KPChunkThreshold > 0 {
		opts.KPChunkThreshold = o.KPChunkThreshold
	}
	return opts
}

// SaveOptions controls a single SaveDocument call.
type SaveOptions struct {
	// SequenceAsIs uses the caller-supplied DocInfo.DBSeq verbatim
	// instead of assigning header.UpdateSeq + 1. The caller is
	// responsible for supplying a seq greater than the in-memory
	// header.UpdateSeq, which counts every seq saved so far, committed
	// or not; SaveDocument returns ErrInvalidArgument otherwise.
	SequenceAsIs bool
	// CompressDocBodies requests Snappy compression of the document
	// body. It only takes effect when the DocInfo's ContentMeta also
	// carries ContentIsCompressed; otherwise the body is stored
	// uncompressed regardless.
	CompressDocBodies bool
}

// ReadOptions controls a single OpenDocWithDocInfo call.
type ReadOptions struct {
	// DecompressDocBodies requests Snappy decompression of the stored
	// body. It only takes effect when the DocInfo's ContentMeta carries
	// ContentIsCompressed; otherwise the body is returned as stored,
	// matching the stock silent no-op policy rather than failing with
	// ErrInvalidArgument (see DESIGN.md, open question 1).
	DecompressDocBodies bool
}
