package couchstore

import (
	"errors"

	"github.com/gouchstore/gouchstore/internal/btree"
	"github.com/gouchstore/gouchstore/internal/chunk"
)

var (
	// ErrNoValidHeader means an exhaustive backward scan during Open
	// found no block whose chunk decoded as a valid header.
	ErrNoValidHeader = errors.New("couchstore: no valid header found")

	// ErrCorruptChunk means a chunk's CRC did not match its payload, or
	// its length framing was implausible.
	ErrCorruptChunk = chunk.ErrCorruptChunk

	// ErrBadNodeType means a B+ tree node chunk's leading byte was
	// neither KPNode nor KVNode.
	ErrBadNodeType = btree.ErrBadNodeType

	// ErrInvalidArgument covers caller misuse: a non-monotone
	// SequenceAsIs db_seq, or a mutating call against a read-only Db.
	ErrInvalidArgument = errors.New("couchstore: invalid argument")
)
