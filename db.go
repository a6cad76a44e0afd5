// Package couchstore implements the database façade over the block,
// chunk and B+ tree layers beneath it: open / find-header, document
// save, point lookup, sequence scan, and commit. It composes two B+ tree
// roots (by-id, by-seq) plus a local-docs tree root into a file header,
// giving every successful Commit a single, atomically-visible snapshot.
package couchstore

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/gouchstore/gouchstore/internal/block"
	"github.com/gouchstore/gouchstore/internal/btree"
)

// Db is a single couchstore-format file: its file handle, its most
// recently committed (or just-created) header, and the chunk-size
// thresholds new tree nodes are flushed at.
//
// Per-file engine is single-threaded: a Db owns its file handle and
// in-memory header exclusively. Concurrent operations on the same Db
// are the caller's responsibility to serialize.
type Db struct {
	file     *block.File
	header   Header
	treeOpts btree.Options
	readOnly bool
}

// Open opens (or creates, per options) the couchstore file at path. If
// the file is empty, it initializes and commits an empty header
// (version 13, all sequences zero, no roots) at offset 0. Otherwise it
// calls findHeader starting two bytes before EOF, per the file format's
// backward header-recovery protocol.
func Open(path string, options OpenOptions) (*Db, error) {
	bf, err := openFile(path, options)
	if err != nil {
		return nil, err
	}

	db := &Db{
		file:     bf,
		readOnly: options.ReadOnly,
		treeOpts: options.treeOptions(),
	}

	if bf.Size() == 0 {
		if options.ReadOnly {
			bf.Close()
			return nil, fmt.Errorf("couchstore: %s: %w: cannot create a read-only database", path, ErrInvalidArgument)
		}
		db.header = Header{}
		if err := db.Commit(); err != nil {
			bf.Close()
			return nil, err
		}
		return db, nil
	}

	h, err := findHeader(bf, bf.Size()-2)
	if err != nil {
		bf.Close()
		return nil, err
	}
	db.header = *h
	return db, nil
}

func openFile(path string, options OpenOptions) (*block.File, error) {
	if options.ReadOnly {
		bf, err := block.Open(path, block.OpenReadOnly)
		if err != nil {
			return nil, fmt.Errorf("couchstore: opening %s: %w", path, err)
		}
		return bf, nil
	}

	bf, err := block.Open(path, block.OpenExisting)
	if err == nil {
		return bf, nil
	}
	if !options.Create || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("couchstore: opening %s: %w", path, err)
	}

	bf, err = block.Open(path, block.CreateExclusive)
	if err != nil {
		return nil, fmt.Errorf("couchstore: creating %s: %w", path, err)
	}
	return bf, nil
}

// Close closes the underlying file handle. Any uncommitted writes since
// the last Commit are lost, which matches the format's explicit-commit
// durability contract.
func (db *Db) Close() error {
	return db.file.Close()
}

// Header returns a snapshot copy of the database's current in-memory
// header, reflecting either the last successful Open or the last
// successful Commit, whichever is more recent.
func (db *Db) Header() Header {
	return db.header
}
