package couchstore

import (
	"fmt"

	"github.com/gouchstore/gouchstore/internal/btree"
	"github.com/gouchstore/gouchstore/internal/chunk"
)

// DocInfoByID looks up a single document's metadata by id, decoding the
// by-id leaf value into a DocInfo. Returns (nil, nil) if id is absent.
func (db *Db) DocInfoByID(id []byte) (*DocInfo, error) {
	var result *DocInfo
	var decodeErr error

	err := btree.Lookup(db.file, db.header.ByIDRoot, [][]byte{id}, func(key, value []byte, found bool) error {
		if !found {
			return nil
		}
		info, err := decodeIDIndexValue(key, value)
		if err != nil {
			decodeErr = err
			return err
		}
		result = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return result, nil
}

// OpenDocWithDocInfo reads the document body referenced by info,
// decompressing it when both options.DecompressDocBodies and info's
// IS_COMPRESSED content-meta flag are set. A deleted document, or one
// with no body offset, returns (nil, nil) without touching the file.
func (db *Db) OpenDocWithDocInfo(info *DocInfo, options ReadOptions) (*Document, error) {
	if info.Deleted || info.BP == 0 {
		return nil, nil
	}

	var body []byte
	var err error
	if options.DecompressDocBodies && info.ContentMeta.IsCompressed() {
		body, err = chunk.ReadCompressedChunk(db.file, info.BP)
	} else {
		body, err = chunk.ReadChunk(db.file, info.BP)
	}
	if err != nil {
		return nil, err
	}

	return &Document{ID: info.ID, Body: body}, nil
}

// OnDocFunc is invoked once per by-seq entry during ChangesSince.
// Returning an error stops the scan and propagates the error.
type OnDocFunc func(info *DocInfo) error

// ChangesSince folds over the by-seq tree for every entry with
// db_seq >= startSeq, in ascending sequence order, invoking fn with the
// decoded DocInfo for each. This is how a warm-up scheduler streams the
// documents that changed since its last checkpoint.
func (db *Db) ChangesSince(startSeq uint64, fn OnDocFunc) error {
	startKey := encodeSeqKey(startSeq)

	return btree.Fold(db.file, db.header.BySeqRoot, startKey, func(key, value []byte) (bool, error) {
		seq := decodeSeqKey(key)
		info, err := decodeSeqIndexValue(seq, value)
		if err != nil {
			return false, err
		}
		if err := fn(info); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ForEachDocInfo folds over the entire by-id tree in ascending id order,
// invoking fn with each document's decoded DocInfo. Returning an error
// from fn stops the scan and propagates the error.
func (db *Db) ForEachDocInfo(fn OnDocFunc) error {
	return btree.Fold(db.file, db.header.ByIDRoot, nil, func(key, value []byte) (bool, error) {
		info, err := decodeIDIndexValue(key, value)
		if err != nil {
			return false, err
		}
		if err := fn(info); err != nil {
			return false, err
		}
		return true, nil
	})
}

// OpenLocalDocument looks up a small, non-indexed document stored in the
// local-docs tree (conventionally under a "_local/" id prefix),
// returning its raw bytes. Returns (nil, nil) if id is absent.
func (db *Db) OpenLocalDocument(id []byte) ([]byte, error) {
	var value []byte
	var found bool

	err := btree.Lookup(db.file, db.header.LocalDocsRoot, [][]byte{id}, func(key, v []byte, f bool) error {
		found = f
		if f {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return value, nil
}

// SaveLocalDocument writes raw bytes under id in the local-docs tree.
// Local documents are not assigned a db_seq and are never surfaced by
// ChangesSince.
func (db *Db) SaveLocalDocument(id, value []byte) error {
	if db.readOnly {
		return fmt.Errorf("%w: database is read-only", ErrInvalidArgument)
	}

	actions := []btree.Action{{Key: id, Data: value, Type: btree.ActionInsert}}
	newRoot, err := btree.Modify(db.file, db.header.LocalDocsRoot, actions, db.treeOpts, nil)
	if err != nil {
		return err
	}
	db.header.LocalDocsRoot = newRoot
	return nil
}
