package couchstore

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/gouchstore/gouchstore/internal/btree"
	"github.com/gouchstore/gouchstore/internal/chunk"
)

// SaveDocument writes doc (nil for a tombstone) and its metadata info,
// updating both the by-id and by-seq trees in a single batch:
//
//  1. assign db_seq, either header.UpdateSeq+1 or the caller-supplied
//     info.DBSeq when options.SequenceAsIs is set;
//  2. write the body as a (optionally compressed) data chunk, or mark
//     the document deleted with bp == 0 when doc is nil;
//  3. issue a FetchInsert against the by-id tree, which reports the
//     overwritten entry's old db_seq (if any) through its fetch
//     callback;
//  4. remove that old db_seq from the by-seq tree (if it changed) and
//     insert the new one, in the same batch.
//
// The write is not durable until Commit. info.ID is read but info is
// otherwise never mutated; the assigned fields are returned via the
// DocInfo this call effectively produces, obtainable afterward through
// DocInfoByID.
func (db *Db) SaveDocument(doc *Document, info *DocInfo, options SaveOptions) error {
	if db.readOnly {
		return fmt.Errorf("%w: database is read-only", ErrInvalidArgument)
	}

	updated := *info

	if options.SequenceAsIs {
		if info.DBSeq <= db.header.UpdateSeq {
			return fmt.Errorf("%w: sequence-as-is db_seq %d is not greater than current update_seq %d", ErrInvalidArgument, info.DBSeq, db.header.UpdateSeq)
		}
	} else {
		updated.DBSeq = db.header.UpdateSeq + 1
	}

	if doc != nil {
		compress := options.CompressDocBodies && updated.ContentMeta.IsCompressed()

		var offset uint64
		var diskSize int
		var err error
		if compress {
			offset, diskSize, err = chunk.WriteCompressedDataChunk(db.file, doc.Body)
		} else {
			offset, diskSize, err = chunk.WriteDataChunk(db.file, doc.Body)
		}
		if err != nil {
			return err
		}

		updated.BP = offset
		updated.PhysicalSize = uint32(diskSize)
		updated.Deleted = false
	} else {
		updated.BP = 0
		updated.PhysicalSize = 0
		updated.Deleted = true
	}

	var oldSeq uint64
	var hadOld bool
	onFetch := func(key, value []byte, found bool) error {
		if !found {
			return nil
		}
		old, err := decodeIDIndexValue(key, value)
		if err != nil {
			return err
		}
		oldSeq, hadOld = old.DBSeq, true
		return nil
	}

	idValue := encodeIDIndexValue(&updated)
	idActions := []btree.Action{{Key: updated.ID, Data: idValue, Type: btree.ActionFetchInsert}}

	newIDRoot, err := btree.Modify(db.file, db.header.ByIDRoot, idActions, db.treeOpts, onFetch)
	if err != nil {
		return err
	}
	db.header.ByIDRoot = newIDRoot

	seqValue := encodeSeqIndexValue(&updated)
	seqActions := []btree.Action{{Key: encodeSeqKey(updated.DBSeq), Data: seqValue, Type: btree.ActionInsert}}
	if hadOld && oldSeq != updated.DBSeq {
		seqActions = append(seqActions, btree.Action{Key: encodeSeqKey(oldSeq), Type: btree.ActionRemove})
	}
	sort.Slice(seqActions, func(i, j int) bool { return bytes.Compare(seqActions[i].Key, seqActions[j].Key) < 0 })

	newSeqRoot, err := btree.Modify(db.file, db.header.BySeqRoot, seqActions, db.treeOpts, nil)
	if err != nil {
		return err
	}
	db.header.BySeqRoot = newSeqRoot

	if updated.DBSeq > db.header.UpdateSeq {
		db.header.UpdateSeq = updated.DBSeq
	}

	return nil
}
