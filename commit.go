package couchstore

import (
	"github.com/gouchstore/gouchstore/internal/block"
	"github.com/gouchstore/gouchstore/internal/chunk"
)

// Commit makes every change since the last commit durably visible. It
// first extends the file so that the header about to be written already
// fits on disk, fsyncs, writes the header chunk, then fsyncs again. A
// crash between the two fsyncs leaves the previous header as the most
// recent durable snapshot: either the new header is fully durable, or it
// is invisible, never a torn mix of the two.
func (db *Db) Commit() error {
	if db.readOnly {
		return ErrInvalidArgument
	}

	payload := encodeHeader(&db.header)

	nextHeaderPos := block.AlignToBlockStart(db.file.Size())
	headerStartLogical := block.PhysicalToLogical(nextHeaderPos + 1)
	headerEndLogical := headerStartLogical + uint64(8+len(payload))
	lastContentPhysical := block.LogicalToPhysical(headerEndLogical - 1)

	if err := db.file.PreallocateZeroByte(lastContentPhysical); err != nil {
		return err
	}
	if err := db.file.Fdatasync(); err != nil {
		return err
	}

	physicalOffset, err := chunk.WriteHeaderChunk(db.file, payload)
	if err != nil {
		return err
	}
	if err := db.file.Fdatasync(); err != nil {
		return err
	}

	db.header.Position = physicalOffset
	return nil
}
