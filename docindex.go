package couchstore

import (
	"encoding/binary"
	"fmt"

	"github.com/gouchstore/gouchstore/internal/btree"
	"github.com/gouchstore/gouchstore/internal/util"
)

// deletedBit is the top bit of the by-id leaf value's bp field.
const deletedBit = uint64(1) << 47

// encodeSeqKey encodes a sequence number as the 6-byte big-endian key
// the by-seq tree is ordered on, matching every other 48-bit field in
// the file format.
func encodeSeqKey(seq uint64) []byte {
	buf := make([]byte, 6)
	util.PutUint48(buf, seq)
	return buf
}

func decodeSeqKey(buf []byte) uint64 {
	return util.Uint48(buf)
}

// encodeIDIndexValue serializes info as a by-id leaf value: db_seq,
// physical_size, bp (with its top bit set when deleted), content_meta,
// rev_seq, then rev_meta.
func encodeIDIndexValue(info *DocInfo) []byte {
	buf := make([]byte, 6+4+6+1+6+len(info.RevMeta))

	util.PutUint48(buf[0:6], info.DBSeq)
	binary.BigEndian.PutUint32(buf[6:10], info.PhysicalSize)

	bp := info.BP
	if info.Deleted {
		bp |= deletedBit
	}
	util.PutUint48(buf[10:16], bp)

	buf[16] = byte(info.ContentMeta)
	util.PutUint48(buf[17:23], info.RevSeq)
	copy(buf[23:], info.RevMeta)

	return buf
}

// decodeIDIndexValue is the inverse of encodeIDIndexValue. id is the key
// the value was stored under, since the leaf value itself does not
// repeat it.
func decodeIDIndexValue(id, value []byte) (*DocInfo, error) {
	if len(value) < 23 {
		return nil, fmt.Errorf("couchstore: by-id index value too short: %d bytes", len(value))
	}

	dbSeq := util.Uint48(value[0:6])
	physicalSize := binary.BigEndian.Uint32(value[6:10])
	rawBP := util.Uint48(value[10:16])
	deleted := rawBP&deletedBit != 0
	bp := rawBP &^ deletedBit
	contentMeta := ContentMeta(value[16])
	revSeq := util.Uint48(value[17:23])
	revMeta := append([]byte(nil), value[23:]...)

	return &DocInfo{
		ID:           append([]byte(nil), id...),
		DBSeq:        dbSeq,
		PhysicalSize: physicalSize,
		BP:           bp,
		ContentMeta:  contentMeta,
		RevSeq:       revSeq,
		RevMeta:      revMeta,
		Deleted:      deleted,
	}, nil
}

// encodeSeqIndexValue serializes info as a by-seq leaf value: a packed
// (id length, physical_size) header, bp, content_meta, rev_seq, the id
// itself, then rev_meta. A deleted document is stored with bp == 0.
func encodeSeqIndexValue(info *DocInfo) []byte {
	kv := btree.EncodeKVLength(uint32(len(info.ID)), info.PhysicalSize)

	buf := make([]byte, 5+6+1+6+len(info.ID)+len(info.RevMeta))
	copy(buf[0:5], kv[:])
	util.PutUint48(buf[5:11], info.BP)
	buf[11] = byte(info.ContentMeta)
	util.PutUint48(buf[12:18], info.RevSeq)

	pos := 18
	pos += copy(buf[pos:], info.ID)
	copy(buf[pos:], info.RevMeta)

	return buf
}

// decodeSeqIndexValue is the inverse of encodeSeqIndexValue. seq is the
// db_seq the value was stored under (the by-seq tree's key).
func decodeSeqIndexValue(seq uint64, value []byte) (*DocInfo, error) {
	if len(value) < 18 {
		return nil, fmt.Errorf("couchstore: by-seq index value too short: %d bytes", len(value))
	}

	idLen, physicalSize := btree.DecodeKVLength(value[0:5])
	bp := util.Uint48(value[5:11])
	contentMeta := ContentMeta(value[11])
	revSeq := util.Uint48(value[12:18])

	pos := 18
	if pos+int(idLen) > len(value) {
		return nil, fmt.Errorf("couchstore: by-seq index value id overruns buffer")
	}
	id := append([]byte(nil), value[pos:pos+int(idLen)]...)
	pos += int(idLen)
	revMeta := append([]byte(nil), value[pos:]...)

	return &DocInfo{
		ID:           id,
		DBSeq:        seq,
		PhysicalSize: physicalSize,
		BP:           bp,
		ContentMeta:  contentMeta,
		RevSeq:       revSeq,
		RevMeta:      revMeta,
		Deleted:      bp == 0,
	}, nil
}
