package couchstore

import (
	"encoding/binary"
	"fmt"

	"github.com/gouchstore/gouchstore/internal/block"
	"github.com/gouchstore/gouchstore/internal/btree"
	"github.com/gouchstore/gouchstore/internal/chunk"
	"github.com/gouchstore/gouchstore/internal/util"
)

// headerVersion is the only on-disk header layout this package writes
// or reads. Versions 11 and 12 exist in the file format's history but
// are not supported here.
const headerVersion = 13

// headerPrefixSize is the fixed portion of a header payload before its
// three root descriptors: version, update_seq, purge_seq, purge_ptr,
// seqrootsize, idrootsize, localrootsize, timestamp.
const headerPrefixSize = 33

// maxDBHeaderSize bounds how large a single header chunk may be, guarding
// find_header against treating corrupt data as an implausibly large
// header.
const maxDBHeaderSize = 1024 * 1024

// Header is the durable root-pointer snapshot a Db reads at open and
// writes on every commit. It is the single source of truth for the
// three tree roots between commits.
type Header struct {
	UpdateSeq     uint64
	PurgeSeq      uint64
	PurgePtr      uint64
	Timestamp     uint64
	BySeqRoot     *btree.Pointer
	ByIDRoot      *btree.Pointer
	LocalDocsRoot *btree.Pointer

	// Position is the physical file offset this header was read from,
	// or last written at; zero for a freshly created, never-committed
	// header.
	Position uint64
}

func encodeRoot(p *btree.Pointer) []byte {
	if p == nil {
		return nil
	}
	return btree.EncodePointer(p)
}

// encodeHeader serializes h as a v13 header payload: the 33-byte fixed
// prefix followed by the by-seq, by-id and local-docs root descriptors
// in that decode order, each either empty (rootsize 0, absent) or a
// 12-byte-plus-reduce-value pointer record.
func encodeHeader(h *Header) []byte {
	seqRoot := encodeRoot(h.BySeqRoot)
	idRoot := encodeRoot(h.ByIDRoot)
	localRoot := encodeRoot(h.LocalDocsRoot)

	buf := make([]byte, headerPrefixSize+len(seqRoot)+len(idRoot)+len(localRoot))
	buf[0] = headerVersion
	util.PutUint48(buf[1:7], h.UpdateSeq)
	util.PutUint48(buf[7:13], h.PurgeSeq)
	util.PutUint48(buf[13:19], h.PurgePtr)
	binary.BigEndian.PutUint16(buf[19:21], uint16(len(seqRoot)))
	binary.BigEndian.PutUint16(buf[21:23], uint16(len(idRoot)))
	binary.BigEndian.PutUint16(buf[23:25], uint16(len(localRoot)))
	binary.BigEndian.PutUint64(buf[25:33], h.Timestamp)

	pos := headerPrefixSize
	pos += copy(buf[pos:], seqRoot)
	pos += copy(buf[pos:], idRoot)
	copy(buf[pos:], localRoot)

	return buf
}

// decodeHeader parses a v13 header payload produced by encodeHeader.
func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < headerPrefixSize {
		return nil, fmt.Errorf("couchstore: header payload too short: have %d, want at least %d", len(buf), headerPrefixSize)
	}

	version := buf[0]
	if version != headerVersion {
		return nil, fmt.Errorf("couchstore: unsupported header version %d", version)
	}

	updateSeq := util.Uint48(buf[1:7])
	purgeSeq := util.Uint48(buf[7:13])
	purgePtr := util.Uint48(buf[13:19])
	seqRootSize := binary.BigEndian.Uint16(buf[19:21])
	idRootSize := binary.BigEndian.Uint16(buf[21:23])
	localRootSize := binary.BigEndian.Uint16(buf[23:25])
	timestamp := binary.BigEndian.Uint64(buf[25:33])

	want := headerPrefixSize + int(seqRootSize) + int(idRootSize) + int(localRootSize)
	if len(buf) != want {
		return nil, fmt.Errorf("couchstore: header length %d does not match root sizes (want %d)", len(buf), want)
	}

	pos := headerPrefixSize
	bySeqRoot, err := btree.DecodePointer(buf[pos:pos+int(seqRootSize)], int(seqRootSize))
	if err != nil {
		return nil, err
	}
	pos += int(seqRootSize)

	byIDRoot, err := btree.DecodePointer(buf[pos:pos+int(idRootSize)], int(idRootSize))
	if err != nil {
		return nil, err
	}
	pos += int(idRootSize)

	localDocsRoot, err := btree.DecodePointer(buf[pos:pos+int(localRootSize)], int(localRootSize))
	if err != nil {
		return nil, err
	}

	return &Header{
		UpdateSeq:     updateSeq,
		PurgeSeq:      purgeSeq,
		PurgePtr:      purgePtr,
		Timestamp:     timestamp,
		BySeqRoot:     bySeqRoot,
		ByIDRoot:      byIDRoot,
		LocalDocsRoot: localDocsRoot,
	}, nil
}

// findHeader scans backward from the block containing startPhysical,
// stepping one block at a time, until it finds a block tagged as a
// header whose chunk decodes and validates. Corruption at any candidate
// is recovered from by continuing the scan backward; only an exhausted
// scan (reaching block 0 with nothing valid) is fatal. This is the
// engine's entire crash-recovery mechanism: a header that was only
// partially written is simply never found.
func findHeader(bf *block.File, startPhysical uint64) (*Header, error) {
	blockIndex := block.BlockIndexForPhysical(startPhysical)

	for {
		physical := block.BlockStart(blockIndex)
		if tag, err := bf.BlockTag(blockIndex); err == nil && tag == block.TagHeader {
			if h, herr := tryReadHeaderAt(bf, physical); herr == nil {
				return h, nil
			}
		}

		if blockIndex == 0 {
			return nil, ErrNoValidHeader
		}
		blockIndex--
	}
}

func tryReadHeaderAt(bf *block.File, physical uint64) (*Header, error) {
	payload, err := chunk.ReadHeaderChunk(bf, physical, maxDBHeaderSize)
	if err != nil {
		return nil, err
	}

	h, err := decodeHeader(payload)
	if err != nil {
		return nil, err
	}
	if h.PurgePtr > physical {
		return nil, fmt.Errorf("couchstore: header at %d has purge_ptr %d beyond its own position", physical, h.PurgePtr)
	}

	h.Position = physical
	return h, nil
}
