// Package chunk implements the length-framed, CRC32C-protected chunk
// format layered on top of internal/block: every document body, B-tree
// node and file header is written and read as a chunk. Data chunks may
// optionally be Snappy-compressed; header chunks never are.
package chunk

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/golang/snappy"

	"github.com/gouchstore/gouchstore/internal/block"
	"github.com/gouchstore/gouchstore/internal/util"
)

// ErrCorruptChunk is returned when a chunk's CRC does not match its
// payload, or its length framing is otherwise implausible.
var ErrCorruptChunk = errors.New("chunk: CRC mismatch or corrupt framing")

// lengthHighBit marks the 4-byte length field of a data chunk. The spec
// this format derives from always sets it; it carries no other meaning
// here and is stripped on read.
const lengthHighBit = 0x80000000

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func crc32c(payload []byte) uint32 {
	return crc32.Checksum(payload, crcTable)
}

// WriteDataChunk writes payload as a data chunk at the current append
// position: a 4-byte length (OR'd with lengthHighBit), a 4-byte CRC32C of
// payload, then payload itself. It returns the chunk's starting logical
// file offset and its on-disk size (framing + payload, excluding block
// tag bytes).
func WriteDataChunk(bf *block.File, payload []byte) (offset uint64, diskSize int, err error) {
	framed := frameDataChunk(payload)

	offset, err = bf.WriteSpan(block.TagData, framed)
	if err != nil {
		return 0, 0, util.WrapError("writing data chunk", err)
	}
	return offset, len(framed), nil
}

// WriteCompressedDataChunk Snappy-compresses payload (raw format, no
// framing) and writes the result as a data chunk.
func WriteCompressedDataChunk(bf *block.File, payload []byte) (offset uint64, diskSize int, err error) {
	compressed := snappy.Encode(nil, payload)
	return WriteDataChunk(bf, compressed)
}

func frameDataChunk(payload []byte) []byte {
	framed := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(framed[0:4], uint32(len(payload))|lengthHighBit)
	binary.BigEndian.PutUint32(framed[4:8], crc32c(payload))
	copy(framed[8:], payload)
	return framed
}

// ReadChunk reads the data chunk starting at the given logical file
// offset, validates its CRC, and returns the payload.
func ReadChunk(bf *block.File, offset uint64) ([]byte, error) {
	header, err := bf.ReadSpan(offset, 8)
	if err != nil {
		return nil, util.WrapError("reading chunk framing", err)
	}

	lengthField := binary.BigEndian.Uint32(header[0:4])
	crc := binary.BigEndian.Uint32(header[4:8])
	length := lengthField &^ lengthHighBit

	payload, err := bf.ReadSpan(offset+8, int(length))
	if err != nil {
		return nil, util.WrapError("reading chunk payload", err)
	}

	if crc32c(payload) != crc {
		return nil, ErrCorruptChunk
	}
	return payload, nil
}

// ReadCompressedChunk reads a data chunk and Snappy-decompresses it.
func ReadCompressedChunk(bf *block.File, offset uint64) ([]byte, error) {
	compressed, err := ReadChunk(bf, offset)
	if err != nil {
		return nil, err
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, util.WrapError("decompressing chunk", err)
	}
	return payload, nil
}

// WriteHeaderChunk advances the file's append position to the next block
// boundary and writes payload as a header chunk: a 4-byte length
// (including the trailing 4 CRC bytes), a 4-byte CRC32C of payload, then
// payload. It returns the physical offset of the block boundary the
// header starts at, the value find_header scans for and BlockTag
// inspects.
func WriteHeaderChunk(bf *block.File, payload []byte) (physicalOffset uint64, err error) {
	framed := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(framed[0:4], uint32(len(payload)+4))
	binary.BigEndian.PutUint32(framed[4:8], crc32c(payload))
	copy(framed[8:], payload)

	logicalOffset, err := bf.WriteHeaderSpan(framed)
	if err != nil {
		return 0, util.WrapError("writing header chunk", err)
	}

	return block.LogicalToPhysical(logicalOffset) - 1, nil
}

// ReadHeaderChunk reads the header chunk whose block tag byte sits at
// physicalOffset (a block boundary the caller has already inspected and
// confirmed carries block.TagHeader), enforcing that the framed length
// does not exceed maxSize.
func ReadHeaderChunk(bf *block.File, physicalOffset uint64, maxSize uint64) ([]byte, error) {
	contentStart := block.PhysicalToLogical(physicalOffset + 1)

	framing, err := bf.ReadSpan(contentStart, 8)
	if err != nil {
		return nil, util.WrapError("reading header framing", err)
	}

	length := binary.BigEndian.Uint32(framing[0:4])
	crc := binary.BigEndian.Uint32(framing[4:8])

	if err := util.ValidateBufferSize(uint64(length), maxSize, "header chunk"); err != nil {
		return nil, util.WrapError(err.Error(), ErrCorruptChunk)
	}
	if length < 4 {
		return nil, ErrCorruptChunk
	}

	payloadLen := length - 4
	payload, err := bf.ReadSpan(contentStart+8, int(payloadLen))
	if err != nil {
		return nil, util.WrapError("reading header payload", err)
	}

	if crc32c(payload) != crc {
		return nil, ErrCorruptChunk
	}
	return payload, nil
}
