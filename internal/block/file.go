package block

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/gouchstore/gouchstore/internal/util"
)

// File wraps an *os.File with block-tag-aware reads and writes. Callers
// work entirely in logical offsets; File inserts and strips the tag byte
// at each block boundary.
//
// Not thread-safe: callers needing concurrent access must synchronize
// externally. The database layer adds no locking of its own; it leaves
// serialization to its callers.
type File struct {
	f   *os.File
	pos uint64 // physical end-of-file / next append position
}

// OpenMode selects how Open creates or opens the underlying file.
type OpenMode int

const (
	// OpenExisting opens an existing file for read-write access.
	OpenExisting OpenMode = iota
	// CreateNew creates a new file, truncating any existing contents.
	CreateNew
	// CreateExclusive creates a new file, failing if it already exists.
	CreateExclusive
	// OpenReadOnly opens an existing file for read-only access.
	OpenReadOnly
)

// Open opens or creates the file at path according to mode.
func Open(path string, mode OpenMode) (*File, error) {
	var f *os.File
	var err error

	switch mode {
	case OpenExisting:
		f, err = os.OpenFile(path, os.O_RDWR, 0)
	case CreateNew:
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	case CreateExclusive:
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	case OpenReadOnly:
		f, err = os.OpenFile(path, os.O_RDONLY, 0)
	default:
		return nil, fmt.Errorf("block: invalid open mode %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("block: opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("block: stat %s: %w", path, err)
	}

	return &File{f: f, pos: uint64(info.Size())}, nil
}

// Size returns the current physical size of the file.
func (bf *File) Size() uint64 {
	return bf.pos
}

// LogicalSize returns the number of logical (tag-free) bytes the file
// currently holds.
func (bf *File) LogicalSize() uint64 {
	return PhysicalToLogical(bf.pos)
}

// WriteSpan appends data to the logical stream as a sequence of blocks
// tagged with tag, inserting a fresh tag byte at every block boundary the
// write reaches. A block the write enters mid-way keeps the tag it already
// has. It returns the logical offset at which data begins.
func (bf *File) WriteSpan(tag Tag, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("block: cannot write empty span")
	}

	startLogical := PhysicalToLogical(bf.pos)
	remaining := data

	for len(remaining) > 0 {
		if bf.pos%Size == 0 {
			if _, err := bf.f.WriteAt([]byte{byte(tag)}, int64(bf.pos)); err != nil {
				return 0, fmt.Errorf("block: writing tag byte at %d: %w", bf.pos, err)
			}
			bf.pos++
		}

		spaceInBlock := Size - (bf.pos % Size)
		n := uint64(len(remaining))
		if n > spaceInBlock {
			n = spaceInBlock
		}

		if _, err := bf.f.WriteAt(remaining[:n], int64(bf.pos)); err != nil {
			return 0, fmt.Errorf("block: writing content at %d: %w", bf.pos, err)
		}
		bf.pos += n
		remaining = remaining[n:]
	}

	return startLogical, nil
}

// WriteHeaderSpan zero-pads the current block (if mid-block) up to the
// next block boundary, then writes data as a header-tagged span starting
// exactly at that boundary. Headers must be block-aligned so find_header
// can probe a single tag byte every BLOCK_SIZE bytes when scanning
// backward from EOF.
func (bf *File) WriteHeaderSpan(data []byte) (uint64, error) {
	if aligned := AlignToBlockStart(bf.pos); aligned != bf.pos {
		pad := make([]byte, aligned-bf.pos)
		if _, err := bf.f.WriteAt(pad, int64(bf.pos)); err != nil {
			return 0, fmt.Errorf("block: padding to block boundary at %d: %w", bf.pos, err)
		}
		bf.pos = aligned
	}
	return bf.WriteSpan(TagHeader, data)
}

// ReadSpan reads length logical bytes starting at logicalOffset, skipping
// the tag byte at every block boundary crossed.
func (bf *File) ReadSpan(logicalOffset uint64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	physical := LogicalToPhysical(logicalOffset)
	out := make([]byte, length)
	read := 0

	for read < length {
		if physical%Size == 0 {
			physical++
		}

		blockStart := BlockStart(BlockIndexForPhysical(physical))
		offsetInBlock := physical - blockStart
		avail := Size - offsetInBlock

		n := uint64(length - read)
		if n > avail {
			n = avail
		}

		buf := util.GetBuffer(int(n))
		if _, err := bf.f.ReadAt(buf, int64(physical)); err != nil {
			util.ReleaseBuffer(buf)
			return nil, fmt.Errorf("block: reading content at %d: %w", physical, err)
		}
		copy(out[read:], buf)
		util.ReleaseBuffer(buf)

		read += int(n)
		physical += n
	}

	return out, nil
}

// PreallocateZeroByte writes a single zero byte at the given physical
// offset without moving the file's logical append cursor. Writing past
// current EOF extends the underlying file, so a caller can force the
// file long enough to hold an upcoming write before fsync-ing, without
// that write itself needing a separate size-extending metadata update.
func (bf *File) PreallocateZeroByte(physical uint64) error {
	if _, err := bf.f.WriteAt([]byte{0}, int64(physical)); err != nil {
		return fmt.Errorf("block: preallocating at %d: %w", physical, err)
	}
	return nil
}

// BlockTag reads the tag byte of the block at blockIndex.
func (bf *File) BlockTag(blockIndex uint64) (Tag, error) {
	physical := BlockStart(blockIndex)
	if physical+1 > bf.pos {
		return 0, fmt.Errorf("block: index %d beyond end of file", blockIndex)
	}

	buf := make([]byte, 1)
	if _, err := bf.f.ReadAt(buf, int64(physical)); err != nil {
		return 0, fmt.Errorf("block: reading tag at block %d: %w", blockIndex, err)
	}
	return Tag(buf[0]), nil
}

// BlockCount returns the number of complete blocks currently in the file.
func (bf *File) BlockCount() uint64 {
	return bf.pos / Size
}

// Truncate sets the file's physical size and moves the append position to
// it. Header recovery does not call it: findHeader skips a torn header and
// leaves the file as it is.
func (bf *File) Truncate(physicalSize uint64) error {
	if err := bf.f.Truncate(int64(physicalSize)); err != nil {
		return fmt.Errorf("block: truncating to %d: %w", physicalSize, err)
	}
	bf.pos = physicalSize
	return nil
}

// Fdatasync flushes file data (and the minimum metadata needed to retrieve
// it) to stable storage, without necessarily flushing access-time/mtime
// metadata the way Sync does. Every commit durability point uses this
// rather than Sync.
func (bf *File) Fdatasync() error {
	if err := unix.Fdatasync(int(bf.f.Fd())); err != nil {
		return fmt.Errorf("block: fdatasync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (bf *File) Close() error {
	if bf.f == nil {
		return nil
	}
	err := bf.f.Close()
	bf.f = nil
	return err
}

// ReadAt implements io.ReaderAt over the file's raw physical bytes. It
// exists so lower-level codecs (CRC validation spanning raw bytes) can
// read without going through the logical layer when they already know a
// physical offset, such as rereading a tag byte just written.
func (bf *File) ReadAt(p []byte, off int64) (int, error) {
	return bf.f.ReadAt(p, off)
}
