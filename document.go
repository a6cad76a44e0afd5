package couchstore

// ContentMeta carries the per-document flag byte stored in both the
// by-id and by-seq index values.
type ContentMeta uint8

const (
	// ContentNonJSON marks a document body as opaque bytes rather than
	// JSON.
	ContentNonJSON ContentMeta = 0x01
	// ContentIsCompressed marks a document body as Snappy-compressed on
	// disk. SaveDocument only compresses a body when both this flag is
	// set on the DocInfo and the caller's SaveOptions request
	// compression.
	ContentIsCompressed ContentMeta = 0x80
)

// IsCompressed reports whether m carries the compressed-body flag.
func (m ContentMeta) IsCompressed() bool { return m&ContentIsCompressed != 0 }

// IsNonJSON reports whether m carries the non-JSON flag.
func (m ContentMeta) IsNonJSON() bool { return m&ContentNonJSON != 0 }

// Document is a document body paired with its id, as passed to
// SaveDocument and returned from OpenDocWithDocInfo.
type Document struct {
	ID   []byte
	Body []byte
}

// DocInfo is the decoded form of a by-id or by-seq leaf value: the
// metadata couchstore keeps about a document independent of its body
// bytes.
type DocInfo struct {
	ID           []byte
	DBSeq        uint64
	PhysicalSize uint32
	BP           uint64 // body chunk offset; 0 when Deleted
	ContentMeta  ContentMeta
	RevSeq       uint64
	RevMeta      []byte
	Deleted      bool
}
