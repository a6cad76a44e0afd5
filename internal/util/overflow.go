package util

import (
	"fmt"
	"math"
)

// SafeAdd adds two uint64 values, returning an error instead of wrapping
// around. Used when accumulating a node pointer's subtree_size from its
// children's disk sizes, a value that is otherwise unbounded by anything
// in the file format.
func SafeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("overflow adding %d + %d", a, b)
	}
	return a + b, nil
}

// ValidateBufferSize checks that size does not exceed maxSize, returning a
// descriptive error otherwise. Used to enforce MAX_DB_HEADER_SIZE when
// reading header chunks.
func ValidateBufferSize(size, maxSize uint64, description string) error {
	if size > maxSize {
		return fmt.Errorf("%s: size %d exceeds maximum %d", description, size, maxSize)
	}
	return nil
}
