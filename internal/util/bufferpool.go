// Package util provides small utilities shared by the storage engine
// packages: a scratch-buffer pool, big-endian width codecs for the
// 48-bit fields the on-disk format uses throughout, overflow-checked
// arithmetic for subtree-size bookkeeping, and a context-wrapping error
// type.
package util

import "sync"

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetBuffer returns a scratch byte slice of length size from the pool.
func GetBuffer(size int) []byte {
	buf := bufferPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// ReleaseBuffer returns buf to the pool.
func ReleaseBuffer(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	bufferPool.Put(buf[:0])
}
