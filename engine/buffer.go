package engine

import (
	"sync"
)

// DefaultBufferSize is the default size of the copy buffer each worker uses.
const DefaultBufferSize = 1 * 1024 * 1024

// BufferPool hands out reusable copy buffers. Workers hold one buffer per job,
// so at most workerCount buffers are live at once.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a BufferPool of size-byte buffers.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of the buffers in the pool.
func (bp *BufferPool) Size() int { return bp.size }

// Get retrieves a buffer. Return it with Put once the job is done.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil && len(*b) == bp.size {
		bp.pool.Put(b)
	}
}
