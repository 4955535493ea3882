// Package ioengine is the asynchronous IO dispatch layer (spec
// components C4 and C5): a pool of page-aligned buffers and an engine
// that bounds in-flight operations and fans results back in with
// first-error-wins semantics.
package ioengine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pool hands out fixed-size, page-aligned buffers backed by anonymous
// mmap regions, and recycles them through a buffered channel acting as
// a free list. Page alignment matters for O_DIRECT-capable callers and
// keeps buffers off the Go heap so large in-flight IO doesn't pressure
// the garbage collector.
type Pool struct {
	bufSize int
	free    chan []byte
	regions [][]byte
}

// NewPool allocates count buffers of bufSize bytes each via anonymous
// mmap. bufSize should be a multiple of the filesystem's cluster size.
func NewPool(bufSize, count int) (*Pool, error) {
	if bufSize <= 0 || count <= 0 {
		return nil, fmt.Errorf("ioengine: invalid pool dimensions bufSize=%d count=%d", bufSize, count)
	}

	p := &Pool{
		bufSize: bufSize,
		free:    make(chan []byte, count),
	}

	for i := 0; i < count; i++ {
		buf, err := unix.Mmap(-1, 0, bufSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("ioengine: mmap buffer %d/%d: %w", i+1, count, err)
		}
		p.regions = append(p.regions, buf)
		p.free <- buf
	}

	return p, nil
}

// BufSize returns the fixed size of every buffer this pool hands out.
func (p *Pool) BufSize() int { return p.bufSize }

// Get removes a buffer from the free list, blocking until one is
// available. The returned slice has length bufSize; callers that read
// less must reslice before use.
func (p *Pool) Get() []byte {
	return <-p.free
}

// Put returns buf to the free list. buf must have been obtained from
// Get; Put re-slices it back to its full length itself.
func (p *Pool) Put(buf []byte) {
	p.free <- buf[:p.bufSize]
}

// Close unmaps every buffer regardless of how many are currently
// checked out. The pool must not be used afterward.
func (p *Pool) Close() error {
	var firstErr error
	for _, r := range p.regions {
		if err := unix.Munmap(r); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ioengine: munmap: %w", err)
		}
	}
	p.regions = nil
	return firstErr
}
