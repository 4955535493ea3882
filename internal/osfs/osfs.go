// Package osfs is the filesystem probe and collaborator layer (spec
// components C1 and the §6.2 interfaces): opening a file exclusively,
// discovering its cluster size and timestamps, and issuing the
// set-sparse / set-zero-range / set-size / flush / timestamp-restore
// operations the async IO engine dispatches.
//
// The core engine (internal/ioengine, internal/pipeline) is written
// against its own small Target interfaces, which the File type below
// satisfies; apart from the buffer pool in internal/ioengine, this
// package is the only non-test code that imports golang.org/x/sys/unix.
package osfs

import (
	"os"
	"time"
)

// DefaultClusterSize is substituted when the filesystem cannot report
// its cluster size (statfs unavailable or returns 0).
const DefaultClusterSize = 4096

// Geometry is the immutable per-run file geometry: size, cluster size,
// and the timestamp triple at the moment the file was opened.
type Geometry struct {
	Size        uint64
	ClusterSize uint32
	Atime       time.Time
	Mtime       time.Time
	Ctime       time.Time
}

// NumWholeClusters returns floor(Size/ClusterSize).
func (g Geometry) NumWholeClusters() uint64 {
	return g.Size / uint64(g.ClusterSize)
}

// RuntLength returns the length of the trailing partial cluster, 0 if
// Size is an exact multiple of ClusterSize.
func (g Geometry) RuntLength() uint64 {
	return g.Size % uint64(g.ClusterSize)
}

// File is a handle to an exclusively opened file plus the collaborator
// operations the engine needs. It embeds *os.File so ReadAt/WriteAt are
// available directly to the IO engine.
type File struct {
	*os.File
	path string
}

// Path returns the path this handle was opened against.
func (f *File) Path() string { return f.path }
