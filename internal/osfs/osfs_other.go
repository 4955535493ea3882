//go:build !linux

package osfs

import (
	"fmt"
	"os"

	"github.com/sparsetools/sparsectl/internal/sperr"
)

// OpenExclusive is unsupported outside Linux: hole punching here is
// built on FALLOC_FL_PUNCH_HOLE, which has no portable equivalent.
func OpenExclusive(path string, flag int, perm os.FileMode) (*File, Geometry, error) {
	return nil, Geometry{}, fmt.Errorf("osfs: unsupported on this platform: %w", sperr.ErrUnsupportedFilesystem)
}

func (f *File) SetSparse() error                     { return sperr.ErrUnsupportedFilesystem }
func (f *File) SetZeroRange(start, end uint64) error { return sperr.ErrUnsupportedFilesystem }
func (f *File) SetSize(size uint64) error            { return sperr.ErrUnsupportedFilesystem }
func (f *File) Flush() error                         { return sperr.ErrUnsupportedFilesystem }
func (f *File) RestoreTimestamps(geo Geometry) error { return sperr.ErrUnsupportedFilesystem }
