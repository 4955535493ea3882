//go:build linux

package osfs

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sparsetools/sparsectl/internal/sperr"
)

// OpenExclusive opens path with flag (os.O_RDONLY, os.O_RDWR|os.O_CREATE,
// ...), takes a non-blocking exclusive flock, and snapshots its geometry:
// size, cluster size, and the atime/mtime/ctime triple. The flock is
// advisory and released when the returned File is closed; it exists to
// stop a second sparsectl invocation from racing the same path, not to
// guard against unrelated writers.
func OpenExclusive(path string, flag int, perm os.FileMode) (*File, Geometry, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, Geometry{}, mapOpenErr(path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, Geometry{}, fmt.Errorf("osfs: %s is locked by another process: %w", path, sperr.ErrAlreadyInUse)
		}
		return nil, Geometry{}, fmt.Errorf("osfs: flock %s: %w", path, sperr.ErrIO)
	}

	geo, err := statGeometry(f)
	if err != nil {
		f.Close()
		return nil, Geometry{}, err
	}

	return &File{File: f, path: path}, geo, nil
}

func mapOpenErr(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("osfs: open %s: %w", path, sperr.ErrNotFound)
	case os.IsPermission(err):
		return fmt.Errorf("osfs: open %s: %w", path, sperr.ErrAccessDenied)
	case os.IsExist(err):
		return fmt.Errorf("osfs: open %s: %w", path, sperr.ErrAlreadyExists)
	default:
		return fmt.Errorf("osfs: open %s: %w: %w", path, sperr.ErrIO, err)
	}
}

func statGeometry(f *os.File) (Geometry, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return Geometry{}, fmt.Errorf("osfs: fstat %s: %w", f.Name(), sperr.ErrIO)
	}

	clusterSize := clusterSizeOf(f)

	return Geometry{
		Size:        uint64(st.Size),
		ClusterSize: clusterSize,
		Atime:       timespecToTime(st.Atim),
		Mtime:       timespecToTime(st.Mtim),
		Ctime:       timespecToTime(st.Ctim),
	}, nil
}

// clusterSizeOf discovers the filesystem's preferred block size via
// fstatfs. A zero or unreadable Bsize falls back to DefaultClusterSize;
// SPARSE files on filesystems that don't report a sane block size
// (overlayfs over some backends, certain network filesystems) still
// need a cluster size to align runs against.
func clusterSizeOf(f *os.File) uint32 {
	var stfs unix.Statfs_t
	if err := unix.Fstatfs(int(f.Fd()), &stfs); err != nil {
		return DefaultClusterSize
	}
	if stfs.Bsize <= 0 {
		return DefaultClusterSize
	}
	return uint32(stfs.Bsize)
}

func timespecToTime(ts unix.Timespec) time.Time {
	return time.Unix(ts.Sec, ts.Nsec)
}

// SetSparse marks the file sparse-aware. Linux filesystems that support
// holes (ext4, xfs, btrfs, ...) need no analogue to Windows'
// FSCTL_SET_SPARSE: any extent not written is already a hole. This is a
// no-op kept as a named step so the pipeline's fence-before-zero-range
// ordering (§4.6) reads the same on every platform.
func (f *File) SetSparse() error {
	return nil
}

// SetZeroRange punches a hole covering [start, end) without changing
// the file's apparent size, via FALLOC_FL_PUNCH_HOLE|FALLOC_FL_KEEP_SIZE.
func (f *File) SetZeroRange(start, end uint64) error {
	if end <= start {
		return nil
	}
	const mode = unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE
	if err := unix.Fallocate(int(f.Fd()), mode, int64(start), int64(end-start)); err != nil {
		if err == unix.EOPNOTSUPP {
			return fmt.Errorf("osfs: hole punching unsupported on this filesystem: %w", sperr.ErrUnsupportedFilesystem)
		}
		return sperr.WithOffset(fmt.Errorf("osfs: fallocate punch hole [%d,%d): %w", start, end, sperr.ErrIO), start)
	}
	return nil
}

// SetSize truncates or extends the file to exactly size bytes.
func (f *File) SetSize(size uint64) error {
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		return fmt.Errorf("osfs: truncate %s to %d: %w", f.path, size, sperr.ErrIO)
	}
	return nil
}

// Flush fsyncs file data and metadata to stable storage.
func (f *File) Flush() error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("osfs: fsync %s: %w", f.path, sperr.ErrIO)
	}
	return nil
}

// RestoreTimestamps sets the file's atime and mtime back to geo's
// values. Called after the copy/make pass completes so the destination
// carries the source's timestamps rather than the time of the copy.
// Ctime cannot be restored on Linux (no syscall sets it directly) and
// is intentionally left alone, matching §7's non-fatal-warning posture
// for this step.
func (f *File) RestoreTimestamps(geo Geometry) error {
	tv := []unix.Timeval{
		unix.NsecToTimeval(geo.Atime.UnixNano()),
		unix.NsecToTimeval(geo.Mtime.UnixNano()),
	}
	if err := unix.Futimes(int(f.Fd()), tv); err != nil {
		return fmt.Errorf("osfs: restore timestamps on %s: %w", f.path, sperr.ErrIO)
	}
	return nil
}
