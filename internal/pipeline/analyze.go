// Package pipeline wires the cluster bitmap, async IO engine, and
// range coalescer together into the two end-to-end operations the CLI
// layer drives: Analyze (MakeSparse) and Copy (CopySparse/PipeSparse).
package pipeline

import (
	"context"
	"fmt"

	"github.com/sparsetools/sparsectl/internal/bitmap"
	"github.com/sparsetools/sparsectl/internal/coalesce"
	"github.com/sparsetools/sparsectl/internal/ioengine"
	"github.com/sparsetools/sparsectl/internal/progress"
	"github.com/sparsetools/sparsectl/internal/zero"
)

// Target is the subset of *osfs.File an analyze run needs beyond what
// ioengine.Engine already requires of it.
type Target interface {
	ioengine.Target
	SetSize(size uint64) error
	Flush() error
}

// AnalyzeConfig bundles the tunables that would otherwise be a long
// positional argument list to Analyze.
type AnalyzeConfig struct {
	ClusterSize    uint32
	FileSize       uint64
	MinRunClusters uint64
	MaxPending     int
}

// Analyze scans file in cluster_size-sized reads, marks every
// all-zero cluster (including an all-zero trailing runt) in bmp, marks
// the file sparse, coalesces the marked clusters into the minimal set
// of qualifying ranges, and punches each one as a hole. prog, if
// non-nil, is updated as each step completes.
func Analyze(ctx context.Context, file Target, bmp *bitmap.Bitmap, cfg AnalyzeConfig, prog *progress.State) error {
	eng := ioengine.New(ctx, file, cfg.MaxPending)

	pool, err := ioengine.NewPool(int(cfg.ClusterSize), cfg.MaxPending+1)
	if err != nil {
		return fmt.Errorf("pipeline: analyze: %w", err)
	}
	defer pool.Close()

	numClusters := cfg.FileSize / uint64(cfg.ClusterSize)
	if cfg.FileSize%uint64(cfg.ClusterSize) != 0 {
		numClusters++
	}

	for i := uint64(0); i < numClusters; i++ {
		offset := i * uint64(cfg.ClusterSize)
		length := uint64(cfg.ClusterSize)
		if offset+length > cfg.FileSize {
			length = cfg.FileSize - offset
		}

		buf := pool.Get()[:length]
		off := int64(offset)
		eng.SubmitRead(buf, off, func(n int, err error) {
			defer pool.Put(buf[:cap(buf)])
			if err != nil {
				return
			}
			if prog != nil {
				prog.BytesRead.Add(int64(n))
			}
			if zero.IsZero(buf[:n]) {
				bmp.MarkZero(offset)
				if prog != nil {
					prog.BytesToZero.Add(int64(n))
				}
			}
		})
	}

	if err := eng.Fence(); err != nil {
		return fmt.Errorf("pipeline: analyze: scanning clusters: %w", err)
	}

	eng.SubmitSetSparse(func(error) {})
	if err := eng.Fence(); err != nil {
		return fmt.Errorf("pipeline: analyze: marking sparse: %w", err)
	}

	ranges := coalesce.Coalesce(bmp, uint64(cfg.ClusterSize), cfg.FileSize, cfg.MinRunClusters)
	for _, r := range ranges {
		r := r
		eng.SubmitSetZeroRange(r.Start, r.End, func(err error) {
			if err == nil && prog != nil {
				prog.BytesZeroed.Add(int64(r.End - r.Start))
			}
		})
	}
	if err := eng.Fence(); err != nil {
		return fmt.Errorf("pipeline: analyze: punching holes: %w", err)
	}

	if err := file.Flush(); err != nil {
		return fmt.Errorf("pipeline: analyze: %w", err)
	}
	return nil
}
