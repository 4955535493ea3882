package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/sparsetools/sparsectl/internal/ioengine"
	"github.com/sparsetools/sparsectl/internal/progress"
	"github.com/sparsetools/sparsectl/internal/zero"
)

// CopyConfig bundles Copy's tunables.
type CopyConfig struct {
	ClusterSize uint32
	MaxPending  int
}

// Copy streams src cluster_size bytes at a time into dst: an all-zero
// cluster becomes a punched hole (SubmitSetZeroRange), anything else is
// written verbatim. src needs only be an io.Reader, so this serves both
// CopySparse (reading a file sequentially) and PipeSparse (reading
// stdin, total length unknown until EOF). Once src is exhausted, Copy
// calls dst.SetSize with the number of bytes processed — required for
// PipeSparse, where dst is otherwise left at whatever size its last
// write or hole punch implied — and returns that count.
func Copy(ctx context.Context, src io.Reader, dst Target, cfg CopyConfig, prog *progress.State) (uint64, error) {
	eng := ioengine.New(ctx, dst, cfg.MaxPending)

	eng.SubmitSetSparse(func(error) {})
	if err := eng.Fence(); err != nil {
		return 0, fmt.Errorf("pipeline: copy: marking destination sparse: %w", err)
	}

	pool, err := ioengine.NewPool(int(cfg.ClusterSize), cfg.MaxPending+1)
	if err != nil {
		return 0, fmt.Errorf("pipeline: copy: %w", err)
	}
	defer pool.Close()

	var processed uint64
	readBuf := make([]byte, cfg.ClusterSize)

	for {
		n, readErr := io.ReadFull(src, readBuf)
		if n > 0 {
			offset := processed
			buf := pool.Get()[:n]
			copy(buf, readBuf[:n])

			if zero.IsZero(buf) {
				eng.SubmitSetZeroRange(offset, offset+uint64(n), func(err error) {
					pool.Put(buf[:cap(buf)])
					if err == nil && prog != nil {
						prog.BytesZeroed.Add(int64(n))
					}
				})
			} else {
				eng.SubmitWrite(buf, int64(offset), func(written int, err error) {
					pool.Put(buf[:cap(buf)])
					if err == nil && prog != nil {
						prog.BytesWritten.Add(int64(written))
					}
				})
			}
			processed += uint64(n)
			if prog != nil {
				prog.BytesRead.Add(int64(n))
			}
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			if fenceErr := eng.Fence(); fenceErr != nil {
				return processed, fmt.Errorf("pipeline: copy: reading source: %w (and fence: %v)", readErr, fenceErr)
			}
			return processed, fmt.Errorf("pipeline: copy: reading source: %w", readErr)
		}
	}

	if err := eng.Fence(); err != nil {
		return processed, fmt.Errorf("pipeline: copy: writing destination: %w", err)
	}

	if err := dst.SetSize(processed); err != nil {
		return processed, fmt.Errorf("pipeline: copy: %w", err)
	}
	if err := dst.Flush(); err != nil {
		return processed, fmt.Errorf("pipeline: copy: %w", err)
	}

	return processed, nil
}
