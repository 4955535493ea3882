package ioengine

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sparsetools/sparsectl/internal/sperr"
)

// Target is the subset of *osfs.File the engine dispatches operations
// against. Defined here, rather than importing osfs, so tests can
// substitute an in-memory fake without pulling in real syscalls.
type Target interface {
	io.ReaderAt
	io.WriterAt
	SetSparse() error
	SetZeroRange(start, end uint64) error
}

// Engine bounds the number of in-flight IO operations against a single
// Target to MaxPending and fans results back with first-error-wins
// semantics, mirroring the original's IO completion port model: submit
// work, blocking the producer only while MaxPending operations are in
// flight, and surface the first failure whenever the caller fences.
//
// An Engine is not safe for concurrent Submit calls from goroutines
// that also call Fence concurrently with each other; a single
// controlling goroutine should own Submit/Fence sequencing, same as
// the analyze and copy pipelines do.
type Engine struct {
	target Target
	sem    *semaphore.Weighted
	ctx    context.Context
	g      *errgroup.Group
	gctx   context.Context
}

// New creates an Engine bounding concurrent operations against target
// to maxPending. ctx governs cancellation of all submitted work.
func New(ctx context.Context, target Target, maxPending int) *Engine {
	e := &Engine{
		target: target,
		sem:    semaphore.NewWeighted(int64(maxPending)),
		ctx:    ctx,
	}
	e.g, e.gctx = errgroup.WithContext(ctx)
	return e
}

// SubmitRead issues a read of len(buf) bytes at offset, blocking only
// until a pending-operation slot is free, then running asynchronously.
// done is called with the number of bytes read and any error once the
// read completes; it runs on the engine's worker goroutine, not the
// submitter's.
func (e *Engine) SubmitRead(buf []byte, offset int64, done func(n int, err error)) {
	e.submit(func() error {
		n, err := e.target.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			if n > 0 && n < len(buf) {
				// A short, non-EOF count: the underlying read stopped early
				// without the filesystem reporting end-of-file, matching
				// the "short transfer" condition rather than a hard IO
				// failure.
				err = sperr.WithOffset(fmt.Errorf("ioengine: read: %w", sperr.ErrShortTransfer), uint64(offset))
			} else {
				err = sperr.WithOffset(fmt.Errorf("ioengine: read: %w: %w", sperr.ErrIO, err), uint64(offset))
			}
		}
		done(n, err)
		if err != nil && err != io.EOF {
			return err
		}
		return nil
	})
}

// SubmitWrite issues a write of buf at offset.
func (e *Engine) SubmitWrite(buf []byte, offset int64, done func(n int, err error)) {
	e.submit(func() error {
		n, err := e.target.WriteAt(buf, offset)
		if err == nil && n != len(buf) {
			err = sperr.WithOffset(fmt.Errorf("ioengine: write: %w", sperr.ErrShortTransfer), uint64(offset))
		} else if err != nil {
			err = sperr.WithOffset(fmt.Errorf("ioengine: write: %w: %w", sperr.ErrIO, err), uint64(offset))
		}
		done(n, err)
		return err
	})
}

// SubmitSetSparse issues the sparse-mark step.
func (e *Engine) SubmitSetSparse(done func(err error)) {
	e.submit(func() error {
		err := e.target.SetSparse()
		done(err)
		return err
	})
}

// SubmitSetZeroRange issues a hole-punch over [start, end).
func (e *Engine) SubmitSetZeroRange(start, end uint64, done func(err error)) {
	e.submit(func() error {
		err := e.target.SetZeroRange(start, end)
		done(err)
		return err
	})
}

func (e *Engine) submit(work func() error) {
	if err := e.sem.Acquire(e.gctx, 1); err != nil {
		// Context already cancelled (likely by a prior failure); record it
		// so Fence still reports something if this is the first observer.
		e.g.Go(func() error { return err })
		return
	}
	e.g.Go(func() error {
		defer e.sem.Release(1)
		return work()
	})
}

// Fence blocks until every operation submitted so far has completed,
// and returns the first error encountered, if any. After Fence
// returns, the Engine is ready to accept further Submit calls — this
// is the drain barrier the analyze pipeline uses between marking the
// bitmap and coalescing ranges, and between SetSparse and the
// SetZeroRange batch (§4.6's fence-before-zero-range ordering).
func (e *Engine) Fence() error {
	err := e.g.Wait()
	e.g, e.gctx = errgroup.WithContext(e.ctx)
	return err
}
