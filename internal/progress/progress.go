// Package progress is the progress reporter (C9): a set of atomic
// counters the pipelines update as work completes, and a reporter
// goroutine that periodically renders them either as a TTY progress
// bar or as a single structured log line.
package progress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/cheggaaa/pb.v1"
)

// DefaultInterval is the reporting cadence when neither config nor the
// environment override it.
const DefaultInterval = 10 * time.Second

// State holds the four running counters the analyze and copy pipelines
// update as operations complete. All fields are updated with
// sync/atomic so any number of completion goroutines can call Add
// concurrently; FileSize is set once at construction and never
// mutated afterward.
type State struct {
	FileSize     uint64
	BytesRead    atomic.Int64
	BytesWritten atomic.Int64
	BytesToZero  atomic.Int64
	BytesZeroed  atomic.Int64
}

// NewState constructs a State for a run processing fileSize bytes.
// fileSize may be 0 for a PipeSparse run whose length isn't known
// until EOF — the reporter falls back to a counter-only line rather
// than a percentage bar in that case.
func NewState(fileSize uint64) *State {
	return &State{FileSize: fileSize}
}

// Reporter periodically renders a State until the context passed to
// Run is cancelled.
type Reporter struct {
	state    *State
	interval time.Duration
	log      *logrus.Logger
	isTTY    bool
	label    string
}

// NewReporter builds a Reporter for state. isTTY selects between a
// cheggaaa/pb.v1 bar (true) and a periodic logrus line (false); label
// is shown next to the bar or counters (e.g. the file path).
func NewReporter(state *State, interval time.Duration, log *logrus.Logger, isTTY bool, label string) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{state: state, interval: interval, log: log, isTTY: isTTY, label: label}
}

// Run blocks, rendering state at r.interval, until ctx is done. The
// final state is always rendered once more before returning so a short
// run that completes between ticks still reports its outcome.
func (r *Reporter) Run(ctx context.Context) {
	if r.isTTY && r.state.FileSize > 0 {
		r.runBar(ctx)
		return
	}
	r.runLog(ctx)
}

func (r *Reporter) runBar(ctx context.Context) {
	bar := pb.New64(int64(r.state.FileSize))
	bar.Prefix(r.label)
	bar.SetRefreshRate(r.interval)
	bar.ShowTimeLeft = true
	bar.Start()
	defer bar.Finish()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bar.Set64(int64(r.state.BytesRead.Load()))
			return
		case <-ticker.C:
			bar.Set64(int64(r.state.BytesRead.Load()))
		}
	}
}

func (r *Reporter) runLog(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logOnce := func() {
		r.log.WithFields(logrus.Fields{
			"path":          r.label,
			"bytes_read":    r.state.BytesRead.Load(),
			"bytes_written": r.state.BytesWritten.Load(),
			"bytes_to_zero": r.state.BytesToZero.Load(),
			"bytes_zeroed":  r.state.BytesZeroed.Load(),
			"file_size":     r.state.FileSize,
		}).Info("progress")
	}

	for {
		select {
		case <-ctx.Done():
			logOnce()
			return
		case <-ticker.C:
			logOnce()
		}
	}
}
