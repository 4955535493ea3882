package pipeline

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/sparsetools/sparsectl/internal/bitmap"
	"github.com/sparsetools/sparsectl/internal/progress"
)

// fakeTarget is an in-memory Target used to test the pipeline's
// dispatch logic without touching a real filesystem.
type fakeTarget struct {
	mu          sync.Mutex
	data        []byte
	holes       []struct{ start, end uint64 }
	sparseCalls int
	size        uint64
	synced      bool
}

func newFakeTarget(data []byte) *fakeTarget {
	return &fakeTarget{data: append([]byte(nil), data...), size: uint64(len(data))}
}

func (f *fakeTarget) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *fakeTarget) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[off:], p)
	if uint64(end) > f.size {
		f.size = uint64(end)
	}
	return n, nil
}

func (f *fakeTarget) SetSparse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sparseCalls++
	return nil
}

func (f *fakeTarget) SetZeroRange(start, end uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holes = append(f.holes, struct{ start, end uint64 }{start, end})
	for i := start; i < end && i < uint64(len(f.data)); i++ {
		f.data[i] = 0
	}
	return nil
}

func (f *fakeTarget) SetSize(size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size < uint64(len(f.data)) {
		f.data = f.data[:size]
	} else if size > uint64(len(f.data)) {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.size = size
	return nil
}

func (f *fakeTarget) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = true
	return nil
}

func TestAnalyze_MarksAndPunchesZeroClusters(t *testing.T) {
	const cs = 8
	data := make([]byte, 3*cs)
	copy(data[0:cs], bytes.Repeat([]byte{0xAB}, cs)) // cluster 0: data
	// cluster 1 (cs:2*cs) left zero
	copy(data[2*cs:3*cs], bytes.Repeat([]byte{0xCD}, cs)) // cluster 2: data

	tgt := newFakeTarget(data)
	bmp, err := bitmap.Allocate(cs, uint64(len(data)))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	cfg := AnalyzeConfig{ClusterSize: cs, FileSize: uint64(len(data)), MinRunClusters: 1, MaxPending: 4}
	prog := progress.NewState(cfg.FileSize)

	if err := Analyze(context.Background(), tgt, bmp, cfg, prog); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !bmp.IsZero(1) {
		t.Error("cluster 1 should be marked zero")
	}
	if bmp.IsZero(0) || bmp.IsZero(2) {
		t.Error("clusters 0 and 2 should not be marked zero")
	}
	if tgt.sparseCalls != 1 {
		t.Errorf("sparseCalls = %d, want 1", tgt.sparseCalls)
	}
	if len(tgt.holes) != 1 || tgt.holes[0].start != cs || tgt.holes[0].end != 2*cs {
		t.Errorf("holes = %v, want [{%d %d}]", tgt.holes, cs, 2*cs)
	}
	if !tgt.synced {
		t.Error("expected Flush to be called")
	}
	if prog.BytesRead.Load() != int64(len(data)) {
		t.Errorf("BytesRead = %d, want %d", prog.BytesRead.Load(), len(data))
	}
}

func TestAnalyze_MinRunClustersSuppressesSingleClusterHoles(t *testing.T) {
	const cs = 8
	data := make([]byte, 3*cs) // all zero
	tgt := newFakeTarget(data)
	bmp, _ := bitmap.Allocate(cs, uint64(len(data)))

	cfg := AnalyzeConfig{ClusterSize: cs, FileSize: uint64(len(data)), MinRunClusters: 4, MaxPending: 2}
	if err := Analyze(context.Background(), tgt, bmp, cfg, nil); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(tgt.holes) != 0 {
		t.Errorf("holes = %v, want none (run of 3 < minRunClusters 4)", tgt.holes)
	}
}

func TestCopy_SkipsZeroClusters(t *testing.T) {
	const cs = 4
	src := bytes.NewReader(append(bytes.Repeat([]byte{0}, cs), bytes.Repeat([]byte{0x42}, cs)...))
	dst := newFakeTarget(nil)

	cfg := CopyConfig{ClusterSize: cs, MaxPending: 2}
	n, err := Copy(context.Background(), src, dst, cfg, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 2*cs {
		t.Errorf("processed = %d, want %d", n, 2*cs)
	}
	if len(dst.holes) != 1 || dst.holes[0].start != 0 || dst.holes[0].end != cs {
		t.Errorf("holes = %v, want a hole over [0,%d)", dst.holes, cs)
	}
	if dst.size != 2*cs {
		t.Errorf("dst size = %d, want %d", dst.size, 2*cs)
	}
}

func TestCopy_HandlesTrailingRunt(t *testing.T) {
	const cs = 8
	payload := append(bytes.Repeat([]byte{0x7}, cs), []byte{1, 2, 3}...) // 3-byte runt
	src := bytes.NewReader(payload)
	dst := newFakeTarget(nil)

	cfg := CopyConfig{ClusterSize: cs, MaxPending: 2}
	n, err := Copy(context.Background(), src, dst, cfg, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != uint64(len(payload)) {
		t.Errorf("processed = %d, want %d", n, len(payload))
	}
	if dst.size != uint64(len(payload)) {
		t.Errorf("dst size = %d, want %d", dst.size, len(payload))
	}
	if !bytes.Equal(dst.data, payload) {
		t.Errorf("dst data = %v, want %v", dst.data, payload)
	}
}

func TestCopy_UnknownLengthStreamSetsFinalSize(t *testing.T) {
	const cs = 4
	payload := bytes.Repeat([]byte{0x9}, 10) // not a multiple of cs, simulates a pipe
	src := bytes.NewReader(payload)
	dst := newFakeTarget(nil)

	cfg := CopyConfig{ClusterSize: cs, MaxPending: 3}
	n, err := Copy(context.Background(), src, dst, cfg, nil)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != uint64(len(payload)) {
		t.Errorf("processed = %d, want %d", n, len(payload))
	}
	if dst.size != uint64(len(payload)) {
		t.Errorf("dst.SetSize not called with final processed length: got %d, want %d", dst.size, len(payload))
	}
}
