package coalesce

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeBitmap is a simple []bool-backed ZeroBitmap for testing the
// coalescer in isolation from internal/bitmap.
type fakeBitmap []bool

func (f fakeBitmap) IsZero(cluster uint64) bool {
	if cluster >= uint64(len(f)) {
		return false
	}
	return f[cluster]
}

const cs = 4096

func TestCoalesce_NoZeroClusters(t *testing.T) {
	bmp := fakeBitmap{false, false, false}
	got := Coalesce(bmp, cs, 3*cs, 1)
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestCoalesce_SingleRun(t *testing.T) {
	bmp := fakeBitmap{true, true, true, false}
	got := Coalesce(bmp, cs, 4*cs, 1)
	want := []Range{{Start: 0, End: 3 * cs}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coalesce mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesce_MinRunClustersFiltersShortRuns(t *testing.T) {
	// runs of length 1, 1, 3 with minRunClusters=2: only the length-3 run survives.
	bmp := fakeBitmap{true, false, true, false, true, true, true, false}
	got := Coalesce(bmp, cs, uint64(len(bmp))*cs, 2)
	want := []Range{{Start: 4 * cs, End: 7 * cs}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coalesce mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesce_RuntExtendsQualifyingRun(t *testing.T) {
	// 2 whole clusters zero, then a runt tail that is also zero.
	bmp := fakeBitmap{true, true, true} // cluster index 2 is the runt's cluster
	fileSize := 2*cs + 100             // runt is 100 bytes into cluster 2
	got := Coalesce(bmp, cs, fileSize, 1)
	want := []Range{{Start: 0, End: 2*cs + 100}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coalesce mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesce_RuntNotZeroIsExcluded(t *testing.T) {
	bmp := fakeBitmap{true, true, false}
	fileSize := 2*cs + 100
	got := Coalesce(bmp, cs, fileSize, 1)
	want := []Range{{Start: 0, End: 2 * cs}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coalesce mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesce_RuntAloneNeverQualifies(t *testing.T) {
	// No whole zero clusters, but the runt cluster is zero: the original
	// explicitly never zeroes a runt by itself.
	bmp := fakeBitmap{false, true}
	fileSize := cs + 100
	got := Coalesce(bmp, cs, fileSize, 1)
	if len(got) != 0 {
		t.Errorf("got %v, want empty (runt alone never qualifies)", got)
	}
}

func TestCoalesce_ExactMultipleOfClusterSizeHasNoRunt(t *testing.T) {
	bmp := fakeBitmap{true, true}
	got := Coalesce(bmp, cs, 2*cs, 1)
	want := []Range{{Start: 0, End: 2 * cs}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coalesce mismatch (-want +got):\n%s", diff)
	}
}

func TestCoalesce_Idempotent(t *testing.T) {
	bmp := fakeBitmap{true, false, true, true, true, false, true}
	fileSize := uint64(len(bmp)) * cs
	r1 := Coalesce(bmp, cs, fileSize, 1)

	// Mark exactly the clusters r1 covers and coalesce that again.
	again := make(fakeBitmap, len(bmp))
	for _, r := range r1 {
		for c := r.Start / cs; c < r.End/cs; c++ {
			again[c] = true
		}
	}
	r2 := Coalesce(again, cs, fileSize, 1)
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("Coalesce not idempotent (-first +second):\n%s", diff)
	}
}

func TestCoalesce_MinRunClustersZeroTreatedAsOne(t *testing.T) {
	bmp := fakeBitmap{true, false}
	got := Coalesce(bmp, cs, 2*cs, 0)
	want := []Range{{Start: 0, End: cs}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coalesce mismatch (-want +got):\n%s", diff)
	}
}
