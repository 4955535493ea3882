// Package bitmap implements the cluster bitmap: one bit per filesystem
// cluster, concurrently markable during the analyze phase and read-only
// once the range coalescer runs.
//
// Ported from the ClusterMap routines in SparseFileLib.c (ClusterMapAllocate,
// ClusterMapMarkZero, ClusterMapIsMarkedZero, ClusterMapPrint), replacing
// InterlockedBitTestAndSet with sync/atomic's lock-free fetch-or.
package bitmap

import (
	"fmt"
	"io"
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/sparsetools/sparsectl/internal/sperr"
)

const wordBits = 32

// maxWords bounds the bitmap storage to math.MaxInt bytes. On 32-bit
// builds that is math.MaxInt32 bytes (about 64 TiB of file at 4 KiB
// clusters); on 64-bit builds this is never the limiting factor.
const maxWords = math.MaxInt / 4

// Bitmap is a dense, cluster-addressed bitset. MarkZero is safe to call
// concurrently from multiple completion contexts; IsZero and Print are
// intended for the read-only phase after all marking is complete,
// though they are safe to call concurrently with marking too (each
// load/store is a single atomic word operation).
type Bitmap struct {
	words       []atomic.Uint32
	shift       uint
	clusterSize uint64
	fileSize    uint64
}

// Allocate builds a Bitmap sized for fileSize bytes addressed in
// clusterSize chunks. clusterSize must be a power of two >= 2.
func Allocate(clusterSize uint32, fileSize uint64) (*Bitmap, error) {
	if clusterSize < 2 || clusterSize&(clusterSize-1) != 0 {
		return nil, fmt.Errorf("bitmap: cluster size %d is not a power of two >= 2: %w", clusterSize, sperr.ErrInvalidArgument)
	}

	numClusters := fileSize / uint64(clusterSize)
	if fileSize%uint64(clusterSize) != 0 {
		numClusters++
	}
	numWords := numClusters / wordBits
	if numClusters%wordBits != 0 {
		numWords++
	}
	if numWords > maxWords {
		return nil, fmt.Errorf("bitmap: %d words exceeds addressable bitmap storage: %w", numWords, sperr.ErrOutOfMemory)
	}

	return &Bitmap{
		words:       make([]atomic.Uint32, numWords),
		shift:       uint(bits.TrailingZeros32(clusterSize)),
		clusterSize: uint64(clusterSize),
		fileSize:    fileSize,
	}, nil
}

// NumClusters returns the number of addressable clusters.
func (b *Bitmap) NumClusters() uint64 {
	return uint64(len(b.words)) * wordBits
}

// ClusterSize returns the cluster size this bitmap was allocated with.
func (b *Bitmap) ClusterSize() uint64 { return b.clusterSize }

// MarkZero sets the bit for the cluster starting at byteOffset.
// byteOffset must be cluster-aligned and less than the file size this
// bitmap was allocated for; violating either is a programming error and
// panics, matching the assert()s in the original ClusterMapMarkZero.
func (b *Bitmap) MarkZero(byteOffset uint64) {
	if byteOffset&(b.clusterSize-1) != 0 {
		panic(fmt.Sprintf("bitmap: MarkZero offset %d is not cluster-aligned to %d", byteOffset, b.clusterSize))
	}
	if byteOffset >= b.fileSize {
		panic(fmt.Sprintf("bitmap: MarkZero offset %d >= file size %d", byteOffset, b.fileSize))
	}

	cluster := byteOffset >> b.shift
	word, bit := cluster/wordBits, cluster%wordBits
	b.words[word].Or(1 << bit)
}

// IsZero reports whether the given cluster index was marked zero.
func (b *Bitmap) IsZero(cluster uint64) bool {
	word, bit := cluster/wordBits, cluster%wordBits
	return b.words[word].Load()&(1<<bit) != 0
}

// Print emits a deterministic hex-offset grid: one character per
// cluster ('0' = zero/sparse-eligible, '1' = data), grouped in fours,
// with a new row and offset annotation every 16 groups. Diagnostic
// only; mirrors ClusterMapPrint's layout.
func (b *Bitmap) Print(w io.Writer) {
	numClusters := b.fileSize / b.clusterSize
	if b.fileSize%b.clusterSize != 0 {
		numClusters++
	}

	fmt.Fprintf(w, "%-18s Cluster size = %d, 0 = empty cluster, 1 = data cluster", "File Offset", b.clusterSize)

	var displayGroups uint64
	for i := uint64(0); i < numClusters; i++ {
		if displayGroups%16 == 0 && i%4 == 0 {
			fmt.Fprintf(w, "\n0x%016X", i<<b.shift)
		}
		if i%4 == 0 {
			displayGroups++
			fmt.Fprint(w, " ")
		}
		if b.IsZero(i) {
			fmt.Fprint(w, "0")
		} else {
			fmt.Fprint(w, "1")
		}
	}
	fmt.Fprintln(w)
}
