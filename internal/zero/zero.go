// Package zero implements the zero-buffer predicate used by every
// analyze and copy pipeline to decide whether a cluster-sized region
// can become a filesystem hole.
package zero

import "encoding/binary"

// laneSize is the word width used to scan buffers. Eight bytes lets a
// single comparison rule out a full uint64 lane instead of walking
// byte-by-byte, which matters at multi-GiB file sizes.
const laneSize = 8

// IsZero reports whether every byte in b is 0x00. It is correct for
// any length, including 0, and for any starting alignment: the slice
// is walked lane-by-lane for as many full 8-byte lanes as fit, then
// any remaining 0-7 byte tail is checked byte-by-byte.
func IsZero(b []byte) bool {
	n := len(b)
	i := 0
	for ; i+laneSize <= n; i += laneSize {
		if binary.NativeEndian.Uint64(b[i:i+laneSize]) != 0 {
			return false
		}
	}
	for ; i < n; i++ {
		if b[i] != 0 {
			return false
		}
	}
	return true
}
