package bytestream

import (
	"encoding/binary"
	"math/bits"
	"sync/atomic"

	"github.com/ncbi/sra-tools-sub027/common/dbg"
)

// wideBulk selects the batched kernels for Get32OR/Get32AND. They are plain
// scalar Go, unrolled by 8 words with one 64-bit load per word pair, and only
// pay off on 64-bit hosts. Results are identical to the word-at-a-time kernels.
var wideBulk atomic.Bool

func init() {
	wideBulk.Store(!dbg.NoBatch && bits.UintSize == 64)
}

// WideBulk reports whether the batched OR/AND kernels are active
func WideBulk() bool { return wideBulk.Load() }

// SetWideBulk overrides the CPU detection, returns the previous setting
func SetWideBulk(on bool) bool { return wideBulk.Swap(on) }

func word32(b []byte, be bool) uint32 {
	if be {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

// pair32 splits 8 bytes into two consecutive stream words
func pair32(b []byte, be bool) (uint32, uint32) {
	if be {
		x := binary.BigEndian.Uint64(b)
		return uint32(x >> 32), uint32(x)
	}
	x := binary.LittleEndian.Uint64(b)
	return uint32(x), uint32(x >> 32)
}

func orScalar(dst []uint32, b []byte, be bool) bool {
	all := ^uint32(0)
	for i := range dst {
		dst[i] |= word32(b[4*i:], be)
		all &= dst[i]
	}
	return all == ^uint32(0)
}

func andScalar(dst []uint32, b []byte, be bool) bool {
	var set uint32
	for i := range dst {
		dst[i] &= word32(b[4*i:], be)
		set |= dst[i]
	}
	return set != 0
}

func orWide(dst []uint32, b []byte, be bool) bool {
	all := ^uint32(0)
	i := 0
	for ; i+8 <= len(dst); i += 8 {
		d := dst[i : i+8 : i+8]
		s := b[4*i : 4*i+32 : 4*i+32]
		w0, w1 := pair32(s[0:], be)
		w2, w3 := pair32(s[8:], be)
		w4, w5 := pair32(s[16:], be)
		w6, w7 := pair32(s[24:], be)
		d[0] |= w0
		d[1] |= w1
		d[2] |= w2
		d[3] |= w3
		d[4] |= w4
		d[5] |= w5
		d[6] |= w6
		d[7] |= w7
		all &= d[0] & d[1] & d[2] & d[3] & d[4] & d[5] & d[6] & d[7]
	}
	if i < len(dst) && !orScalar(dst[i:], b[4*i:], be) {
		return false
	}
	return all == ^uint32(0)
}

func andWide(dst []uint32, b []byte, be bool) bool {
	var set uint32
	i := 0
	for ; i+8 <= len(dst); i += 8 {
		d := dst[i : i+8 : i+8]
		s := b[4*i : 4*i+32 : 4*i+32]
		w0, w1 := pair32(s[0:], be)
		w2, w3 := pair32(s[8:], be)
		w4, w5 := pair32(s[16:], be)
		w6, w7 := pair32(s[24:], be)
		d[0] &= w0
		d[1] &= w1
		d[2] &= w2
		d[3] &= w3
		d[4] &= w4
		d[5] &= w5
		d[6] &= w6
		d[7] &= w7
		set |= d[0] | d[1] | d[2] | d[3] | d[4] | d[5] | d[6] | d[7]
	}
	if i < len(dst) && andScalar(dst[i:], b[4*i:], be) {
		return true
	}
	return set != 0
}
