/*
   Copyright 2021 Erigon contributors

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package bitstream

import (
	"math/bits"

	"github.com/ncbi/sra-tools-sub027/common/dbg"
)

// Binary Interpolative Coding of strictly ascending arrays known to lie in [lo,hi].
//
// The middle element is written as its offset inside the range still feasible for it
// (every element before it needs a distinct smaller value, every element after it a
// distinct larger one), then the left half is coded recursively and the right half
// iteratively. Recursion only ever happens on the left half, which has at most half
// the elements, so stack depth is bounded by bits.Len(len(arr)).
//
// Two codes for the offset x in [0,r] exist:
//   - rg ("range"): x in bits.Len(r) bits
//   - cm ("centre minimal"): offsets near the middle of [0,r] take floor(log2(r+1)) bits,
//     the rest one bit more; never longer than rg.

// Value is the element type BIC works on
type Value interface {
	~uint16 | ~uint32
}

func depthLimit(sz int) int { return bits.Len(uint(sz)) }

// cmZone returns floor(log2(r+1)) and the open interval (lo1,hi1) of offsets which
// are coded with that many bits; offsets outside of it need one extra bit.
func cmZone(r uint64) (logv uint, lo1, hi1 int64) {
	n := r + 1
	logv = uint(bits.Len64(n) - 1)
	c := uint64(1)<<(logv+1) - n
	halfC, halfR := int64(c>>1), int64(r>>1)
	return logv, halfR - halfC, halfR + halfC + 1
}

func putCM(w BitWriter, x, r uint64) {
	logv, lo1, hi1 := cmZone(r)
	if int64(x) <= lo1 || int64(x) >= hi1 {
		logv++
	}
	w.PutBits(uint32(x), logv)
}

func getCM(rd BitReader, r uint64) uint64 {
	logv, lo1, hi1 := cmZone(r)
	x := uint64(rd.GetBits(logv))
	if int64(x) <= lo1 || int64(x) >= hi1 {
		x += uint64(rd.GetBit()) << logv
	}
	return x
}

// EncodeBICRG writes arr with the range code
func EncodeBICRG[T Value](w BitWriter, arr []T, lo, hi T) {
	bicEncode(w, arr, uint64(lo), uint64(hi), false, 0, depthLimit(len(arr)))
}

// EncodeBICCM writes arr with the centre minimal code
func EncodeBICCM[T Value](w BitWriter, arr []T, lo, hi T) {
	bicEncode(w, arr, uint64(lo), uint64(hi), true, 0, depthLimit(len(arr)))
}

func bicEncode[T Value](w BitWriter, arr []T, lo, hi uint64, cm bool, depth, maxDepth int) {
	dbg.Assert(depth <= maxDepth, "bic: recursion deeper than log2 of the array size")
	for len(arr) > 0 {
		sz := uint64(len(arr))
		dbg.Assert(lo <= hi && hi-lo+1 >= sz, "bic: array does not fit its range")
		mid := sz >> 1
		val := uint64(arr[mid])
		if r := hi - lo - sz + 1; r != 0 {
			if cm {
				putCM(w, val-lo-mid, r)
			} else {
				w.PutBits(uint32(val-lo-mid), uint(bits.Len64(r)))
			}
		}
		if sz == 1 {
			return
		}
		bicEncode(w, arr[:mid], lo, val-1, cm, depth+1, maxDepth)
		arr, lo = arr[mid+1:], val+1
	}
}

// bicOut is where decoded values go: an array, bits of a block, both or nowhere (dry run)
type bicOut[T Value] struct {
	arr   []T
	block []uint32
}

func (o bicOut[T]) put(idx, v uint64) {
	if o.arr != nil {
		o.arr[idx] = T(v)
	}
	if o.block != nil {
		o.block[v>>5] |= 1 << (v & 31)
	}
}

func (o bicOut[T]) from(idx uint64) bicOut[T] {
	if o.arr != nil {
		o.arr = o.arr[idx:]
	}
	return o
}

func bicDecode[T Value](rd BitReader, out bicOut[T], sz, lo, hi uint64, cm bool, depth, maxDepth int) {
	dbg.Assert(depth <= maxDepth, "bic: recursion deeper than log2 of the array size")
	for sz > 0 {
		mid := sz >> 1
		var x uint64
		if r := hi - lo - sz + 1; r != 0 {
			if cm {
				x = getCM(rd, r)
			} else {
				x = uint64(rd.GetBits(uint(bits.Len64(r))))
			}
		}
		val := x + lo + mid
		out.put(mid, val)
		if sz == 1 {
			return
		}
		bicDecode(rd, out, mid, lo, val-1, cm, depth+1, maxDepth)
		out = out.from(mid + 1)
		sz -= mid + 1
		lo = val + 1
	}
}

// DecodeBICRG reads len(arr) values written by EncodeBICRG with the same lo, hi
func DecodeBICRG[T Value](rd BitReader, arr []T, lo, hi T) {
	bicDecode(rd, bicOut[T]{arr: arr}, uint64(len(arr)), uint64(lo), uint64(hi), false, 0, depthLimit(len(arr)))
}

// DecodeBICCM reads len(arr) values written by EncodeBICCM with the same lo, hi
func DecodeBICCM[T Value](rd BitReader, arr []T, lo, hi T) {
	bicDecode(rd, bicOut[T]{arr: arr}, uint64(len(arr)), uint64(lo), uint64(hi), true, 0, depthLimit(len(arr)))
}

// DecodeBICRGBitset reads sz values and sets their bits in block instead of storing them
func DecodeBICRGBitset(rd BitReader, block []uint32, sz int, lo, hi uint32) {
	bicDecode(rd, bicOut[uint32]{block: block}, uint64(sz), uint64(lo), uint64(hi), false, 0, depthLimit(sz))
}

func DecodeBICCMBitset(rd BitReader, block []uint32, sz int, lo, hi uint32) {
	bicDecode(rd, bicOut[uint32]{block: block}, uint64(sz), uint64(lo), uint64(hi), true, 0, depthLimit(sz))
}

// DecodeBICRGDry consumes sz values without producing them, used to skip a sub-stream
func DecodeBICRGDry(rd BitReader, sz int, lo, hi uint32) {
	bicDecode(rd, bicOut[uint32]{}, uint64(sz), uint64(lo), uint64(hi), false, 0, depthLimit(sz))
}

func DecodeBICCMDry(rd BitReader, sz int, lo, hi uint32) {
	bicDecode(rd, bicOut[uint32]{}, uint64(sz), uint64(lo), uint64(hi), true, 0, depthLimit(sz))
}
