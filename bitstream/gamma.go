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

// Selector tags of the bounded codes, each written as Elias Gamma
const (
	gamma8Small = 1 // v < 16, Gamma(v) follows
	gamma8Byte  = 2 // v < 256, 8 raw bits follow
	gamma8Wide  = 3 // Delta16(v) follows
	gamma8Zero  = 4

	delta16Band1 = 1 // [256,511], 511-v in 8 bits
	delta16Band2 = 2 // (511,767], 767-v in 8 bits
	delta16Band3 = 3 // (767,1023], 1023-v in 8 bits
	delta16Raw   = 4 // 16 neutral-order bits
)

// GammaSize returns the length in bits of the Elias Gamma code of v, v > 0
func GammaSize(v uint32) uint {
	return 2*uint(bits.Len32(v)-1) + 1
}

// Delta16Size returns the length in bits of Delta16(v), v > 255
func Delta16Size(v uint16) uint {
	switch {
	case v <= 511:
		return GammaSize(delta16Band1) + 8
	case v <= 767:
		return GammaSize(delta16Band2) + 8
	case v <= 1023:
		return GammaSize(delta16Band3) + 8
	default:
		return GammaSize(delta16Raw) + 16
	}
}

// Gamma8Size returns the length in bits of Gamma8(v)
func Gamma8Size(v uint16) uint {
	switch {
	case v == 0:
		return GammaSize(gamma8Zero)
	case v < 16:
		return GammaSize(gamma8Small) + GammaSize(uint32(v))
	case v < 256:
		return GammaSize(gamma8Byte) + 8
	default:
		return GammaSize(gamma8Wide) + Delta16Size(v)
	}
}

// Gamma writes Elias Gamma code of v: floor(log2 v) zero bits, a one bit,
// then the low floor(log2 v) bits of v (the leading one is implicit). v must be > 0.
func (w *Writer[W]) Gamma(v uint32) {
	dbg.Assert(v != 0, "gamma of zero")
	logv := uint(bits.Len32(v) - 1)
	w.PutZeroBits(logv)
	w.PutBits(v, logv)
}

// Gamma reads a value written by Writer.Gamma
func (r *Reader[R]) Gamma() uint32 {
	logv := r.countZeroBits(accBits - 1)
	return r.GetBits(logv) | 1<<logv
}

// Delta16 writes v > 255 as the distance from the ceiling of its band
func (w *Writer[W]) Delta16(v uint16) {
	dbg.Assert(v > 255, "delta16 of a value below 256")
	switch {
	case v <= 511:
		w.Gamma(delta16Band1)
		w.PutBits(uint32(511-v), 8)
	case v <= 767:
		w.Gamma(delta16Band2)
		w.PutBits(uint32(767-v), 8)
	case v <= 1023:
		w.Gamma(delta16Band3)
		w.PutBits(uint32(1023-v), 8)
	default:
		w.Gamma(delta16Raw)
		w.Put16NO(v)
	}
}

func (r *Reader[R]) Delta16() uint16 {
	switch tag := r.Gamma(); tag {
	case delta16Band1:
		return 511 - uint16(r.GetBits(8))
	case delta16Band2:
		return 767 - uint16(r.GetBits(8))
	case delta16Band3:
		return 1023 - uint16(r.GetBits(8))
	default:
		dbg.Assert(tag == delta16Raw, "bad delta16 tag")
		return r.Get16NO()
	}
}

// Delta16s writes a selector bit: 0 and 8 raw bits for v < 256, 1 and Delta16(v) otherwise
func (w *Writer[W]) Delta16s(v uint16) {
	if v < 256 {
		w.PutZeroBit()
		w.PutBits(uint32(v), 8)
		return
	}
	w.PutBit(1)
	w.Delta16(v)
}

func (r *Reader[R]) Delta16s() uint16 {
	if r.GetBit() == 0 {
		return uint16(r.GetBits(8))
	}
	return r.Delta16()
}

// Gamma8 writes any 16-bit value, cheapest for values below 256
func (w *Writer[W]) Gamma8(v uint16) {
	switch {
	case v == 0:
		w.Gamma(gamma8Zero)
	case v < 16:
		w.Gamma(gamma8Small)
		w.Gamma(uint32(v))
	case v < 256:
		w.Gamma(gamma8Byte)
		w.PutBits(uint32(v), 8)
	default:
		w.Gamma(gamma8Wide)
		w.Delta16(v)
	}
}

func (r *Reader[R]) Gamma8() uint16 {
	switch tag := r.Gamma(); tag {
	case gamma8Zero:
		return 0
	case gamma8Small:
		return uint16(r.Gamma())
	case gamma8Byte:
		return uint16(r.GetBits(8))
	default:
		dbg.Assert(tag == gamma8Wide, "bad gamma8 tag")
		return r.Delta16()
	}
}
