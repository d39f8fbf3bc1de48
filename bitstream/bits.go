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
)

const accBits = 32 // width of the accumulator, the unit of flush/refill

// WordWriter is a sink of 32-bit words, e.g. *bytestream.Encoder
type WordWriter interface {
	Put32(v uint32)
}

// WordReader is a source of 32-bit words, e.g. *bytestream.Decoder
type WordReader interface {
	Get32() uint32
}

// BitWriter is the surface the entropy coders (BIC, WDR, dispatcher) are written against
type BitWriter interface {
	PutBit(bit uint32)
	PutBits(value uint32, count uint)
	Gamma(value uint32)
}

// BitReader is the read-side counterpart of BitWriter
type BitReader interface {
	GetBit() uint32
	GetBits(count uint) uint32
	Gamma() uint32
}

func lowMask(count uint) uint32 { return uint32(1)<<count - 1 } // count==32 wraps to all-ones

// Writer packs bits low-to-high into a 32-bit accumulator and hands full words to dst.
// The final partial word is written by Flush, the stream always ends on a word boundary.
type Writer[W WordWriter] struct {
	dst   W
	acc   uint32
	used  uint   // bits of acc in use, [0,32)
	words uint64 // words handed to dst
}

func NewWriter[W WordWriter](dst W) *Writer[W] { return &Writer[W]{dst: dst} }

func (w *Writer[W]) flushAcc() {
	w.dst.Put32(w.acc)
	w.words++
	w.acc, w.used = 0, 0
}

// Bits returns number of bits written so far, including the unflushed ones
func (w *Writer[W]) Bits() uint64 { return w.words*accBits + uint64(w.used) }

// Flush writes out the partial accumulator word. Second call is a no-op.
func (w *Writer[W]) Flush() {
	if w.used > 0 {
		w.flushAcc()
	}
}

// FlushIfFull writes the accumulator only when it holds a complete word
func (w *Writer[W]) FlushIfFull() {
	if w.used == accBits {
		w.flushAcc()
	}
}

func (w *Writer[W]) PutBit(bit uint32) {
	w.acc |= (bit & 1) << w.used
	if w.used++; w.used == accBits {
		w.flushAcc()
	}
}

func (w *Writer[W]) PutZeroBit() {
	if w.used++; w.used == accBits {
		w.flushAcc()
	}
}

// PutBits writes the low count bits of value, count in [0,32]
func (w *Writer[W]) PutBits(value uint32, count uint) {
	if count == 0 {
		return
	}
	value &= lowMask(count)
	free := accBits - w.used
	w.acc |= value << w.used
	if count < free {
		w.used += count
		return
	}
	w.flushAcc()
	if rest := count - free; rest > 0 {
		w.acc = value >> free
		w.used = rest
	}
}

// PutZeroBits writes count zero bits followed by a single one bit (unary length marker)
func (w *Writer[W]) PutZeroBits(count uint) {
	if free := accBits - w.used; count >= free {
		w.flushAcc() // remaining bits of the word are zero
		count -= free
		for ; count >= accBits; count -= accBits {
			w.dst.Put32(0)
			w.words++
		}
	}
	w.used += count
	w.acc |= 1 << w.used
	if w.used++; w.used == accBits {
		w.flushAcc()
	}
}

// Put16NO writes 16 bits as two 8-bit chunks, low byte first, independent of the word sink byte order
func (w *Writer[W]) Put16NO(v uint16) {
	w.PutBits(uint32(v)&0xFF, 8)
	w.PutBits(uint32(v>>8), 8)
}

func (w *Writer[W]) Put24NO(v uint32) {
	w.PutBits(v&0xFF, 8)
	w.PutBits((v>>8)&0xFF, 8)
	w.PutBits((v>>16)&0xFF, 8)
}

func (w *Writer[W]) Put32NO(v uint32) {
	w.Put16NO(uint16(v))
	w.Put16NO(uint16(v >> 16))
}

func (w *Writer[W]) Put64NO(v uint64) {
	w.Put32NO(uint32(v))
	w.Put32NO(uint32(v >> 32))
}

// Reader mirrors Writer: acc holds the not yet consumed bits of the current word
// shifted down to bit 0, used counts consumed bits of that word.
type Reader[R WordReader] struct {
	src   R
	acc   uint32
	used  uint // consumed bits of the current word, accBits means empty
	words uint64
}

func NewReader[R WordReader](src R) *Reader[R] { return &Reader[R]{src: src, used: accBits} }

func (r *Reader[R]) load() {
	r.acc = r.src.Get32()
	r.used = 0
	r.words++
}

// Bits returns number of bits consumed so far
func (r *Reader[R]) Bits() uint64 { return r.words*accBits + uint64(r.used) - accBits }

func (r *Reader[R]) GetBit() uint32 {
	if r.used == accBits {
		r.load()
	}
	bit := r.acc & 1
	r.acc >>= 1
	r.used++
	return bit
}

// GetBits reads count bits, count in [0,32]
func (r *Reader[R]) GetBits(count uint) uint32 {
	if count == 0 {
		return 0
	}
	free := accBits - r.used
	if count <= free {
		v := r.acc & lowMask(count)
		r.acc >>= count
		r.used += count
		return v
	}
	v := r.acc // only free low bits are non-zero
	r.load()
	rest := count - free
	v |= (r.acc & lowMask(rest)) << free
	r.acc >>= rest
	r.used = rest
	return v
}

// countZeroBits consumes a run of zero bits and the terminating one bit,
// returns the run length. A run longer than limit stops at limit so a truncated
// stream (which reads as zeros) cannot spin forever.
func (r *Reader[R]) countZeroBits(limit uint) uint {
	var zeros uint
	for {
		if r.used == accBits {
			r.load()
		}
		if r.acc == 0 {
			zeros += accBits - r.used
			r.used = accBits
			if zeros > limit {
				return limit
			}
			continue
		}
		tz := uint(bits.TrailingZeros32(r.acc))
		zeros += tz
		r.acc >>= tz + 1
		r.used += tz + 1
		return zeros
	}
}

func (r *Reader[R]) Get16NO() uint16 {
	return uint16(r.GetBits(8)) | uint16(r.GetBits(8))<<8
}

func (r *Reader[R]) Get24NO() uint32 {
	return r.GetBits(8) | r.GetBits(8)<<8 | r.GetBits(8)<<16
}

func (r *Reader[R]) Get32NO() uint32 {
	return uint32(r.Get16NO()) | uint32(r.Get16NO())<<16
}

func (r *Reader[R]) Get64NO() uint64 {
	return uint64(r.Get32NO()) | uint64(r.Get32NO())<<32
}

// Reset re-targets the writer to dst, dropping unflushed bits
func (w *Writer[W]) Reset(dst W) { *w = Writer[W]{dst: dst} }

// Reset re-targets the reader to src
func (r *Reader[R]) Reset(src R) { *r = Reader[R]{src: src, used: accBits} }
