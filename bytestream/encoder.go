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

package bytestream

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is recorded by Encoder/Decoder when an operation runs past the buffer capacity
var ErrShortBuffer = errors.New("bytestream: buffer too short")

// Encoder writes fixed-width integers into a caller-owned buffer of fixed capacity.
// The first overrun is remembered in Err and every later write is dropped, so callers
// can run a whole serialization pass and check the error once at the end.
type Encoder struct {
	buf []byte // len(buf) is the capacity, never resliced
	pos int
	be  bool // big-endian on the wire
	err error
}

// NewEncoder creates little-endian encoder writing into buf[0:len(buf)]
func NewEncoder(buf []byte) *Encoder { return &Encoder{buf: buf} }

// NewEncoderBE creates encoder which writes multi-byte fields big-endian
func NewEncoderBE(buf []byte) *Encoder { return &Encoder{buf: buf, be: true} }

func (e *Encoder) reserve(n int) bool {
	if e.err != nil {
		return false
	}
	if len(e.buf)-e.pos < n {
		e.err = ErrShortBuffer
		return false
	}
	return true
}

func (e *Encoder) Err() error      { return e.err }
func (e *Encoder) Pos() int        { return e.pos }
func (e *Encoder) Len() int        { return e.pos }
func (e *Encoder) Cap() int        { return len(e.buf) }
func (e *Encoder) Remaining() int  { return len(e.buf) - e.pos }
func (e *Encoder) BigEndian() bool { return e.be }

// Bytes returns the written part of the buffer, it aliases the buffer
func (e *Encoder) Bytes() []byte { return e.buf[:e.pos] }

// Reset rewinds to the start of the buffer and clears the error
func (e *Encoder) Reset() {
	e.pos = 0
	e.err = nil
}

// SetPos moves the cursor, used to rewind and patch a previously written field
func (e *Encoder) SetPos(pos int) {
	if pos < 0 || pos > len(e.buf) {
		e.err = ErrShortBuffer
		return
	}
	e.pos = pos
}

// MoveFrom takes over buffer, cursor and error of other without copying.
// other is left empty and must be re-targeted before use.
func (e *Encoder) MoveFrom(other *Encoder) {
	e.buf, e.pos, e.be, e.err = other.buf, other.pos, other.be, other.err
	other.buf, other.pos, other.err = nil, 0, nil
}

func (e *Encoder) Put8(v byte) {
	if !e.reserve(1) {
		return
	}
	e.buf[e.pos] = v
	e.pos++
}

func (e *Encoder) PutBytes(b []byte) {
	if !e.reserve(len(b)) {
		return
	}
	e.pos += copy(e.buf[e.pos:], b)
}

func (e *Encoder) Put16(v uint16) {
	if !e.reserve(2) {
		return
	}
	if e.be {
		binary.BigEndian.PutUint16(e.buf[e.pos:], v)
	} else {
		binary.LittleEndian.PutUint16(e.buf[e.pos:], v)
	}
	e.pos += 2
}

// Put24 writes the low 24 bits of v
func (e *Encoder) Put24(v uint32) {
	if !e.reserve(3) {
		return
	}
	b := e.buf[e.pos : e.pos+3]
	if e.be {
		b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
	} else {
		b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
	}
	e.pos += 3
}

func (e *Encoder) Put32(v uint32) {
	if !e.reserve(4) {
		return
	}
	if e.be {
		binary.BigEndian.PutUint32(e.buf[e.pos:], v)
	} else {
		binary.LittleEndian.PutUint32(e.buf[e.pos:], v)
	}
	e.pos += 4
}

// Put48 writes the low 48 bits of v
func (e *Encoder) Put48(v uint64) {
	if !e.reserve(6) {
		return
	}
	b := e.buf[e.pos : e.pos+6]
	if e.be {
		binary.BigEndian.PutUint16(b, uint16(v>>32))
		binary.BigEndian.PutUint32(b[2:], uint32(v))
	} else {
		binary.LittleEndian.PutUint32(b, uint32(v))
		binary.LittleEndian.PutUint16(b[4:], uint16(v>>32))
	}
	e.pos += 6
}

func (e *Encoder) Put64(v uint64) {
	if !e.reserve(8) {
		return
	}
	if e.be {
		binary.BigEndian.PutUint64(e.buf[e.pos:], v)
	} else {
		binary.LittleEndian.PutUint64(e.buf[e.pos:], v)
	}
	e.pos += 8
}

func (e *Encoder) Put16s(arr []uint16) {
	if !e.reserve(2 * len(arr)) {
		return
	}
	b := e.buf[e.pos : e.pos+2*len(arr)]
	for i, v := range arr {
		if e.be {
			binary.BigEndian.PutUint16(b[2*i:], v)
		} else {
			binary.LittleEndian.PutUint16(b[2*i:], v)
		}
	}
	e.pos += len(b)
}

func (e *Encoder) Put32s(arr []uint32) {
	if !e.reserve(4 * len(arr)) {
		return
	}
	b := e.buf[e.pos : e.pos+4*len(arr)]
	for i, v := range arr {
		if e.be {
			binary.BigEndian.PutUint32(b[4*i:], v)
		} else {
			binary.LittleEndian.PutUint32(b[4*i:], v)
		}
	}
	e.pos += len(b)
}

func (e *Encoder) Put64s(arr []uint64) {
	if !e.reserve(8 * len(arr)) {
		return
	}
	b := e.buf[e.pos : e.pos+8*len(arr)]
	for i, v := range arr {
		if e.be {
			binary.BigEndian.PutUint64(b[8*i:], v)
		} else {
			binary.LittleEndian.PutUint64(b[8*i:], v)
		}
	}
	e.pos += len(b)
}

// PutH64 writes v sparsely: a mask byte where bit i is set when byte i of v
// (counting from the least significant) is non-zero, followed by those bytes only.
// Zero costs 1 byte, small values 2 bytes.
func (e *Encoder) PutH64(v uint64) {
	var mask byte
	var tmp [8]byte
	n := 0
	for i := 0; i < 8; i++ {
		if b := byte(v >> (8 * i)); b != 0 {
			mask |= 1 << i
			tmp[n] = b
			n++
		}
	}
	if !e.reserve(1 + n) {
		return
	}
	e.buf[e.pos] = mask
	copy(e.buf[e.pos+1:], tmp[:n])
	e.pos += 1 + n
}
