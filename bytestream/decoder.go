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
)

// Decoder reads fixed-width integers from a buffer previously filled by an Encoder
// of the same byte order. Reading the wrong byte order silently produces wrong values.
// Reads past the end record ErrShortBuffer and return zeroes.
type Decoder struct {
	buf []byte
	pos int
	be  bool
	err error
}

// NewDecoder creates decoder for buffers written by NewEncoder (little-endian)
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// NewDecoderBE creates decoder which converts big-endian fields to native values
func NewDecoderBE(buf []byte) *Decoder { return &Decoder{buf: buf, be: true} }

func (d *Decoder) avail(n int) bool {
	if d.err != nil {
		return false
	}
	if len(d.buf)-d.pos < n {
		d.err = ErrShortBuffer
		return false
	}
	return true
}

func (d *Decoder) Err() error      { return d.err }
func (d *Decoder) Pos() int        { return d.pos }
func (d *Decoder) Len() int        { return len(d.buf) }
func (d *Decoder) Remaining() int  { return len(d.buf) - d.pos }
func (d *Decoder) BigEndian() bool { return d.be }

// Reset re-targets the decoder to buf, keeping the byte order
func (d *Decoder) Reset(buf []byte) {
	d.buf, d.pos, d.err = buf, 0, nil
}

func (d *Decoder) SetPos(pos int) {
	if pos < 0 || pos > len(d.buf) {
		d.err = ErrShortBuffer
		return
	}
	d.pos = pos
}

// Skip moves the cursor n bytes forward
func (d *Decoder) Skip(n int) {
	if !d.avail(n) {
		return
	}
	d.pos += n
}

func (d *Decoder) Get8() byte {
	if !d.avail(1) {
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

// GetBytes fills dst from the stream
func (d *Decoder) GetBytes(dst []byte) {
	if !d.avail(len(dst)) {
		return
	}
	d.pos += copy(dst, d.buf[d.pos:])
}

func (d *Decoder) Get16() uint16 {
	if !d.avail(2) {
		return 0
	}
	var v uint16
	if d.be {
		v = binary.BigEndian.Uint16(d.buf[d.pos:])
	} else {
		v = binary.LittleEndian.Uint16(d.buf[d.pos:])
	}
	d.pos += 2
	return v
}

func (d *Decoder) Get24() uint32 {
	if !d.avail(3) {
		return 0
	}
	b := d.buf[d.pos : d.pos+3]
	d.pos += 3
	if d.be {
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func (d *Decoder) Get32() uint32 {
	if !d.avail(4) {
		return 0
	}
	var v uint32
	if d.be {
		v = binary.BigEndian.Uint32(d.buf[d.pos:])
	} else {
		v = binary.LittleEndian.Uint32(d.buf[d.pos:])
	}
	d.pos += 4
	return v
}

func (d *Decoder) Get48() uint64 {
	if !d.avail(6) {
		return 0
	}
	b := d.buf[d.pos : d.pos+6]
	d.pos += 6
	if d.be {
		return uint64(binary.BigEndian.Uint16(b))<<32 | uint64(binary.BigEndian.Uint32(b[2:]))
	}
	return uint64(binary.LittleEndian.Uint32(b)) | uint64(binary.LittleEndian.Uint16(b[4:]))<<32
}

func (d *Decoder) Get64() uint64 {
	if !d.avail(8) {
		return 0
	}
	var v uint64
	if d.be {
		v = binary.BigEndian.Uint64(d.buf[d.pos:])
	} else {
		v = binary.LittleEndian.Uint64(d.buf[d.pos:])
	}
	d.pos += 8
	return v
}

// Get16s reads len(dst) consecutive 16-bit values
func (d *Decoder) Get16s(dst []uint16) {
	if !d.avail(2 * len(dst)) {
		return
	}
	b := d.buf[d.pos : d.pos+2*len(dst)]
	for i := range dst {
		if d.be {
			dst[i] = binary.BigEndian.Uint16(b[2*i:])
		} else {
			dst[i] = binary.LittleEndian.Uint16(b[2*i:])
		}
	}
	d.pos += len(b)
}

func (d *Decoder) Get32s(dst []uint32) {
	if !d.avail(4 * len(dst)) {
		return
	}
	b := d.buf[d.pos : d.pos+4*len(dst)]
	for i := range dst {
		if d.be {
			dst[i] = binary.BigEndian.Uint32(b[4*i:])
		} else {
			dst[i] = binary.LittleEndian.Uint32(b[4*i:])
		}
	}
	d.pos += len(b)
}

func (d *Decoder) Get64s(dst []uint64) {
	if !d.avail(8 * len(dst)) {
		return
	}
	b := d.buf[d.pos : d.pos+8*len(dst)]
	for i := range dst {
		if d.be {
			dst[i] = binary.BigEndian.Uint64(b[8*i:])
		} else {
			dst[i] = binary.LittleEndian.Uint64(b[8*i:])
		}
	}
	d.pos += len(b)
}

// GetH64 reads a value written by Encoder.PutH64
func (d *Decoder) GetH64() uint64 {
	mask := d.Get8()
	if d.err != nil {
		return 0
	}
	var v uint64
	for i := 0; mask != 0; i, mask = i+1, mask>>1 {
		if mask&1 == 0 {
			continue
		}
		v |= uint64(d.Get8()) << (8 * i)
	}
	return v
}

// Get32OR reads len(dst) 32-bit words and ORs them into dst.
// Returns true when every word of dst became all-ones (the block is full).
func (d *Decoder) Get32OR(dst []uint32) bool {
	if !d.avail(4 * len(dst)) {
		return false
	}
	b := d.buf[d.pos : d.pos+4*len(dst)]
	d.pos += len(b)
	if wideBulk.Load() {
		return orWide(dst, b, d.be)
	}
	return orScalar(dst, b, d.be)
}

// Get32AND reads len(dst) 32-bit words and ANDs them into dst.
// Returns true when any bit of dst is still set.
func (d *Decoder) Get32AND(dst []uint32) bool {
	if !d.avail(4 * len(dst)) {
		return false
	}
	b := d.buf[d.pos : d.pos+4*len(dst)]
	d.pos += len(b)
	if wideBulk.Load() {
		return andWide(dst, b, d.be)
	}
	return andScalar(dst, b, d.be)
}
