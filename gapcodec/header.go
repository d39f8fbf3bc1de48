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

package gapcodec

// Flag byte layout
//
//	bits 0-1  scheme
//	bit 2     reserved, always 0
//	bit 3     size is Gamma coded (single value: value is Gamma coded)
//	bit 4     array of ones (caller hint)
//	bit 5     end of chain (caller hint)
//	bit 6     global minimum is zero (arrays) / value is zero (single value)
//	bit 7     min/max stored (BIC) / no-op (empty) / zero correction (Gamma, delta-Gamma)
//
// Bits 6 and 7 mean different things per scheme, so the byte is never interpreted
// directly: ParseHeader turns it into one of the typed headers below.
const (
	schemeMask    = 0x03
	flagGammaSize = 1 << 3
	flagOnes      = 1 << 4
	flagEOC       = 1 << 5
	flagBit6      = 1 << 6
	flagBit7      = 1 << 7
)

type Scheme uint8

const (
	SchemeDeltaGamma Scheme = 0b00
	SchemeBIC        Scheme = 0b01
	SchemeGamma      Scheme = 0b10
	SchemeSingle     Scheme = 0b11 // single value, empty array
)

func (s Scheme) String() string {
	switch s {
	case SchemeDeltaGamma:
		return "delta-gamma"
	case SchemeBIC:
		return "bic"
	case SchemeGamma:
		return "gamma"
	case SchemeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Common carries the caller hints every scheme transports untouched
type Common struct {
	Ones bool // array lists set bits (as opposed to cleared bits)
	EOC  bool // last array of a chain
}

func (c Common) Base() Common { return c }

func (c Common) bits() byte {
	var b byte
	if c.Ones {
		b |= flagOnes
	}
	if c.EOC {
		b |= flagEOC
	}
	return b
}

func flagIf(cond bool, flag byte) byte {
	if cond {
		return flag
	}
	return 0
}

// Header is the decoded flag byte: one of EmptyHeader, SingleHeader, GammaHeader,
// DeltaGammaHeader, BICHeader.
type Header interface {
	Scheme() Scheme
	Base() Common
	Byte() byte
}

type EmptyHeader struct {
	Common
}

type SingleHeader struct {
	Common
	Zero       bool // value is 0, nothing follows
	GammaValue bool // value < 16 follows as Gamma, otherwise 16 neutral bits
}

type GammaHeader struct {
	Common
	GammaSize     bool
	ZeroCorrected bool // first element is 0, every value is coded +1
}

type DeltaGammaHeader struct {
	Common
	GammaSize     bool
	ZeroCorrected bool // first element is 0, it is coded +1
	MinZero       bool // minimum delta is 1, nothing subtracted
}

type BICHeader struct {
	Common
	GammaSize bool
	MinZero   bool // minimum delta is 1, nothing subtracted
	MinMax    bool // first and last values stored, BIC covers the interior only
}

func (EmptyHeader) Scheme() Scheme      { return SchemeSingle }
func (SingleHeader) Scheme() Scheme     { return SchemeSingle }
func (GammaHeader) Scheme() Scheme      { return SchemeGamma }
func (DeltaGammaHeader) Scheme() Scheme { return SchemeDeltaGamma }
func (BICHeader) Scheme() Scheme        { return SchemeBIC }

func (h EmptyHeader) Byte() byte {
	return byte(SchemeSingle) | h.bits() | flagBit7
}

func (h SingleHeader) Byte() byte {
	return byte(SchemeSingle) | h.bits() | flagIf(h.Zero, flagBit6) | flagIf(h.GammaValue, flagGammaSize)
}

func (h GammaHeader) Byte() byte {
	return byte(SchemeGamma) | h.bits() | flagIf(h.GammaSize, flagGammaSize) | flagIf(h.ZeroCorrected, flagBit7)
}

func (h DeltaGammaHeader) Byte() byte {
	return byte(SchemeDeltaGamma) | h.bits() | flagIf(h.GammaSize, flagGammaSize) |
		flagIf(h.MinZero, flagBit6) | flagIf(h.ZeroCorrected, flagBit7)
}

func (h BICHeader) Byte() byte {
	return byte(SchemeBIC) | h.bits() | flagIf(h.GammaSize, flagGammaSize) |
		flagIf(h.MinZero, flagBit6) | flagIf(h.MinMax, flagBit7)
}

// ParseHeader interprets a flag byte written by EncodeArray
func ParseHeader(b byte) Header {
	c := Common{Ones: b&flagOnes != 0, EOC: b&flagEOC != 0}
	gammaSize, bit6, bit7 := b&flagGammaSize != 0, b&flagBit6 != 0, b&flagBit7 != 0
	switch Scheme(b & schemeMask) {
	case SchemeSingle:
		if bit7 {
			return EmptyHeader{Common: c}
		}
		return SingleHeader{Common: c, Zero: bit6, GammaValue: gammaSize}
	case SchemeGamma:
		return GammaHeader{Common: c, GammaSize: gammaSize, ZeroCorrected: bit7}
	case SchemeDeltaGamma:
		return DeltaGammaHeader{Common: c, GammaSize: gammaSize, MinZero: bit6, ZeroCorrected: bit7}
	default:
		return BICHeader{Common: c, GammaSize: gammaSize, MinZero: bit6, MinMax: bit7}
	}
}
