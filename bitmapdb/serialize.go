package bitmapdb

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/RoaringBitmap/roaring"
	"github.com/ledgerwatch/log/v3"

	"github.com/ncbi/sra-tools-sub027/bytestream"
	"github.com/ncbi/sra-tools-sub027/common/debug"
	"github.com/ncbi/sra-tools-sub027/gapcodec"
)

// Serialized layout:
//
//	H64(chunks) H64(cardinality)
//	per chunk of 65536 values: 16-bit high key, 8-bit block type, payload
//
// blockArray payloads are gap arrays (positions of set bits, or of cleared bits
// when the chunk is more than half full, told apart by the Ones hint); the last
// chunk carries the EOC hint. A chunk whose array would not be smaller than the
// plain 8KB bit-block is written as blockBits.

const (
	chunkBits  = 1 << 16
	blockWords = chunkBits / 32
)

type blockType uint8

const (
	blockArray blockType = 1
	blockBits  blockType = 2
)

var (
	ErrBadBlockType = errors.New("bitmapdb: unknown block type")
	ErrCorrupt      = errors.New("bitmapdb: corrupt bitmap")
)

// Serializer converts roaring bitmaps to and from the gap array form.
// Not safe for concurrent use, same as the codec it wraps.
type Serializer struct {
	codec  *gapcodec.Codec
	logger log.Logger

	vals  []uint16
	inv   []uint16
	wide  []uint32
	block []uint32
	tmp   []uint32
	trial []byte
}

func NewSerializer(codec *gapcodec.Codec, logger log.Logger) *Serializer {
	if logger == nil {
		logger = log.New()
	}
	return &Serializer{
		codec:  codec,
		logger: logger,
		block:  make([]uint32, blockWords),
		tmp:    make([]uint32, blockWords),
		trial:  make([]byte, 4*blockWords),
	}
}

// countChunks returns the number of distinct high 16-bit keys of bm
func countChunks(bm *roaring.Bitmap) uint64 {
	var n uint64
	it := bm.Iterator()
	for it.HasNext() {
		key := it.Next() >> 16
		n++
		if key == 0xFFFF {
			break
		}
		it.AdvanceIfNeeded((key + 1) << 16)
	}
	return n
}

func (s *Serializer) Serialize(enc *bytestream.Encoder, bm *roaring.Bitmap) error {
	start := enc.Pos()
	chunks := countChunks(bm)
	enc.PutH64(chunks)
	enc.PutH64(bm.GetCardinality())

	var done uint64
	var raw int
	it := bm.Iterator()
	for it.HasNext() {
		key := uint16(it.PeekNext() >> 16)
		s.vals = s.vals[:0]
		for it.HasNext() && uint16(it.PeekNext()>>16) == key {
			s.vals = append(s.vals, uint16(it.Next()))
		}
		done++
		isRaw, err := s.putChunk(enc, key, s.vals, done == chunks)
		if err != nil {
			return fmt.Errorf("bitmapdb: chunk %d: %w", key, err)
		}
		if isRaw {
			raw++
		}
	}
	if err := enc.Err(); err != nil {
		return fmt.Errorf("bitmapdb: serializing %d chunks: %w", chunks, err)
	}
	s.logger.Debug("[bitmapdb] serialized", "chunks", chunks, "raw", raw, "cardinality", bm.GetCardinality(), "bytes", enc.Pos()-start)
	return nil
}

func (s *Serializer) putChunk(enc *bytestream.Encoder, key uint16, vals []uint16, last bool) (raw bool, err error) {
	enc.Put16(key)
	opts := gapcodec.EncodeOptions{Ones: true, EOC: last}
	arr := vals
	if len(vals) > chunkBits/2 {
		s.inv = invert(s.inv[:0], vals)
		arr, opts.Ones = s.inv, false
	}

	var trial *bytestream.Encoder
	if enc.BigEndian() {
		trial = bytestream.NewEncoderBE(s.trial)
	} else {
		trial = bytestream.NewEncoder(s.trial)
	}
	err = s.codec.EncodeArray(trial, arr, opts)
	switch {
	case err == nil:
		enc.Put8(byte(blockArray))
		enc.PutBytes(trial.Bytes())
		return false, nil
	case errors.Is(err, bytestream.ErrShortBuffer):
		zero32(s.block)
		for _, v := range vals {
			s.block[v>>5] |= 1 << (v & 31)
		}
		enc.Put8(byte(blockBits))
		enc.Put32s(s.block)
		return true, nil
	default:
		return false, err
	}
}

// invert appends to dst the values of [0,65536) missing from the ascending vals
func invert(dst, vals []uint16) []uint16 {
	next := 0
	for _, v := range vals {
		for ; next < int(v); next++ {
			dst = append(dst, uint16(next))
		}
		next = int(v) + 1
	}
	for ; next < chunkBits; next++ {
		dst = append(dst, uint16(next))
	}
	return dst
}

// Deserialize reads a bitmap written by Serialize
func (s *Serializer) Deserialize(dec *bytestream.Decoder) (*roaring.Bitmap, error) {
	bm := roaring.New()
	card, err := s.DeserializeOr(dec, bm)
	if err != nil {
		return nil, err
	}
	if got := bm.GetCardinality(); got != card {
		return nil, fmt.Errorf("%w: cardinality %d, header says %d", ErrCorrupt, got, card)
	}
	return bm, nil
}

// DeserializeOr adds the serialized bitmap to bm and returns its cardinality
// as recorded by Serialize
func (s *Serializer) DeserializeOr(dec *bytestream.Decoder, bm *roaring.Bitmap) (card uint64, err error) {
	defer debug.Recover(&err)
	err = s.walk(dec, func(key uint16, typ blockType) error {
		base := uint32(key) << 16
		switch typ {
		case blockBits:
			s.chunkBlock(bm, key, s.block)
			if dec.Get32OR(s.block) {
				bm.AddRange(uint64(base), uint64(base)+chunkBits)
				return nil
			}
			s.addBlock(bm, base, s.block)
		case blockArray:
			vals, h, err := s.codec.DecodeArray(dec, s.vals, gapcodec.DecodeOptions{})
			if err != nil {
				return err
			}
			s.vals = vals
			if h.Base().Ones {
				s.wide = s.wide[:0]
				for _, v := range vals {
					s.wide = append(s.wide, base|uint32(v))
				}
				bm.AddMany(s.wide)
				return nil
			}
			if len(vals) == 0 {
				bm.AddRange(uint64(base), uint64(base)+chunkBits)
				return nil
			}
			fill32(s.block)
			for _, v := range vals {
				s.block[v>>5] &^= 1 << (v & 31)
			}
			s.addBlock(bm, base, s.block)
		}
		return nil
	}, &card)
	return card, err
}

// DeserializeAnd returns the intersection of bm and the serialized bitmap,
// bm is left untouched
func (s *Serializer) DeserializeAnd(dec *bytestream.Decoder, bm *roaring.Bitmap) (res *roaring.Bitmap, err error) {
	defer debug.Recover(&err)
	res = roaring.New()
	var card uint64
	err = s.walk(dec, func(key uint16, typ blockType) error {
		base := uint32(key) << 16
		s.chunkBlock(bm, key, s.block)
		switch typ {
		case blockBits:
			if !dec.Get32AND(s.block) {
				return nil
			}
		case blockArray:
			zero32(s.tmp)
			h, err := s.codec.DecodeToBlock(dec, s.tmp, gapcodec.DecodeOptions{})
			if err != nil {
				return err
			}
			if !h.Base().Ones {
				for i := range s.tmp {
					s.tmp[i] = ^s.tmp[i]
				}
			}
			for i := range s.block {
				s.block[i] &= s.tmp[i]
			}
		}
		s.addBlock(res, base, s.block)
		return nil
	}, &card)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// walk reads the header and hands every chunk to fn positioned at its payload
func (s *Serializer) walk(dec *bytestream.Decoder, fn func(key uint16, typ blockType) error, card *uint64) error {
	chunks := dec.GetH64()
	*card = dec.GetH64()
	if err := dec.Err(); err != nil {
		return fmt.Errorf("bitmapdb: reading header: %w", err)
	}
	if chunks > chunkBits {
		return fmt.Errorf("%w: %d chunks", ErrCorrupt, chunks)
	}
	for i := uint64(0); i < chunks; i++ {
		key := dec.Get16()
		typ := blockType(dec.Get8())
		if err := dec.Err(); err != nil {
			return fmt.Errorf("bitmapdb: chunk %d of %d: %w", i, chunks, err)
		}
		if typ != blockArray && typ != blockBits {
			return fmt.Errorf("%w: %d in chunk %d", ErrBadBlockType, typ, key)
		}
		if err := fn(key, typ); err != nil {
			return fmt.Errorf("bitmapdb: chunk %d: %w", key, err)
		}
		if err := dec.Err(); err != nil {
			return fmt.Errorf("bitmapdb: chunk %d: %w", key, err)
		}
	}
	return nil
}

// chunkBlock fills block with the bits bm has in chunk key
func (s *Serializer) chunkBlock(bm *roaring.Bitmap, key uint16, block []uint32) {
	zero32(block)
	base := uint32(key) << 16
	it := bm.Iterator()
	it.AdvanceIfNeeded(base)
	for it.HasNext() {
		v := it.PeekNext()
		if v>>16 != uint32(key) {
			return
		}
		it.Next()
		block[(v&0xFFFF)>>5] |= 1 << (v & 31)
	}
}

func (s *Serializer) addBlock(bm *roaring.Bitmap, base uint32, block []uint32) {
	s.wide = s.wide[:0]
	for wi, w := range block {
		for w != 0 {
			s.wide = append(s.wide, base|uint32(wi*32+bits.TrailingZeros32(w)))
			w &= w - 1
		}
	}
	bm.AddMany(s.wide)
}

func zero32(b []uint32) {
	for i := range b {
		b[i] = 0
	}
}

func fill32(b []uint32) {
	for i := range b {
		b[i] = ^uint32(0)
	}
}
