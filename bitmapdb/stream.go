package bitmapdb

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/ncbi/sra-tools-sub027/bytestream"
)

type BitmapStream struct {
	bm *roaring.Bitmap
	it roaring.IntPeekable
}

func NewBitmapStream(bm *roaring.Bitmap) *BitmapStream {
	return &BitmapStream{bm: bm, it: bm.Iterator()}
}

// OpenBitmapStream deserializes buf and streams its values in ascending order
func OpenBitmapStream(s *Serializer, buf []byte) (*BitmapStream, error) {
	bm, err := s.Deserialize(bytestream.NewDecoder(buf))
	if err != nil {
		return nil, err
	}
	return NewBitmapStream(bm), nil
}

func (it *BitmapStream) HasNext() bool                      { return it.it.HasNext() }
func (it *BitmapStream) Close()                             {}
func (it *BitmapStream) Next() (uint32, error)              { return it.it.Next(), nil }
func (it *BitmapStream) ToBitmap() (*roaring.Bitmap, error) { return it.bm, nil }
