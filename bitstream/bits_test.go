package bitstream

import (
	"math/rand"
	"testing"

	"github.com/ncbi/sra-tools-sub027/bytestream"
	"github.com/stretchr/testify/require"
)

type bitsWriter = Writer[*bytestream.Encoder]
type bitsReader = Reader[*bytestream.Decoder]

func newPair(t testing.TB, capacity int, write func(w *bitsWriter)) (*bitsReader, uint64) {
	t.Helper()
	enc := bytestream.NewEncoder(make([]byte, capacity))
	w := NewWriter(enc)
	write(w)
	n := w.Bits()
	w.Flush()
	require.NoError(t, enc.Err())
	require.Equal(t, 0, enc.Len()%4, "stream must end on a word boundary")
	return NewReader(bytestream.NewDecoder(enc.Bytes())), n
}

func TestPutGetBits(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	type item struct {
		v     uint32
		count uint
	}
	items := make([]item, 5000)
	for i := range items {
		c := uint(rnd.Intn(33))
		items[i] = item{v: rnd.Uint32() & lowMask(c), count: c}
	}
	r, total := newPair(t, 5000*4+4, func(w *bitsWriter) {
		for _, it := range items {
			// high garbage bits must be masked off
			w.PutBits(it.v|^lowMask(it.count), it.count)
		}
	})
	var expected uint64
	for _, it := range items {
		expected += uint64(it.count)
		require.Equal(t, it.v, r.GetBits(it.count))
	}
	require.Equal(t, expected, total)
	require.Equal(t, total, r.Bits())
}

func TestSingleBits(t *testing.T) {
	pattern := []uint32{1, 0, 0, 1, 1, 1, 0, 1}
	r, total := newPair(t, 64, func(w *bitsWriter) {
		for i := 0; i < 40; i++ {
			if pattern[i%len(pattern)] == 1 {
				w.PutBit(1)
			} else {
				w.PutZeroBit()
			}
		}
	})
	require.Equal(t, uint64(40), total)
	for i := 0; i < 40; i++ {
		require.Equal(t, pattern[i%len(pattern)], r.GetBit(), "bit %d", i)
	}
}

func TestZeroRuns(t *testing.T) {
	runs := []uint{0, 1, 5, 31, 32, 33, 63, 64, 65, 100, 200, 31}
	r, _ := newPair(t, 256, func(w *bitsWriter) {
		w.PutBits(0x5, 3) // start unaligned
		for _, n := range runs {
			w.PutZeroBits(n)
		}
		w.PutBits(0xABC, 12)
	})
	require.Equal(t, uint32(0x5), r.GetBits(3))
	for _, n := range runs {
		require.Equal(t, n, r.countZeroBits(1024))
	}
	require.Equal(t, uint32(0xABC), r.GetBits(12))
}

func TestZeroRunOnExhaustedInput(t *testing.T) {
	dec := bytestream.NewDecoder(make([]byte, 8))
	r := NewReader(dec)
	require.Equal(t, uint(31), r.countZeroBits(31))
	require.Equal(t, uint32(1<<31), r.Gamma()&(1<<31))
	require.ErrorIs(t, dec.Err(), bytestream.ErrShortBuffer)
}

func TestFlush(t *testing.T) {
	enc := bytestream.NewEncoder(make([]byte, 16))
	w := NewWriter(enc)
	w.Flush()
	require.Equal(t, 0, enc.Len())
	w.PutBits(0xFF, 8)
	w.FlushIfFull()
	require.Equal(t, 0, enc.Len())
	w.Flush()
	w.Flush()
	require.Equal(t, 4, enc.Len())
	w.PutBits(0xFFFFFFFF, 32)
	require.Equal(t, 8, enc.Len())
	w.Flush()
	require.Equal(t, 8, enc.Len())
}

func TestNeutralOrder(t *testing.T) {
	for _, be := range []bool{false, true} {
		buf := make([]byte, 64)
		enc := bytestream.NewEncoder(buf)
		if be {
			enc = bytestream.NewEncoderBE(buf)
		}
		w := NewWriter(enc)
		w.PutBit(1)
		w.Put16NO(0xBEEF)
		w.Put24NO(0xABCDEF)
		w.Put32NO(0xDEADBEEF)
		w.Put64NO(0x0123456789ABCDEF)
		w.Flush()

		dec := bytestream.NewDecoder(enc.Bytes())
		if be {
			dec = bytestream.NewDecoderBE(enc.Bytes())
		}
		r := NewReader(dec)
		require.Equal(t, uint32(1), r.GetBit())
		require.Equal(t, uint16(0xBEEF), r.Get16NO())
		require.Equal(t, uint32(0xABCDEF), r.Get24NO())
		require.Equal(t, uint32(0xDEADBEEF), r.Get32NO())
		require.Equal(t, uint64(0x0123456789ABCDEF), r.Get64NO())
	}
}
