package gapcodec

import (
	"fmt"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/ncbi/sra-tools-sub027/bytestream"
	"github.com/ncbi/sra-tools-sub027/common/dbg"
)

func newCodec(t testing.TB) *Codec {
	t.Helper()
	c, err := New(DefaultConfig(), log.New())
	require.NoError(t, err)
	return c
}

func encode(t testing.TB, c *Codec, arr []uint16, opts EncodeOptions) []byte {
	t.Helper()
	enc := bytestream.NewEncoder(make([]byte, 1<<20))
	require.NoError(t, c.EncodeArray(enc, arr, opts))
	return enc.Bytes()
}

// roundTrip checks DecodeArray, SkipArray and DecodeToBlock against arr
func roundTrip(t testing.TB, c *Codec, arr []uint16, opts EncodeOptions) Header {
	t.Helper()
	buf := encode(t, c, arr, opts)
	var dopts DecodeOptions
	if opts.ExternalSize && len(arr) > 1 {
		dopts.Size = len(arr)
	}

	dec := bytestream.NewDecoder(buf)
	got, h, err := c.DecodeArray(dec, nil, dopts)
	require.NoError(t, err)
	require.Equal(t, len(buf), dec.Pos())
	if len(arr) == 0 {
		require.Empty(t, got)
	} else {
		require.Equal(t, arr, got)
	}
	require.Equal(t, opts.Ones, h.Base().Ones)
	require.Equal(t, opts.EOC, h.Base().EOC)

	dec.Reset(buf)
	skipped, err := c.SkipArray(dec, dopts)
	require.NoError(t, err)
	require.Equal(t, h, skipped)
	require.Equal(t, len(buf), dec.Pos())

	dec.Reset(buf)
	block := make([]uint32, 2048)
	_, err = c.DecodeToBlock(dec, block, dopts)
	require.NoError(t, err)
	ones := 0
	for _, w := range block {
		ones += bits.OnesCount32(w)
	}
	require.Equal(t, len(arr), ones)
	for _, v := range arr {
		require.NotZero(t, block[v>>5]&(1<<(v&31)), "bit %d", v)
	}
	return h
}

// randomArray builds an ascending array of at most n values with deltas in [1,maxDelta]
func randomArray(rnd *rand.Rand, n, maxDelta int) []uint16 {
	arr := make([]uint16, 0, n)
	v := rnd.Intn(maxDelta)
	for len(arr) < n && v < maxArrayLen {
		arr = append(arr, uint16(v))
		v += 1 + rnd.Intn(maxDelta)
	}
	return arr
}

// regionalArray has tight deltas in its first half and wide ones in its second
func regionalArray(n int) []uint16 {
	arr := make([]uint16, n)
	for i := 1; i < n; i++ {
		d := 1 + i%2
		if i >= n/2 {
			d += 49
		}
		arr[i] = arr[i-1] + uint16(d)
	}
	return arr
}

func TestMain(m *testing.M) {
	prev := dbg.SetAssert(true)
	defer dbg.SetAssert(prev)
	m.Run()
}

func TestEmptyArray(t *testing.T) {
	c := newCodec(t)
	buf := encode(t, c, nil, EncodeOptions{})
	require.Len(t, buf, 1)
	require.Equal(t, EmptyHeader{}, roundTrip(t, c, nil, EncodeOptions{}))
	require.Equal(t, EmptyHeader{Common{Ones: true, EOC: true}}, roundTrip(t, c, []uint16{}, EncodeOptions{Ones: true, EOC: true}))
}

func TestSingleValue(t *testing.T) {
	c := newCodec(t)
	require.Len(t, encode(t, c, []uint16{0}, EncodeOptions{}), 1)
	require.Equal(t, SingleHeader{Zero: true}, roundTrip(t, c, []uint16{0}, EncodeOptions{}))

	require.Equal(t, SingleHeader{GammaValue: true}, roundTrip(t, c, []uint16{15}, EncodeOptions{}))
	require.Equal(t, SingleHeader{GammaValue: true}, roundTrip(t, c, []uint16{1}, EncodeOptions{}))
	require.Equal(t, SingleHeader{}, roundTrip(t, c, []uint16{16}, EncodeOptions{}))
	require.Equal(t, SingleHeader{Common: Common{Ones: true}}, roundTrip(t, c, []uint16{65535}, EncodeOptions{Ones: true}))
	require.Len(t, encode(t, c, []uint16{15}, EncodeOptions{}), 5)
}

func TestThreeValues(t *testing.T) {
	c := newCodec(t)
	arr := []uint16{10, 20, 30}
	h := roundTrip(t, c, arr, EncodeOptions{})
	require.Equal(t, SchemeBIC, h.Scheme())

	h = roundTrip(t, c, arr, EncodeOptions{Force: ForceDeltaGamma})
	require.Equal(t, DeltaGammaHeader{GammaSize: true}, h)
	require.Equal(t, 9, c.Last().MinDelta)

	h = roundTrip(t, c, arr, EncodeOptions{Force: ForceGamma})
	require.Equal(t, GammaHeader{GammaSize: true}, h)
}

func TestZeroCorrection(t *testing.T) {
	c := newCodec(t)
	arr := []uint16{0, 1, 2, 40, 41}
	require.Equal(t, GammaHeader{GammaSize: true, ZeroCorrected: true}, roundTrip(t, c, arr, EncodeOptions{Force: ForceGamma}))
	require.Equal(t, DeltaGammaHeader{GammaSize: true, ZeroCorrected: true, MinZero: true}, roundTrip(t, c, arr, EncodeOptions{Force: ForceDeltaGamma}))
}

func TestMinMaxForClusteredArray(t *testing.T) {
	c := newCodec(t)
	arr := make([]uint16, 20)
	for i := range arr {
		arr[i] = 30000 + uint16(i)*3
	}
	h := roundTrip(t, c, arr, EncodeOptions{})
	require.Equal(t, BICHeader{GammaSize: true, MinMax: true}, h)
	require.Equal(t, 2, c.Last().MinDelta)

	// same cluster, too short to pay for the stored bounds
	h = roundTrip(t, c, arr[:10], EncodeOptions{})
	require.False(t, h.(BICHeader).MinMax)

	// bounds already at the extremes of the range waste nothing, so the
	// full-range array with both extremes keeps the plain BIC range
	wide := append([]uint16{0}, arr...)
	wide = append(wide, 65535)
	h = roundTrip(t, c, wide, EncodeOptions{})
	require.False(t, h.(BICHeader).MinMax)
}

func TestStrictAscentAcrossWidths(t *testing.T) {
	require.True(t, isStrictlyAscending([]uint16{1, 2, 65535}))
	require.False(t, isStrictlyAscending([]uint16{1, 1}))
	require.True(t, isStrictlyAscending([]uint32(nil)))
	require.True(t, isStrictlyAscending([]uint32{1, 70000, 1 << 31}))
	require.False(t, isStrictlyAscending([]uint32{70000, 4464}))

	// WDR extra sums are u32 and checked before BIC coding
	require.True(t, dbg.AssertEnabled())
	c := newCodec(t)
	roundTrip(t, c, regionalArray(1000), EncodeOptions{Ones: true})
	st := c.Last()
	require.NotZero(t, st.WDRWindow)
	require.Len(t, c.prefix, st.WDRFlagged)
	require.True(t, isStrictlyAscending(c.prefix))
}

func TestGlobalMinimumDelta(t *testing.T) {
	c := newCodec(t)
	arr := make([]uint16, 200)
	for i := range arr {
		arr[i] = uint16(i * 100)
	}
	h := roundTrip(t, c, arr, EncodeOptions{})
	require.False(t, h.(BICHeader).MinZero)
	require.Equal(t, 99, c.Last().MinDelta)
	require.Zero(t, c.Last().WDRWindow)

	// two values carry no global minimum
	h = roundTrip(t, c, []uint16{100, 5000}, EncodeOptions{})
	require.True(t, h.(BICHeader).MinZero)
}

func TestWDRSelected(t *testing.T) {
	c := newCodec(t)
	arr := regionalArray(1000)
	roundTrip(t, c, arr, EncodeOptions{Ones: true})
	st := c.Last()
	require.Equal(t, SchemeBIC, st.Scheme)
	require.NotZero(t, st.WDRWindow)
	require.GreaterOrEqual(t, st.WDRFlagged, DefaultConfig().WDRMinWindows)
	require.Equal(t, windowCount(len(arr), st.WDRWindow), st.WDRWindows)

	cfg := DefaultConfig()
	cfg.WDRWindowSizes = nil
	plain, err := New(cfg, nil)
	require.NoError(t, err)
	roundTrip(t, plain, arr, EncodeOptions{Ones: true})
	require.Zero(t, plain.Last().WDRWindow)
	require.Less(t, st.Bytes, plain.Last().Bytes)
}

func TestWDRRejected(t *testing.T) {
	c := newCodec(t)
	arr := make([]uint16, 1000)
	for i := range arr {
		arr[i] = uint16(i * 7)
	}
	roundTrip(t, c, arr, EncodeOptions{})
	require.Zero(t, c.Last().WDRWindow)
	require.Equal(t, 6, c.Last().MinDelta)

	// every window qualifies but the saving is below the threshold
	cfg := DefaultConfig()
	cfg.WDRMinSavings = 1 << 20
	strict, err := New(cfg, nil)
	require.NoError(t, err)
	roundTrip(t, strict, regionalArray(1000), EncodeOptions{})
	require.Zero(t, strict.Last().WDRWindow)

	// fewer windows than the cutoff
	cfg = DefaultConfig()
	cfg.WDRMinWindows = 1000
	strict, err = New(cfg, nil)
	require.NoError(t, err)
	roundTrip(t, strict, regionalArray(1000), EncodeOptions{})
	require.Zero(t, strict.Last().WDRWindow)
}

func TestCompactExpand(t *testing.T) {
	c := newCodec(t)
	arr := regionalArray(777)
	md := minDelta(arr)
	plan := c.planWDR(arr, md)
	require.NotZero(t, plan.window)

	packed := make([]uint16, len(arr))
	compact(packed, arr, md-1, plan.window, c.extra)
	require.True(t, isStrictlyAscending(packed))
	require.Less(t, int(packed[len(packed)-1]), int(arr[len(arr)-1])/4)

	expand(packed, md-1, plan.window, c.extra)
	require.Equal(t, arr, packed)
}

func TestSizeField(t *testing.T) {
	c := newCodec(t)
	rnd := rand.New(rand.NewSource(7))
	for _, tt := range []struct {
		size  int
		gamma bool
	}{{2, true}, {256, true}, {257, false}, {300, false}, {1023, false}, {2000, true}, {30000, false}} {
		arr := randomArray(rnd, tt.size, 2)
		require.Len(t, arr, tt.size)
		h := roundTrip(t, c, arr, EncodeOptions{})
		require.Equal(t, tt.gamma, h.(BICHeader).GammaSize, "size %d", tt.size)
	}
}

func TestExternalSize(t *testing.T) {
	c := newCodec(t)
	arr := []uint16{3, 9, 27, 81, 243}
	with := encode(t, c, arr, EncodeOptions{})
	without := encode(t, c, arr, EncodeOptions{ExternalSize: true})
	require.LessOrEqual(t, len(without), len(with))
	for _, force := range []ForceCode{ForceNone, ForceGamma, ForceDeltaGamma} {
		roundTrip(t, c, arr, EncodeOptions{ExternalSize: true, Force: force})
	}
}

func TestRoundTripCombinations(t *testing.T) {
	c := newCodec(t)
	rnd := rand.New(rand.NewSource(42))
	sizes := []int{0, 1, 2, 3, 10, 11, 64, 255, 256, 257, 1000, 4000}
	deltas := []int{1, 3, 20, 300}
	for _, force := range []ForceCode{ForceNone, ForceGamma, ForceDeltaGamma} {
		for _, ones := range []bool{false, true} {
			for _, eoc := range []bool{false, true} {
				for _, sz := range sizes {
					for _, md := range deltas {
						arr := randomArray(rnd, sz, md)
						opts := EncodeOptions{Ones: ones, EOC: eoc, Force: force}
						t.Run(fmt.Sprintf("force=%d,ones=%t,eoc=%t,sz=%d,delta=%d", force, ones, eoc, len(arr), md), func(t *testing.T) {
							roundTrip(t, c, arr, opts)
						})
					}
				}
			}
		}
	}
}

func TestExtremeArrays(t *testing.T) {
	c := newCodec(t)
	full := make([]uint16, maxArrayLen-1)
	for i := range full {
		full[i] = uint16(i + 1)
	}
	for _, force := range []ForceCode{ForceNone, ForceGamma, ForceDeltaGamma} {
		roundTrip(t, c, full, EncodeOptions{Force: force})
		roundTrip(t, c, full[:len(full)-1], EncodeOptions{Force: force})
		roundTrip(t, c, []uint16{0, 65535}, EncodeOptions{Force: force})
		roundTrip(t, c, []uint16{65534, 65535}, EncodeOptions{Force: force})
	}
	require.Zero(t, c.Last().MinDelta)
}

func TestSequenceOfArrays(t *testing.T) {
	c := newCodec(t)
	rnd := rand.New(rand.NewSource(1))
	var arrays [][]uint16
	enc := bytestream.NewEncoder(make([]byte, 1<<18))
	for i := 0; i < 50; i++ {
		arr := randomArray(rnd, rnd.Intn(300), 1+rnd.Intn(200))
		arrays = append(arrays, arr)
		require.NoError(t, c.EncodeArray(enc, arr, EncodeOptions{Force: ForceCode(i % 3), EOC: i == 49}))
	}

	dec := bytestream.NewDecoder(enc.Bytes())
	var dst []uint16
	for i, want := range arrays {
		got, h, err := c.DecodeArray(dec, dst, DecodeOptions{})
		require.NoError(t, err)
		require.Equal(t, len(want), len(got), "array %d", i)
		for j := range want {
			require.Equal(t, want[j], got[j], "array %d value %d", i, j)
		}
		require.Equal(t, i == len(arrays)-1, h.Base().EOC)
		dst = got
	}
	require.Zero(t, dec.Remaining())

	dec.Reset(enc.Bytes())
	for range arrays {
		_, err := c.SkipArray(dec, DecodeOptions{})
		require.NoError(t, err)
	}
	require.Zero(t, dec.Remaining())
}

func TestEncodeErrors(t *testing.T) {
	c := newCodec(t)
	enc := bytestream.NewEncoder(make([]byte, 64))
	require.ErrorIs(t, c.EncodeArray(enc, make([]uint16, maxArrayLen), EncodeOptions{}), ErrArrayTooLong)
	require.ErrorIs(t, c.EncodeArray(enc, []uint16{1, 2}, EncodeOptions{Force: 3}), ErrBadForceCode)
	require.Zero(t, enc.Len())

	arr := randomArray(rand.New(rand.NewSource(3)), 500, 100)
	require.ErrorIs(t, c.EncodeArray(enc, arr, EncodeOptions{}), bytestream.ErrShortBuffer)

	require.PanicsWithError(t, "assertion failed: gapcodec: array is not strictly ascending", func() {
		_ = c.EncodeArray(bytestream.NewEncoder(make([]byte, 64)), []uint16{5, 5}, EncodeOptions{})
	})
}

func TestDecodeTruncated(t *testing.T) {
	c := newCodec(t)
	arr := randomArray(rand.New(rand.NewSource(5)), 300, 50)
	for _, force := range []ForceCode{ForceNone, ForceGamma, ForceDeltaGamma} {
		buf := encode(t, c, arr, EncodeOptions{Force: force})
		for _, cut := range []int{0, 1, len(buf) / 2, len(buf) - 1} {
			_, _, err := c.DecodeArray(bytestream.NewDecoder(buf[:cut]), nil, DecodeOptions{})
			require.ErrorIs(t, err, bytestream.ErrShortBuffer, "force %d cut %d", force, cut)
			_, err = c.SkipArray(bytestream.NewDecoder(buf[:cut]), DecodeOptions{})
			require.ErrorIs(t, err, bytestream.ErrShortBuffer, "force %d cut %d", force, cut)
		}
	}
	_, _, err := c.DecodeArray(bytestream.NewDecoder([]byte{0x01}), nil, DecodeOptions{Size: 1 << 16})
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestTrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trace = true
	logger := log.New()
	var records []*log.Record
	logger.SetHandler(log.FuncHandler(func(r *log.Record) error {
		records = append(records, r)
		return nil
	}))
	c, err := New(cfg, logger)
	require.NoError(t, err)
	roundTrip(t, c, regionalArray(500), EncodeOptions{})
	require.Len(t, records, 1)
	require.Equal(t, "[gapcodec] encoded", records[0].Msg)
	require.Equal(t, log.LvlTrace, records[0].Lvl)
}

func FuzzEncodeArray(f *testing.F) {
	f.Add([]byte{}, uint8(0))
	f.Add([]byte{0}, uint8(1))
	f.Add([]byte{9, 9, 9, 200, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0}, uint8(2))
	f.Fuzz(func(t *testing.T, deltas []byte, mode uint8) {
		c := newCodec(t)
		arr := make([]uint16, 0, len(deltas))
		v := 0
		for i, d := range deltas {
			if i > 0 {
				v += 1 + int(d)*int(1+mode%7)
			}
			if v >= maxArrayLen {
				break
			}
			arr = append(arr, uint16(v))
		}
		roundTrip(t, c, arr, EncodeOptions{Force: ForceCode(mode % 3), Ones: mode&8 != 0, EOC: mode&16 != 0})
	})
}

func BenchmarkEncodeArray(b *testing.B) {
	c := newCodec(b)
	arr := randomArray(rand.New(rand.NewSource(1)), 4000, 15)
	enc := bytestream.NewEncoder(make([]byte, 1<<16))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enc.Reset()
		if err := c.EncodeArray(enc, arr, EncodeOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeArray(b *testing.B) {
	c := newCodec(b)
	arr := randomArray(rand.New(rand.NewSource(1)), 4000, 15)
	buf := encode(b, c, arr, EncodeOptions{})
	dec := bytestream.NewDecoder(buf)
	dst := make([]uint16, len(arr))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dec.Reset(buf)
		if _, _, err := c.DecodeArray(dec, dst, DecodeOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
