package gapcodec

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/ncbi/sra-tools-sub027/bitstream"
	"github.com/ncbi/sra-tools-sub027/common/dbg"
)

// Window delta-range.
//
// The sz-1 deltas of an array are cut into windows of w consecutive deltas: window k
// covers the deltas ending at arr[k*w+1 .. (k+1)*w]. Each window whose smallest delta
// is larger than the global minimum delta md by extra(k) > 0 is flagged, and extra(k)
// is subtracted from every delta of the window on top of the global minimum. BIC then
// codes a much narrower array. The side stream records w, the flagged windows and
// their extras:
//
//	Gamma(w) Gamma(nf) BICcm(flagged indices in [0,nw-1])
//	Gamma(total) BICcm32(prefix sums of extras except the last, in [1,total-1])
//
// Extras are always >= 1 so their prefix sums are strictly ascending and fit BIC.

type wdrPlan struct {
	window  int // deltas per window, 0 when WDR is off
	windows int // nw
	flagged int // nf
	total   int // sum of extras of flagged windows
	savings float64
}

func windowCount(sz, window int) int { return (sz - 1 + window - 1) / window }

// bicCost estimates how many bits BIC needs for sz distinct values spread over
// span+1 slots. Only used to compare alternatives, never to size buffers.
func bicCost(sz, span int) float64 {
	free := span + 1 - sz
	if sz <= 0 || free <= 0 {
		return 0
	}
	return float64(sz) * math.Log2(1+float64(free)/float64(sz))
}

func gammaCost(v int) float64 { return float64(bitstream.GammaSize(uint32(v))) }

// windowExtras fills extra[k] with the local minimum delta of window k minus md.
// Returns the number of flagged windows, the sum of their extras and the span
// reduction they bring (extra times deltas in the window).
func windowExtras(arr []uint16, window, md int, extra []uint32) (flagged, total, reduction int) {
	for k := range extra {
		from := k*window + 1
		to := from + window
		if to > len(arr) {
			to = len(arr)
		}
		lm := maxArrayLen
		for i := from; i < to; i++ {
			if d := int(arr[i]) - int(arr[i-1]); d < lm {
				lm = d
			}
		}
		e := lm - md
		dbg.Assert(e >= 0, "wdr: window %d minimum %d below global %d", k, lm, md)
		extra[k] = uint32(e)
		if e > 0 {
			flagged++
			total += e
			reduction += e * (to - from)
		}
	}
	return flagged, total, reduction
}

// planWDR picks the window size with the best projected saving. The zero plan
// means WDR is not worth it.
func (c *Codec) planWDR(arr []uint16, md int) wdrPlan {
	sz := len(arr)
	span := int(arr[sz-1]) - int(arr[0]) - (sz-1)*(md-1)
	base := bicCost(sz, span)
	var best wdrPlan
	for _, window := range c.cfg.WDRWindowSizes {
		nw := windowCount(sz, window)
		if nw < c.cfg.WDRMinWindows {
			continue
		}
		c.extra = grow32(c.extra, nw)
		nf, total, reduction := windowExtras(arr, window, md, c.extra)
		if nf < c.cfg.WDRMinWindows {
			continue
		}
		side := 1 + gammaCost(window) + gammaCost(nf) + bicCost(nf, nw-1) + gammaCost(total) + bicCost(nf-1, total-2)
		saved := base - bicCost(sz, span-reduction) - side
		if saved > best.savings {
			best = wdrPlan{window: window, windows: nw, flagged: nf, total: total, savings: saved}
		}
	}
	if best.window == 0 || best.savings < float64(c.cfg.WDRMinSavings) {
		return wdrPlan{}
	}
	// leave extras of the chosen window size in c.extra
	c.extra = c.extra[:best.windows]
	windowExtras(arr, best.window, md, c.extra)
	return best
}

// compact writes into dst the array with m subtracted from every delta and, when
// window > 0, extra[k] from every delta of window k.
func compact(dst, arr []uint16, m, window int, extra []uint32) {
	dst[0] = arr[0]
	for i := 1; i < len(arr); i++ {
		d := int(arr[i]) - int(arr[i-1]) - m
		if window > 0 {
			d -= int(extra[(i-1)/window])
		}
		dbg.Assert(d >= 1, "compact: delta %d at %d", d, i)
		dst[i] = dst[i-1] + uint16(d)
	}
}

// expand undoes compact in place
func expand(arr []uint16, m, window int, extra []uint32) {
	prev := arr[0]
	for i := 1; i < len(arr); i++ {
		cur := arr[i]
		d := int(cur-prev) + m
		if window > 0 {
			d += int(extra[(i-1)/window])
		}
		arr[i] = arr[i-1] + uint16(d)
		prev = cur
	}
}

// putWDR writes the side stream for plan, extras are in c.extra
func (c *Codec) putWDR(bw bitstream.BitWriter, plan wdrPlan) {
	bw.Gamma(uint32(plan.window))
	bw.Gamma(uint32(plan.flagged))
	c.flagged, c.prefix = c.flagged[:0], c.prefix[:0]
	var sum uint32
	for k, e := range c.extra[:plan.windows] {
		if e == 0 {
			continue
		}
		sum += e
		c.flagged = append(c.flagged, uint16(k))
		c.prefix = append(c.prefix, sum)
	}
	dbg.Assert(len(c.flagged) == plan.flagged && int(sum) == plan.total, "wdr: plan disagrees with extras")
	if dbg.AssertEnabled() {
		dbg.Assert(isStrictlyAscending(c.prefix), "wdr: extra sums overflow or repeat")
	}
	bitstream.EncodeBICCM(bw, c.flagged, 0, uint16(plan.windows-1))
	bw.Gamma(sum)
	if n := len(c.prefix); n > 1 {
		bitstream.EncodeBICCM(bw, c.prefix[:n-1], 1, sum-1)
	}
}

// getWDR reads the side stream of an array of sz values, returns the window size
// and the per window extras (valid until the next call).
func (c *Codec) getWDR(br bitstream.BitReader, sz int) (int, []uint32, error) {
	window, nf, nw, err := wdrHead(br, sz)
	if err != nil {
		return 0, nil, err
	}
	c.flags = zero32(grow32(c.flags, (nw+31)/32))
	bitstream.DecodeBICCMBitset(br, c.flags, nf, 0, uint32(nw-1))
	total := br.Gamma()
	if int(total) < nf {
		return 0, nil, fmt.Errorf("%w: %d window extras sum up to %d", ErrCorrupt, nf, total)
	}
	c.prefix = grow32(c.prefix, nf)
	if nf > 1 {
		bitstream.DecodeBICCM(br, c.prefix[:nf-1], 1, total-1)
	}
	c.prefix[nf-1] = total

	c.extra = zero32(grow32(c.extra, nw))
	var prev uint32
	j := 0
	for wi, word := range c.flags {
		for word != 0 {
			k := wi*32 + bits.TrailingZeros32(word)
			word &= word - 1
			c.extra[k] = c.prefix[j] - prev
			prev = c.prefix[j]
			j++
		}
	}
	dbg.Assert(j == nf, "wdr: %d window flags, %d expected", j, nf)
	return window, c.extra, nil
}

func wdrHead(br bitstream.BitReader, sz int) (window, nf, nw int, err error) {
	window = int(br.Gamma())
	nf = int(br.Gamma())
	if window >= maxArrayLen {
		return 0, 0, 0, fmt.Errorf("%w: window size %d", ErrCorrupt, window)
	}
	nw = windowCount(sz, window)
	if nf > nw {
		return 0, 0, 0, fmt.Errorf("%w: %d flagged windows out of %d", ErrCorrupt, nf, nw)
	}
	return window, nf, nw, nil
}

// skipWDR consumes the side stream without materializing it
func skipWDR(br bitstream.BitReader, sz int) error {
	_, nf, nw, err := wdrHead(br, sz)
	if err != nil {
		return err
	}
	bitstream.DecodeBICCMDry(br, nf, 0, uint32(nw-1))
	total := br.Gamma()
	if int(total) < nf {
		return fmt.Errorf("%w: %d window extras sum up to %d", ErrCorrupt, nf, total)
	}
	if nf > 1 {
		bitstream.DecodeBICCMDry(br, nf-1, 1, total-1)
	}
	return nil
}
