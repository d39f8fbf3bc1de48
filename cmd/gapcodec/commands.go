package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/c2h5oh/datasize"
	"github.com/edsrzf/mmap-go"
	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ncbi/sra-tools-sub027/bitmapdb"
	"github.com/ncbi/sra-tools-sub027/bytestream"
	"github.com/ncbi/sra-tools-sub027/common/dbg"
	"github.com/ncbi/sra-tools-sub027/gapcodec"
)

func openInput(cliCtx *cli.Context) (io.ReadCloser, error) {
	path := cliCtx.String(inputFlag.Name)
	if path == "" {
		return io.NopCloser(cliCtx.App.Reader), nil
	}
	return os.Open(path)
}

// mapInput maps the input file read-only, stdin is read into memory.
// The returned data is valid until release is called.
func mapInput(cliCtx *cli.Context) (data []byte, release func(), err error) {
	path := cliCtx.String(inputFlag.Name)
	if path == "" {
		data, err = io.ReadAll(cliCtx.App.Reader)
		return data, func() {}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if st.Size() == 0 {
		f.Close()
		return nil, func() {}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	if err := adviseSequential(m); err != nil {
		log.Warn("[input] madvise", "file", path, "err", err)
	}
	return m, func() {
		if err := m.Unmap(); err != nil {
			log.Warn("[input] unmap", "file", path, "err", err)
		}
		f.Close()
	}, nil
}

func writeOutput(cliCtx *cli.Context, data []byte) error {
	path := cliCtx.String(outputFlag.Name)
	if path == "" {
		_, err := cliCtx.App.Writer.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// parseValues reads whitespace separated decimal values
func parseValues(r io.Reader) ([]uint32, error) {
	var vals []uint32
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, err := strconv.ParseUint(sc.Text(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", len(vals), err)
		}
		vals = append(vals, uint32(v))
	}
	return vals, sc.Err()
}

// toArray checks vals form a valid gap array
func toArray(vals []uint32) ([]uint16, error) {
	arr := make([]uint16, len(vals))
	for i, v := range vals {
		if v > 0xFFFF {
			return nil, fmt.Errorf("value %d: %d does not fit 16 bits", i, v)
		}
		if i > 0 && v <= vals[i-1] {
			return nil, fmt.Errorf("value %d: %d after %d, values must be strictly ascending", i, v, vals[i-1])
		}
		arr[i] = uint16(v)
	}
	return arr, nil
}

func readValues(cliCtx *cli.Context) ([]uint32, error) {
	r, err := openInput(cliCtx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return parseValues(r)
}

func readArray(cliCtx *cli.Context) ([]uint16, error) {
	vals, err := readValues(cliCtx)
	if err != nil {
		return nil, err
	}
	return toArray(vals)
}

func readArrayFile(path string) ([]uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vals, err := parseValues(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	arr, err := toArray(vals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arr, nil
}

func writeValues(cliCtx *cli.Context, next func() (uint32, bool)) error {
	w := cliCtx.App.Writer
	if path := cliCtx.String(outputFlag.Name); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	for v, ok := next(); ok; v, ok = next() {
		bw.WriteString(strconv.FormatUint(uint64(v), 10))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func newEncoder(cliCtx *cli.Context) (*bytestream.Encoder, error) {
	size, err := bufferSize(cliCtx)
	if err != nil {
		return nil, err
	}
	return bytestream.NewEncoder(make([]byte, size.Bytes())), nil
}

func encodeAction(cliCtx *cli.Context) error {
	codec, err := newCodec(cliCtx)
	if err != nil {
		return err
	}
	force, err := parseForce(cliCtx.String(forceFlag.Name))
	if err != nil {
		return err
	}
	arr, err := readArray(cliCtx)
	if err != nil {
		return err
	}
	enc, err := newEncoder(cliCtx)
	if err != nil {
		return err
	}
	opts := gapcodec.EncodeOptions{Ones: cliCtx.Bool(onesFlag.Name), EOC: cliCtx.Bool(eocFlag.Name), Force: force}
	if err := codec.EncodeArray(enc, arr, opts); err != nil {
		return err
	}
	st := codec.Last()
	log.Info("[encode] done", "values", len(arr), "scheme", st.Scheme, "size", datasize.ByteSize(st.Bytes).HumanReadable())
	return writeOutput(cliCtx, enc.Bytes())
}

func decodeAction(cliCtx *cli.Context) error {
	codec, err := newCodec(cliCtx)
	if err != nil {
		return err
	}
	buf, release, err := mapInput(cliCtx)
	if err != nil {
		return err
	}
	defer release()
	dec := bytestream.NewDecoder(buf)
	arr, h, err := codec.DecodeArray(dec, nil, gapcodec.DecodeOptions{})
	if err != nil {
		return err
	}
	if dec.Remaining() != 0 {
		log.Warn("[decode] trailing bytes after the array", "bytes", dec.Remaining())
	}
	log.Debug("[decode] done", "values", len(arr), "scheme", h.Scheme(), "ones", h.Base().Ones, "eoc", h.Base().EOC)
	i := 0
	return writeValues(cliCtx, func() (uint32, bool) {
		if i == len(arr) {
			return 0, false
		}
		i++
		return uint32(arr[i-1]), true
	})
}

func packAction(cliCtx *cli.Context) error {
	codec, err := newCodec(cliCtx)
	if err != nil {
		return err
	}
	vals, err := readValues(cliCtx)
	if err != nil {
		return err
	}
	enc, err := newEncoder(cliCtx)
	if err != nil {
		return err
	}
	bm := roaring.New()
	bm.AddMany(vals)
	if err := bitmapdb.NewSerializer(codec, log.Root()).Serialize(enc, bm); err != nil {
		return err
	}
	log.Info("[pack] done", "values", bm.GetCardinality(), "size", datasize.ByteSize(enc.Len()).HumanReadable())
	return writeOutput(cliCtx, enc.Bytes())
}

func unpackAction(cliCtx *cli.Context) error {
	codec, err := newCodec(cliCtx)
	if err != nil {
		return err
	}
	buf, release, err := mapInput(cliCtx)
	if err != nil {
		return err
	}
	defer release()
	st, err := bitmapdb.OpenBitmapStream(bitmapdb.NewSerializer(codec, log.Root()), buf)
	if err != nil {
		return err
	}
	defer st.Close()
	return writeValues(cliCtx, func() (uint32, bool) {
		if !st.HasNext() {
			return 0, false
		}
		v, _ := st.Next()
		return v, true
	})
}

// statsAction reports every array given as argument, or the one on --input.
// Files are processed concurrently, each with its own codec, at most
// GAPCODEC_WORKERS at a time.
func statsAction(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx.String(configFlag.Name))
	if err != nil {
		return err
	}
	size, err := bufferSize(cliCtx)
	if err != nil {
		return err
	}
	paths := cliCtx.Args().Slice()
	if len(paths) == 0 {
		arr, err := readArray(cliCtx)
		if err != nil {
			return err
		}
		report, err := statsReport(cfg, arr, size)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cliCtx.App.Writer, report)
		return err
	}

	reports := make([]string, len(paths))
	g := &errgroup.Group{}
	g.SetLimit(dbg.EnvInt("GAPCODEC_WORKERS", runtime.NumCPU()))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			arr, err := readArrayFile(path)
			if err != nil {
				return err
			}
			report, err := statsReport(cfg, arr, size)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = path + ":\n" + report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, report := range reports {
		if _, err := io.WriteString(cliCtx.App.Writer, report); err != nil {
			return err
		}
	}
	return nil
}

func statsReport(cfg gapcodec.Config, arr []uint16, size datasize.ByteSize) (string, error) {
	codec, err := gapcodec.New(cfg, log.Root())
	if err != nil {
		return "", err
	}
	enc := bytestream.NewEncoder(make([]byte, size.Bytes()))
	var sb strings.Builder
	fmt.Fprintf(&sb, "values: %d, raw: %s\n", len(arr), datasize.ByteSize(2*len(arr)).HumanReadable())
	for _, force := range []gapcodec.ForceCode{gapcodec.ForceNone, gapcodec.ForceGamma, gapcodec.ForceDeltaGamma} {
		enc.Reset()
		if err := codec.EncodeArray(enc, arr, gapcodec.EncodeOptions{Force: force}); err != nil {
			return "", err
		}
		st := codec.Last()
		fmt.Fprintf(&sb, "%-12s %10d bytes  min delta %d  wdr window %d (%d of %d flagged)  minmax %t\n",
			st.Scheme, st.Bytes, st.MinDelta, st.WDRWindow, st.WDRFlagged, st.WDRWindows, st.MinMax)
	}
	return sb.String(), nil
}
