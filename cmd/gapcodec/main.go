package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ncbi/sra-tools-sub027/common/metrics"
	"github.com/ncbi/sra-tools-sub027/gapcodec"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML file with encoder settings, defaults are used for missing keys",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level: crit, error, warn, info, debug, trace",
		Value: "info",
	}
	bufferFlag = &cli.StringFlag{
		Name:  "buffer",
		Usage: "output buffer capacity",
		Value: "16MB",
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "dump counters in Prometheus text format to stderr on exit",
	}
	inputFlag = &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "input file, stdin when empty",
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file, stdout when empty",
	}
	forceFlag = &cli.StringFlag{
		Name:  "force",
		Usage: "force a scheme: none, gamma, delta-gamma",
		Value: "none",
	}
	onesFlag = &cli.BoolFlag{
		Name:  "ones",
		Usage: "mark the array as positions of set bits",
	}
	eocFlag = &cli.BoolFlag{
		Name:  "eoc",
		Usage: "mark the array as the last of its chain",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "gapcodec",
		Usage: "encode and decode ascending integer arrays and bitmaps",
		Flags: []cli.Flag{configFlag, verbosityFlag, bufferFlag, metricsFlag},
		Before: func(cliCtx *cli.Context) error {
			lvl, err := log.LvlFromString(cliCtx.String(verbosityFlag.Name))
			if err != nil {
				return err
			}
			log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StderrHandler))
			return nil
		},
		After: func(cliCtx *cli.Context) error {
			if cliCtx.Bool(metricsFlag.Name) && metrics.Enabled {
				metrics.WritePrometheus(cliCtx.App.ErrWriter)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "encode",
				Usage:  "encode an ascending list of values below 65536 as one gap array",
				Flags:  []cli.Flag{inputFlag, outputFlag, forceFlag, onesFlag, eocFlag},
				Action: encodeAction,
			},
			{
				Name:   "decode",
				Usage:  "print the values of an encoded gap array",
				Flags:  []cli.Flag{inputFlag, outputFlag},
				Action: decodeAction,
			},
			{
				Name:   "pack",
				Usage:  "serialize a set of 32-bit values as a chunked bitmap",
				Flags:  []cli.Flag{inputFlag, outputFlag},
				Action: packAction,
			},
			{
				Name:   "unpack",
				Usage:  "print the values of a serialized bitmap",
				Flags:  []cli.Flag{inputFlag, outputFlag},
				Action: unpackAction,
			},
			{
				Name:      "stats",
				Usage:     "compare encoded sizes of an array under every scheme",
				ArgsUsage: "[file...]",
				Flags:     []cli.Flag{inputFlag},
				Action: statsAction,
			},
		},
	}
}

func loadConfig(path string) (gapcodec.Config, error) {
	cfg := gapcodec.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func newCodec(cliCtx *cli.Context) (*gapcodec.Codec, error) {
	cfg, err := loadConfig(cliCtx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	return gapcodec.New(cfg, log.Root())
}

func bufferSize(cliCtx *cli.Context) (datasize.ByteSize, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(cliCtx.String(bufferFlag.Name))); err != nil {
		return 0, fmt.Errorf("invalid --%s: %w", bufferFlag.Name, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("invalid --%s: must not be zero", bufferFlag.Name)
	}
	return size, nil
}

func parseForce(s string) (gapcodec.ForceCode, error) {
	switch s {
	case "", "none":
		return gapcodec.ForceNone, nil
	case "gamma":
		return gapcodec.ForceGamma, nil
	case "delta-gamma":
		return gapcodec.ForceDeltaGamma, nil
	default:
		return 0, fmt.Errorf("unknown --%s %q", forceFlag.Name, s)
	}
}
