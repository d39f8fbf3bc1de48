package metrics

import (
	"io"
	"os"
	"strings"

	vm "github.com/VictoriaMetrics/metrics"
)

// Enabled is checked by the constructor functions for all of the
// standard metrics. If it is false, the counter returned is a stub
// that is never registered.
//
// This global kill-switch helps quantify the observer effect and makes
// for less cluttered pprof profiles.
var Enabled = false

// Init enables or disables the metrics system. Since we need this to run before
// any other code gets to create counters, we'll actually do an ugly hack
// and peek into the command line args for the metrics flag.
func init() {
	for _, arg := range os.Args {
		flag := strings.TrimLeft(arg, "-")

		for _, enabler := range enablerFlags {
			if !Enabled && flag == enabler {
				Enabled = true
			}
		}
	}
}

// enablerFlags is the CLI flag names to use to enable metrics collections.
var enablerFlags = []string{"metrics"}

// Counter is the subset of *vm.Counter the codec uses
type Counter interface {
	Inc()
	Add(n int)
	Get() uint64
}

type stubCounter struct{}

func (stubCounter) Inc()        {}
func (stubCounter) Add(int)     {}
func (stubCounter) Get() uint64 { return 0 }

// GetOrCreateCounter returns registered counter with the given name
// (VictoriaMetrics naming, e.g. `gapcodec_arrays_total{scheme="bic"}`),
// or a stub when metrics are disabled.
func GetOrCreateCounter(name string) Counter {
	if !Enabled {
		return stubCounter{}
	}
	return vm.GetOrCreateCounter(name)
}

// WritePrometheus dumps all registered metrics in Prometheus text format
func WritePrometheus(w io.Writer) {
	vm.WritePrometheus(w, false)
}
