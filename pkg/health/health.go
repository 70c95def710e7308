// Package health serves liveness and readiness probes for processes using
// shared memory waiters.
package health

import (
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	internalhealth "github.com/srediag/shm-waiter/internal/health"
	internalshm "github.com/srediag/shm-waiter/internal/shm"
	"github.com/srediag/shm-waiter/pkg/waiter"
)

const (
	defaultMaxGoroutines = 10000
	defaultMinFreeBytes  = 1 << 20
)

// Options configures NewHandler. Zero values pick the defaults.
type Options struct {
	// MaxGoroutines fails liveness above this many goroutines.
	MaxGoroutines int
	// ShmDir is checked for MinFreeBytes of free space. Empty means /dev/shm
	// when present, the temp dir otherwise.
	ShmDir       string
	MinFreeBytes uint64
	// Registerer, when set, exports every check result as a gauge.
	Registerer prometheus.Registerer
	// Namespace prefixes the exported gauges.
	Namespace string
}

// NewHandler returns a handler serving /live and /ready.
func NewHandler(opts Options) healthcheck.Handler {
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = defaultMaxGoroutines
	}
	if opts.ShmDir == "" {
		opts.ShmDir = internalshm.DefaultDir()
	}
	if opts.MinFreeBytes == 0 {
		opts.MinFreeBytes = defaultMinFreeBytes
	}
	if opts.Namespace == "" {
		opts.Namespace = "shmwaiter"
	}

	var h healthcheck.Handler
	if opts.Registerer != nil {
		h = healthcheck.NewMetricsHandler(opts.Registerer, opts.Namespace)
	} else {
		h = healthcheck.NewHandler()
	}
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	h.AddReadinessCheck("shm-free-space", internalhealth.FreeSpaceCheck(opts.ShmDir, opts.MinFreeBytes))
	return h
}

// AddWaiter makes readiness depend on the named waiter staying attached.
// n must stay open for as long as h serves requests.
func AddWaiter(h healthcheck.Handler, n *waiter.Named) {
	h.AddReadinessCheck("waiter-"+n.Name(), WaiterCheck(n.Waiter()))
}

// WaiterCheck fails unless w's block is ready and attached.
func WaiterCheck(w *waiter.Waiter) healthcheck.Check {
	return internalhealth.AttachedCheck(func() (string, uint32) {
		snap := w.Snapshot()
		return snap.Phase.String(), snap.Count
	})
}
