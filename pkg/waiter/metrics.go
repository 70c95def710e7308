package waiter

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shm-waiter/pkg/waiter"

const (
	opOpen      = "open"
	opClose     = "close"
	opConstruct = "construct"
	opDestroy   = "destroy"
	opWait      = "wait"
	opNotify    = "notify"
	opBroadcast = "broadcast"
)

const (
	resultOK      = "ok"
	resultError   = "error"
	resultInvalid = "invalid"
)

var (
	operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shmwaiter",
		Name:      "operations_total",
		Help:      "Waiter operations by kind and result.",
	}, []string{"op", "result"})

	waitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shmwaiter",
		Name:      "wait_seconds",
		Help:      "Time spent blocked in Wait.",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 10, 8),
	})
)

// Collectors returns the prometheus collectors every Waiter updates.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{operations, waitSeconds}
}

// RegisterMetrics registers the waiter collectors with r. Registering twice is not an error.
func RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, ErrInvalidName):
		return resultInvalid
	}
	return resultError
}

type instruments struct {
	tracer  trace.Tracer
	ops     metric.Int64Counter
	waitDur metric.Float64Histogram
}

func newInstruments(cfg *Config) (*instruments, error) {
	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	ops, err := meter.Int64Counter("shmwaiter.operations",
		metric.WithDescription("Waiter operations by kind and result."))
	if err != nil {
		return nil, err
	}
	waitDur, err := meter.Float64Histogram("shmwaiter.wait.duration",
		metric.WithDescription("Time spent blocked in Wait."), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	if cfg.Registerer != nil {
		if err := RegisterMetrics(cfg.Registerer); err != nil {
			return nil, err
		}
	}
	return &instruments{tracer: tracer, ops: ops, waitDur: waitDur}, nil
}

func (in *instruments) record(ctx context.Context, op string, err error) {
	result := resultOf(err)
	operations.WithLabelValues(op, result).Inc()
	in.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

func (in *instruments) recordWait(ctx context.Context, d time.Duration, err error) {
	in.record(ctx, opWait, err)
	if err != nil {
		return
	}
	waitSeconds.Observe(d.Seconds())
	in.waitDur.Record(ctx, d.Seconds())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
