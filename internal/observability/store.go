package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/mlusby/temperature-monitor/internal/store"
)

var (
	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Store calls by operation and result.",
		},
		[]string{"op", "result"},
	)
	storeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Store call latency by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() { prometheus.MustRegister(storeOps, storeLatency) }

// InstrumentStore wraps s with a span and metrics per call.
func InstrumentStore(s store.Store, tracer oteltrace.Tracer) store.Store {
	return &instrumentedStore{next: s, tracer: tracer}
}

type instrumentedStore struct {
	next   store.Store
	tracer oteltrace.Tracer
}

func (s *instrumentedStore) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "store."+op, oteltrace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		result := "ok"
		switch {
		case errors.Is(err, store.ErrConditionFailed):
			result = "condition_failed"
		case err != nil:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		storeOps.WithLabelValues(op, result).Inc()
		storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func (s *instrumentedStore) Put(ctx context.Context, rec store.Record, opts store.PutOptions) error {
	ctx, done := s.observe(ctx, "put",
		attribute.String("session_id", rec.SessionID),
		attribute.Bool("if_not_exists", opts.IfNotExists),
	)
	err := s.next.Put(ctx, rec, opts)
	done(err)
	return err
}

func (s *instrumentedStore) Query(ctx context.Context, sessionID string) ([]store.Record, error) {
	ctx, done := s.observe(ctx, "query", attribute.String("session_id", sessionID))
	rows, err := s.next.Query(ctx, sessionID)
	done(err)
	return rows, err
}

func (s *instrumentedStore) Scan(ctx context.Context, limit int, startKey []byte) (store.ScanPage, error) {
	ctx, done := s.observe(ctx, "scan",
		attribute.Int("limit", limit),
		attribute.Bool("resumed", len(startKey) > 0),
	)
	page, err := s.next.Scan(ctx, limit, startKey)
	done(err)
	return page, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	if p, ok := s.next.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
