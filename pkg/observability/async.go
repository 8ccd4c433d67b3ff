package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultQueueSize bounds the async sink's buffer. When the buffer is
// full, new records are dropped rather than blocking the run.
const defaultQueueSize = 256

// drainTimeout caps how long a queued record may take to deliver before
// the worker moves on.
const drainTimeout = 5 * time.Second

// AsyncSink wraps another sink and delivers records from a background
// goroutine, so telemetry never blocks node execution. Delivery is
// best-effort: records are dropped when the queue is full, and downstream
// failures are logged but never propagated to the run.
type AsyncSink struct {
	inner  Sink
	logger *slog.Logger

	queue chan func(context.Context)
	done  chan struct{}
	once  sync.Once
}

// NewAsyncSink wraps inner with a background dispatcher.
func NewAsyncSink(inner Sink, logger *slog.Logger) *AsyncSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncSink{
		inner:  inner,
		logger: logger,
		queue:  make(chan func(context.Context), defaultQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for fn := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("telemetry sink panicked", "panic", r)
				}
			}()
			fn(ctx)
		}()
	}
}

// enqueue submits a delivery without ever blocking the caller.
func (s *AsyncSink) enqueue(fn func(context.Context)) {
	select {
	case s.queue <- fn:
	default:
		s.logger.Debug("telemetry queue full, dropping record")
	}
}

// StartRun forwards asynchronously.
func (s *AsyncSink) StartRun(_ context.Context, info RunInfo) {
	s.enqueue(func(ctx context.Context) { s.inner.StartRun(ctx, info) })
}

// EndRun forwards asynchronously.
func (s *AsyncSink) EndRun(_ context.Context, runID string, err error) {
	s.enqueue(func(ctx context.Context) { s.inner.EndRun(ctx, runID, err) })
}

// RecordNode forwards asynchronously.
func (s *AsyncSink) RecordNode(_ context.Context, rec NodeRecord) {
	s.enqueue(func(ctx context.Context) { s.inner.RecordNode(ctx, rec) })
}

// Shutdown drains the queue, then shuts down the wrapped sink.
func (s *AsyncSink) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.queue) })

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.inner.Shutdown(ctx)
}
