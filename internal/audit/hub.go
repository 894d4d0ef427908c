// Package audit buffers synchronizer events and flushes them in batches to
// sinks so recording an event never blocks a sync operation.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// ErrClosed is returned by RecordEvent after Close.
var ErrClosed = errors.New("audit hub closed")

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 1024).
//   - MaxBatchEvents: flush once this many events queue (default 100).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 5s).
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 100
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Sink consumes batches of events.
type Sink interface {
	Consume(ctx context.Context, batch []trip.SyncEvent) error
}

// Hub implements trip.EventLog on top of a bounded channel. It is safe for
// concurrent use.
type Hub struct {
	cfg      Config
	sinks    []Sink
	events   chan trip.SyncEvent
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *zap.Logger
	dropLog  rate.Sometimes
	dropped  atomic.Int64
	closed   atomic.Bool
	stopOnce sync.Once
}

// NewHub starts the background batching goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan trip.SyncEvent, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger.Named("audit"),
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// RecordEvent enqueues event. It never blocks: when the buffer is full the
// event is dropped and counted.
func (h *Hub) RecordEvent(_ context.Context, event trip.SyncEvent) error {
	if h.closed.Load() {
		return ErrClosed
	}
	select {
	case h.events <- event:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("audit events dropped due to backpressure", zap.Int64("dropped", h.dropped.Swap(0)))
		})
	}
	return nil
}

// Close drains buffered events into the sinks and waits for the flush.
func (h *Hub) Close(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]trip.SyncEvent, 0, h.cfg.MaxBatchEvents)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			for {
				select {
				case evt := <-h.events:
					batch = append(batch, evt)
				default:
					h.flush(batch)
					return
				}
			}
		}
	}
}

func (h *Hub) flush(batch []trip.SyncEvent) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]trip.SyncEvent(nil), batch...)
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("audit sink consume failed", zap.Int("events", len(copyBatch)), zap.Error(err))
		}
		cancel()
	}
}
