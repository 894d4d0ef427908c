package audit

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the Sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []trip.SyncEvent) error {
	for _, evt := range batch {
		s.logger.Debug("sync event",
			zap.String("visitor_id", evt.VisitorID),
			zap.String("operation", evt.Operation),
			zap.String("outcome", evt.Outcome),
			zap.String("detail", evt.Detail),
			zap.Time("at", evt.At),
		)
	}
	return nil
}

// StoreSink persists batches through a durable trip.EventLog.
type StoreSink struct {
	store trip.EventLog
}

// NewStoreSink wraps store.
func NewStoreSink(store trip.EventLog) *StoreSink {
	return &StoreSink{store: store}
}

// Consume records every event, continuing past individual failures.
func (s *StoreSink) Consume(ctx context.Context, batch []trip.SyncEvent) error {
	var errs []error
	for _, evt := range batch {
		if err := s.store.RecordEvent(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
