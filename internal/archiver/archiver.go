// Package archiver moves live log entries from the relay's bus into durable
// storage and records stream lifecycle history.
package archiver

import (
	"context"
	"log"
	"time"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/metrics"
	"github.com/oremus-labs/ol-bot-console/internal/queue"
	"github.com/oremus-labs/ol-bot-console/internal/store"
)

// Sink accepts a batch of entries.
type Sink interface {
	Archive(ctx context.Context, entries []logstream.LogEntry) error
}

// Source is the bus the archiver drains.
type Source interface {
	SubscribeAll(ctx context.Context) (<-chan logstream.LogEntry, func(), error)
}

// QueueSink hands batches to the Redis stream for the worker.
type QueueSink struct {
	Producer *queue.Producer
}

// Archive implements Sink.
func (q QueueSink) Archive(ctx context.Context, entries []logstream.LogEntry) error {
	return q.Producer.Enqueue(ctx, entries...)
}

// StoreSink writes batches straight into the archive database.
type StoreSink struct {
	Store *store.Store
}

// Archive implements Sink.
func (s StoreSink) Archive(_ context.Context, entries []logstream.LogEntry) error {
	start := time.Now()
	inserted, err := s.Store.AppendLogs(entries)
	metrics.ObserveArchiveWrite(time.Since(start), inserted, err == nil)
	return err
}

// Options configure an Archiver.
type Options struct {
	Source        Source
	Sink          Sink
	Logger        *log.Logger
	BatchSize     int
	FlushInterval time.Duration
}

// Archiver batches bus entries into a Sink.
type Archiver struct {
	source        Source
	sink          Sink
	logger        *log.Logger
	batchSize     int
	flushInterval time.Duration
}

// New creates an Archiver.
func New(opts Options) *Archiver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Archiver{
		source:        opts.Source,
		sink:          opts.Sink,
		logger:        opts.Logger,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
	}
}

// Run drains the source until ctx ends, flushing what is pending on exit.
func (a *Archiver) Run(ctx context.Context) error {
	ch, cancel, err := a.source.SubscribeAll(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]logstream.LogEntry, 0, a.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := a.sink.Archive(ctx, batch); err != nil {
			a.logger.Printf("archiver: dropping %d entries: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			done()
			return ctx.Err()
		case entry, ok := <-ch:
			if !ok {
				flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				flush(flushCtx)
				done()
				return ctx.Err()
			}
			batch = append(batch, entry)
			if len(batch) >= a.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// HistoryRecorder persists stream lifecycle events.
type HistoryRecorder struct {
	Store  *store.Store
	Logger *log.Logger
}

// Record is suitable as logstream.Options.OnEvent.
func (h HistoryRecorder) Record(evt logstream.StreamEvent) {
	if h.Store == nil {
		return
	}
	entry := &store.HistoryEntry{Event: historyEvent(evt.Kind)}
	if evt.Err != nil {
		entry.Message = evt.Err.Error()
	}
	if evt.RetryIn > 0 {
		entry.Metadata = map[string]interface{}{"retryIn": evt.RetryIn.String()}
	}
	if err := h.Store.AppendHistory(entry); err != nil {
		logger := h.Logger
		if logger == nil {
			logger = log.Default()
		}
		logger.Printf("archiver: failed to record %s: %v", entry.Event, err)
	}
}

func historyEvent(kind string) string {
	switch kind {
	case logstream.EventOpened:
		return store.EventStreamOpened
	case logstream.EventClosed:
		return store.EventStreamClosed
	case logstream.EventError:
		return store.EventStreamError
	case logstream.EventStopped:
		return store.EventStreamStopped
	default:
		return "stream_" + kind
	}
}
