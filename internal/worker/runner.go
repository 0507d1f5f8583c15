package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/metrics"
)

// Source yields queued log entries.
type Source interface {
	Next(ctx context.Context) (*logstream.LogEntry, string, error)
	Ack(ctx context.Context, id string) error
}

// Archive persists log entries.
type Archive interface {
	AppendLogs(entries []logstream.LogEntry) (int, error)
	PruneLogs(keep int) (int64, error)
}

// Options configure the background worker process.
type Options struct {
	Source        Source
	Archive       Archive
	Logger        *log.Logger
	PruneInterval time.Duration
	Keep          int
	RetryDelay    time.Duration
}

// Runner drains the archive queue into the store.
type Runner struct {
	source        Source
	archive       Archive
	logger        *log.Logger
	pruneInterval time.Duration
	keep          int
	retryDelay    time.Duration

	// held is an entry whose archive write failed. It is retried before the
	// next message is read and acked only once stored.
	held *heldMessage
}

type heldMessage struct {
	id    string
	entry logstream.LogEntry
}

// New creates a new Runner.
func New(opts Options) *Runner {
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = 5 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{
		source:        opts.Source,
		archive:       opts.Archive,
		logger:        opts.Logger,
		pruneInterval: opts.PruneInterval,
		keep:          opts.Keep,
		retryDelay:    opts.RetryDelay,
	}
}

// Run consumes entries until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil || r.archive == nil {
		return errors.New("worker requires a source and an archive")
	}
	r.logger.Println("bot-console worker started, waiting for log entries")

	go r.pruneLoop(ctx)

	for {
		if ctx.Err() != nil {
			r.logger.Println("worker shutting down")
			return ctx.Err()
		}
		if err := r.step(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Printf("worker: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(r.retryDelay):
			}
		}
	}
}

// step processes at most one message. Undecodable messages are acked so they
// do not block the group.
func (r *Runner) step(ctx context.Context) error {
	if r.held == nil {
		entry, id, err := r.source.Next(ctx)
		if err != nil {
			if id == "" {
				return err
			}
			r.logger.Printf("worker: dropping malformed message %s: %v", id, err)
			return r.source.Ack(ctx, id)
		}
		if entry == nil {
			return nil
		}
		r.held = &heldMessage{id: id, entry: *entry}
	}

	start := time.Now()
	inserted, err := r.archive.AppendLogs([]logstream.LogEntry{r.held.entry})
	metrics.ObserveArchiveWrite(time.Since(start), inserted, err == nil)
	if err != nil {
		return fmt.Errorf("archive message %s: %w", r.held.id, err)
	}
	id := r.held.id
	r.held = nil
	return r.source.Ack(ctx, id)
}

func (r *Runner) pruneLoop(ctx context.Context) {
	if r.keep <= 0 {
		return
	}
	ticker := time.NewTicker(r.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *Runner) prune() {
	deleted, err := r.archive.PruneLogs(r.keep)
	if err != nil {
		r.logger.Printf("worker: prune failed: %v", err)
		return
	}
	if deleted > 0 {
		r.logger.Printf("worker: pruned %d archived entries (keeping %d)", deleted, r.keep)
	}
}
