package history

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/log"
)

const defaultBuffer = 1024

// Recorder is a broker.Observer that writes transitions to a Store from its
// own goroutine, so broker callers never wait on disk.
type Recorder struct {
	store     *Store
	logger    *slog.Logger
	ch        chan broker.Transition
	retention time.Duration
	dropped   atomic.Int64
}

var _ broker.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder. Records older than retention are pruned
// hourly while Run is active; retention <= 0 keeps everything.
func NewRecorder(store *Store, retention time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = log.WithComponent("history")
	}
	return &Recorder{
		store:     store,
		logger:    logger,
		ch:        make(chan broker.Transition, defaultBuffer),
		retention: retention,
	}
}

// Observe queues t for writing. When the buffer is full the transition is
// dropped and counted.
func (r *Recorder) Observe(t broker.Transition) {
	select {
	case r.ch <- t:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("history buffer full, dropping transitions")
		}
	}
}

// Dropped returns how many transitions were not recorded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued transitions until ctx is cancelled, then flushes what is
// already buffered and returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	var prune <-chan time.Time
	if r.retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case t := <-r.ch:
			r.write(ctx, t)
		case <-prune:
			r.prune(ctx)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case t := <-r.ch:
			r.write(ctx, t)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, t broker.Transition) {
	var err error
	switch {
	case t.To == broker.StateQueued:
		err = r.store.Insert(ctx, t.ID, t.Tool, t.Args, string(t.To), t.At)
	case t.To == broker.StateClaimed:
		err = r.store.MarkClaimed(ctx, t.ID, string(t.To), t.At)
	case t.To.Terminal():
		err = r.store.MarkDone(ctx, t.ID, string(t.To), t.At, t.Elapsed, t.Error)
	}
	if err != nil {
		r.logger.Error("failed to record transition", "command_id", t.ID, "state", t.To, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.store.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Error("history prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("history pruned", "deleted", n, "retention", r.retention.String())
	}
}
