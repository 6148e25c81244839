package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/toolbridge/internal/clock"
	"github.com/mattjoyce/toolbridge/internal/log"
)

const (
	// DefaultSubmitTimeout bounds how long a submitted command may stay pending.
	DefaultSubmitTimeout = 120 * time.Second

	// DefaultPollWait bounds how long a Poll waits for a command to arrive.
	DefaultPollWait = 15 * time.Second
)

// Config holds broker timing settings. Zero values fall back to the defaults.
type Config struct {
	SubmitTimeout time.Duration
	PollWait      time.Duration
	Clock         clock.Clock
}

// Observer is notified of every state transition, after the broker's lock is
// released. Transitions arrive one at a time in the order they happened.
type Observer interface {
	Observe(Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Transition)

func (f ObserverFunc) Observe(t Transition) { f(t) }

type outcome struct {
	result json.RawMessage
	err    error
}

type entry struct {
	cmd       Command
	state     State
	claimedAt time.Time
	outcome   chan outcome // buffered 1, written once
	timer     clock.Timer
}

// Broker owns every pending command: creation, exclusive claim, resolution,
// and deadline eviction.
type Broker struct {
	cfg    Config
	clock  clock.Clock
	wake   *Wake
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	ready   []*entry // queued entries, oldest first

	// outbox holds transitions not yet handed to observers; one goroutine
	// at a time drains it, so observers see them in commit order.
	outbox   []Transition
	draining bool

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates a Broker. A nil logger uses the process logger.
func New(cfg Config, logger *slog.Logger) *Broker {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = DefaultPollWait
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if logger == nil {
		logger = log.WithComponent("broker")
	}
	return &Broker{
		cfg:     cfg,
		clock:   cfg.Clock,
		wake:    NewWake(),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// SubmitTimeout returns the configured submission deadline.
func (b *Broker) SubmitTimeout() time.Duration { return b.cfg.SubmitTimeout }

// PollWait returns the default long-poll wait.
func (b *Broker) PollWait() time.Duration { return b.cfg.PollWait }

// AddObserver registers o for all subsequent transitions.
func (b *Broker) AddObserver(o Observer) {
	b.obsMu.Lock()
	b.observers = append(b.observers, o)
	b.obsMu.Unlock()
}

// Submit queues a tool invocation under a freshly generated correlation id.
func (b *Broker) Submit(tool string, args json.RawMessage) (*Pending, error) {
	return b.SubmitWithID(uuid.NewString(), tool, args)
}

// SubmitWithID queues a tool invocation under a caller-chosen correlation id.
// Reusing an id that is still pending returns ErrDuplicateID.
func (b *Broker) SubmitWithID(id, tool string, args json.RawMessage) (*Pending, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is empty", ErrMalformed)
	}
	if tool == "" {
		return nil, fmt.Errorf("%w: tool is empty", ErrMalformed)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	now := b.clock.Now()
	e := &entry{
		cmd: Command{
			ID:          id,
			Tool:        tool,
			Args:        args,
			SubmittedAt: now,
			Deadline:    now.Add(b.cfg.SubmitTimeout),
		},
		state:   StateQueued,
		outcome: make(chan outcome, 1),
	}

	b.mu.Lock()
	if _, exists := b.entries[id]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	b.entries[id] = e
	b.ready = append(b.ready, e)
	// Armed under the lock so expire cannot observe the entry before its
	// timer field is set.
	e.timer = b.clock.AfterFunc(b.cfg.SubmitTimeout, func() { b.expire(e) })
	b.outbox = append(b.outbox, Transition{ID: id, Tool: tool, Args: args, To: StateQueued, At: now})
	b.mu.Unlock()

	b.logger.Debug("command submitted", "command_id", id, "tool", tool)
	b.wake.Broadcast()
	b.flush()

	return &Pending{
		ID:       id,
		Tool:     tool,
		Deadline: e.cmd.Deadline,
		ch:       e.outcome,
	}, nil
}

// ClaimNext takes the oldest queued command and marks it claimed. It never
// blocks; ok is false when nothing is queued.
func (b *Broker) ClaimNext() (cmd Command, ok bool) {
	b.mu.Lock()
	if len(b.ready) == 0 {
		b.mu.Unlock()
		return Command{}, false
	}
	e := b.ready[0]
	b.ready[0] = nil
	b.ready = b.ready[1:]

	if e.state != StateQueued {
		b.mu.Unlock()
		panic(fmt.Sprintf("broker: command %s in ready list with state %s", e.cmd.ID, e.state))
	}

	e.state = StateClaimed
	e.claimedAt = b.clock.Now()
	cmd = e.cmd
	b.outbox = append(b.outbox, Transition{
		ID:      cmd.ID,
		Tool:    cmd.Tool,
		From:    StateQueued,
		To:      StateClaimed,
		At:      e.claimedAt,
		Elapsed: e.claimedAt.Sub(cmd.SubmittedAt),
	})
	b.mu.Unlock()

	b.logger.Debug("command claimed", "command_id", cmd.ID, "tool", cmd.Tool)
	b.flush()
	return cmd, true
}

// Complete resolves the command with result. It returns ErrNotFound if id is
// not pending.
func (b *Broker) Complete(id string, result json.RawMessage) error {
	return b.resolve(id, StateCompleted, outcome{result: result})
}

// Fail rejects the command with the worker's error message. It returns
// ErrNotFound if id is not pending.
func (b *Broker) Fail(id, message string) error {
	return b.resolve(id, StateFailed, outcome{err: &WorkerError{ID: id, Message: message}})
}

func (b *Broker) resolve(id string, to State, out outcome) error {
	b.mu.Lock()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		b.logger.Debug("report for unknown command", "command_id", id, "state", to)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	from := b.evictLocked(e, to)
	now := b.clock.Now()
	t := Transition{
		ID:      id,
		Tool:    e.cmd.Tool,
		From:    from,
		To:      to,
		At:      now,
		Elapsed: now.Sub(e.cmd.SubmittedAt),
	}
	if out.err != nil {
		t.Error = out.err.Error()
	}
	b.outbox = append(b.outbox, t)
	b.mu.Unlock()

	b.logger.Info("command resolved", "command_id", id, "tool", e.cmd.Tool, "state", to, "elapsed_ms", t.Elapsed.Milliseconds())
	b.flush()
	e.outcome <- out
	return nil
}

// expire runs when an entry's deadline fires. A timer that lost the race with
// Complete or Fail finds the entry gone (or replaced) and does nothing.
func (b *Broker) expire(e *entry) {
	b.mu.Lock()
	if cur, ok := b.entries[e.cmd.ID]; !ok || cur != e {
		b.mu.Unlock()
		return
	}
	from := b.evictLocked(e, StateTimedOut)
	err := &TimeoutError{ID: e.cmd.ID, Timeout: b.cfg.SubmitTimeout}
	now := b.clock.Now()
	b.outbox = append(b.outbox, Transition{
		ID:      e.cmd.ID,
		Tool:    e.cmd.Tool,
		From:    from,
		To:      StateTimedOut,
		At:      now,
		Elapsed: now.Sub(e.cmd.SubmittedAt),
		Error:   err.Error(),
	})
	b.mu.Unlock()

	b.logger.Warn("command timed out", "command_id", e.cmd.ID, "tool", e.cmd.Tool, "from_state", from, "timeout_ms", err.TimeoutMs())
	b.flush()
	e.outcome <- outcome{err: err}
}

// evictLocked moves e to the terminal state to, removes it from the store and
// stops its timer. It returns the state e was in. b.mu must be held.
func (b *Broker) evictLocked(e *entry, to State) State {
	from := e.state
	delete(b.entries, e.cmd.ID)
	if from == StateQueued {
		for i, r := range b.ready {
			if r == e {
				b.ready = append(b.ready[:i], b.ready[i+1:]...)
				break
			}
		}
	}
	e.state = to
	if e.timer != nil {
		e.timer.Stop()
	}
	return from
}

// Pending returns a snapshot of every live command, oldest first.
func (b *Broker) Pending() []Snapshot {
	b.mu.Lock()
	out := make([]Snapshot, 0, len(b.entries))
	for _, e := range b.entries {
		s := Snapshot{
			ID:          e.cmd.ID,
			Tool:        e.cmd.Tool,
			State:       e.state,
			SubmittedAt: e.cmd.SubmittedAt,
			Deadline:    e.cmd.Deadline,
		}
		if e.state == StateClaimed {
			at := e.claimedAt
			s.ClaimedAt = &at
		}
		out = append(out, s)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Stats returns current counts.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Pending: len(b.entries),
		Queued:  len(b.ready),
		Claimed: len(b.entries) - len(b.ready),
		Waiters: b.wake.Waiters(),
	}
}

// flush hands queued transitions to observers. If another goroutine is
// already draining, it picks up ours too and flush returns at once.
func (b *Broker) flush() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	for len(b.outbox) > 0 {
		batch := b.outbox
		b.outbox = nil
		b.mu.Unlock()

		b.notify(batch)

		b.mu.Lock()
	}
	b.draining = false
	b.mu.Unlock()
}

func (b *Broker) notify(batch []Transition) {
	b.obsMu.RLock()
	observers := b.observers
	b.obsMu.RUnlock()
	for _, t := range batch {
		for _, o := range observers {
			o.Observe(t)
		}
	}
}

// Pending is the submitter's handle on a queued command.
type Pending struct {
	ID       string
	Tool     string
	Deadline time.Time

	ch <-chan outcome
}

// Wait blocks until the command completes, fails or times out. If ctx ends
// first Wait returns ctx.Err(); the command itself stays pending until it is
// resolved or its deadline passes. The outcome is delivered once, so after a
// successful return Wait must not be called again.
func (p *Pending) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case o := <-p.ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
