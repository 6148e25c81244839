package broker

import (
	"encoding/json"
	"time"
)

// State is the lifecycle position of a pending command.
type State string

const (
	StateQueued    State = "queued"
	StateClaimed   State = "claimed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Command is the view of a pending command handed to a worker.
type Command struct {
	ID          string          `json:"id"`
	Tool        string          `json:"tool"`
	Args        json.RawMessage `json:"args"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Deadline    time.Time       `json:"deadline"`
}

// Snapshot describes a live command for inspection endpoints.
type Snapshot struct {
	ID          string     `json:"id"`
	Tool        string     `json:"tool"`
	State       State      `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	Deadline    time.Time  `json:"deadline"`
}

// Stats is a point-in-time count of the broker's contents.
type Stats struct {
	Pending int `json:"pending"`
	Queued  int `json:"queued"`
	Claimed int `json:"claimed"`
	Waiters int `json:"waiters"`
}

// Transition records a single state change. Args is only set when a command
// is first submitted; Error is set for failed and timed out commands.
type Transition struct {
	ID      string
	Tool    string
	Args    json.RawMessage
	From    State
	To      State
	At      time.Time
	Elapsed time.Duration
	Error   string
}
