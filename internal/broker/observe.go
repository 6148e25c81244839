package broker

import (
	"github.com/mattjoyce/toolbridge/internal/events"
)

// Event types published for command transitions.
const (
	EventSubmitted = "command.submitted"
	EventClaimed   = "command.claimed"
	EventCompleted = "command.completed"
	EventFailed    = "command.failed"
	EventTimedOut  = "command.timed_out"
)

// EventType maps a transition's target state to its published event type.
func EventType(to State) string {
	switch to {
	case StateQueued:
		return EventSubmitted
	case StateClaimed:
		return EventClaimed
	case StateCompleted:
		return EventCompleted
	case StateFailed:
		return EventFailed
	case StateTimedOut:
		return EventTimedOut
	default:
		return "command." + string(to)
	}
}

// PublishTo returns an Observer that forwards transitions to hub. Args are
// not published; they can be large and are opaque to observers.
func PublishTo(hub *events.Hub) Observer {
	return ObserverFunc(func(t Transition) {
		data := map[string]any{
			"command_id": t.ID,
			"tool":       t.Tool,
			"state":      string(t.To),
			"elapsed_ms": t.Elapsed.Milliseconds(),
		}
		if t.From != "" {
			data["from"] = string(t.From)
		}
		if t.Error != "" {
			data["error"] = t.Error
		}
		hub.Publish(EventType(t.To), data)
	})
}
