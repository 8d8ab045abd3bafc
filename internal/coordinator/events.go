package coordinator

import (
	"farmctl/internal/fleet"
	"farmctl/pkg/logging"
)

// EventKind classifies coordinator events.
type EventKind string

const (
	EventClaimed       EventKind = "claimed"
	EventClaimFailed   EventKind = "claim_failed"
	EventReleased      EventKind = "released"
	EventStatusChanged EventKind = "status_changed"
)

// Event is broadcast to subscribers when fleet state changes.
type Event struct {
	Kind         EventKind
	JobID        string
	Count        int
	WorkerID     string
	WorkerStatus fleet.WorkerStatus
	Err          error
}

// Subscribe returns a channel receiving coordinator events. Slow consumers
// lose events rather than blocking the coordinator.
func (c *Coordinator) Subscribe() <-chan Event {
	ch := make(chan Event, 100)
	c.eventsMu.Lock()
	c.events = append(c.events, ch)
	c.eventsMu.Unlock()
	return ch
}

func (c *Coordinator) publish(event Event) {
	c.eventsMu.RLock()
	subscribers := make([]chan<- Event, len(c.events))
	copy(subscribers, c.events)
	c.eventsMu.RUnlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			logging.Warn("Coordinator", "Dropped %s event (subscriber channel full)", event.Kind)
		}
	}
}
