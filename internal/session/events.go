package session

import (
	"github.com/bloktest/session-backend/internal/model"
)

// EventType enumerates events pushed to session subscribers.
type EventType string

const (
	// EventTick fires once per countdown second.
	EventTick EventType = "tick"
	// EventStatus fires on state-machine transitions.
	EventStatus EventType = "status"
	// EventAnswerSaved fires after an answer selection is persisted locally.
	EventAnswerSaved EventType = "answer_saved"
	// EventFinished fires once with the scored summary after a successful
	// submission.
	EventFinished EventType = "finished"
)

// Event is a presentation-facing session notification. Slow subscribers
// drop events rather than blocking the countdown.
type Event struct {
	Type      EventType            `json:"event"`
	Status    model.SessionStatus  `json:"status,omitempty"`
	Remaining int                  `json:"remaining,omitempty"`
	Formatted string               `json:"formatted_remaining,omitempty"`
	Answered  int                  `json:"answered,omitempty"`
	Summary   *model.ResultSummary `json:"summary,omitempty"`
}

// Subscribe registers a listener for session events. The returned cancel
// function must be called on disconnect.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// publish fans an event out to all subscribers without blocking.
func (c *Controller) publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default: // Subscriber too slow, drop.
		}
	}
}
