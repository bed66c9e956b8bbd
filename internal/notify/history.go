package notify

import (
	"context"
	"sync"
)

const DefaultHistoryLimit = 100

// History keeps the most recent outcomes and stop events for inspection.
type History struct {
	mu       sync.Mutex
	limit    int
	outcomes []Outcome
	stops    []StopEvent
	success  uint64
	failure  uint64
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		limit:    limit,
		outcomes: make([]Outcome, 0),
		stops:    make([]StopEvent, 0),
	}
}

func (h *History) QRSuccess(o Outcome) error {
	h.record(o)
	return nil
}

func (h *History) QRFailure(o Outcome) error {
	h.record(o)
	return nil
}

func (h *History) ListenerStopped(_ context.Context, ev StopEvent) (Decision, error) {
	h.ObserveStop(ev)
	return DecisionStop, ErrNoDecision
}

func (h *History) ObserveStop(ev StopEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops = append(h.stops, ev)
	if len(h.stops) > h.limit {
		h.stops = h.stops[len(h.stops)-h.limit:]
	}
}

func (h *History) record(o Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if o.OK() {
		h.success++
	} else {
		h.failure++
	}
	h.outcomes = append(h.outcomes, o)
	if len(h.outcomes) > h.limit {
		h.outcomes = h.outcomes[len(h.outcomes)-h.limit:]
	}
}

// Recent returns up to limit outcomes, oldest first.
func (h *History) Recent(limit int) []Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	if len(h.outcomes) <= limit {
		out := make([]Outcome, len(h.outcomes))
		copy(out, h.outcomes)
		return out
	}
	out := make([]Outcome, limit)
	copy(out, h.outcomes[len(h.outcomes)-limit:])
	return out
}

func (h *History) Stops() []StopEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StopEvent, len(h.stops))
	copy(out, h.stops)
	return out
}

// Totals counts every outcome recorded, including ones trimmed from Recent.
func (h *History) Totals() (success, failure uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.success, h.failure
}
