// Package notifytest provides a recording notification sink for tests.
package notifytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/qrgate/internal/notify"
)

// Recorder is a notify.Sink that remembers every event. Set Gate before use
// to hold deliveries until it is closed, and Err to fail every delivery.
type Recorder struct {
	Gate chan struct{}
	Err  error

	mu        sync.Mutex
	outcomes  []notify.Outcome
	stops     []notify.StopEvent
	decisions chan notify.Decision
}

func New() *Recorder {
	return &Recorder{decisions: make(chan notify.Decision, 16)}
}

// Answer queues the decision returned for the next stop event.
func (r *Recorder) Answer(d notify.Decision) {
	r.decisions <- d
}

func (r *Recorder) QRSuccess(o notify.Outcome) error {
	return r.record(o)
}

func (r *Recorder) QRFailure(o notify.Outcome) error {
	return r.record(o)
}

func (r *Recorder) ListenerStopped(ctx context.Context, ev notify.StopEvent) (notify.Decision, error) {
	r.mu.Lock()
	r.stops = append(r.stops, ev)
	r.mu.Unlock()
	select {
	case d := <-r.decisions:
		return d, nil
	case <-ctx.Done():
		return notify.DecisionStop, ctx.Err()
	}
}

func (r *Recorder) record(o notify.Outcome) error {
	if r.Gate != nil {
		<-r.Gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return r.Err
}

func (r *Recorder) Outcomes() []notify.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

func (r *Recorder) Stops() []notify.StopEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.StopEvent, len(r.stops))
	copy(out, r.stops)
	return out
}

// WaitOutcomes blocks until at least n outcomes were delivered or fails t
// after timeout.
func (r *Recorder) WaitOutcomes(t testing.TB, n int, timeout time.Duration) []notify.Outcome {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		got := r.Outcomes()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d outcomes, got %d: %+v", n, len(got), got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitStops blocks until at least n stop events were observed.
func (r *Recorder) WaitStops(t testing.TB, n int, timeout time.Duration) []notify.StopEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		got := r.Stops()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d stop events, got %d", n, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
