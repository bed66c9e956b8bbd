package notify

import (
	"context"
	"errors"
)

// ErrNoDecision is returned by sinks that observe lifecycle events but do
// not answer them.
var ErrNoDecision = errors.New("notify: sink does not decide")

// Decider answers the restart prompt raised when the listener faults.
type Decider interface {
	ListenerStopped(ctx context.Context, ev StopEvent) (Decision, error)
}

// Sink is the notification contract consumed by the front-end.
type Sink interface {
	QRSuccess(o Outcome) error
	QRFailure(o Outcome) error
	Decider
}

// StopObserver is implemented by sinks that record stop events without
// answering them.
type StopObserver interface {
	ObserveStop(ev StopEvent)
}

// Fanout delivers every event to each sink in order. Observers see every
// stop event; the first other sink that answers decides it.
type Fanout []Sink

func (f Fanout) QRSuccess(o Outcome) error {
	var errs []error
	for _, s := range f {
		if err := s.QRSuccess(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) QRFailure(o Outcome) error {
	var errs []error
	for _, s := range f {
		if err := s.QRFailure(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) ListenerStopped(ctx context.Context, ev StopEvent) (Decision, error) {
	var errs []error
	for _, s := range f {
		if obs, ok := s.(StopObserver); ok {
			obs.ObserveStop(ev)
		}
	}
	for _, s := range f {
		if _, ok := s.(StopObserver); ok {
			continue
		}
		d, err := s.ListenerStopped(ctx, ev)
		if errors.Is(err, ErrNoDecision) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return d, nil
	}
	if len(errs) > 0 {
		return DecisionStop, errors.Join(errs...)
	}
	return DecisionStop, ErrNoDecision
}
