// Package notify carries connection outcomes from the network loop to the
// notification sink without ever blocking the network loop.
//
// The Notifier owns a bounded queue with exactly one consumer. Outcomes are
// delivered in the order they were queued; a full queue drops the new
// outcome instead of stalling the producer. Stop events travel through the
// same queue so the sink sees them after every outcome that preceded the
// fault.
package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/danmuck/qrgate/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotifierClosed  = errors.New("notify: notifier closed")
	ErrNotifierRunning = errors.New("notify: notifier already running")
)

const DefaultQueueSize = 64

type decisionReply struct {
	decision Decision
	err      error
}

type stopRequest struct {
	ev    StopEvent
	reply chan decisionReply
}

// envelope holds either an outcome or a stop request.
type envelope struct {
	outcome Outcome
	stop    *stopRequest
}

type Notifier struct {
	sink    Sink
	queue   chan envelope
	seq     atomic.Uint64
	dropped atomic.Uint64
	running atomic.Bool
	done    chan struct{}
}

func NewNotifier(sink Sink, size int) *Notifier {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Notifier{
		sink:  sink,
		queue: make(chan envelope, size),
		done:  make(chan struct{}),
	}
}

// Notify stamps o with the next sequence number and queues it. It never
// blocks; false means the queue was full and o was dropped.
func (n *Notifier) Notify(o Outcome) bool {
	o.Seq = n.seq.Add(1)
	select {
	case n.queue <- envelope{outcome: o}:
		return true
	default:
		n.dropped.Add(1)
		observability.RecordNotifyDropped()
		log.Warn().
			Uint64("seq", o.Seq).
			Str("kind", string(o.Kind)).
			Str("reason", string(o.Reason)).
			Int("queue_cap", cap(n.queue)).
			Msg("notify.Notifier.Notify queue full, outcome dropped")
		return false
	}
}

// Stopped queues ev behind any pending outcomes and waits for the sink's
// decision. Any failure to obtain a decision reads as DecisionStop.
func (n *Notifier) Stopped(ctx context.Context, ev StopEvent) (Decision, error) {
	req := &stopRequest{ev: ev, reply: make(chan decisionReply, 1)}
	select {
	case n.queue <- envelope{stop: req}:
	case <-n.done:
		return DecisionStop, ErrNotifierClosed
	case <-ctx.Done():
		return DecisionStop, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.decision, r.err
	case <-n.done:
		select {
		case r := <-req.reply:
			return r.decision, r.err
		default:
			return DecisionStop, ErrNotifierClosed
		}
	case <-ctx.Done():
		return DecisionStop, ctx.Err()
	}
}

// Run is the single consumer loop. It returns after ctx is cancelled and the
// queue has been drained.
func (n *Notifier) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrNotifierRunning
	}
	defer close(n.done)

	for {
		select {
		case <-ctx.Done():
			n.drain()
			return nil
		case env := <-n.queue:
			n.deliver(ctx, env)
		}
	}
}

func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

func (n *Notifier) Pending() int {
	return len(n.queue)
}

// Done is closed once Run has returned.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

func (n *Notifier) drain() {
	for {
		select {
		case env := <-n.queue:
			if env.stop != nil {
				env.stop.reply <- decisionReply{decision: DecisionStop, err: ErrNotifierClosed}
				continue
			}
			n.deliver(context.Background(), env)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, env envelope) {
	replied := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("notify.Notifier.deliver sink panicked")
			observability.RecordSinkError("panic")
			if env.stop != nil && !replied {
				env.stop.reply <- decisionReply{decision: DecisionStop, err: errors.New("notify: sink panicked")}
			}
		}
	}()

	if env.stop != nil {
		d, err := n.sink.ListenerStopped(ctx, env.stop.ev)
		if err != nil {
			log.Warn().Err(err).Str("addr", env.stop.ev.Addr).Msg("notify.Notifier.deliver no restart decision")
			d = DecisionStop
		}
		replied = true
		env.stop.reply <- decisionReply{decision: d, err: err}
		return
	}

	o := env.outcome
	event := "qr_success"
	var err error
	if o.OK() {
		err = n.sink.QRSuccess(o)
	} else {
		event = "qr_failure"
		err = n.sink.QRFailure(o)
	}
	if err != nil {
		observability.RecordSinkError(event)
		log.Warn().Err(err).Uint64("seq", o.Seq).Str("event", event).Msg("notify.Notifier.deliver sink unavailable")
	}
}
