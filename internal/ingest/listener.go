package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr            = "0.0.0.0:12345"
	DefaultMaxPayloadBytes = 1024
	DefaultReadTimeout     = 10 * time.Second
)

// Outcomes receives the one Outcome produced per connection. It must not block.
type Outcomes interface {
	Notify(o notify.Outcome) bool
}

// ListenerConfig configures one listener instance. ReadTimeout of zero
// disables the per-connection read deadline.
type ListenerConfig struct {
	Addr            string
	MaxPayloadBytes int
	ReadTimeout     time.Duration
}

func (c ListenerConfig) WithDefaults() ListenerConfig {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	return c
}

// Listener owns one TCP socket and serves connections strictly one at a
// time. A Listener runs once; restarts use a fresh instance.
type Listener struct {
	cfg       ListenerConfig
	processor *Processor
	outcomes  Outcomes

	state   atomic.Int32
	served  atomic.Uint64
	running atomic.Bool
	bound   chan struct{}

	mu   sync.RWMutex
	addr net.Addr
}

func NewListener(cfg ListenerConfig, processor *Processor, outcomes Outcomes) *Listener {
	return &Listener{
		cfg:       cfg.WithDefaults(),
		processor: processor,
		outcomes:  outcomes,
		bound:     make(chan struct{}),
	}
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

// Served counts connections that produced an Outcome.
func (l *Listener) Served() uint64 {
	return l.served.Load()
}

// Addr is the bound address, or nil before bind.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.addr
}

// Bound is closed once the socket is listening.
func (l *Listener) Bound() <-chan struct{} {
	return l.bound
}

// Run binds and serves until ctx is cancelled (nil) or the loop faults
// (*FaultError).
func (l *Listener) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrListenerRunning
	}
	l.setState(StateStarting)

	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return l.fault("bind", err)
	}
	defer ln.Close()
	l.mu.Lock()
	l.addr = ln.Addr()
	l.mu.Unlock()
	close(l.bound)

	// Closing the socket is the only way to interrupt a blocked Accept.
	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-doneCh:
		}
	}()

	log.Info().
		Str("addr", ln.Addr().String()).
		Int("max_payload_bytes", l.cfg.MaxPayloadBytes).
		Dur("read_timeout", l.cfg.ReadTimeout).
		Msg("ingest.Listener.Run listening")

	for {
		l.setState(StateListening)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateStopped)
				log.Info().Str("addr", ln.Addr().String()).Msg("ingest.Listener.Run stopped")
				return nil
			}
			return l.fault("accept", err)
		}
		l.setState(StateAccepting)
		if err := l.serveConn(ctx, conn); err != nil {
			return err
		}
	}
}

// serveConn produces exactly one Outcome and closes conn exactly once. Only
// a panic in the pipeline escapes as a fault.
func (l *Listener) serveConn(ctx context.Context, conn net.Conn) (err error) {
	remote := conn.RemoteAddr().String()
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	// Shutdown must not wait on a silent peer when no read deadline is set.
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	emitted := false
	defer func() {
		closeConn()
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic: %v", r)
			if !emitted {
				o := notify.Failure(notify.ReasonInternal, cause.Error())
				o.Remote = remote
				l.emit(o)
			}
			err = l.fault("process", cause)
		}
	}()

	raw, readErr := l.read(conn)
	l.setState(StateProcessing)

	var o notify.Outcome
	if readErr != nil && len(raw) == 0 {
		o = readFailure(readErr)
	} else {
		if readErr != nil {
			log.Debug().Err(readErr).Str("remote", remote).Int("bytes", len(raw)).
				Msg("ingest.Listener.serveConn partial read, processing received bytes")
		}
		o = l.processor.Process(ctx, raw)
	}
	o.Remote = remote
	emitted = true
	l.emit(o)
	l.served.Add(1)
	return nil
}

// read returns everything the peer sent before closing, up to the byte cap
// or the read deadline.
func (l *Listener) read(conn net.Conn) ([]byte, error) {
	if l.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(io.LimitReader(conn, int64(l.cfg.MaxPayloadBytes)))
}

// emit reports whether the outcome was handed to the notifier.
func (l *Listener) emit(o notify.Outcome) bool {
	observability.RecordOutcome(string(o.Kind), string(o.Reason))
	queued := false
	if l.outcomes != nil {
		queued = l.outcomes.Notify(o)
	}
	event := log.Info()
	if !o.OK() || !queued {
		event = log.Warn()
	}
	if !o.OK() {
		event = event.Str("reason", string(o.Reason)).Str("detail", o.Detail)
	}
	event.Str("id", o.ID).Str("remote", o.Remote).Str("kind", string(o.Kind)).
		Bool("queued", queued).
		Msg("ingest.Listener outcome")
	return queued
}

func (l *Listener) fault(op string, err error) error {
	l.setState(StateFaulted)
	observability.RecordListenerFault(op)
	log.Error().Err(err).Str("op", op).Str("addr", l.cfg.Addr).Msg("ingest.Listener.Run faulted")
	return &FaultError{Op: op, Addr: l.cfg.Addr, Err: err}
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
}

func readFailure(err error) notify.Outcome {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return notify.Failure(notify.ReasonTimeout, err.Error())
	}
	return notify.Failure(notify.ReasonRead, err.Error())
}
