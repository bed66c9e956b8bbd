package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/observability"
	"github.com/rs/zerolog/log"
)

// Decider answers whether a faulted listener should be restarted.
type Decider interface {
	Stopped(ctx context.Context, ev notify.StopEvent) (notify.Decision, error)
}

// SupervisorConfig configures restart behavior. MaxRestarts of zero means
// unlimited.
type SupervisorConfig struct {
	Listener    ListenerConfig
	MaxRestarts int
	Backoff     BackoffConfig
}

// Supervisor keeps exactly one Listener alive and routes faults through
// the Decider.
type Supervisor struct {
	cfg       SupervisorConfig
	processor *Processor
	outcomes  Outcomes
	decider   Decider

	running  atomic.Bool
	restarts atomic.Int64
	// rng is only touched by Run.
	rng *rand.Rand

	mu      sync.RWMutex
	current *Listener
}

func NewSupervisor(cfg SupervisorConfig, processor *Processor, outcomes Outcomes, decider Decider) *Supervisor {
	cfg.Listener = cfg.Listener.WithDefaults()
	return &Supervisor{
		cfg:       cfg,
		processor: processor,
		outcomes:  outcomes,
		decider:   decider,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is cancelled (nil) or the sink declines a restart
// (the fault is returned).
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSupervisorRunning
	}
	defer s.running.Store(false)

	attempt := 0
	for {
		l := NewListener(s.cfg.Listener, s.processor, s.outcomes)
		s.setCurrent(l)

		err := l.Run(ctx)
		if err == nil || ctx.Err() != nil {
			log.Info().Str("addr", s.cfg.Listener.Addr).Msg("ingest.Supervisor.Run shutdown")
			return nil
		}

		if l.Served() > 0 {
			attempt = 0
		}
		attempt++
		restarts := int(s.restarts.Load())
		log.Error().
			Err(err).
			Str("addr", s.cfg.Listener.Addr).
			Int("restarts", restarts).
			Int("attempt", attempt).
			Msg("ingest.Supervisor.Run listener faulted")

		if s.cfg.MaxRestarts > 0 && restarts >= s.cfg.MaxRestarts {
			return fmt.Errorf("%w (%d): %w", ErrRestartLimit, restarts, err)
		}

		decision := notify.DecisionStop
		if s.decider != nil {
			ev := notify.StopEvent{
				Addr:     s.cfg.Listener.Addr,
				Err:      err.Error(),
				Restarts: restarts,
				At:       time.Now(),
			}
			d, derr := s.decider.Stopped(ctx, ev)
			if ctx.Err() != nil {
				return nil
			}
			if derr != nil {
				log.Warn().Err(derr).Msg("ingest.Supervisor.Run restart decision unavailable")
			}
			decision = d
		}
		if decision != notify.DecisionRestart {
			log.Info().Str("addr", s.cfg.Listener.Addr).Msg("ingest.Supervisor.Run stopping after fault")
			return err
		}

		if err := waitBackoff(ctx, NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)); err != nil {
			return nil
		}
		s.restarts.Add(1)
		observability.RecordListenerRestart()
		log.Info().Int("restart", restarts+1).Str("addr", s.cfg.Listener.Addr).Msg("ingest.Supervisor.Run restarting listener")
	}
}

// ListenerState reports the state of the live listener.
func (s *Supervisor) ListenerState() State {
	l := s.Current()
	if l == nil {
		return StateStarting
	}
	return l.State()
}

func (s *Supervisor) Current() *Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Supervisor) Restarts() int {
	return int(s.restarts.Load())
}

func (s *Supervisor) setCurrent(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = l
}
