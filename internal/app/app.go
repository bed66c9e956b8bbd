// Package app assembles the gateway from configuration and runs its
// long-lived loops together.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/qrgate/internal/config"
	"github.com/danmuck/qrgate/internal/dispatch"
	"github.com/danmuck/qrgate/internal/ingest"
	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/status"
	"github.com/danmuck/qrgate/internal/verify"
	"github.com/rs/zerolog/log"
)

// Options overrides pieces of the default wiring. Zero values select the
// configured implementations. Extra Sinks are asked for restart decisions
// before the console.
type Options struct {
	Out       io.Writer
	In        io.Reader
	Scheme    verify.Scheme
	Forwarder dispatch.Forwarder
	Sinks     []notify.Sink
}

type App struct {
	cfg        config.Config
	notifier   *notify.Notifier
	history    *notify.History
	supervisor *ingest.Supervisor
	status     *status.Server
}

func Build(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scheme := opts.Scheme
	if scheme == nil {
		s, err := verify.NewScheme(cfg.Verify.Scheme, cfg.Verify.Secret, cfg.Verify.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("build verify scheme: %w", err)
		}
		scheme = s
	}

	forwarder := opts.Forwarder
	if forwarder == nil {
		f, err := dispatch.NewHTTPForwarder(dispatch.Config{
			BaseURL: cfg.Dispatch.BaseURL,
			Path:    cfg.Dispatch.Path,
			Token:   cfg.Dispatch.Token,
			Timeout: cfg.Dispatch.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("build forwarder: %w", err)
		}
		forwarder = f
	}

	policy, err := notify.ParseRestartPolicy(cfg.Supervisor.RestartPolicy)
	if err != nil {
		return nil, err
	}

	history := notify.NewHistory(cfg.HistoryLimit)
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	sinks := notify.Fanout{history}
	sinks = append(sinks, opts.Sinks...)
	sinks = append(sinks, notify.NewConsoleSink(out, opts.In, policy))

	notifier := notify.NewNotifier(sinks, cfg.QueueSize)
	processor := ingest.NewProcessor(verify.NewGate(scheme), forwarder)
	supervisor := ingest.NewSupervisor(ingest.SupervisorConfig{
		Listener: ingest.ListenerConfig{
			Addr:            cfg.ListenAddr,
			MaxPayloadBytes: cfg.MaxPayloadBytes,
			ReadTimeout:     cfg.ReadTimeout,
		},
		MaxRestarts: cfg.Supervisor.MaxRestarts,
		Backoff: ingest.BackoffConfig{
			InitialDelay: cfg.Supervisor.Backoff.InitialDelay,
			Multiplier:   cfg.Supervisor.Backoff.Multiplier,
			MaxDelay:     cfg.Supervisor.Backoff.MaxDelay,
			Jitter:       cfg.Supervisor.Backoff.Jitter,
		},
	}, processor, notifier, notifier)

	a := &App{
		cfg:        cfg,
		notifier:   notifier,
		history:    history,
		supervisor: supervisor,
	}
	if cfg.Status.Addr != "" {
		a.status = status.New(status.Config{
			ID:          cfg.ID,
			Addr:        cfg.Status.Addr,
			Token:       cfg.Status.Token,
			CorsOrigins: cfg.Status.CorsOrigins,
		}, supervisor, history)
	}
	return a, nil
}

func (a *App) History() *notify.History { return a.history }

func (a *App) Supervisor() *ingest.Supervisor { return a.supervisor }

func (a *App) Notifier() *notify.Notifier { return a.notifier }

// Run blocks until the supervisor exits. The notifier drains queued
// outcomes before Run returns.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().
		Str("id", a.cfg.ID).
		Str("listen", a.cfg.ListenAddr).
		Str("scheme", a.cfg.Verify.Scheme).
		Str("status", a.cfg.Status.Addr).
		Msg("app.Run starting")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.notifier.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("app.Run notifier exited")
		}
	}()

	if a.status != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.status.Run(runCtx); err != nil {
				log.Error().Err(err).Msg("app.Run status server exited")
			}
		}()
	}

	err := a.supervisor.Run(runCtx)
	cancel()
	wg.Wait()

	if err != nil {
		log.Error().Err(err).Msg("app.Run stopped")
		return err
	}
	log.Info().Msg("app.Run stopped")
	return nil
}
