package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/qrgate/internal/config"
	"github.com/danmuck/qrgate/internal/dispatch"
	"github.com/danmuck/qrgate/internal/ingest"
	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/notify/notifytest"
	"github.com/danmuck/qrgate/internal/testutil/testlog"
	"github.com/danmuck/qrgate/internal/verify"
)

const waitTimeout = 3 * time.Second

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.ID = "gate-test"
	cfg.ListenAddr = freeAddr(t)
	cfg.ReadTimeout = time.Second
	cfg.Verify.Secret = "0123456789abcdef-app-secret"
	cfg.Dispatch.BaseURL = "http://127.0.0.1:1"
	return cfg
}

func waitServing(t *testing.T, s *ingest.Supervisor) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !s.ListenerState().Serving() {
		if time.Now().After(deadline) {
			t.Fatalf("listener never started, state=%s", s.ListenerState())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBuildRejectsBadWiring(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t)
	cfg.Verify.Secret = "short"
	if _, err := Build(cfg, Options{}); !errors.Is(err, verify.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}

	cfg = testConfig(t)
	cfg.Dispatch.BaseURL = ""
	if _, err := Build(cfg, Options{}); !errors.Is(err, dispatch.ErrBaseURLRequired) {
		t.Fatalf("expected ErrBaseURLRequired, got %v", err)
	}

	cfg = testConfig(t)
	cfg.QueueSize = 0
	if _, err := Build(cfg, Options{}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAppEndToEnd(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t)
	cfg.Status.Addr = freeAddr(t)

	scheme, err := verify.NewSecretboxScheme([]byte(cfg.Verify.Secret))
	if err != nil {
		t.Fatalf("scheme: %v", err)
	}
	granted := make(chan string, 4)
	fwd := dispatch.ForwarderFunc(func(_ context.Context, payload string) dispatch.Result {
		granted <- payload
		return dispatch.Result{OK: true, Status: http.StatusOK}
	})
	rec := notifytest.New()
	var console strings.Builder

	a, err := Build(cfg, Options{Out: &console, Forwarder: fwd, Sinks: []notify.Sink{rec}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	waitServing(t, a.Supervisor())

	token, err := scheme.Seal("locker=3")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sendCtx, sendCancel := context.WithTimeout(context.Background(), waitTimeout)
	defer sendCancel()
	if err := ingest.Send(sendCtx, cfg.ListenAddr, []byte(token)); err != nil {
		t.Fatalf("send sealed: %v", err)
	}
	if err := ingest.Send(sendCtx, cfg.ListenAddr, []byte("forged-token")); err != nil {
		t.Fatalf("send forged: %v", err)
	}

	got := rec.WaitOutcomes(t, 2, waitTimeout)
	if !got[0].OK() || got[0].Payload != "locker=3" {
		t.Fatalf("first outcome: %+v", got[0])
	}
	if got[1].OK() || got[1].Reason != notify.ReasonVerification {
		t.Fatalf("second outcome: %+v", got[1])
	}
	select {
	case p := <-granted:
		if p != "locker=3" {
			t.Fatalf("forwarded payload %q", p)
		}
	default:
		t.Fatalf("verified payload was not forwarded")
	}
	select {
	case p := <-granted:
		t.Fatalf("forged payload reached the access service: %q", p)
	default:
	}
	if s, f := a.History().Totals(); s != 1 || f != 1 {
		t.Fatalf("history totals success=%d failure=%d", s, f)
	}

	resp, err := http.Get("http://" + cfg.Status.Addr + "/ready")
	if err != nil {
		t.Fatalf("ready probe: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("app did not stop")
	}
	if !strings.Contains(console.String(), "QR OK: locker=3") {
		t.Fatalf("console missing success line: %q", console.String())
	}
	testlog.Logf("app/e2e: console=%q", console.String())
}

func TestAppStopsWhenListenerCannotBind(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t)
	cfg.Supervisor.RestartPolicy = "never"
	held, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		t.Fatalf("hold port: %v", err)
	}
	defer held.Close()

	a, err := Build(cfg, Options{Forwarder: dispatch.ForwarderFunc(func(context.Context, string) dispatch.Result {
		return dispatch.Result{OK: true}
	})})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, ingest.ErrListenerFault) {
			t.Fatalf("expected listener fault, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("app did not stop after bind fault")
	}
	if stops := a.History().Stops(); len(stops) != 1 {
		t.Fatalf("expected one recorded stop, got %d", len(stops))
	}
}
