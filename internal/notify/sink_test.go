package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/notify/notifytest"
	"github.com/danmuck/qrgate/internal/testutil/testlog"
)

func TestOutcomeMessages(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		o    notify.Outcome
		want string
	}{
		{notify.Success("ABC123"), "ABC123"},
		{notify.Failure(notify.ReasonVerification, "signature mismatch"), "Invalid QR Code: Verification Failed"},
		{notify.Failure(notify.ReasonDecode, "codec: invalid utf-8 at byte 0"), "Invalid QR Code: Decode Failed: codec: invalid utf-8 at byte 0"},
		{notify.Failure(notify.ReasonTimeout, "i/o timeout"), "Invalid QR Code: Read Timeout"},
		{notify.Failure(notify.ReasonDispatch, "access service 503 Service Unavailable"), "Access Service Error: access service 503 Service Unavailable"},
		{notify.Failure(notify.ReasonRead, ""), "Connection Error"},
		{notify.Failure(notify.ReasonInternal, "panic"), "Internal Error: panic"},
	}
	for _, tc := range cases {
		if got := tc.o.Message(); got != tc.want {
			t.Fatalf("Message()=%q want %q", got, tc.want)
		}
		if tc.o.ID == "" || tc.o.At.IsZero() {
			t.Fatalf("outcome missing id/time: %+v", tc.o)
		}
	}
}

func TestConsoleSinkPolicies(t *testing.T) {
	testlog.Start(t)
	ev := notify.StopEvent{Addr: "0.0.0.0:12345", Err: "accept: use of closed network connection"}

	var out bytes.Buffer
	always := notify.NewConsoleSink(&out, nil, notify.PolicyAlways)
	if d, err := always.ListenerStopped(context.Background(), ev); err != nil || d != notify.DecisionRestart {
		t.Fatalf("always: decision=%q err=%v", d, err)
	}
	never := notify.NewConsoleSink(&out, nil, notify.PolicyNever)
	if d, err := never.ListenerStopped(context.Background(), ev); err != nil || d != notify.DecisionStop {
		t.Fatalf("never: decision=%q err=%v", d, err)
	}
	if !strings.Contains(out.String(), "listener on 0.0.0.0:12345 stopped") {
		t.Fatalf("missing stop notice: %q", out.String())
	}
}

func TestConsoleSinkPrompt(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	c := notify.NewConsoleSink(&out, strings.NewReader("yes\nn\n"), notify.PolicyPrompt)
	ev := notify.StopEvent{Addr: "x", Err: "boom"}

	if d, _ := c.ListenerStopped(context.Background(), ev); d != notify.DecisionRestart {
		t.Fatalf("first answer should restart, got %q", d)
	}
	if d, _ := c.ListenerStopped(context.Background(), ev); d != notify.DecisionStop {
		t.Fatalf("second answer should stop, got %q", d)
	}
	if d, err := c.ListenerStopped(context.Background(), ev); d != notify.DecisionStop || err != nil {
		t.Fatalf("EOF should stop cleanly, got %q %v", d, err)
	}
	if strings.Count(out.String(), "restart listener? [y/N]: ") != 3 {
		t.Fatalf("unexpected prompt output: %q", out.String())
	}

	noInput := notify.NewConsoleSink(&out, nil, notify.PolicyPrompt)
	if _, err := noInput.ListenerStopped(context.Background(), ev); !errors.Is(err, notify.ErrNoDecision) {
		t.Fatalf("expected ErrNoDecision without input, got %v", err)
	}
}

func TestConsoleSinkNotices(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	c := notify.NewConsoleSink(&out, nil, notify.PolicyNever)
	if err := c.QRSuccess(notify.Success("ABC123")); err != nil {
		t.Fatalf("success: %v", err)
	}
	if err := c.QRFailure(notify.Failure(notify.ReasonVerification, "")); err != nil {
		t.Fatalf("failure: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "QR OK: ABC123") || !strings.Contains(text, "QR FAILED: Invalid QR Code: Verification Failed") {
		t.Fatalf("unexpected console output: %q", text)
	}
}

func TestParseRestartPolicy(t *testing.T) {
	testlog.Start(t)
	if p, err := notify.ParseRestartPolicy(" Always "); err != nil || p != notify.PolicyAlways {
		t.Fatalf("unexpected policy %q err=%v", p, err)
	}
	if p, err := notify.ParseRestartPolicy(""); err != nil || p != notify.PolicyPrompt {
		t.Fatalf("empty policy should default to prompt, got %q err=%v", p, err)
	}
	if _, err := notify.ParseRestartPolicy("sometimes"); !errors.Is(err, notify.ErrInvalidRestartPolicy) {
		t.Fatalf("expected ErrInvalidRestartPolicy, got %v", err)
	}
}

func TestHistoryKeepsRecentAndTotals(t *testing.T) {
	testlog.Start(t)
	h := notify.NewHistory(3)
	for _, p := range []string{"a", "b", "c", "d"} {
		_ = h.QRSuccess(notify.Success(p))
	}
	_ = h.QRFailure(notify.Failure(notify.ReasonDecode, ""))

	recent := h.Recent(10)
	if len(recent) != 3 || recent[0].Payload != "c" || recent[2].Kind != notify.KindFailure {
		t.Fatalf("unexpected recent: %+v", recent)
	}
	if got := h.Recent(1); len(got) != 1 || got[0].Kind != notify.KindFailure {
		t.Fatalf("unexpected limited recent: %+v", got)
	}
	if s, f := h.Totals(); s != 4 || f != 1 {
		t.Fatalf("unexpected totals success=%d failure=%d", s, f)
	}
}

func TestFanoutObserversAndDecider(t *testing.T) {
	testlog.Start(t)
	h := notify.NewHistory(10)
	rec := notifytest.New()
	rec.Answer(notify.DecisionRestart)
	f := notify.Fanout{h, rec}

	if err := f.QRSuccess(notify.Success("ABC123")); err != nil {
		t.Fatalf("fanout success: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := f.ListenerStopped(ctx, notify.StopEvent{Addr: "x", Err: "boom"})
	if err != nil || d != notify.DecisionRestart {
		t.Fatalf("unexpected decision=%q err=%v", d, err)
	}
	if len(h.Stops()) != 1 || len(rec.Stops()) != 1 {
		t.Fatalf("stop not fanned out history=%d recorder=%d", len(h.Stops()), len(rec.Stops()))
	}
	if len(h.Recent(0)) != 1 || len(rec.Outcomes()) != 1 {
		t.Fatalf("outcome not fanned out")
	}

	onlyHistory := notify.Fanout{notify.NewHistory(1)}
	if d, err := onlyHistory.ListenerStopped(ctx, notify.StopEvent{}); d != notify.DecisionStop || !errors.Is(err, notify.ErrNoDecision) {
		t.Fatalf("expected stop without decider, got %q %v", d, err)
	}
}
