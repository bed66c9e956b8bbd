package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrInvalidRestartPolicy = errors.New("notify: invalid restart policy")

// RestartPolicy decides how a ConsoleSink answers a stop event.
type RestartPolicy string

const (
	PolicyPrompt RestartPolicy = "prompt"
	PolicyAlways RestartPolicy = "always"
	PolicyNever  RestartPolicy = "never"
)

func ParseRestartPolicy(raw string) (RestartPolicy, error) {
	switch p := RestartPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyPrompt, PolicyAlways, PolicyNever:
		return p, nil
	case "":
		return PolicyPrompt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRestartPolicy, raw)
	}
}

// ConsoleSink prints notices to out and, under PolicyPrompt, asks on in
// whether to restart a faulted listener.
type ConsoleSink struct {
	out    io.Writer
	in     io.Reader
	policy RestartPolicy

	mu       sync.Mutex
	readOnce sync.Once
	lines    chan string
}

func NewConsoleSink(out io.Writer, in io.Reader, policy RestartPolicy) *ConsoleSink {
	if policy == "" {
		policy = PolicyPrompt
	}
	return &ConsoleSink{out: out, in: in, policy: policy}
}

func (c *ConsoleSink) QRSuccess(o Outcome) error {
	log.Info().Str("id", o.ID).Uint64("seq", o.Seq).Str("remote", o.Remote).Msg("notify.ConsoleSink qr success")
	return c.printf("[%s] QR OK: %s\n", stamp(o.At), o.Message())
}

func (c *ConsoleSink) QRFailure(o Outcome) error {
	log.Warn().
		Str("id", o.ID).
		Uint64("seq", o.Seq).
		Str("reason", string(o.Reason)).
		Str("detail", o.Detail).
		Str("remote", o.Remote).
		Msg("notify.ConsoleSink qr failure")
	return c.printf("[%s] QR FAILED: %s\n", stamp(o.At), o.Message())
}

func (c *ConsoleSink) ListenerStopped(ctx context.Context, ev StopEvent) (Decision, error) {
	if err := c.printf("listener on %s stopped: %s\n", ev.Addr, ev.Err); err != nil {
		return DecisionStop, err
	}
	switch c.policy {
	case PolicyAlways:
		_ = c.printf("restarting listener (restart %d)\n", ev.Restarts+1)
		return DecisionRestart, nil
	case PolicyNever:
		_ = c.printf("shutting down\n")
		return DecisionStop, nil
	}
	return c.prompt(ctx)
}

func (c *ConsoleSink) prompt(ctx context.Context) (Decision, error) {
	if c.in == nil {
		return DecisionStop, ErrNoDecision
	}
	c.readOnce.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				c.lines <- scanner.Text()
			}
		}()
	})
	if err := c.printf("restart listener? [y/N]: "); err != nil {
		return DecisionStop, err
	}
	select {
	case <-ctx.Done():
		return DecisionStop, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return DecisionStop, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return DecisionRestart, nil
		default:
			return DecisionStop, nil
		}
	}
}

func (c *ConsoleSink) printf(format string, args ...any) error {
	if c.out == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(time.TimeOnly)
}
