// Package dispatch forwards authenticated payloads to the downstream access service.
//
// One attempt per payload. Transport errors, timeouts and non-2xx replies
// become a failed Result; nothing escapes as a panic or error return.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/qrgate/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrBaseURLRequired = errors.New("dispatch: base url required")

const (
	DefaultPath    = "/access"
	DefaultTimeout = 5 * time.Second

	maxDetailBytes = 512
)

// Result reports one access service call. Status is 0 when no response was received.
type Result struct {
	OK        bool
	Status    int
	Detail    string
	RequestID string
	Duration  time.Duration
}

type Forwarder interface {
	Dispatch(ctx context.Context, payload string) Result
}

// ForwarderFunc adapts a function into a Forwarder.
type ForwarderFunc func(ctx context.Context, payload string) Result

func (f ForwarderFunc) Dispatch(ctx context.Context, payload string) Result { return f(ctx, payload) }

type Config struct {
	BaseURL string
	Path    string
	Token   string
	Timeout time.Duration
	HTTP    *http.Client
}

// accessRequest is the JSON body posted to the access service.
type accessRequest struct {
	Payload   string `json:"payload"`
	RequestID string `json:"request_id"`
}

type HTTPForwarder struct {
	endpoint string
	token    string
	timeout  time.Duration
	http     *http.Client
}

func NewHTTPForwarder(cfg Config) (*HTTPForwarder, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("dispatch: invalid base url %q: %w", base, err)
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPForwarder{
		endpoint: base + path,
		token:    strings.TrimSpace(cfg.Token),
		timeout:  timeout,
		http:     client,
	}, nil
}

func (f *HTTPForwarder) Endpoint() string {
	return f.endpoint
}

func (f *HTTPForwarder) Dispatch(ctx context.Context, payload string) (res Result) {
	res.RequestID = uuid.NewString()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Detail = fmt.Sprintf("dispatch panic: %v", r)
		}
		res.Duration = time.Since(start)
		observability.RecordDispatch(res.Status, res.Duration, res.OK)
		event := log.Debug()
		if !res.OK {
			event = log.Warn()
		}
		event.
			Str("request_id", res.RequestID).
			Str("endpoint", f.endpoint).
			Int("status", res.Status).
			Dur("duration", res.Duration).
			Bool("ok", res.OK).
			Str("detail", res.Detail).
			Msg("dispatch.HTTPForwarder.Dispatch")
	}()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(accessRequest{Payload: payload, RequestID: res.RequestID}); err != nil {
		res.Detail = err.Error()
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, buf)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", res.RequestID)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		res.Detail = fmt.Sprintf("access service %s", resp.Status)
		if msg := strings.TrimSpace(string(body)); msg != "" {
			res.Detail += ": " + msg
		}
		return res
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDetailBytes))
	res.OK = true
	return res
}
