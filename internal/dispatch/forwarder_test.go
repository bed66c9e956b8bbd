package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/qrgate/internal/testutil/testlog"
)

func TestDispatchPostsPayload(t *testing.T) {
	testlog.Start(t)
	var got accessRequest
	var gotHeader, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/access" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotHeader = r.Header.Get("X-Request-ID")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f, err := NewHTTPForwarder(Config{BaseURL: srv.URL + "/api/", Path: "access", Token: "s3cret"})
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	res := f.Dispatch(context.Background(), "ABC123")
	if !res.OK || res.Status != http.StatusNoContent {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got.Payload != "ABC123" || got.RequestID != res.RequestID || gotHeader != res.RequestID {
		t.Fatalf("request mismatch body=%+v header=%q result=%+v", got, gotHeader, res)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
	testlog.Logf("dispatch/http: POST %s status=%d request_id=%s", f.Endpoint(), res.Status, res.RequestID)
}

func TestDispatchRejectedByService(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "locker busy", http.StatusConflict)
	}))
	defer srv.Close()

	f, err := NewHTTPForwarder(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	res := f.Dispatch(context.Background(), "ABC123")
	if res.OK || res.Status != http.StatusConflict {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Detail != "access service 409 Conflict: locker busy" {
		t.Fatalf("unexpected detail: %q", res.Detail)
	}
}

func TestDispatchUnreachableAndTimeout(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	slow, err := NewHTTPForwarder(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	if res := slow.Dispatch(context.Background(), "ABC123"); res.OK || res.Status != 0 || res.Detail == "" {
		t.Fatalf("expected timeout failure, got %+v", res)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.URL
	closed.Close()
	down, err := NewHTTPForwarder(Config{BaseURL: addr})
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	if res := down.Dispatch(context.Background(), "ABC123"); res.OK || res.Detail == "" {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestNewHTTPForwarderValidatesBaseURL(t *testing.T) {
	testlog.Start(t)
	if _, err := NewHTTPForwarder(Config{}); !errors.Is(err, ErrBaseURLRequired) {
		t.Fatalf("expected ErrBaseURLRequired, got %v", err)
	}
	if _, err := NewHTTPForwarder(Config{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected invalid url error")
	}
	f, err := NewHTTPForwarder(Config{BaseURL: "http://127.0.0.1:8080/"})
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	if f.Endpoint() != "http://127.0.0.1:8080/access" {
		t.Fatalf("unexpected endpoint: %q", f.Endpoint())
	}
}
