// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestDispatcher(url string, attempts int, delay time.Duration) *Dispatcher {
	cfg := DefaultConfig
	cfg.Enabled = true
	cfg.URL = url
	cfg.RetryAttempts = attempts
	cfg.RetryDelay = delay
	return NewDispatcher(cfg)
}

func TestSendDisabledSkipsIO(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cfg := DefaultConfig
	cfg.URL = srv.URL
	d := NewDispatcher(cfg)

	res := d.Send(context.Background(), map[string]string{"a": "b"}, "", "op-1")
	if res.Delivered || res.Reason != "disabled" {
		t.Fatalf("delivery = %+v", res)
	}
	if called {
		t.Fatal("disabled dispatcher must not touch the network")
	}
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	var mu sync.Mutex
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = r.Header.Clone()
		mu.Unlock()
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, 3, 10*time.Millisecond)
	res := d.Send(context.Background(), map[string]string{"a": "b"}, "", "op-123")
	if !res.Delivered || res.Attempts != 1 {
		t.Fatalf("delivery = %+v", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if headers.Get("X-Webhook-Source") != DefaultConfig.Source {
		t.Fatalf("source header = %q", headers.Get("X-Webhook-Source"))
	}
	if headers.Get("X-Tentativa") != "1" {
		t.Fatalf("attempt header = %q", headers.Get("X-Tentativa"))
	}
	if headers.Get("X-Operation-Id") != "op-123" {
		t.Fatalf("operation header = %q", headers.Get("X-Operation-Id"))
	}
	if headers.Get("Content-Type") != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", headers.Get("Content-Type"))
	}
}

func TestSendRetriesOn500WithLinearBackoff(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	delay := 30 * time.Millisecond
	d := newTestDispatcher(srv.URL, 3, delay)
	res := d.Send(context.Background(), map[string]string{}, "", "op-1")

	if !res.Delivered {
		t.Fatalf("delivery = %+v", res)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 3 {
		t.Fatalf("server saw %d requests", len(stamps))
	}
	// Interval before attempt k+1 is at least delay*k.
	if gap := stamps[1].Sub(stamps[0]); gap < delay {
		t.Fatalf("gap before attempt 2 = %v, want >= %v", gap, delay)
	}
	if gap := stamps[2].Sub(stamps[1]); gap < 2*delay {
		t.Fatalf("gap before attempt 3 = %v, want >= %v", gap, 2*delay)
	}
}

func TestSendExhaustsAttempts(t *testing.T) {
	var count int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, 3, time.Millisecond)
	res := d.Send(context.Background(), map[string]string{}, "", "op-1")
	if res.Delivered {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if res.Reason != "upstream" {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.Error == "" {
		t.Fatal("final failure must carry the last cause")
	}
}

func TestSendClientErrorFailsImmediately(t *testing.T) {
	var mu sync.Mutex
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, 3, time.Millisecond)
	res := d.Send(context.Background(), map[string]string{}, "", "op-1")
	if res.Delivered {
		t.Fatal("expected failure")
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("4xx was retried: %d requests", count)
	}
	if res.Reason != "client" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestSendNetworkErrorClassified(t *testing.T) {
	// Nothing listens on this port.
	d := newTestDispatcher("http://127.0.0.1:1", 2, time.Millisecond)
	res := d.Send(context.Background(), map[string]string{}, "", "op-1")
	if res.Delivered {
		t.Fatal("expected failure")
	}
	if res.Reason != "network" {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (network errors retry)", res.Attempts)
	}
}

type attemptPayload struct {
	Attempt int       `json:"tentativaEnvio"`
	At      time.Time `json:"timestamp"`
}

func (p *attemptPayload) SetAttempt(attempt int, at time.Time) {
	p.Attempt = attempt
	p.At = at
}

func TestSendStampsAttemptOnPayload(t *testing.T) {
	var mu sync.Mutex
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n++
		first := n == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := &attemptPayload{}
	d := newTestDispatcher(srv.URL, 3, time.Millisecond)
	res := d.Send(context.Background(), p, "", "op-1")
	if !res.Delivered {
		t.Fatalf("delivery = %+v", res)
	}
	if p.Attempt != 2 {
		t.Fatalf("payload attempt = %d, want 2", p.Attempt)
	}
}
