package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func feed(t *testing.T, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/USD" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"EUR":0.92,"AOA":830.5}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestStats24hFromFeed(t *testing.T) {
	srv, hits := feed(t, http.StatusOK)
	c := New(srv.URL, time.Hour, zap.NewNop())

	s := c.Stats24h(context.Background(), "usd", "eur", decimal.Zero)
	if s.IsFallback {
		t.Fatal("expected live stats")
	}
	if !s.CurrentRate.Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("expected 0.92, got %s", s.CurrentRate)
	}
	if !s.High24h.Equal(decimal.RequireFromString("0.9292")) || !s.Low24h.Equal(decimal.RequireFromString("0.9108")) {
		t.Fatalf("unexpected band %s..%s", s.Low24h, s.High24h)
	}

	c.Stats24h(context.Background(), "USD", "AOA", decimal.Zero)
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected one fetch while cached, got %d", got)
	}
}

func TestStats24hCollapsesConcurrentFetches(t *testing.T) {
	srv, hits := feed(t, http.StatusOK)
	c := New(srv.URL, time.Hour, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stats24h(context.Background(), "USD", "EUR", decimal.Zero)
		}()
	}
	wg.Wait()
	// Callers arriving after the first fetch completes hit the cache.
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", got)
	}
}

func TestStats24hSharedFetchOutlivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			close(started)
		}
		<-release
		w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"EUR":0.9}}`))
	}))
	defer srv.Close()
	c := New(srv.URL, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Stats, 1)
	go func() { first <- c.Stats24h(ctx, "USD", "EUR", decimal.Zero) }()
	<-started

	second := make(chan Stats, 1)
	go func() { second <- c.Stats24h(context.Background(), "USD", "EUR", decimal.Zero) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if s := <-first; !s.IsFallback {
		t.Fatalf("expected the cancelled caller to fall back, got %+v", s)
	}
	close(release)
	s := <-second
	if s.IsFallback || !s.CurrentRate.Equal(decimal.RequireFromString("0.9")) {
		t.Fatalf("expected the live rate, got %+v", s)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", got)
	}
}

func TestStats24hFallback(t *testing.T) {
	down, _ := feed(t, http.StatusInternalServerError)

	tests := []struct {
		name     string
		url      string
		base     string
		target   string
		fallback string
		want     string
	}{
		{name: "feed error", url: down.URL, base: "USD", target: "EUR", fallback: "0.9", want: "0.9"},
		{name: "unknown base", url: down.URL, base: "NAD", target: "ZAR", fallback: "1.02", want: "1.02"},
		{name: "no fallback", url: "http://127.0.0.1:1", base: "USD", target: "EUR", fallback: "0", want: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.url, time.Hour, zap.NewNop())
			s := c.Stats24h(context.Background(), tt.base, tt.target, decimal.RequireFromString(tt.fallback))
			if !s.IsFallback || !s.CurrentRate.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("unexpected stats %+v", s)
			}
			if !s.High24h.GreaterThan(s.CurrentRate) || !s.Low24h.LessThan(s.CurrentRate) {
				t.Fatalf("expected band around %s, got %s..%s", s.CurrentRate, s.Low24h, s.High24h)
			}
		})
	}
}

func TestStats24hMissingTarget(t *testing.T) {
	srv, _ := feed(t, http.StatusOK)
	c := New(srv.URL, time.Hour, zap.NewNop())
	s := c.Stats24h(context.Background(), "USD", "NAD", decimal.RequireFromString("18.4"))
	if !s.IsFallback || !s.CurrentRate.Equal(decimal.RequireFromString("18.4")) {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestCurrencies(t *testing.T) {
	cs := Currencies()
	if len(cs) == 0 {
		t.Fatal("expected currencies")
	}
	for _, c := range cs {
		if c.Name == "" || c.Name == c.Code || c.Flag == "" {
			t.Fatalf("missing display data for %+v", c)
		}
	}
}
