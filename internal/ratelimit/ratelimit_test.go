package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_IncrAndWindowReset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore(ctx)

	for i := 1; i <= 3; i++ {
		res, err := s.Incr(ctx, "k", 50*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if res.Count != i {
			t.Fatalf("count = %d, want %d", res.Count, i)
		}
	}

	time.Sleep(60 * time.Millisecond)

	res, err := s.Incr(ctx, "k", 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Fatalf("count after window expiry = %d, want 1", res.Count)
	}
}

func TestMemoryStore_PeekDoesNotIncrement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore(ctx)

	if res, _ := s.Peek(ctx, "missing"); res.Count != 0 {
		t.Fatalf("missing key count = %d", res.Count)
	}

	s.Incr(ctx, "k", time.Minute)
	res, _ := s.Peek(ctx, "k")
	if res.Count != 1 {
		t.Fatalf("peek count = %d, want 1", res.Count)
	}
	res, _ = s.Peek(ctx, "k")
	if res.Count != 1 {
		t.Fatalf("peek should not increment, got %d", res.Count)
	}
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore(ctx)

	const workers = 50
	const perWorker = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.Incr(ctx, "burst", time.Minute)
			}
		}()
	}
	wg.Wait()

	res, _ := s.Peek(ctx, "burst")
	if res.Count != workers*perWorker {
		t.Fatalf("count = %d, want %d (undercounting weakens the limiter)", res.Count, workers*perWorker)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLimiter_RejectsOverBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLimiter(NewMemoryStore(ctx), time.Minute, 3)
	var denied int
	l.OnDenied = func() { denied++ }

	h := l.Middleware(okHandler())

	for i := 1; i <= 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/patients/1", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/patients/1", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 should carry a Retry-After hint")
	}
	if denied != 1 {
		t.Errorf("denied callback count = %d", denied)
	}
}

func TestLimiter_WindowExpiryResets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLimiter(NewMemoryStore(ctx), 50*time.Millisecond, 1)
	h := l.Middleware(okHandler())

	mk := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = "10.0.0.2:1"
		h.ServeHTTP(rec, req)
		return rec
	}

	if mk().Code != http.StatusOK {
		t.Fatal("first request should pass")
	}
	if mk().Code != http.StatusTooManyRequests {
		t.Fatal("second request should be limited")
	}
	time.Sleep(60 * time.Millisecond)
	if mk().Code != http.StatusOK {
		t.Fatal("request after window expiry should pass again")
	}
}

func TestLimiter_SkipsNonAPIPaths(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLimiter(NewMemoryStore(ctx), time.Minute, 1)
	h := l.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/-/healthy", nil)
		req.RemoteAddr = "10.0.0.3:1"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("non-API path should never be limited, got %d", rec.Code)
		}
	}
}

func TestLimiter_SeparateClientsSeparateBudgets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLimiter(NewMemoryStore(ctx), time.Minute, 1)
	h := l.Middleware(okHandler())

	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = fmt.Sprintf("10.0.1.%d:1", i)
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %d should have its own budget, got %d", i, rec.Code)
		}
	}
}

func loginHandler(password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test-Password") == password {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func TestAuthLimiter_FailedAttemptsConsumeBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewAuthLimiter(NewMemoryStore(ctx), 15*time.Minute, 5)
	h := l.Middleware(loginHandler("correct"))

	attempt := func(pw string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.9:1"
		req.Header.Set("X-Test-Password", pw)
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 5; i++ {
		if got := attempt("wrong"); got != http.StatusUnauthorized {
			t.Fatalf("failed attempt %d status = %d", i+1, got)
		}
	}
	if got := attempt("wrong"); got != http.StatusTooManyRequests {
		t.Fatalf("6th failed attempt status = %d, want 429", got)
	}
	// even a correct password is refused once locked out
	if got := attempt("correct"); got != http.StatusTooManyRequests {
		t.Fatalf("attempt while locked out status = %d, want 429", got)
	}
}

func TestAuthLimiter_SuccessDoesNotConsumeBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore(ctx)
	l := NewAuthLimiter(store, 15*time.Minute, 5)
	h := l.Middleware(loginHandler("correct"))

	attempt := func(pw string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.10:1"
		req.Header.Set("X-Test-Password", pw)
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// 4 failures, a success in between, then another failure: still under max
	for i := 0; i < 4; i++ {
		attempt("wrong")
	}
	if got := attempt("correct"); got != http.StatusOK {
		t.Fatalf("valid login status = %d", got)
	}
	if got := attempt("wrong"); got != http.StatusUnauthorized {
		t.Fatalf("5th failure should still reach the handler, got %d", got)
	}
	if got := attempt("wrong"); got != http.StatusTooManyRequests {
		t.Fatalf("6th failure status = %d, want 429", got)
	}

	res, _ := store.Peek(ctx, "auth:10.0.0.10")
	if res.Count != 5 {
		t.Fatalf("failure count = %d, want 5 (success must not count)", res.Count)
	}
}
