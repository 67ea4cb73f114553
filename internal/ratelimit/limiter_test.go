package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func keyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z0-9]{8,32}`)
}

func testRateLimiter_RequestsWithinBurst(t *rapid.T) {
	burst := rapid.IntRange(1, 100).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of burst %d should have been allowed", i+1, burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request %d should exceed burst %d", burst+1, burst)
	}
}

func TestRateLimiter_RequestsWithinBurst(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRateLimiter_RequestsWithinBurst)
}

func FuzzRateLimiter_RequestsWithinBurst(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinBurst))
}

func testRateLimiter_ClientIndependence(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	a := keyGenerator().Draw(t, "a")
	b := keyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !rl.Allow(a) {
		t.Fatal("first request for a should pass")
	}
	if rl.Allow(a) {
		t.Fatal("a should be exhausted")
	}
	if !rl.Allow(b) {
		t.Fatal("b must not be affected by a")
	}
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_ClientIndependence(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRateLimiter_ClientIndependence)
}

func FuzzRateLimiter_ClientIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ClientIndependence))
}

func TestRateLimiter_ZeroRPSDisablesLimiting(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{})
	defer rl.Stop()
	for i := 0; i < 1000; i++ {
		if !rl.Allow("k") {
			t.Fatalf("request %d rejected with limiting disabled", i)
		}
	}
}

func TestRateLimiter_CleanupDropsIdleOnly(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.GetLimiter("old")
	rl.mu.Lock()
	rl.limiters["old"].lastUsed = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()
	rl.GetLimiter("fresh")

	rl.Cleanup()
	if rl.Len() != 1 {
		t.Fatalf("Len = %d after cleanup, want 1", rl.Len())
	}
	rl.mu.Lock()
	_, kept := rl.limiters["fresh"]
	rl.mu.Unlock()
	if !kept {
		t.Fatal("active limiter was cleaned up")
	}
}

func TestRateLimiter_GetLimiterConsistency(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(DefaultConfig)
	defer rl.Stop()
	if rl.GetLimiter("a") != rl.GetLimiter("a") {
		t.Fatal("same key should return the same limiter")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 50, CleanupInterval: time.Hour})
	defer rl.Stop()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if rl.Allow("shared") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 50 {
		t.Fatalf("allowed %d requests, want exactly the burst of 50", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(DefaultConfig)
	rl.Stop()
	rl.Stop()
}

func TestClientKey(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	if got := ClientKey(r); got != "host:10.1.2.3" {
		t.Fatalf("ClientKey = %q", got)
	}
	r.Header.Set("Mcp-Session-Id", "abc")
	if got := ClientKey(r); got != "session:abc" {
		t.Fatalf("ClientKey = %q", got)
	}
}

func TestMiddleware_RejectsOverLimitWith429(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	var served int
	handler := Middleware(rl, ClientKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
		if i == 2 && resp.Header().Get("Retry-After") != "1" {
			t.Fatalf("missing Retry-After on 429: %v", resp.Header())
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	if served != 2 {
		t.Fatalf("served = %d, want 2", served)
	}
}

func TestMiddleware_EmptyKeySkipsLimiting(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()
	handler := Middleware(rl, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/mcp", nil))
		if resp.Code != http.StatusNoContent {
			t.Fatalf("request %d: code %d", i, resp.Code)
		}
	}
	if rl.Len() != 0 {
		t.Fatalf("Len = %d, want 0", rl.Len())
	}
}
