package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(method, accountID string) *http.Request {
	req := httptest.NewRequest(method, "/api/users/"+accountID+"/expenses", nil)
	return req.WithContext(ContextWithAccountID(req.Context(), accountID))
}

func TestNewRateLimiterConfig_PerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 30)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.WriteRate != 0.5 || cfg.WriteBurst != 30 {
		t.Errorf("write = %v/%d, want 0.5/30", cfg.WriteRate, cfg.WriteBurst)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("default config should be 120/30 per minute")
	}
}

func TestGeneralMiddleware_AllowsWithinBurstThen429(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 2, WriteRate: 1, WriteBurst: 10})
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(http.MethodGet, "account-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(http.MethodGet, "account-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if ra, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || ra != 1 {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestGeneralMiddleware_IndependentPerAccount(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, WriteRate: 1, WriteBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "account-a"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(http.MethodGet, "account-b"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_UnauthenticatedKeyedByAddress(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, WriteRate: 1, WriteBurst: 1})
	handler := rl.GeneralMiddleware()(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("203.0.113.1:5000"); code != http.StatusOK {
		t.Errorf("first: status = %d, want 200", code)
	}
	if code := send("203.0.113.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("same host: status = %d, want 429", code)
	}
	if code := send("203.0.113.2:5000"); code != http.StatusOK {
		t.Errorf("other host: status = %d, want 200", code)
	}
}

func TestWriteMiddleware_SkipsSafeMethods(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 100, GeneralBurst: 100, WriteRate: 1, WriteBurst: 1})
	handler := rl.WriteMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(http.MethodGet, "account-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %d: status = %d, want 200", i, w.Code)
		}
	}
	if rl.WriteLimiterCount() != 0 {
		t.Errorf("WriteLimiterCount() = %d, want 0", rl.WriteLimiterCount())
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(http.MethodPost, "account-1"))
	if w.Code != http.StatusOK {
		t.Errorf("first POST: status = %d, want 200", w.Code)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(http.MethodDelete, "account-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second write: status = %d, want 429", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra != "1" {
		t.Errorf("Retry-After = %q, want 1", ra)
	}
}

// TestRateLimiter_CleanupRemovesStaleEntries は一定期間アクセスのないエントリが削除されることを検証する。
func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, WriteRate: 1, WriteBurst: 1, CleanupInterval: time.Minute})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodGet, "stale"))
	rl.WriteMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs(http.MethodPost, "stale"))

	now = now.Add(time.Minute)
	rl.cleanup()
	if rl.GeneralLimiterCount() != 1 || rl.WriteLimiterCount() != 1 {
		t.Fatal("entries within ttl must be kept")
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	if rl.GeneralLimiterCount() != 0 || rl.WriteLimiterCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", rl.GeneralLimiterCount(), rl.WriteLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
