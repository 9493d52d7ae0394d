package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/expensebook/internal/config"
	"github.com/hitoshi/expensebook/internal/metrics"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	setTestEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CSRF_ENABLED", "false")
	t.Setenv("BCRYPT_COST", "4")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestNewRouter_MemoryStore_ServesRequests(t *testing.T) {
	cfg := memoryConfig(t)
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	defer st.close()

	reg := newRegistry()
	router, rl, err := newRouter(cfg, st, reg, metrics.NewCollector(reg), slog.Default())
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}
	defer rl.Stop()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	body := `{"fullName":"Jane Doe","username":"jane_doe","email":"jane@example.com","password":"password123"}`
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/sign-up", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/auth/sign-up status = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "expensebook_http_status_total") {
		t.Error("metrics output should include http status counter")
	}
}

func TestNewServices_RejectsPrivateExchangeEndpoint(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.ExchangeAPIURL = "http://127.0.0.1:9000/v6"
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}

	if _, err := newServices(cfg, st, metrics.Nop{}, slog.Default()); err == nil {
		t.Fatal("expected error for private exchange endpoint")
	}
}

func TestAddUser_CreatesAccount(t *testing.T) {
	cfg := memoryConfig(t)
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}

	input, err := parseAddUserArgs([]string{"Jane Doe", "jane_doe", "jane@example.com"})
	if err != nil {
		t.Fatalf("parseAddUserArgs() error = %v", err)
	}
	input.Password, err = readPassword(strings.NewReader("password123\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("readPassword() error = %v", err)
	}

	var out bytes.Buffer
	if err := addUser(context.Background(), cfg, st, input, &out); err != nil {
		t.Fatalf("addUser() error = %v", err)
	}
	if !strings.Contains(out.String(), "jane_doe") {
		t.Errorf("output = %q, want username", out.String())
	}

	stored, err := st.accounts.FindByUsername(context.Background(), "jane_doe")
	if err != nil || stored == nil {
		t.Fatalf("account not stored: %v, %v", stored, err)
	}

	// 同じユーザー名は拒否される
	if err := addUser(context.Background(), cfg, st, input, &out); err == nil {
		t.Fatal("expected conflict for duplicate username")
	}
}

func TestReadPassword_TrimsLineEnding(t *testing.T) {
	got, err := readPassword(strings.NewReader("s3cretpass\r\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("readPassword() error = %v", err)
	}
	if got != "s3cretpass" {
		t.Errorf("readPassword() = %q, want %q", got, "s3cretpass")
	}
}
