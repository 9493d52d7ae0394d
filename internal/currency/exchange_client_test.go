package currency

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/expensebook/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*ExchangeRateClient, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	return NewExchangeRateClient(server.Client(), newTestLogger(&buf), server.URL+"/v6/", "test-key"), &buf
}

func TestNewExchangeRateClient_DefaultEndpoint(t *testing.T) {
	var buf bytes.Buffer
	c := NewExchangeRateClient(http.DefaultClient, newTestLogger(&buf), "", "k")
	if c.endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want %q", c.endpoint, DefaultEndpoint)
	}
}

func TestExchangeRateClient_Convert_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("HTTPメソッド = %s, want GET", r.Method)
		}
		if want := "/v6/test-key/pair/USD/ILS/12.5"; r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","base_code":"USD","target_code":"ILS","conversion_rate":3.5,"conversion_result":43.75}`))
	})

	got, err := c.Convert(context.Background(), model.CurrencyUSD, model.CurrencyILS, decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("43.75")) {
		t.Errorf("Convert() = %s, want 43.75", got)
	}
}

func TestExchangeRateClient_Convert_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"HTTPエラー", http.StatusInternalServerError, `{}`},
		{"API失敗", http.StatusOK, `{"result":"error","error-type":"invalid-key"}`},
		{"不正なJSON", http.StatusOK, `{"result":`},
		{"結果なし", http.StatusOK, `{"result":"success"}`},
		{"負の結果", http.StatusOK, `{"result":"success","conversion_result":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Convert(context.Background(), model.CurrencyEUR, model.CurrencyILS, decimal.NewFromInt(10))
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExchangeRateClient_Convert_LogsFailureWithoutKey(t *testing.T) {
	c, buf := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	})

	if _, err := c.Convert(context.Background(), model.CurrencyUSD, model.CurrencyILS, decimal.NewFromInt(1)); err == nil {
		t.Fatal("expected error")
	}
	logs := buf.String()
	if !strings.Contains(logs, "invalid-key") {
		t.Errorf("log should contain error type, got %s", logs)
	}
	if strings.Contains(logs, "test-key") {
		t.Error("log must not contain the API key")
	}
}

func TestExchangeRateClient_Convert_RespectsContextDeadline(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Convert(ctx, model.CurrencyUSD, model.CurrencyILS, decimal.NewFromInt(1)); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Convert took %v, should stop at the context deadline", elapsed)
	}
}
