package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/expensebook/internal/repository"
)

// defaultHealthTimeout はデータストア疎通確認のタイムアウト。
const defaultHealthTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
}

// HealthHandler はデータストアへの疎通を確認するヘルスチェックハンドラー。
type HealthHandler struct {
	pinger  repository.Pinger
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。timeoutが0以下の場合は既定値を使う。
func NewHealthHandler(pinger repository.Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return &HealthHandler{pinger: pinger, timeout: timeout}
}

// ServeHTTP はデータストアに到達できれば200、できなければ503を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.pinger.PingContext(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
