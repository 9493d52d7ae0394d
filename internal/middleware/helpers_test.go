package middleware

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}

// newTestLogger はテスト用のJSONロガーを生成する。
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
