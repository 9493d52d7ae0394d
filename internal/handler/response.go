package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/expensebook/internal/middleware"
	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/ownership"
)

// maxRequestBodySize はリクエストボディの上限バイト数。
const maxRequestBodySize = 64 << 10

// messageResponse はメッセージのみのレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はvをJSONとして書き込む。
// ステータスを書き込む前にエンコードし、失敗した場合は内部エラーを返す。
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 解析に失敗した場合はValidationFailedのエラーを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return model.NewValidationError("Request body is too large")
		case errors.Is(err, io.EOF):
			return model.NewValidationError("Request body is required")
		default:
			return model.NewValidationError("Request body must be valid JSON")
		}
	}
	return nil
}

// requireOwnerParam はパスの{userID}が認証済みアカウントと一致することを検査する。
// 一致しない場合はエラーレスポンスを書き込み、falseを返す。
func requireOwnerParam(w http.ResponseWriter, r *http.Request, userID string) (string, bool) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthenticatedError())
		return "", false
	}
	if err := ownership.RequireOwner(accountID, userID); err != nil {
		middleware.WriteError(w, r, err)
		return "", false
	}
	return accountID, true
}
