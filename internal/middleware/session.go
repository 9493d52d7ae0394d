// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/expensebook/internal/auth"
	"github.com/hitoshi/expensebook/internal/model"
)

// TokenCookieName はセッショントークンを保持するCookieの名前。
const TokenCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	accountIDContextKey   = contextKey("account_id")
	tokenExpiryContextKey = contextKey("token_expiry")
)

// NewSessionMiddleware はCookieのセッショントークンを検証するミドルウェアを返す。
// 認証済みアカウントIDとトークンの有効期限をリクエストコンテキストに注入する。
// トークンがない、または無効な場合は401を返し、後続のハンドラーは実行しない。
func NewSessionMiddleware(verifier auth.TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(TokenCookieName)
			if err != nil || cookie.Value == "" {
				WriteError(w, r, model.NewUnauthenticatedError())
				return
			}

			claims, err := verifier.Verify(cookie.Value)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			setRequestAccount(r.Context(), claims.AccountID())
			ctx := ContextWithAccountID(r.Context(), claims.AccountID())
			ctx = context.WithValue(ctx, tokenExpiryContextKey, claims.Expiry())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || accountID == "" {
		return "", fmt.Errorf("account ID not found in context")
	}
	return accountID, nil
}

// ContextWithAccountID はコンテキストにアカウントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey, accountID)
}

// TokenExpiryFromContext はリクエストのセッショントークンの有効期限を返す。
func TokenExpiryFromContext(ctx context.Context) (time.Time, bool) {
	exp, ok := ctx.Value(tokenExpiryContextKey).(time.Time)
	return exp, ok
}
