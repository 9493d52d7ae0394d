// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/expensebook/internal/auth"
	"github.com/hitoshi/expensebook/internal/middleware"
	"github.com/hitoshi/expensebook/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Session, error)
	SignIn(ctx context.Context, username, password string) (*auth.Session, error)
	CurrentAccount(ctx context.Context, accountID string) (*model.Account, error)
	Reissue(account *model.Account) (*auth.Session, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインアップ・サインイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type signUpRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// accountResponse はアカウント情報のAPIレスポンス。パスワードハッシュは含めない。
type accountResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// meResponse はGET /api/auth/meのレスポンス。tokenExpはUNIX秒。
type meResponse struct {
	accountResponse
	TokenExp int64 `json:"tokenExp"`
}

type sessionResponse struct {
	Message string          `json:"message"`
	User    accountResponse `json:"user"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		FullName:  a.FullName,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

// SignUp はアカウントを作成し、セッションCookieを設定する。
// POST /api/auth/sign-up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	session, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.setTokenCookie(w, session)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Message: "User created successfully",
		User:    toAccountResponse(session.Account),
	})
}

// SignIn はユーザー名とパスワードを照合し、セッションCookieを設定する。
// POST /api/auth/sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.setTokenCookie(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{
		Message: "User signed in successfully",
		User:    toAccountResponse(session.Account),
	})
}

// SignOut はセッションCookieを削除する。
// トークン自体は失効しないため、有効期限までは再利用できる。
// POST /api/auth/sign-out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "User logged out successfully"})
}

// Me は現在のアカウント情報とトークンの有効期限を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, model.NewUnauthenticatedError())
		return
	}

	account, err := h.service.CurrentAccount(r.Context(), accountID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := meResponse{accountResponse: toAccountResponse(account)}
	if exp, ok := middleware.TokenExpiryFromContext(r.Context()); ok {
		resp.TokenExp = exp.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

// setTokenCookie はセッショントークンをHTTP Only Cookieに設定する。
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
