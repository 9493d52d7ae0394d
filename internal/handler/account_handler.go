package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/expensebook/internal/middleware"
	"github.com/hitoshi/expensebook/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	UpdateProfile(ctx context.Context, accountID string, patch model.ProfilePatch) (*model.Account, error)
}

// AccountHandler はプロフィール更新のHTTPハンドラー。
// 更新後はトークンを再発行するため、AuthHandlerのCookie設定を共有する。
type AccountHandler struct {
	service AccountServiceInterface
	auth    *AuthHandler
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, authHandler *AuthHandler) *AccountHandler {
	return &AccountHandler{
		service: service,
		auth:    authHandler,
	}
}

// updateProfileRequest は省略したフィールドを変更しない。
type updateProfileRequest struct {
	FullName *string `json:"fullName"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// UpdateProfile はプロフィールを更新し、セッションCookieを再発行する。
// PATCH /api/users/{userID}
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), accountID, model.ProfilePatch{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	session, err := h.auth.service.Reissue(account)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.auth.setTokenCookie(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{
		Message: "User updated successfully",
		User:    toAccountResponse(account),
	})
}
