package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/expensebook/internal/ledger"
	"github.com/hitoshi/expensebook/internal/middleware"
	"github.com/hitoshi/expensebook/internal/model"
)

// LedgerServiceInterface は台帳ハンドラーが必要とするサービスインターフェース。
type LedgerServiceInterface interface {
	Create(ctx context.Context, ownerID string, kind model.TransactionKind, in model.TransactionInput) (*model.Transaction, error)
	List(ctx context.Context, ownerID string, kind model.TransactionKind) ([]*model.Transaction, error)
	Update(ctx context.Context, ownerID string, kind model.TransactionKind, txnID string, patch model.TransactionPatch) (*model.Transaction, error)
	Delete(ctx context.Context, ownerID string, kind model.TransactionKind, txnID string) error
	Total(ctx context.Context, ownerID string, kind model.TransactionKind) (ledger.Total, error)
	Balance(ctx context.Context, ownerID string) (ledger.Balance, error)
}

// LedgerHandler は1種別（支出または収入）の取引を扱うHTTPハンドラー。
type LedgerHandler struct {
	service LedgerServiceInterface
	kind    model.TransactionKind
}

// NewLedgerHandler はLedgerHandlerを生成する。
func NewLedgerHandler(service LedgerServiceInterface, kind model.TransactionKind) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		kind:    kind,
	}
}

// transactionRequest は作成・更新リクエストのボディ。
// 金額はJSONの数値と文字列のどちらも受け付ける。
type transactionRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency"`
	Tag         *string          `json:"tag"`
}

// transactionResponse は取引情報のAPIレスポンス。
type transactionResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Tag              string    `json:"tag"`
	NormalizedAmount float64   `json:"normalizedAmount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// totalResponse は基準通貨での合計。formattedは通貨記号付きの表示用文字列。
type totalResponse struct {
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	Formatted string  `json:"formatted"`
}

type balanceResponse struct {
	Income  totalResponse `json:"income"`
	Expense totalResponse `json:"expense"`
	Net     totalResponse `json:"net"`
}

func toTransactionResponse(t *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Amount:           t.Amount.InexactFloat64(),
		Currency:         string(t.Currency),
		Tag:              string(t.Tag),
		NormalizedAmount: t.NormalizedAmount.InexactFloat64(),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func toTotalResponse(t ledger.Total) totalResponse {
	return totalResponse{
		Total:     t.Amount.InexactFloat64(),
		Currency:  string(t.Currency),
		Formatted: t.Currency.Format(t.Amount),
	}
}

// toInput は作成リクエストを検証し、TransactionInputに変換する。
func (req transactionRequest) toInput() (model.TransactionInput, error) {
	var in model.TransactionInput
	switch {
	case req.Title == nil:
		return in, model.NewValidationError("Title is required")
	case req.Amount == nil:
		return in, model.NewValidationError("Amount is required")
	case req.Currency == nil:
		return in, model.NewValidationError("Currency is required")
	case req.Tag == nil:
		return in, model.NewValidationError("Tag is required")
	}

	if err := model.ValidateAmount(*req.Amount); err != nil {
		return in, err
	}
	currency, err := model.ParseCurrency(*req.Currency)
	if err != nil {
		return in, err
	}
	in = model.TransactionInput{
		Title:    *req.Title,
		Amount:   *req.Amount,
		Currency: currency,
		Tag:      model.Tag(*req.Tag),
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	return in, nil
}

// toPatch は更新リクエストをTransactionPatchに変換する。
func (req transactionRequest) toPatch() (model.TransactionPatch, error) {
	patch := model.TransactionPatch{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
	}
	if req.Amount != nil {
		if err := model.ValidateAmount(*req.Amount); err != nil {
			return patch, err
		}
	}
	if req.Currency != nil {
		currency, err := model.ParseCurrency(*req.Currency)
		if err != nil {
			return patch, err
		}
		patch.Currency = &currency
	}
	if req.Tag != nil {
		tag := model.Tag(*req.Tag)
		patch.Tag = &tag
	}
	return patch, nil
}

// List は取引一覧を返す。
// GET /api/users/{userID}/{expenses|incomes}
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	txns, err := h.service.List(r.Context(), ownerID, h.kind)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]transactionResponse, len(txns))
	for i, t := range txns {
		resp[i] = toTransactionResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は取引を作成する。
// POST /api/users/{userID}/{expenses|incomes}
func (h *LedgerHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	txn, err := h.service.Create(r.Context(), ownerID, h.kind, in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      fmt.Sprintf("%s added successfully", h.kind.Title()),
		string(h.kind): toTransactionResponse(txn),
	})
}

// Update は取引の指定フィールドを更新する。
// PATCH /api/users/{userID}/{expenses|incomes}/{id}
func (h *LedgerHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	txn, err := h.service.Update(r.Context(), ownerID, h.kind, chi.URLParam(r, "id"), patch)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      fmt.Sprintf("%s updated successfully", h.kind.Title()),
		string(h.kind): toTransactionResponse(txn),
	})
}

// Delete は取引を削除する。
// DELETE /api/users/{userID}/{expenses|incomes}/{id}
func (h *LedgerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), ownerID, h.kind, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("%s deleted successfully", h.kind.Title()),
	})
}

// Total は基準通貨での合計金額を返す。
// GET /api/users/{userID}/{expenses|incomes}/total
func (h *LedgerHandler) Total(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	total, err := h.service.Total(r.Context(), ownerID, h.kind)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalResponse(total))
}

// BalanceHandler は収支の差額を返すHTTPハンドラー。
type BalanceHandler struct {
	service LedgerServiceInterface
}

// NewBalanceHandler はBalanceHandlerを生成する。
func NewBalanceHandler(service LedgerServiceInterface) *BalanceHandler {
	return &BalanceHandler{service: service}
}

// Balance は収入合計・支出合計・差額を返す。
// GET /api/users/{userID}/balance
func (h *BalanceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwnerParam(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}

	balance, err := h.service.Balance(r.Context(), ownerID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Income:  toTotalResponse(balance.Income),
		Expense: toTotalResponse(balance.Expense),
		Net:     toTotalResponse(balance.Net),
	})
}
