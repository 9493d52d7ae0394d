// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの安定した種別を表す。
// HTTPステータスへの変換はハンドラー層で行う。
type ErrorKind string

const (
	KindValidationFailed              ErrorKind = "validation_failed"
	KindUnauthenticated               ErrorKind = "unauthenticated"
	KindForbidden                     ErrorKind = "forbidden"
	KindNotFound                      ErrorKind = "not_found"
	KindConflict                      ErrorKind = "conflict"
	KindCurrencyConversionUnavailable ErrorKind = "currency_conversion_unavailable"
	KindInternal                      ErrorKind = "internal"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // エラー種別
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, ledger, currency, system
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	ErrCodeTransactionNotFound   = "TRANSACTION_NOT_FOUND"
	ErrCodeUsernameTaken         = "USERNAME_TAKEN"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeSameValue             = "SAME_VALUE"
	ErrCodeConversionUnavailable = "CURRENCY_CONVERSION_UNAVAILABLE"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// ErrTokenInvalid はセッショントークンの署名不一致・形式不正・期限切れを表す。
// 原因の区別は呼び出し元に公開しない。
var ErrTokenInvalid = &APIError{
	Kind:     KindUnauthenticated,
	Code:     ErrCodeUnauthenticated,
	Message:  "Authentication is required.",
	Category: "auth",
	Action:   "Please sign in again.",
}

// KindOf はエラーチェーンからAPIErrorを探し、その種別を返す。
// APIErrorを含まないエラーはKindInternalとして扱う。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeValidationFailed,
		Message:  reason,
		Category: "validation",
		Action:   "Correct the highlighted field and submit again.",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Kind:     KindUnauthenticated,
		Code:     ErrCodeUnauthenticated,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Please sign in.",
	}
}

// NewInvalidCredentialsError はサインイン失敗エラーを生成する。
// ユーザー名の存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindUnauthenticated,
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid username or password.",
		Category: "auth",
		Action:   "Check your username and password.",
	}
}

// NewForbiddenError は他アカウントのリソースへのアクセスエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  "You do not have access to this resource.",
		Category: "auth",
		Action:   "You can only access your own records.",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeAccountNotFound,
		Message:  "Account not found.",
		Category: "auth",
		Action:   "Please sign in again.",
	}
}

// NewTransactionNotFoundError は取引が呼び出し元の参照コレクションに存在しない場合のエラーを生成する。
func NewTransactionNotFoundError(kind TransactionKind, id string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeTransactionNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind.Title(), id),
		Category: "ledger",
		Action:   "Reload the list and try again.",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeUsernameTaken,
		Message:  "Username already exists.",
		Category: "validation",
		Action:   "Choose a different username.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeEmailTaken,
		Message:  "Email already exists.",
		Category: "validation",
		Action:   "Use a different email address.",
	}
}

// NewSameValueError は更新値が現在値と同一の場合のエラーを生成する。
func NewSameValueError(field string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeSameValue,
		Message:  fmt.Sprintf("%s is the same as the old one.", field),
		Category: "validation",
		Action:   "Enter a new value or leave the field empty.",
	}
}

// NewConversionUnavailableError は為替換算の失敗エラーを生成する。
// 取引は保存されない。
func NewConversionUnavailableError(from, to Currency) *APIError {
	return &APIError{
		Kind:     KindCurrencyConversionUnavailable,
		Code:     ErrCodeConversionUnavailable,
		Message:  fmt.Sprintf("Failed to convert %s to %s.", from, to),
		Category: "currency",
		Action:   "Nothing was saved. Please try again in a moment.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Kind:     KindInternal,
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
