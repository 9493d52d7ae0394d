package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind は取引の種別（支出/収入）を表す。
type TransactionKind string

const (
	// KindExpense は支出。
	KindExpense TransactionKind = "expense"
	// KindIncome は収入。
	KindIncome TransactionKind = "income"
)

// Title は表示用の種別名を返す。
func (k TransactionKind) Title() string {
	if k == KindIncome {
		return "Income"
	}
	return "Expense"
}

// Tag は取引のカテゴリタグ。語彙は種別ごとに異なる。
type Tag string

// ExpenseTags は支出のタグ語彙。
var ExpenseTags = []Tag{"food", "rent", "transport", "clothing", "entertainment", "health", "education", "other"}

// IncomeTags は収入のタグ語彙。
var IncomeTags = []Tag{"salary", "bonus", "gift", "other"}

// Tags は種別に対応するタグ語彙を返す。
func (k TransactionKind) Tags() []Tag {
	if k == KindIncome {
		return IncomeTags
	}
	return ExpenseTags
}

// ParseTag は文字列を種別の語彙に属するタグに変換する。
func (k TransactionKind) ParseTag(s string) (Tag, error) {
	tags := k.Tags()
	for _, t := range tags {
		if string(t) == s {
			return t, nil
		}
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	return "", NewValidationError(fmt.Sprintf("Invalid %s tag %q: expected one of %s", k, s, strings.Join(names, ", ")))
}

// タイトル・説明の長さ上限
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Transaction は支出または収入の取引を表す。
// NormalizedAmount は最後の書き込み時点で基準通貨に換算された金額で、常に設定される。
type Transaction struct {
	ID               string
	Kind             TransactionKind
	OwnerID          string
	Title            string
	Description      string
	Amount           decimal.Decimal
	Currency         Currency
	Tag              Tag
	NormalizedAmount decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TransactionInput は取引作成の入力を表す。境界で検証済みの値のみを保持する。
type TransactionInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Currency    Currency
	Tag         Tag
}

// TransactionPatch は取引の部分更新の入力を表す。nilのフィールドは変更しない。
type TransactionPatch struct {
	Title       *string
	Description *string
	Amount      *decimal.Decimal
	Currency    *Currency
	Tag         *Tag
}

// 金額の小数点以下の最大桁数と、整数部の最大桁数
const (
	MaxAmountScale  = 2
	maxAmountDigits = 12
)

// minAmountExponent より細かい指数は、末尾が0でも比較前に拒否する。
const minAmountExponent = -20

// MaxAmount は1取引あたりの金額の上限。
var MaxAmount = decimal.New(1, maxAmountDigits)

// ValidateAmount は金額が正で、上限以下かつ小数点以下2桁以内であることを検証する。
// 指数表記の極端な値は桁を展開する前に指数だけで拒否する。
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("Amount must be a positive number")
	}
	if amount.Exponent() < minAmountExponent {
		return newAmountScaleError()
	}
	if amount.Exponent() > maxAmountDigits || amount.GreaterThan(MaxAmount) {
		return NewValidationError(fmt.Sprintf("Amount must be at most %s", MaxAmount.String()))
	}
	if !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return newAmountScaleError()
	}
	return nil
}

func newAmountScaleError() *APIError {
	return NewValidationError(fmt.Sprintf("Amount must have at most %d decimal places", MaxAmountScale))
}
