package model

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency は取引で使用できる通貨を表す閉じた列挙型。
type Currency string

const (
	CurrencyILS Currency = "ILS"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// BaseCurrency は集計と正規化の基準通貨。
const BaseCurrency = CurrencyILS

// Currencies は許可された通貨の一覧。
var Currencies = []Currency{CurrencyILS, CurrencyUSD, CurrencyEUR}

// ParseCurrency は文字列を通貨に変換する。列挙外の値はValidationFailedを返す。
func ParseCurrency(s string) (Currency, error) {
	for _, c := range Currencies {
		if string(c) == s {
			return c, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("Invalid currency %q: expected one of %s", s, joinCurrencies()))
}

// Format は金額を通貨記号付きの表示文字列に変換する（例: ₪42.00）。
func (c Currency) Format(amount decimal.Decimal) string {
	m := money.New(0, string(c))
	fraction := int32(m.Currency().Fraction)
	return m.Currency().Formatter().Format(amount.Shift(fraction).Round(0).IntPart())
}

func joinCurrencies() string {
	names := make([]string, len(Currencies))
	for i, c := range Currencies {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
