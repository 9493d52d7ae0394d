package model

import "time"

// Account はサービス利用者のアカウントを表す。
// ExpenseIDs / IncomeIDs は所有する取引への順序付き参照コレクションで、
// 読み取り・更新・削除のスコープはこの集合に限定される。
type Account struct {
	ID           string
	FullName     string
	Username     string
	Email        string
	PasswordHash string
	ExpenseIDs   []string
	IncomeIDs    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Refs は指定種別の参照コレクションを返す。
func (a *Account) Refs(kind TransactionKind) []string {
	if kind == KindIncome {
		return a.IncomeIDs
	}
	return a.ExpenseIDs
}

// ProfilePatch はプロフィール更新の入力を表す。nilのフィールドは変更しない。
type ProfilePatch struct {
	FullName *string
	Username *string
	Email    *string
	Password *string
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p ProfilePatch) IsEmpty() bool {
	return p.FullName == nil && p.Username == nil && p.Email == nil && p.Password == nil
}
