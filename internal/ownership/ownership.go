// Package ownership はリソースの所有者検査を提供する。
package ownership

import (
	"slices"

	"github.com/hitoshi/expensebook/internal/model"
)

// RequireOwner は認証済みアカウントがリソースの所有者であることを検査する。
// 異なる場合はForbiddenを返す。
func RequireOwner(identity, owner string) error {
	if identity == "" || identity != owner {
		return model.NewForbiddenError()
	}
	return nil
}

// RequireMember は取引IDが呼び出し元の参照コレクションに含まれることを検査する。
// 含まれない場合はNotFoundを返し、他アカウントの取引の存在を明かさない。
func RequireMember(refs []string, id string, kind model.TransactionKind) error {
	if id == "" || !slices.Contains(refs, id) {
		return model.NewTransactionNotFoundError(kind, id)
	}
	return nil
}
