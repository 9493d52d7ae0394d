// Package repository はデータ永続化のインターフェースを定義する。
//
// 永続化層はドキュメント単位のアトミックな書き込みと、アカウントの参照コレクションに
// 対するアトミックな追加・削除のみを提供する。ドキュメントをまたぐトランザクションは
// 前提としない。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/expensebook/internal/model"
)

// ErrNotFound は書き込み対象の行が存在しないことを表す。
var ErrNotFound = errors.New("not found")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。
	// ユーザー名・メールアドレスの一意制約違反はmodel.KindConflictのエラーを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateProfile は氏名・ユーザー名・メールアドレス・パスワードハッシュを更新する。
	// 参照コレクションは変更しない。
	UpdateProfile(ctx context.Context, account *model.Account) error

	// AddTransactionRef は参照コレクションの末尾に取引IDをアトミックに追加する。
	AddTransactionRef(ctx context.Context, accountID string, kind model.TransactionKind, txnID string) error

	// RemoveTransactionRef は参照コレクションから取引IDをアトミックに取り除く。
	// 取り除いた場合はtrueを返す。
	RemoveTransactionRef(ctx context.Context, accountID string, kind model.TransactionKind, txnID string) (bool, error)
}

// TransactionRepository は取引ドキュメントの永続化インターフェース。
type TransactionRepository interface {
	// FindByID は指定IDの取引を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Transaction, error)

	// ListByOwnerRefs は所有者の参照コレクションに含まれる取引のみを、
	// コレクションの順序で返す。コレクション外のIDは決して解決しない。
	ListByOwnerRefs(ctx context.Context, ownerID string, kind model.TransactionKind) ([]*model.Transaction, error)

	// Create は取引を作成する。
	Create(ctx context.Context, txn *model.Transaction) error

	// Update は取引を上書き更新する。
	Update(ctx context.Context, txn *model.Transaction) error

	// Delete は指定IDの取引を削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
}

// DanglingRef は参照先ドキュメントが存在しない参照を表す。
type DanglingRef struct {
	AccountID string
	Kind      model.TransactionKind
	TxnID     string
}

// Reconciler は参照コレクションと取引ドキュメントの整合性回復に必要な操作。
type Reconciler interface {
	// DeleteOrphans はcreatedBefore以前に作成され、所有者の参照コレクションに
	// 含まれない取引ドキュメントを削除し、削除件数を返す。
	DeleteOrphans(ctx context.Context, createdBefore time.Time) (int64, error)

	// ListDanglingRefs は参照先ドキュメントが存在しない参照を返す。
	ListDanglingRefs(ctx context.Context) ([]DanglingRef, error)
}

// Pinger はデータストアの疎通確認インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}
