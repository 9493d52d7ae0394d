package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/expensebook/internal/model"
)

// MemoryStore はプロセス内メモリ上のデータストア。
// 単一プロセスでの開発用途とテストで使用する。全操作は1つのミューテックスで直列化される。
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	txns     map[string]*model.Transaction
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		txns:     make(map[string]*model.Transaction),
	}
}

// Accounts はアカウントリポジトリとしてのビューを返す。
func (s *MemoryStore) Accounts() *MemoryAccountRepo {
	return &MemoryAccountRepo{s: s}
}

// Transactions は取引リポジトリとしてのビューを返す。
func (s *MemoryStore) Transactions() *MemoryTransactionRepo {
	return &MemoryTransactionRepo{s: s}
}

// PingContext は常に成功する。
func (s *MemoryStore) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.ExpenseIDs = slices.Clone(a.ExpenseIDs)
	c.IncomeIDs = slices.Clone(a.IncomeIDs)
	return &c
}

func cloneTransaction(t *model.Transaction) *model.Transaction {
	c := *t
	return &c
}

// MemoryAccountRepo はMemoryStore上のAccountRepository実装。
type MemoryAccountRepo struct {
	s *MemoryStore
}

// FindByID は指定IDのアカウントを取得する。
func (r *MemoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, nil
}

// FindByUsername はユーザー名でアカウントを検索する。
func (r *MemoryAccountRepo) FindByUsername(_ context.Context, username string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。
func (r *MemoryAccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

// uniqueCheck はユーザー名・メールアドレスの重複を検査する。呼び出し元がロックを保持すること。
func (r *MemoryAccountRepo) uniqueCheck(account *model.Account) error {
	for id, a := range r.s.accounts {
		if id == account.ID {
			continue
		}
		if a.Username == account.Username {
			return model.NewUsernameTakenError()
		}
		if a.Email == account.Email {
			return model.NewEmailTakenError()
		}
	}
	return nil
}

// Create はアカウントを作成する。
func (r *MemoryAccountRepo) Create(_ context.Context, account *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[account.ID]; ok {
		return fmt.Errorf("account already exists: %s", account.ID)
	}
	if err := r.uniqueCheck(account); err != nil {
		return err
	}
	c := cloneAccount(account)
	c.ExpenseIDs = nil
	c.IncomeIDs = nil
	r.s.accounts[account.ID] = c
	return nil
}

// UpdateProfile はプロフィール項目を更新する。
func (r *MemoryAccountRepo) UpdateProfile(_ context.Context, account *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("account %s: %w", account.ID, ErrNotFound)
	}
	if err := r.uniqueCheck(account); err != nil {
		return err
	}
	stored.FullName = account.FullName
	stored.Username = account.Username
	stored.Email = account.Email
	stored.PasswordHash = account.PasswordHash
	stored.UpdatedAt = account.UpdatedAt
	return nil
}

// AddTransactionRef は参照コレクションの末尾に取引IDを追加する。
func (r *MemoryAccountRepo) AddTransactionRef(_ context.Context, accountID string, kind model.TransactionKind, txnID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if kind == model.KindIncome {
		a.IncomeIDs = append(a.IncomeIDs, txnID)
	} else {
		a.ExpenseIDs = append(a.ExpenseIDs, txnID)
	}
	return nil
}

// RemoveTransactionRef は参照コレクションから取引IDを取り除く。
func (r *MemoryAccountRepo) RemoveTransactionRef(_ context.Context, accountID string, kind model.TransactionKind, txnID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		return false, nil
	}
	refs := &a.ExpenseIDs
	if kind == model.KindIncome {
		refs = &a.IncomeIDs
	}
	before := len(*refs)
	*refs = slices.DeleteFunc(*refs, func(id string) bool { return id == txnID })
	return len(*refs) < before, nil
}

// MemoryTransactionRepo はMemoryStore上のTransactionRepository / Reconciler実装。
type MemoryTransactionRepo struct {
	s *MemoryStore
}

// FindByID は指定IDの取引を取得する。
func (r *MemoryTransactionRepo) FindByID(_ context.Context, id string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.txns[id]; ok {
		return cloneTransaction(t), nil
	}
	return nil, nil
}

// ListByOwnerRefs は所有者の参照コレクション順に取引を返す。
func (r *MemoryTransactionRepo) ListByOwnerRefs(_ context.Context, ownerID string, kind model.TransactionKind) ([]*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[ownerID]
	if !ok {
		return nil, nil
	}
	var txns []*model.Transaction
	for _, id := range a.Refs(kind) {
		t, ok := r.s.txns[id]
		if !ok || t.Kind != kind || t.OwnerID != ownerID {
			continue
		}
		txns = append(txns, cloneTransaction(t))
	}
	return txns, nil
}

// Create は取引を作成する。
func (r *MemoryTransactionRepo) Create(_ context.Context, txn *model.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.txns[txn.ID]; ok {
		return fmt.Errorf("transaction already exists: %s", txn.ID)
	}
	r.s.txns[txn.ID] = cloneTransaction(txn)
	return nil
}

// Update は取引を上書き更新する。
func (r *MemoryTransactionRepo) Update(_ context.Context, txn *model.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.txns[txn.ID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrNotFound)
	}
	c := cloneTransaction(txn)
	c.OwnerID = stored.OwnerID
	c.Kind = stored.Kind
	c.CreatedAt = stored.CreatedAt
	r.s.txns[txn.ID] = c
	return nil
}

// Delete は指定IDの取引を削除する。
func (r *MemoryTransactionRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.txns, id)
	return nil
}

// DeleteOrphans は所有者の参照コレクションから到達できない取引を削除する。
func (r *MemoryTransactionRepo) DeleteOrphans(_ context.Context, createdBefore time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, t := range r.s.txns {
		if !t.CreatedAt.Before(createdBefore) {
			continue
		}
		if a, ok := r.s.accounts[t.OwnerID]; ok && slices.Contains(a.Refs(t.Kind), id) {
			continue
		}
		delete(r.s.txns, id)
		deleted++
	}
	return deleted, nil
}

// ListDanglingRefs は参照先の取引が存在しない参照を返す。
func (r *MemoryTransactionRepo) ListDanglingRefs(_ context.Context) ([]DanglingRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var refs []DanglingRef
	for _, a := range r.s.accounts {
		for _, kind := range []model.TransactionKind{model.KindExpense, model.KindIncome} {
			for _, id := range a.Refs(kind) {
				if _, ok := r.s.txns[id]; !ok {
					refs = append(refs, DanglingRef{AccountID: a.ID, Kind: kind, TxnID: id})
				}
			}
		}
	}
	return refs, nil
}

// compile-time interface check
var (
	_ AccountRepository     = (*MemoryAccountRepo)(nil)
	_ TransactionRepository = (*MemoryTransactionRepo)(nil)
	_ Reconciler            = (*MemoryTransactionRepo)(nil)
	_ Pinger                = (*MemoryStore)(nil)
)
