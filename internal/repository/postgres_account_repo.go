package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/expensebook/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

const accountColumns = `id, full_name, username, email, password_hash, expense_ids, income_ids, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, query string, arg string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID, &account.FullName, &account.Username, &account.Email, &account.PasswordHash,
		pq.Array(&account.ExpenseIDs), pq.Array(&account.IncomeIDs),
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。参照コレクションは空で作成される。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, full_name, username, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.FullName, account.Username, account.Email, account.PasswordHash,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if conflict := conflictFromPQ(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィール項目を更新する。参照コレクションには触れない。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, account *model.Account) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET full_name = $2, username = $3, email = $4, password_hash = $5, updated_at = $6
		 WHERE id = $1`,
		account.ID, account.FullName, account.Username, account.Email, account.PasswordHash, account.UpdatedAt,
	)
	if err != nil {
		if conflict := conflictFromPQ(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectOneRow(result, "account", account.ID)
}

// AddTransactionRef は参照コレクションにarray_appendで取引IDを追加する。
// 単一行のUPDATEであるため、同一アカウントへの同時追加でも変更は失われない。
func (r *PostgresAccountRepo) AddTransactionRef(ctx context.Context, accountID string, kind model.TransactionKind, txnID string) error {
	col := refColumn(kind)
	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE accounts SET %[1]s = array_append(%[1]s, $2::uuid), updated_at = now() WHERE id = $1`, col),
		accountID, txnID,
	)
	if err != nil {
		return fmt.Errorf("failed to add %s reference: %w", kind, err)
	}
	return expectOneRow(result, "account", accountID)
}

// RemoveTransactionRef は参照コレクションからarray_removeで取引IDを取り除く。
func (r *PostgresAccountRepo) RemoveTransactionRef(ctx context.Context, accountID string, kind model.TransactionKind, txnID string) (bool, error) {
	col := refColumn(kind)
	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE accounts SET %[1]s = array_remove(%[1]s, $2::uuid), updated_at = now()
		 WHERE id = $1 AND $2::uuid = ANY(%[1]s)`, col),
		accountID, txnID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove %s reference: %w", kind, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// refColumn は種別に対応する参照コレクションのカラム名を返す。
func refColumn(kind model.TransactionKind) string {
	if kind == model.KindIncome {
		return "income_ids"
	}
	return "expense_ids"
}

// conflictFromPQ は一意制約違反をConflictエラーに変換する。該当しない場合はnilを返す。
func conflictFromPQ(err error) *model.APIError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return nil
	}
	if strings.Contains(pqErr.Constraint, "email") {
		return model.NewEmailTakenError()
	}
	return model.NewUsernameTakenError()
}

func expectOneRow(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
