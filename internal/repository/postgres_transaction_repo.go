package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/expensebook/internal/model"
)

const transactionColumns = `t.id, t.kind, t.owner_id, t.title, t.description, t.amount, t.currency, t.tag, t.normalized_amount, t.created_at, t.updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
type PostgresTransactionRepo struct {
	db *sql.DB
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

func scanTransaction(s rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	err := s.Scan(
		&txn.ID, &txn.Kind, &txn.OwnerID, &txn.Title, &txn.Description,
		&txn.Amount, &txn.Currency, &txn.Tag, &txn.NormalizedAmount,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// FindByID は指定IDの取引を取得する。見つからない場合はnilを返す。
func (r *PostgresTransactionRepo) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	txn, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return txn, nil
}

// ListByOwnerRefs は所有者の参照コレクションをunnestし、コレクション順に取引を返す。
// 参照先が存在しない参照は結果に含まれない。
func (r *PostgresTransactionRepo) ListByOwnerRefs(ctx context.Context, ownerID string, kind model.TransactionKind) ([]*model.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM accounts a
		CROSS JOIN LATERAL unnest(a.%s) WITH ORDINALITY AS r(txn_id, pos)
		JOIN transactions t ON t.id = r.txn_id AND t.kind = $2 AND t.owner_id = a.id
		WHERE a.id = $1
		ORDER BY r.pos`, transactionColumns, refColumn(kind))

	rows, err := r.db.QueryContext(ctx, query, ownerID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}

// Create は取引を作成する。
func (r *PostgresTransactionRepo) Create(ctx context.Context, txn *model.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, kind, owner_id, title, description, amount, currency, tag, normalized_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, string(txn.Kind), txn.OwnerID, txn.Title, txn.Description,
		txn.Amount, string(txn.Currency), string(txn.Tag), txn.NormalizedAmount,
		txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// Update は取引を上書き更新する。所有者と種別は変更しない。
func (r *PostgresTransactionRepo) Update(ctx context.Context, txn *model.Transaction) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET title = $2, description = $3, amount = $4, currency = $5, tag = $6,
		     normalized_amount = $7, updated_at = $8
		 WHERE id = $1`,
		txn.ID, txn.Title, txn.Description, txn.Amount, string(txn.Currency), string(txn.Tag),
		txn.NormalizedAmount, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOneRow(result, "transaction", txn.ID)
}

// Delete は指定IDの取引を削除する。
func (r *PostgresTransactionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// DeleteOrphans は所有者の参照コレクションから到達できない取引を削除する。
// 作成直後で参照追加前の取引を消さないよう、createdBefore以前のものだけを対象とする。
func (r *PostgresTransactionRepo) DeleteOrphans(ctx context.Context, createdBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions t
		 WHERE t.created_at < $1
		   AND NOT EXISTS (
		     SELECT 1 FROM accounts a
		     WHERE a.id = t.owner_id
		       AND t.id = ANY(CASE WHEN t.kind = 'income' THEN a.income_ids ELSE a.expense_ids END)
		   )`,
		createdBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned transactions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// ListDanglingRefs は参照先の取引が存在しない参照を返す。
func (r *PostgresTransactionRepo) ListDanglingRefs(ctx context.Context) ([]DanglingRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, 'expense', r.txn_id
		 FROM accounts a CROSS JOIN LATERAL unnest(a.expense_ids) AS r(txn_id)
		 WHERE NOT EXISTS (SELECT 1 FROM transactions t WHERE t.id = r.txn_id)
		 UNION ALL
		 SELECT a.id, 'income', r.txn_id
		 FROM accounts a CROSS JOIN LATERAL unnest(a.income_ids) AS r(txn_id)
		 WHERE NOT EXISTS (SELECT 1 FROM transactions t WHERE t.id = r.txn_id)`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dangling references: %w", err)
	}
	defer rows.Close()

	var refs []DanglingRef
	for rows.Next() {
		var ref DanglingRef
		if err := rows.Scan(&ref.AccountID, &ref.Kind, &ref.TxnID); err != nil {
			return nil, fmt.Errorf("failed to scan dangling reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dangling references: %w", err)
	}
	return refs, nil
}

// compile-time interface check
var (
	_ TransactionRepository = (*PostgresTransactionRepo)(nil)
	_ Reconciler            = (*PostgresTransactionRepo)(nil)
)
