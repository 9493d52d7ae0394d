// Package ledger は支出・収入の台帳操作を提供する。
//
// 取引ドキュメントとアカウントの参照コレクションは別々に書き込まれる。
// 作成はドキュメント→参照、削除は参照→ドキュメントの順で行うため、
// 途中で失敗しても残るのは孤立ドキュメントのみで、宙づり参照は生じない。
// 孤立ドキュメントは整合性回復ジョブが削除する。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/expensebook/internal/metrics"
	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/ownership"
	"github.com/hitoshi/expensebook/internal/repository"
)

// Normalizer は金額を基準通貨に換算するインターフェース。
type Normalizer interface {
	Normalize(ctx context.Context, amount decimal.Decimal, from model.Currency) (decimal.Decimal, error)
}

// Sanitizer はユーザー入力のテキストからマークアップを除去するインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Total は基準通貨での合計金額を表す。
type Total struct {
	Amount   decimal.Decimal
	Currency model.Currency
}

// Balance は収入合計・支出合計とその差額を表す。
type Balance struct {
	Income  Total
	Expense Total
	Net     Total
}

// 書き込み操作のメトリクスラベル
const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Service は台帳のビジネスロジックを提供する。
type Service struct {
	accounts   repository.AccountRepository
	txns       repository.TransactionRepository
	normalizer Normalizer
	sanitizer  Sanitizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	txns repository.TransactionRepository,
	normalizer Normalizer,
	sanitizer Sanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		accounts:   accounts,
		txns:       txns,
		normalizer: normalizer,
		sanitizer:  sanitizer,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
	}
}

// Create は取引を作成し、所有者の参照コレクションに追加する。
// 換算に失敗した場合は何も書き込まない。
func (s *Service) Create(ctx context.Context, ownerID string, kind model.TransactionKind, in model.TransactionInput) (*model.Transaction, error) {
	in.Title = s.sanitizer.Sanitize(in.Title)
	in.Description = s.sanitizer.Sanitize(in.Description)
	if err := validateInput(kind, in); err != nil {
		return nil, err
	}

	if _, err := s.loadAccount(ctx, ownerID); err != nil {
		return nil, err
	}

	normalized, err := s.normalizer.Normalize(ctx, in.Amount, in.Currency)
	if err != nil {
		return nil, err
	}

	now := s.now()
	txn := &model.Transaction{
		ID:               uuid.New().String(),
		Kind:             kind,
		OwnerID:          ownerID,
		Title:            in.Title,
		Description:      in.Description,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Tag:              in.Tag,
		NormalizedAmount: normalized,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kind, err)
	}

	if err := s.accounts.AddTransactionRef(ctx, ownerID, kind, txn.ID); err != nil {
		// 参照が追加できなかったドキュメントは到達不能なので取り消す
		if delErr := s.txns.Delete(ctx, txn.ID); delErr != nil {
			s.logger.Warn("orphaned transaction left for reconciliation",
				slog.String("transaction_id", txn.ID),
				slog.String("account_id", ownerID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to add %s reference: %w", kind, err)
	}

	s.metrics.RecordLedgerWrite(string(kind), opCreate)
	s.logger.Info("transaction created",
		slog.String("account_id", ownerID),
		slog.String("kind", string(kind)),
		slog.String("transaction_id", txn.ID),
	)
	return txn, nil
}

// List は所有者の参照コレクションに含まれる取引をコレクション順に返す。
func (s *Service) List(ctx context.Context, ownerID string, kind model.TransactionKind) ([]*model.Transaction, error) {
	txns, err := s.txns.ListByOwnerRefs(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	if txns == nil {
		txns = []*model.Transaction{}
	}
	return txns, nil
}

// Update は取引の指定フィールドを更新する。
// 金額か通貨が変わった場合のみ再換算し、それ以外は換算済み金額を維持する。
func (s *Service) Update(ctx context.Context, ownerID string, kind model.TransactionKind, txnID string, patch model.TransactionPatch) (*model.Transaction, error) {
	if patch.Title == nil && patch.Description == nil && patch.Amount == nil && patch.Currency == nil && patch.Tag == nil {
		return nil, model.NewValidationError("At least one field must be provided for update")
	}

	txn, err := s.loadOwned(ctx, ownerID, kind, txnID)
	if err != nil {
		return nil, err
	}

	next := model.TransactionInput{
		Title:       txn.Title,
		Description: txn.Description,
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Tag:         txn.Tag,
	}
	if patch.Title != nil {
		next.Title = s.sanitizer.Sanitize(*patch.Title)
	}
	if patch.Description != nil {
		next.Description = s.sanitizer.Sanitize(*patch.Description)
	}
	if patch.Amount != nil {
		next.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		next.Currency = *patch.Currency
	}
	if patch.Tag != nil {
		next.Tag = *patch.Tag
	}
	if err := validateInput(kind, next); err != nil {
		return nil, err
	}

	normalized := txn.NormalizedAmount
	if !next.Amount.Equal(txn.Amount) || next.Currency != txn.Currency {
		normalized, err = s.normalizer.Normalize(ctx, next.Amount, next.Currency)
		if err != nil {
			return nil, err
		}
	}

	txn.Title = next.Title
	txn.Description = next.Description
	txn.Amount = next.Amount
	txn.Currency = next.Currency
	txn.Tag = next.Tag
	txn.NormalizedAmount = normalized
	txn.UpdatedAt = s.now()

	if err := s.txns.Update(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 並行する削除が先にドキュメントを消した
			return nil, model.NewTransactionNotFoundError(kind, txnID)
		}
		return nil, fmt.Errorf("failed to update %s: %w", kind, err)
	}

	s.metrics.RecordLedgerWrite(string(kind), opUpdate)
	return txn, nil
}

// Delete は参照コレクションから取引を外した後、ドキュメントを削除する。
func (s *Service) Delete(ctx context.Context, ownerID string, kind model.TransactionKind, txnID string) error {
	account, err := s.loadAccount(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := ownership.RequireMember(account.Refs(kind), txnID, kind); err != nil {
		return err
	}

	removed, err := s.accounts.RemoveTransactionRef(ctx, ownerID, kind, txnID)
	if err != nil {
		return fmt.Errorf("failed to remove %s reference: %w", kind, err)
	}
	if !removed {
		// 並行する削除が先に参照を外した
		return model.NewTransactionNotFoundError(kind, txnID)
	}

	if err := s.txns.Delete(ctx, txnID); err != nil {
		// 参照は外れているため、残ったドキュメントは整合性回復ジョブが削除する。
		// 削除は完了していないため呼び出し側には失敗を返す。
		s.logger.Warn("orphaned transaction left for reconciliation",
			slog.String("transaction_id", txnID),
			slog.String("account_id", ownerID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	s.metrics.RecordLedgerWrite(string(kind), opDelete)
	s.logger.Info("transaction deleted",
		slog.String("account_id", ownerID),
		slog.String("kind", string(kind)),
		slog.String("transaction_id", txnID),
	)
	return nil
}

// Total は所有者の取引の換算済み金額の合計を返す。通貨は常に基準通貨。
func (s *Service) Total(ctx context.Context, ownerID string, kind model.TransactionKind) (Total, error) {
	txns, err := s.List(ctx, ownerID, kind)
	if err != nil {
		return Total{}, err
	}
	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.NormalizedAmount)
	}
	return Total{Amount: sum, Currency: model.BaseCurrency}, nil
}

// Balance は収入合計から支出合計を引いた差額を返す。
func (s *Service) Balance(ctx context.Context, ownerID string) (Balance, error) {
	income, err := s.Total(ctx, ownerID, model.KindIncome)
	if err != nil {
		return Balance{}, err
	}
	expense, err := s.Total(ctx, ownerID, model.KindExpense)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Income:  income,
		Expense: expense,
		Net:     Total{Amount: income.Amount.Sub(expense.Amount), Currency: model.BaseCurrency},
	}, nil
}

func (s *Service) loadAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// loadOwned は参照コレクションに含まれ、所有者と種別が一致する取引を返す。
func (s *Service) loadOwned(ctx context.Context, ownerID string, kind model.TransactionKind, txnID string) (*model.Transaction, error) {
	account, err := s.loadAccount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := ownership.RequireMember(account.Refs(kind), txnID, kind); err != nil {
		return nil, err
	}

	txn, err := s.txns.FindByID(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", kind, err)
	}
	if txn == nil || txn.Kind != kind {
		return nil, model.NewTransactionNotFoundError(kind, txnID)
	}
	if err := ownership.RequireOwner(ownerID, txn.OwnerID); err != nil {
		return nil, err
	}
	return txn, nil
}

func validateInput(kind model.TransactionKind, in model.TransactionInput) error {
	if in.Title == "" {
		return model.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(in.Title) > model.MaxTitleLength {
		return model.NewValidationError(fmt.Sprintf("Title must be at most %d characters long", model.MaxTitleLength))
	}
	if utf8.RuneCountInString(in.Description) > model.MaxDescriptionLength {
		return model.NewValidationError(fmt.Sprintf("Description must be at most %d characters long", model.MaxDescriptionLength))
	}
	if err := model.ValidateAmount(in.Amount); err != nil {
		return err
	}
	if _, err := model.ParseCurrency(string(in.Currency)); err != nil {
		return err
	}
	if _, err := kind.ParseTag(string(in.Tag)); err != nil {
		return err
	}
	return nil
}
