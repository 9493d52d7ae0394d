// Package reconcile は参照コレクションと取引ドキュメントの整合性回復ジョブを提供する。
//
// 書き込み順序により、通常の失敗で残るのは参照されない取引ドキュメント（孤立）のみ。
// 作成途中のドキュメントを消さないよう、猶予期間より古いものだけを削除する。
// 参照先のない参照（宙づり）は本来発生しないが、検出した場合は参照を取り除く。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/expensebook/internal/metrics"
	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/repository"
)

// DefaultGrace は孤立ドキュメントを削除するまでの猶予期間のデフォルト値。
const DefaultGrace = 15 * time.Minute

// メトリクスの削除対象ラベル
const (
	sideOrphan   = "orphan"
	sideDangling = "dangling"
)

// RefRemover は参照コレクションから取引IDを取り除くインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type RefRemover interface {
	RemoveTransactionRef(ctx context.Context, accountID string, kind model.TransactionKind, txnID string) (bool, error)
}

// Result は1回の整合性回復の結果を表す。
type Result struct {
	OrphansDeleted  int64
	DanglingRemoved int
}

// Job は整合性回復ジョブ。冪等で、何度実行しても結果は変わらない。
type Job struct {
	store    repository.Reconciler
	accounts RefRemover
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
	Grace    time.Duration // 孤立ドキュメントを削除するまでの猶予期間
}

// NewJob は新しいJobを生成する。
func NewJob(store repository.Reconciler, accounts RefRemover, mc metrics.MetricsCollector, logger *slog.Logger) *Job {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Job{
		store:    store,
		accounts: accounts,
		metrics:  mc,
		logger:   logger,
		now:      time.Now,
		Grace:    DefaultGrace,
	}
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("整合性回復ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("grace", j.Grace),
	)

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("整合性回復ジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("整合性回復ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は孤立ドキュメントの削除と宙づり参照の除去を1回実行する。
func (j *Job) Run(ctx context.Context) (Result, error) {
	start := j.now()
	var res Result

	deleted, err := j.store.DeleteOrphans(ctx, start.Add(-j.Grace))
	if err != nil {
		return res, fmt.Errorf("failed to delete orphaned transactions: %w", err)
	}
	res.OrphansDeleted = deleted
	j.metrics.RecordReconcilePruned(sideOrphan, int(deleted))

	refs, err := j.store.ListDanglingRefs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list dangling references: %w", err)
	}
	for _, ref := range refs {
		removed, err := j.accounts.RemoveTransactionRef(ctx, ref.AccountID, ref.Kind, ref.TxnID)
		if err != nil {
			return res, fmt.Errorf("failed to remove dangling reference %s: %w", ref.TxnID, err)
		}
		if removed {
			res.DanglingRemoved++
			j.logger.Warn("宙づり参照を除去しました",
				slog.String("account_id", ref.AccountID),
				slog.String("kind", string(ref.Kind)),
				slog.String("transaction_id", ref.TxnID),
			)
		}
	}
	j.metrics.RecordReconcilePruned(sideDangling, res.DanglingRemoved)

	j.logger.Info("整合性回復ジョブが完了しました",
		slog.Int64("orphans_deleted", res.OrphansDeleted),
		slog.Int("dangling_removed", res.DanglingRemoved),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return res, nil
}
